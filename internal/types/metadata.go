package types

// Metadata is a string key-value map attached to mirror rows and
// provider objects
type Metadata map[string]string

// Merge returns a copy of m with overrides applied on top
func (m Metadata) Merge(overrides Metadata) Metadata {
	merged := make(Metadata, len(m)+len(overrides))
	for k, v := range m {
		merged[k] = v
	}
	for k, v := range overrides {
		merged[k] = v
	}
	return merged
}
