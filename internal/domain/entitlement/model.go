package entitlement

import (
	"github.com/vidinfra/planshift/internal/types"
)

// Entitlement is a boolean feature grant derived from the workspace's
// plan, mirrored locally by the webhook pipeline
type Entitlement struct {
	// ID uuid identifier for the entitlement row
	ID string `db:"id" json:"id"`

	// WorkspaceID is the owning workspace
	WorkspaceID string `db:"workspace_id" json:"workspace_id"`

	// Key identifies the feature
	Key types.EntitlementKey `db:"key" json:"key"`

	// Value is the grant flag
	Value bool `db:"value" json:"value"`

	types.BaseModel
}
