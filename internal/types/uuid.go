package types

import (
	"fmt"

	"github.com/oklog/ulid/v2"
)

// GenerateUUID returns a k-sortable unique identifier
func GenerateUUID() string {
	return ulid.Make().String()
}

// GenerateUUIDWithPrefix returns a k-sortable unique identifier
// with a prefix ex billcus_0ujsswThIGTUYm2K8FjOOfXtY1K
func GenerateUUIDWithPrefix(prefix string) string {
	if prefix == "" {
		return GenerateUUID()
	}
	return fmt.Sprintf("%s_%s", prefix, GenerateUUID())
}

const (
	UUID_PREFIX_CUSTOMER          = "billcus"
	UUID_PREFIX_SUBSCRIPTION      = "billsub"
	UUID_PREFIX_SUBSCRIPTION_ITEM = "billsubitem"
	UUID_PREFIX_PRICE             = "billprice"
	UUID_PREFIX_ENTITLEMENT       = "billent"
)
