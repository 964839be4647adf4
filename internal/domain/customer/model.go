package customer

import (
	"github.com/vidinfra/planshift/internal/types"
)

// Customer is the local mirror of a provider billing customer,
// one row per workspace
type Customer struct {
	// ID uuid identifier for the customer row
	ID string `db:"id" json:"id"`

	// WorkspaceID is the owning workspace, the upsert conflict key
	WorkspaceID string `db:"workspace_id" json:"workspace_id"`

	// StripeCustomerID is the provider-side customer identifier
	StripeCustomerID string `db:"stripe_customer_id" json:"stripe_customer_id"`

	types.BaseModel
}
