package customer

import "context"

type Repository interface {
	// Upsert writes the customer row keyed by workspace id
	Upsert(ctx context.Context, customer *Customer) error

	// GetByWorkspaceID fails with ErrNotFound when no row exists
	GetByWorkspaceID(ctx context.Context, workspaceID string) (*Customer, error)

	// GetByStripeCustomerID fails with ErrNotFound when no row exists
	GetByStripeCustomerID(ctx context.Context, stripeCustomerID string) (*Customer, error)
}
