package subscription

import "context"

// Criteria narrows current-subscription lookups. At least one field
// must be set.
type Criteria struct {
	WorkspaceID      string
	StripeCustomerID string
}

type Repository interface {
	// Upsert writes the subscription row keyed by stripe subscription id
	Upsert(ctx context.Context, subscription *Subscription) error

	// GetByStripeSubscriptionID fails with ErrNotFound when absent;
	// items are not loaded
	GetByStripeSubscriptionID(ctx context.Context, stripeSubscriptionID string) (*Subscription, error)

	// ListByWorkspace returns all mirror rows for a workspace
	ListByWorkspace(ctx context.Context, workspaceID string) ([]*Subscription, error)

	// ListNotCanceled returns the non-canceled rows matching the criteria
	ListNotCanceled(ctx context.Context, criteria Criteria) ([]*Subscription, error)

	// DeleteByWorkspace removes all mirror rows for a workspace
	DeleteByWorkspace(ctx context.Context, workspaceID string) error
}

type ItemRepository interface {
	// Upsert writes an item row keyed by stripe subscription item id
	Upsert(ctx context.Context, item *Item) error

	// ListBySubscriptionID returns all items of a mirror subscription
	ListBySubscriptionID(ctx context.Context, subscriptionID string) ([]*Item, error)

	// FindBySubscriptionAndProduct returns nil when no row matches
	FindBySubscriptionAndProduct(ctx context.Context, subscriptionID, stripeProductID string) (*Item, error)

	// DeleteBySubscriptionAndProduct removes the item row for a product
	DeleteBySubscriptionAndProduct(ctx context.Context, subscriptionID, stripeProductID string) error

	// ResetPeriodCapReached clears the period-cap flag on every item of
	// a provider subscription
	ResetPeriodCapReached(ctx context.Context, stripeSubscriptionID string) error
}
