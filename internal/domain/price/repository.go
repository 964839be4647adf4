package price

import (
	"context"

	"github.com/vidinfra/planshift/internal/types"
)

// Filter narrows price listings to a plan and interval catalog slice
type Filter struct {
	PlanKey  types.PlanKey
	Interval types.BillingInterval
}

type Repository interface {
	// Upsert writes a price row keyed by stripe price id
	Upsert(ctx context.Context, price *Price) error

	// FindByStripePriceID fails with ErrNotFound when the price is
	// not mirrored locally
	FindByStripePriceID(ctx context.Context, stripePriceID string) (*Price, error)

	// List returns all prices matching the filter
	List(ctx context.Context, filter *Filter) ([]*Price, error)
}
