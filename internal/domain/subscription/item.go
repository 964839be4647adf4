package subscription

import (
	"github.com/vidinfra/planshift/internal/types"
)

// Item is the local mirror of one provider subscription item.
// A nil Quantity marks the metered item; that presence or absence is
// the sole discriminator between metered and licensed items.
type Item struct {
	// ID uuid identifier for the item row
	ID string `db:"id" json:"id"`

	// SubscriptionID references the mirror subscription row
	SubscriptionID string `db:"subscription_id" json:"subscription_id"`

	// StripeSubscriptionID is the provider-side parent subscription
	StripeSubscriptionID string `db:"stripe_subscription_id" json:"stripe_subscription_id"`

	// StripeSubscriptionItemID is the provider-side item identifier,
	// the upsert conflict key. The provider may replace rather than
	// update the metered item, changing this id.
	StripeSubscriptionItemID string `db:"stripe_subscription_item_id" json:"stripe_subscription_item_id"`

	// StripePriceID is the provider-side price on the item
	StripePriceID string `db:"stripe_price_id" json:"stripe_price_id"`

	// StripeProductID is the provider-side product of the price
	StripeProductID string `db:"stripe_product_id" json:"stripe_product_id"`

	// PlanKey and ProductKey come from the mirrored product metadata
	PlanKey    types.PlanKey    `db:"plan_key" json:"plan_key"`
	ProductKey types.ProductKey `db:"product_key" json:"product_key"`

	// UsageType discriminates LICENSED from METERED
	UsageType types.UsageType `db:"usage_type" json:"usage_type"`

	// Quantity is the seat count; nil for the metered item
	Quantity *int64 `db:"quantity" json:"quantity"`

	// HasReachedCurrentPeriodCap is set when usage hit the tier cap
	// this period; cleared when the trial ends or the period rolls
	HasReachedCurrentPeriodCap bool `db:"has_reached_current_period_cap" json:"has_reached_current_period_cap"`

	types.BaseModel
}

// IsMetered reports whether the item bills by usage
func (i *Item) IsMetered() bool {
	return i.Quantity == nil
}

// Seats returns the licensed quantity, zero for metered items
func (i *Item) Seats() int64 {
	if i.Quantity == nil {
		return 0
	}
	return *i.Quantity
}
