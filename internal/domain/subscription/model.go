package subscription

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"

	"github.com/samber/lo"

	ierr "github.com/vidinfra/planshift/internal/errors"
	"github.com/vidinfra/planshift/internal/types"
)

// JSONBMetadata persists subscription metadata as a jsonb column
type JSONBMetadata map[string]string

// Subscription is the local mirror of a provider subscription.
// Items are loaded alongside; the invariant is exactly one metered and
// one licensed item at all times.
type Subscription struct {
	// ID uuid identifier for the subscription row
	ID string `db:"id" json:"id"`

	// WorkspaceID is the owning workspace
	WorkspaceID string `db:"workspace_id" json:"workspace_id"`

	// StripeCustomerID is the provider-side customer
	StripeCustomerID string `db:"stripe_customer_id" json:"stripe_customer_id"`

	// StripeSubscriptionID is the provider-side subscription
	// identifier, the upsert conflict key
	StripeSubscriptionID string `db:"stripe_subscription_id" json:"stripe_subscription_id"`

	// StripeScheduleID is set while a subscription schedule is attached
	StripeScheduleID *string `db:"stripe_schedule_id" json:"stripe_schedule_id"`

	// Status mirrors the provider subscription status
	Status types.SubscriptionStatus `db:"status" json:"status"`

	// Interval is the billing interval of the current phase
	Interval types.BillingInterval `db:"interval" json:"interval"`

	// CurrentPeriodEnd is when the running billing period closes;
	// deferred phases start here
	CurrentPeriodEnd time.Time `db:"current_period_end" json:"current_period_end"`

	// TrialStart and TrialEnd bound the trial period when trialing
	TrialStart *time.Time `db:"trial_start" json:"trial_start"`
	TrialEnd   *time.Time `db:"trial_end" json:"trial_end"`

	// CancelAtPeriodEnd mirrors the provider cancel flag
	CancelAtPeriodEnd bool `db:"cancel_at_period_end" json:"cancel_at_period_end"`

	// Metadata is a jsonb field for additional information
	Metadata JSONBMetadata `db:"metadata" json:"metadata"`

	// Items are the subscription line items, loaded with the row
	Items []*Item `db:"-" json:"items"`

	types.BaseModel
}

// IsCanceled reports whether the mirror row is terminally canceled
func (s *Subscription) IsCanceled() bool {
	return s.Status == types.SubscriptionStatusCanceled
}

// MeteredItemOrFail returns the single usage-billed item.
// A missing item is a data-integrity violation, not a recoverable state.
func (s *Subscription) MeteredItemOrFail() (*Item, error) {
	item, ok := lo.Find(s.Items, func(it *Item) bool {
		return it.UsageType == types.UsageTypeMetered
	})
	if !ok {
		return nil, ierr.NewError("metered subscription item not found").
			WithHintf("Subscription %s has no metered item", s.StripeSubscriptionID).
			Mark(ierr.ErrNotFound)
	}
	return item, nil
}

// LicensedItemOrFail returns the single seat-based item
func (s *Subscription) LicensedItemOrFail() (*Item, error) {
	item, ok := lo.Find(s.Items, func(it *Item) bool {
		return it.UsageType == types.UsageTypeLicensed
	})
	if !ok {
		return nil, ierr.NewError("licensed subscription item not found").
			WithHintf("Subscription %s has no licensed item", s.StripeSubscriptionID).
			Mark(ierr.ErrNotFound)
	}
	return item, nil
}

// Value implements driver.Valuer for JSONBMetadata
func (m JSONBMetadata) Value() (driver.Value, error) {
	if m == nil {
		return nil, nil
	}
	return json.Marshal(m)
}

// Scan implements sql.Scanner for JSONBMetadata
func (m *JSONBMetadata) Scan(value interface{}) error {
	if value == nil {
		*m = nil
		return nil
	}
	b, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("unsupported type for JSONBMetadata: %T", value)
	}
	return json.Unmarshal(b, m)
}
