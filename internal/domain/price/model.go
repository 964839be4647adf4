package price

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	ierr "github.com/vidinfra/planshift/internal/errors"
	"github.com/vidinfra/planshift/internal/types"
)

// JSONB types for complex fields
type JSONBTiers []Tier
type JSONBMetadata map[string]string

// Price is the local mirror of a provider catalog price
type Price struct {
	// ID uuid identifier for the price row
	ID string `db:"id" json:"id"`

	// StripePriceID is the provider-side price identifier
	StripePriceID string `db:"stripe_price_id" json:"stripe_price_id"`

	// StripeProductID is the provider-side product the price belongs to
	StripeProductID string `db:"stripe_product_id" json:"stripe_product_id"`

	// PlanKey is the plan the price is sold under
	PlanKey types.PlanKey `db:"plan_key" json:"plan_key"`

	// ProductKey identifies the product within the plan ex BASE_PRODUCT
	ProductKey types.ProductKey `db:"product_key" json:"product_key"`

	// UsageType discriminates LICENSED from METERED prices
	UsageType types.UsageType `db:"usage_type" json:"usage_type"`

	// Interval is the billing interval ex month, year
	Interval types.BillingInterval `db:"interval" json:"interval"`

	// Amount stored in main currency units, zero for tiered metered prices
	Amount decimal.Decimal `db:"amount" json:"amount"`

	// Currency 3 digit ISO currency code in lowercase ex usd, eur
	Currency string `db:"currency" json:"currency"`

	// Tiers are the usage tiers for metered prices, ordered ascending
	// by cap; tiers[0].up_to is the usage cap of the subscription
	Tiers JSONBTiers `db:"tiers" json:"tiers"`

	// BillingThresholds to apply when this metered price is active
	BillingThresholds *JSONBThresholds `db:"billing_thresholds" json:"billing_thresholds"`

	// Metadata is a jsonb field for additional information
	Metadata JSONBMetadata `db:"metadata" json:"metadata"`

	types.BaseModel
}

// Tier is one usage tier of a metered price. UpTo is nil on the
// unbounded top tier.
type Tier struct {
	UpTo       *int64          `json:"up_to"`
	FlatAmount decimal.Decimal `json:"flat_amount"`
	UnitAmount decimal.Decimal `json:"unit_amount"`
}

// JSONBThresholds persists billing thresholds as a jsonb column
type JSONBThresholds types.BillingThresholds

// Thresholds converts back to the shared value type
func (t *JSONBThresholds) Thresholds() *types.BillingThresholds {
	if t == nil {
		return nil
	}
	v := types.BillingThresholds(*t)
	return &v
}

// IsMetered reports whether the price bills by usage
func (p *Price) IsMetered() bool {
	return p.UsageType == types.UsageTypeMetered
}

// IsLicensed reports whether the price bills by seat
func (p *Price) IsLicensed() bool {
	return p.UsageType == types.UsageTypeLicensed
}

// Cap returns tiers[0].up_to, the usage cap of the lowest tier and the
// ordering key for higher/lower tier comparisons
func (p *Price) Cap() (int64, error) {
	if !p.IsMetered() || len(p.Tiers) == 0 || p.Tiers[0].UpTo == nil {
		return 0, ierr.NewError("price has no metered tier cap").
			WithHintf("Price %s is not a tiered metered price", p.StripePriceID).
			Mark(ierr.ErrValidation)
	}
	return *p.Tiers[0].UpTo, nil
}

// Value implements driver.Valuer for JSONBTiers
func (t JSONBTiers) Value() (driver.Value, error) {
	if t == nil {
		return nil, nil
	}
	return json.Marshal(t)
}

// Scan implements sql.Scanner for JSONBTiers
func (t *JSONBTiers) Scan(value interface{}) error {
	if value == nil {
		*t = nil
		return nil
	}
	b, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("unsupported type for JSONBTiers: %T", value)
	}
	return json.Unmarshal(b, t)
}

// Value implements driver.Valuer for JSONBThresholds
func (t *JSONBThresholds) Value() (driver.Value, error) {
	if t == nil {
		return nil, nil
	}
	return json.Marshal(t)
}

// Scan implements sql.Scanner for JSONBThresholds
func (t *JSONBThresholds) Scan(value interface{}) error {
	if value == nil {
		return nil
	}
	b, ok := value.([]byte)
	if !ok {
		return fmt.Errorf("unsupported type for JSONBThresholds: %T", value)
	}
	return json.Unmarshal(b, t)
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
