package types

import (
	ierr "github.com/vidinfra/planshift/internal/errors"
)

// PlanKey identifies a sellable plan. Exactly two plans exist; every
// plan transition is a switch between them.
type PlanKey string

const (
	PlanKeyPro        PlanKey = "PRO"
	PlanKeyEnterprise PlanKey = "ENTERPRISE"
)

func (k PlanKey) String() string {
	return string(k)
}

func (k PlanKey) Validate() error {
	switch k {
	case PlanKeyPro, PlanKeyEnterprise:
		return nil
	}
	return ierr.NewErrorf("invalid plan key: %s", k).
		WithHint("Plan must be PRO or ENTERPRISE").
		Mark(ierr.ErrValidation)
}

// OppositePlan returns the other plan of the PRO/ENTERPRISE pair
func OppositePlan(k PlanKey) (PlanKey, error) {
	switch k {
	case PlanKeyPro:
		return PlanKeyEnterprise, nil
	case PlanKeyEnterprise:
		return PlanKeyPro, nil
	}
	return "", ierr.NewErrorf("no opposite plan for %s", k).
		WithHint("Plan must be PRO or ENTERPRISE").
		Mark(ierr.ErrNotSwitchable)
}

// ProductKey identifies a catalog product within a plan
type ProductKey string

const (
	// ProductKeyBase is the seat-based licensed product every subscription carries
	ProductKeyBase ProductKey = "BASE_PRODUCT"
	// ProductKeyWorkflowExecution is the metered usage product
	ProductKeyWorkflowExecution ProductKey = "WORKFLOW_NODE_EXECUTION"
)

// UsageType discriminates licensed (seat based) from metered (usage based) prices
type UsageType string

const (
	UsageTypeLicensed UsageType = "LICENSED"
	UsageTypeMetered  UsageType = "METERED"
)

// BillingInterval is the billing period of a subscription or price
type BillingInterval string

const (
	BillingIntervalMonth BillingInterval = "month"
	BillingIntervalYear  BillingInterval = "year"
)

func (i BillingInterval) String() string {
	return string(i)
}

func (i BillingInterval) Validate() error {
	switch i {
	case BillingIntervalMonth, BillingIntervalYear:
		return nil
	}
	return ierr.NewErrorf("invalid billing interval: %s", i).
		WithHint("Interval must be month or year").
		Mark(ierr.ErrValidation)
}

// OppositeInterval returns the other interval of the month/year pair
func OppositeInterval(i BillingInterval) (BillingInterval, error) {
	switch i {
	case BillingIntervalMonth:
		return BillingIntervalYear, nil
	case BillingIntervalYear:
		return BillingIntervalMonth, nil
	}
	return "", ierr.NewErrorf("no opposite interval for %s", i).
		WithHint("Interval must be month or year").
		Mark(ierr.ErrNotSwitchable)
}

// SubscriptionStatus mirrors the provider-side subscription status
type SubscriptionStatus string

const (
	SubscriptionStatusActive     SubscriptionStatus = "active"
	SubscriptionStatusTrialing   SubscriptionStatus = "trialing"
	SubscriptionStatusPastDue    SubscriptionStatus = "past_due"
	SubscriptionStatusUnpaid     SubscriptionStatus = "unpaid"
	SubscriptionStatusCanceled   SubscriptionStatus = "canceled"
	SubscriptionStatusIncomplete SubscriptionStatus = "incomplete"
	SubscriptionStatusPaused     SubscriptionStatus = "paused"
)

func (s SubscriptionStatus) String() string {
	return string(s)
}

// ProrationBehavior is the provider proration mode applied to a mutation
type ProrationBehavior string

const (
	ProrationBehaviorNone             ProrationBehavior = "none"
	ProrationBehaviorCreateProrations ProrationBehavior = "create_prorations"
)

// BillingCycleAnchor re-anchoring mode for immediate subscription updates
type BillingCycleAnchor string

const (
	BillingCycleAnchorNow       BillingCycleAnchor = "now"
	BillingCycleAnchorUnchanged BillingCycleAnchor = "unchanged"
)

// PriceUpdateType selects the metered floor-match variant during resolution
type PriceUpdateType string

const (
	PriceUpdateTypeInterval PriceUpdateType = "interval"
	PriceUpdateTypePlan     PriceUpdateType = "plan"
)

// BillingThresholds caps accrued usage cost before an off-cycle invoice is cut
type BillingThresholds struct {
	AmountGTE               int64 `json:"amount_gte"`
	ResetBillingCycleAnchor bool  `json:"reset_billing_cycle_anchor"`
}

// EntitlementKey identifies a boolean feature flag granted by a plan
type EntitlementKey string

const (
	EntitlementKeySSO          EntitlementKey = "SSO"
	EntitlementKeyCustomDomain EntitlementKey = "CUSTOM_DOMAIN"
)
