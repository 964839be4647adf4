package testutil

import (
	"context"
	"sync"
	"time"

	"github.com/stripe/stripe-go/v82"

	ierr "github.com/vidinfra/planshift/internal/errors"
	provider "github.com/vidinfra/planshift/internal/stripe"
	"github.com/vidinfra/planshift/internal/types"
)

// RecordedSubscriptionUpdate captures one immediate subscription
// mutation pushed to the fake provider
type RecordedSubscriptionUpdate struct {
	SubscriptionID string
	Params         provider.UpdateSubscriptionParams
}

// RecordedPhaseReplacement captures one schedule phase rewrite
type RecordedPhaseReplacement struct {
	ScheduleID string
	Phases     provider.PhaseReplacement
}

// FakeBillingProvider is an in-memory stand-in for the Stripe-backed
// provider services. It holds a single subscription with an optional
// schedule, applies mutations to them the way the provider would, and
// records every call for assertions.
type FakeBillingProvider struct {
	mu sync.Mutex

	// Subscription is the live provider-side subscription. Tests seed
	// it with items, prices, and a customer reference.
	Subscription *stripe.Subscription

	// Schedule is the attached subscription schedule, nil when none
	Schedule *stripe.SubscriptionSchedule

	// PaymentMethodOnFile drives HasPaymentMethod
	PaymentMethodOnFile bool

	// PeriodEndAfterReanchor replaces every item's current period end
	// when an update re-anchors the billing cycle
	PeriodEndAfterReanchor int64

	UpdateSubscriptionCalls []RecordedSubscriptionUpdate
	ReplaceCalls            []RecordedPhaseReplacement
	ReleaseCalls            []string
	CreateScheduleCalls     []string
	CancelCalls             []string
	EndTrialCalls           []string
	CollectInvoiceCalls     []string
}

// NewFakeBillingProvider creates an empty fake provider
func NewFakeBillingProvider() *FakeBillingProvider {
	return &FakeBillingProvider{}
}

var _ provider.SubscriptionService = (*FakeBillingProvider)(nil)
var _ provider.ScheduleService = (*FakeBillingProvider)(nil)
var _ provider.CustomerService = (*FakeBillingProvider)(nil)

func (f *FakeBillingProvider) UpdateSubscription(ctx context.Context, subscriptionID string, params provider.UpdateSubscriptionParams) (*stripe.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.Subscription == nil || f.Subscription.ID != subscriptionID {
		return nil, ierr.NewErrorf("no such subscription: %s", subscriptionID).
			Mark(ierr.ErrProviderCall)
	}

	f.UpdateSubscriptionCalls = append(f.UpdateSubscriptionCalls, RecordedSubscriptionUpdate{
		SubscriptionID: subscriptionID,
		Params:         params,
	})

	for _, change := range params.Items {
		for _, it := range f.Subscription.Items.Data {
			if it.ID != change.ItemID {
				continue
			}
			it.Price = &stripe.Price{ID: change.PriceID}
			if change.Quantity != nil {
				it.Quantity = *change.Quantity
			} else {
				it.Quantity = 0
			}
		}
	}

	if params.Anchor == types.BillingCycleAnchorNow && f.PeriodEndAfterReanchor != 0 {
		now := time.Now().Unix()
		for _, it := range f.Subscription.Items.Data {
			it.CurrentPeriodStart = now
			it.CurrentPeriodEnd = f.PeriodEndAfterReanchor
		}
	}

	if len(params.Metadata) > 0 {
		if f.Subscription.Metadata == nil {
			f.Subscription.Metadata = map[string]string{}
		}
		for k, v := range params.Metadata {
			f.Subscription.Metadata[k] = v
		}
	}

	return f.attachSchedule(), nil
}

func (f *FakeBillingProvider) CancelSubscription(ctx context.Context, subscriptionID string) (*stripe.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.CancelCalls = append(f.CancelCalls, subscriptionID)
	if f.Subscription != nil && f.Subscription.ID == subscriptionID {
		f.Subscription.Status = stripe.SubscriptionStatusCanceled
	}
	return f.Subscription, nil
}

func (f *FakeBillingProvider) CollectLastInvoice(ctx context.Context, subscriptionID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.CollectInvoiceCalls = append(f.CollectInvoiceCalls, subscriptionID)
	return nil
}

func (f *FakeBillingProvider) EndTrialNow(ctx context.Context, subscriptionID string) (*stripe.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.EndTrialCalls = append(f.EndTrialCalls, subscriptionID)
	if f.Subscription != nil && f.Subscription.ID == subscriptionID {
		f.Subscription.Status = stripe.SubscriptionStatusActive
		f.Subscription.TrialEnd = time.Now().Unix()
	}
	return f.Subscription, nil
}

func (f *FakeBillingProvider) GetSubscriptionWithSchedule(ctx context.Context, subscriptionID string) (*stripe.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.Subscription == nil || f.Subscription.ID != subscriptionID {
		return nil, ierr.NewErrorf("no such subscription: %s", subscriptionID).
			Mark(ierr.ErrProviderCall)
	}
	return f.attachSchedule(), nil
}

func (f *FakeBillingProvider) FindOrCreateSubscriptionSchedule(ctx context.Context, sub *stripe.Subscription) (*stripe.SubscriptionSchedule, error) {
	f.mu.Lock()
	if f.Schedule != nil {
		defer f.mu.Unlock()
		return f.Schedule, nil
	}
	f.mu.Unlock()
	return f.CreateScheduleFromSubscription(ctx, sub.ID)
}

func (f *FakeBillingProvider) CreateScheduleFromSubscription(ctx context.Context, subscriptionID string) (*stripe.SubscriptionSchedule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.Subscription == nil || f.Subscription.ID != subscriptionID {
		return nil, ierr.NewErrorf("no such subscription: %s", subscriptionID).
			Mark(ierr.ErrProviderCall)
	}

	f.CreateScheduleCalls = append(f.CreateScheduleCalls, subscriptionID)

	// Seed a single current phase from the live items, the way the
	// provider materializes from_subscription.
	phase := &stripe.SubscriptionSchedulePhase{
		StartDate: f.currentPeriodStart(),
		EndDate:   f.currentPeriodEnd(),
	}
	for _, it := range f.Subscription.Items.Data {
		phase.Items = append(phase.Items, &stripe.SubscriptionSchedulePhaseItem{
			Price:    it.Price,
			Quantity: it.Quantity,
		})
	}

	f.Schedule = &stripe.SubscriptionSchedule{
		ID:     "sub_sched_" + subscriptionID,
		Phases: []*stripe.SubscriptionSchedulePhase{phase},
	}
	f.attachSchedule()

	return f.Schedule, nil
}

func (f *FakeBillingProvider) CurrentAndNextPhases(schedule *stripe.SubscriptionSchedule) (current, next *stripe.SubscriptionSchedulePhase) {
	if schedule == nil {
		return nil, nil
	}

	now := time.Now().Unix()
	for i, phase := range schedule.Phases {
		if phase.StartDate <= now && (phase.EndDate == 0 || now < phase.EndDate) {
			current = phase
			if i+1 < len(schedule.Phases) {
				next = schedule.Phases[i+1]
			}
			return current, next
		}
	}

	return nil, nil
}

func (f *FakeBillingProvider) ReplaceEditablePhases(ctx context.Context, scheduleID string, phases provider.PhaseReplacement) (*stripe.SubscriptionSchedule, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	if f.Schedule == nil || f.Schedule.ID != scheduleID {
		return nil, ierr.NewErrorf("no such schedule: %s", scheduleID).
			Mark(ierr.ErrProviderCall)
	}
	if phases.Current == nil {
		return nil, ierr.NewError("schedule update requires a current phase").
			Mark(ierr.ErrInvalidState)
	}

	f.ReplaceCalls = append(f.ReplaceCalls, RecordedPhaseReplacement{
		ScheduleID: scheduleID,
		Phases:     phases,
	})

	rebuilt := []*stripe.SubscriptionSchedulePhase{phaseFromParams(phases.Current)}
	if phases.Next != nil {
		rebuilt = append(rebuilt, phaseFromParams(phases.Next))
	}
	f.Schedule.Phases = rebuilt

	return f.Schedule, nil
}

func (f *FakeBillingProvider) Release(ctx context.Context, scheduleID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.ReleaseCalls = append(f.ReleaseCalls, scheduleID)
	f.Schedule = nil
	if f.Subscription != nil {
		f.Subscription.Schedule = nil
	}
	return nil
}

func (f *FakeBillingProvider) HasPaymentMethod(ctx context.Context, stripeCustomerID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.PaymentMethodOnFile, nil
}

// CurrentPhases returns the stored schedule phases for assertions
func (f *FakeBillingProvider) CurrentPhases() []*stripe.SubscriptionSchedulePhase {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Schedule == nil {
		return nil
	}
	return f.Schedule.Phases
}

func (f *FakeBillingProvider) attachSchedule() *stripe.Subscription {
	f.Subscription.Schedule = f.Schedule
	return f.Subscription
}

func (f *FakeBillingProvider) currentPeriodStart() int64 {
	for _, it := range f.Subscription.Items.Data {
		if it.CurrentPeriodStart != 0 {
			return it.CurrentPeriodStart
		}
	}
	return time.Now().Add(-time.Hour).Unix()
}

func (f *FakeBillingProvider) currentPeriodEnd() int64 {
	for _, it := range f.Subscription.Items.Data {
		if it.Quantity > 0 {
			return it.CurrentPeriodEnd
		}
	}
	if len(f.Subscription.Items.Data) > 0 {
		return f.Subscription.Items.Data[0].CurrentPeriodEnd
	}
	return 0
}

func phaseFromParams(params *stripe.SubscriptionScheduleUpdatePhaseParams) *stripe.SubscriptionSchedulePhase {
	phase := &stripe.SubscriptionSchedulePhase{}
	if params.StartDate != nil {
		phase.StartDate = *params.StartDate
	}
	if params.EndDate != nil {
		phase.EndDate = *params.EndDate
	}
	for _, it := range params.Items {
		item := &stripe.SubscriptionSchedulePhaseItem{}
		if it.Price != nil {
			item.Price = &stripe.Price{ID: *it.Price}
		}
		if it.Quantity != nil {
			item.Quantity = *it.Quantity
		}
		phase.Items = append(phase.Items, item)
	}
	if params.BillingThresholds != nil {
		phase.BillingThresholds = &stripe.SubscriptionSchedulePhaseBillingThresholds{}
		if params.BillingThresholds.AmountGTE != nil {
			phase.BillingThresholds.AmountGTE = *params.BillingThresholds.AmountGTE
		}
		if params.BillingThresholds.ResetBillingCycleAnchor != nil {
			phase.BillingThresholds.ResetBillingCycleAnchor = *params.BillingThresholds.ResetBillingCycleAnchor
		}
	}
	return phase
}
