package service

import (
	"context"

	"github.com/stripe/stripe-go/v82"

	"github.com/vidinfra/planshift/internal/domain/price"
	"github.com/vidinfra/planshift/internal/domain/subscription"
	ierr "github.com/vidinfra/planshift/internal/errors"
	provider "github.com/vidinfra/planshift/internal/stripe"
	"github.com/vidinfra/planshift/internal/types"
)

// ScheduleKind tags the schedule state of a subscription
type ScheduleKind int

const (
	// ScheduleNone means no schedule is attached
	ScheduleNone ScheduleKind = iota
	// ScheduleNoNext means a schedule exists with only a current phase
	ScheduleNoNext
	// ScheduleWithNext means a schedule exists with a deferred phase
	ScheduleWithNext
)

// ScheduleState is the loaded schedule of a subscription. The tag
// makes a next phase without a schedule unrepresentable.
type ScheduleState struct {
	Kind     ScheduleKind
	Schedule *stripe.SubscriptionSchedule
	Current  *stripe.SubscriptionSchedulePhase
	Next     *stripe.SubscriptionSchedulePhase
}

func (st ScheduleState) HasSchedule() bool {
	return st.Kind != ScheduleNone
}

func (st ScheduleState) HasNext() bool {
	return st.Kind == ScheduleWithNext
}

// phasePrices is the target price pair and seat count of one phase leg
type phasePrices struct {
	LicensedPriceID string
	MeteredPriceID  string
	Seats           int64
}

// subscriptionItemUpdate describes an immediate item swap on the live
// subscription
type subscriptionItemUpdate struct {
	StripeSubscriptionID string
	LicensedItemID       string
	MeteredItemID        string
	LicensedPriceID      string
	MeteredPriceID       string
	Seats                int64
	Anchor               types.BillingCycleAnchor
	Proration            types.ProrationBehavior
	Metadata             types.Metadata
}

// schedulePhaseUpdate carries the rebuilt phases pushed in one
// schedule replacement
type schedulePhaseUpdate struct {
	Subscription *stripe.Subscription
	ScheduleID   string
	Current      *stripe.SubscriptionScheduleUpdatePhaseParams
	Next         *stripe.SubscriptionScheduleUpdatePhaseParams
}

// phaseUpdates is the immutable result of rebuilding both editable
// phases for a metered switch
type phaseUpdates struct {
	Current *stripe.SubscriptionScheduleUpdatePhaseParams
	Next    *stripe.SubscriptionScheduleUpdatePhaseParams
}

// TransitionService runs plan, interval, and metered tier switches
// against the provider, deciding immediate versus deferred mutations
// and keeping the local mirror in sync after each one.
type TransitionService interface {
	// ChangePlan switches to the opposite plan of the PRO/ENTERPRISE
	// pair. Upgrades apply immediately with prorations; downgrades are
	// deferred to the next period via a scheduled phase.
	ChangePlan(ctx context.Context, workspaceID string) error

	// ChangeInterval switches to the opposite billing interval.
	// Month to year applies immediately and re-anchors the billing
	// cycle; year to month is deferred.
	ChangeInterval(ctx context.Context, workspaceID string) error

	// ChangeMeteredPrice switches the metered usage tier. Cap upgrades
	// swap the item immediately without proration; downgrades are
	// deferred.
	ChangeMeteredPrice(ctx context.Context, workspaceID string, targetMeteredPriceID string) error

	// CancelSwitchPlan cancels a pending plan downgrade by re-targeting
	// the current plan
	CancelSwitchPlan(ctx context.Context, workspaceID string) error

	// CancelSwitchInterval cancels a pending interval downgrade
	CancelSwitchInterval(ctx context.Context, workspaceID string) error

	// CancelSwitchMeteredPrice cancels a pending metered tier switch by
	// re-targeting the currently active metered price
	CancelSwitchMeteredPrice(ctx context.Context, workspaceID string) error
}

type transitionService struct {
	ServiceParams
	phase    PhaseService
	resolver PriceResolver
	sync     SyncService
	subs     SubscriptionService
}

// NewTransitionService creates the transition engine
func NewTransitionService(params ServiceParams, phase PhaseService, resolver PriceResolver, syncSvc SyncService, subs SubscriptionService) TransitionService {
	return &transitionService{
		ServiceParams: params,
		phase:         phase,
		resolver:      resolver,
		sync:          syncSvc,
		subs:          subs,
	}
}

func (s *transitionService) ChangePlan(ctx context.Context, workspaceID string) error {
	mirror, err := s.subs.GetCurrentSubscriptionOrFail(ctx, subscription.Criteria{WorkspaceID: workspaceID})
	if err != nil {
		return err
	}

	licensedItem, err := mirror.LicensedItemOrFail()
	if err != nil {
		return err
	}

	targetPlan, err := types.OppositePlan(licensedItem.PlanKey)
	if err != nil {
		return err
	}

	return s.setTargetPlan(ctx, mirror.StripeSubscriptionID, targetPlan)
}

func (s *transitionService) ChangeInterval(ctx context.Context, workspaceID string) error {
	mirror, err := s.subs.GetCurrentSubscriptionOrFail(ctx, subscription.Criteria{WorkspaceID: workspaceID})
	if err != nil {
		return err
	}

	targetInterval, err := types.OppositeInterval(mirror.Interval)
	if err != nil {
		return err
	}

	return s.setTargetInterval(ctx, mirror, targetInterval)
}

func (s *transitionService) CancelSwitchPlan(ctx context.Context, workspaceID string) error {
	mirror, err := s.subs.GetCurrentSubscriptionOrFail(ctx, subscription.Criteria{WorkspaceID: workspaceID})
	if err != nil {
		return err
	}
	return s.setTargetPlan(ctx, mirror.StripeSubscriptionID, types.PlanKeyEnterprise)
}

func (s *transitionService) CancelSwitchInterval(ctx context.Context, workspaceID string) error {
	mirror, err := s.subs.GetCurrentSubscriptionOrFail(ctx, subscription.Criteria{WorkspaceID: workspaceID})
	if err != nil {
		return err
	}
	return s.setTargetInterval(ctx, mirror, types.BillingIntervalYear)
}

func (s *transitionService) CancelSwitchMeteredPrice(ctx context.Context, workspaceID string) error {
	mirror, err := s.subs.GetCurrentSubscriptionOrFail(ctx, subscription.Criteria{WorkspaceID: workspaceID})
	if err != nil {
		return err
	}

	sub, _, err := s.loadSchedule(ctx, mirror.StripeSubscriptionID)
	if err != nil {
		return err
	}

	currentDetails, err := s.phase.DetailsFromSubscription(ctx, sub)
	if err != nil {
		return err
	}

	return s.ChangeMeteredPrice(ctx, workspaceID, currentDetails.MeteredPrice.StripePriceID)
}

// loadSchedule fetches the live subscription with its schedule and
// extracts the editable phases. It never creates a schedule.
func (s *transitionService) loadSchedule(ctx context.Context, stripeSubscriptionID string) (*stripe.Subscription, ScheduleState, error) {
	sub, err := s.ProviderScheduleSvc.GetSubscriptionWithSchedule(ctx, stripeSubscriptionID)
	if err != nil {
		return nil, ScheduleState{}, err
	}

	if sub.Schedule == nil {
		return sub, ScheduleState{Kind: ScheduleNone}, nil
	}

	current, next := s.ProviderScheduleSvc.CurrentAndNextPhases(sub.Schedule)
	state := ScheduleState{
		Kind:     ScheduleNoNext,
		Schedule: sub.Schedule,
		Current:  current,
		Next:     next,
	}
	if next != nil {
		state.Kind = ScheduleWithNext
	}

	return sub, state, nil
}

// currentPeriodEnd reads the close of the running billing period from
// the licensed item. Deferred phases start here.
func currentPeriodEnd(sub *stripe.Subscription) int64 {
	if sub.Items == nil || len(sub.Items.Data) == 0 {
		return 0
	}
	for _, it := range sub.Items.Data {
		if it.Quantity > 0 {
			return it.CurrentPeriodEnd
		}
	}
	return sub.Items.Data[0].CurrentPeriodEnd
}

func (s *transitionService) setTargetInterval(ctx context.Context, mirror *subscription.Subscription, targetInterval types.BillingInterval) error {
	sub, state, err := s.loadSchedule(ctx, mirror.StripeSubscriptionID)
	if err != nil {
		return err
	}

	currentDetails, err := s.phase.DetailsFromSubscription(ctx, sub)
	if err != nil {
		return err
	}

	currentInterval := currentDetails.Interval
	planKey := currentDetails.PlanKey
	seats := currentDetails.Seats
	currentMeteredPriceID := currentDetails.MeteredPrice.StripePriceID

	// Case A: already on the target interval. A divergent next phase
	// is corrected in place using its own plan and metered context.
	if currentInterval == targetInterval {
		if !state.HasNext() {
			return nil
		}

		nextDetails, err := s.phase.DetailsFromPhase(ctx, state.Next)
		if err != nil {
			return err
		}

		if nextDetails.Interval != targetInterval {
			resolved, err := s.resolver.ResolveLicensedAndMetered(ctx, ResolveParams{
				Interval:       targetInterval,
				PlanKey:        nextDetails.PlanKey,
				MeteredPriceID: nextDetails.MeteredPrice.StripePriceID,
				UpdateType:     types.PriceUpdateTypeInterval,
			})
			if err != nil {
				return err
			}

			return s.downgradeDeferred(ctx, mirror.StripeSubscriptionID, phasePrices{
				LicensedPriceID: resolved.Licensed.StripePriceID,
				MeteredPriceID:  resolved.Metered.StripePriceID,
				Seats:           nextDetails.Seats,
			})
		}

		return nil
	}

	// Case B: month to year applies now with prorations and a fresh
	// billing cycle anchor.
	if currentInterval == types.BillingIntervalMonth && targetInterval == types.BillingIntervalYear {
		if mirror.Status == types.SubscriptionStatusTrialing {
			return ierr.NewError("interval cannot be changed from month to year while trialing").
				WithHint("End the trial before switching to yearly billing").
				Mark(ierr.ErrNotSwitchable)
		}

		resolved, err := s.resolver.ResolveLicensedAndMetered(ctx, ResolveParams{
			Interval:       types.BillingIntervalYear,
			PlanKey:        planKey,
			MeteredPriceID: currentMeteredPriceID,
			UpdateType:     types.PriceUpdateTypeInterval,
		})
		if err != nil {
			return err
		}

		if err := s.upgradeIntervalNowWithReanchor(ctx, mirror.StripeSubscriptionID, phasePrices{
			LicensedPriceID: resolved.Licensed.StripePriceID,
			MeteredPriceID:  resolved.Metered.StripePriceID,
			Seats:           seats,
		}); err != nil {
			return err
		}

		// Re-anchoring rewrites phase boundaries; reload before
		// rebuilding any surviving next phase onto the new period.
		reloadedSub, reloadedState, err := s.loadSchedule(ctx, mirror.StripeSubscriptionID)
		if err != nil {
			return err
		}

		if reloadedState.HasNext() && reloadedState.Current != nil {
			reloadedNext, err := s.phase.DetailsFromPhase(ctx, reloadedState.Next)
			if err != nil {
				return err
			}

			mappedNext, err := s.resolver.ResolveLicensedAndMetered(ctx, ResolveParams{
				Interval:       types.BillingIntervalYear,
				PlanKey:        reloadedNext.PlanKey,
				MeteredPriceID: reloadedNext.MeteredPrice.StripePriceID,
				UpdateType:     types.PriceUpdateTypeInterval,
			})
			if err != nil {
				return err
			}

			currentParams := s.phase.ToUpdateParams(reloadedState.Current)
			nextParams, err := s.phase.BuildPhaseParams(ctx, &stripe.SubscriptionScheduleUpdatePhaseParams{
				StartDate: stripe.Int64(currentPeriodEnd(reloadedSub)),
				Items:     currentParams.Items,
			}, mappedNext.Licensed.StripePriceID, reloadedNext.Seats, mappedNext.Metered.StripePriceID)
			if err != nil {
				return err
			}

			return s.updateSchedulePhases(ctx, schedulePhaseUpdate{
				Subscription: reloadedSub,
				ScheduleID:   reloadedState.Schedule.ID,
				Current:      currentParams,
				Next:         nextParams,
			})
		}

		return nil
	}

	// Case C: year to month is always deferred to period end.
	if currentInterval == types.BillingIntervalYear && targetInterval == types.BillingIntervalMonth {
		nextPlanKey := planKey
		nextMeteredPriceID := currentMeteredPriceID
		if state.HasNext() {
			nextDetails, err := s.phase.DetailsFromPhase(ctx, state.Next)
			if err != nil {
				return err
			}
			nextPlanKey = nextDetails.PlanKey
			nextMeteredPriceID = nextDetails.MeteredPrice.StripePriceID
		}

		resolved, err := s.resolver.ResolveLicensedAndMetered(ctx, ResolveParams{
			Interval:       types.BillingIntervalMonth,
			PlanKey:        nextPlanKey,
			MeteredPriceID: nextMeteredPriceID,
			UpdateType:     types.PriceUpdateTypeInterval,
		})
		if err != nil {
			return err
		}

		return s.downgradeDeferred(ctx, mirror.StripeSubscriptionID, phasePrices{
			LicensedPriceID: resolved.Licensed.StripePriceID,
			MeteredPriceID:  resolved.Metered.StripePriceID,
			Seats:           seats,
		})
	}

	return ierr.NewErrorf("unhandled interval transition from %s to %s", currentInterval, targetInterval).
		WithHint("Only month and year intervals can be switched").
		Mark(ierr.ErrNotSwitchable)
}

func (s *transitionService) setTargetPlan(ctx context.Context, stripeSubscriptionID string, targetPlanKey types.PlanKey) error {
	sub, state, err := s.loadSchedule(ctx, stripeSubscriptionID)
	if err != nil {
		return err
	}

	currentDetails, err := s.phase.DetailsFromSubscription(ctx, sub)
	if err != nil {
		return err
	}

	currentPlan := currentDetails.PlanKey
	interval := currentDetails.Interval
	seats := currentDetails.Seats
	currentMeteredPriceID := currentDetails.MeteredPrice.StripePriceID

	// Case A: already on the target plan. A divergent next phase is
	// corrected in place, keeping its own interval and seat count.
	if currentPlan == targetPlanKey {
		if !state.HasNext() {
			return nil
		}

		nextDetails, err := s.phase.DetailsFromPhase(ctx, state.Next)
		if err != nil {
			return err
		}

		if nextDetails.PlanKey != targetPlanKey {
			resolved, err := s.resolver.ResolveLicensedAndMetered(ctx, ResolveParams{
				Interval:       nextDetails.Interval,
				PlanKey:        targetPlanKey,
				MeteredPriceID: nextDetails.MeteredPrice.StripePriceID,
				UpdateType:     types.PriceUpdateTypePlan,
			})
			if err != nil {
				return err
			}

			return s.downgradeDeferred(ctx, stripeSubscriptionID, phasePrices{
				LicensedPriceID: resolved.Licensed.StripePriceID,
				MeteredPriceID:  resolved.Metered.StripePriceID,
				Seats:           nextDetails.Seats,
			})
		}

		return nil
	}

	// Case B: PRO to ENTERPRISE applies now with prorations.
	if currentPlan == types.PlanKeyPro && targetPlanKey == types.PlanKeyEnterprise {
		resolved, err := s.resolver.ResolveLicensedAndMetered(ctx, ResolveParams{
			Interval:       interval,
			PlanKey:        targetPlanKey,
			MeteredPriceID: currentMeteredPriceID,
			UpdateType:     types.PriceUpdateTypePlan,
		})
		if err != nil {
			return err
		}

		if err := s.upgradePlanNow(ctx, stripeSubscriptionID, phasePrices{
			LicensedPriceID: resolved.Licensed.StripePriceID,
			MeteredPriceID:  resolved.Metered.StripePriceID,
			Seats:           seats,
		}, targetPlanKey); err != nil {
			return err
		}

		reloadedSub, reloadedState, err := s.loadSchedule(ctx, stripeSubscriptionID)
		if err != nil {
			return err
		}

		if reloadedState.HasNext() && reloadedState.Current != nil {
			nextDetails, err := s.phase.DetailsFromPhase(ctx, reloadedState.Next)
			if err != nil {
				return err
			}

			mappedNext, err := s.resolver.ResolveLicensedAndMetered(ctx, ResolveParams{
				Interval:       nextDetails.Interval,
				PlanKey:        targetPlanKey,
				MeteredPriceID: nextDetails.MeteredPrice.StripePriceID,
				UpdateType:     types.PriceUpdateTypePlan,
			})
			if err != nil {
				return err
			}

			currentParams := s.phase.ToUpdateParams(reloadedState.Current)
			nextParams, err := s.phase.BuildPhaseParams(ctx, &stripe.SubscriptionScheduleUpdatePhaseParams{
				StartDate: stripe.Int64(currentPeriodEnd(reloadedSub)),
				Items:     currentParams.Items,
			}, mappedNext.Licensed.StripePriceID, nextDetails.Seats, mappedNext.Metered.StripePriceID)
			if err != nil {
				return err
			}

			return s.updateSchedulePhases(ctx, schedulePhaseUpdate{
				Subscription: reloadedSub,
				ScheduleID:   reloadedState.Schedule.ID,
				Current:      currentParams,
				Next:         nextParams,
			})
		}

		return nil
	}

	// Case C: ENTERPRISE to PRO is always deferred to period end,
	// preserving the interval and metered tier any existing next
	// phase committed to.
	if currentPlan == types.PlanKeyEnterprise && targetPlanKey == types.PlanKeyPro {
		preservedInterval := interval
		preservedMeteredPriceID := currentMeteredPriceID
		if state.HasNext() {
			nextDetails, err := s.phase.DetailsFromPhase(ctx, state.Next)
			if err != nil {
				return err
			}
			preservedInterval = nextDetails.Interval
			preservedMeteredPriceID = nextDetails.MeteredPrice.StripePriceID
		}

		resolved, err := s.resolver.ResolveLicensedAndMetered(ctx, ResolveParams{
			Interval:       preservedInterval,
			PlanKey:        targetPlanKey,
			MeteredPriceID: preservedMeteredPriceID,
			UpdateType:     types.PriceUpdateTypePlan,
		})
		if err != nil {
			return err
		}

		return s.downgradeDeferred(ctx, stripeSubscriptionID, phasePrices{
			LicensedPriceID: resolved.Licensed.StripePriceID,
			MeteredPriceID:  resolved.Metered.StripePriceID,
			Seats:           seats,
		})
	}

	return ierr.NewErrorf("unhandled plan transition from %s to %s", currentPlan, targetPlanKey).
		WithHint("Only PRO and ENTERPRISE plans can be switched").
		Mark(ierr.ErrNotSwitchable)
}

func (s *transitionService) ChangeMeteredPrice(ctx context.Context, workspaceID string, targetMeteredPriceID string) error {
	st, err := s.loadMeteredSwitchState(ctx, workspaceID, targetMeteredPriceID)
	if err != nil {
		return err
	}

	// Equal caps are not upgrades; only a strictly greater cap swaps
	// the item immediately.
	isUpgrade := st.targetCap > st.currentCap

	// A downgrade with no schedule defers onto a freshly created one.
	if !isUpgrade && !st.state.HasSchedule() {
		return s.downgradeDeferred(ctx, st.mirror.StripeSubscriptionID, phasePrices{
			LicensedPriceID: st.currentDetails.LicensedPrice.StripePriceID,
			MeteredPriceID:  st.mappedNextMeteredID,
			Seats:           st.currentDetails.Seats,
		})
	}

	sub := st.sub
	state := st.state

	if isUpgrade {
		if err := s.replaceCurrentMeteredItem(ctx, st.mirror, st.mappedCurrentMeteredID); err != nil {
			return err
		}

		// The provider may have replaced the metered item; re-read
		// before rebuilding the phases.
		sub, state, err = s.loadSchedule(ctx, st.mirror.StripeSubscriptionID)
		if err != nil {
			return err
		}
	}

	if state.Kind == ScheduleNone {
		// Nothing scheduled to reconcile after the immediate swap.
		return s.refreshAndSync(ctx, st.mirror.WorkspaceID, st.mirror.StripeSubscriptionID)
	}

	updates, err := s.buildPhaseUpdates(ctx, state, st.currentDetails, st.mappedCurrentMeteredID, st.mappedNextMeteredID, currentPeriodEnd(sub), isUpgrade)
	if err != nil {
		return err
	}

	next := s.dedupeNextPhase(ctx, updates.Current, updates.Next)
	current := updates.Current
	if current != nil {
		current.EndDate = stripe.Int64(currentPeriodEnd(sub))
	}

	if current == nil && next != nil {
		return ierr.NewError("invalid schedule update: next phase cannot be defined without current phase").
			WithHint("A deferred phase requires a current phase to follow").
			Mark(ierr.ErrInvalidState)
	}

	if state.HasSchedule() && next == nil {
		if err := s.ProviderScheduleSvc.Release(ctx, state.Schedule.ID); err != nil {
			return err
		}
	}

	if current != nil && next != nil {
		scheduleID := ""
		if state.HasSchedule() {
			scheduleID = state.Schedule.ID
		} else {
			created, err := s.ProviderScheduleSvc.CreateScheduleFromSubscription(ctx, sub.ID)
			if err != nil {
				return err
			}
			scheduleID = created.ID
		}

		if _, err := s.ProviderScheduleSvc.ReplaceEditablePhases(ctx, scheduleID, provider.PhaseReplacement{
			Current: current,
			Next:    next,
		}); err != nil {
			return err
		}
	}

	return s.refreshAndSync(ctx, st.mirror.WorkspaceID, st.mirror.StripeSubscriptionID)
}

// meteredSwitchState bundles everything a metered tier switch decides
// on, loaded once up front
type meteredSwitchState struct {
	mirror                 *subscription.Subscription
	sub                    *stripe.Subscription
	state                  ScheduleState
	currentDetails         *PhaseDetails
	nextDetails            *PhaseDetails
	currentCap             int64
	targetCap              int64
	mappedCurrentMeteredID string
	mappedNextMeteredID    string
}

func (s *transitionService) loadMeteredSwitchState(ctx context.Context, workspaceID string, targetMeteredPriceID string) (*meteredSwitchState, error) {
	mirror, err := s.subs.GetCurrentSubscriptionOrFail(ctx, subscription.Criteria{WorkspaceID: workspaceID})
	if err != nil {
		return nil, err
	}

	sub, state, err := s.loadSchedule(ctx, mirror.StripeSubscriptionID)
	if err != nil {
		return nil, err
	}

	currentDetails, err := s.phase.DetailsFromSubscription(ctx, sub)
	if err != nil {
		return nil, err
	}

	var nextDetails *PhaseDetails
	if state.HasNext() {
		nextDetails, err = s.phase.DetailsFromPhase(ctx, state.Next)
		if err != nil {
			return nil, err
		}
	}

	currentCap, err := currentDetails.MeteredPrice.Cap()
	if err != nil {
		return nil, err
	}

	targetPrice, err := s.resolver.MeteredPriceByID(ctx, targetMeteredPriceID)
	if err != nil {
		return nil, err
	}
	targetCap, err := targetPrice.Cap()
	if err != nil {
		return nil, err
	}

	mappedCurrentMeteredID, err := s.mapTargetMeteredForPhase(ctx, currentDetails.PlanKey, currentDetails.Interval, targetMeteredPriceID)
	if err != nil {
		return nil, err
	}

	nextPlanKey := currentDetails.PlanKey
	nextInterval := currentDetails.Interval
	if nextDetails != nil {
		nextPlanKey = nextDetails.PlanKey
		nextInterval = nextDetails.Interval
	}
	mappedNextMeteredID, err := s.mapTargetMeteredForPhase(ctx, nextPlanKey, nextInterval, targetMeteredPriceID)
	if err != nil {
		return nil, err
	}

	return &meteredSwitchState{
		mirror:                 mirror,
		sub:                    sub,
		state:                  state,
		currentDetails:         currentDetails,
		nextDetails:            nextDetails,
		currentCap:             currentCap,
		targetCap:              targetCap,
		mappedCurrentMeteredID: mappedCurrentMeteredID,
		mappedNextMeteredID:    mappedNextMeteredID,
	}, nil
}

// mapTargetMeteredForPhase maps the requested metered price onto the
// catalog of one phase's plan and interval
func (s *transitionService) mapTargetMeteredForPhase(ctx context.Context, planKey types.PlanKey, interval types.BillingInterval, targetMeteredPriceID string) (string, error) {
	prices, err := s.Catalog.GetProductPrices(ctx, price.Filter{PlanKey: planKey, Interval: interval})
	if err != nil {
		return "", err
	}

	mapped, err := s.resolver.ResolveForMeteredSwitch(ctx, prices, targetMeteredPriceID, interval)
	if err != nil {
		return "", err
	}

	return mapped.StripePriceID, nil
}

// replaceCurrentMeteredItem swaps the live metered item without
// proration and syncs the mirror
func (s *transitionService) replaceCurrentMeteredItem(ctx context.Context, mirror *subscription.Subscription, newMeteredPriceID string) error {
	licensedItem, err := mirror.LicensedItemOrFail()
	if err != nil {
		return err
	}
	meteredItem, err := mirror.MeteredItemOrFail()
	if err != nil {
		return err
	}

	updated, err := s.updateSubscriptionItems(ctx, subscriptionItemUpdate{
		StripeSubscriptionID: mirror.StripeSubscriptionID,
		LicensedItemID:       licensedItem.StripeSubscriptionItemID,
		MeteredItemID:        meteredItem.StripeSubscriptionItemID,
		LicensedPriceID:      licensedItem.StripePriceID,
		MeteredPriceID:       newMeteredPriceID,
		Seats:                licensedItem.Seats(),
		Proration:            types.ProrationBehaviorNone,
	})
	if err != nil {
		return err
	}

	_, err = s.sync.SyncSubscription(ctx, mirror.WorkspaceID, updated)
	return err
}

func (s *transitionService) buildPhaseUpdates(ctx context.Context, state ScheduleState, currentDetails *PhaseDetails, mappedCurrentMeteredID, mappedNextMeteredID string, periodEnd int64, mutateCurrentNow bool) (phaseUpdates, error) {
	var currentSnapshot *stripe.SubscriptionScheduleUpdatePhaseParams
	if state.Current != nil {
		currentSnapshot = s.phase.ToUpdateParams(state.Current)
	}

	currentLicensedID := currentDetails.LicensedPrice.StripePriceID
	if currentSnapshot != nil {
		id, err := s.phase.LicensedPriceIDOf(currentSnapshot)
		if err != nil {
			return phaseUpdates{}, err
		}
		currentLicensedID = id
	}

	var nextSnapshot *stripe.SubscriptionScheduleUpdatePhaseParams
	var nextDetails *PhaseDetails
	if state.Next != nil {
		nextSnapshot = s.phase.ToUpdateParams(state.Next)
		details, err := s.phase.DetailsFromPhase(ctx, state.Next)
		if err != nil {
			return phaseUpdates{}, err
		}
		nextDetails = details
	}

	nextLicensedID := currentLicensedID
	if nextSnapshot != nil {
		id, err := s.phase.LicensedPriceIDOf(nextSnapshot)
		if err != nil {
			return phaseUpdates{}, err
		}
		nextLicensedID = id
	}

	var currentMutated *stripe.SubscriptionScheduleUpdatePhaseParams
	if currentSnapshot != nil {
		if mutateCurrentNow {
			built, err := s.phase.BuildPhaseParams(ctx, currentSnapshot, currentLicensedID, currentDetails.Seats, mappedCurrentMeteredID)
			if err != nil {
				return phaseUpdates{}, err
			}
			currentMutated = built
		} else {
			currentMutated = currentSnapshot
		}
	}

	var baseItems []*stripe.SubscriptionScheduleUpdatePhaseItemParams
	switch {
	case currentSnapshot != nil:
		baseItems = currentSnapshot.Items
	case nextSnapshot != nil:
		baseItems = nextSnapshot.Items
	default:
		return phaseUpdates{}, ierr.NewError("cannot build next phase: no items found on current or next phase payload").
			WithHint("The schedule carries no editable phase items").
			Mark(ierr.ErrNotFound)
	}

	nextSeats := currentDetails.Seats
	if nextDetails != nil {
		nextSeats = nextDetails.Seats
	}

	nextMutated, err := s.phase.BuildPhaseParams(ctx, &stripe.SubscriptionScheduleUpdatePhaseParams{
		StartDate: stripe.Int64(periodEnd),
		Items:     baseItems,
	}, nextLicensedID, nextSeats, mappedNextMeteredID)
	if err != nil {
		return phaseUpdates{}, err
	}

	return phaseUpdates{Current: currentMutated, Next: nextMutated}, nil
}

// dedupeNextPhase drops the next phase when it resolves to the same
// signature as the current one
func (s *transitionService) dedupeNextPhase(ctx context.Context, current, next *stripe.SubscriptionScheduleUpdatePhaseParams) *stripe.SubscriptionScheduleUpdatePhaseParams {
	if current != nil && next != nil && s.phase.SamePhaseSignature(ctx, current, next) {
		return nil
	}
	return next
}

// updateSubscriptionItems applies an immediate item swap carrying the
// new metered price's billing thresholds
func (s *transitionService) updateSubscriptionItems(ctx context.Context, in subscriptionItemUpdate) (*stripe.Subscription, error) {
	thresholds, err := s.Catalog.GetBillingThresholdsByMeterPriceID(ctx, in.MeteredPriceID)
	if err != nil {
		return nil, err
	}

	return s.ProviderSubscriptionSvc.UpdateSubscription(ctx, in.StripeSubscriptionID, provider.UpdateSubscriptionParams{
		Items: []provider.ItemChange{
			{ItemID: in.LicensedItemID, PriceID: in.LicensedPriceID, Quantity: stripe.Int64(in.Seats)},
			{ItemID: in.MeteredItemID, PriceID: in.MeteredPriceID},
		},
		Anchor:            in.Anchor,
		Proration:         in.Proration,
		Metadata:          in.Metadata,
		BillingThresholds: thresholds,
	})
}

// upgradePlanNow applies a plan upgrade immediately with prorations
// and stamps the plan metadata
func (s *transitionService) upgradePlanNow(ctx context.Context, stripeSubscriptionID string, prices phasePrices, planMeta types.PlanKey) error {
	mirror, err := s.mirrorWithItems(ctx, stripeSubscriptionID)
	if err != nil {
		return err
	}

	licensedItem, err := mirror.LicensedItemOrFail()
	if err != nil {
		return err
	}
	meteredItem, err := mirror.MeteredItemOrFail()
	if err != nil {
		return err
	}

	metadata := types.Metadata(mirror.Metadata).Merge(types.Metadata{"plan": planMeta.String()})

	updated, err := s.updateSubscriptionItems(ctx, subscriptionItemUpdate{
		StripeSubscriptionID: stripeSubscriptionID,
		LicensedItemID:       licensedItem.StripeSubscriptionItemID,
		MeteredItemID:        meteredItem.StripeSubscriptionItemID,
		LicensedPriceID:      prices.LicensedPriceID,
		MeteredPriceID:       prices.MeteredPriceID,
		Seats:                prices.Seats,
		Proration:            types.ProrationBehaviorCreateProrations,
		Metadata:             metadata,
	})
	if err != nil {
		return err
	}

	_, err = s.sync.SyncSubscription(ctx, mirror.WorkspaceID, updated)
	return err
}

// upgradeIntervalNowWithReanchor applies an interval upgrade
// immediately, re-anchoring the billing cycle to now
func (s *transitionService) upgradeIntervalNowWithReanchor(ctx context.Context, stripeSubscriptionID string, prices phasePrices) error {
	mirror, err := s.mirrorWithItems(ctx, stripeSubscriptionID)
	if err != nil {
		return err
	}

	licensedItem, err := mirror.LicensedItemOrFail()
	if err != nil {
		return err
	}
	meteredItem, err := mirror.MeteredItemOrFail()
	if err != nil {
		return err
	}

	updated, err := s.updateSubscriptionItems(ctx, subscriptionItemUpdate{
		StripeSubscriptionID: stripeSubscriptionID,
		LicensedItemID:       licensedItem.StripeSubscriptionItemID,
		MeteredItemID:        meteredItem.StripeSubscriptionItemID,
		LicensedPriceID:      prices.LicensedPriceID,
		MeteredPriceID:       prices.MeteredPriceID,
		Seats:                prices.Seats,
		Anchor:               types.BillingCycleAnchorNow,
		Proration:            types.ProrationBehaviorCreateProrations,
	})
	if err != nil {
		return err
	}

	_, err = s.sync.SyncSubscription(ctx, mirror.WorkspaceID, updated)
	return err
}

// downgradeDeferred freezes the current phase and writes a next phase
// carrying the target prices, creating a schedule first when none is
// attached. Nothing changes until period end.
func (s *transitionService) downgradeDeferred(ctx context.Context, stripeSubscriptionID string, next phasePrices) error {
	sub, err := s.ProviderScheduleSvc.GetSubscriptionWithSchedule(ctx, stripeSubscriptionID)
	if err != nil {
		return err
	}

	schedule, err := s.ProviderScheduleSvc.FindOrCreateSubscriptionSchedule(ctx, sub)
	if err != nil {
		return err
	}

	current, _ := s.ProviderScheduleSvc.CurrentAndNextPhases(schedule)
	if current == nil {
		return ierr.NewError("no editable phase found for current subscription").
			WithHintf("Schedule %s has no phase covering now", schedule.ID).
			Mark(ierr.ErrNotFound)
	}

	currentParams := s.phase.ToUpdateParams(current)
	nextParams, err := s.phase.BuildPhaseParams(ctx, &stripe.SubscriptionScheduleUpdatePhaseParams{
		StartDate: stripe.Int64(currentPeriodEnd(sub)),
		Items:     currentParams.Items,
	}, next.LicensedPriceID, next.Seats, next.MeteredPriceID)
	if err != nil {
		return err
	}

	return s.updateSchedulePhases(ctx, schedulePhaseUpdate{
		Subscription: sub,
		ScheduleID:   schedule.ID,
		Current:      currentParams,
		Next:         nextParams,
	})
}

// updateSchedulePhases end-dates the current phase at period end,
// dedupes the next phase, and pushes both in one replacement. Current
// and next are replaced together or not at all; when nothing deferred
// remains the schedule is released instead.
func (s *transitionService) updateSchedulePhases(ctx context.Context, in schedulePhaseUpdate) error {
	if in.Current == nil {
		return ierr.NewError("invalid schedule update: next phase cannot be defined without current phase").
			WithHint("A deferred phase requires a current phase to follow").
			Mark(ierr.ErrInvalidState)
	}

	currentToPersist := *in.Current
	currentToPersist.EndDate = stripe.Int64(currentPeriodEnd(in.Subscription))

	next := in.Next
	if next != nil && s.phase.SamePhaseSignature(ctx, in.Current, next) {
		next = nil
	}

	if next == nil {
		if err := s.ProviderScheduleSvc.Release(ctx, in.ScheduleID); err != nil {
			return err
		}
	} else {
		if _, err := s.ProviderScheduleSvc.ReplaceEditablePhases(ctx, in.ScheduleID, provider.PhaseReplacement{
			Current: &currentToPersist,
			Next:    next,
		}); err != nil {
			return err
		}
	}

	mirror, err := s.SubRepo.GetByStripeSubscriptionID(ctx, in.Subscription.ID)
	if err != nil {
		return err
	}

	return s.refreshAndSync(ctx, mirror.WorkspaceID, in.Subscription.ID)
}

// refreshAndSync re-reads the provider state and pushes it into the
// mirror. Provider-derived fields are never predicted locally.
func (s *transitionService) refreshAndSync(ctx context.Context, workspaceID, stripeSubscriptionID string) error {
	refreshed, err := s.ProviderScheduleSvc.GetSubscriptionWithSchedule(ctx, stripeSubscriptionID)
	if err != nil {
		return err
	}

	_, err = s.sync.SyncSubscription(ctx, workspaceID, refreshed)
	return err
}

// mirrorWithItems loads the mirror row with its items attached
func (s *transitionService) mirrorWithItems(ctx context.Context, stripeSubscriptionID string) (*subscription.Subscription, error) {
	mirror, err := s.SubRepo.GetByStripeSubscriptionID(ctx, stripeSubscriptionID)
	if err != nil {
		return nil, err
	}

	items, err := s.SubItemRepo.ListBySubscriptionID(ctx, mirror.ID)
	if err != nil {
		return nil, err
	}
	mirror.Items = items

	return mirror, nil
}
