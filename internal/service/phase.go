package service

import (
	"context"

	"github.com/samber/lo"
	"github.com/stripe/stripe-go/v82"

	"github.com/vidinfra/planshift/internal/catalog"
	"github.com/vidinfra/planshift/internal/domain/price"
	ierr "github.com/vidinfra/planshift/internal/errors"
	"github.com/vidinfra/planshift/internal/logger"
	"github.com/vidinfra/planshift/internal/types"
)

// PhaseDetails is the decoded view of a schedule phase or a live
// subscription: its plan, interval, both catalog prices, and the
// licensed seat count.
type PhaseDetails struct {
	PlanKey       types.PlanKey
	Interval      types.BillingInterval
	LicensedPrice *price.Price
	MeteredPrice  *price.Price
	Seats         int64
}

// phaseSignature identifies a phase up to functional equality. Two
// phases with the same signature bill identically.
type phaseSignature struct {
	PlanKey        types.PlanKey
	Interval       types.BillingInterval
	MeteredPriceID string
}

// PhaseService converts provider phase objects into structured
// descriptions and back into schedule update payloads. The metered
// item is always the one carrying no quantity; that presence or
// absence is the sole discriminator.
type PhaseService interface {
	// DetailsFromPhase decodes a schedule phase into PhaseDetails
	DetailsFromPhase(ctx context.Context, phase *stripe.SubscriptionSchedulePhase) (*PhaseDetails, error)

	// DetailsFromSubscription decodes the live subscription items the
	// same way a phase is decoded
	DetailsFromSubscription(ctx context.Context, sub *stripe.Subscription) (*PhaseDetails, error)

	// ToUpdateParams projects a phase into the mutation shape with
	// price references normalized to plain ids and proration forced
	// to none
	ToUpdateParams(phase *stripe.SubscriptionSchedulePhase) *stripe.SubscriptionScheduleUpdatePhaseParams

	// BuildPhaseParams constructs a two-item phase payload carrying
	// base's start/end dates, the given licensed price at seats, the
	// given metered price, and the metered price's billing thresholds
	BuildPhaseParams(ctx context.Context, base *stripe.SubscriptionScheduleUpdatePhaseParams, licensedPriceID string, seats int64, meteredPriceID string) (*stripe.SubscriptionScheduleUpdatePhaseParams, error)

	// LicensedPriceIDOf extracts the licensed item's price id from a
	// phase payload
	LicensedPriceIDOf(phase *stripe.SubscriptionScheduleUpdatePhaseParams) (string, error)

	// SamePhaseSignature compares two phase payloads by signature.
	// Any decode failure downgrades to false, never an error; the
	// comparison is a best-effort dedup, not a correctness gate.
	SamePhaseSignature(ctx context.Context, a, b *stripe.SubscriptionScheduleUpdatePhaseParams) bool
}

type phaseService struct {
	priceRepo price.Repository
	catalog   catalog.Service
	logger    *logger.Logger
}

// NewPhaseService creates the phase codec
func NewPhaseService(params ServiceParams) PhaseService {
	return &phaseService{
		priceRepo: params.PriceRepo,
		catalog:   params.Catalog,
		logger:    params.Logger,
	}
}

func (s *phaseService) DetailsFromPhase(ctx context.Context, phase *stripe.SubscriptionSchedulePhase) (*PhaseDetails, error) {
	meteredItem, ok := lo.Find(phase.Items, func(it *stripe.SubscriptionSchedulePhaseItem) bool {
		return it.Quantity == 0
	})
	if !ok {
		return nil, ierr.NewError("metered phase item not found").
			WithHint("Phase has no item without a quantity").
			Mark(ierr.ErrNotFound)
	}

	licensedItem, ok := lo.Find(phase.Items, func(it *stripe.SubscriptionSchedulePhaseItem) bool {
		return it.Quantity > 0
	})
	if !ok {
		return nil, ierr.NewError("licensed phase item not found").
			WithHint("Phase has no item carrying a quantity").
			Mark(ierr.ErrNotFound)
	}

	return s.resolveDetails(ctx, meteredItem.Price.ID, licensedItem.Price.ID, licensedItem.Quantity)
}

func (s *phaseService) DetailsFromSubscription(ctx context.Context, sub *stripe.Subscription) (*PhaseDetails, error) {
	if sub.Items == nil {
		return nil, ierr.NewError("subscription has no items").
			WithHintf("Subscription %s carries no line items", sub.ID).
			Mark(ierr.ErrNotFound)
	}

	meteredItem, ok := lo.Find(sub.Items.Data, func(it *stripe.SubscriptionItem) bool {
		return it.Quantity == 0
	})
	if !ok {
		return nil, ierr.NewError("metered subscription item not found").
			WithHintf("Subscription %s has no item without a quantity", sub.ID).
			Mark(ierr.ErrNotFound)
	}

	licensedItem, ok := lo.Find(sub.Items.Data, func(it *stripe.SubscriptionItem) bool {
		return it.Quantity > 0
	})
	if !ok {
		return nil, ierr.NewError("licensed subscription item not found").
			WithHintf("Subscription %s has no item carrying a quantity", sub.ID).
			Mark(ierr.ErrNotFound)
	}

	return s.resolveDetails(ctx, meteredItem.Price.ID, licensedItem.Price.ID, licensedItem.Quantity)
}

func (s *phaseService) resolveDetails(ctx context.Context, meteredPriceID, licensedPriceID string, seats int64) (*PhaseDetails, error) {
	meteredPrice, err := s.priceRepo.FindByStripePriceID(ctx, meteredPriceID)
	if err != nil {
		return nil, err
	}

	licensedPrice, err := s.priceRepo.FindByStripePriceID(ctx, licensedPriceID)
	if err != nil {
		return nil, err
	}

	plan, err := s.catalog.GetPlanByPriceID(ctx, meteredPrice.StripePriceID)
	if err != nil {
		return nil, err
	}

	if seats <= 0 {
		return nil, ierr.NewError("licensed item quantity is not defined").
			WithHint("The seat based item must carry a positive quantity").
			Mark(ierr.ErrInvalidState)
	}

	return &PhaseDetails{
		PlanKey:       plan.PlanKey,
		Interval:      meteredPrice.Interval,
		LicensedPrice: licensedPrice,
		MeteredPrice:  meteredPrice,
		Seats:         seats,
	}, nil
}

func (s *phaseService) ToUpdateParams(phase *stripe.SubscriptionSchedulePhase) *stripe.SubscriptionScheduleUpdatePhaseParams {
	params := &stripe.SubscriptionScheduleUpdatePhaseParams{
		StartDate:         stripe.Int64(phase.StartDate),
		ProrationBehavior: stripe.String(string(types.ProrationBehaviorNone)),
	}
	if phase.EndDate != 0 {
		params.EndDate = stripe.Int64(phase.EndDate)
	}

	for _, it := range phase.Items {
		item := &stripe.SubscriptionScheduleUpdatePhaseItemParams{
			Price: stripe.String(it.Price.ID),
		}
		if it.Quantity > 0 {
			item.Quantity = stripe.Int64(it.Quantity)
		}
		params.Items = append(params.Items, item)
	}

	if phase.BillingThresholds != nil {
		params.BillingThresholds = &stripe.SubscriptionScheduleUpdatePhaseBillingThresholdsParams{
			AmountGTE:               stripe.Int64(phase.BillingThresholds.AmountGTE),
			ResetBillingCycleAnchor: stripe.Bool(phase.BillingThresholds.ResetBillingCycleAnchor),
		}
	}

	return params
}

func (s *phaseService) BuildPhaseParams(ctx context.Context, base *stripe.SubscriptionScheduleUpdatePhaseParams, licensedPriceID string, seats int64, meteredPriceID string) (*stripe.SubscriptionScheduleUpdatePhaseParams, error) {
	proration := stripe.String(string(types.ProrationBehaviorNone))
	if base.ProrationBehavior != nil {
		proration = base.ProrationBehavior
	}

	params := &stripe.SubscriptionScheduleUpdatePhaseParams{
		StartDate:         base.StartDate,
		EndDate:           base.EndDate,
		ProrationBehavior: proration,
		Items: []*stripe.SubscriptionScheduleUpdatePhaseItemParams{
			{Price: stripe.String(licensedPriceID), Quantity: stripe.Int64(seats)},
			{Price: stripe.String(meteredPriceID)},
		},
	}

	thresholds, err := s.catalog.GetBillingThresholdsByMeterPriceID(ctx, meteredPriceID)
	if err != nil {
		return nil, err
	}
	if thresholds != nil {
		params.BillingThresholds = &stripe.SubscriptionScheduleUpdatePhaseBillingThresholdsParams{
			AmountGTE:               stripe.Int64(thresholds.AmountGTE),
			ResetBillingCycleAnchor: stripe.Bool(thresholds.ResetBillingCycleAnchor),
		}
	}

	return params, nil
}

func (s *phaseService) LicensedPriceIDOf(phase *stripe.SubscriptionScheduleUpdatePhaseParams) (string, error) {
	licensedItem, ok := lo.Find(phase.Items, func(it *stripe.SubscriptionScheduleUpdatePhaseItemParams) bool {
		return it.Quantity != nil
	})
	if !ok || licensedItem.Price == nil {
		return "", ierr.NewError("licensed item not found in phase payload").
			WithHint("Phase payload has no item carrying a quantity").
			Mark(ierr.ErrNotFound)
	}
	return *licensedItem.Price, nil
}

func (s *phaseService) SamePhaseSignature(ctx context.Context, a, b *stripe.SubscriptionScheduleUpdatePhaseParams) bool {
	sigA, err := s.signatureOf(ctx, a)
	if err != nil {
		return false
	}
	sigB, err := s.signatureOf(ctx, b)
	if err != nil {
		return false
	}
	return sigA == sigB
}

func (s *phaseService) signatureOf(ctx context.Context, phase *stripe.SubscriptionScheduleUpdatePhaseParams) (phaseSignature, error) {
	meteredItem, ok := lo.Find(phase.Items, func(it *stripe.SubscriptionScheduleUpdatePhaseItemParams) bool {
		return it.Quantity == nil
	})
	if !ok || meteredItem.Price == nil {
		return phaseSignature{}, ierr.NewError("metered item not found in phase payload").
			WithHint("Phase payload has no item without a quantity").
			Mark(ierr.ErrNotFound)
	}

	meteredPrice, err := s.priceRepo.FindByStripePriceID(ctx, *meteredItem.Price)
	if err != nil {
		return phaseSignature{}, err
	}

	plan, err := s.catalog.GetPlanByPriceID(ctx, meteredPrice.StripePriceID)
	if err != nil {
		return phaseSignature{}, err
	}

	return phaseSignature{
		PlanKey:        plan.PlanKey,
		Interval:       meteredPrice.Interval,
		MeteredPriceID: meteredPrice.StripePriceID,
	}, nil
}
