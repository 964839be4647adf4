package service

import (
	"context"
	"time"

	"github.com/samber/lo"
	"github.com/stripe/stripe-go/v82"

	"github.com/vidinfra/planshift/internal/domain/customer"
	"github.com/vidinfra/planshift/internal/domain/price"
	"github.com/vidinfra/planshift/internal/domain/subscription"
	ierr "github.com/vidinfra/planshift/internal/errors"
	"github.com/vidinfra/planshift/internal/types"
)

// SyncService pushes provider-side subscription state into the local
// mirror. The provider owns the state; the mirror is derived and
// rebuilt from every snapshot.
type SyncService interface {
	// SyncSubscription upserts the customer, subscription, and item
	// mirror rows from a provider snapshot and returns the mirror
	// subscription
	SyncSubscription(ctx context.Context, workspaceID string, sub *stripe.Subscription) (*subscription.Subscription, error)
}

type syncService struct {
	ServiceParams
}

// NewSyncService creates the mirror sync adapter
func NewSyncService(params ServiceParams) SyncService {
	return &syncService{ServiceParams: params}
}

func (s *syncService) SyncSubscription(ctx context.Context, workspaceID string, sub *stripe.Subscription) (*subscription.Subscription, error) {
	if sub.Customer == nil || sub.Customer.ID == "" {
		return nil, ierr.NewError("subscription snapshot has no customer").
			WithHintf("Subscription %s carries no customer reference", sub.ID).
			Mark(ierr.ErrValidation)
	}

	if err := s.CustomerRepo.Upsert(ctx, &customer.Customer{
		ID:               types.GenerateUUIDWithPrefix(types.UUID_PREFIX_CUSTOMER),
		WorkspaceID:      workspaceID,
		StripeCustomerID: sub.Customer.ID,
		BaseModel:        types.GetDefaultBaseModel(),
	}); err != nil {
		return nil, err
	}

	// An unexpanded schedule reference carries only an id; re-fetch
	// the expanded form before mirroring.
	if sub.Schedule != nil && len(sub.Schedule.Phases) == 0 {
		expanded, err := s.ProviderScheduleSvc.GetSubscriptionWithSchedule(ctx, sub.ID)
		if err != nil {
			return nil, err
		}
		sub = expanded
	}

	row, err := s.subscriptionRow(ctx, workspaceID, sub)
	if err != nil {
		return nil, err
	}

	if err := s.SubRepo.Upsert(ctx, row); err != nil {
		return nil, err
	}

	mirror, err := s.SubRepo.GetByStripeSubscriptionID(ctx, sub.ID)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Subscription not found after creation").
			WithReportableDetails(map[string]any{
				"stripe_subscription_id": sub.ID,
			}).
			Mark(ierr.ErrDatabase)
	}

	items, err := s.itemRows(ctx, mirror, sub)
	if err != nil {
		return nil, err
	}

	meteredItem, ok := lo.Find(items, func(it *subscription.Item) bool {
		return it.IsMetered()
	})
	if !ok {
		return nil, ierr.NewError("metered subscription item not found in snapshot").
			WithHintf("Subscription %s has no item without a quantity", sub.ID).
			Mark(ierr.ErrNotFound)
	}

	// The provider may replace the metered item rather than update it
	// in place; drop the stale row before upserting the new one.
	existing, err := s.SubItemRepo.FindBySubscriptionAndProduct(ctx, mirror.ID, meteredItem.StripeProductID)
	if err != nil {
		return nil, err
	}
	if existing != nil && existing.StripeSubscriptionItemID != meteredItem.StripeSubscriptionItemID {
		if err := s.SubItemRepo.DeleteBySubscriptionAndProduct(ctx, mirror.ID, meteredItem.StripeProductID); err != nil {
			return nil, err
		}
	}

	for _, item := range items {
		if err := s.SubItemRepo.Upsert(ctx, item); err != nil {
			return nil, err
		}
	}
	mirror.Items = items

	s.Logger.Infow("subscription synced to database",
		"stripe_subscription_id", sub.ID,
		"workspace_id", workspaceID,
	)

	return mirror, nil
}

func (s *syncService) subscriptionRow(ctx context.Context, workspaceID string, sub *stripe.Subscription) (*subscription.Subscription, error) {
	licensedPrice, err := s.licensedMirrorPrice(ctx, sub)
	if err != nil {
		return nil, err
	}

	row := &subscription.Subscription{
		ID:                   types.GenerateUUIDWithPrefix(types.UUID_PREFIX_SUBSCRIPTION),
		WorkspaceID:          workspaceID,
		StripeCustomerID:     sub.Customer.ID,
		StripeSubscriptionID: sub.ID,
		Status:               types.SubscriptionStatus(sub.Status),
		Interval:             licensedPrice.Interval,
		CurrentPeriodEnd:     time.Unix(currentPeriodEnd(sub), 0).UTC(),
		CancelAtPeriodEnd:    sub.CancelAtPeriodEnd,
		Metadata:             subscription.JSONBMetadata(sub.Metadata),
		BaseModel:            types.GetDefaultBaseModel(),
	}

	if sub.Schedule != nil {
		row.StripeScheduleID = lo.ToPtr(sub.Schedule.ID)
	}
	if sub.TrialStart != 0 {
		row.TrialStart = lo.ToPtr(time.Unix(sub.TrialStart, 0).UTC())
	}
	if sub.TrialEnd != 0 {
		row.TrialEnd = lo.ToPtr(time.Unix(sub.TrialEnd, 0).UTC())
	}

	return row, nil
}

func (s *syncService) licensedMirrorPrice(ctx context.Context, sub *stripe.Subscription) (*price.Price, error) {
	if sub.Items == nil {
		return nil, ierr.NewError("subscription snapshot has no items").
			WithHintf("Subscription %s carries no line items", sub.ID).
			Mark(ierr.ErrNotFound)
	}

	licensedItem, ok := lo.Find(sub.Items.Data, func(it *stripe.SubscriptionItem) bool {
		return it.Quantity > 0
	})
	if !ok {
		return nil, ierr.NewError("licensed subscription item not found in snapshot").
			WithHintf("Subscription %s has no item carrying a quantity", sub.ID).
			Mark(ierr.ErrNotFound)
	}

	return s.PriceRepo.FindByStripePriceID(ctx, licensedItem.Price.ID)
}

func (s *syncService) itemRows(ctx context.Context, mirror *subscription.Subscription, sub *stripe.Subscription) ([]*subscription.Item, error) {
	items := make([]*subscription.Item, 0, len(sub.Items.Data))
	for _, it := range sub.Items.Data {
		mirrorPrice, err := s.PriceRepo.FindByStripePriceID(ctx, it.Price.ID)
		if err != nil {
			return nil, err
		}

		item := &subscription.Item{
			ID:                       types.GenerateUUIDWithPrefix(types.UUID_PREFIX_SUBSCRIPTION_ITEM),
			SubscriptionID:           mirror.ID,
			StripeSubscriptionID:     sub.ID,
			StripeSubscriptionItemID: it.ID,
			StripePriceID:            mirrorPrice.StripePriceID,
			StripeProductID:          mirrorPrice.StripeProductID,
			PlanKey:                  mirrorPrice.PlanKey,
			ProductKey:               mirrorPrice.ProductKey,
			UsageType:                mirrorPrice.UsageType,
			BaseModel:                types.GetDefaultBaseModel(),
		}
		if mirrorPrice.IsLicensed() {
			item.Quantity = lo.ToPtr(it.Quantity)
		}
		items = append(items, item)
	}

	return items, nil
}
