package service

import (
	"context"

	"github.com/vidinfra/planshift/internal/domain/subscription"
	ierr "github.com/vidinfra/planshift/internal/errors"
	"github.com/vidinfra/planshift/internal/types"
)

// TrialEndResult reports the outcome of ending a trial early
type TrialEndResult struct {
	HasPaymentMethod bool
	Status           types.SubscriptionStatus
}

// SubscriptionService answers questions about the single active
// subscription of a workspace and runs its lifecycle operations.
type SubscriptionService interface {
	// GetCurrentSubscription returns the single non-canceled
	// subscription matching the criteria, nil when none exists, and
	// fails when more than one is active
	GetCurrentSubscription(ctx context.Context, criteria subscription.Criteria) (*subscription.Subscription, error)

	// GetCurrentSubscriptionOrFail is GetCurrentSubscription failing
	// with ErrNotFound when no subscription is active
	GetCurrentSubscriptionOrFail(ctx context.Context, criteria subscription.Criteria) (*subscription.Subscription, error)

	// BaseProductItemOrFail returns the licensed base product item of
	// the workspace's active subscription
	BaseProductItemOrFail(ctx context.Context, workspaceID string) (*subscription.Item, error)

	// DeleteSubscriptions cancels every non-canceled subscription of
	// the workspace at the provider and removes the mirror rows
	DeleteSubscriptions(ctx context.Context, workspaceID string) error

	// HandleUnpaidInvoices retries collection of the last invoice when
	// the customer's current subscription is unpaid
	HandleUnpaidInvoices(ctx context.Context, stripeCustomerID string) error

	// EndTrialPeriod ends the running trial now, provided a payment
	// method is on file, and clears the period cap flag on the mirror
	// items
	EndTrialPeriod(ctx context.Context, workspaceID string) (*TrialEndResult, error)

	// GetWorkspaceEntitlementByKey reports whether the workspace holds
	// the given feature grant
	GetWorkspaceEntitlementByKey(ctx context.Context, workspaceID string, key types.EntitlementKey) (bool, error)
}

type subscriptionService struct {
	ServiceParams
}

// NewSubscriptionService creates the subscription lifecycle service
func NewSubscriptionService(params ServiceParams) SubscriptionService {
	return &subscriptionService{ServiceParams: params}
}

func (s *subscriptionService) GetCurrentSubscription(ctx context.Context, criteria subscription.Criteria) (*subscription.Subscription, error) {
	subs, err := s.SubRepo.ListNotCanceled(ctx, criteria)
	if err != nil {
		return nil, err
	}

	if len(subs) > 1 {
		return nil, ierr.NewError("more than one active subscription found").
			WithHint("A workspace can hold at most one active subscription").
			WithReportableDetails(map[string]any{
				"workspace_id":       criteria.WorkspaceID,
				"stripe_customer_id": criteria.StripeCustomerID,
				"count":              len(subs),
			}).
			Mark(ierr.ErrInvalidState)
	}
	if len(subs) == 0 {
		return nil, nil
	}

	current := subs[0]
	items, err := s.SubItemRepo.ListBySubscriptionID(ctx, current.ID)
	if err != nil {
		return nil, err
	}
	current.Items = items

	return current, nil
}

func (s *subscriptionService) GetCurrentSubscriptionOrFail(ctx context.Context, criteria subscription.Criteria) (*subscription.Subscription, error) {
	current, err := s.GetCurrentSubscription(ctx, criteria)
	if err != nil {
		return nil, err
	}
	if current == nil {
		return nil, ierr.NewError("no active subscription found").
			WithHint("The workspace has no active subscription").
			Mark(ierr.ErrNotFound)
	}
	return current, nil
}

func (s *subscriptionService) BaseProductItemOrFail(ctx context.Context, workspaceID string) (*subscription.Item, error) {
	current, err := s.GetCurrentSubscriptionOrFail(ctx, subscription.Criteria{WorkspaceID: workspaceID})
	if err != nil {
		return nil, err
	}

	for _, item := range current.Items {
		if item.ProductKey == types.ProductKeyBase {
			return item, nil
		}
	}

	return nil, ierr.NewError("base product subscription item not found").
		WithHintf("Subscription %s has no %s item", current.StripeSubscriptionID, types.ProductKeyBase).
		Mark(ierr.ErrNotFound)
}

func (s *subscriptionService) DeleteSubscriptions(ctx context.Context, workspaceID string) error {
	subs, err := s.SubRepo.ListByWorkspace(ctx, workspaceID)
	if err != nil {
		return err
	}

	for _, sub := range subs {
		if sub.IsCanceled() {
			continue
		}
		if _, err := s.ProviderSubscriptionSvc.CancelSubscription(ctx, sub.StripeSubscriptionID); err != nil {
			return err
		}
		s.Logger.Infow("canceled subscription",
			"stripe_subscription_id", sub.StripeSubscriptionID,
			"workspace_id", workspaceID,
		)
	}

	return s.SubRepo.DeleteByWorkspace(ctx, workspaceID)
}

func (s *subscriptionService) HandleUnpaidInvoices(ctx context.Context, stripeCustomerID string) error {
	current, err := s.GetCurrentSubscription(ctx, subscription.Criteria{StripeCustomerID: stripeCustomerID})
	if err != nil {
		return err
	}
	if current == nil || current.Status != types.SubscriptionStatusUnpaid {
		return nil
	}

	return s.ProviderSubscriptionSvc.CollectLastInvoice(ctx, current.StripeSubscriptionID)
}

func (s *subscriptionService) EndTrialPeriod(ctx context.Context, workspaceID string) (*TrialEndResult, error) {
	current, err := s.GetCurrentSubscriptionOrFail(ctx, subscription.Criteria{WorkspaceID: workspaceID})
	if err != nil {
		return nil, err
	}

	if current.Status != types.SubscriptionStatusTrialing {
		return nil, ierr.NewError("subscription is not in trial period").
			WithHintf("Subscription %s is %s", current.StripeSubscriptionID, current.Status).
			Mark(ierr.ErrInvalidState)
	}

	hasPaymentMethod, err := s.ProviderCustomerSvc.HasPaymentMethod(ctx, current.StripeCustomerID)
	if err != nil {
		return nil, err
	}
	if !hasPaymentMethod {
		return &TrialEndResult{HasPaymentMethod: false}, nil
	}

	updated, err := s.ProviderSubscriptionSvc.EndTrialNow(ctx, current.StripeSubscriptionID)
	if err != nil {
		return nil, err
	}

	// The trial cap no longer applies once real billing starts.
	if err := s.SubItemRepo.ResetPeriodCapReached(ctx, updated.ID); err != nil {
		return nil, err
	}

	return &TrialEndResult{
		HasPaymentMethod: true,
		Status:           types.SubscriptionStatus(updated.Status),
	}, nil
}

func (s *subscriptionService) GetWorkspaceEntitlementByKey(ctx context.Context, workspaceID string, key types.EntitlementKey) (bool, error) {
	grant, err := s.EntitlementRepo.FindByWorkspaceAndKey(ctx, workspaceID, key)
	if err != nil {
		return false, err
	}
	if grant == nil {
		return false, nil
	}
	return grant.Value, nil
}
