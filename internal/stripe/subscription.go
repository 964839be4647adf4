package stripe

import (
	"context"

	"github.com/stripe/stripe-go/v82"

	ierr "github.com/vidinfra/planshift/internal/errors"
	"github.com/vidinfra/planshift/internal/logger"
	"github.com/vidinfra/planshift/internal/types"
)

// ItemChange swaps the price (and seat count) on one existing
// subscription item. A nil Quantity keeps the item metered.
type ItemChange struct {
	ItemID   string
	PriceID  string
	Quantity *int64
}

// UpdateSubscriptionParams is the mutation shape for immediate
// subscription updates. Zero values leave the corresponding provider
// setting unchanged.
type UpdateSubscriptionParams struct {
	Items             []ItemChange
	Anchor            types.BillingCycleAnchor
	Proration         types.ProrationBehavior
	Metadata          types.Metadata
	BillingThresholds *types.BillingThresholds
}

// SubscriptionService is the provider subscription mutation contract
type SubscriptionService interface {
	UpdateSubscription(ctx context.Context, subscriptionID string, params UpdateSubscriptionParams) (*stripe.Subscription, error)
	CancelSubscription(ctx context.Context, subscriptionID string) (*stripe.Subscription, error)
	CollectLastInvoice(ctx context.Context, subscriptionID string) error
	EndTrialNow(ctx context.Context, subscriptionID string) (*stripe.Subscription, error)
}

type subscriptionService struct {
	client *Client
	logger *logger.Logger
}

// NewSubscriptionService creates the Stripe-backed subscription service
func NewSubscriptionService(client *Client, logger *logger.Logger) SubscriptionService {
	return &subscriptionService{client: client, logger: logger}
}

func (s *subscriptionService) UpdateSubscription(ctx context.Context, subscriptionID string, params UpdateSubscriptionParams) (*stripe.Subscription, error) {
	updateParams := &stripe.SubscriptionUpdateParams{
		Expand: []*string{
			stripe.String("schedule"),
			stripe.String("items.data.price.product"),
		},
	}

	for _, change := range params.Items {
		item := &stripe.SubscriptionUpdateItemParams{
			ID:    stripe.String(change.ItemID),
			Price: stripe.String(change.PriceID),
		}
		if change.Quantity != nil {
			item.Quantity = stripe.Int64(*change.Quantity)
		}
		updateParams.Items = append(updateParams.Items, item)
	}

	if params.Anchor == types.BillingCycleAnchorNow {
		updateParams.BillingCycleAnchorNow = stripe.Bool(true)
	}
	if params.Proration != "" {
		updateParams.ProrationBehavior = stripe.String(string(params.Proration))
	}
	if len(params.Metadata) > 0 {
		updateParams.Metadata = params.Metadata
	}
	if params.BillingThresholds != nil {
		updateParams.BillingThresholds = &stripe.SubscriptionUpdateBillingThresholdsParams{
			AmountGTE:               stripe.Int64(params.BillingThresholds.AmountGTE),
			ResetBillingCycleAnchor: stripe.Bool(params.BillingThresholds.ResetBillingCycleAnchor),
		}
	}

	sub, err := s.client.API().V1Subscriptions.Update(ctx, subscriptionID, updateParams)
	if err != nil {
		s.logger.Errorw("failed to update subscription",
			"error", err,
			"subscription_id", subscriptionID,
		)
		return nil, ierr.WithError(err).
			WithHint("Could not update subscription at the billing provider").
			WithReportableDetails(map[string]any{
				"subscription_id": subscriptionID,
			}).
			Mark(ierr.ErrProviderCall)
	}

	return sub, nil
}

func (s *subscriptionService) CancelSubscription(ctx context.Context, subscriptionID string) (*stripe.Subscription, error) {
	sub, err := s.client.API().V1Subscriptions.Cancel(ctx, subscriptionID, &stripe.SubscriptionCancelParams{})
	if err != nil {
		s.logger.Errorw("failed to cancel subscription",
			"error", err,
			"subscription_id", subscriptionID,
		)
		return nil, ierr.WithError(err).
			WithHint("Could not cancel subscription at the billing provider").
			Mark(ierr.ErrProviderCall)
	}
	return sub, nil
}

// CollectLastInvoice retries payment on the latest invoice of the
// subscription, used after a new payment method lands on an unpaid
// subscription
func (s *subscriptionService) CollectLastInvoice(ctx context.Context, subscriptionID string) error {
	sub, err := s.client.API().V1Subscriptions.Retrieve(ctx, subscriptionID, &stripe.SubscriptionRetrieveParams{
		Expand: []*string{stripe.String("latest_invoice")},
	})
	if err != nil {
		return ierr.WithError(err).
			WithHint("Could not fetch subscription from the billing provider").
			Mark(ierr.ErrProviderCall)
	}

	if sub.LatestInvoice == nil {
		return ierr.NewError("subscription has no latest invoice").
			WithHintf("Subscription %s has nothing to collect", subscriptionID).
			Mark(ierr.ErrInvalidState)
	}

	_, err = s.client.API().V1Invoices.Pay(ctx, sub.LatestInvoice.ID, &stripe.InvoicePayParams{})
	if err != nil {
		s.logger.Errorw("failed to pay latest invoice",
			"error", err,
			"subscription_id", subscriptionID,
			"invoice_id", sub.LatestInvoice.ID,
		)
		return ierr.WithError(err).
			WithHint("Could not collect the last invoice").
			Mark(ierr.ErrProviderCall)
	}

	return nil
}

func (s *subscriptionService) EndTrialNow(ctx context.Context, subscriptionID string) (*stripe.Subscription, error) {
	sub, err := s.client.API().V1Subscriptions.Update(ctx, subscriptionID, &stripe.SubscriptionUpdateParams{
		TrialEndNow: stripe.Bool(true),
	})
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Could not end the trial period at the billing provider").
			Mark(ierr.ErrProviderCall)
	}
	return sub, nil
}
