package stripe

import (
	"context"

	"github.com/stripe/stripe-go/v82"

	ierr "github.com/vidinfra/planshift/internal/errors"
	"github.com/vidinfra/planshift/internal/logger"
)

// CustomerService is the provider customer lookup contract
type CustomerService interface {
	// HasPaymentMethod reports whether the customer has at least one
	// card on file
	HasPaymentMethod(ctx context.Context, stripeCustomerID string) (bool, error)
}

type customerService struct {
	client *Client
	logger *logger.Logger
}

// NewCustomerService creates the Stripe-backed customer service
func NewCustomerService(client *Client, logger *logger.Logger) CustomerService {
	return &customerService{client: client, logger: logger}
}

func (s *customerService) HasPaymentMethod(ctx context.Context, stripeCustomerID string) (bool, error) {
	params := &stripe.PaymentMethodListParams{
		Customer: stripe.String(stripeCustomerID),
		Type:     stripe.String("card"),
	}

	paymentMethods := s.client.API().V1PaymentMethods.List(ctx, params)
	for pm, err := range paymentMethods {
		if err != nil {
			s.logger.Errorw("failed to list payment methods",
				"error", err,
				"stripe_customer_id", stripeCustomerID,
			)
			return false, ierr.WithError(err).
				WithHint("Could not list payment methods at the billing provider").
				Mark(ierr.ErrProviderCall)
		}
		if pm != nil {
			return true, nil
		}
	}

	return false, nil
}
