package stripe

import (
	"github.com/stripe/stripe-go/v82"

	"github.com/vidinfra/planshift/internal/config"
	"github.com/vidinfra/planshift/internal/logger"
)

// Client holds the configured Stripe API client shared by the
// provider-facing services
type Client struct {
	api    *stripe.Client
	logger *logger.Logger
}

// NewClient creates a new Stripe client from configuration
func NewClient(cfg *config.Configuration, logger *logger.Logger) *Client {
	return &Client{
		api:    stripe.NewClient(cfg.Stripe.SecretKey, nil),
		logger: logger,
	}
}

// API returns the underlying Stripe client
func (c *Client) API() *stripe.Client {
	return c.api
}
