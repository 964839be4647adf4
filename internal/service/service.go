package service

import (
	"github.com/vidinfra/planshift/internal/catalog"
	"github.com/vidinfra/planshift/internal/config"
	"github.com/vidinfra/planshift/internal/domain/customer"
	"github.com/vidinfra/planshift/internal/domain/entitlement"
	"github.com/vidinfra/planshift/internal/domain/price"
	"github.com/vidinfra/planshift/internal/domain/subscription"
	"github.com/vidinfra/planshift/internal/logger"
	provider "github.com/vidinfra/planshift/internal/stripe"
)

// ServiceParams holds common dependencies for services
type ServiceParams struct {
	Logger *logger.Logger
	Config *config.Configuration

	// Repositories
	CustomerRepo    customer.Repository
	SubRepo         subscription.Repository
	SubItemRepo     subscription.ItemRepository
	PriceRepo       price.Repository
	EntitlementRepo entitlement.Repository

	// Catalog
	Catalog catalog.Service

	// Provider collaborators
	ProviderSubscriptionSvc provider.SubscriptionService
	ProviderScheduleSvc     provider.ScheduleService
	ProviderCustomerSvc     provider.CustomerService
}

// NewServiceParams creates the shared dependency bundle
func NewServiceParams(
	logger *logger.Logger,
	config *config.Configuration,
	customerRepo customer.Repository,
	subRepo subscription.Repository,
	subItemRepo subscription.ItemRepository,
	priceRepo price.Repository,
	entitlementRepo entitlement.Repository,
	catalogSvc catalog.Service,
	providerSubscriptionSvc provider.SubscriptionService,
	providerScheduleSvc provider.ScheduleService,
	providerCustomerSvc provider.CustomerService,
) ServiceParams {
	return ServiceParams{
		Logger:                  logger,
		Config:                  config,
		CustomerRepo:            customerRepo,
		SubRepo:                 subRepo,
		SubItemRepo:             subItemRepo,
		PriceRepo:               priceRepo,
		EntitlementRepo:         entitlementRepo,
		Catalog:                 catalogSvc,
		ProviderSubscriptionSvc: providerSubscriptionSvc,
		ProviderScheduleSvc:     providerScheduleSvc,
		ProviderCustomerSvc:     providerCustomerSvc,
	}
}
