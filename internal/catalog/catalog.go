package catalog

import (
	"context"
	"fmt"
	"time"

	gocache "github.com/patrickmn/go-cache"
	"github.com/samber/lo"

	"github.com/vidinfra/planshift/internal/domain/price"
	ierr "github.com/vidinfra/planshift/internal/errors"
	"github.com/vidinfra/planshift/internal/logger"
	"github.com/vidinfra/planshift/internal/types"
)

const (
	cacheExpiry  = 5 * time.Minute
	cacheCleanup = 10 * time.Minute
)

// Plan is the catalog view of one sellable plan: its key and the
// prices sold under it, split by usage type
type Plan struct {
	PlanKey        types.PlanKey
	LicensedPrices []*price.Price
	MeteredPrices  []*price.Price
}

// Product is a catalog product reference within a plan
type Product struct {
	StripeProductID string
	Key             types.ProductKey
}

// Service is the price catalog lookup contract consumed by the
// transition engine
type Service interface {
	// GetProductPrices returns the catalog slice for one plan+interval
	GetProductPrices(ctx context.Context, filter price.Filter) ([]*price.Price, error)

	// GetPlanByPriceID resolves the plan a price is sold under
	GetPlanByPriceID(ctx context.Context, stripePriceID string) (*Plan, error)

	// GetBillingThresholdsByMeterPriceID returns the thresholds to
	// apply while the given metered price is active, nil when none
	GetBillingThresholdsByMeterPriceID(ctx context.Context, stripePriceID string) (*types.BillingThresholds, error)

	// GetPlanBaseProduct returns the licensed base product of a plan
	GetPlanBaseProduct(ctx context.Context, planKey types.PlanKey) (*Product, error)
}

type service struct {
	priceRepo price.Repository
	cache     *gocache.Cache
	logger    *logger.Logger
}

// NewService creates a repository-backed catalog with a read-through
// cache in front of the price listings
func NewService(priceRepo price.Repository, logger *logger.Logger) Service {
	return &service{
		priceRepo: priceRepo,
		cache:     gocache.New(cacheExpiry, cacheCleanup),
		logger:    logger,
	}
}

func (s *service) GetProductPrices(ctx context.Context, filter price.Filter) ([]*price.Price, error) {
	key := fmt.Sprintf("prices:%s:%s", filter.PlanKey, filter.Interval)
	if cached, found := s.cache.Get(key); found {
		return cached.([]*price.Price), nil
	}

	prices, err := s.priceRepo.List(ctx, &filter)
	if err != nil {
		return nil, err
	}
	if len(prices) == 0 {
		return nil, ierr.NewError("no prices found for plan and interval").
			WithHintf("Catalog has no prices for plan %s interval %s", filter.PlanKey, filter.Interval).
			Mark(ierr.ErrNotFound)
	}

	s.cache.Set(key, prices, gocache.DefaultExpiration)
	return prices, nil
}

func (s *service) GetPlanByPriceID(ctx context.Context, stripePriceID string) (*Plan, error) {
	key := "plan_by_price:" + stripePriceID
	if cached, found := s.cache.Get(key); found {
		return cached.(*Plan), nil
	}

	p, err := s.priceRepo.FindByStripePriceID(ctx, stripePriceID)
	if err != nil {
		return nil, err
	}

	planPrices, err := s.priceRepo.List(ctx, &price.Filter{PlanKey: p.PlanKey})
	if err != nil {
		return nil, err
	}

	plan := &Plan{
		PlanKey: p.PlanKey,
		LicensedPrices: lo.Filter(planPrices, func(pp *price.Price, _ int) bool {
			return pp.IsLicensed()
		}),
		MeteredPrices: lo.Filter(planPrices, func(pp *price.Price, _ int) bool {
			return pp.IsMetered()
		}),
	}

	s.cache.Set(key, plan, gocache.DefaultExpiration)
	return plan, nil
}

func (s *service) GetBillingThresholdsByMeterPriceID(ctx context.Context, stripePriceID string) (*types.BillingThresholds, error) {
	p, err := s.priceRepo.FindByStripePriceID(ctx, stripePriceID)
	if err != nil {
		return nil, err
	}
	if !p.IsMetered() {
		return nil, ierr.NewError("billing thresholds requested for a non-metered price").
			WithHintf("Price %s is not metered", stripePriceID).
			Mark(ierr.ErrValidation)
	}
	return p.BillingThresholds.Thresholds(), nil
}

func (s *service) GetPlanBaseProduct(ctx context.Context, planKey types.PlanKey) (*Product, error) {
	planPrices, err := s.priceRepo.List(ctx, &price.Filter{PlanKey: planKey})
	if err != nil {
		return nil, err
	}

	base, ok := lo.Find(planPrices, func(p *price.Price) bool {
		return p.ProductKey == types.ProductKeyBase
	})
	if !ok {
		return nil, ierr.NewError("base product not found").
			WithHintf("Plan %s has no %s price", planKey, types.ProductKeyBase).
			Mark(ierr.ErrNotFound)
	}

	return &Product{StripeProductID: base.StripeProductID, Key: base.ProductKey}, nil
}
