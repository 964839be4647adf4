package catalog

import (
	"context"
	"testing"

	"github.com/samber/lo"
	"github.com/stretchr/testify/suite"

	"github.com/vidinfra/planshift/internal/domain/price"
	ierr "github.com/vidinfra/planshift/internal/errors"
	"github.com/vidinfra/planshift/internal/logger"
	"github.com/vidinfra/planshift/internal/testutil"
	"github.com/vidinfra/planshift/internal/types"
)

type CatalogServiceSuite struct {
	suite.Suite
	ctx     context.Context
	repo    *testutil.InMemoryPriceStore
	service Service
}

func TestCatalogService(t *testing.T) {
	suite.Run(t, new(CatalogServiceSuite))
}

func (s *CatalogServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.repo = testutil.NewInMemoryPriceStore()
	s.service = NewService(s.repo, logger.NewNopLogger())

	s.seed(&price.Price{
		StripePriceID:   "price_base",
		StripeProductID: "prod_base",
		PlanKey:         types.PlanKeyPro,
		ProductKey:      types.ProductKeyBase,
		UsageType:       types.UsageTypeLicensed,
		Interval:        types.BillingIntervalMonth,
	})
	s.seed(&price.Price{
		StripePriceID:   "price_meter",
		StripeProductID: "prod_meter",
		PlanKey:         types.PlanKeyPro,
		ProductKey:      types.ProductKeyWorkflowExecution,
		UsageType:       types.UsageTypeMetered,
		Interval:        types.BillingIntervalMonth,
		Tiers:           price.JSONBTiers{{UpTo: lo.ToPtr(int64(100))}, {UpTo: nil}},
	})
}

func (s *CatalogServiceSuite) seed(p *price.Price) {
	p.ID = types.GenerateUUIDWithPrefix(types.UUID_PREFIX_PRICE)
	p.BaseModel = types.GetDefaultBaseModel()
	s.Require().NoError(s.repo.Upsert(s.ctx, p))
}

func (s *CatalogServiceSuite) TestGetProductPrices() {
	prices, err := s.service.GetProductPrices(s.ctx, price.Filter{
		PlanKey:  types.PlanKeyPro,
		Interval: types.BillingIntervalMonth,
	})
	s.Require().NoError(err)
	s.Len(prices, 2)
}

func (s *CatalogServiceSuite) TestGetProductPricesEmptyCatalogFails() {
	_, err := s.service.GetProductPrices(s.ctx, price.Filter{
		PlanKey:  types.PlanKeyEnterprise,
		Interval: types.BillingIntervalYear,
	})
	s.Require().Error(err)
	s.True(ierr.IsNotFound(err))
}

func (s *CatalogServiceSuite) TestGetProductPricesServesFromCache() {
	_, err := s.service.GetProductPrices(s.ctx, price.Filter{
		PlanKey:  types.PlanKeyPro,
		Interval: types.BillingIntervalMonth,
	})
	s.Require().NoError(err)

	s.seed(&price.Price{
		StripePriceID:   "price_meter_late",
		StripeProductID: "prod_meter",
		PlanKey:         types.PlanKeyPro,
		ProductKey:      types.ProductKeyWorkflowExecution,
		UsageType:       types.UsageTypeMetered,
		Interval:        types.BillingIntervalMonth,
		Tiers:           price.JSONBTiers{{UpTo: lo.ToPtr(int64(500))}, {UpTo: nil}},
	})

	prices, err := s.service.GetProductPrices(s.ctx, price.Filter{
		PlanKey:  types.PlanKeyPro,
		Interval: types.BillingIntervalMonth,
	})
	s.Require().NoError(err)
	s.Len(prices, 2)
}

func (s *CatalogServiceSuite) TestGetPlanByPriceID() {
	plan, err := s.service.GetPlanByPriceID(s.ctx, "price_meter")
	s.Require().NoError(err)

	s.Equal(types.PlanKeyPro, plan.PlanKey)
	s.Len(plan.LicensedPrices, 1)
	s.Len(plan.MeteredPrices, 1)
}

func (s *CatalogServiceSuite) TestGetBillingThresholds() {
	thresholds, err := s.service.GetBillingThresholdsByMeterPriceID(s.ctx, "price_meter")
	s.Require().NoError(err)
	s.Nil(thresholds)

	withThresholds := &price.Price{
		StripePriceID:   "price_meter_thresholds",
		StripeProductID: "prod_meter",
		PlanKey:         types.PlanKeyEnterprise,
		ProductKey:      types.ProductKeyWorkflowExecution,
		UsageType:       types.UsageTypeMetered,
		Interval:        types.BillingIntervalMonth,
		Tiers:           price.JSONBTiers{{UpTo: lo.ToPtr(int64(5000))}, {UpTo: nil}},
	}
	t := price.JSONBThresholds(types.BillingThresholds{AmountGTE: 50000})
	withThresholds.BillingThresholds = &t
	s.seed(withThresholds)

	thresholds, err = s.service.GetBillingThresholdsByMeterPriceID(s.ctx, "price_meter_thresholds")
	s.Require().NoError(err)
	s.Require().NotNil(thresholds)
	s.Equal(int64(50000), thresholds.AmountGTE)
}

func (s *CatalogServiceSuite) TestGetBillingThresholdsRejectsLicensedPrice() {
	_, err := s.service.GetBillingThresholdsByMeterPriceID(s.ctx, "price_base")
	s.Require().Error(err)
	s.True(ierr.IsValidation(err))
}

func (s *CatalogServiceSuite) TestGetPlanBaseProduct() {
	product, err := s.service.GetPlanBaseProduct(s.ctx, types.PlanKeyPro)
	s.Require().NoError(err)
	s.Equal("prod_base", product.StripeProductID)
	s.Equal(types.ProductKeyBase, product.Key)
}
