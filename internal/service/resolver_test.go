package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/suite"

	"github.com/vidinfra/planshift/internal/domain/price"
	ierr "github.com/vidinfra/planshift/internal/errors"
	"github.com/vidinfra/planshift/internal/types"
)

type PriceResolverSuite struct {
	suite.Suite
	ctx context.Context
	env *testEnv
}

func TestPriceResolver(t *testing.T) {
	suite.Run(t, new(PriceResolverSuite))
}

func (s *PriceResolverSuite) SetupTest() {
	s.ctx = context.Background()
	s.env = newTestEnv()
}

func (s *PriceResolverSuite) catalogSlice(planKey types.PlanKey, interval types.BillingInterval) []*price.Price {
	prices, err := s.env.params.Catalog.GetProductPrices(s.ctx, price.Filter{PlanKey: planKey, Interval: interval})
	s.Require().NoError(err)
	return prices
}

func (s *PriceResolverSuite) TestMeteredPriceByID() {
	p, err := s.env.resolver.MeteredPriceByID(s.ctx, entMeterMonthLowID)
	s.Require().NoError(err)

	cap, err := p.Cap()
	s.Require().NoError(err)
	s.Equal(int64(1000), cap)
}

func (s *PriceResolverSuite) TestMeteredPriceByIDRejectsLicensed() {
	_, err := s.env.resolver.MeteredPriceByID(s.ctx, entBaseMonthID)
	s.Require().Error(err)
	s.True(ierr.IsValidation(err))
}

func (s *PriceResolverSuite) TestMeteredPriceByIDUnknown() {
	_, err := s.env.resolver.MeteredPriceByID(s.ctx, "price_unknown")
	s.Require().Error(err)
	s.True(ierr.IsNotFound(err))
}

func (s *PriceResolverSuite) TestPlanSwitchPicksGreatestCapNotExceedingReference() {
	candidates := s.catalogSlice(types.PlanKeyPro, types.BillingIntervalMonth)

	// The enterprise low tier holds more usage than any pro tier, so
	// the pro tier closest from below wins.
	match, err := s.env.resolver.ResolveForPlanSwitch(s.ctx, candidates, entMeterMonthLowID)
	s.Require().NoError(err)
	s.Equal(proMeterMonthID, match.StripePriceID)
}

func (s *PriceResolverSuite) TestPlanSwitchFallsBackToSmallestCandidate() {
	candidates := s.catalogSlice(types.PlanKeyEnterprise, types.BillingIntervalMonth)

	// The pro cap sits below every enterprise tier; the smallest
	// enterprise tier is the floor fallback.
	match, err := s.env.resolver.ResolveForPlanSwitch(s.ctx, candidates, proMeterMonthID)
	s.Require().NoError(err)
	s.Equal(entMeterMonthLowID, match.StripePriceID)
}

func (s *PriceResolverSuite) TestPlanSwitchKeepsExactCapMatch() {
	candidates := s.catalogSlice(types.PlanKeyEnterprise, types.BillingIntervalMonth)

	match, err := s.env.resolver.ResolveForPlanSwitch(s.ctx, candidates, entMeterMonthHighID)
	s.Require().NoError(err)
	s.Equal(entMeterMonthHighID, match.StripePriceID)
}

func (s *PriceResolverSuite) TestIntervalResolutionScalesMonthToYear() {
	candidates := s.catalogSlice(types.PlanKeyEnterprise, types.BillingIntervalYear)

	match, err := s.env.resolver.ResolveForInterval(s.ctx, candidates, entMeterMonthLowID, types.BillingIntervalYear)
	s.Require().NoError(err)
	s.Equal(entMeterYearLowID, match.StripePriceID)
}

func (s *PriceResolverSuite) TestIntervalResolutionScalesYearToMonth() {
	candidates := s.catalogSlice(types.PlanKeyEnterprise, types.BillingIntervalMonth)

	match, err := s.env.resolver.ResolveForInterval(s.ctx, candidates, entMeterYearHighID, types.BillingIntervalMonth)
	s.Require().NoError(err)
	s.Equal(entMeterMonthHighID, match.StripePriceID)
}

func (s *PriceResolverSuite) TestResolutionWithoutCandidatesFails() {
	_, err := s.env.resolver.ResolveForPlanSwitch(s.ctx, nil, entMeterMonthLowID)
	s.Require().Error(err)
	s.True(ierr.IsNotFound(err))
}

func (s *PriceResolverSuite) TestMeteredSwitchIgnoresCandidatesOnOtherIntervals() {
	// Mix both intervals into the pool; only the target interval's
	// prices are eligible.
	candidates := append(
		s.catalogSlice(types.PlanKeyEnterprise, types.BillingIntervalMonth),
		s.catalogSlice(types.PlanKeyEnterprise, types.BillingIntervalYear)...,
	)

	match, err := s.env.resolver.ResolveForMeteredSwitch(s.ctx, candidates, entMeterMonthHighID, types.BillingIntervalMonth)
	s.Require().NoError(err)
	s.Equal(entMeterMonthHighID, match.StripePriceID)
}

func (s *PriceResolverSuite) TestResolveLicensedAndMetered() {
	resolved, err := s.env.resolver.ResolveLicensedAndMetered(s.ctx, ResolveParams{
		Interval:       types.BillingIntervalMonth,
		PlanKey:        types.PlanKeyPro,
		MeteredPriceID: entMeterMonthLowID,
		UpdateType:     types.PriceUpdateTypePlan,
	})
	s.Require().NoError(err)

	s.Equal(proBaseMonthID, resolved.Licensed.StripePriceID)
	s.Equal(proMeterMonthID, resolved.Metered.StripePriceID)
}

func (s *PriceResolverSuite) TestResolveLicensedAndMeteredAcrossIntervals() {
	resolved, err := s.env.resolver.ResolveLicensedAndMetered(s.ctx, ResolveParams{
		Interval:       types.BillingIntervalYear,
		PlanKey:        types.PlanKeyEnterprise,
		MeteredPriceID: entMeterMonthLowID,
		UpdateType:     types.PriceUpdateTypeInterval,
	})
	s.Require().NoError(err)

	s.Equal(entBaseYearID, resolved.Licensed.StripePriceID)
	s.Equal(entMeterYearLowID, resolved.Metered.StripePriceID)
}

func (s *PriceResolverSuite) TestResolveLicensedAndMeteredUnknownPlan() {
	_, err := s.env.resolver.ResolveLicensedAndMetered(s.ctx, ResolveParams{
		Interval:       types.BillingIntervalMonth,
		PlanKey:        types.PlanKey("STARTER"),
		MeteredPriceID: entMeterMonthLowID,
		UpdateType:     types.PriceUpdateTypePlan,
	})
	s.Require().Error(err)
	s.True(ierr.IsNotFound(err))
}
