package service

import (
	"context"
	"testing"

	"github.com/stripe/stripe-go/v82"
	"github.com/stretchr/testify/suite"

	"github.com/vidinfra/planshift/internal/domain/entitlement"
	"github.com/vidinfra/planshift/internal/domain/subscription"
	ierr "github.com/vidinfra/planshift/internal/errors"
	"github.com/vidinfra/planshift/internal/types"
)

type SubscriptionServiceSuite struct {
	suite.Suite
	ctx context.Context
	env *testEnv
}

func TestSubscriptionService(t *testing.T) {
	suite.Run(t, new(SubscriptionServiceSuite))
}

func (s *SubscriptionServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.env = newTestEnv()
}

func (s *SubscriptionServiceSuite) seedActive(status stripe.SubscriptionStatus) *subscription.Subscription {
	s.env.seedProviderSubscription(entBaseMonthID, entMeterMonthLowID, status)
	mirror, err := s.env.sync.SyncSubscription(s.ctx, testWorkspaceID, s.env.provider.Subscription)
	s.Require().NoError(err)
	return mirror
}

func (s *SubscriptionServiceSuite) TestGetCurrentSubscriptionReturnsNilWhenNone() {
	current, err := s.env.subs.GetCurrentSubscription(s.ctx, subscription.Criteria{WorkspaceID: testWorkspaceID})
	s.Require().NoError(err)
	s.Nil(current)
}

func (s *SubscriptionServiceSuite) TestGetCurrentSubscriptionLoadsItems() {
	s.seedActive(stripe.SubscriptionStatusActive)

	current, err := s.env.subs.GetCurrentSubscription(s.ctx, subscription.Criteria{WorkspaceID: testWorkspaceID})
	s.Require().NoError(err)
	s.Require().NotNil(current)
	s.Len(current.Items, 2)
}

func (s *SubscriptionServiceSuite) TestGetCurrentSubscriptionRejectsMultipleActive() {
	s.seedActive(stripe.SubscriptionStatusActive)

	err := s.env.subRepo.Upsert(s.ctx, &subscription.Subscription{
		ID:                   types.GenerateUUIDWithPrefix(types.UUID_PREFIX_SUBSCRIPTION),
		WorkspaceID:          testWorkspaceID,
		StripeCustomerID:     testCustomerID,
		StripeSubscriptionID: "sub_02",
		Status:               types.SubscriptionStatusActive,
		BaseModel:            types.GetDefaultBaseModel(),
	})
	s.Require().NoError(err)

	_, err = s.env.subs.GetCurrentSubscription(s.ctx, subscription.Criteria{WorkspaceID: testWorkspaceID})
	s.Require().Error(err)
	s.True(ierr.IsInvalidState(err))
}

func (s *SubscriptionServiceSuite) TestGetCurrentSubscriptionIgnoresCanceled() {
	mirror := s.seedActive(stripe.SubscriptionStatusActive)
	mirror.Status = types.SubscriptionStatusCanceled
	s.Require().NoError(s.env.subRepo.Upsert(s.ctx, mirror))

	current, err := s.env.subs.GetCurrentSubscription(s.ctx, subscription.Criteria{WorkspaceID: testWorkspaceID})
	s.Require().NoError(err)
	s.Nil(current)
}

func (s *SubscriptionServiceSuite) TestGetCurrentSubscriptionOrFail() {
	_, err := s.env.subs.GetCurrentSubscriptionOrFail(s.ctx, subscription.Criteria{WorkspaceID: testWorkspaceID})
	s.Require().Error(err)
	s.True(ierr.IsNotFound(err))
}

func (s *SubscriptionServiceSuite) TestBaseProductItemOrFail() {
	s.seedActive(stripe.SubscriptionStatusActive)

	item, err := s.env.subs.BaseProductItemOrFail(s.ctx, testWorkspaceID)
	s.Require().NoError(err)
	s.Equal(types.ProductKeyBase, item.ProductKey)
	s.Equal(entBaseMonthID, item.StripePriceID)
}

func (s *SubscriptionServiceSuite) TestDeleteSubscriptionsCancelsAtProvider() {
	s.seedActive(stripe.SubscriptionStatusActive)

	err := s.env.subs.DeleteSubscriptions(s.ctx, testWorkspaceID)
	s.Require().NoError(err)

	s.Require().Len(s.env.provider.CancelCalls, 1)
	s.Equal(testSubscriptionID, s.env.provider.CancelCalls[0])

	rows, err := s.env.subRepo.ListByWorkspace(s.ctx, testWorkspaceID)
	s.Require().NoError(err)
	s.Empty(rows)
}

func (s *SubscriptionServiceSuite) TestHandleUnpaidInvoicesCollects() {
	mirror := s.seedActive(stripe.SubscriptionStatusActive)
	mirror.Status = types.SubscriptionStatusUnpaid
	s.Require().NoError(s.env.subRepo.Upsert(s.ctx, mirror))

	err := s.env.subs.HandleUnpaidInvoices(s.ctx, testCustomerID)
	s.Require().NoError(err)

	s.Require().Len(s.env.provider.CollectInvoiceCalls, 1)
	s.Equal(testSubscriptionID, s.env.provider.CollectInvoiceCalls[0])
}

func (s *SubscriptionServiceSuite) TestHandleUnpaidInvoicesSkipsPaidSubscriptions() {
	s.seedActive(stripe.SubscriptionStatusActive)

	err := s.env.subs.HandleUnpaidInvoices(s.ctx, testCustomerID)
	s.Require().NoError(err)
	s.Empty(s.env.provider.CollectInvoiceCalls)
}

func (s *SubscriptionServiceSuite) TestEndTrialPeriodRequiresTrialing() {
	s.seedActive(stripe.SubscriptionStatusActive)

	_, err := s.env.subs.EndTrialPeriod(s.ctx, testWorkspaceID)
	s.Require().Error(err)
	s.True(ierr.IsInvalidState(err))
}

func (s *SubscriptionServiceSuite) TestEndTrialPeriodWithoutPaymentMethod() {
	s.seedActive(stripe.SubscriptionStatusTrialing)
	s.env.provider.PaymentMethodOnFile = false

	result, err := s.env.subs.EndTrialPeriod(s.ctx, testWorkspaceID)
	s.Require().NoError(err)
	s.False(result.HasPaymentMethod)
	s.Empty(s.env.provider.EndTrialCalls)
}

func (s *SubscriptionServiceSuite) TestEndTrialPeriodClearsPeriodCap() {
	mirror := s.seedActive(stripe.SubscriptionStatusTrialing)
	s.env.provider.PaymentMethodOnFile = true

	metered, err := mirror.MeteredItemOrFail()
	s.Require().NoError(err)
	metered.HasReachedCurrentPeriodCap = true
	s.Require().NoError(s.env.itemRepo.Upsert(s.ctx, metered))

	result, err := s.env.subs.EndTrialPeriod(s.ctx, testWorkspaceID)
	s.Require().NoError(err)

	s.True(result.HasPaymentMethod)
	s.Equal(types.SubscriptionStatusActive, result.Status)
	s.Require().Len(s.env.provider.EndTrialCalls, 1)

	items, err := s.env.itemRepo.ListBySubscriptionID(s.ctx, mirror.ID)
	s.Require().NoError(err)
	for _, item := range items {
		s.False(item.HasReachedCurrentPeriodCap)
	}
}

func (s *SubscriptionServiceSuite) TestGetWorkspaceEntitlementByKey() {
	granted, err := s.env.subs.GetWorkspaceEntitlementByKey(s.ctx, testWorkspaceID, types.EntitlementKeySSO)
	s.Require().NoError(err)
	s.False(granted)

	err = s.env.entRepo.Upsert(s.ctx, &entitlement.Entitlement{
		ID:          types.GenerateUUIDWithPrefix(types.UUID_PREFIX_ENTITLEMENT),
		WorkspaceID: testWorkspaceID,
		Key:         types.EntitlementKeySSO,
		Value:       true,
		BaseModel:   types.GetDefaultBaseModel(),
	})
	s.Require().NoError(err)

	granted, err = s.env.subs.GetWorkspaceEntitlementByKey(s.ctx, testWorkspaceID, types.EntitlementKeySSO)
	s.Require().NoError(err)
	s.True(granted)
}
