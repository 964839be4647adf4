package service

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/stripe/stripe-go/v82"
	"github.com/stretchr/testify/suite"

	"github.com/vidinfra/planshift/internal/domain/subscription"
	ierr "github.com/vidinfra/planshift/internal/errors"
	"github.com/vidinfra/planshift/internal/types"
)

type SyncServiceSuite struct {
	suite.Suite
	ctx context.Context
	env *testEnv
}

func TestSyncService(t *testing.T) {
	suite.Run(t, new(SyncServiceSuite))
}

func (s *SyncServiceSuite) SetupTest() {
	s.ctx = context.Background()
	s.env = newTestEnv()
}

func (s *SyncServiceSuite) TestSyncCreatesMirrorRows() {
	periodEnd := s.env.seedProviderSubscription(entBaseMonthID, entMeterMonthLowID, stripe.SubscriptionStatusActive)

	mirror, err := s.env.sync.SyncSubscription(s.ctx, testWorkspaceID, s.env.provider.Subscription)
	s.Require().NoError(err)

	s.Equal(testWorkspaceID, mirror.WorkspaceID)
	s.Equal(testCustomerID, mirror.StripeCustomerID)
	s.Equal(testSubscriptionID, mirror.StripeSubscriptionID)
	s.Equal(types.SubscriptionStatusActive, mirror.Status)
	s.Equal(types.BillingIntervalMonth, mirror.Interval)
	s.Equal(time.Unix(periodEnd, 0).UTC(), mirror.CurrentPeriodEnd)
	s.Nil(mirror.StripeScheduleID)

	cust, err := s.env.custRepo.GetByWorkspaceID(s.ctx, testWorkspaceID)
	s.Require().NoError(err)
	s.Equal(testCustomerID, cust.StripeCustomerID)

	s.Require().Len(mirror.Items, 2)
	licensed, err := mirror.LicensedItemOrFail()
	s.Require().NoError(err)
	s.Equal(entBaseMonthID, licensed.StripePriceID)
	s.Equal(types.ProductKeyBase, licensed.ProductKey)
	s.Equal(testSeats, licensed.Seats())

	metered, err := mirror.MeteredItemOrFail()
	s.Require().NoError(err)
	s.Equal(entMeterMonthLowID, metered.StripePriceID)
	s.Nil(metered.Quantity)
}

func (s *SyncServiceSuite) TestSyncIsIdempotent() {
	s.env.seedProviderSubscription(entBaseMonthID, entMeterMonthLowID, stripe.SubscriptionStatusActive)

	first, err := s.env.sync.SyncSubscription(s.ctx, testWorkspaceID, s.env.provider.Subscription)
	s.Require().NoError(err)
	second, err := s.env.sync.SyncSubscription(s.ctx, testWorkspaceID, s.env.provider.Subscription)
	s.Require().NoError(err)

	s.Equal(first.ID, second.ID)

	items, err := s.env.itemRepo.ListBySubscriptionID(s.ctx, second.ID)
	s.Require().NoError(err)
	s.Len(items, 2)
}

func (s *SyncServiceSuite) TestSyncReplacesStaleMeteredItem() {
	s.env.seedProviderSubscription(entBaseMonthID, entMeterMonthLowID, stripe.SubscriptionStatusActive)

	mirror, err := s.env.sync.SyncSubscription(s.ctx, testWorkspaceID, s.env.provider.Subscription)
	s.Require().NoError(err)

	// The provider replaced the metered item under a new id.
	s.env.provider.Subscription.Items.Data[1].ID = "si_metered_replaced"

	mirror, err = s.env.sync.SyncSubscription(s.ctx, testWorkspaceID, s.env.provider.Subscription)
	s.Require().NoError(err)

	items, err := s.env.itemRepo.ListBySubscriptionID(s.ctx, mirror.ID)
	s.Require().NoError(err)
	s.Require().Len(items, 2)

	metered, err := mirror.MeteredItemOrFail()
	s.Require().NoError(err)
	s.Equal("si_metered_replaced", metered.StripeSubscriptionItemID)
}

func (s *SyncServiceSuite) TestSyncMirrorsScheduleAndTrial() {
	s.env.seedProviderSubscription(entBaseMonthID, entMeterMonthLowID, stripe.SubscriptionStatusTrialing)

	trialStart := time.Now().Add(-24 * time.Hour).Unix()
	trialEnd := time.Now().Add(13 * 24 * time.Hour).Unix()
	s.env.provider.Subscription.TrialStart = trialStart
	s.env.provider.Subscription.TrialEnd = trialEnd

	schedule, err := s.env.provider.CreateScheduleFromSubscription(s.ctx, testSubscriptionID)
	s.Require().NoError(err)

	mirror, err := s.env.sync.SyncSubscription(s.ctx, testWorkspaceID, s.env.provider.Subscription)
	s.Require().NoError(err)

	s.Require().NotNil(mirror.StripeScheduleID)
	s.Equal(schedule.ID, *mirror.StripeScheduleID)
	s.Require().NotNil(mirror.TrialStart)
	s.Equal(time.Unix(trialStart, 0).UTC(), *mirror.TrialStart)
	s.Require().NotNil(mirror.TrialEnd)
	s.Equal(time.Unix(trialEnd, 0).UTC(), *mirror.TrialEnd)
}

func (s *SyncServiceSuite) TestSyncExpandsBareScheduleReference() {
	s.env.seedProviderSubscription(entBaseMonthID, entMeterMonthLowID, stripe.SubscriptionStatusActive)

	schedule, err := s.env.provider.CreateScheduleFromSubscription(s.ctx, testSubscriptionID)
	s.Require().NoError(err)

	// A snapshot carrying only the schedule id forces a re-fetch.
	bare := *s.env.provider.Subscription
	bare.Schedule = &stripe.SubscriptionSchedule{ID: schedule.ID}

	mirror, err := s.env.sync.SyncSubscription(s.ctx, testWorkspaceID, &bare)
	s.Require().NoError(err)

	s.Require().NotNil(mirror.StripeScheduleID)
	s.Equal(schedule.ID, *mirror.StripeScheduleID)
}

func (s *SyncServiceSuite) TestSyncRequiresCustomer() {
	s.env.seedProviderSubscription(entBaseMonthID, entMeterMonthLowID, stripe.SubscriptionStatusActive)
	s.env.provider.Subscription.Customer = nil

	_, err := s.env.sync.SyncSubscription(s.ctx, testWorkspaceID, s.env.provider.Subscription)
	s.Require().Error(err)
	s.True(ierr.IsValidation(err))
}

func (s *SyncServiceSuite) TestSyncRequiresMirroredPrices() {
	s.env.seedProviderSubscription(entBaseMonthID, "price_unknown", stripe.SubscriptionStatusActive)

	_, err := s.env.sync.SyncSubscription(s.ctx, testWorkspaceID, s.env.provider.Subscription)
	s.Require().Error(err)
	s.True(ierr.IsNotFound(err))
}

// readFailingSubscriptionStore drops the mirror read that follows a
// successful upsert.
type readFailingSubscriptionStore struct {
	subscription.Repository
}

func (r *readFailingSubscriptionStore) GetByStripeSubscriptionID(ctx context.Context, stripeSubscriptionID string) (*subscription.Subscription, error) {
	return nil, errors.New("connection reset by peer")
}

func (s *SyncServiceSuite) TestSyncFailsWhenMirrorReadBreaksAfterUpsert() {
	s.env.seedProviderSubscription(entBaseMonthID, entMeterMonthLowID, stripe.SubscriptionStatusActive)

	params := s.env.params
	params.SubRepo = &readFailingSubscriptionStore{Repository: s.env.subRepo}
	broken := NewSyncService(params)

	_, err := broken.SyncSubscription(s.ctx, testWorkspaceID, s.env.provider.Subscription)
	s.Require().Error(err)
	s.True(ierr.IsDatabase(err))

	// The upsert itself went through before the read broke; no item
	// rows were written.
	stored, err := s.env.subRepo.GetByStripeSubscriptionID(s.ctx, testSubscriptionID)
	s.Require().NoError(err)
	items, err := s.env.itemRepo.ListBySubscriptionID(s.ctx, stored.ID)
	s.Require().NoError(err)
	s.Empty(items)
}
