package service

import (
	"context"
	"time"

	"github.com/samber/lo"
	"github.com/stripe/stripe-go/v82"

	"github.com/vidinfra/planshift/internal/catalog"
	"github.com/vidinfra/planshift/internal/domain/price"
	"github.com/vidinfra/planshift/internal/logger"
	"github.com/vidinfra/planshift/internal/testutil"
	"github.com/vidinfra/planshift/internal/types"
)

const (
	testWorkspaceID    = "ws_01"
	testCustomerID     = "cus_01"
	testSubscriptionID = "sub_01"

	licensedItemID = "si_licensed"
	meteredItemID  = "si_metered"

	proBaseMonthID  = "price_pro_base_month"
	proMeterMonthID = "price_pro_meter_month"
	proBaseYearID   = "price_pro_base_year"
	proMeterYearID  = "price_pro_meter_year"

	entBaseMonthID      = "price_ent_base_month"
	entMeterMonthLowID  = "price_ent_meter_month_low"
	entMeterMonthHighID = "price_ent_meter_month_high"
	entBaseYearID       = "price_ent_base_year"
	entMeterYearLowID   = "price_ent_meter_year_low"
	entMeterYearHighID  = "price_ent_meter_year_high"

	testSeats = int64(7)
)

// testEnv wires every service against in-memory stores and the fake
// provider backend
type testEnv struct {
	provider *testutil.FakeBillingProvider

	priceRepo *testutil.InMemoryPriceStore
	custRepo  *testutil.InMemoryCustomerStore
	subRepo   *testutil.InMemorySubscriptionStore
	itemRepo  *testutil.InMemorySubscriptionItemStore
	entRepo   *testutil.InMemoryEntitlementStore

	params      ServiceParams
	phase       PhaseService
	resolver    PriceResolver
	sync        SyncService
	subs        SubscriptionService
	transitions TransitionService
}

func newTestEnv() *testEnv {
	log := logger.NewNopLogger()

	env := &testEnv{
		provider:  testutil.NewFakeBillingProvider(),
		priceRepo: testutil.NewInMemoryPriceStore(),
		custRepo:  testutil.NewInMemoryCustomerStore(),
		subRepo:   testutil.NewInMemorySubscriptionStore(),
		itemRepo:  testutil.NewInMemorySubscriptionItemStore(),
		entRepo:   testutil.NewInMemoryEntitlementStore(),
	}

	env.params = ServiceParams{
		Logger:                  log,
		CustomerRepo:            env.custRepo,
		SubRepo:                 env.subRepo,
		SubItemRepo:             env.itemRepo,
		PriceRepo:               env.priceRepo,
		EntitlementRepo:         env.entRepo,
		Catalog:                 catalog.NewService(env.priceRepo, log),
		ProviderSubscriptionSvc: env.provider,
		ProviderScheduleSvc:     env.provider,
		ProviderCustomerSvc:     env.provider,
	}

	env.phase = NewPhaseService(env.params)
	env.resolver = NewPriceResolver(env.params)
	env.sync = NewSyncService(env.params)
	env.subs = NewSubscriptionService(env.params)
	env.transitions = NewTransitionService(env.params, env.phase, env.resolver, env.sync, env.subs)

	env.seedCatalog()
	return env
}

func (e *testEnv) seedCatalog() {
	prices := []*price.Price{
		licensedPrice(proBaseMonthID, "prod_pro_base", types.PlanKeyPro, types.BillingIntervalMonth),
		meteredPrice(proMeterMonthID, "prod_pro_meter", types.PlanKeyPro, types.BillingIntervalMonth, 100, nil),
		licensedPrice(proBaseYearID, "prod_pro_base", types.PlanKeyPro, types.BillingIntervalYear),
		meteredPrice(proMeterYearID, "prod_pro_meter", types.PlanKeyPro, types.BillingIntervalYear, 1200, nil),

		licensedPrice(entBaseMonthID, "prod_ent_base", types.PlanKeyEnterprise, types.BillingIntervalMonth),
		meteredPrice(entMeterMonthLowID, "prod_ent_meter", types.PlanKeyEnterprise, types.BillingIntervalMonth, 1000, nil),
		meteredPrice(entMeterMonthHighID, "prod_ent_meter", types.PlanKeyEnterprise, types.BillingIntervalMonth, 5000, &types.BillingThresholds{
			AmountGTE:               50000,
			ResetBillingCycleAnchor: false,
		}),
		licensedPrice(entBaseYearID, "prod_ent_base", types.PlanKeyEnterprise, types.BillingIntervalYear),
		meteredPrice(entMeterYearLowID, "prod_ent_meter", types.PlanKeyEnterprise, types.BillingIntervalYear, 12000, nil),
		meteredPrice(entMeterYearHighID, "prod_ent_meter", types.PlanKeyEnterprise, types.BillingIntervalYear, 60000, nil),
	}
	for _, p := range prices {
		_ = e.priceRepo.Upsert(context.Background(), p)
	}
}

func licensedPrice(stripePriceID, stripeProductID string, planKey types.PlanKey, interval types.BillingInterval) *price.Price {
	return &price.Price{
		ID:              types.GenerateUUIDWithPrefix(types.UUID_PREFIX_PRICE),
		StripePriceID:   stripePriceID,
		StripeProductID: stripeProductID,
		PlanKey:         planKey,
		ProductKey:      types.ProductKeyBase,
		UsageType:       types.UsageTypeLicensed,
		Interval:        interval,
		Currency:        "usd",
		BaseModel:       types.GetDefaultBaseModel(),
	}
}

func meteredPrice(stripePriceID, stripeProductID string, planKey types.PlanKey, interval types.BillingInterval, cap int64, thresholds *types.BillingThresholds) *price.Price {
	p := &price.Price{
		ID:              types.GenerateUUIDWithPrefix(types.UUID_PREFIX_PRICE),
		StripePriceID:   stripePriceID,
		StripeProductID: stripeProductID,
		PlanKey:         planKey,
		ProductKey:      types.ProductKeyWorkflowExecution,
		UsageType:       types.UsageTypeMetered,
		Interval:        interval,
		Currency:        "usd",
		Tiers:           price.JSONBTiers{{UpTo: lo.ToPtr(cap)}, {UpTo: nil}},
		BaseModel:       types.GetDefaultBaseModel(),
	}
	if thresholds != nil {
		t := price.JSONBThresholds(*thresholds)
		p.BillingThresholds = &t
	}
	return p
}

// seedProviderSubscription loads the fake provider with a two-item
// subscription on the given prices and returns its period end
func (e *testEnv) seedProviderSubscription(licensedPriceID, meteredPriceID string, status stripe.SubscriptionStatus) int64 {
	periodStart := time.Now().Add(-10 * 24 * time.Hour).Unix()
	periodEnd := time.Now().Add(20 * 24 * time.Hour).Unix()

	e.provider.Subscription = &stripe.Subscription{
		ID:       testSubscriptionID,
		Status:   status,
		Customer: &stripe.Customer{ID: testCustomerID},
		Items: &stripe.SubscriptionItemList{
			Data: []*stripe.SubscriptionItem{
				{
					ID:                 licensedItemID,
					Price:              &stripe.Price{ID: licensedPriceID},
					Quantity:           testSeats,
					CurrentPeriodStart: periodStart,
					CurrentPeriodEnd:   periodEnd,
				},
				{
					ID:                 meteredItemID,
					Price:              &stripe.Price{ID: meteredPriceID},
					CurrentPeriodStart: periodStart,
					CurrentPeriodEnd:   periodEnd,
				},
			},
		},
	}

	return periodEnd
}
