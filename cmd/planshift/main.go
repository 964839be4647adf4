package main

import (
	"context"
	"time"

	"go.uber.org/fx"

	"github.com/vidinfra/planshift/internal/catalog"
	"github.com/vidinfra/planshift/internal/config"
	"github.com/vidinfra/planshift/internal/logger"
	"github.com/vidinfra/planshift/internal/postgres"
	repository "github.com/vidinfra/planshift/internal/repository/postgres"
	"github.com/vidinfra/planshift/internal/sentry"
	"github.com/vidinfra/planshift/internal/service"
	provider "github.com/vidinfra/planshift/internal/stripe"
)

func init() {
	// Set UTC timezone for the entire application
	time.Local = time.UTC
}

func main() {
	app := fx.New(
		fx.Provide(
			// Config
			config.NewConfig,

			// Logger
			provideLogger,

			// Postgres
			postgres.NewDB,

			// Stripe
			provider.NewClient,
			provider.NewSubscriptionService,
			provider.NewScheduleService,
			provider.NewCustomerService,

			// Repositories
			repository.NewCustomerRepository,
			repository.NewPriceRepository,
			repository.NewSubscriptionRepository,
			repository.NewSubscriptionItemRepository,
			repository.NewEntitlementRepository,

			// Catalog
			catalog.NewService,

			// Services
			service.NewServiceParams,
			service.NewPhaseService,
			service.NewPriceResolver,
			service.NewSyncService,
			service.NewSubscriptionService,
			service.NewTransitionService,
		),
		sentry.Module(),
		fx.Invoke(registerHooks),
	)

	app.Run()
}

func provideLogger(cfg *config.Configuration) (*logger.Logger, error) {
	return logger.NewLogger(logger.ParseLevel(cfg.Logging.Level))
}

// registerHooks depends on the top-level services so fx constructs the
// full graph even though only the logger and db are touched here.
func registerHooks(
	lc fx.Lifecycle,
	log *logger.Logger,
	db *postgres.DB,
	transitions service.TransitionService,
	subs service.SubscriptionService,
) {
	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			log.Infow("planshift started")
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Infow("planshift stopping")
			db.Close()
			return nil
		},
	})
}
