package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/vidinfra/planshift/internal/domain/price"
	ierr "github.com/vidinfra/planshift/internal/errors"
	"github.com/vidinfra/planshift/internal/logger"
	"github.com/vidinfra/planshift/internal/postgres"
)

type priceRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

// NewPriceRepository creates the postgres-backed price mirror
func NewPriceRepository(db *postgres.DB, logger *logger.Logger) price.Repository {
	return &priceRepository{db: db, logger: logger}
}

func (r *priceRepository) Upsert(ctx context.Context, p *price.Price) error {
	query := `
		INSERT INTO billing_prices (
			id, stripe_price_id, stripe_product_id, plan_key, product_key,
			usage_type, interval, amount, currency, tiers, billing_thresholds,
			metadata, created_at, updated_at
		) VALUES (
			:id, :stripe_price_id, :stripe_product_id, :plan_key, :product_key,
			:usage_type, :interval, :amount, :currency, :tiers, :billing_thresholds,
			:metadata, :created_at, :updated_at
		)
		ON CONFLICT (stripe_price_id) DO UPDATE SET
			stripe_product_id = EXCLUDED.stripe_product_id,
			plan_key = EXCLUDED.plan_key,
			product_key = EXCLUDED.product_key,
			usage_type = EXCLUDED.usage_type,
			interval = EXCLUDED.interval,
			amount = EXCLUDED.amount,
			currency = EXCLUDED.currency,
			tiers = EXCLUDED.tiers,
			billing_thresholds = EXCLUDED.billing_thresholds,
			metadata = EXCLUDED.metadata,
			updated_at = EXCLUDED.updated_at`

	if _, err := r.db.NamedExecContext(ctx, query, p); err != nil {
		return ierr.WithError(err).
			WithHint("Failed to upsert price").
			WithReportableDetails(map[string]any{
				"stripe_price_id": p.StripePriceID,
			}).
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (r *priceRepository) FindByStripePriceID(ctx context.Context, stripePriceID string) (*price.Price, error) {
	var p price.Price
	err := r.db.GetContext(ctx, &p,
		`SELECT * FROM billing_prices WHERE stripe_price_id = $1`, stripePriceID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ierr.NewError("price not found").
				WithHintf("Price %s is not mirrored locally", stripePriceID).
				Mark(ierr.ErrNotFound)
		}
		return nil, ierr.WithError(err).
			WithHint("Failed to get price").
			Mark(ierr.ErrDatabase)
	}
	return &p, nil
}

func (r *priceRepository) List(ctx context.Context, filter *price.Filter) ([]*price.Price, error) {
	query := `SELECT * FROM billing_prices WHERE 1=1`
	args := []interface{}{}

	if filter != nil {
		if filter.PlanKey != "" {
			args = append(args, filter.PlanKey)
			query += ` AND plan_key = $1`
		}
		if filter.Interval != "" {
			args = append(args, filter.Interval)
			if len(args) == 1 {
				query += ` AND interval = $1`
			} else {
				query += ` AND interval = $2`
			}
		}
	}
	query += ` ORDER BY stripe_price_id`

	var prices []*price.Price
	if err := r.db.SelectContext(ctx, &prices, query, args...); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to list prices").
			Mark(ierr.ErrDatabase)
	}
	return prices, nil
}
