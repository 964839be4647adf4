package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/vidinfra/planshift/internal/domain/subscription"
	ierr "github.com/vidinfra/planshift/internal/errors"
	"github.com/vidinfra/planshift/internal/logger"
	"github.com/vidinfra/planshift/internal/postgres"
)

type subscriptionItemRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

// NewSubscriptionItemRepository creates the postgres-backed
// subscription item mirror
func NewSubscriptionItemRepository(db *postgres.DB, logger *logger.Logger) subscription.ItemRepository {
	return &subscriptionItemRepository{db: db, logger: logger}
}

func (r *subscriptionItemRepository) Upsert(ctx context.Context, item *subscription.Item) error {
	query := `
		INSERT INTO billing_subscription_items (
			id, subscription_id, stripe_subscription_id, stripe_subscription_item_id,
			stripe_price_id, stripe_product_id, plan_key, product_key, usage_type,
			quantity, has_reached_current_period_cap, created_at, updated_at
		) VALUES (
			:id, :subscription_id, :stripe_subscription_id, :stripe_subscription_item_id,
			:stripe_price_id, :stripe_product_id, :plan_key, :product_key, :usage_type,
			:quantity, :has_reached_current_period_cap, :created_at, :updated_at
		)
		ON CONFLICT (stripe_subscription_item_id) DO UPDATE SET
			subscription_id = EXCLUDED.subscription_id,
			stripe_subscription_id = EXCLUDED.stripe_subscription_id,
			stripe_price_id = EXCLUDED.stripe_price_id,
			stripe_product_id = EXCLUDED.stripe_product_id,
			plan_key = EXCLUDED.plan_key,
			product_key = EXCLUDED.product_key,
			usage_type = EXCLUDED.usage_type,
			quantity = EXCLUDED.quantity,
			updated_at = EXCLUDED.updated_at`

	if _, err := r.db.NamedExecContext(ctx, query, item); err != nil {
		return ierr.WithError(err).
			WithHint("Failed to upsert subscription item").
			WithReportableDetails(map[string]any{
				"stripe_subscription_item_id": item.StripeSubscriptionItemID,
			}).
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (r *subscriptionItemRepository) ListBySubscriptionID(ctx context.Context, subscriptionID string) ([]*subscription.Item, error) {
	var items []*subscription.Item
	err := r.db.SelectContext(ctx, &items,
		`SELECT * FROM billing_subscription_items WHERE subscription_id = $1 ORDER BY created_at`, subscriptionID)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to list subscription items").
			Mark(ierr.ErrDatabase)
	}
	return items, nil
}

func (r *subscriptionItemRepository) FindBySubscriptionAndProduct(ctx context.Context, subscriptionID, stripeProductID string) (*subscription.Item, error) {
	var item subscription.Item
	err := r.db.GetContext(ctx, &item,
		`SELECT * FROM billing_subscription_items WHERE subscription_id = $1 AND stripe_product_id = $2`,
		subscriptionID, stripeProductID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, ierr.WithError(err).
			WithHint("Failed to get subscription item").
			Mark(ierr.ErrDatabase)
	}
	return &item, nil
}

func (r *subscriptionItemRepository) DeleteBySubscriptionAndProduct(ctx context.Context, subscriptionID, stripeProductID string) error {
	if _, err := r.db.ExecContext(ctx,
		`DELETE FROM billing_subscription_items WHERE subscription_id = $1 AND stripe_product_id = $2`,
		subscriptionID, stripeProductID); err != nil {
		return ierr.WithError(err).
			WithHint("Failed to delete subscription item").
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (r *subscriptionItemRepository) ResetPeriodCapReached(ctx context.Context, stripeSubscriptionID string) error {
	if _, err := r.db.ExecContext(ctx,
		`UPDATE billing_subscription_items SET has_reached_current_period_cap = false WHERE stripe_subscription_id = $1`,
		stripeSubscriptionID); err != nil {
		return ierr.WithError(err).
			WithHint("Failed to reset period cap flag").
			Mark(ierr.ErrDatabase)
	}
	return nil
}
