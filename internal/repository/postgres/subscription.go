package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/vidinfra/planshift/internal/domain/subscription"
	ierr "github.com/vidinfra/planshift/internal/errors"
	"github.com/vidinfra/planshift/internal/logger"
	"github.com/vidinfra/planshift/internal/postgres"
	"github.com/vidinfra/planshift/internal/types"
)

type subscriptionRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

// NewSubscriptionRepository creates the postgres-backed subscription
// mirror
func NewSubscriptionRepository(db *postgres.DB, logger *logger.Logger) subscription.Repository {
	return &subscriptionRepository{db: db, logger: logger}
}

func (r *subscriptionRepository) Upsert(ctx context.Context, sub *subscription.Subscription) error {
	query := `
		INSERT INTO billing_subscriptions (
			id, workspace_id, stripe_customer_id, stripe_subscription_id,
			stripe_schedule_id, status, interval, current_period_end,
			trial_start, trial_end, cancel_at_period_end, metadata,
			created_at, updated_at
		) VALUES (
			:id, :workspace_id, :stripe_customer_id, :stripe_subscription_id,
			:stripe_schedule_id, :status, :interval, :current_period_end,
			:trial_start, :trial_end, :cancel_at_period_end, :metadata,
			:created_at, :updated_at
		)
		ON CONFLICT (stripe_subscription_id) DO UPDATE SET
			workspace_id = EXCLUDED.workspace_id,
			stripe_customer_id = EXCLUDED.stripe_customer_id,
			stripe_schedule_id = EXCLUDED.stripe_schedule_id,
			status = EXCLUDED.status,
			interval = EXCLUDED.interval,
			current_period_end = EXCLUDED.current_period_end,
			trial_start = EXCLUDED.trial_start,
			trial_end = EXCLUDED.trial_end,
			cancel_at_period_end = EXCLUDED.cancel_at_period_end,
			metadata = EXCLUDED.metadata,
			updated_at = EXCLUDED.updated_at`

	if _, err := r.db.NamedExecContext(ctx, query, sub); err != nil {
		return ierr.WithError(err).
			WithHint("Failed to upsert subscription").
			WithReportableDetails(map[string]any{
				"stripe_subscription_id": sub.StripeSubscriptionID,
			}).
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (r *subscriptionRepository) GetByStripeSubscriptionID(ctx context.Context, stripeSubscriptionID string) (*subscription.Subscription, error) {
	var sub subscription.Subscription
	err := r.db.GetContext(ctx, &sub,
		`SELECT * FROM billing_subscriptions WHERE stripe_subscription_id = $1`, stripeSubscriptionID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ierr.NewError("subscription not found").
				WithHintf("No mirror row for subscription %s", stripeSubscriptionID).
				Mark(ierr.ErrNotFound)
		}
		return nil, ierr.WithError(err).
			WithHint("Failed to get subscription").
			Mark(ierr.ErrDatabase)
	}
	return &sub, nil
}

func (r *subscriptionRepository) ListByWorkspace(ctx context.Context, workspaceID string) ([]*subscription.Subscription, error) {
	var subs []*subscription.Subscription
	err := r.db.SelectContext(ctx, &subs,
		`SELECT * FROM billing_subscriptions WHERE workspace_id = $1 ORDER BY created_at`, workspaceID)
	if err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to list subscriptions").
			Mark(ierr.ErrDatabase)
	}
	return subs, nil
}

func (r *subscriptionRepository) ListNotCanceled(ctx context.Context, criteria subscription.Criteria) ([]*subscription.Subscription, error) {
	if criteria.WorkspaceID == "" && criteria.StripeCustomerID == "" {
		return nil, ierr.NewError("subscription lookup criteria is empty").
			WithHint("A workspace id or stripe customer id is required").
			Mark(ierr.ErrValidation)
	}

	query := `SELECT * FROM billing_subscriptions WHERE status != $1`
	args := []interface{}{types.SubscriptionStatusCanceled}

	if criteria.WorkspaceID != "" {
		args = append(args, criteria.WorkspaceID)
		query += ` AND workspace_id = $2`
	} else {
		args = append(args, criteria.StripeCustomerID)
		query += ` AND stripe_customer_id = $2`
	}
	query += ` ORDER BY created_at`

	var subs []*subscription.Subscription
	if err := r.db.SelectContext(ctx, &subs, query, args...); err != nil {
		return nil, ierr.WithError(err).
			WithHint("Failed to list subscriptions").
			Mark(ierr.ErrDatabase)
	}
	return subs, nil
}

func (r *subscriptionRepository) DeleteByWorkspace(ctx context.Context, workspaceID string) error {
	if _, err := r.db.ExecContext(ctx,
		`DELETE FROM billing_subscriptions WHERE workspace_id = $1`, workspaceID); err != nil {
		return ierr.WithError(err).
			WithHint("Failed to delete subscriptions").
			Mark(ierr.ErrDatabase)
	}
	return nil
}
