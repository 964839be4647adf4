package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/vidinfra/planshift/internal/domain/customer"
	ierr "github.com/vidinfra/planshift/internal/errors"
	"github.com/vidinfra/planshift/internal/logger"
	"github.com/vidinfra/planshift/internal/postgres"
)

type customerRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

// NewCustomerRepository creates the postgres-backed customer mirror
func NewCustomerRepository(db *postgres.DB, logger *logger.Logger) customer.Repository {
	return &customerRepository{db: db, logger: logger}
}

func (r *customerRepository) Upsert(ctx context.Context, c *customer.Customer) error {
	query := `
		INSERT INTO billing_customers (id, workspace_id, stripe_customer_id, created_at, updated_at)
		VALUES (:id, :workspace_id, :stripe_customer_id, :created_at, :updated_at)
		ON CONFLICT (workspace_id) DO UPDATE SET
			stripe_customer_id = EXCLUDED.stripe_customer_id,
			updated_at = EXCLUDED.updated_at`

	if _, err := r.db.NamedExecContext(ctx, query, c); err != nil {
		return ierr.WithError(err).
			WithHint("Failed to upsert customer").
			WithReportableDetails(map[string]any{
				"workspace_id": c.WorkspaceID,
			}).
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (r *customerRepository) GetByWorkspaceID(ctx context.Context, workspaceID string) (*customer.Customer, error) {
	var c customer.Customer
	err := r.db.GetContext(ctx, &c,
		`SELECT * FROM billing_customers WHERE workspace_id = $1`, workspaceID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ierr.NewError("customer not found").
				WithHintf("No billing customer for workspace %s", workspaceID).
				Mark(ierr.ErrNotFound)
		}
		return nil, ierr.WithError(err).
			WithHint("Failed to get customer").
			Mark(ierr.ErrDatabase)
	}
	return &c, nil
}

func (r *customerRepository) GetByStripeCustomerID(ctx context.Context, stripeCustomerID string) (*customer.Customer, error) {
	var c customer.Customer
	err := r.db.GetContext(ctx, &c,
		`SELECT * FROM billing_customers WHERE stripe_customer_id = $1`, stripeCustomerID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ierr.NewError("customer not found").
				WithHintf("No billing customer for stripe customer %s", stripeCustomerID).
				Mark(ierr.ErrNotFound)
		}
		return nil, ierr.WithError(err).
			WithHint("Failed to get customer").
			Mark(ierr.ErrDatabase)
	}
	return &c, nil
}
