package postgres

import (
	"context"
	"database/sql"
	"errors"

	"github.com/vidinfra/planshift/internal/domain/entitlement"
	ierr "github.com/vidinfra/planshift/internal/errors"
	"github.com/vidinfra/planshift/internal/logger"
	"github.com/vidinfra/planshift/internal/postgres"
	"github.com/vidinfra/planshift/internal/types"
)

type entitlementRepository struct {
	db     *postgres.DB
	logger *logger.Logger
}

// NewEntitlementRepository creates the postgres-backed entitlement
// mirror
func NewEntitlementRepository(db *postgres.DB, logger *logger.Logger) entitlement.Repository {
	return &entitlementRepository{db: db, logger: logger}
}

func (r *entitlementRepository) Upsert(ctx context.Context, e *entitlement.Entitlement) error {
	query := `
		INSERT INTO billing_entitlements (id, workspace_id, key, value, created_at, updated_at)
		VALUES (:id, :workspace_id, :key, :value, :created_at, :updated_at)
		ON CONFLICT (workspace_id, key) DO UPDATE SET
			value = EXCLUDED.value,
			updated_at = EXCLUDED.updated_at`

	if _, err := r.db.NamedExecContext(ctx, query, e); err != nil {
		return ierr.WithError(err).
			WithHint("Failed to upsert entitlement").
			WithReportableDetails(map[string]any{
				"workspace_id": e.WorkspaceID,
				"key":          e.Key,
			}).
			Mark(ierr.ErrDatabase)
	}
	return nil
}

func (r *entitlementRepository) FindByWorkspaceAndKey(ctx context.Context, workspaceID string, key types.EntitlementKey) (*entitlement.Entitlement, error) {
	var e entitlement.Entitlement
	err := r.db.GetContext(ctx, &e,
		`SELECT * FROM billing_entitlements WHERE workspace_id = $1 AND key = $2`, workspaceID, key)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, ierr.WithError(err).
			WithHint("Failed to get entitlement").
			Mark(ierr.ErrDatabase)
	}
	return &e, nil
}
