package entitlement

import (
	"context"

	"github.com/vidinfra/planshift/internal/types"
)

type Repository interface {
	// Upsert writes an entitlement row keyed by workspace and key
	Upsert(ctx context.Context, entitlement *Entitlement) error

	// FindByWorkspaceAndKey returns nil when no grant exists
	FindByWorkspaceAndKey(ctx context.Context, workspaceID string, key types.EntitlementKey) (*Entitlement, error)
}
