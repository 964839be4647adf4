package testutil

import (
	"context"
	"sync"

	"github.com/vidinfra/planshift/internal/domain/entitlement"
	"github.com/vidinfra/planshift/internal/types"
)

type entitlementKey struct {
	workspaceID string
	key         types.EntitlementKey
}

// InMemoryEntitlementStore implements entitlement.Repository
type InMemoryEntitlementStore struct {
	mu     sync.RWMutex
	grants map[entitlementKey]*entitlement.Entitlement
}

func NewInMemoryEntitlementStore() *InMemoryEntitlementStore {
	return &InMemoryEntitlementStore{
		grants: make(map[entitlementKey]*entitlement.Entitlement),
	}
}

func (s *InMemoryEntitlementStore) Upsert(ctx context.Context, e *entitlement.Entitlement) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	k := entitlementKey{workspaceID: e.WorkspaceID, key: e.Key}
	if existing, exists := s.grants[k]; exists {
		e.ID = existing.ID
	}
	s.grants[k] = e
	return nil
}

func (s *InMemoryEntitlementStore) FindByWorkspaceAndKey(ctx context.Context, workspaceID string, key types.EntitlementKey) (*entitlement.Entitlement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if grant, exists := s.grants[entitlementKey{workspaceID: workspaceID, key: key}]; exists {
		return grant, nil
	}
	return nil, nil
}
