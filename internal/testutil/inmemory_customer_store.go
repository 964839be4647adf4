package testutil

import (
	"context"
	"sync"

	"github.com/vidinfra/planshift/internal/domain/customer"
	ierr "github.com/vidinfra/planshift/internal/errors"
)

// InMemoryCustomerStore implements customer.Repository
type InMemoryCustomerStore struct {
	mu        sync.RWMutex
	customers map[string]*customer.Customer
}

func NewInMemoryCustomerStore() *InMemoryCustomerStore {
	return &InMemoryCustomerStore{
		customers: make(map[string]*customer.Customer),
	}
}

func (s *InMemoryCustomerStore) Upsert(ctx context.Context, c *customer.Customer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, exists := s.customers[c.WorkspaceID]; exists {
		existing.StripeCustomerID = c.StripeCustomerID
		return nil
	}
	s.customers[c.WorkspaceID] = c
	return nil
}

func (s *InMemoryCustomerStore) GetByWorkspaceID(ctx context.Context, workspaceID string) (*customer.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if c, exists := s.customers[workspaceID]; exists {
		return c, nil
	}
	return nil, ierr.NewError("customer not found").
		WithHintf("No billing customer for workspace %s", workspaceID).
		Mark(ierr.ErrNotFound)
}

func (s *InMemoryCustomerStore) GetByStripeCustomerID(ctx context.Context, stripeCustomerID string) (*customer.Customer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, c := range s.customers {
		if c.StripeCustomerID == stripeCustomerID {
			return c, nil
		}
	}
	return nil, ierr.NewError("customer not found").
		WithHintf("No billing customer for stripe customer %s", stripeCustomerID).
		Mark(ierr.ErrNotFound)
}
