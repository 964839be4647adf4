package testutil

import (
	"context"
	"sync"

	"github.com/vidinfra/planshift/internal/domain/subscription"
	ierr "github.com/vidinfra/planshift/internal/errors"
	"github.com/vidinfra/planshift/internal/types"
)

// InMemorySubscriptionStore implements subscription.Repository
type InMemorySubscriptionStore struct {
	mu   sync.RWMutex
	subs map[string]*subscription.Subscription
}

func NewInMemorySubscriptionStore() *InMemorySubscriptionStore {
	return &InMemorySubscriptionStore{
		subs: make(map[string]*subscription.Subscription),
	}
}

func (s *InMemorySubscriptionStore) Upsert(ctx context.Context, sub *subscription.Subscription) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, exists := s.subs[sub.StripeSubscriptionID]; exists {
		// Keep the original row id stable across upserts
		sub.ID = existing.ID
	}
	s.subs[sub.StripeSubscriptionID] = sub
	return nil
}

func (s *InMemorySubscriptionStore) GetByStripeSubscriptionID(ctx context.Context, stripeSubscriptionID string) (*subscription.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if sub, exists := s.subs[stripeSubscriptionID]; exists {
		return sub, nil
	}
	return nil, ierr.NewError("subscription not found").
		WithHintf("No mirror row for subscription %s", stripeSubscriptionID).
		Mark(ierr.ErrNotFound)
}

func (s *InMemorySubscriptionStore) ListByWorkspace(ctx context.Context, workspaceID string) ([]*subscription.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*subscription.Subscription
	for _, sub := range s.subs {
		if sub.WorkspaceID == workspaceID {
			result = append(result, sub)
		}
	}
	return result, nil
}

func (s *InMemorySubscriptionStore) ListNotCanceled(ctx context.Context, criteria subscription.Criteria) ([]*subscription.Subscription, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*subscription.Subscription
	for _, sub := range s.subs {
		if sub.Status == types.SubscriptionStatusCanceled {
			continue
		}
		if criteria.WorkspaceID != "" && sub.WorkspaceID != criteria.WorkspaceID {
			continue
		}
		if criteria.StripeCustomerID != "" && sub.StripeCustomerID != criteria.StripeCustomerID {
			continue
		}
		result = append(result, sub)
	}
	return result, nil
}

func (s *InMemorySubscriptionStore) DeleteByWorkspace(ctx context.Context, workspaceID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, sub := range s.subs {
		if sub.WorkspaceID == workspaceID {
			delete(s.subs, key)
		}
	}
	return nil
}

// InMemorySubscriptionItemStore implements subscription.ItemRepository
type InMemorySubscriptionItemStore struct {
	mu    sync.RWMutex
	items map[string]*subscription.Item
}

func NewInMemorySubscriptionItemStore() *InMemorySubscriptionItemStore {
	return &InMemorySubscriptionItemStore{
		items: make(map[string]*subscription.Item),
	}
}

func (s *InMemorySubscriptionItemStore) Upsert(ctx context.Context, item *subscription.Item) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, exists := s.items[item.StripeSubscriptionItemID]; exists {
		item.ID = existing.ID
	}
	s.items[item.StripeSubscriptionItemID] = item
	return nil
}

func (s *InMemorySubscriptionItemStore) ListBySubscriptionID(ctx context.Context, subscriptionID string) ([]*subscription.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*subscription.Item
	for _, item := range s.items {
		if item.SubscriptionID == subscriptionID {
			result = append(result, item)
		}
	}
	return result, nil
}

func (s *InMemorySubscriptionItemStore) FindBySubscriptionAndProduct(ctx context.Context, subscriptionID, stripeProductID string) (*subscription.Item, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, item := range s.items {
		if item.SubscriptionID == subscriptionID && item.StripeProductID == stripeProductID {
			return item, nil
		}
	}
	return nil, nil
}

func (s *InMemorySubscriptionItemStore) DeleteBySubscriptionAndProduct(ctx context.Context, subscriptionID, stripeProductID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, item := range s.items {
		if item.SubscriptionID == subscriptionID && item.StripeProductID == stripeProductID {
			delete(s.items, key)
		}
	}
	return nil
}

func (s *InMemorySubscriptionItemStore) ResetPeriodCapReached(ctx context.Context, stripeSubscriptionID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, item := range s.items {
		if item.StripeSubscriptionID == stripeSubscriptionID {
			item.HasReachedCurrentPeriodCap = false
		}
	}
	return nil
}
