package testutil

import (
	"context"
	"sync"

	"github.com/vidinfra/planshift/internal/domain/price"
	ierr "github.com/vidinfra/planshift/internal/errors"
)

// InMemoryPriceStore implements price.Repository
type InMemoryPriceStore struct {
	mu     sync.RWMutex
	prices map[string]*price.Price
}

func NewInMemoryPriceStore() *InMemoryPriceStore {
	return &InMemoryPriceStore{
		prices: make(map[string]*price.Price),
	}
}

func (s *InMemoryPriceStore) Upsert(ctx context.Context, p *price.Price) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.prices[p.StripePriceID] = p
	return nil
}

func (s *InMemoryPriceStore) FindByStripePriceID(ctx context.Context, stripePriceID string) (*price.Price, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if p, exists := s.prices[stripePriceID]; exists {
		return p, nil
	}
	return nil, ierr.NewError("price not found").
		WithHintf("Price %s is not mirrored locally", stripePriceID).
		Mark(ierr.ErrNotFound)
}

func (s *InMemoryPriceStore) List(ctx context.Context, filter *price.Filter) ([]*price.Price, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []*price.Price
	for _, p := range s.prices {
		if filter != nil {
			if filter.PlanKey != "" && p.PlanKey != filter.PlanKey {
				continue
			}
			if filter.Interval != "" && p.Interval != filter.Interval {
				continue
			}
		}
		result = append(result, p)
	}
	return result, nil
}
