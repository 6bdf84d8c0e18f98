package memory

import (
	"cmp"
	"context"
	"slices"
	"sync"

	"github.com/NasaVasa/hubalerts/internal/domain"
)

// ListingStore keeps scored listings per table. Deals without CreatedAt are treated as
// fresh.
type ListingStore struct {
	mu      sync.RWMutex
	tables  map[string][]domain.Deal
	failing map[string]error
}

func NewListingStore() *ListingStore {
	return &ListingStore{tables: make(map[string][]domain.Deal), failing: make(map[string]error)}
}

func (s *ListingStore) Add(table string, deals ...domain.Deal) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tables[table] = append(s.tables[table], deals...)
}

// Fail makes every query against table return err until it is cleared with a nil err.
func (s *ListingStore) Fail(table string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.failing, table)
		return
	}
	s.failing[table] = err
}

func (s *ListingStore) FindHotDeals(ctx context.Context, query domain.HotDealQuery) ([]domain.Deal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if err, ok := s.failing[query.Table]; ok {
		return nil, err
	}

	deals := make([]domain.Deal, 0)
	for _, deal := range s.tables[query.Table] {
		if deal.Score() < query.MinScore {
			continue
		}
		if deal.CreatedAt != nil && deal.CreatedAt.Before(query.Since) {
			continue
		}
		deal.Category = query.Category
		deals = append(deals, deal)
	}
	slices.SortStableFunc(deals, func(a, b domain.Deal) int { return cmp.Compare(b.Score(), a.Score()) })
	if query.Limit > 0 && len(deals) > query.Limit {
		deals = deals[:query.Limit]
	}
	return deals, nil
}
