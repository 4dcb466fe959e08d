package inventory

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/avans-mx/avanbot/internal/models"
)

// InMemoryStore is a Store kept entirely in memory, used by tests and as the
// zero-config default backend.
type InMemoryStore struct {
	mu           sync.RWMutex
	parts        []models.Part
	orders       []models.Order
	interactions []models.Interaction
	nextPartID   int64
}

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{nextPartID: 1}
}

// AddPart seeds one part record and returns its assigned ID.
func (s *InMemoryStore) AddPart(p models.Part) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	p.ID = s.nextPartID
	s.nextPartID++
	s.parts = append(s.parts, p)
	return p.ID
}

// AddOrder seeds one order record.
func (s *InMemoryStore) AddOrder(o models.Order) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.orders = append(s.orders, o)
}

func (s *InMemoryStore) matchParts(term string) []models.Part {
	lower := strings.ToLower(term)
	var out []models.Part
	for _, p := range s.parts {
		if strings.Contains(strings.ToLower(p.Name), lower) ||
			strings.Contains(strings.ToLower(p.Code), lower) {
			out = append(out, p)
			if len(out) == searchLimit {
				break
			}
		}
	}
	return out
}

func (s *InMemoryStore) SearchParts(_ context.Context, term string) ([]models.Part, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	matches := s.matchParts(term)
	out := make([]models.Part, len(matches))
	for i, p := range matches {
		out[i] = p
		out[i].Status = nil
		if len(matches) != 1 {
			out[i].Availability = nil
		}
	}
	return out, nil
}

func (s *InMemoryStore) SearchPartsForStatus(_ context.Context, term string) ([]models.Part, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	matches := s.matchParts(term)
	out := make([]models.Part, len(matches))
	for i, p := range matches {
		out[i] = p
		out[i].Availability = nil
		if len(matches) != 1 {
			out[i].Status = nil
		}
	}
	return out, nil
}

func (s *InMemoryStore) GetOrder(_ context.Context, docNum int64) (*models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, o := range s.orders {
		if o.DocNum == docNum {
			cp := o
			return &cp, nil
		}
	}
	return nil, nil
}

func (s *InMemoryStore) SearchOrdersByClient(_ context.Context, name string) ([]models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	lower := strings.ToLower(name)
	var out []models.Order
	for _, o := range s.orders {
		if strings.Contains(strings.ToLower(o.CardName), lower) {
			out = append(out, o)
			if len(out) == searchLimit {
				break
			}
		}
	}
	return out, nil
}

func (s *InMemoryStore) RecentOrders(_ context.Context, limit int) ([]models.Order, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Order, len(s.orders))
	copy(out, s.orders)
	sort.Slice(out, func(i, j int) bool { return out[i].DocNum > out[j].DocNum })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *InMemoryStore) LowStockParts(_ context.Context, threshold int) ([]models.Part, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []models.Part
	for _, p := range s.parts {
		total := 0
		for _, a := range p.Availability {
			total += a.Quantity
		}
		if total <= threshold {
			cp := p
			cp.Availability = nil
			cp.Status = nil
			out = append(out, cp)
			if len(out) == searchLimit {
				break
			}
		}
	}
	return out, nil
}

func (s *InMemoryStore) InventorySummary(_ context.Context) (Summary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sum := Summary{TotalParts: len(s.parts)}
	warehouses := make(map[string]struct{})
	for _, p := range s.parts {
		for _, a := range p.Availability {
			sum.TotalStock += a.Quantity
			warehouses[a.Warehouse] = struct{}{}
		}
	}
	sum.Warehouses = len(warehouses)
	return sum, nil
}

func (s *InMemoryStore) AddInteraction(_ context.Context, in models.Interaction) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	in.ID = int64(len(s.interactions) + 1)
	s.interactions = append(s.interactions, in)
	return nil
}

func (s *InMemoryStore) RecentInteractions(_ context.Context, limit int) ([]models.Interaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := len(s.interactions)
	if limit > n {
		limit = n
	}
	out := make([]models.Interaction, 0, limit)
	for i := n - 1; i >= n-limit; i-- {
		out = append(out, s.interactions[i])
	}
	return out, nil
}

func (s *InMemoryStore) Ping(_ context.Context) error { return nil }

func (s *InMemoryStore) Close() error { return nil }
