package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/you/go-flights-aggregator/internal/providers"
)

// Memory is a process-local Repository. Everything is lost on restart.
type Memory struct {
	mu       sync.RWMutex
	searches map[string]Search
	results  map[string][]providers.Flight
	now      func() time.Time
	log      *zap.Logger
}

func NewMemory(log *zap.Logger) *Memory {
	return &Memory{
		searches: make(map[string]Search),
		results:  make(map[string][]providers.Flight),
		now:      time.Now,
		log:      log.Named("store"),
	}
}

func (m *Memory) SaveSearch(_ context.Context, params providers.SearchParams) (Search, error) {
	s := Search{
		ID:        uuid.NewString(),
		Params:    params,
		CreatedAt: m.now().UTC(),
		Status:    StatusPending,
	}
	m.mu.Lock()
	m.searches[s.ID] = s
	m.mu.Unlock()
	m.log.Info("search saved", zap.String("search_id", s.ID))
	return s, nil
}

func (m *Memory) SaveResults(_ context.Context, id string, flights []providers.Flight) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.searches[id]
	if !ok {
		return ErrNotFound
	}
	m.results[id] = append([]providers.Flight(nil), flights...)
	s.ResultCount = len(flights)
	s.Status = StatusCompleted
	m.searches[id] = s
	m.log.Info("results saved", zap.String("search_id", id), zap.Int("flights", len(flights)))
	return nil
}

func (m *Memory) GetSearch(_ context.Context, id string) (Search, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.searches[id]
	if !ok {
		return Search{}, ErrNotFound
	}
	return s, nil
}

func (m *Memory) GetResults(_ context.Context, id string) ([]providers.Flight, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.searches[id]; !ok {
		return nil, ErrNotFound
	}
	return append([]providers.Flight{}, m.results[id]...), nil
}

func (m *Memory) List(_ context.Context) ([]Search, error) {
	m.mu.RLock()
	out := make([]Search, 0, len(m.searches))
	for _, s := range m.searches {
		out = append(out, s)
	}
	m.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

func (m *Memory) Stats(ctx context.Context) (Stats, error) {
	all, err := m.List(ctx)
	if err != nil {
		return Stats{}, err
	}
	return statsOf(all), nil
}

func (m *Memory) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.searches[id]; !ok {
		return ErrNotFound
	}
	delete(m.searches, id)
	delete(m.results, id)
	m.log.Info("search deleted", zap.String("search_id", id))
	return nil
}
