package infra

import (
	"context"
	"sync"

	"waitroom-gateway/middleware/waitroom/domain"
)

// MemoryStatsStore é uma implementação simples em memória.
// Útil para testes e desenvolvimento.
//
// Não tem buckets por minuto e não é indicada para produção.
type MemoryStatsStore struct {
	mu     sync.Mutex
	totals map[domain.EventKind]int64
}

func NewMemoryStatsStore() *MemoryStatsStore {
	return &MemoryStatsStore{totals: make(map[domain.EventKind]int64)}
}

var _ domain.StatsStore = (*MemoryStatsStore)(nil)

func (s *MemoryStatsStore) Record(_ context.Context, ev domain.QueueEvent) error {
	if ev.Kind == "" {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.totals[ev.Kind]++
	return nil
}

func (s *MemoryStatsStore) Totals(_ context.Context) (map[domain.EventKind]int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[domain.EventKind]int64, len(s.totals))
	for k, v := range s.totals {
		out[k] = v
	}
	return out, nil
}

// Get é um atalho para testes.
func (s *MemoryStatsStore) Get(kind domain.EventKind) int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totals[kind]
}
