package infra

import (
	"context"
	"sort"
	"sync"
	"time"

	"waitroom-gateway/middleware/waitroom/domain"
)

// MemoryBackend é uma implementação simples em memória de domain.Backend.
// Útil para testes e desenvolvimento (cmd/example-server).
//
// Toda operação segura o mesmo mutex, então PopLowest é trivialmente atômico.
// Não é indicada para produção: o estado morre com o processo.
type MemoryBackend struct {
	mu      sync.Mutex
	waiting map[domain.ClientID]float64
	waitTTL map[domain.ClientID]time.Time
	active  map[domain.ClientID]time.Time
	now     func() time.Time
}

type MemoryBackendOption func(*MemoryBackend)

// WithMemoryClock injeta o relógio (testes avançam o tempo manualmente).
func WithMemoryClock(now func() time.Time) MemoryBackendOption {
	return func(b *MemoryBackend) { b.now = now }
}

func NewMemoryBackend(opts ...MemoryBackendOption) *MemoryBackend {
	b := &MemoryBackend{
		waiting: make(map[domain.ClientID]float64),
		waitTTL: make(map[domain.ClientID]time.Time),
		active:  make(map[domain.ClientID]time.Time),
		now:     time.Now,
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

var _ domain.Backend = (*MemoryBackend)(nil)

type waitingEntry struct {
	id      domain.ClientID
	arrival float64
}

// ordered deve ser chamado com mu travado.
func (b *MemoryBackend) ordered() []waitingEntry {
	out := make([]waitingEntry, 0, len(b.waiting))
	for id, s := range b.waiting {
		out = append(out, waitingEntry{id: id, arrival: s})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].arrival != out[j].arrival {
			return out[i].arrival < out[j].arrival
		}
		return out[i].id < out[j].id
	})
	return out
}

func (b *MemoryBackend) Enqueue(_ context.Context, id domain.ClientID, arrival float64) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.waiting[id]; ok {
		return false, nil
	}
	b.waiting[id] = arrival
	return true, nil
}

func (b *MemoryBackend) RankOf(_ context.Context, id domain.ClientID) (int64, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.waiting[id]; !ok {
		return -1, false, nil
	}
	for i, e := range b.ordered() {
		if e.id == id {
			return int64(i), true, nil
		}
	}
	return -1, false, nil
}

func (b *MemoryBackend) PopLowest(_ context.Context, n int) ([]domain.ClientID, error) {
	if n <= 0 {
		return nil, nil
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	entries := b.ordered()
	if n > len(entries) {
		n = len(entries)
	}
	out := make([]domain.ClientID, 0, n)
	for _, e := range entries[:n] {
		delete(b.waiting, e.id)
		out = append(out, e.id)
	}
	return out, nil
}

func (b *MemoryBackend) Remove(_ context.Context, id domain.ClientID) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.waiting[id]; !ok {
		return false, nil
	}
	delete(b.waiting, id)
	return true, nil
}

// ListRange segue os índices do ZRANGE: negativos contam a partir do fim.
func (b *MemoryBackend) ListRange(_ context.Context, start, end int64) ([]domain.ClientID, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	entries := b.ordered()
	size := int64(len(entries))
	if start < 0 {
		start += size
	}
	if end < 0 {
		end += size
	}
	if start < 0 {
		start = 0
	}
	if end >= size {
		end = size - 1
	}
	if start > end {
		return []domain.ClientID{}, nil
	}
	out := make([]domain.ClientID, 0, end-start+1)
	for _, e := range entries[start : end+1] {
		out = append(out, e.id)
	}
	return out, nil
}

func (b *MemoryBackend) TouchWaiting(_ context.Context, id domain.ClientID, ttl time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.waitTTL[id] = b.now().Add(ttl)
	return nil
}

func (b *MemoryBackend) IsAliveWaiting(_ context.Context, id domain.ClientID) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	deadline, ok := b.waitTTL[id]
	if !ok {
		return false, nil
	}
	if !deadline.After(b.now()) {
		delete(b.waitTTL, id)
		return false, nil
	}
	return true, nil
}

func (b *MemoryBackend) DropWaiting(_ context.Context, id domain.ClientID) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.waitTTL, id)
	return nil
}

// aliveActive deve ser chamado com mu travado.
func (b *MemoryBackend) aliveActive(id domain.ClientID) bool {
	deadline, ok := b.active[id]
	if !ok {
		return false
	}
	if !deadline.After(b.now()) {
		delete(b.active, id)
		return false
	}
	return true
}

func (b *MemoryBackend) TouchActive(_ context.Context, id domain.ClientID, ttl time.Duration) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.aliveActive(id) {
		return false, nil
	}
	b.active[id] = b.now().Add(ttl)
	return true, nil
}

func (b *MemoryBackend) IsAliveActive(_ context.Context, id domain.ClientID) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.aliveActive(id), nil
}

func (b *MemoryBackend) DropActive(ctx context.Context, id domain.ClientID) error {
	_, err := b.Release(ctx, id)
	return err
}

// pruneActive deve ser chamado com mu travado.
func (b *MemoryBackend) pruneActive() {
	now := b.now()
	for id, deadline := range b.active {
		if !deadline.After(now) {
			delete(b.active, id)
		}
	}
}

func (b *MemoryBackend) Count(_ context.Context) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.pruneActive()
	return len(b.active), nil
}

func (b *MemoryBackend) Admit(_ context.Context, id domain.ClientID, ttl time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.active[id] = b.now().Add(ttl)
	return nil
}

func (b *MemoryBackend) Release(_ context.Context, id domain.ClientID) (bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.active[id]; !ok {
		return false, nil
	}
	delete(b.active, id)
	return true, nil
}

func (b *MemoryBackend) ListActive(_ context.Context) ([]domain.ClientID, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.pruneActive()
	out := make([]domain.ClientID, 0, len(b.active))
	for id := range b.active {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out, nil
}
