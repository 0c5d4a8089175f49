package domain

import (
	"context"
	"time"
)

// EventKind é o tipo de transição registrada nas estatísticas.
type EventKind string

const (
	EventJoined      EventKind = "joined"
	EventPromoted    EventKind = "promoted"
	EventEvicted     EventKind = "evicted"
	EventLeft        EventKind = "left"
	EventReleased    EventKind = "released"
	EventAdmitFailed EventKind = "admit_failed"
	// chamada à API da fila recusada pelo throttle
	EventThrottled EventKind = "throttled"
)

// QueueEvent representa uma transição de estado de um cliente.
//
// Observação: o id do cliente não vai para as estatísticas (cardinalidade).
type QueueEvent struct {
	Kind EventKind
	At   time.Time
}

// StatsStore é a estratégia de persistência das estatísticas da fila.
//
// Quem chama trata erro como best-effort (nunca derruba a operação).
type StatsStore interface {
	Record(ctx context.Context, ev QueueEvent) error
	Totals(ctx context.Context) (map[EventKind]int64, error)
}
