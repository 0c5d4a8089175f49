package domain

import (
	"context"
	"time"
)

// WaitingStore é o conjunto ordenado de clientes em espera.
//
// A ordem é pelo score de chegada (fixo na criação); empates são resolvidos
// pelo id, para que o rank seja determinístico.
type WaitingStore interface {
	// Enqueue insere se ausente. Nunca altera o score de quem já está na fila.
	Enqueue(ctx context.Context, id ClientID, arrival float64) (added bool, err error)
	// RankOf retorna a posição 0-indexada, ou ok=false se ausente.
	RankOf(ctx context.Context, id ClientID) (rank int64, ok bool, err error)
	// PopLowest remove e retorna até n ids em ordem de chegada.
	// Chamadas concorrentes nunca recebem o mesmo id.
	PopLowest(ctx context.Context, n int) ([]ClientID, error)
	Remove(ctx context.Context, id ClientID) (removed bool, err error)
	// ListRange segue a semântica de índices do ZRANGE (end inclusivo, -1 = último).
	ListRange(ctx context.Context, start, end int64) ([]ClientID, error)
}

// LivenessTracker mantém marcadores com expiração.
//
// A expiração é avaliada de forma preguiçosa pelo backend: ausência na
// leitura é o único sinal. Não há callbacks.
type LivenessTracker interface {
	TouchWaiting(ctx context.Context, id ClientID, ttl time.Duration) error
	// TouchActive estende o TTL de uma vaga existente; retorna false se não há vaga.
	TouchActive(ctx context.Context, id ClientID, ttl time.Duration) (bool, error)
	IsAliveWaiting(ctx context.Context, id ClientID) (bool, error)
	IsAliveActive(ctx context.Context, id ClientID) (bool, error)
	DropWaiting(ctx context.Context, id ClientID) error
	DropActive(ctx context.Context, id ClientID) error
}

// ActiveSet é o conjunto limitado de clientes admitidos.
//
// Admit não revalida capacidade: quem limita é o ciclo de admissão, que é
// o único escritor de admissões.
type ActiveSet interface {
	Count(ctx context.Context) (int, error)
	// Admit cria a vaga junto com o marcador de vida ativo. Idempotente.
	Admit(ctx context.Context, id ClientID, ttl time.Duration) error
	Release(ctx context.Context, id ClientID) (removed bool, err error)
	ListActive(ctx context.Context) ([]ClientID, error)
}

// Backend agrupa as três coleções lógicas. Implementações concretas
// (Redis, memória) implementam tudo num tipo só, para que a disciplina de
// ordem de escrita fique num lugar.
type Backend interface {
	WaitingStore
	LivenessTracker
	ActiveSet
}
