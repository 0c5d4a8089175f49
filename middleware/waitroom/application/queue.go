package application

import (
	"context"
	"errors"
	"time"

	"waitroom-gateway/middleware/waitroom/domain"

	"github.com/rs/zerolog"
)

const (
	defaultWaitingTTL = 10 * time.Second
	defaultActiveTTL  = 10 * time.Minute
)

// Queue é a fachada da sala de espera: join, heartbeats, status e saída.
//
// Erros do backend nunca sobem como falha: depois das tentativas de Retry
// viram domain.StateUnavailable. O único erro retornado é
// domain.ErrInvalidClientID.
//
// Ordem de escrita: o marcador de vida é gravado antes da entrada na fila
// (uma falha no meio deixa só um marcador órfão, que expira sozinho).
type Queue struct {
	Backend domain.Backend
	Stats   domain.StatsStore
	Log     zerolog.Logger
	Retry   Retry

	WaitingTTL time.Duration
	ActiveTTL  time.Duration

	// Now gera o score de chegada. Se nil, usa time.Now.
	Now func() time.Time
}

func (q Queue) withDefaults() Queue {
	if q.WaitingTTL <= 0 {
		q.WaitingTTL = defaultWaitingTTL
	}
	if q.ActiveTTL <= 0 {
		q.ActiveTTL = defaultActiveTTL
	}
	if q.Now == nil {
		q.Now = time.Now
	}
	return q
}

// Join coloca o cliente na fila. Idempotente: quem já espera mantém o score
// original e só renova o marcador; quem já está ativo recebe ACTIVE.
func (q Queue) Join(ctx context.Context, id domain.ClientID) (domain.Status, error) {
	id, err := id.Validate()
	if err != nil {
		return domain.Absent(), err
	}
	q = q.withDefaults()
	arrival := float64(q.Now().UnixMicro())

	var st domain.Status
	var added bool
	err = q.Retry.Do(ctx, func(ctx context.Context) error {
		var err error
		st, added, err = q.join(ctx, id, arrival)
		return err
	})
	if err != nil {
		return q.unavailable("join", id, err), nil
	}
	if added {
		q.record(ctx, domain.EventJoined)
		q.Log.Debug().Str("client", string(id)).Int64("rank", st.Rank).Msg("joined")
	}
	return st, nil
}

func (q Queue) join(ctx context.Context, id domain.ClientID, arrival float64) (domain.Status, bool, error) {
	active, err := q.Backend.IsAliveActive(ctx, id)
	if err != nil {
		return domain.Status{}, false, err
	}
	if active {
		return domain.Active(), false, nil
	}

	if err := q.Backend.TouchWaiting(ctx, id, q.WaitingTTL); err != nil {
		return domain.Status{}, false, err
	}
	added, err := q.Backend.Enqueue(ctx, id, arrival)
	if err != nil {
		return domain.Status{}, false, err
	}

	// Um ciclo pode ter promovido o cliente entre a checagem de ACTIVE e o
	// Enqueue. Nesse caso a entrada recém-criada é desfeita para manter o
	// cliente em um só conjunto. Admit é idempotente, então mesmo que o
	// próximo ciclo a veja antes, não há vaga duplicada.
	if added {
		active, err := q.Backend.IsAliveActive(ctx, id)
		if err != nil {
			return domain.Status{}, false, err
		}
		if active {
			if _, err := q.Backend.Remove(ctx, id); err != nil {
				return domain.Status{}, false, err
			}
			_ = q.Backend.DropWaiting(ctx, id)
			return domain.Active(), false, nil
		}
	}

	st, err := q.status(ctx, id)
	return st, added, err
}

// Poll é o atalho usado pelo polling dos clientes: ACTIVE renova a vaga,
// WAITING renova o marcador, ABSENT entra na fila.
func (q Queue) Poll(ctx context.Context, id domain.ClientID) (domain.Status, error) {
	id, err := id.Validate()
	if err != nil {
		return domain.Absent(), err
	}
	q = q.withDefaults()

	var st domain.Status
	err = q.Retry.Do(ctx, func(ctx context.Context) error {
		ok, err := q.Backend.TouchActive(ctx, id, q.ActiveTTL)
		if err != nil {
			return err
		}
		if ok {
			st = domain.Active()
			return nil
		}
		st, err = q.touchWaiting(ctx, id)
		return err
	})
	if err != nil {
		return q.unavailable("poll", id, err), nil
	}
	if st.State == domain.StateAbsent {
		return q.Join(ctx, id)
	}
	return st, nil
}

// HeartbeatWait renova o marcador de espera. Nunca altera o score de chegada,
// então o rank só muda quando alguém à frente sai.
func (q Queue) HeartbeatWait(ctx context.Context, id domain.ClientID) (domain.Status, error) {
	id, err := id.Validate()
	if err != nil {
		return domain.Absent(), err
	}
	q = q.withDefaults()

	var st domain.Status
	err = q.Retry.Do(ctx, func(ctx context.Context) error {
		var err error
		st, err = q.touchWaiting(ctx, id)
		if err != nil || st.State != domain.StateAbsent {
			return err
		}
		active, err := q.Backend.IsAliveActive(ctx, id)
		if active {
			st = domain.Active()
		}
		return err
	})
	if err != nil {
		return q.unavailable("heartbeat-wait", id, err), nil
	}
	return st, nil
}

// touchWaiting só grava o marcador se a entrada existir.
func (q Queue) touchWaiting(ctx context.Context, id domain.ClientID) (domain.Status, error) {
	rank, ok, err := q.Backend.RankOf(ctx, id)
	if err != nil {
		return domain.Status{}, err
	}
	if !ok {
		return domain.Absent(), nil
	}
	if err := q.Backend.TouchWaiting(ctx, id, q.WaitingTTL); err != nil {
		return domain.Status{}, err
	}
	return domain.Waiting(rank), nil
}

// HeartbeatActive estende a vaga de um cliente ativo.
func (q Queue) HeartbeatActive(ctx context.Context, id domain.ClientID) (domain.Status, error) {
	id, err := id.Validate()
	if err != nil {
		return domain.Absent(), err
	}
	q = q.withDefaults()

	var st domain.Status
	err = q.Retry.Do(ctx, func(ctx context.Context) error {
		ok, err := q.Backend.TouchActive(ctx, id, q.ActiveTTL)
		if err != nil {
			return err
		}
		if ok {
			st = domain.Active()
			return nil
		}
		st, err = q.waitingOrAbsent(ctx, id)
		return err
	})
	if err != nil {
		return q.unavailable("heartbeat-active", id, err), nil
	}
	return st, nil
}

// Status é somente leitura: ACTIVE, WAITING+rank ou ABSENT.
func (q Queue) Status(ctx context.Context, id domain.ClientID) (domain.Status, error) {
	id, err := id.Validate()
	if err != nil {
		return domain.Absent(), err
	}

	var st domain.Status
	err = q.Retry.Do(ctx, func(ctx context.Context) error {
		var err error
		st, err = q.status(ctx, id)
		return err
	})
	if err != nil {
		return q.unavailable("status", id, err), nil
	}
	return st, nil
}

func (q Queue) status(ctx context.Context, id domain.ClientID) (domain.Status, error) {
	active, err := q.Backend.IsAliveActive(ctx, id)
	if err != nil {
		return domain.Status{}, err
	}
	if active {
		return domain.Active(), nil
	}
	return q.waitingOrAbsent(ctx, id)
}

func (q Queue) waitingOrAbsent(ctx context.Context, id domain.ClientID) (domain.Status, error) {
	rank, ok, err := q.Backend.RankOf(ctx, id)
	if err != nil {
		return domain.Status{}, err
	}
	if !ok {
		return domain.Absent(), nil
	}
	return domain.Waiting(rank), nil
}

// Rank consulta só a fila de espera (não olha vagas ativas).
func (q Queue) Rank(ctx context.Context, id domain.ClientID) (domain.Status, error) {
	id, err := id.Validate()
	if err != nil {
		return domain.Absent(), err
	}

	var st domain.Status
	err = q.Retry.Do(ctx, func(ctx context.Context) error {
		var err error
		st, err = q.waitingOrAbsent(ctx, id)
		return err
	})
	if err != nil {
		return q.unavailable("rank", id, err), nil
	}
	return st, nil
}

// Leave remove o cliente de onde estiver (fila ou vaga ativa).
func (q Queue) Leave(ctx context.Context, id domain.ClientID) (domain.Status, error) {
	id, err := id.Validate()
	if err != nil {
		return domain.Absent(), err
	}

	var left, released bool
	err = q.Retry.Do(ctx, func(ctx context.Context) error {
		var err error
		left, err = q.removeWaiting(ctx, id)
		if err != nil {
			return err
		}
		released, err = q.Backend.Release(ctx, id)
		return err
	})
	if err != nil {
		return q.unavailable("leave", id, err), nil
	}
	q.recordLeave(ctx, id, left, released)
	return domain.Absent(), nil
}

// LeaveWaiting sai só da fila de espera; uma vaga ativa, se houver, fica.
func (q Queue) LeaveWaiting(ctx context.Context, id domain.ClientID) (domain.Status, error) {
	id, err := id.Validate()
	if err != nil {
		return domain.Absent(), err
	}

	var left bool
	err = q.Retry.Do(ctx, func(ctx context.Context) error {
		var err error
		left, err = q.removeWaiting(ctx, id)
		return err
	})
	if err != nil {
		return q.unavailable("leave-waiting", id, err), nil
	}
	q.recordLeave(ctx, id, left, false)
	return domain.Absent(), nil
}

// LeaveActive sinaliza que o cliente terminou a ação no recurso protegido.
func (q Queue) LeaveActive(ctx context.Context, id domain.ClientID) (domain.Status, error) {
	id, err := id.Validate()
	if err != nil {
		return domain.Absent(), err
	}

	var released bool
	err = q.Retry.Do(ctx, func(ctx context.Context) error {
		var err error
		released, err = q.Backend.Release(ctx, id)
		return err
	})
	if err != nil {
		return q.unavailable("leave-active", id, err), nil
	}
	q.recordLeave(ctx, id, false, released)
	return domain.Absent(), nil
}

// ForceRemove é a remoção administrativa. kind escolhe o conjunto
// (StateWaiting ou StateActive).
func (q Queue) ForceRemove(ctx context.Context, id domain.ClientID, kind domain.State) (bool, error) {
	id, err := id.Validate()
	if err != nil {
		return false, err
	}
	if kind != domain.StateWaiting && kind != domain.StateActive {
		return false, errInvalidKind
	}

	var removed bool
	err = q.Retry.Do(ctx, func(ctx context.Context) error {
		var err error
		if kind == domain.StateWaiting {
			removed, err = q.removeWaiting(ctx, id)
		} else {
			removed, err = q.Backend.Release(ctx, id)
		}
		return err
	})
	if err != nil {
		return false, err
	}
	if removed {
		q.Log.Info().Str("client", string(id)).Stringer("from", kind).Msg("force removed")
		q.recordLeave(ctx, id, kind == domain.StateWaiting, kind == domain.StateActive)
	}
	return removed, nil
}

var errInvalidKind = errors.New("waitroom: remove kind must be WAITING or ACTIVE")

// IsInvalidKind permite ao adapter HTTP responder 400.
func IsInvalidKind(err error) bool { return errors.Is(err, errInvalidKind) }

// removeWaiting apaga a entrada e depois o marcador.
func (q Queue) removeWaiting(ctx context.Context, id domain.ClientID) (bool, error) {
	removed, err := q.Backend.Remove(ctx, id)
	if err != nil {
		return false, err
	}
	if err := q.Backend.DropWaiting(ctx, id); err != nil {
		return removed, err
	}
	return removed, nil
}

// ListWaiting lista a fila por índice (end inclusivo, -1 = último).
func (q Queue) ListWaiting(ctx context.Context, start, end int64) ([]domain.ClientID, error) {
	var ids []domain.ClientID
	err := q.Retry.Do(ctx, func(ctx context.Context) error {
		var err error
		ids, err = q.Backend.ListRange(ctx, start, end)
		return err
	})
	return ids, err
}

func (q Queue) ListActive(ctx context.Context) ([]domain.ClientID, error) {
	var ids []domain.ClientID
	err := q.Retry.Do(ctx, func(ctx context.Context) error {
		var err error
		ids, err = q.Backend.ListActive(ctx)
		return err
	})
	return ids, err
}

func (q Queue) unavailable(op string, id domain.ClientID, err error) domain.Status {
	q.Log.Warn().Err(err).Str("op", op).Str("client", string(id)).Msg("backend unavailable")
	return domain.Unavailable()
}

func (q Queue) recordLeave(ctx context.Context, id domain.ClientID, left, released bool) {
	if left {
		q.record(ctx, domain.EventLeft)
	}
	if released {
		q.record(ctx, domain.EventReleased)
	}
	if left || released {
		q.Log.Debug().Str("client", string(id)).Bool("waiting", left).Bool("active", released).Msg("left")
	}
}

func (q Queue) record(ctx context.Context, kind domain.EventKind) {
	if q.Stats == nil {
		return
	}
	now := time.Now
	if q.Now != nil {
		now = q.Now
	}
	if err := q.Stats.Record(ctx, domain.QueueEvent{Kind: kind, At: now()}); err != nil {
		q.Log.Debug().Err(err).Str("kind", string(kind)).Msg("stats record failed")
	}
}
