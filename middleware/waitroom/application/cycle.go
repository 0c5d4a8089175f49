package application

import (
	"context"
	"time"

	"waitroom-gateway/middleware/waitroom/domain"

	"github.com/rs/zerolog"
)

// Cycle é o ciclo de admissão: a cada Interval remove quem abandonou a fila
// (fase A) e promove os primeiros da fila para as vagas livres (fase B).
//
// O ciclo assume uma única instância. A checagem de vagas livres (Count) não
// é atômica entre processos: rodar mais de um ciclo contra o mesmo backend
// exige exclusão externa (lock distribuído / eleição de líder), senão pode
// haver excesso transitório acima de MaxActive. PopLowest continua garantindo
// que ninguém é admitido duas vezes.
//
// Perda conhecida: se o processo morrer entre o PopLowest e o Admit, o
// cliente some dos dois conjuntos. Admit é repetido até AdmitAttempts vezes
// dentro da mesma execução para reduzir essa janela.
type Cycle struct {
	Backend domain.Backend
	Stats   domain.StatsStore
	Guard   domain.RunGuard
	Log     zerolog.Logger

	MaxActive int
	ActiveTTL time.Duration
	Interval  time.Duration

	// Timeout de cada chamada ao backend (<= 0 = sem timeout).
	Timeout       time.Duration
	AdmitAttempts int

	// Now carimba os eventos de estatística. Se nil, usa time.Now.
	Now func() time.Time
}

// Report resume uma execução do ciclo.
type Report struct {
	Skipped  bool
	Evicted  int
	Promoted int
	Lost     int
	Errors   int
}

// RunOnce executa as duas fases, nessa ordem. Nunca retorna erro: falhas
// aparecem no log e em Report.Errors.
func (c Cycle) RunOnce(ctx context.Context) Report {
	if c.Guard != nil {
		release, ok := c.Guard.TryAcquire()
		if !ok {
			c.Log.Debug().Msg("cycle skipped: previous run still in flight")
			return Report{Skipped: true}
		}
		defer release()
	}

	var rep Report
	c.evict(ctx, &rep)
	if ctx.Err() == nil {
		c.promote(ctx, &rep)
	}

	if rep.Evicted > 0 || rep.Promoted > 0 || rep.Lost > 0 || rep.Errors > 0 {
		c.Log.Info().
			Int("evicted", rep.Evicted).
			Int("promoted", rep.Promoted).
			Int("lost", rep.Lost).
			Int("errors", rep.Errors).
			Msg("cycle done")
	}
	return rep
}

// evict é a fase A: varre a fila inteira e remove quem não tem marcador.
func (c Cycle) evict(ctx context.Context, rep *Report) {
	var ids []domain.ClientID
	err := c.call(ctx, func(ctx context.Context) error {
		var err error
		ids, err = c.Backend.ListRange(ctx, 0, -1)
		return err
	})
	if err != nil {
		rep.Errors++
		c.Log.Error().Err(err).Msg("list waiting failed")
		return
	}

	for _, id := range ids {
		if ctx.Err() != nil {
			return
		}

		var alive bool
		err := c.call(ctx, func(ctx context.Context) error {
			var err error
			alive, err = c.Backend.IsAliveWaiting(ctx, id)
			return err
		})
		if err != nil {
			rep.Errors++
			c.Log.Warn().Err(err).Str("client", string(id)).Msg("liveness check failed")
			continue
		}
		if alive {
			continue
		}

		var removed bool
		err = c.call(ctx, func(ctx context.Context) error {
			var err error
			removed, err = c.Backend.Remove(ctx, id)
			return err
		})
		if err != nil {
			rep.Errors++
			c.Log.Warn().Err(err).Str("client", string(id)).Msg("evict failed")
			continue
		}
		if !removed {
			continue
		}
		_ = c.call(ctx, func(ctx context.Context) error { return c.Backend.DropWaiting(ctx, id) })

		rep.Evicted++
		c.record(ctx, domain.EventEvicted)
		c.Log.Debug().Str("client", string(id)).Msg("evicted")
	}
}

// promote é a fase B: pop antes de admit, nunca o contrário.
func (c Cycle) promote(ctx context.Context, rep *Report) {
	var active int
	err := c.call(ctx, func(ctx context.Context) error {
		var err error
		active, err = c.Backend.Count(ctx)
		return err
	})
	if err != nil {
		rep.Errors++
		c.Log.Error().Err(err).Msg("count active failed")
		return
	}

	available := c.MaxActive - active
	if available <= 0 {
		return
	}

	var ids []domain.ClientID
	err = c.call(ctx, func(ctx context.Context) error {
		var err error
		ids, err = c.Backend.PopLowest(ctx, available)
		return err
	})
	if err != nil {
		rep.Errors++
		c.Log.Error().Err(err).Int("available", available).Msg("pop waiting failed")
		return
	}

	ttl := c.ActiveTTL
	if ttl <= 0 {
		ttl = defaultActiveTTL
	}
	admit := Retry{Attempts: c.AdmitAttempts, Timeout: c.Timeout, Backoff: 10 * time.Millisecond}
	if admit.Attempts <= 0 {
		admit.Attempts = 3
	}

	// Um admit com problema não interrompe o resto do lote. Usa um contexto
	// que não é cancelado no shutdown: quem já saiu da fila precisa da vaga.
	admitCtx := context.WithoutCancel(ctx)
	for _, id := range ids {
		err := admit.Do(admitCtx, func(ctx context.Context) error {
			return c.Backend.Admit(ctx, id, ttl)
		})
		if err != nil {
			rep.Lost++
			c.record(ctx, domain.EventAdmitFailed)
			c.Log.Error().Err(err).Str("client", string(id)).Msg("admit failed, client dropped from queue")
			continue
		}
		_ = c.call(admitCtx, func(ctx context.Context) error { return c.Backend.DropWaiting(ctx, id) })

		rep.Promoted++
		c.record(ctx, domain.EventPromoted)
		c.Log.Debug().Str("client", string(id)).Msg("promoted")
	}
}

func (c Cycle) call(ctx context.Context, fn func(ctx context.Context) error) error {
	if c.Timeout <= 0 {
		return fn(ctx)
	}
	callCtx, cancel := context.WithTimeout(ctx, c.Timeout)
	defer cancel()
	return fn(callCtx)
}

func (c Cycle) record(ctx context.Context, kind domain.EventKind) {
	if c.Stats == nil {
		return
	}
	now := time.Now
	if c.Now != nil {
		now = c.Now
	}
	if err := c.Stats.Record(context.WithoutCancel(ctx), domain.QueueEvent{Kind: kind, At: now()}); err != nil {
		c.Log.Debug().Err(err).Str("kind", string(kind)).Msg("stats record failed")
	}
}

// Run roda o ciclo a cada Interval até ctx encerrar. Bloqueia.
// A primeira execução acontece imediatamente.
func (c Cycle) Run(ctx context.Context) error {
	interval := c.Interval
	if interval <= 0 {
		interval = 2 * time.Second
	}

	c.Log.Info().
		Int("maxActive", c.MaxActive).
		Dur("interval", interval).
		Dur("activeTTL", c.ActiveTTL).
		Msg("admission cycle started")

	c.RunOnce(ctx)

	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			c.Log.Info().Msg("admission cycle stopped")
			return nil
		case <-t.C:
			c.RunOnce(ctx)
		}
	}
}

// Start roda Run numa goroutine. Pare cancelando o contexto.
func (c Cycle) Start(ctx context.Context) {
	go func() { _ = c.Run(ctx) }()
}
