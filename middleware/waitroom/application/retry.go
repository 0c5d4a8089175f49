package application

import (
	"context"
	"fmt"
	"time"

	"waitroom-gateway/middleware/waitroom/domain"
)

// Retry define tentativas limitadas para chamadas ao backend.
//
// Cada tentativa roda com seu próprio timeout (Timeout <= 0 = sem timeout).
// Entre tentativas espera Backoff * n.
type Retry struct {
	Attempts int
	Timeout  time.Duration
	Backoff  time.Duration
}

// Do executa fn até dar certo ou acabarem as tentativas.
// Ao esgotar, o erro retornado casa com domain.ErrUnavailable (errors.Is).
func (r Retry) Do(ctx context.Context, fn func(ctx context.Context) error) error {
	attempts := r.Attempts
	if attempts <= 0 {
		attempts = 1
	}

	var err error
	for i := 0; i < attempts; i++ {
		if i > 0 && r.Backoff > 0 {
			t := time.NewTimer(time.Duration(i) * r.Backoff)
			select {
			case <-ctx.Done():
				t.Stop()
				return fmt.Errorf("%w: %w", domain.ErrUnavailable, ctx.Err())
			case <-t.C:
			}
		}

		err = r.once(ctx, fn)
		if err == nil {
			return nil
		}
		if ctx.Err() != nil {
			break
		}
	}
	return fmt.Errorf("%w: %w", domain.ErrUnavailable, err)
}

func (r Retry) once(ctx context.Context, fn func(ctx context.Context) error) error {
	if r.Timeout <= 0 {
		return fn(ctx)
	}
	callCtx, cancel := context.WithTimeout(ctx, r.Timeout)
	defer cancel()
	return fn(callCtx)
}
