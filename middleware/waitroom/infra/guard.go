package infra

import "waitroom-gateway/middleware/waitroom/domain"

type chanGuard struct {
	sem chan struct{}
}

// NewChanGuard cria um guard baseado em channel com capacidade 1.
func NewChanGuard() domain.RunGuard {
	return &chanGuard{sem: make(chan struct{}, 1)}
}

func (g *chanGuard) TryAcquire() (func(), bool) {
	select {
	case g.sem <- struct{}{}:
		return func() { <-g.sem }, true
	default:
		return nil, false
	}
}
