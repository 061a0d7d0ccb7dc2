package wsapi

import (
	"context"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

// Pool round-robins outbound request/response traffic across N sessions to
// the same WS-API endpoint, amortizing per-connection latency and avoiding
// head-of-line blocking on concurrent order placements.
type Pool struct {
	sessions []*Session
	next     uint64 // atomic
	log      *zap.Logger
}

// NewPool constructs n sessions from factory (index 0..n-1) and wires them
// into a round-robin pool. It does not start them; call Run.
func NewPool(n int, factory func(index int) *Session, log *zap.Logger) *Pool {
	sessions := make([]*Session, n)
	for i := 0; i < n; i++ {
		sessions[i] = factory(i)
	}
	return &Pool{sessions: sessions, log: log}
}

// Run starts every session's Run loop, staggering each start by 500ms per
// index to avoid synchronized reconnect storms across the pool. Blocks until
// ctx is cancelled.
func (p *Pool) Run(ctx context.Context) {
	for i, sess := range p.sessions {
		i, sess := i, sess
		go func() {
			select {
			case <-ctx.Done():
				return
			case <-time.After(time.Duration(i) * 500 * time.Millisecond):
			}
			sess.Run(ctx)
		}()
	}
	<-ctx.Done()
}

// Send picks the next ready, non-degraded session via monotonic round-robin,
// probing up to len(sessions) times. Returns (_, false) if none is ready.
func (p *Pool) Send(payload interface{}, correlationID string) (interface{}, bool) {
	n := len(p.sessions)
	if n == 0 {
		return nil, false
	}
	start := atomic.AddUint64(&p.next, 1)
	for probe := 0; probe < n; probe++ {
		idx := (start + uint64(probe)) % uint64(n)
		sess := p.sessions[idx]
		if !sess.Ready() || sess.Degraded() {
			continue
		}
		resp, err := sess.Send(payload, correlationID)
		if err != nil {
			continue
		}
		return resp, true
	}
	return nil, false
}

// CloseAll closes every session in the pool.
func (p *Pool) CloseAll() {
	for _, sess := range p.sessions {
		sess.Close()
	}
}

// Size returns the number of sessions in the pool.
func (p *Pool) Size() int { return len(p.sessions) }
