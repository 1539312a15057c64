package rag

import (
	"context"
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// Pacer keeps a fixed gap between the end of one call to an external
// capability and the start of the next. A nil Pacer never waits.
//
// Callers Wait before a call and call Done once it returns.
type Pacer struct {
	interval time.Duration

	mu      sync.Mutex
	limiter *rate.Limiter
}

// NewPacer creates a Pacer with the given gap. A non-positive interval
// disables pacing and returns nil.
func NewPacer(interval time.Duration) *Pacer {
	if interval <= 0 {
		return nil
	}
	return &Pacer{
		interval: interval,
		limiter:  rate.NewLimiter(rate.Every(interval), 1),
	}
}

// Wait blocks until a full interval has passed since the last Done, or ctx
// is done. Before the first Done it returns immediately.
func (p *Pacer) Wait(ctx context.Context) error {
	if p == nil {
		return nil
	}
	p.mu.Lock()
	limiter := p.limiter
	p.mu.Unlock()
	return limiter.Wait(ctx)
}

// Done marks the end of a call. The next Wait is held for the whole
// interval from now, however long the call took.
func (p *Pacer) Done() {
	if p == nil {
		return
	}
	now := time.Now()
	limiter := rate.NewLimiter(rate.Every(p.interval), 1)
	limiter.AllowN(now, 1)

	p.mu.Lock()
	p.limiter = limiter
	p.mu.Unlock()
}
