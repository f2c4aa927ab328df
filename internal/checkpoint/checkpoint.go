// Package checkpoint runs the background task the spec places outside the
// storage core itself (§5): periodically calling flush(Checkpoint) on
// every live scope, and flush(Force) once on shutdown.
package checkpoint

import (
	"context"
	"time"

	"golang.org/x/time/rate"

	"github.com/sapic-foundation/sapic-core/internal/applog"
	"github.com/sapic-foundation/sapic-core/internal/kv"
)

// ScopeLister returns every scope currently open, evaluated fresh on each
// tick so newly opened or closed scopes are picked up automatically.
type ScopeLister func() []kv.KvStorage

// Scheduler periodically flushes every scope returned by its ScopeLister,
// rate-limited so many concurrently open scopes don't all flush in the
// same instant (§2 domain-stack wiring: golang.org/x/time/rate "gates the
// background checkpoint ticker").
type Scheduler struct {
	lister  ScopeLister
	period  time.Duration
	limiter *rate.Limiter
}

// New returns a Scheduler that ticks every period. Each tick flushes the
// scopes one after another, waiting on limiter before each flush.
func New(lister ScopeLister, period time.Duration, limiter *rate.Limiter) *Scheduler {
	return &Scheduler{lister: lister, period: period, limiter: limiter}
}

// Run blocks, flushing on every tick, until ctx is cancelled. On
// cancellation it runs one final Force flush pass before returning.
func (s *Scheduler) Run(ctx context.Context) {
	ticker := time.NewTicker(s.period)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.flushAll(ctx, kv.Checkpoint)
		case <-ctx.Done():
			s.flushAll(context.Background(), kv.Force)
			return
		}
	}
}

func (s *Scheduler) flushAll(ctx context.Context, mode kv.FlushMode) {
	for _, scope := range s.lister() {
		if err := s.limiter.Wait(ctx); err != nil {
			return
		}
		if err := scope.Flush(ctx, mode); err != nil {
			applog.Warnf("checkpoint: flush failed: %v", err)
		}
	}
}
