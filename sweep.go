package asteriskace

import (
	"context"
	"sync"
	"time"

	"github.com/avrkr/asteriskace/logger"
)

// Sweeper periodically removes rules past expiration from the rule store.
// It is an optimization to bound store growth, never a correctness
// mechanism: the matcher's lazy expiry check already denies expired rules,
// so decisions are identical with or without the sweep running.
type Sweeper struct {
	engine   *Engine
	interval time.Duration
	log      logger.Logger

	stopCh  chan struct{}
	mu      sync.Mutex
	started bool
	wg      sync.WaitGroup
}

// SweeperOption configures a Sweeper
type SweeperOption func(s *Sweeper)

// WithSweepInterval sets the sweep period (default one hour)
func WithSweepInterval(d time.Duration) SweeperOption {
	return func(s *Sweeper) {
		if d > 0 {
			s.interval = d
		}
	}
}

// WithSweeperLogger sets the sweeper's logger
func WithSweeperLogger(l logger.Logger) SweeperOption {
	return func(s *Sweeper) {
		s.log = l
	}
}

// NewSweeper builds a sweeper over the engine's rule store
func NewSweeper(e *Engine, opts ...SweeperOption) *Sweeper {
	s := &Sweeper{
		engine:   e,
		interval: time.Hour,
		log:      e.log,
		stopCh:   make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Start launches the sweep loop on its own goroutine
func (s *Sweeper) Start(ctx context.Context) {
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		return
	}
	s.started = true
	s.mu.Unlock()

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopCh:
				return
			case <-ticker.C:
				if _, err := s.Sweep(ctx); err != nil {
					s.log.Error("rule sweep failed", "error", err.Error())
				}
			}
		}
	}()
}

// Stop halts the loop and waits for the in-flight sweep to finish
func (s *Sweeper) Stop(ctx context.Context) error {
	s.mu.Lock()
	if !s.started {
		s.mu.Unlock()
		return nil
	}
	s.started = false
	s.mu.Unlock()

	close(s.stopCh)
	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-done:
		return nil
	}
}

// Sweep performs one pass, deleting every rule already expired. It holds
// no engine locks; each delete is an independent store call, so the
// decision path is never blocked for more than one store operation.
func (s *Sweeper) Sweep(ctx context.Context) (int, error) {
	now := s.engine.clock()
	rules, err := s.engine.rules.ListAllRules(ctx)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, r := range rules {
		if !r.IsExpired(now) {
			continue
		}
		found, err := s.engine.rules.DeleteRule(ctx, r.ID)
		if err != nil {
			return removed, err
		}
		if found {
			removed++
		}
	}
	if removed > 0 {
		s.engine.epoch.Add(1)
		s.log.Info("expired rules swept", "removed", removed)
	}
	return removed, nil
}
