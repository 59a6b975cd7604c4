package workerclient

import (
	"context"
	"sync"

	"go.uber.org/atomic"
	"go.uber.org/zap"
)

// Supervisor runs one Runner per restaurant until Shutdown or a fatal error.
type Supervisor struct {
	runners []*Runner
	closing *atomic.Bool
	cancel  context.CancelFunc
	mu      sync.Mutex
	log     *zap.Logger
}

func NewSupervisor(log *zap.Logger, runners ...*Runner) *Supervisor {
	return &Supervisor{
		runners: runners,
		closing: atomic.NewBool(false),
		log:     log,
	}
}

// Run blocks until every runner has returned and reports the first fatal
// error. A fatal error in one runner stops the others.
func (s *Supervisor) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	s.mu.Lock()
	s.cancel = cancel
	s.mu.Unlock()
	defer cancel()
	if s.closing.Load() {
		return nil
	}

	var (
		wg       sync.WaitGroup
		once     sync.Once
		firstErr error
	)
	for _, runner := range s.runners {
		r := runner
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := r.Run(ctx); err != nil {
				once.Do(func() { firstErr = err })
				s.Shutdown()
			}
		}()
	}

	s.log.Info("supervisor started", zap.Int("runners", len(s.runners)))
	wg.Wait()
	return firstErr
}

func (s *Supervisor) Shutdown() {
	if !s.closing.CAS(false, true) {
		return
	}
	s.log.Info("supervisor shutting down")

	s.mu.Lock()
	cancel := s.cancel
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}
