package transfer

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/cuongbtq/constituent-transfer/internal/domain"
)

// Supervisor owns every job goroutine so shutdown can wait for them
type Supervisor struct {
	logger *slog.Logger
	mu     sync.Mutex
	wg     sync.WaitGroup
	closed bool
}

// NewSupervisor creates a supervisor
func NewSupervisor(logger *slog.Logger) *Supervisor {
	return &Supervisor{logger: logger}
}

// Go runs fn in a tracked goroutine. A panic in fn is logged, not propagated.
func (s *Supervisor) Go(name string, fn func()) error {
	done, err := s.Track()
	if err != nil {
		return err
	}

	go func() {
		defer done()
		defer func() {
			if r := recover(); r != nil {
				s.logger.Error("Job goroutine panicked",
					slog.String("task", name),
					slog.String("panic", fmt.Sprint(r)),
				)
			}
		}()
		fn()
	}()

	return nil
}

// Track registers work running on the caller's goroutine. The returned func
// must be called when the work ends.
func (s *Supervisor) Track() (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil, domain.ErrShuttingDown
	}
	s.wg.Add(1)

	var once sync.Once
	return func() { once.Do(s.wg.Done) }, nil
}

// Close rejects new work and waits for tracked work or ctx, whichever ends first
func (s *Supervisor) Close(ctx context.Context) error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("jobs still running at shutdown: %w", ctx.Err())
	}
}
