package watcher

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// SupervisedSource wraps a Source with automatic restart on failure.
type SupervisedSource struct {
	factory     func() Source
	initialWait time.Duration
	maxWait     time.Duration
	maxRestarts int

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

// NewSupervisedSource creates a supervised wrapper around a source factory.
// On source failure it waits with exponential backoff, starting at
// initialWait and capped at maxWait, before creating a new source.
// maxRestarts of 0 means unlimited restarts.
func NewSupervisedSource(factory func() Source, initialWait, maxWait time.Duration, maxRestarts int) *SupervisedSource {
	return &SupervisedSource{
		factory:     factory,
		initialWait: initialWait,
		maxWait:     maxWait,
		maxRestarts: maxRestarts,
	}
}

// Events starts the supervised source loop. It returns a channel that receives
// events across restarts. The channel is closed when the context is cancelled,
// Stop is called, or max restarts are exceeded.
func (s *SupervisedSource) Events(ctx context.Context) (<-chan Event, error) {
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	s.mu.Lock()
	s.cancel = cancel
	s.done = done
	s.mu.Unlock()

	out := make(chan Event, 256)

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = s.initialWait
	b.MaxInterval = s.maxWait
	b.MaxElapsedTime = 0
	b.Reset()

	go func() {
		defer close(done)
		defer close(out)

		restarts := 0
		for {
			if s.maxRestarts > 0 && restarts > s.maxRestarts {
				slog.Error("file watcher exceeded max restarts", "max", s.maxRestarts)
				return
			}

			source := s.factory()
			events, err := source.Events(ctx)
			if err != nil {
				slog.Error("failed to start file watcher", "error", err, "restart_count", restarts)
				if !s.wait(ctx, b.NextBackOff()) {
					return
				}
				restarts++
				continue
			}

			if restarts > 0 {
				slog.Info("file watcher restarted", "restart_count", restarts)
			}

			// Forward events until the source channel closes.
			forwarded := false
			for sourceDone := false; !sourceDone; {
				select {
				case ev, ok := <-events:
					if !ok {
						sourceDone = true
						break
					}
					forwarded = true
					select {
					case out <- ev:
					case <-ctx.Done():
						source.Stop()
						return
					}
				case <-ctx.Done():
					source.Stop()
					return
				}
			}

			source.Stop()
			if ctx.Err() != nil {
				return
			}
			if forwarded {
				b.Reset()
			}
			slog.Warn("file watcher stopped, restarting", "restart_count", restarts)
			restarts++

			if !s.wait(ctx, b.NextBackOff()) {
				return
			}
		}
	}()

	return out, nil
}

func (s *SupervisedSource) wait(ctx context.Context, d time.Duration) bool {
	if d == backoff.Stop {
		return false
	}
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}

func (s *SupervisedSource) Stop() {
	s.mu.Lock()
	cancel, done := s.cancel, s.done
	s.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}
