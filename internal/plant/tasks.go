package plant

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"
)

type task struct {
	name string
	run  func(ctx context.Context) error
}

// taskSet runs the plant's background loops. A task returning an error
// cancels its siblings.
type taskSet struct {
	logger *slog.Logger

	mu     sync.Mutex
	cancel context.CancelFunc
	group  *errgroup.Group
}

// start launches tasks unless a set is already running. They stop when ctx
// is canceled, when stop is called, or when one of them fails.
func (s *taskSet) start(ctx context.Context, tasks ...task) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.group != nil {
		s.logger.Debug("tasks already running")
		return false
	}

	ctx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(ctx)
	for _, t := range tasks {
		g.Go(func() (err error) {
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("task %s panicked: %v", t.name, r)
				}
			}()
			s.logger.Debug("task started", "task", t.name)
			err = t.run(gctx)
			s.logger.Debug("task stopped", "task", t.name, "error", err)
			return err
		})
	}

	s.cancel = cancel
	s.group = g
	return true
}

// stop cancels the running set and waits for it. It is safe to call when
// nothing is running.
func (s *taskSet) stop() error {
	s.mu.Lock()
	cancel, g := s.cancel, s.group
	s.cancel, s.group = nil, nil
	s.mu.Unlock()

	if g == nil {
		return nil
	}
	cancel()
	err := g.Wait()
	if err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Error("task failed", "error", err)
		return err
	}
	return nil
}

func (s *taskSet) running() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.group != nil
}
