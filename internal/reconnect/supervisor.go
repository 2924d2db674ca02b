// Package reconnect recovers a dropped session: one reconnection attempt
// sequence runs at a time and every caller that observed the same drop
// shares its outcome.
package reconnect

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"golang.org/x/sync/singleflight"
)

// ErrExhausted is returned once MaxRetries attempts have failed.
var ErrExhausted = errors.New("reconnect: retries exhausted")

// Reconnector re-establishes the session (connect, then login).
type Reconnector interface {
	Reconnect(ctx context.Context) error
}

// ReconnectorFunc adapts a function to Reconnector.
type ReconnectorFunc func(ctx context.Context) error

// Reconnect implements Reconnector.
func (f ReconnectorFunc) Reconnect(ctx context.Context) error {
	return f(ctx)
}

// Config configures a Supervisor.
type Config struct {
	MaxRetries     int           // 0 retries forever
	AttemptTimeout time.Duration // Bound on one connect+login attempt
	Policy         Policy        // Delay between attempts
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() Config {
	return Config{
		MaxRetries:     0,
		AttemptTimeout: 5 * time.Second,
		Policy:         DefaultExponential(),
	}
}

// Supervisor serializes reconnection for one session.
//
// Callers pass the epoch they observed when the failure happened. A caller
// whose epoch is already stale returns immediately: someone else has
// reconnected since. Concurrent callers collapse into a single flight.
type Supervisor struct {
	cfg    Config
	target Reconnector
	logger *slog.Logger

	group        singleflight.Group
	epoch        atomic.Uint64
	reconnecting atomic.Bool
	attempts     atomic.Int64 // total attempts across all flights
}

// NewSupervisor creates a Supervisor for target.
func NewSupervisor(cfg Config, target Reconnector, logger *slog.Logger) *Supervisor {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Policy == nil {
		cfg.Policy = DefaultExponential()
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = DefaultConfig().AttemptTimeout
	}
	return &Supervisor{
		cfg:    cfg,
		target: target,
		logger: logger,
	}
}

// Epoch returns the number of successful reconnections so far.
func (s *Supervisor) Epoch() uint64 {
	return s.epoch.Load()
}

// Reconnecting reports whether a reconnection is in flight.
func (s *Supervisor) Reconnecting() bool {
	return s.reconnecting.Load()
}

// Attempts returns the total number of reconnection attempts made.
func (s *Supervisor) Attempts() int64 {
	return s.attempts.Load()
}

// Recover reconnects unless the session already moved past observed. It
// returns nil on success, ErrExhausted (wrapped) when retries ran out, or
// the context error.
func (s *Supervisor) Recover(ctx context.Context, observed uint64) error {
	if s.epoch.Load() > observed {
		return nil
	}

	ch := s.group.DoChan("reconnect", func() (any, error) {
		if s.epoch.Load() > observed {
			return nil, nil
		}
		return nil, s.run(ctx)
	})

	select {
	case res := <-ch:
		return res.Err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// run retries until the target reconnects or retries are exhausted.
func (s *Supervisor) run(ctx context.Context) error {
	s.reconnecting.Store(true)
	defer s.reconnecting.Store(false)

	for attempt := 1; ; attempt++ {
		s.attempts.Add(1)
		s.logger.Info("attempting reconnection", "attempt", attempt)

		attemptCtx, cancel := context.WithTimeout(ctx, s.cfg.AttemptTimeout)
		err := s.target.Reconnect(attemptCtx)
		cancel()

		if err == nil {
			s.epoch.Add(1)
			s.logger.Info("reconnected", "attempt", attempt)
			return nil
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		s.logger.Warn("reconnection failed", "attempt", attempt, "error", err)

		if s.cfg.MaxRetries > 0 && attempt >= s.cfg.MaxRetries {
			s.logger.Error("reconnection retries exhausted", "attempts", attempt)
			return fmt.Errorf("%w after %d attempts: %v", ErrExhausted, attempt, err)
		}

		wait := s.cfg.Policy.Delay(attempt)
		s.logger.Debug("backing off", "attempt", attempt, "wait", wait)

		timer := time.NewTimer(wait)
		select {
		case <-ctx.Done():
			timer.Stop()
			return ctx.Err()
		case <-timer.C:
		}
	}
}
