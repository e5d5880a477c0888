// Package supervisor owns the restart policy §7 explicitly delegates
// outside the core (§10.3). It watches a Poller's status and, on a transition to
// Faulted, waits a backoff delay before calling Start again.
//
// Grounded on R-a-dio-valkyrie's config/backoff.go (an exponential
// backoff.BackOff wrapper) and jobs/relay.go's backoff.RetryNotify restart
// loop, adapted from a one-shot retried connection attempt to a
// long-running watch-and-restart loop.
package supervisor

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"github.com/fencepost-audio/scrobbled/internal/poller"
)

// Restartable is the subset of *poller.Poller the supervisor drives.
type Restartable interface {
	Start(ctx context.Context) error
	State() poller.State
}

// Supervisor restarts one Poller whenever it faults, backing off
// exponentially between attempts.
type Supervisor struct {
	target Restartable
	logger zerolog.Logger

	pollInterval      time.Duration
	initialInterval   time.Duration
	maxInterval       time.Duration
	recoveryThreshold time.Duration
}

// Option configures a Supervisor at construction.
type Option func(*Supervisor)

// WithPollInterval sets how often the supervisor checks whether the target
// has left the Polling state. Default 2s.
func WithPollInterval(d time.Duration) Option { return func(s *Supervisor) { s.pollInterval = d } }

// WithBackoff sets the initial and max exponential backoff interval between
// restart attempts. Defaults: 1s initial, 1m max.
func WithBackoff(initial, max time.Duration) Option {
	return func(s *Supervisor) {
		s.initialInterval = initial
		s.maxInterval = max
	}
}

// WithRecoveryThreshold sets how long a Poller must stay in Polling before
// a subsequent fault is treated as a fresh failure (resetting backoff to
// its initial interval) rather than a continuation of the same outage.
// Default 1m.
func WithRecoveryThreshold(d time.Duration) Option {
	return func(s *Supervisor) { s.recoveryThreshold = d }
}

// New builds a Supervisor for target, logging restarts through logger.
func New(target Restartable, logger zerolog.Logger, opts ...Option) *Supervisor {
	s := &Supervisor{
		target:            target,
		logger:            logger,
		pollInterval:      2 * time.Second,
		initialInterval:   time.Second,
		maxInterval:       time.Minute,
		recoveryThreshold: time.Minute,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Run starts target and keeps restarting it after every Faulted transition
// until ctx is cancelled or target settles in Idle (cooperative shutdown).
func (s *Supervisor) Run(ctx context.Context) error {
	bo := backoff.NewExponentialBackOff(
		backoff.WithInitialInterval(s.initialInterval),
		backoff.WithMaxInterval(s.maxInterval),
	)

	for {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		startedAt := time.Now()
		if err := s.target.Start(ctx); err != nil && !errors.Is(err, poller.ErrAlreadyPolling) {
			return err
		}

		if !s.waitUntilSettled(ctx) {
			return ctx.Err()
		}

		switch s.target.State() {
		case poller.Idle:
			return nil
		case poller.Faulted:
			if time.Since(startedAt) >= s.recoveryThreshold {
				bo.Reset()
			}
			d := bo.NextBackOff()
			s.logger.Warn().Dur("backoff", d).Dur("ran_for", time.Since(startedAt)).
				Msg("restarting faulted poller")
			if !s.sleep(ctx, d) {
				return ctx.Err()
			}
		default:
			// Start() returned without the target ever reaching Polling;
			// treat it the same as a fault.
			d := bo.NextBackOff()
			s.logger.Warn().Dur("backoff", d).Msg("poller failed to start, retrying")
			if !s.sleep(ctx, d) {
				return ctx.Err()
			}
		}
	}
}

// waitUntilSettled blocks until target leaves the Polling state or ctx is
// done. Returns false on cancellation.
func (s *Supervisor) waitUntilSettled(ctx context.Context) bool {
	ticker := time.NewTicker(s.pollInterval)
	defer ticker.Stop()
	for {
		if st := s.target.State(); st != poller.Polling {
			return true
		}
		select {
		case <-ticker.C:
		case <-ctx.Done():
			return false
		}
	}
}

func (s *Supervisor) sleep(ctx context.Context, d time.Duration) bool {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return true
	case <-ctx.Done():
		return false
	}
}
