// Package poller implements the Source Poller and Recent-Window Reconciler
// consumer: the per-source state machine that drives one upstream Adapter
// through repeated fetch/classify/dispatch/sleep cycles (§4.1).
package poller

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/fencepost-audio/scrobbled/internal/clock"
	"github.com/fencepost-audio/scrobbled/internal/play"
	"github.com/fencepost-audio/scrobbled/internal/reconcile"
)

// State is one of the four states in §4.1's state machine.
type State int

const (
	Idle State = iota
	Polling
	Stopping
	Faulted
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Polling:
		return "polling"
	case Stopping:
		return "stopping"
	case Faulted:
		return "faulted"
	default:
		return "unknown"
	}
}

// ErrAlreadyPolling is returned by Start when the Poller is not Idle or
// Faulted.
var ErrAlreadyPolling = errors.New("poller: already polling")

// Status is the read-only snapshot exposed by the control surface (§6).
type Status struct {
	Type             string
	Name             string
	Polling          bool
	TracksDiscovered int
	LastActivityAt   time.Time
}

// Poller owns the polling loop for one upstream source.
type Poller struct {
	cfg        Config
	adapter    Adapter
	dispatcher Dispatcher
	clock      clock.Clock
	logger     zerolog.Logger
	metrics    Metrics

	mu                   sync.Mutex
	state                State
	cancel               context.CancelFunc
	recentlyPlayed       []play.Record
	lastTrackPlayedAt    time.Time
	checkCount           int
	tracksDiscovered     int
	lastActivityAt       time.Time
	nowPlayingObservedAt map[play.Key]time.Time
}

// New constructs a Poller for one source. startedAt seeds lastTrackPlayedAt
// per §4.1 ("initialized to process start"). logger is pre-bound with the
// source identifier so every line this Poller emits is attributable.
func New(cfg Config, adapter Adapter, dispatcher Dispatcher, clk clock.Clock, logger zerolog.Logger, metrics Metrics, startedAt time.Time) *Poller {
	if metrics == nil {
		metrics = NopMetrics{}
	}
	cfg = cfg.WithDefaults()
	return &Poller{
		cfg:               cfg,
		adapter:           adapter,
		dispatcher:        dispatcher,
		clock:             clk,
		logger:            logger.With().Str("source", cfg.Identifier).Logger(),
		metrics:           metrics,
		state:             Idle,
		lastTrackPlayedAt: startedAt,
	}
}

// Start transitions Idle or Faulted to Polling and runs the cycle loop in a
// new goroutine until ctx is done, Stop is called, or a cycle-level error
// faults the Poller.
func (p *Poller) Start(ctx context.Context) error {
	p.mu.Lock()
	if p.state == Polling || p.state == Stopping {
		p.mu.Unlock()
		return ErrAlreadyPolling
	}
	runCtx, cancel := context.WithCancel(ctx)
	p.cancel = cancel
	p.state = Polling
	p.mu.Unlock()

	p.logger.Info().Msg("polling started")
	p.metrics.SetPolling(p.cfg.Identifier, true)

	go p.run(runCtx)
	return nil
}

// Stop requests a clean exit at the top of the next iteration. It does not
// block until the loop has actually exited.
func (p *Poller) Stop() {
	p.mu.Lock()
	if p.state != Polling {
		p.mu.Unlock()
		return
	}
	p.state = Stopping
	cancel := p.cancel
	p.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// Status returns a snapshot of the control surface's read-only fields.
func (p *Poller) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Status{
		Type:             p.cfg.Type,
		Name:             p.cfg.Identifier,
		Polling:          p.state == Polling,
		TracksDiscovered: p.tracksDiscovered,
		LastActivityAt:   p.lastActivityAt,
	}
}

// State returns the current state-machine state.
func (p *Poller) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

func (p *Poller) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			p.settle(Idle, "polling stopped")
			return
		default:
		}

		if err := p.runCycle(ctx); err != nil {
			if errors.Is(err, context.Canceled) {
				p.settle(Idle, "polling stopped")
				return
			}
			p.settle(Faulted, "poller faulted")
			p.logger.Error().Err(err).Msg("poller faulted")
			return
		}

		if observer, ok := p.adapter.(CycleObserver); ok {
			observer.OnCycle()
		}
	}
}

func (p *Poller) settle(state State, msg string) {
	p.mu.Lock()
	p.state = state
	p.mu.Unlock()
	p.metrics.SetPolling(p.cfg.Identifier, false)
	if state == Idle {
		p.logger.Info().Msg(msg)
	}
}

// runCycle executes one full iteration of the Polling-state loop: fetch,
// classify, close-to-interval check, dispatch, adaptive sleep, increment.
func (p *Poller) runCycle(ctx context.Context) error {
	records, err := p.adapter.Fetch(ctx)
	if err != nil {
		return err
	}

	now := p.clock.Now()
	newPlays := p.classify(records, now)

	p.mu.Lock()
	p.lastActivityAt = now
	p.mu.Unlock()
	p.metrics.SetLastTrackPlayedAt(p.cfg.Identifier, p.currentLastTrackPlayedAt())

	closeToInterval := p.isCloseToInterval(newPlays, now)
	if closeToInterval {
		if err := p.clock.Sleep(ctx, p.cfg.CloseDelay); err != nil {
			return err
		}
	}

	accepted, err := p.dispatcher.Dispatch(ctx, newPlays, DispatchOptions{
		ForceRefresh: closeToInterval,
		ScrobbleFrom: p.cfg.Identifier,
		ScrobbleTo:   p.cfg.Clients,
	})
	if err != nil {
		return err
	}

	p.mu.Lock()
	p.tracksDiscovered += len(accepted)
	if len(accepted) > 0 {
		p.checkCount = 0
	}
	checkCountSnapshot := p.checkCount
	lastTrackPlayedAt := p.lastTrackPlayedAt
	p.mu.Unlock()
	if len(accepted) > 0 {
		p.metrics.AddTracksDiscovered(p.cfg.Identifier, len(accepted))
	}

	sleepTime := p.adaptiveSleep(checkCountSnapshot, now, lastTrackPlayedAt)
	if err := p.clock.Sleep(ctx, sleepTime); err != nil {
		return err
	}

	if len(newPlays) == 0 {
		p.mu.Lock()
		p.checkCount++
		p.mu.Unlock()
	}
	p.metrics.SetCheckCount(p.cfg.Identifier, p.currentCheckCount())

	return nil
}

// classify implements step 2/3 of §4.1: timestamp-driven newness detection
// for ordinary sources, or Recent-Window reconciliation for Windowed
// adapters whose upstream API cannot be trusted to timestamp items.
func (p *Poller) classify(records []play.Record, now time.Time) []play.Record {
	if p.adapter.Windowed() {
		return p.classifyWindowed(records, now)
	}
	return p.classifyTimestamped(records, now)
}

func (p *Poller) classifyTimestamped(records []play.Record, now time.Time) []play.Record {
	p.mu.Lock()
	lastTrackPlayedAt := p.lastTrackPlayedAt
	p.mu.Unlock()

	var newPlays []play.Record
	for _, r := range records {
		if !p.adapter.IsValid(r) {
			p.logger.Warn().Str("track", r.Data.Track).Msg("dropping invalid record")
			continue
		}
		firstSeen := false
		if r.Meta.NowPlaying && !r.Data.HasPlayDate() {
			r.Data.PlayDate, firstSeen = p.firstObservedAt(play.KeyOf(r), now)
		}
		if firstSeen || r.Data.PlayDate.After(lastTrackPlayedAt) {
			r.Meta.NewFromSource = true
			newPlays = append(newPlays, r)
			if r.Data.PlayDate.After(lastTrackPlayedAt) {
				lastTrackPlayedAt = r.Data.PlayDate
			}
		}
	}

	p.mu.Lock()
	if lastTrackPlayedAt.After(p.lastTrackPlayedAt) {
		p.lastTrackPlayedAt = lastTrackPlayedAt
	}
	p.mu.Unlock()

	return newPlays
}

// firstObservedAt implements §3's "playDate equals the instant the Poller
// first observed it in a now-playing state" for a record whose source
// reports no timestamp of its own while it's still playing. The same key
// reuses the instant it was first seen at rather than drifting forward
// every cycle, so a still-playing track only ever crosses the
// lastTrackPlayedAt watermark once. The bool reports whether this call was
// the first observation of key; the caller counts a first observation as
// new even when its instant equals the watermark (as when the track is
// already playing in the cycle the Poller started in).
func (p *Poller) firstObservedAt(key play.Key, now time.Time) (time.Time, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if t, ok := p.nowPlayingObservedAt[key]; ok {
		return t, false
	}
	if p.nowPlayingObservedAt == nil {
		p.nowPlayingObservedAt = make(map[play.Key]time.Time)
	}
	p.nowPlayingObservedAt[key] = now
	return now, true
}

func (p *Poller) classifyWindowed(records []play.Record, now time.Time) []play.Record {
	p.mu.Lock()
	previous := p.recentlyPlayed
	p.mu.Unlock()

	result := reconcile.Reconcile(previous, records, now)
	if result.Inconsistent {
		p.logger.Warn().Str("diff", result.Diff.Render()).Msg("inconsistent reorder from source")
	} else if !result.Diff.Empty() {
		p.logger.Debug().Str("diff", result.Diff.Render()).Msg("recent window changed")
	}

	window := records
	if len(window) > p.cfg.WindowSize {
		window = window[:p.cfg.WindowSize]
	}

	var maxPlayDate time.Time
	for _, r := range result.New {
		if r.Data.PlayDate.After(maxPlayDate) {
			maxPlayDate = r.Data.PlayDate
		}
	}

	p.mu.Lock()
	p.recentlyPlayed = window
	if maxPlayDate.After(p.lastTrackPlayedAt) {
		p.lastTrackPlayedAt = maxPlayDate
	}
	p.mu.Unlock()

	return result.New
}

// isCloseToInterval implements step 4: true when any new play's timestamp
// is within CloseThreshold of now.
func (p *Poller) isCloseToInterval(newPlays []play.Record, now time.Time) bool {
	for _, r := range newPlays {
		if absDuration(now.Sub(r.Data.PlayDate)) < p.cfg.CloseThreshold {
			return true
		}
	}
	return false
}

// adaptiveSleep implements step 6's backoff predicate. The absolute value
// is defensive: lastTrackPlayedAt should never exceed now, but the source
// this was distilled from guarded the subtraction with abs() regardless
// (§9 open questions).
func (p *Poller) adaptiveSleep(checkCount int, now, lastTrackPlayedAt time.Time) time.Duration {
	sleepTime := p.cfg.Interval

	if checkCount <= p.cfg.QuietCycleThreshold || sleepTime >= p.cfg.MaxInterval {
		return sleepTime
	}

	quietFor := now.Sub(lastTrackPlayedAt)
	if quietFor < 0 {
		p.logger.Debug().Msg("lastTrackPlayedAt is in the future; clamping backoff predicate")
		quietFor = -quietFor
	}

	trigger := p.cfg.Interval * time.Duration(p.cfg.BackoffTriggerFactor)
	if trigger > 600*time.Second {
		trigger = 600 * time.Second
	}
	if quietFor < trigger {
		return sleepTime
	}

	backoff := p.cfg.Interval * time.Duration(p.cfg.BackoffFactor)
	if backoff > p.cfg.BackoffCap {
		backoff = p.cfg.BackoffCap
	}
	return backoff
}

func (p *Poller) currentLastTrackPlayedAt() time.Time {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastTrackPlayedAt
}

func (p *Poller) currentCheckCount() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.checkCount
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
