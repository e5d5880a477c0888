// Package adapter provides Fixture, a scripted in-memory Adapter (§9, §10.6)
// standing in for the out-of-scope real vendor clients (§1): it satisfies
// internal/poller's Adapter capability by replaying a configured sequence
// of "cycles" rather than calling any network service. cmd/scrobbled wires
// it as the default adapter; the poller's own tests use a local stub
// adapter instead.
//
// Grounded on the teacher's internal/state/mock.go, a hand-rolled in-memory
// stand-in satisfying a production interface, used only by tests.
package adapter

import (
	"context"
	"sync"

	"github.com/fencepost-audio/scrobbled/internal/play"
)

// Fixture replays a scripted sequence of fetch results, one per call to
// Fetch, then repeats its final entry forever. It can run in either the
// timestamp-driven mode (§4.1 step 2's default policy) or the Windowed mode
// (§4.2), selected at construction.
type Fixture struct {
	mu       sync.Mutex
	cycles   [][]play.Record
	index    int
	windowed bool
	cycleHit int
}

// NewFixture builds a Fixture that returns cycles[0] on the first Fetch,
// cycles[1] on the second, and so on, holding at the last entry once
// exhausted. windowed selects §4.2's Recent-Window classification path
// instead of §4.1's timestamp-driven default.
func NewFixture(cycles [][]play.Record, windowed bool) *Fixture {
	return &Fixture{cycles: cycles, windowed: windowed}
}

// Fetch returns the next scripted cycle.
func (f *Fixture) Fetch(ctx context.Context) ([]play.Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.cycles) == 0 {
		return nil, nil
	}
	idx := f.index
	if idx >= len(f.cycles) {
		idx = len(f.cycles) - 1
	} else {
		f.index++
	}
	f.cycleHit++
	return f.cycles[idx], nil
}

// IsValid applies §4.1 step 2's two policies: timestamp-driven sources
// accept a record with a playDate or a now-playing record (play.Record.Valid);
// Windowed sources trust only records the reconciler has already promoted
// to new.
func (f *Fixture) IsValid(r play.Record) bool {
	if f.windowed {
		return r.Meta.NewFromSource
	}
	return r.Valid()
}

// Windowed reports whether this Fixture models a source without reliable
// timestamps.
func (f *Fixture) Windowed() bool {
	return f.windowed
}

// FetchCount reports how many times Fetch has been called, for tests that
// assert on cycle counts.
func (f *Fixture) FetchCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.cycleHit
}
