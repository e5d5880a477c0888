package poller

import (
	"context"

	"github.com/fencepost-audio/scrobbled/internal/play"
)

// Adapter is the per-source capability a Poller is parameterized by,
// replacing the deep AbstractSource → MemorySource → LastfmSource style
// inheritance with composition (§9 design notes).
type Adapter interface {
	// Fetch returns this source's current recently-played sequence,
	// already normalized to the §3 data model. Adapters merge any
	// distinct upstream "list" and "shelf" concepts themselves; the core
	// sees one ordered sequence.
	Fetch(ctx context.Context) ([]play.Record, error)
	// IsValid applies this source's validity policy to one fetched
	// record. The default, timestamp-driven policy is "playDate
	// present, or a now-playing record" (play.Record.Valid); a Windowed
	// adapter instead reports valid only for
	// records the reconciler has promoted (NewFromSource set).
	IsValid(play.Record) bool
	// Windowed reports whether this source's API lacks reliable
	// timestamps and must be classified via the Recent-Window Reconciler
	// instead of by comparing playDate against lastTrackPlayedAt.
	Windowed() bool
}

// CycleObserver is an optional hook an Adapter may additionally implement
// to be notified once per completed cycle, regardless of outcome.
type CycleObserver interface {
	OnCycle()
}
