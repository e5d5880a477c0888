// Package dispatch defines the capabilities a concrete Dispatcher
// implementation (§10.4) is built from: the downstream scrobble Client
// contract and the retry-queue it persists rejections to. The Dispatcher
// contract itself lives in internal/poller (§4.3) — the Poller owns that
// interface since it is the consumer; this package is where an
// implementation is assembled.
package dispatch

import (
	"context"

	"github.com/fencepost-audio/scrobbled/internal/play"
)

// Client is one downstream scrobble target. Implementations are adapter
// code, out of the core's scope (§1); internal/lastfm provides the
// reference implementation.
type Client interface {
	// Name identifies this client as referenced from a source's configured
	// clients list and from the retry queue.
	Name() string
	UpdateNowPlaying(ctx context.Context, r play.Record) error
	Scrobble(ctx context.Context, r play.Record) error
}

// RetryQueue persists a scrobble a Client rejected so it can be resubmitted
// later, including across process restarts. internal/state.Manager
// implements this.
type RetryQueue interface {
	Enqueue(ctx context.Context, clientName string, r play.Record, reason string) error
}
