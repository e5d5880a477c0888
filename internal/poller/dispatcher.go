package poller

import (
	"context"

	"github.com/fencepost-audio/scrobbled/internal/play"
)

// DispatchOptions accompanies one call to Dispatcher.Dispatch.
type DispatchOptions struct {
	// ForceRefresh requests that the Dispatcher reconcile with peer
	// clients before accepting, since a race with another source
	// scrobbling the same play is likely.
	ForceRefresh bool
	// ScrobbleFrom is the source identifier the plays came from.
	ScrobbleFrom string
	// ScrobbleTo lists the downstream client identifiers to deliver to.
	ScrobbleTo []string
}

// Dispatcher is the contract a Poller consumes to hand off newly discovered
// plays (§4.3). The Poller holds this as an abstract capability; no
// Dispatcher implementation holds a back-reference to any Poller.
type Dispatcher interface {
	// Dispatch delivers plays (oldest-first) and returns the subset
	// actually accepted for scrobbling. Implementations must be
	// idempotent per the §3 equality rule and must not let one client's
	// failure block delivery to, or be raised past, any other.
	Dispatch(ctx context.Context, plays []play.Record, opts DispatchOptions) ([]play.Record, error)
}
