// Package retry resubmits scrobbles the fan-out Dispatcher's clients
// rejected, persisted by internal/state as a queue surviving process
// restarts (§10.4). It is a capped-attempt timer loop, not part of the
// core: the core never sees a rejected scrobble again once dispatch has
// handed it off to the retry queue.
//
// Grounded on the teacher's internal/lastfm/commands.go RetryPendingCmd and
// RetryTickCmd, adapted from one tea.Tick-driven bubbletea command into a
// free-running goroutine loop with no UI to report back to.
package retry

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/fencepost-audio/scrobbled/internal/play"
	"github.com/fencepost-audio/scrobbled/internal/state"
)

// maxAttempts caps how many times a pending scrobble is retried before it
// is left in the queue untouched. This loop never deletes such entries;
// state.Manager.DeleteOldPendingScrobbles can drop them by age, but nothing
// in this repository calls it outside its own test.
const maxAttempts = 10

// Client is the subset of dispatch.Client the retry loop needs to
// resubmit a scrobble.
type Client interface {
	Name() string
	Scrobble(ctx context.Context, r play.Record) error
}

// Queue is the subset of *state.Manager the retry loop drives.
type Queue interface {
	GetPendingScrobbles() ([]state.PendingScrobble, error)
	DeletePendingScrobble(id int64) error
	UpdatePendingScrobbleAttempt(id int64, errMsg string) error
}

// Loop periodically resubmits queued scrobbles to their original target
// client.
type Loop struct {
	queue    Queue
	clients  map[string]Client
	logger   zerolog.Logger
	interval time.Duration
}

// New builds a Loop resubmitting to clients, keyed by Client.Name(), every
// interval. interval <= 0 uses the teacher's 5 minute default.
func New(queue Queue, clients []Client, logger zerolog.Logger, interval time.Duration) *Loop {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	byName := make(map[string]Client, len(clients))
	for _, c := range clients {
		byName[c.Name()] = c
	}
	return &Loop{queue: queue, clients: byName, logger: logger, interval: interval}
}

// Run blocks, resubmitting the pending queue every interval until ctx is
// cancelled.
func (l *Loop) Run(ctx context.Context) {
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.runOnce(ctx)
		}
	}
}

// runOnce resubmits every eligible pending scrobble once, logging a summary.
func (l *Loop) runOnce(ctx context.Context) {
	pending, err := l.queue.GetPendingScrobbles()
	if err != nil {
		l.logger.Error().Err(err).Msg("retry: failed to load pending scrobbles")
		return
	}
	if len(pending) == 0 {
		return
	}

	var succeeded, failed, skipped int
	for _, p := range pending {
		if p.Attempts >= maxAttempts {
			skipped++
			continue
		}

		client, ok := l.clients[p.Client]
		if !ok {
			skipped++
			continue
		}

		if err := client.Scrobble(ctx, recordFromPending(p)); err != nil {
			failed++
			if uerr := l.queue.UpdatePendingScrobbleAttempt(p.ID, err.Error()); uerr != nil {
				l.logger.Error().Err(uerr).Int64("id", p.ID).Msg("retry: failed to record attempt")
			}
			continue
		}

		succeeded++
		if derr := l.queue.DeletePendingScrobble(p.ID); derr != nil {
			l.logger.Error().Err(derr).Int64("id", p.ID).Msg("retry: failed to drop resubmitted scrobble")
		}
	}

	l.logger.Info().Int("succeeded", succeeded).Int("failed", failed).Int("skipped", skipped).
		Msg("retry: swept pending scrobbles")
}

func recordFromPending(p state.PendingScrobble) play.Record {
	var artists, albumArtists []string
	if p.Artist != "" {
		artists = []string{p.Artist}
	}
	if p.AlbumArtist != "" {
		albumArtists = []string{p.AlbumArtist}
	}
	return play.Record{
		Data: play.Data{
			Artists:      artists,
			AlbumArtists: albumArtists,
			Album:        p.Album,
			Track:        p.Track,
			Duration:     time.Duration(p.DurationSecs) * time.Second,
			PlayDate:     p.Timestamp,
		},
		Meta: play.Meta{
			Source:  p.Source,
			TrackID: p.MBRecordingID,
		},
	}
}
