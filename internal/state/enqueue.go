package state

import (
	"context"

	"github.com/fencepost-audio/scrobbled/internal/play"
)

// Enqueue implements dispatch.RetryQueue: it persists a scrobble a client
// rejected as a PendingScrobble so it can be resubmitted later, including
// across process restarts.
func (m *Manager) Enqueue(_ context.Context, clientName string, r play.Record, reason string) error {
	var artist, albumArtist string
	if len(r.Data.Artists) > 0 {
		artist = r.Data.Artists[0]
	}
	if len(r.Data.AlbumArtists) > 0 {
		albumArtist = r.Data.AlbumArtists[0]
	}

	if err := m.AddPendingScrobble(PendingScrobble{
		Client:        clientName,
		Source:        r.Meta.Source,
		Artist:        artist,
		Track:         r.Data.Track,
		Album:         r.Data.Album,
		AlbumArtist:   albumArtist,
		DurationSecs:  int(r.Data.Duration.Seconds()),
		Timestamp:     r.Data.PlayDate,
		MBRecordingID: r.Meta.TrackID,
	}); err != nil {
		return err
	}

	pending, err := m.GetPendingScrobblesForClient(clientName)
	if err != nil || len(pending) == 0 {
		return err
	}
	last := pending[len(pending)-1]
	return m.UpdatePendingScrobbleAttempt(last.ID, reason)
}
