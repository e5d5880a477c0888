package state

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m, err := OpenAt(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { m.Close() })
	return m
}

func TestOpenAtInitializesSchema(t *testing.T) {
	m := newTestManager(t)

	var version int
	require.NoError(t, m.DB().QueryRow(`SELECT version FROM schema_version`).Scan(&version))
	require.Equal(t, currentSchemaVersion, version)
}

func TestAddAndGetPendingScrobbles(t *testing.T) {
	m := newTestManager(t)

	ts := time.Date(2026, 8, 6, 12, 0, 0, 0, time.UTC)
	require.NoError(t, m.AddPendingScrobble(PendingScrobble{
		Client:       "lastfm",
		Source:       "player-a",
		Artist:       "Boards of Canada",
		Track:        "Roygbiv",
		Album:        "Music Has the Right to Children",
		DurationSecs: 280,
		Timestamp:    ts,
	}))

	scrobbles, err := m.GetPendingScrobbles()
	require.NoError(t, err)
	require.Len(t, scrobbles, 1)

	s := scrobbles[0]
	require.Equal(t, "lastfm", s.Client)
	require.Equal(t, "player-a", s.Source)
	require.Equal(t, "Boards of Canada", s.Artist)
	require.Equal(t, "Roygbiv", s.Track)
	require.Equal(t, "Music Has the Right to Children", s.Album)
	require.Equal(t, 280, s.DurationSecs)
	require.True(t, s.Timestamp.Equal(ts))
	require.Equal(t, 0, s.Attempts)
}

func TestGetPendingScrobblesOrderedOldestFirst(t *testing.T) {
	m := newTestManager(t)

	require.NoError(t, m.AddPendingScrobble(PendingScrobble{Client: "lastfm", Source: "a", Artist: "X", Track: "one"}))
	require.NoError(t, m.AddPendingScrobble(PendingScrobble{Client: "lastfm", Source: "a", Artist: "X", Track: "two"}))
	require.NoError(t, m.AddPendingScrobble(PendingScrobble{Client: "lastfm", Source: "a", Artist: "X", Track: "three"}))

	scrobbles, err := m.GetPendingScrobbles()
	require.NoError(t, err)
	require.Len(t, scrobbles, 3)
	require.Equal(t, "one", scrobbles[0].Track)
	require.Equal(t, "two", scrobbles[1].Track)
	require.Equal(t, "three", scrobbles[2].Track)
}

func TestGetPendingScrobblesForClientFiltersByClient(t *testing.T) {
	m := newTestManager(t)

	require.NoError(t, m.AddPendingScrobble(PendingScrobble{Client: "lastfm", Source: "a", Artist: "X", Track: "one"}))
	require.NoError(t, m.AddPendingScrobble(PendingScrobble{Client: "listenbrainz", Source: "a", Artist: "X", Track: "two"}))

	lastfm, err := m.GetPendingScrobblesForClient("lastfm")
	require.NoError(t, err)
	require.Len(t, lastfm, 1)
	require.Equal(t, "one", lastfm[0].Track)

	listenbrainz, err := m.GetPendingScrobblesForClient("listenbrainz")
	require.NoError(t, err)
	require.Len(t, listenbrainz, 1)
	require.Equal(t, "two", listenbrainz[0].Track)
}

func TestDeletePendingScrobbleRemovesIt(t *testing.T) {
	m := newTestManager(t)

	require.NoError(t, m.AddPendingScrobble(PendingScrobble{Client: "lastfm", Source: "a", Artist: "X", Track: "one"}))
	scrobbles, err := m.GetPendingScrobbles()
	require.NoError(t, err)
	require.Len(t, scrobbles, 1)

	require.NoError(t, m.DeletePendingScrobble(scrobbles[0].ID))

	scrobbles, err = m.GetPendingScrobbles()
	require.NoError(t, err)
	require.Empty(t, scrobbles)
}

func TestUpdatePendingScrobbleAttemptIncrementsAndRecordsError(t *testing.T) {
	m := newTestManager(t)

	require.NoError(t, m.AddPendingScrobble(PendingScrobble{Client: "lastfm", Source: "a", Artist: "X", Track: "one"}))
	scrobbles, err := m.GetPendingScrobbles()
	require.NoError(t, err)
	id := scrobbles[0].ID

	require.NoError(t, m.UpdatePendingScrobbleAttempt(id, "rate limited"))
	require.NoError(t, m.UpdatePendingScrobbleAttempt(id, "rate limited again"))

	scrobbles, err = m.GetPendingScrobbles()
	require.NoError(t, err)
	require.Len(t, scrobbles, 1)
	require.Equal(t, 2, scrobbles[0].Attempts)
	require.Equal(t, "rate limited again", scrobbles[0].LastError)
}

func TestDeleteOldPendingScrobblesDropsOnlyStaleRows(t *testing.T) {
	m := newTestManager(t)

	require.NoError(t, m.AddPendingScrobble(PendingScrobble{Client: "lastfm", Source: "a", Artist: "X", Track: "fresh"}))
	scrobbles, err := m.GetPendingScrobbles()
	require.NoError(t, err)
	require.Len(t, scrobbles, 1)

	_, err = m.DB().Exec(`UPDATE pending_scrobbles SET created_at = ? WHERE id = ?`,
		time.Now().Add(-48*time.Hour).Unix(), scrobbles[0].ID)
	require.NoError(t, err)

	require.NoError(t, m.AddPendingScrobble(PendingScrobble{Client: "lastfm", Source: "a", Artist: "X", Track: "recent"}))

	require.NoError(t, m.DeleteOldPendingScrobbles(24*time.Hour))

	remaining, err := m.GetPendingScrobbles()
	require.NoError(t, err)
	require.Len(t, remaining, 1)
	require.Equal(t, "recent", remaining[0].Track)
}
