package state

import (
	"database/sql"
	"time"
)

// PendingScrobble is a scrobble a downstream client rejected, queued here
// for retry across process restarts. Client-agnostic: any client the
// fan-out dispatcher targets can have its rejections queued this way.
type PendingScrobble struct {
	ID            int64
	Client        string
	Source        string
	Artist        string
	Track         string
	Album         string
	AlbumArtist   string
	DurationSecs  int
	Timestamp     time.Time
	MBRecordingID string
	Attempts      int
	LastError     string
	CreatedAt     time.Time
}

// AddPendingScrobble queues a scrobble for later resubmission.
func (m *Manager) AddPendingScrobble(s PendingScrobble) error {
	now := time.Now().Unix()
	_, err := m.db.Exec(`
		INSERT INTO pending_scrobbles
		(client, source, artist, track, album, album_artist, duration_seconds, timestamp, mb_recording_id, attempts, last_error, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, s.Client, s.Source, s.Artist, s.Track, s.Album, s.AlbumArtist, s.DurationSecs, s.Timestamp.Unix(), s.MBRecordingID, 0, "", now)
	return err
}

// GetPendingScrobbles returns every queued scrobble, oldest-first.
func (m *Manager) GetPendingScrobbles() ([]PendingScrobble, error) {
	rows, err := m.db.Query(`
		SELECT id, client, source, artist, track, album, album_artist, duration_seconds, timestamp, mb_recording_id, attempts, last_error, created_at
		FROM pending_scrobbles
		ORDER BY created_at ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var scrobbles []PendingScrobble
	for rows.Next() {
		var s PendingScrobble
		var album, albumArtist, mbRecordingID, lastError sql.NullString
		var timestamp, createdAt int64

		err := rows.Scan(
			&s.ID, &s.Client, &s.Source, &s.Artist, &s.Track, &album, &albumArtist,
			&s.DurationSecs, &timestamp, &mbRecordingID, &s.Attempts, &lastError, &createdAt,
		)
		if err != nil {
			return nil, err
		}

		s.Album = album.String
		s.AlbumArtist = albumArtist.String
		s.MBRecordingID = mbRecordingID.String
		s.LastError = lastError.String
		s.Timestamp = time.Unix(timestamp, 0)
		s.CreatedAt = time.Unix(createdAt, 0)

		scrobbles = append(scrobbles, s)
	}

	return scrobbles, rows.Err()
}

// GetPendingScrobblesForClient returns queued scrobbles for one client,
// oldest-first.
func (m *Manager) GetPendingScrobblesForClient(client string) ([]PendingScrobble, error) {
	all, err := m.GetPendingScrobbles()
	if err != nil {
		return nil, err
	}
	out := make([]PendingScrobble, 0, len(all))
	for _, s := range all {
		if s.Client == client {
			out = append(out, s)
		}
	}
	return out, nil
}

// DeletePendingScrobble removes a successfully resubmitted scrobble.
func (m *Manager) DeletePendingScrobble(id int64) error {
	_, err := m.db.Exec(`DELETE FROM pending_scrobbles WHERE id = ?`, id)
	return err
}

// UpdatePendingScrobbleAttempt increments the attempt count and records the
// latest failure reason.
func (m *Manager) UpdatePendingScrobbleAttempt(id int64, errMsg string) error {
	_, err := m.db.Exec(`
		UPDATE pending_scrobbles
		SET attempts = attempts + 1, last_error = ?
		WHERE id = ?
	`, errMsg, id)
	return err
}

// DeleteOldPendingScrobbles drops queued scrobbles older than maxAge,
// giving up on deliveries that are no longer worth retrying.
func (m *Manager) DeleteOldPendingScrobbles(maxAge time.Duration) error {
	cutoff := time.Now().Add(-maxAge).Unix()
	_, err := m.db.Exec(`DELETE FROM pending_scrobbles WHERE created_at < ?`, cutoff)
	return err
}
