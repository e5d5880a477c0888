// Package lastfm wraps github.com/shkh/lastfm-go/lastfm as one reference
// dispatch.Client. It keeps the teacher's wrapper almost unchanged; the
// desktop OAuth flow (internal/lastfm/auth.go in the teacher) and the
// bubbletea tea.Cmd wrappers (commands.go) are dropped — a headless daemon
// takes a pre-issued session key from configuration rather than running an
// interactive authorization dance, and there is no tea.Msg loop to report
// results to.
package lastfm

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/shkh/lastfm-go/lastfm"

	"github.com/fencepost-audio/scrobbled/internal/play"
)

// ErrNotAuthenticated is returned when an operation requires a session key
// that was never configured.
var ErrNotAuthenticated = errors.New("lastfm: not authenticated")

// Client wraps the Last.fm API as a dispatch.Client, identified by name so
// more than one Last.fm account can be configured as distinct downstream
// targets.
type Client struct {
	name       string
	api        *lastfm.Api
	sessionKey string
}

// New creates a Client for a pre-authenticated Last.fm account. name is the
// identifier sources reference in their clients list; sessionKey is issued
// out-of-band (the OAuth dance that produces it is outside this package).
func New(name, apiKey, apiSecret, sessionKey string) *Client {
	api := lastfm.New(apiKey, apiSecret)
	if sessionKey != "" {
		api.SetSession(sessionKey)
	}
	return &Client{name: name, api: api, sessionKey: sessionKey}
}

// Name identifies this client to the fan-out dispatcher and retry queue.
func (c *Client) Name() string {
	return c.name
}

func (c *Client) authenticated() bool {
	return c.sessionKey != ""
}

// UpdateNowPlaying reports r as currently playing. Last.fm does not accept a
// timestamp for now-playing notifications, matching §3's invariant that
// now-playing records never carry an upstream-provided playDate.
func (c *Client) UpdateNowPlaying(ctx context.Context, r play.Record) error {
	if !c.authenticated() {
		return ErrNotAuthenticated
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	params := trackParams(r)
	_, err := c.api.Track.UpdateNowPlaying(params)
	if err != nil {
		return fmt.Errorf("update now playing: %w", err)
	}
	return nil
}

// Scrobble submits r as a completed play.
func (c *Client) Scrobble(ctx context.Context, r play.Record) error {
	if !c.authenticated() {
		return ErrNotAuthenticated
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	params := trackParams(r)
	params["timestamp"] = r.Data.PlayDate.Unix()
	_, err := c.api.Track.Scrobble(params)
	if err != nil {
		return fmt.Errorf("scrobble: %w", err)
	}
	return nil
}

func trackParams(r play.Record) lastfm.P {
	params := lastfm.P{
		"track": r.Data.Track,
	}
	if len(r.Data.Artists) > 0 {
		params["artist"] = r.Data.Artists[0]
	}
	if r.Data.Album != "" {
		params["album"] = r.Data.Album
	}
	if len(r.Data.AlbumArtists) > 0 && (len(r.Data.Artists) == 0 || r.Data.AlbumArtists[0] != r.Data.Artists[0]) {
		params["albumArtist"] = r.Data.AlbumArtists[0]
	}
	if r.Data.Duration > 0 {
		params["duration"] = int(r.Data.Duration.Seconds())
	}
	// Some sources carry a malformed recording ID in their tags; only pass
	// one along that actually parses as a UUID.
	if _, err := uuid.Parse(r.Meta.TrackID); err == nil {
		params["mbid"] = r.Meta.TrackID
	}
	return params
}
