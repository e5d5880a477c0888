// Package play defines the canonical in-memory representation of one play
// event as it flows from a source adapter through reconciliation and
// dispatch.
package play

import (
	"slices"
	"strings"
	"time"
)

// Data holds the track facts of a play, as reported (or inferred) from the
// upstream source.
type Data struct {
	Artists      []string
	AlbumArtists []string
	Album        string
	Track        string // required
	Duration     time.Duration
	PlayDate     time.Time // zero value means absent
	ListenedFor  time.Duration
}

// Meta holds bookkeeping fields the core attaches to a play as it moves
// through the pipeline. None of these are upstream track facts.
type Meta struct {
	Source        string
	TrackID       string
	NewFromSource bool
	NowPlaying    bool
	Historical    bool
}

// Record is one play event: immutable once constructed, passed by value.
type Record struct {
	Data Data
	Meta Meta
}

// HasPlayDate reports whether Data.PlayDate was set.
func (d Data) HasPlayDate() bool {
	return !d.PlayDate.IsZero()
}

// Valid reports whether r satisfies the §3 invariant that a record with no
// PlayDate and NowPlaying=false is invalid. now-playing records are always
// considered structurally valid regardless of timestamp.
func (r Record) Valid() bool {
	if r.Meta.NowPlaying {
		return true
	}
	return r.Data.HasPlayDate()
}

// Key is the stable identity used for equality and reconciliation per the
// §3 rule: (source, trackID) when trackID is known, otherwise
// (track, album, sorted artist set).
type Key struct {
	bySourceID bool
	source     string
	trackID    string
	track      string
	album      string
	artists    string
}

// KeyOf computes r's stable Key.
func KeyOf(r Record) Key {
	if r.Meta.TrackID != "" {
		return Key{bySourceID: true, source: r.Meta.Source, trackID: r.Meta.TrackID}
	}
	artists := slices.Clone(r.Data.Artists)
	slices.Sort(artists)
	return Key{
		track:   strings.ToLower(r.Data.Track),
		album:   strings.ToLower(r.Data.Album),
		artists: strings.ToLower(strings.Join(artists, "\x00")),
	}
}

// Same reports whether a and b identify the same play per the §3 equality
// rule: matching (source, trackID) OR matching (track, album, artist set).
func Same(a, b Record) bool {
	ka, kb := KeyOf(a), KeyOf(b)
	if ka.bySourceID && kb.bySourceID {
		return ka.source == kb.source && ka.trackID == kb.trackID
	}
	if ka.bySourceID != kb.bySourceID {
		// one has a trackID and the other doesn't: fall back to the
		// track/album/artist comparison for both.
		return sameByTrack(a, b)
	}
	return ka == kb
}

func sameByTrack(a, b Record) bool {
	aArtists := slices.Clone(a.Data.Artists)
	bArtists := slices.Clone(b.Data.Artists)
	slices.Sort(aArtists)
	slices.Sort(bArtists)
	return strings.EqualFold(a.Data.Track, b.Data.Track) &&
		strings.EqualFold(a.Data.Album, b.Data.Album) &&
		slices.EqualFunc(aArtists, bArtists, strings.EqualFold)
}
