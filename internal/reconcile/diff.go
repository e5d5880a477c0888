package reconcile

import (
	"fmt"
	"strings"

	"github.com/fencepost-audio/scrobbled/internal/play"
)

// Diff is the structural, informational summary of how current differs
// from previous, by stable key. It never influences classification; it
// exists so Inconsistent and Bumped-only cycles can be logged usefully.
type Diff struct {
	Added     []play.Key
	Removed   []play.Key
	Moved     []Move
	Unchanged int
}

// Move records that a key present in both lists changed position.
type Move struct {
	Key      play.Key
	From, To int
}

// Empty reports whether current differed from previous at all.
func (d Diff) Empty() bool {
	return len(d.Added) == 0 && len(d.Removed) == 0 && len(d.Moved) == 0
}

// diffOf computes the by-key structural diff between previous and current,
// both newest-first.
func diffOf(previous, current []play.Record) Diff {
	prevPos := make(map[play.Key]int, len(previous))
	for i, r := range previous {
		prevPos[play.KeyOf(r)] = i
	}
	curPos := make(map[play.Key]int, len(current))
	for i, r := range current {
		curPos[play.KeyOf(r)] = i
	}

	var d Diff
	for k, to := range curPos {
		from, ok := prevPos[k]
		if !ok {
			d.Added = append(d.Added, k)
			continue
		}
		if from == to {
			d.Unchanged++
		} else {
			d.Moved = append(d.Moved, Move{Key: k, From: from, To: to})
		}
	}
	for k := range prevPos {
		if _, ok := curPos[k]; !ok {
			d.Removed = append(d.Removed, k)
		}
	}
	return d
}

// Render produces a short human-readable summary suitable for a single log
// field, e.g. "+2 -1 moved:1 unchanged:3".
func (d Diff) Render() string {
	if d.Empty() {
		return "unchanged"
	}
	var b strings.Builder
	if n := len(d.Added); n > 0 {
		fmt.Fprintf(&b, "+%d ", n)
	}
	if n := len(d.Removed); n > 0 {
		fmt.Fprintf(&b, "-%d ", n)
	}
	if n := len(d.Moved); n > 0 {
		fmt.Fprintf(&b, "moved:%d ", n)
	}
	fmt.Fprintf(&b, "unchanged:%d", d.Unchanged)
	return strings.TrimSpace(b.String())
}
