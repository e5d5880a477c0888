// Package reconcile implements the Recent-Window Reconciler: a pure
// function deciding which items of an unordered/untimestamped "recent
// items" list are genuinely new since the last cycle.
package reconcile

import (
	"slices"
	"time"

	"github.com/fencepost-audio/scrobbled/internal/play"
)

// Result is the outcome of one reconciliation.
type Result struct {
	// New holds the genuinely new plays, oldest-first, each with
	// NewFromSource set and a synthesized PlayDate.
	New []play.Record
	// Diff describes how current differs from previous, for logging.
	Diff Diff
	// Inconsistent is true when the upstream ordering could not be
	// classified and previous should still be replaced with current.
	Inconsistent bool
}

// Reconcile classifies current against previous (both newest-first) and
// returns the genuinely new plays plus a diagnostic diff. now is used only
// to synthesize PlayDate values for emitted plays; Reconcile never consults
// the wall clock itself, keeping it a pure function of its inputs.
func Reconcile(previous, current []play.Record, now time.Time) Result {
	diff := diffOf(previous, current)

	if len(current) == 0 {
		return Result{Diff: diff}
	}

	if isOrderPreservingSubsequence(current, previous) {
		// Rule 1: sort-consistent. Every item in current appears in
		// previous in the same relative order (possibly with some
		// previous items no longer present). Nothing genuinely new.
		return Result{Diff: diff}
	}

	prevKeys := keysOf(previous)
	curKeys := keysOf(current)

	if sameKeySet(prevKeys, curKeys) {
		if bumped, ok := detectBump(previous, current); ok {
			return Result{New: synthesize(bumped, now), Diff: diff}
		}
		return Result{Diff: diff, Inconsistent: true}
	}

	if added, ok := detectAdded(previous, current); ok {
		return Result{New: synthesize(added, now), Diff: diff}
	}

	return Result{Diff: diff, Inconsistent: true}
}

// synthesize assigns the minute-truncated-now + (k+1)s timestamps required
// by §4.2 to newPlays, which must already be in oldest-first order, and
// marks each as newly discovered.
func synthesize(newPlays []play.Record, now time.Time) []play.Record {
	base := now.Truncate(time.Minute)
	out := make([]play.Record, len(newPlays))
	for k, r := range newPlays {
		r.Meta.NewFromSource = true
		r.Data.PlayDate = base.Add(time.Duration(k+1) * time.Second)
		out[k] = r
	}
	return out
}

func keysOf(records []play.Record) []play.Key {
	keys := make([]play.Key, len(records))
	for i, r := range records {
		keys[i] = play.KeyOf(r)
	}
	return keys
}

func sameKeySet(a, b []play.Key) bool {
	if len(a) != len(b) {
		return false
	}
	seen := make(map[play.Key]int, len(a))
	for _, k := range a {
		seen[k]++
	}
	for _, k := range b {
		seen[k]--
	}
	for _, n := range seen {
		if n != 0 {
			return false
		}
	}
	return true
}

// isOrderPreservingSubsequence reports whether every key of current appears
// in previous, in the same relative order current presents them (not
// necessarily contiguous, and previous may contain extra keys current
// lacks). This is Rule 1's "sort-consistent" test, restricted to the case
// where current itself needs no head items stripped to fit; a current with
// new head items is left to detectAdded.
func isOrderPreservingSubsequence(current, previous []play.Record) bool {
	prevKeys := keysOf(previous)
	pos := 0
	for _, r := range current {
		k := play.KeyOf(r)
		idx := slices.Index(prevKeys[pos:], k)
		if idx < 0 {
			return false
		}
		pos += idx + 1
	}
	return true
}

// detectAdded implements Rule 3: current equals previous with zero or more
// strictly new items prepended. Returns the prepended items in oldest-first
// order (reversed from their newest-first position in current).
func detectAdded(previous, current []play.Record) ([]play.Record, bool) {
	prevKeys := keysOf(previous)
	curKeys := keysOf(current)

	if len(curKeys) < len(prevKeys) {
		return nil, false
	}
	n := len(curKeys) - len(prevKeys)

	tail := curKeys[n:]
	for i, k := range tail {
		if k != prevKeys[i] {
			return nil, false
		}
	}

	prependedKeys := curKeys[:n]
	seen := make(map[play.Key]bool, n)
	for _, k := range prependedKeys {
		if seen[k] {
			return nil, false // duplicate "new" item: not a clean prepend
		}
		if slices.Contains(prevKeys, k) {
			return nil, false // not actually new
		}
		seen[k] = true
	}

	prepended := slices.Clone(current[:n])
	slices.Reverse(prepended) // oldest-first
	return prepended, true
}

// detectBump implements Rule 2: current differs from previous solely by one
// or more items, already present somewhere in the recent window, moving
// toward the newest end.
//
// The defining constraint is that a bump never disturbs the oldest items:
// it finds the longest suffix previous and current agree on verbatim (same
// keys, same positions), and requires that suffix to be non-empty. Only the
// remaining front portion may have been reordered. Within that portion,
// whichever items moved to a lower index than they held in previous are the
// bumped items; everything else there just shifted back to close the gap
// they left. If the two lists agree nowhere (the "fixed" suffix would be
// empty and the reordered front the whole list, i.e. every item moved),
// this returns false and the caller
// falls back to Inconsistent: a reorder that reaches all the way to the
// oldest item in the window is treated as too disruptive to be a simple
// promotion, see DESIGN.md.
func detectBump(previous, current []play.Record) ([]play.Record, bool) {
	prevKeys := keysOf(previous)
	curKeys := keysOf(current)
	n := len(curKeys)

	fixedLen := 0
	for fixedLen < n && prevKeys[n-1-fixedLen] == curKeys[n-1-fixedLen] {
		fixedLen++
	}
	m := n - fixedLen
	if m == n {
		return nil, false // no fixed tail: every item moved
	}

	prevPos := make(map[play.Key]int, len(prevKeys))
	for i, k := range prevKeys {
		prevPos[k] = i
	}

	var bumpedIdx []int
	for i := 0; i < m; i++ {
		if i < prevPos[curKeys[i]] {
			bumpedIdx = append(bumpedIdx, i)
		}
	}
	if len(bumpedIdx) == 0 {
		return nil, false
	}

	remainingCurrent := removeIndices(curKeys[:m], bumpedIdx)
	remainingPrevious := make([]play.Key, 0, len(remainingCurrent))
	bumpedSet := make(map[play.Key]bool, len(bumpedIdx))
	for _, i := range bumpedIdx {
		bumpedSet[curKeys[i]] = true
	}
	for _, k := range prevKeys[:m] {
		if !bumpedSet[k] {
			remainingPrevious = append(remainingPrevious, k)
		}
	}
	if !slices.Equal(remainingCurrent, remainingPrevious) {
		return nil, false
	}

	// Oldest-first: the item deepest in current (furthest from the
	// newest end) bumped least recently.
	slices.SortFunc(bumpedIdx, func(a, b int) int { return b - a })
	bumped := make([]play.Record, len(bumpedIdx))
	for i, idx := range bumpedIdx {
		bumped[i] = current[idx]
	}
	return bumped, true
}

func removeIndices(keys []play.Key, indices []int) []play.Key {
	skip := make(map[int]bool, len(indices))
	for _, i := range indices {
		skip[i] = true
	}
	out := make([]play.Key, 0, len(keys)-len(indices))
	for i, k := range keys {
		if !skip[i] {
			out = append(out, k)
		}
	}
	return out
}
