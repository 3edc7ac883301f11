package order

import "time"

// Timeline is the append-only status history of an order, keyed by Unix
// seconds.
type Timeline map[int64]Status

// TimelineEntry is a single status change.
type TimelineEntry struct {
	At     time.Time
	Status Status
}

// Append records status at the given instant. The entry always lands after
// every existing one: when at is not later than the last entry, the second
// after it is used. It returns the key the entry was stored under.
func (t Timeline) Append(at time.Time, status Status) int64 {
	key := at.Unix()
	for k := range t {
		if k >= key {
			key = k + 1
		}
	}
	t[key] = status
	return key
}

// Entries returns the timeline in chronological order.
func (t Timeline) Entries() []TimelineEntry {
	keys := sortedKeys(t)
	entries := make([]TimelineEntry, len(keys))
	for i, k := range keys {
		entries[i] = TimelineEntry{At: time.Unix(k, 0).UTC(), Status: t[k]}
	}
	return entries
}

// Latest returns the most recent entry. ok is false for an empty timeline.
func (t Timeline) Latest() (e TimelineEntry, ok bool) {
	entries := t.Entries()
	if len(entries) == 0 {
		return TimelineEntry{}, false
	}
	return entries[len(entries)-1], true
}

// Clone returns a copy of t.
func (t Timeline) Clone() Timeline {
	out := make(Timeline, len(t))
	for k, v := range t {
		out[k] = v
	}
	return out
}
