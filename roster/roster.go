// Package roster holds the per-session viewer table.
//
// A Roster is a plain data structure with no locking: it is owned by exactly
// one session and only mutated while that session's lock is held.
package roster

import (
	"time"

	"github.com/onnwee/liveroom/event"
)

// Entry is one tracked viewer.
type Entry struct {
	event.User
	JoinedAt time.Time
	LastSeen time.Time
}

// Viewer renders the entry in its wire form.
func (e Entry) Viewer() event.Viewer {
	return event.Viewer{User: e.User, JoinedAt: event.Millis(e.JoinedAt), LastSeen: event.Millis(e.LastSeen)}
}

// Roster maps viewer id to entry and remembers first-sighting order, which
// keeps snapshots and random picks stable for a given sequence of sightings.
type Roster struct {
	entries map[string]*Entry
	order   []string
}

func New() *Roster {
	return &Roster{entries: make(map[string]*Entry)}
}

// Upsert records a sighting of u at now. The first sighting creates the entry
// with JoinedAt=LastSeen=now; later sightings only move LastSeen forward and
// leave every other field alone. Users without an id are ignored and reported
// as not stored.
func (r *Roster) Upsert(u event.User, now time.Time) (entry Entry, created bool, stored bool) {
	if u.ID == "" {
		return Entry{}, false, false
	}
	if e, ok := r.entries[u.ID]; ok {
		if now.After(e.LastSeen) {
			e.LastSeen = now
		}
		return *e, false, true
	}
	e := &Entry{User: u, JoinedAt: now, LastSeen: now}
	r.entries[u.ID] = e
	r.order = append(r.order, u.ID)
	return *e, true, true
}

func (r *Roster) Get(id string) (Entry, bool) {
	e, ok := r.entries[id]
	if !ok {
		return Entry{}, false
	}
	return *e, true
}

func (r *Roster) Has(id string) bool {
	_, ok := r.entries[id]
	return ok
}

func (r *Roster) Len() int { return len(r.entries) }

// Remove deletes the given ids; unknown ids are skipped. It returns how many
// entries were actually removed.
func (r *Roster) Remove(ids ...string) int {
	n := 0
	for _, id := range ids {
		if _, ok := r.entries[id]; ok {
			delete(r.entries, id)
			n++
		}
	}
	if n > 0 {
		kept := r.order[:0]
		for _, id := range r.order {
			if _, ok := r.entries[id]; ok {
				kept = append(kept, id)
			}
		}
		r.order = kept
	}
	return n
}

func (r *Roster) Clear() {
	clear(r.entries)
	r.order = r.order[:0]
}

// Entries returns a copy of all entries in first-sighting order.
func (r *Roster) Entries() []Entry {
	out := make([]Entry, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, *r.entries[id])
	}
	return out
}

// Viewers returns the wire snapshot sent as viewer-list.
func (r *Roster) Viewers() []event.Viewer {
	out := make([]event.Viewer, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.entries[id].Viewer())
	}
	return out
}
