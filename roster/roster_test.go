package roster

import (
	"testing"
	"time"

	"github.com/onnwee/liveroom/event"
)

func TestUpsertKeepsJoinedAtAndFlags(t *testing.T) {
	r := New()
	t0 := time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

	first := event.User{ID: "1", UniqueID: "neo", Nickname: "Neo", IsFollower: true, IsModerator: true}
	e, created, stored := r.Upsert(first, t0)
	if !created || !stored {
		t.Fatalf("first sighting: created=%v stored=%v", created, stored)
	}
	if !e.JoinedAt.Equal(t0) || !e.LastSeen.Equal(t0) {
		t.Fatalf("first sighting timestamps: %+v", e)
	}

	// Same identity, different profile: only LastSeen may move.
	later := event.User{ID: "1", UniqueID: "neo", Nickname: "Renamed"}
	for i := 1; i <= 3; i++ {
		e, created, _ = r.Upsert(later, t0.Add(time.Duration(i)*time.Second))
		if created {
			t.Fatalf("sighting %d created a new entry", i)
		}
	}
	if !e.JoinedAt.Equal(t0) {
		t.Fatalf("JoinedAt moved to %v", e.JoinedAt)
	}
	if !e.LastSeen.Equal(t0.Add(3 * time.Second)) {
		t.Fatalf("LastSeen = %v", e.LastSeen)
	}
	if e.Nickname != "Neo" || !e.IsFollower || !e.IsModerator {
		t.Fatalf("flags clobbered: %+v", e.User)
	}
	if r.Len() != 1 {
		t.Fatalf("Len = %d, want 1", r.Len())
	}
}

func TestUpsertLastSeenMonotonic(t *testing.T) {
	r := New()
	t0 := time.Unix(1000, 0)
	r.Upsert(event.User{ID: "a"}, t0.Add(5*time.Second))
	e, _, _ := r.Upsert(event.User{ID: "a"}, t0)
	if !e.LastSeen.Equal(t0.Add(5 * time.Second)) {
		t.Fatalf("LastSeen went backwards: %v", e.LastSeen)
	}
}

func TestUpsertWithoutIdentity(t *testing.T) {
	r := New()
	_, created, stored := r.Upsert(event.User{Nickname: "ghost"}, time.Now())
	if created || stored || r.Len() != 0 {
		t.Fatalf("identity-less user stored: created=%v stored=%v len=%d", created, stored, r.Len())
	}
}

func TestRemoveAndOrder(t *testing.T) {
	r := New()
	now := time.Now()
	for _, id := range []string{"d1", "bot_1", "42", "d2"} {
		r.Upsert(event.User{ID: id}, now)
	}
	if n := r.Remove("d1", "d2", "missing"); n != 2 {
		t.Fatalf("Remove = %d, want 2", n)
	}
	got := r.Entries()
	if len(got) != 2 || got[0].ID != "bot_1" || got[1].ID != "42" {
		t.Fatalf("order after remove: %+v", got)
	}
	r.Clear()
	if r.Len() != 0 || len(r.Viewers()) != 0 {
		t.Fatalf("Clear left %d entries", r.Len())
	}
}
