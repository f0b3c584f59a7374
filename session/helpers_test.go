package session

import (
	"math/rand/v2"
	"testing"
	"time"

	"github.com/onnwee/liveroom/clock"
	"github.com/onnwee/liveroom/event"
	"github.com/onnwee/liveroom/livesource/livesourcetest"
	"github.com/onnwee/liveroom/testutil"
)

var t0 = time.Date(2025, 6, 1, 20, 0, 0, 0, time.UTC)

type harness struct {
	clk *clock.Manual
	rec *testutil.Recorder
	src *livesourcetest.Source
	reg *Registry
}

func newHarness(t *testing.T, gate *Gate) *harness {
	t.Helper()
	h := &harness{
		clk: clock.NewManual(t0),
		rec: testutil.NewRecorder(),
		src: &livesourcetest.Source{},
	}
	seed := uint64(0)
	h.reg = NewRegistry(gate, Deps{
		Clock:     h.clk,
		Publisher: h.rec,
		Source:    h.src,
	}, WithRandSource(func() *rand.Rand {
		seed++
		return rand.New(rand.NewPCG(seed, 42))
	}))
	t.Cleanup(h.reg.Close)
	return h
}

func (h *harness) session(t *testing.T, room string) *Session {
	t.Helper()
	s, err := h.reg.GetOrCreate(room, "")
	if err != nil {
		t.Fatalf("GetOrCreate(%q): %v", room, err)
	}
	return s
}

// connect switches s to live mode and completes the handshake.
func (h *harness) connect(t *testing.T, s *Session, roomID string) *livesourcetest.Client {
	t.Helper()
	s.ConnectLive("")
	c := h.src.Last()
	if c == nil {
		t.Fatal("no client opened")
	}
	c.Succeed(roomID)
	h.rec.WaitFor(t, 2*time.Second, func(p testutil.Published) bool {
		cs, ok := p.Payload.(event.ConnectionStatus)
		return ok && cs.Connected && cs.RoomID != nil && *cs.RoomID == roomID
	})
	return c
}

func statuses(rec *testutil.Recorder) []event.ConnectionStatus {
	var out []event.ConnectionStatus
	for _, p := range rec.OfKind(event.KindConnectionStatus) {
		out = append(out, p.Payload.(event.ConnectionStatus))
	}
	return out
}

func chatPayload(uid, comment string) map[string]any {
	return map[string]any{
		"user":    map[string]any{"userId": uid, "uniqueId": "u" + uid, "nickname": "User " + uid},
		"comment": comment,
	}
}
