package session

import (
	"slices"
	"sync"
	"testing"
	"time"

	"github.com/onnwee/liveroom/clock"
	"github.com/onnwee/liveroom/event"
)

func TestDemoEndToEnd(t *testing.T) {
	h := newHarness(t, nil)
	s := h.session(t, "alice")

	s.StartDemo()
	st := s.Status()
	if !st.Connected || st.RoomID == nil || *st.RoomID != DemoRoomID {
		t.Fatalf("demo status %+v", st)
	}

	h.clk.Advance(time.Duration(len(DemoUsers))*demoJoinMax + time.Second)

	if n := s.ViewerCount(); n != len(DemoUsers) {
		t.Fatalf("roster size = %d, want %d", n, len(DemoUsers))
	}
	joins := h.rec.OfKind(event.KindViewerJoin)
	if len(joins) != len(DemoUsers) {
		t.Fatalf("viewer-join events = %d, want %d", len(joins), len(DemoUsers))
	}
	var last int64
	for i, p := range joins {
		v := p.Payload.(event.Viewer)
		if v.ID != DemoUsers[i].ID {
			t.Fatalf("join %d is %s, want %s", i, v.ID, DemoUsers[i].ID)
		}
		if v.JoinedAt <= last {
			t.Fatalf("join %d at %d not after previous %d", i, v.JoinedAt, last)
		}
		gap := time.Duration(v.JoinedAt-last) * time.Millisecond
		if i > 0 && (gap < demoJoinMin || gap > demoJoinMax) {
			t.Fatalf("join gap %v outside [%v, %v]", gap, demoJoinMin, demoJoinMax)
		}
		last = v.JoinedAt
	}
	stats := h.rec.OfKind(event.KindRoomStats)
	if len(stats) != len(DemoUsers) || stats[len(stats)-1].Payload.(event.RoomStats).ViewerCount != len(DemoUsers) {
		t.Fatalf("room-stats %+v", stats)
	}

	h.rec.Reset()
	s.StopDemo()
	if n := s.ViewerCount(); n != 0 {
		t.Fatalf("roster size after stop = %d", n)
	}
	got := statuses(h.rec)
	if len(got) != 1 || got[0].Connected || got[0].Error != nil {
		t.Fatalf("statuses after stop %+v", got)
	}
	if s.Summary().Demo {
		t.Fatal("summary still reports demo")
	}
}

func TestDemoTickActivityBands(t *testing.T) {
	h := newHarness(t, nil)
	s := h.session(t, "alice")
	s.StartDemo()
	h.clk.Advance(10 * time.Minute)

	kinds := map[event.Kind]int{}
	for _, p := range h.rec.Events() {
		kinds[p.Kind]++
		switch v := p.Payload.(type) {
		case event.Chat:
			if !slices.Contains(demoChats, v.Comment) {
				t.Fatalf("unexpected demo chat %q", v.Comment)
			}
		case event.Gift:
			if v.DiamondCount < 1 || v.DiamondCount > 100 || v.RepeatCount < 1 || v.RepeatCount > 3 {
				t.Fatalf("gift out of range %+v", v)
			}
		case event.Like:
			if v.LikeCount < 1 || v.LikeCount > 5 || v.TotalLikes >= 500 {
				t.Fatalf("like out of range %+v", v)
			}
		}
	}
	// At least 100 ticks ran; chat is the dominant band.
	if kinds[event.KindChat] == 0 || kinds[event.KindChat] < kinds[event.KindLike] {
		t.Fatalf("activity mix %v", kinds)
	}
}

func TestStopDemoMidCycleEmitsNothingMore(t *testing.T) {
	h := newHarness(t, nil)
	s := h.session(t, "alice")
	s.StartDemo()
	h.clk.Advance(17 * time.Second)
	if len(h.rec.OfKind(event.KindViewerJoin)) == 0 {
		t.Fatal("no joins before stop")
	}

	s.StopDemo()
	h.rec.Reset()
	h.clk.Advance(5 * time.Minute)
	if n := h.rec.Len(); n != 0 {
		t.Fatalf("%d events after stop: %+v", n, h.rec.Events())
	}
	if p := h.clk.Pending(); p != 0 {
		t.Fatalf("%d timers still armed", p)
	}
	// Stopping again is a no-op.
	s.StopDemo()
	if h.rec.Len() != 0 {
		t.Fatal("second stop broadcast")
	}
}

func TestBotsRunAlongsideAndStopCleanly(t *testing.T) {
	h := newHarness(t, nil)
	s := h.session(t, "alice")
	c := h.connect(t, s, "7001")
	h.clk.Advance(DefaultGrace)
	c.Emit(event.RawChat, chatPayload("100", "real viewer"))

	s.StartBots()
	s.StartBots() // idempotent
	h.clk.Advance(2 * time.Minute)

	if !s.Connected() || s.State() != StateConnected {
		t.Fatal("bots disturbed the live connection")
	}
	if n := s.ViewerCount(); n != len(BotUsers)+1 {
		t.Fatalf("roster = %d, want %d", n, len(BotUsers)+1)
	}

	// Command chats: per action tick, 1..3 distinct bots.
	perTick := map[int64][]string{}
	for _, p := range h.rec.OfKind(event.KindChat) {
		ch := p.Payload.(event.Chat)
		if ch.ID == "100" {
			continue
		}
		if !IsBot(ch.ID) {
			t.Fatalf("bot chat from non-bot %q", ch.ID)
		}
		if slices.Contains(BotCommands, ch.Comment) {
			perTick[ch.Timestamp] = append(perTick[ch.Timestamp], ch.ID)
		} else if !slices.Contains(botChats, ch.Comment) {
			t.Fatalf("unexpected bot chat %q", ch.Comment)
		}
	}
	if len(perTick) == 0 {
		t.Fatal("no command chats")
	}
	for ts, ids := range perTick {
		if len(ids) < 1 || len(ids) > botMaxActors {
			t.Fatalf("tick %d had %d actors", ts, len(ids))
		}
		seen := map[string]bool{}
		for _, id := range ids {
			if seen[id] {
				t.Fatalf("tick %d repeated bot %s", ts, id)
			}
			seen[id] = true
		}
	}

	h.rec.Reset()
	s.StopBots()
	removed := h.rec.OfKind(event.KindBotsRemoved)
	if len(removed) != 1 || len(removed[0].Payload.([]string)) != len(BotUsers) {
		t.Fatalf("bots-removed %+v", removed)
	}
	if len(h.rec.OfKind(event.KindConnectionStatus)) != 0 {
		t.Fatal("stopping bots touched the connection status")
	}
	if s.ViewerCount() != 1 || !s.HasViewer("100") {
		t.Fatal("stopping bots removed a real viewer")
	}
	h.rec.Reset()
	h.clk.Advance(time.Minute)
	if h.rec.Len() != 0 {
		t.Fatalf("bots emitted after stop: %+v", h.rec.Events())
	}
}

func TestDemoStopKeepsBotsAndReal(t *testing.T) {
	h := newHarness(t, nil)
	s := h.session(t, "alice")
	s.StartDemo()
	s.StartBots()
	h.clk.Advance(70 * time.Second)
	if s.ViewerCount() != len(DemoUsers)+len(BotUsers) {
		t.Fatalf("roster = %d", s.ViewerCount())
	}
	s.StopDemo()
	if s.ViewerCount() != len(BotUsers) {
		t.Fatalf("roster after demo stop = %d, want %d bots", s.ViewerCount(), len(BotUsers))
	}
	if !s.Summary().Bots {
		t.Fatal("bots stopped with demo")
	}
}

func TestStartDemoTearsDownLive(t *testing.T) {
	h := newHarness(t, nil)
	s := h.session(t, "alice")
	c := h.connect(t, s, "7001")
	c.Emit(event.RawMember, chatPayload("1", ""))
	s.StartBots()
	h.clk.Advance(5 * time.Second)

	s.StartDemo()
	if c.Disconnects() != 1 {
		t.Fatalf("live handle disconnected %d times", c.Disconnects())
	}
	sum := s.Summary()
	if !sum.Demo || sum.Bots {
		t.Fatalf("summary %+v", sum)
	}
	if sum.ViewerCount != 0 {
		t.Fatalf("roster not cleared on mode switch: %d", sum.ViewerCount)
	}
	if st := s.Status(); st.RoomID == nil || *st.RoomID != DemoRoomID {
		t.Fatalf("status %+v", st)
	}
	c.Emit(event.RawMember, chatPayload("2", ""))
	if s.HasViewer("2") {
		t.Fatal("torn-down connection still feeds the roster")
	}

	// And back: connecting stops the demo first.
	s.ConnectLive("")
	if s.Summary().Demo {
		t.Fatal("demo still running after connect")
	}
	last := statuses(h.rec)
	if st := last[len(last)-1]; st.Connected {
		t.Fatalf("demo stop not broadcast before connect: %+v", st)
	}
}

func TestTaskStopWhileCallbackWaits(t *testing.T) {
	clk := clock.NewManual(t0)
	var mu sync.Mutex
	runs := 0
	tk := newTask(clk, &mu, every(time.Second), func() bool { runs++; return true })

	mu.Lock()
	tk.start()
	mu.Unlock()
	clk.Advance(time.Second)
	if runs != 1 {
		t.Fatalf("runs = %d", runs)
	}

	mu.Lock()
	done := make(chan struct{})
	go func() {
		clk.Advance(time.Second)
		close(done)
	}()
	tk.stop()
	mu.Unlock()
	<-done

	if runs != 1 {
		t.Fatalf("stopped task ran again, runs = %d", runs)
	}
	if !tk.Stopped() || clk.Pending() != 0 {
		t.Fatalf("stopped=%v pending=%d", tk.Stopped(), clk.Pending())
	}
}

func TestTaskEndsWhenBodyReturnsFalse(t *testing.T) {
	clk := clock.NewManual(t0)
	var mu sync.Mutex
	runs := 0
	tk := newTask(clk, &mu, every(time.Second), func() bool { runs++; return runs < 3 })
	mu.Lock()
	tk.start()
	mu.Unlock()
	clk.Advance(time.Minute)
	if runs != 3 || !tk.Stopped() {
		t.Fatalf("runs=%d stopped=%v", runs, tk.Stopped())
	}
}
