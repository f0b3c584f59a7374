package session

import (
	"errors"
	"testing"
	"time"

	"github.com/onnwee/liveroom/event"
	"github.com/onnwee/liveroom/testutil"
)

func TestGraceWindowSuppressesReplay(t *testing.T) {
	h := newHarness(t, nil)
	s := h.session(t, "alice")

	s.ConnectLive("")
	c := h.src.Last()
	if c.Username != "alice" {
		t.Fatalf("client opened for %q, want alice", c.Username)
	}
	// Before the handshake resolves everything is replay.
	c.Emit(event.RawChat, chatPayload("1", "early"))
	if !s.HasViewer("1") {
		t.Fatal("pre-handshake chat did not warm the roster")
	}

	c.Succeed("7001")
	h.rec.WaitFor(t, 2*time.Second, func(p testutil.Published) bool { return p.Kind == event.KindConnectionStatus })
	if s.State() != StateConnected {
		t.Fatalf("state = %s", s.State())
	}

	c.Emit(event.RawChat, chatPayload("2", "replayed"))
	h.clk.Advance(DefaultGrace - time.Millisecond)
	c.Emit(event.RawMember, chatPayload("3", ""))
	if got := h.rec.OfKind(event.KindChat); len(got) != 0 {
		t.Fatalf("chat broadcast inside grace window: %+v", got)
	}
	if got := h.rec.OfKind(event.KindViewerJoin); len(got) != 0 {
		t.Fatalf("join broadcast inside grace window: %+v", got)
	}
	for _, id := range []string{"1", "2", "3"} {
		if !s.HasViewer(id) {
			t.Fatalf("viewer %s missing from roster", id)
		}
	}

	h.clk.Advance(time.Millisecond)
	c.Emit(event.RawChat, chatPayload("4", "live now"))
	chats := h.rec.OfKind(event.KindChat)
	if len(chats) != 1 {
		t.Fatalf("chats after grace = %d, want 1", len(chats))
	}
	got := chats[0].Payload.(event.Chat)
	if got.Comment != "live now" || got.ID != "4" {
		t.Fatalf("chat payload %+v", got)
	}
	if want := event.Millis(t0.Add(DefaultGrace)); got.Timestamp != want {
		t.Fatalf("timestamp = %d, want delivery time %d", got.Timestamp, want)
	}
	if chats[0].Room != "alice" {
		t.Fatalf("published to %q", chats[0].Room)
	}
}

func TestGiftStreakCollapses(t *testing.T) {
	h := newHarness(t, nil)
	s := h.session(t, "alice")
	c := h.connect(t, s, "7001")
	h.clk.Advance(DefaultGrace)

	streak := func(end bool) map[string]any {
		return map[string]any{
			"userId": "55", "uniqueId": "giver", "nickname": "Giver",
			"giftType": 1, "repeatEnd": end, "giftName": "Rose", "repeatCount": 5, "diamondCount": 1,
		}
	}
	for i := 0; i < 4; i++ {
		c.Emit(event.RawGift, streak(false))
	}
	if n := len(h.rec.OfKind(event.KindGift)); n != 0 {
		t.Fatalf("%d gifts broadcast mid-streak", n)
	}
	if s.HasViewer("55") {
		t.Fatal("mid-streak gift touched the roster")
	}

	c.Emit(event.RawGift, streak(true))
	gifts := h.rec.OfKind(event.KindGift)
	if len(gifts) != 1 {
		t.Fatalf("gifts at streak end = %d, want 1", len(gifts))
	}
	if g := gifts[0].Payload.(event.Gift); g.RepeatCount != 5 || g.GiftName != "Rose" {
		t.Fatalf("gift payload %+v", g)
	}

	c.Emit(event.RawGift, map[string]any{"userId": "56", "giftType": 2, "giftName": "Lion"})
	if n := len(h.rec.OfKind(event.KindGift)); n != 2 {
		t.Fatalf("non-streakable gift not broadcast exactly once, total %d", n)
	}
}

func TestConnectFailureReportsError(t *testing.T) {
	h := newHarness(t, nil)
	s := h.session(t, "alice")
	s.ConnectLive("")
	c := h.src.Last()
	c.Fail(errors.New("user is offline"))

	p := h.rec.WaitFor(t, 2*time.Second, func(p testutil.Published) bool { return p.Kind == event.KindConnectionStatus })
	cs := p.Payload.(event.ConnectionStatus)
	if cs.Connected || cs.RoomID != nil || cs.Error == nil || *cs.Error != "user is offline" {
		t.Fatalf("status %+v", cs)
	}
	if s.State() != StateError {
		t.Fatalf("state = %s", s.State())
	}
	// The failed handle is released; nothing from it is applied.
	c.Emit(event.RawChat, chatPayload("9", "late"))
	if s.HasViewer("9") {
		t.Fatal("event from failed handle reached the roster")
	}
	if len(h.src.Clients()) != 1 {
		t.Fatal("failure triggered a retry")
	}
}

func TestExternalDisconnect(t *testing.T) {
	h := newHarness(t, nil)
	s := h.session(t, "alice")
	c := h.connect(t, s, "7001")
	h.rec.Reset()

	c.Emit(event.RawDisconnected, nil)
	st := statuses(h.rec)
	if len(st) != 1 || st[0].Connected || st[0].Error == nil || *st[0].Error != "Disconnected" {
		t.Fatalf("statuses %+v", st)
	}
	if s.Connected() {
		t.Fatal("session still holds the handle")
	}
	if n := c.Disconnects(); n != 1 {
		t.Fatalf("dropped handle released %d times, want 1", n)
	}
}

func TestErrorEventIsOnlyLogged(t *testing.T) {
	h := newHarness(t, nil)
	s := h.session(t, "alice")
	c := h.connect(t, s, "7001")
	h.rec.Reset()

	c.Emit(event.RawError, map[string]any{"message": "rate limited"})
	if h.rec.Len() != 0 {
		t.Fatalf("error event broadcast: %+v", h.rec.Events())
	}
	if s.State() != StateConnected {
		t.Fatalf("state = %s", s.State())
	}
}

func TestShareSocialAndRoomStats(t *testing.T) {
	h := newHarness(t, nil)
	s := h.session(t, "alice")
	c := h.connect(t, s, "7001")

	// Room stats are not subject to the grace window.
	c.Emit(event.RawRoomUser, map[string]any{"viewerCount": 321})
	rs := h.rec.OfKind(event.KindRoomStats)
	if len(rs) != 1 || rs[0].Payload.(event.RoomStats).ViewerCount != 321 {
		t.Fatalf("room stats %+v", rs)
	}

	h.clk.Advance(DefaultGrace)
	c.Emit(event.RawShare, map[string]any{"userId": "71", "nickname": "Sharer"})
	c.Emit(event.RawSocial, map[string]any{"userId": "72", "displayType": "pm_mt_guidance_share_follow"})
	if s.HasViewer("71") || s.HasViewer("72") {
		t.Fatal("share/social touched the roster")
	}
	if n := len(h.rec.OfKind(event.KindShare)); n != 2 {
		t.Fatalf("shares = %d, want 2", n)
	}
	if n := len(h.rec.OfKind(event.KindFollow)); n != 1 {
		t.Fatalf("follows = %d, want 1", n)
	}
}

func TestIdentitylessEventStillBroadcasts(t *testing.T) {
	h := newHarness(t, nil)
	s := h.session(t, "alice")
	c := h.connect(t, s, "7001")
	h.clk.Advance(DefaultGrace)

	c.Emit(event.RawLike, map[string]any{"likeCount": 3})
	likes := h.rec.OfKind(event.KindLike)
	if len(likes) != 1 {
		t.Fatalf("likes = %d", len(likes))
	}
	if l := likes[0].Payload.(event.Like); l.Nickname != "Unknown" || l.LikeCount != 3 {
		t.Fatalf("like payload %+v", l)
	}
	if s.ViewerCount() != 0 {
		t.Fatal("identity-less viewer stored")
	}
}

func TestReconnectDiscardsStaleHandle(t *testing.T) {
	h := newHarness(t, nil)
	s := h.session(t, "alice")
	old := h.connect(t, s, "7001")
	h.clk.Advance(DefaultGrace)

	s.ConnectLive("alice_alt")
	if old.Disconnects() != 1 {
		t.Fatalf("old handle disconnected %d times", old.Disconnects())
	}
	fresh := h.src.Last()
	if fresh == old || fresh.Username != "alice_alt" {
		t.Fatalf("new handle not opened for alice_alt")
	}
	old.Emit(event.RawChat, chatPayload("8", "ghost"))
	if s.HasViewer("8") {
		t.Fatal("stale handle event applied")
	}
	if s.Summary().Username != "alice_alt" {
		t.Fatalf("username = %q", s.Summary().Username)
	}
}

func TestNoSourceFails(t *testing.T) {
	rec := testutil.NewRecorder()
	s := New("alice", "", Deps{Publisher: rec})
	s.ConnectLive("")
	st := statuses(rec)
	if len(st) != 1 || st[0].Error == nil || *st[0].Error != ErrNoSource.Error() {
		t.Fatalf("statuses %+v", st)
	}
}
