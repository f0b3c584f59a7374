package session

import (
	"log/slog"
	"time"

	"github.com/onnwee/liveroom/event"
	"github.com/onnwee/liveroom/telemetry"
)

// DemoUsers is the fixed roster the demo generator introduces, in join order.
var DemoUsers = []event.User{
	{ID: "d1", UniqueID: "gamer_girl99", Nickname: "GamerGirl", IsFollower: true},
	{ID: "d2", UniqueID: "tech_bro_my", Nickname: "TechBro MY"},
	{ID: "d3", UniqueID: "todak_fan_01", Nickname: "Todak Fan", IsFollower: true},
	{ID: "d4", UniqueID: "streamsniper420", Nickname: "StreamSniper"},
	{ID: "d5", UniqueID: "neon_rider", Nickname: "Neon Rider", IsFollower: true, IsModerator: true},
	{ID: "d6", UniqueID: "kl_foodie", Nickname: "KL Foodie"},
	{ID: "d7", UniqueID: "cyberjaya_dev", Nickname: "CJ Dev", IsFollower: true},
	{ID: "d8", UniqueID: "mrsm_alumni", Nickname: "MRSM Alumni", IsFollower: true},
	{ID: "d9", UniqueID: "esports_queen", Nickname: "Esports Queen"},
	{ID: "d10", UniqueID: "retro_gamer_88", Nickname: "RetroGamer88", IsFollower: true},
	{ID: "d11", UniqueID: "ai_enthusiast", Nickname: "AI Enthusiast"},
	{ID: "d12", UniqueID: "pixel_artist_my", Nickname: "PixelArtist", IsFollower: true},
}

var demoChats = []string{
	"hello bro!", "assalamualaikum!", "first time here", "nice stream!",
	"where are you from?", "todak gaming best!", "love from KL",
	"share share share!", "can you play MLBB?", "nice setup bro",
	"follow back pls", "what game is this?", "hahaha legend!",
	"how to join?", "the overlay is so cool!", "neo todak in the house!",
}

// giftNames is shared by the demo and bot generators.
var giftNames = []string{"Rose", "Ice Cream Cone", "GG", "Doughnut", "TikTok"}

const (
	demoJoinMin = 2 * time.Second
	demoJoinMax = 5 * time.Second
	demoTickMin = 3 * time.Second
	demoTickMax = 6 * time.Second
)

// demoRun is one running demo generator.
type demoRun struct {
	join   *task
	tick   *task
	next   int      // index into DemoUsers of the next join
	joined []string // ids this run added to the roster
}

func (s *Session) startDemoLocked() {
	if s.demo != nil {
		return
	}
	d := &demoRun{}
	d.join = newTask(s.clk, &s.mu,
		func() time.Duration { return s.between(demoJoinMin, demoJoinMax) },
		func() bool { return s.demoJoin(d) })
	d.tick = newTask(s.clk, &s.mu,
		every(s.between(demoTickMin, demoTickMax)),
		func() bool { s.demoTick(); return true })
	s.demo = d
	telemetry.AddGenerator("demo", 1)
	s.log.Info("demo mode started")
	s.setStatusLocked(StateConnected, event.Connected(DemoRoomID))
	d.join.start()
	d.tick.start()
}

// demoJoin introduces the next demo viewer. It ends the join task once the
// roster is exhausted.
func (s *Session) demoJoin(d *demoRun) bool {
	if d.next >= len(DemoUsers) {
		return false
	}
	u := DemoUsers[d.next]
	d.next++
	e, created, _ := s.roster.Upsert(u, s.clk.Now())
	if created {
		d.joined = append(d.joined, u.ID)
	}
	s.publishLocked(event.KindViewerJoin, event.Viewer{User: e.User, JoinedAt: event.Millis(e.JoinedAt)})
	s.publishLocked(event.KindRoomStats, event.RoomStats{ViewerCount: d.next})
	return d.next < len(DemoUsers)
}

// demoTick emits one activity event from a present viewer of any origin.
func (s *Session) demoTick() {
	present := s.roster.Entries()
	if len(present) == 0 {
		return
	}
	roll := s.rnd.Float64()
	u := present[s.rnd.IntN(len(present))].User
	ts := s.nowMillis()
	switch {
	case roll < 0.6:
		s.publishLocked(event.KindChat, event.Chat{User: u, Comment: pick(s, demoChats), Timestamp: ts})
	case roll < 0.8:
		s.publishLocked(event.KindLike, event.Like{
			User:       u,
			LikeCount:  s.rnd.IntN(5) + 1,
			TotalLikes: s.rnd.IntN(500),
			Timestamp:  ts,
		})
	case roll < 0.92:
		s.publishLocked(event.KindGift, event.Gift{
			User:         u,
			GiftName:     pick(s, giftNames),
			DiamondCount: s.rnd.IntN(100) + 1,
			RepeatCount:  s.rnd.IntN(3) + 1,
			Timestamp:    ts,
		})
	default:
		s.publishLocked(event.KindFollow, event.Follow{User: u, Timestamp: ts})
	}
}

// stopDemoLocked cancels both timers, removes the viewers this run added and
// resets the connection state.
func (s *Session) stopDemoLocked() {
	d := s.demo
	if d == nil {
		return
	}
	d.join.stop()
	d.tick.stop()
	s.demo = nil
	removed := s.roster.Remove(d.joined...)
	telemetry.AddGenerator("demo", -1)
	s.log.Info("demo mode stopped", slog.Int("removed", removed))
	s.setStatusLocked(StateDisconnected, event.Disconnected())
}

func pick(s *Session, xs []string) string {
	return xs[s.rnd.IntN(len(xs))]
}
