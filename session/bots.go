package session

import (
	"log/slog"
	"time"

	"github.com/onnwee/liveroom/event"
	"github.com/onnwee/liveroom/telemetry"
)

// BotUsers is the fixed bot roster, in join order.
var BotUsers = []event.User{
	{ID: "bot_1", UniqueID: "aisyah_kl", Nickname: "Aisyah", IsFollower: true},
	{ID: "bot_2", UniqueID: "haziq_gaming", Nickname: "Haziq"},
	{ID: "bot_3", UniqueID: "mei_ling88", Nickname: "Mei Ling", IsFollower: true},
	{ID: "bot_4", UniqueID: "arjun_plays", Nickname: "Arjun"},
	{ID: "bot_5", UniqueID: "nurul_amira", Nickname: "Nurul", IsFollower: true},
	{ID: "bot_6", UniqueID: "tanaka_yuki", Nickname: "Yuki"},
	{ID: "bot_7", UniqueID: "danish_my", Nickname: "Danish", IsFollower: true},
	{ID: "bot_8", UniqueID: "siti_sarah", Nickname: "Siti Sarah", IsFollower: true},
}

var botChats = []string{
	"lets go!", "woooo!", "nice!", "hahaha", "gg bro",
	"so cool!", "faster faster!", "nooo obstacle!", "love this game",
	"gogogogo!", "semangat!", "bestnya!", "I'm winning!",
	"wahh pro!", "lajunyaaa", "sikit lagi!", "terbaik bro!",
}

// BotCommands are the control tokens bots send as chat to drive game overlays.
var BotCommands = []string{"jump", "left", "right"}

const (
	botJoinMin   = 1 * time.Second
	botJoinMax   = 3 * time.Second
	botVibeMin   = 3 * time.Second
	botVibeMax   = 6 * time.Second
	botActionMin = 1 * time.Second
	botActionMax = 2 * time.Second
	botMaxActors = 3
)

// botRun is one running bot generator.
type botRun struct {
	join   *task
	vibe   *task
	action *task
	next   int
}

func (s *Session) startBotsLocked() {
	if s.bots != nil {
		return
	}
	b := &botRun{}
	b.join = newTask(s.clk, &s.mu,
		func() time.Duration { return s.between(botJoinMin, botJoinMax) },
		func() bool { return s.botJoin(b) })
	b.vibe = newTask(s.clk, &s.mu,
		every(s.between(botVibeMin, botVibeMax)),
		func() bool { s.botVibe(); return true })
	b.action = newTask(s.clk, &s.mu,
		every(s.between(botActionMin, botActionMax)),
		func() bool { s.botAction(); return true })
	s.bots = b
	telemetry.AddGenerator("bots", 1)
	s.log.Info("bot mode started")
	b.join.start()
	b.vibe.start()
	b.action.start()
}

func (s *Session) botJoin(b *botRun) bool {
	if b.next >= len(BotUsers) {
		return false
	}
	u := BotUsers[b.next]
	b.next++
	e, _, _ := s.roster.Upsert(u, s.clk.Now())
	s.publishLocked(event.KindViewerJoin, event.Viewer{User: e.User, JoinedAt: event.Millis(e.JoinedAt)})
	return b.next < len(BotUsers)
}

// presentBots returns the bots currently in the roster, in bot roster order.
func (s *Session) presentBots() []event.User {
	var out []event.User
	for _, u := range BotUsers {
		if s.roster.Has(u.ID) {
			out = append(out, u)
		}
	}
	return out
}

func (s *Session) botVibe() {
	bots := s.presentBots()
	if len(bots) == 0 {
		return
	}
	u := bots[s.rnd.IntN(len(bots))]
	roll := s.rnd.Float64()
	now := s.clk.Now()
	ts := event.Millis(now)
	switch {
	case roll < 0.5:
		s.publishLocked(event.KindChat, event.Chat{User: u, Comment: pick(s, botChats), Timestamp: ts})
	case roll < 0.85:
		s.publishLocked(event.KindLike, event.Like{
			User:       u,
			LikeCount:  s.rnd.IntN(3) + 1,
			TotalLikes: s.rnd.IntN(200),
			Timestamp:  ts,
		})
	default:
		s.publishLocked(event.KindGift, event.Gift{
			User:         u,
			GiftName:     pick(s, giftNames),
			GiftID:       ts,
			DiamondCount: s.rnd.IntN(50) + 1,
			RepeatCount:  1,
			Timestamp:    ts,
		})
	}
}

// botAction makes 1..min(3, present) distinct bots each send a command token.
func (s *Session) botAction() {
	bots := s.presentBots()
	if len(bots) == 0 {
		return
	}
	n := 1 + s.rnd.IntN(min(botMaxActors, len(bots)))
	s.rnd.Shuffle(len(bots), func(i, j int) { bots[i], bots[j] = bots[j], bots[i] })
	ts := s.nowMillis()
	for _, u := range bots[:n] {
		s.publishLocked(event.KindChat, event.Chat{User: u, Comment: pick(s, BotCommands), Timestamp: ts})
	}
}

// stopBotsLocked cancels the three timers, removes every bot from the roster
// and tells subscribers which ids went away.
func (s *Session) stopBotsLocked() {
	b := s.bots
	if b == nil {
		return
	}
	b.join.stop()
	b.vibe.stop()
	b.action.stop()
	s.bots = nil
	ids := make([]string, len(BotUsers))
	for i, u := range BotUsers {
		ids[i] = u.ID
	}
	removed := s.roster.Remove(ids...)
	telemetry.AddGenerator("bots", -1)
	s.log.Info("bot mode stopped", slog.Int("removed", removed))
	s.publishLocked(event.KindBotsRemoved, ids)
}

// IsBot reports whether id belongs to the bot roster.
func IsBot(id string) bool {
	for _, u := range BotUsers {
		if u.ID == id {
			return true
		}
	}
	return false
}
