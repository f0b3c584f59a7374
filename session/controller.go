package session

import (
	"context"
	"log/slog"
	"time"

	"github.com/onnwee/liveroom/event"
	"github.com/onnwee/liveroom/livesource"
	"github.com/onnwee/liveroom/telemetry"
)

// startLiveLocked opens a handle for username and starts the handshake in the
// background. Every callback from the handle carries the generation it was
// opened under; anything from an older generation is discarded.
func (s *Session) startLiveLocked(username string) {
	if s.src == nil {
		s.log.Warn("live connect requested without a source", slog.String("username", username))
		s.setStatusLocked(StateError, event.Failed(ErrNoSource.Error()))
		return
	}
	s.gen++
	gen := s.gen
	ctx, cancel := context.WithCancel(context.Background())
	c := s.src.Open(username, func(raw event.Raw) { s.handleRaw(gen, raw) })
	s.live = &liveConn{client: c, cancel: cancel, gen: gen, started: s.clk.Now()}
	s.state = StateConnecting
	s.log.Info("connecting to live room", slog.String("username", username))
	go s.awaitConnect(ctx, gen, c)
}

func (s *Session) awaitConnect(ctx context.Context, gen uint64, c livesource.Client) {
	_, span := telemetry.StartSpan(ctx, "session", "session.live_handshake", telemetry.RoomAttr(s.room))
	info, err := c.Connect(ctx)
	if err != nil {
		telemetry.RecordError(span, err)
	} else {
		telemetry.SetSpanSuccess(span)
	}
	span.End()

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.live == nil || s.live.gen != gen {
		telemetry.IncSuppressed("stale_handle")
		if err == nil {
			_ = c.Disconnect()
		}
		return
	}
	telemetry.IncLiveConnect(err == nil)
	if err != nil {
		s.log.Error("live connect failed", slog.Any("err", err))
		s.live.cancel()
		s.live = nil
		s.setStatusLocked(StateError, event.Failed(err.Error()))
		return
	}
	now := s.clk.Now()
	telemetry.ObserveSeconds(telemetry.LiveHandshakeDuration, now.Sub(s.live.started).Seconds())
	s.live.graceUntil = now.Add(s.grace)
	s.log.Info("live room connected", slog.String("room_id", info.RoomID), slog.Duration("grace", s.grace))
	s.setStatusLocked(StateConnected, event.Connected(info.RoomID))
}

// stopLiveLocked releases the handle. Disconnect errors are ignored since the
// handle is discarded either way. It reports whether there was a handle.
func (s *Session) stopLiveLocked() bool {
	if s.live == nil {
		return false
	}
	c := s.live
	s.live = nil
	c.cancel()
	if err := c.client.Disconnect(); err != nil {
		s.log.Debug("disconnect error ignored", slog.Any("err", err))
	}
	return true
}

// handleRaw applies one raw event: roster first, then (outside the grace
// window) the broadcast. Delivery timestamps are taken here.
func (s *Session) handleRaw(gen uint64, raw event.Raw) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.live == nil || s.live.gen != gen {
		telemetry.IncSuppressed("stale_handle")
		return
	}
	now := s.clk.Now()
	live := s.live.isLive(now)
	ts := event.Millis(now)

	switch raw.Kind {
	case event.RawMember:
		u := event.ExtractUser(raw.Data)
		s.trackLocked(u, now)
		if s.replay(live) {
			return
		}
		s.publishLocked(event.KindViewerJoin, event.Viewer{User: u, JoinedAt: ts})

	case event.RawChat:
		c := event.NormalizeChat(raw.Data)
		s.trackLocked(c.User, now)
		if s.replay(live) {
			return
		}
		c.Timestamp = ts
		s.publishLocked(event.KindChat, c)

	case event.RawGift:
		if event.IsStreakInProgress(raw.Data) {
			telemetry.IncSuppressed("gift_streak")
			return
		}
		g := event.NormalizeGift(raw.Data)
		s.trackLocked(g.User, now)
		if s.replay(live) {
			return
		}
		g.Timestamp = ts
		s.publishLocked(event.KindGift, g)

	case event.RawLike:
		l := event.NormalizeLike(raw.Data)
		s.trackLocked(l.User, now)
		if s.replay(live) {
			return
		}
		l.Timestamp = ts
		s.publishLocked(event.KindLike, l)

	case event.RawFollow:
		f := event.NormalizeFollow(raw.Data)
		s.trackLocked(f.User, now)
		if s.replay(live) {
			return
		}
		f.Timestamp = ts
		s.publishLocked(event.KindFollow, f)

	case event.RawShare:
		if s.replay(live) {
			return
		}
		f := event.NormalizeFollow(raw.Data)
		f.Timestamp = ts
		s.publishLocked(event.KindShare, f)

	case event.RawSocial:
		if s.replay(live) {
			return
		}
		f := event.NormalizeFollow(raw.Data)
		f.Timestamp = ts
		for _, k := range event.SocialKinds(raw.Data) {
			s.publishLocked(k, f)
		}

	case event.RawRoomUser:
		s.publishLocked(event.KindRoomStats, event.NormalizeRoomStats(raw.Data))

	case event.RawDisconnected:
		s.log.Warn("live room disconnected")
		_ = s.live.client.Disconnect()
		s.live.cancel()
		s.live = nil
		s.setStatusLocked(StateError, event.Failed("Disconnected"))

	case event.RawError:
		s.log.Error("live source error", slog.String("message", event.FirstString(raw.Data, "message", "error")))

	default:
		s.log.Debug("unhandled raw event", slog.String("kind", raw.Kind))
	}
}

// replay reports (and counts) whether an event falls inside the grace window.
func (s *Session) replay(live bool) bool {
	if !live {
		telemetry.IncSuppressed("grace")
		return true
	}
	return false
}

func (s *Session) trackLocked(u event.User, now time.Time) {
	s.roster.Upsert(u, now)
}
