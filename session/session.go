// Package session implements the per-room broadcast engine: the viewer roster,
// the external connection lifecycle, the demo and bot generators, and the
// registry that owns one session per room.
//
// Every handler that touches a session (live callbacks, generator timers,
// subscriber commands, connect completion) runs to completion under the
// session's mutex. Publishing never blocks, so broadcasts are issued while the
// lock is held and per-room delivery order matches timestamp order.
package session

import (
	"context"
	"log/slog"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/onnwee/liveroom/clock"
	"github.com/onnwee/liveroom/event"
	"github.com/onnwee/liveroom/livesource"
	"github.com/onnwee/liveroom/roster"
	"github.com/onnwee/liveroom/telemetry"
)

// State is the connection state of a session.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateError        State = "error"
)

// DemoRoomID is the room id reported while the demo generator drives a session.
const DemoRoomID = "DEMO-MODE"

// DefaultGrace is how long after a successful connect raw events are treated
// as historical replay.
const DefaultGrace = 3 * time.Second

// Publisher delivers an event to a room's subscribers. Implementations must not block.
type Publisher interface {
	Publish(room string, kind event.Kind, payload any)
}

// Publishers fans one publish out to several publishers in order.
type Publishers []Publisher

func (ps Publishers) Publish(room string, kind event.Kind, payload any) {
	for _, p := range ps {
		if p != nil {
			p.Publish(room, kind, payload)
		}
	}
}

// Usage holds opaque per-session counters for the commentary pipeline.
type Usage struct {
	Commentaries int `json:"commentaries"`
	TextChars    int `json:"textChars"`
	SpeechChars  int `json:"speechChars"`
}

// Summary is the public-safe view of a session.
type Summary struct {
	Room        string    `json:"room"`
	DisplayName string    `json:"displayName"`
	Username    string    `json:"username"`
	ViewerCount int       `json:"viewerCount"`
	Connected   bool      `json:"connected"`
	State       State     `json:"state"`
	Demo        bool      `json:"demo"`
	Bots        bool      `json:"bots"`
	CreatedAt   time.Time `json:"createdAt"`
	Usage       Usage     `json:"usage"`
}

// Deps are the collaborators a session needs. The registry fills them in.
type Deps struct {
	Clock     clock.Clock
	Publisher Publisher
	Source    livesource.Source // nil disables live mode
	Grace     time.Duration
	Rand      *rand.Rand
	Logger    *slog.Logger
}

// liveConn is the current external connection handle.
type liveConn struct {
	client livesource.Client
	cancel context.CancelFunc
	gen    uint64
	// graceUntil is zero until the handshake completes; every event before
	// that is replay.
	graceUntil time.Time
	started    time.Time
}

func (c *liveConn) isLive(now time.Time) bool {
	return !c.graceUntil.IsZero() && !now.Before(c.graceUntil)
}

// Session is the state of one room.
type Session struct {
	mu sync.Mutex

	room        string
	displayName string
	username    string
	createdAt   time.Time

	roster *roster.Roster
	state  State
	status event.ConnectionStatus
	usage  Usage

	// Each is nil when that source is inactive.
	live *liveConn
	demo *demoRun
	bots *botRun

	gen uint64

	clk   clock.Clock
	pub   Publisher
	src   livesource.Source
	grace time.Duration
	rnd   *rand.Rand
	log   *slog.Logger
}

// New builds an idle session for room.
func New(room, displayName string, d Deps) *Session {
	if d.Clock == nil {
		d.Clock = clock.Real()
	}
	if d.Grace <= 0 {
		d.Grace = DefaultGrace
	}
	if d.Rand == nil {
		d.Rand = rand.New(rand.NewPCG(rand.Uint64(), rand.Uint64()))
	}
	if d.Logger == nil {
		d.Logger = slog.Default()
	}
	if d.Publisher == nil {
		d.Publisher = Publishers(nil)
	}
	if displayName == "" {
		displayName = room
	}
	return &Session{
		room:        room,
		displayName: displayName,
		username:    room,
		createdAt:   d.Clock.Now(),
		roster:      roster.New(),
		state:       StateDisconnected,
		status:      event.Disconnected(),
		clk:         d.Clock,
		pub:         d.Publisher,
		src:         d.Source,
		grace:       d.Grace,
		rnd:         d.Rand,
		log:         d.Logger.With(slog.String("component", "session"), slog.String("room", room)),
	}
}

func (s *Session) Room() string { return s.room }

// Status returns the connection state record.
func (s *Session) Status() event.ConnectionStatus {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Snapshot returns what a new subscriber is sent: the connection status and
// the full roster.
func (s *Session) Snapshot() (event.ConnectionStatus, []event.Viewer) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status, s.roster.Viewers()
}

// Observe runs f with the snapshot while holding the session lock, so no
// event from this session is published until f returns. f must not call back
// into the session.
func (s *Session) Observe(f func(event.ConnectionStatus, []event.Viewer)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	f(s.status, s.roster.Viewers())
}

// ViewerCount returns the roster size.
func (s *Session) ViewerCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roster.Len()
}

// HasViewer reports whether id is in the roster.
func (s *Session) HasViewer(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roster.Has(id)
}

// Viewer returns the roster entry for id.
func (s *Session) Viewer(id string) (roster.Entry, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.roster.Get(id)
}

// Connected reports whether the session has a live handle or a running demo.
func (s *Session) Connected() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.live != nil || s.demo != nil
}

// Summary returns the public-safe view.
func (s *Session) Summary() Summary {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Summary{
		Room:        s.room,
		DisplayName: s.displayName,
		Username:    s.username,
		ViewerCount: s.roster.Len(),
		Connected:   s.status.Connected,
		State:       s.state,
		Demo:        s.demo != nil,
		Bots:        s.bots != nil,
		CreatedAt:   s.createdAt,
		Usage:       s.usage,
	}
}

// AddUsage accumulates commentary usage.
func (s *Session) AddUsage(textChars, speechChars int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.usage.Commentaries++
	s.usage.TextChars += textChars
	s.usage.SpeechChars += speechChars
}

// ConnectLive switches the session to external-connection mode for username
// (the room id when empty).
func (s *Session) ConnectLive(username string) {
	_, span := telemetry.StartSpan(context.Background(), "session", "session.connect_live",
		telemetry.RoomAttr(s.room), telemetry.ModeAttr("live"))
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
	if username == "" {
		username = s.room
	}
	s.username = username
	s.startLiveLocked(username)
}

// StartDemo switches the session to demo mode.
func (s *Session) StartDemo() {
	_, span := telemetry.StartSpan(context.Background(), "session", "session.start_demo",
		telemetry.RoomAttr(s.room), telemetry.ModeAttr("demo"))
	defer span.End()

	s.mu.Lock()
	defer s.mu.Unlock()
	s.resetLocked()
	s.startDemoLocked()
}

// StopDemo stops the demo generator. No-op when it is not running.
func (s *Session) StopDemo() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopDemoLocked()
}

// StartBots starts the bot generator alongside whatever else is running.
// No-op when it is already running.
func (s *Session) StartBots() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.startBotsLocked()
}

// StopBots stops the bot generator. No-op when it is not running.
func (s *Session) StopBots() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopBotsLocked()
}

// Disconnect drops the external connection, if any. The roster is kept.
func (s *Session) Disconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopLiveLocked() {
		s.setStatusLocked(StateDisconnected, event.Disconnected())
	}
}

// Close stops every source. Used at process shutdown.
func (s *Session) Close() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopDemoLocked()
	s.stopBotsLocked()
	s.stopLiveLocked()
}

// resetLocked is the mode-switch prelude: stop demo, stop bots, disconnect,
// clear the roster.
func (s *Session) resetLocked() {
	s.stopDemoLocked()
	s.stopBotsLocked()
	s.stopLiveLocked()
	s.roster.Clear()
}

func (s *Session) setStatusLocked(st State, cs event.ConnectionStatus) {
	s.state = st
	s.status = cs
	s.pub.Publish(s.room, event.KindConnectionStatus, cs)
}

func (s *Session) publishLocked(kind event.Kind, payload any) {
	s.pub.Publish(s.room, kind, payload)
}

// between returns a uniformly random duration in [lo, hi).
func (s *Session) between(lo, hi time.Duration) time.Duration {
	if hi <= lo {
		return lo
	}
	return lo + time.Duration(s.rnd.Int64N(int64(hi-lo)))
}

func (s *Session) nowMillis() int64 { return event.Millis(s.clk.Now()) }
