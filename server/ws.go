package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/onnwee/liveroom/broadcast"
	"github.com/onnwee/liveroom/event"
	"github.com/onnwee/liveroom/session"
	"github.com/onnwee/liveroom/telemetry"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 64 * 1024
)

// Inbound subscriber commands.
const (
	cmdConnect     = "connect-tiktok"
	cmdStartDemo   = "start-demo"
	cmdStopDemo    = "stop-demo"
	cmdStartBots   = "start-bots"
	cmdStopBots    = "stop-bots"
	cmdHostCommand = "host-command"
	cmdStateSync   = "state-sync"
)

type inbound struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// controlRequest is the object form of a command payload. connect-tiktok also
// accepts a bare username string.
type controlRequest struct {
	Username string `json:"username"`
	Pin      string `json:"pin"`
	Room     string `json:"room"`
}

func parseControl(raw json.RawMessage) controlRequest {
	var name string
	if err := json.Unmarshal(raw, &name); err == nil {
		return controlRequest{Username: name}
	}
	var req controlRequest
	_ = json.Unmarshal(raw, &req)
	return req
}

// wsConn is one subscriber's socket.
type wsConn struct {
	h    *Handlers
	conn *websocket.Conn
	sub  *broadcast.Subscriber
	pin  string
	log  *slog.Logger
}

func (h *Handlers) upgrader() *websocket.Upgrader {
	cors := corsConfig{allowedOrigins: h.cfg.CORSOrigins}
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return cors.permissive() || origin == "" || isOriginAllowed(origin, cors.allowedOrigins)
		},
	}
}

// HandleWS upgrades a display client and subscribes it to ?room. A host token
// in ?pin selects the host's own room regardless of ?room.
func (h *Handlers) HandleWS(w http.ResponseWriter, r *http.Request) {
	room := r.URL.Query().Get("room")
	pin := r.URL.Query().Get("pin")
	if grant, err := h.reg.Gate().Authorize(pin, room); err == nil && grant.Fixed {
		room = grant.Room
	}
	room = broadcast.NormalizeRoom(room)

	conn, err := h.upgrader().Upgrade(w, r, nil)
	if err != nil {
		telemetry.LoggerWithCorr(r.Context()).Warn("websocket upgrade failed", slog.Any("err", err))
		return
	}

	sub := h.subscribe(room)
	c := &wsConn{
		h:    h,
		conn: conn,
		sub:  sub,
		pin:  pin,
		log: slog.Default().With(slog.String("component", "ws"),
			slog.String("room", room), slog.String("subscriber", sub.ID)),
	}
	c.log.Info("subscriber connected", slog.String("remote_addr", r.RemoteAddr))

	stop := context.AfterFunc(h.ctx, func() { _ = conn.Close() })
	defer stop()

	go c.writePump()
	c.readPump()
	h.router.Unsubscribe(sub)
	c.log.Info("subscriber disconnected")
}

// subscribe registers a subscriber whose first frames are the room's
// connection status and roster. The snapshot is queued under the session lock,
// so no event of that session can overtake it.
func (h *Handlers) subscribe(room string) *broadcast.Subscriber {
	if s, ok := h.reg.Get(room); ok {
		var sub *broadcast.Subscriber
		s.Observe(func(status event.ConnectionStatus, viewers []event.Viewer) {
			sub = h.router.SubscribeWith(room, snapshot(status, viewers)...)
		})
		return sub
	}
	sub := h.router.SubscribeWith(room, snapshot(event.Disconnected(), nil)...)
	// The session may have been created after the lookup; resend its state.
	if s, ok := h.reg.Get(room); ok {
		s.Observe(func(status event.ConnectionStatus, viewers []event.Viewer) {
			for _, env := range snapshot(status, viewers) {
				h.router.Send(sub, env.Event, env.Data)
			}
		})
	}
	return sub
}

func snapshot(status event.ConnectionStatus, viewers []event.Viewer) []event.Envelope {
	if viewers == nil {
		viewers = []event.Viewer{}
	}
	return []event.Envelope{
		{Event: event.KindConnectionStatus, Data: status},
		{Event: event.KindViewerList, Data: viewers},
	}
}

func (c *wsConn) readPump() {
	c.conn.SetReadLimit(maxMessageSize)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseNoStatusReceived) {
				c.log.Debug("read error", slog.Any("err", err))
			}
			return
		}
		var msg inbound
		if err := json.Unmarshal(data, &msg); err != nil {
			c.log.Debug("ignoring malformed frame", slog.Any("err", err))
			continue
		}
		c.dispatch(msg)
	}
}

func (c *wsConn) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		_ = c.conn.Close()
	}()
	for {
		select {
		case frame, ok := <-c.sub.Send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *wsConn) dispatch(msg inbound) {
	switch msg.Event {
	case cmdConnect:
		req := parseControl(msg.Data)
		s, ok := c.session(req)
		if !ok {
			return
		}
		username := req.Username
		if username == "" {
			username = s.Room()
			if s.Room() == broadcast.DefaultRoom {
				username = c.h.cfg.DefaultUsername
			}
		}
		c.log.Info("live connect requested", slog.String("username", username))
		s.ConnectLive(username)
	case cmdStartDemo:
		if s, ok := c.session(parseControl(msg.Data)); ok {
			s.StartDemo()
		}
	case cmdStartBots:
		if s, ok := c.session(parseControl(msg.Data)); ok {
			s.StartBots()
		}
	case cmdStopDemo:
		if s, ok := c.existing(parseControl(msg.Data)); ok {
			s.StopDemo()
		}
	case cmdStopBots:
		if s, ok := c.existing(parseControl(msg.Data)); ok {
			s.StopBots()
		}
	case cmdHostCommand:
		c.relay(event.KindHostCommand, relayed(msg.Data), "")
	case cmdStateSync:
		c.relay(event.KindStateSync, relayed(msg.Data), c.sub.ID)
	default:
		c.log.Debug("unknown command", slog.String("event", msg.Event))
	}
}

// relay publishes a subscriber-originated frame to its room, skipping
// exclude, and hands it to the external mirror when one is configured.
func (c *wsConn) relay(kind event.Kind, payload any, exclude string) {
	c.h.router.PublishExcept(c.sub.Room, kind, payload, exclude)
	if c.h.mirror != nil {
		c.h.mirror.Publish(c.sub.Room, kind, payload)
	}
}

// target picks the room a command addresses: the host token's own room, else
// the payload's room, else the subscriber's.
func (c *wsConn) target(req controlRequest) (room, pin string) {
	room, pin = req.Room, req.Pin
	if room == "" {
		room = c.sub.Room
	}
	if pin == "" {
		pin = c.pin
	}
	if grant, err := c.h.reg.Gate().Authorize(pin, room); err == nil && grant.Fixed {
		room = grant.Room
	}
	return room, pin
}

// session gets or creates the target session. An authorization failure is
// reported to this subscriber only.
func (c *wsConn) session(req controlRequest) (*session.Session, bool) {
	room, pin := c.target(req)
	s, err := c.h.reg.GetOrCreate(room, pin)
	if errors.Is(err, session.ErrUnauthorized) {
		c.h.router.Send(c.sub, event.KindAuthError, event.AuthError{Error: "Invalid PIN for room " + broadcast.NormalizeRoom(room)})
		return nil, false
	}
	if err != nil {
		c.log.Warn("session lookup failed", slog.Any("err", err))
		return nil, false
	}
	return s, true
}

// existing looks up the target session without creating it.
func (c *wsConn) existing(req controlRequest) (*session.Session, bool) {
	room, _ := c.target(req)
	return c.h.reg.Get(broadcast.NormalizeRoom(room))
}

// relayed passes a payload through untouched; an absent payload becomes null.
func relayed(raw json.RawMessage) json.RawMessage {
	if len(raw) == 0 {
		return json.RawMessage("null")
	}
	return raw
}
