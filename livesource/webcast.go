package livesource

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/onnwee/liveroom/event"
)

// Webcast connects to a JSON-over-WebSocket relay that speaks the TikTok live
// connector vocabulary. The relay is dialled with ?username=<u>; its first
// frame is either {"event":"connected","data":{"roomId":...}} or an error
// frame, after which it streams {"event":<raw kind>,"data":{...}} frames.
type Webcast struct {
	URL    string
	APIKey string
	Dialer *websocket.Dialer
}

const (
	webcastMaxFrame  = 1 << 20
	webcastWriteWait = 5 * time.Second
	eventConnected   = "connected"
)

// ErrClosed is returned by Connect when the client was disconnected first.
var ErrClosed = errors.New("livesource: client closed")

func (w *Webcast) Open(username string, h Handler) Client {
	return &webcastClient{src: w, username: username, handler: h}
}

type webcastClient struct {
	src      *Webcast
	username string
	handler  Handler

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
}

func (c *webcastClient) Connect(ctx context.Context) (RoomInfo, error) {
	u, err := url.Parse(c.src.URL)
	if err != nil {
		return RoomInfo{}, fmt.Errorf("parse relay url: %w", err)
	}
	q := u.Query()
	q.Set("username", c.username)
	u.RawQuery = q.Encode()

	hdr := http.Header{}
	if c.src.APIKey != "" {
		hdr.Set("X-Api-Key", c.src.APIKey)
	}
	dialer := c.src.Dialer
	if dialer == nil {
		dialer = websocket.DefaultDialer
	}
	conn, resp, err := dialer.DialContext(ctx, u.String(), hdr)
	if resp != nil && resp.Body != nil {
		_ = resp.Body.Close()
	}
	if err != nil {
		return RoomInfo{}, fmt.Errorf("dial relay: %w", err)
	}
	conn.SetReadLimit(webcastMaxFrame)

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		_ = conn.Close()
		return RoomInfo{}, ErrClosed
	}
	c.conn = conn
	c.mu.Unlock()

	// Cancelling ctx during the handshake read unblocks it by closing the socket.
	stop := context.AfterFunc(ctx, func() { _ = conn.Close() })
	first, err := readFrame(conn)
	stop()
	if err != nil {
		_ = conn.Close()
		if ctx.Err() != nil {
			return RoomInfo{}, ctx.Err()
		}
		return RoomInfo{}, fmt.Errorf("relay handshake: %w", err)
	}
	switch first.Kind {
	case eventConnected:
		info := RoomInfo{RoomID: event.FirstString(first.Data, "roomId", "roomInfo.id")}
		go c.readLoop(conn)
		return info, nil
	case event.RawError:
		_ = conn.Close()
		msg := event.FirstString(first.Data, "message", "error")
		if msg == "" {
			msg = "relay refused connection"
		}
		return RoomInfo{}, errors.New(msg)
	default:
		_ = conn.Close()
		return RoomInfo{}, fmt.Errorf("relay handshake: unexpected %q frame", first.Kind)
	}
}

// readLoop forwards frames until the socket fails. An unrequested close is
// reported to the handler as a disconnected event.
func (c *webcastClient) readLoop(conn *websocket.Conn) {
	for {
		raw, err := readFrame(conn)
		if err != nil {
			if c.isClosed() {
				return
			}
			if websocket.IsUnexpectedCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				slog.Warn("webcast relay read failed", slog.String("username", c.username), slog.Any("err", err))
			}
			_ = conn.Close()
			c.handler(event.Raw{Kind: event.RawDisconnected})
			return
		}
		if raw.Kind == "" {
			continue
		}
		c.handler(raw)
	}
}

func (c *webcastClient) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

func (c *webcastClient) Disconnect() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	conn := c.conn
	c.mu.Unlock()
	if conn == nil {
		return nil
	}
	_ = conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(webcastWriteWait))
	return conn.Close()
}

// readFrame reads one {"event","data"} frame. Numbers are kept as json.Number
// so 64-bit user ids survive.
func readFrame(conn *websocket.Conn) (event.Raw, error) {
	_, b, err := conn.ReadMessage()
	if err != nil {
		return event.Raw{}, err
	}
	var f struct {
		Event string         `json:"event"`
		Data  map[string]any `json:"data"`
	}
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.UseNumber()
	if err := dec.Decode(&f); err != nil {
		slog.Debug("webcast: skipping malformed frame", slog.Any("err", err))
		return event.Raw{}, nil
	}
	return event.Raw{Kind: f.Event, Data: f.Data}, nil
}
