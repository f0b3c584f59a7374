package livesource

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/onnwee/liveroom/event"
)

// relay starts a websocket server that runs script against each connection.
func relay(t *testing.T, script func(conn *websocket.Conn, r *http.Request)) string {
	t.Helper()
	up := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		script(conn, r)
	}))
	t.Cleanup(srv.Close)
	return "ws" + strings.TrimPrefix(srv.URL, "http")
}

func collect() (Handler, <-chan event.Raw) {
	ch := make(chan event.Raw, 16)
	return func(r event.Raw) { ch <- r }, ch
}

func next(t *testing.T, ch <-chan event.Raw) event.Raw {
	t.Helper()
	select {
	case r := <-ch:
		return r
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for raw event")
		return event.Raw{}
	}
}

func TestWebcast_ConnectAndForward(t *testing.T) {
	url := relay(t, func(conn *websocket.Conn, r *http.Request) {
		if r.URL.Query().Get("username") != "streamer" || r.Header.Get("X-Api-Key") != "k" {
			_ = conn.WriteJSON(map[string]any{"event": "error", "data": map[string]any{"message": "bad request"}})
			return
		}
		_ = conn.WriteJSON(map[string]any{"event": "connected", "data": map[string]any{"roomInfo": map[string]any{"id": "7000"}}})
		_ = conn.WriteMessage(websocket.TextMessage, []byte("not json"))
		_ = conn.WriteJSON(map[string]any{"event": "chat", "data": map[string]any{
			"user":    map[string]any{"userId": 6812345678901234567},
			"comment": "hi",
		}})
		_ = conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
	})

	h, ch := collect()
	c := (&Webcast{URL: url, APIKey: "k"}).Open("streamer", h)
	info, err := c.Connect(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if info.RoomID != "7000" {
		t.Fatalf("room id = %q", info.RoomID)
	}

	chat := next(t, ch)
	if chat.Kind != event.RawChat {
		t.Fatalf("kind = %q, want chat", chat.Kind)
	}
	if got := event.ExtractUser(chat.Data).ID; got != "6812345678901234567" {
		t.Fatalf("user id = %q", got)
	}
	if r := next(t, ch); r.Kind != event.RawDisconnected {
		t.Fatalf("kind = %q, want disconnected", r.Kind)
	}
}

func TestWebcast_ErrorFrame(t *testing.T) {
	url := relay(t, func(conn *websocket.Conn, _ *http.Request) {
		_ = conn.WriteJSON(map[string]any{"event": "error", "data": map[string]any{"message": "user is offline"}})
	})
	h, _ := collect()
	_, err := (&Webcast{URL: url}).Open("nobody", h).Connect(context.Background())
	if err == nil || err.Error() != "user is offline" {
		t.Fatalf("err = %v", err)
	}
}

func TestWebcast_DisconnectIsQuiet(t *testing.T) {
	hold := make(chan struct{})
	url := relay(t, func(conn *websocket.Conn, _ *http.Request) {
		_ = conn.WriteJSON(map[string]any{"event": "connected", "data": map[string]any{"roomId": "1"}})
		go func() {
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()
		<-hold
	})
	t.Cleanup(func() { close(hold) })
	h, ch := collect()
	c := (&Webcast{URL: url}).Open("streamer", h)
	if _, err := c.Connect(context.Background()); err != nil {
		t.Fatal(err)
	}
	_ = c.Disconnect()
	select {
	case r := <-ch:
		t.Fatalf("unexpected %q after Disconnect", r.Kind)
	case <-time.After(200 * time.Millisecond):
	}
	if err := c.Disconnect(); err != nil {
		t.Fatalf("second Disconnect: %v", err)
	}
}

func TestWebcast_ConnectCancelled(t *testing.T) {
	hold := make(chan struct{})
	url := relay(t, func(*websocket.Conn, *http.Request) { <-hold })
	t.Cleanup(func() { close(hold) })

	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	h, _ := collect()
	_, err := (&Webcast{URL: url}).Open("streamer", h).Connect(ctx)
	if !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("err = %v, want deadline exceeded", err)
	}
}

func TestNew(t *testing.T) {
	tests := []struct {
		kind    string
		opts    Options
		want    string
		wantErr bool
	}{
		{kind: "", opts: Options{WebcastURL: "ws://relay"}, want: "*livesource.Webcast"},
		{kind: "webcast", wantErr: true},
		{kind: "twitch", want: "*livesource.Twitch"},
		{kind: "youtube", opts: Options{YouTubeAPIKey: "k"}, want: "*livesource.YouTube"},
		{kind: "youtube", wantErr: true},
		{kind: "kick", wantErr: true},
	}
	for _, tt := range tests {
		src, err := New(tt.kind, tt.opts)
		if tt.wantErr {
			if err == nil {
				t.Errorf("New(%q) accepted", tt.kind)
			}
			continue
		}
		if err != nil {
			t.Errorf("New(%q): %v", tt.kind, err)
			continue
		}
		if got := fmt.Sprintf("%T", src); got != tt.want {
			t.Errorf("New(%q) = %s, want %s", tt.kind, got, tt.want)
		}
	}
	if _, err := New("kick", Options{}); !errors.Is(err, ErrUnknownSource) {
		t.Fatalf("err = %v", err)
	}
}
