// Package livesource adapts external live platforms to the raw event
// vocabulary the session controller consumes.
//
// A Source opens one Client per external username. The client delivers raw
// events to the Handler it was opened with, from its own goroutine, until it
// is disconnected. Implementations must not wait for in-flight Handler calls
// inside Disconnect: the caller may hold the lock the handler is blocked on.
package livesource

import (
	"context"
	"errors"
	"fmt"

	"github.com/onnwee/liveroom/event"
)

// RoomInfo is what the external handshake reports.
type RoomInfo struct {
	RoomID string
}

// Handler receives raw events.
type Handler func(event.Raw)

// Client is one external connection handle.
type Client interface {
	// Connect performs the handshake. It blocks until the room is joined, the
	// handshake fails, or ctx is cancelled.
	Connect(ctx context.Context) (RoomInfo, error)
	// Disconnect tears the connection down. Errors are informational.
	Disconnect() error
}

// Source builds clients.
type Source interface {
	Open(username string, h Handler) Client
}

// SourceFunc adapts a function to Source.
type SourceFunc func(username string, h Handler) Client

func (f SourceFunc) Open(username string, h Handler) Client { return f(username, h) }

// ErrUnknownSource is returned by New for an unrecognised kind.
var ErrUnknownSource = errors.New("livesource: unknown source")

// Options carries the per-platform settings New needs.
type Options struct {
	WebcastURL         string
	WebcastAPIKey      string
	TwitchClientID     string
	TwitchClientSecret string
	TwitchHelixURL     string
	YouTubeAPIKey      string
}

// New returns the Source for kind ("webcast", "twitch" or "youtube").
func New(kind string, o Options) (Source, error) {
	switch kind {
	case "", "webcast":
		if o.WebcastURL == "" {
			return nil, fmt.Errorf("webcast source: relay url is required")
		}
		return &Webcast{URL: o.WebcastURL, APIKey: o.WebcastAPIKey}, nil
	case "twitch":
		return NewTwitch(o.TwitchClientID, o.TwitchClientSecret, o.TwitchHelixURL), nil
	case "youtube":
		if o.YouTubeAPIKey == "" {
			return nil, fmt.Errorf("youtube source: api key is required")
		}
		return &YouTube{APIKey: o.YouTubeAPIKey}, nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownSource, kind)
	}
}
