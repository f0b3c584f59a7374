package broadcast

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/onnwee/liveroom/event"
)

// DefaultChannelPrefix prefixes the per-room Redis channel.
const DefaultChannelPrefix = "liveroom:room:"

// Mirror republishes encoded frames to Redis pub/sub so processes outside
// this server (stream bots, OBS bridges) can follow a room. Publish never
// blocks; frames are dropped when the queue is full.
type Mirror struct {
	client *redis.Client
	prefix string
	queue  chan mirrorFrame
}

type mirrorFrame struct {
	channel string
	data    []byte
}

// NewMirror connects to the Redis server at url (redis://[:pass@]host:port/db).
func NewMirror(ctx context.Context, url, prefix string) (*Mirror, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	pctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}
	if prefix == "" {
		prefix = DefaultChannelPrefix
	}
	return &Mirror{client: client, prefix: prefix, queue: make(chan mirrorFrame, defaultBuffer)}, nil
}

// Channel is the Redis channel for room.
func (m *Mirror) Channel(room string) string { return m.prefix + NormalizeRoom(room) }

func (m *Mirror) Publish(room string, kind event.Kind, payload any) {
	b, err := Encode(kind, payload)
	if err != nil {
		return
	}
	select {
	case m.queue <- mirrorFrame{channel: m.Channel(room), data: b}:
	default:
		slog.Debug("redis mirror queue full", slog.String("room", room))
	}
}

// Run forwards queued frames until ctx is done.
func (m *Mirror) Run(ctx context.Context) error {
	for {
		select {
		case f := <-m.queue:
			if err := m.client.Publish(ctx, f.channel, f.data).Err(); err != nil && ctx.Err() == nil {
				slog.Warn("redis mirror publish failed", slog.String("channel", f.channel), slog.Any("err", err))
			}
		case <-ctx.Done():
			return nil
		}
	}
}

// Ping reports whether Redis is reachable.
func (m *Mirror) Ping(ctx context.Context) error { return m.client.Ping(ctx).Err() }

func (m *Mirror) Close() error { return m.client.Close() }
