// Package broadcast fans encoded events out to the subscribers of a room.
//
// Delivery is best effort: each subscriber has a bounded send buffer and a
// frame that does not fit is dropped for that subscriber only.
package broadcast

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"github.com/onnwee/liveroom/event"
	"github.com/onnwee/liveroom/telemetry"
)

// DefaultRoom is the legacy channel used by subscribers that never name a room.
const DefaultRoom = "default"

const defaultBuffer = 256

// Subscriber is one connected display client. Frames arrive on Send; the
// channel is closed by Unsubscribe.
type Subscriber struct {
	ID   string
	Room string
	Send chan []byte
}

// Router maps room channels to their subscribers.
type Router struct {
	mu            sync.RWMutex
	rooms         map[string]map[string]*Subscriber
	mirrorDefault bool
	bufSize       int
	log           *slog.Logger
}

// Option customizes a Router.
type Option func(*Router)

// WithDefaultMirror controls whether every room's traffic is also delivered to
// the legacy default channel.
func WithDefaultMirror(on bool) Option { return func(r *Router) { r.mirrorDefault = on } }

// WithBufferSize sets the per-subscriber send buffer.
func WithBufferSize(n int) Option {
	return func(r *Router) {
		if n > 0 {
			r.bufSize = n
		}
	}
}

func NewRouter(opts ...Option) *Router {
	r := &Router{
		rooms:         make(map[string]map[string]*Subscriber),
		mirrorDefault: true,
		bufSize:       defaultBuffer,
		log:           slog.Default().With(slog.String("component", "broadcast")),
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// NormalizeRoom maps an unspecified room onto the legacy default channel.
func NormalizeRoom(room string) string {
	if room == "" {
		return DefaultRoom
	}
	return room
}

// Subscribe registers a new subscriber on room's channel.
func (r *Router) Subscribe(room string) *Subscriber {
	return r.SubscribeWith(room)
}

// SubscribeWith registers a subscriber whose buffer already holds initial.
// No publish can land ahead of those frames.
func (r *Router) SubscribeWith(room string, initial ...event.Envelope) *Subscriber {
	s := &Subscriber{
		ID:   uuid.NewString(),
		Room: NormalizeRoom(room),
		Send: make(chan []byte, r.bufSize),
	}
	r.mu.Lock()
	for _, env := range initial {
		data, err := Encode(env.Event, env.Data)
		if err != nil {
			r.log.Error("encode event failed", slog.String("kind", string(env.Event)), slog.Any("err", err))
			continue
		}
		deliver(s, data)
	}
	if r.rooms[s.Room] == nil {
		r.rooms[s.Room] = make(map[string]*Subscriber)
	}
	r.rooms[s.Room][s.ID] = s
	r.mu.Unlock()
	telemetry.AddSubscribers(1)
	r.log.Debug("subscriber registered", slog.String("room", s.Room), slog.String("subscriber", s.ID))
	return s
}

// Unsubscribe removes s and closes its send channel. Safe to call twice.
func (r *Router) Unsubscribe(s *Subscriber) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.rooms[s.Room]
	if !ok {
		return
	}
	if _, ok := m[s.ID]; !ok {
		return
	}
	delete(m, s.ID)
	if len(m) == 0 {
		delete(r.rooms, s.Room)
	}
	close(s.Send)
	telemetry.AddSubscribers(-1)
	r.log.Debug("subscriber unregistered", slog.String("room", s.Room), slog.String("subscriber", s.ID))
}

// Count returns the number of subscribers on room's channel.
func (r *Router) Count(room string) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.rooms[NormalizeRoom(room)])
}

// Publish delivers an event to room's channel and, unless room is itself the
// default, to the default channel as well.
func (r *Router) Publish(room string, kind event.Kind, payload any) {
	r.PublishExcept(room, kind, payload, "")
}

// PublishExcept is Publish with one subscriber (by id) excluded.
func (r *Router) PublishExcept(room string, kind event.Kind, payload any, exclude string) {
	data, err := Encode(kind, payload)
	if err != nil {
		r.log.Error("encode event failed", slog.String("kind", string(kind)), slog.Any("err", err))
		return
	}
	room = NormalizeRoom(room)
	// Delivery holds the read lock so Unsubscribe cannot close a channel mid-send.
	r.mu.RLock()
	r.deliverLocked(r.rooms[room], data, exclude)
	if r.mirrorDefault && room != DefaultRoom {
		r.deliverLocked(r.rooms[DefaultRoom], data, exclude)
	}
	r.mu.RUnlock()
	telemetry.IncBroadcast(string(kind))
}

// Send delivers an event to a single subscriber.
func (r *Router) Send(s *Subscriber, kind event.Kind, payload any) {
	data, err := Encode(kind, payload)
	if err != nil {
		r.log.Error("encode event failed", slog.String("kind", string(kind)), slog.Any("err", err))
		return
	}
	r.mu.RLock()
	defer r.mu.RUnlock()
	// The subscriber may have been removed and its channel closed already.
	if _, ok := r.rooms[s.Room][s.ID]; ok {
		deliver(s, data)
	}
}

func (r *Router) deliverLocked(subs map[string]*Subscriber, data []byte, exclude string) {
	for id, s := range subs {
		if id != exclude {
			deliver(s, data)
		}
	}
}

// deliver must not block; a full buffer means the frame is dropped. Callers
// hold the router lock so s.Send is still open.
func deliver(s *Subscriber, data []byte) {
	select {
	case s.Send <- data:
	default:
		telemetry.IncSubscriberDrop()
	}
}

// Encode renders an envelope frame.
func Encode(kind event.Kind, payload any) ([]byte, error) {
	return json.Marshal(event.Envelope{Event: kind, Data: payload})
}
