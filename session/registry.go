package session

import (
	"fmt"
	"log/slog"
	"math/rand/v2"
	"sort"
	"sync"

	"github.com/onnwee/liveroom/broadcast"
	"github.com/onnwee/liveroom/telemetry"
)

// Registry owns one session per room. Sessions are only ever added.
type Registry struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	gate     *Gate
	deps     Deps
	newRand  func() *rand.Rand
	log      *slog.Logger
}

// RegistryOption customizes a Registry.
type RegistryOption func(*Registry)

// WithRandSource gives each new session its own generator from f.
func WithRandSource(f func() *rand.Rand) RegistryOption {
	return func(r *Registry) { r.newRand = f }
}

// NewRegistry builds an empty registry. deps is shared by every session it
// creates (Rand excepted, see WithRandSource).
func NewRegistry(gate *Gate, deps Deps, opts ...RegistryOption) *Registry {
	r := &Registry{
		sessions: make(map[string]*Session),
		gate:     gate,
		deps:     deps,
		log:      slog.Default().With(slog.String("component", "registry")),
	}
	if deps.Logger != nil {
		r.log = deps.Logger.With(slog.String("component", "registry"))
	}
	for _, o := range opts {
		o(r)
	}
	return r
}

// Gate returns the access gate.
func (r *Registry) Gate() *Gate { return r.gate }

// GetOrCreate returns the session for room, creating it when token allows.
// An empty room names the legacy default session.
func (r *Registry) GetOrCreate(room, token string) (*Session, error) {
	room = broadcast.NormalizeRoom(room)
	if s, ok := r.Get(room); ok {
		return s, nil
	}
	grant, ok := r.gate.allows(token, room)
	if !ok {
		telemetry.IncAuthFailure()
		r.log.Warn("session creation rejected", slog.String("room", room))
		return nil, fmt.Errorf("create session %q: %w", room, ErrUnauthorized)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if s, ok := r.sessions[room]; ok {
		return s, nil
	}
	d := r.deps
	if r.newRand != nil {
		d.Rand = r.newRand()
	}
	s := New(room, grant.DisplayName, d)
	r.sessions[room] = s
	telemetry.SetSessions(len(r.sessions))
	r.log.Info("session created", slog.String("room", room), slog.String("display_name", s.displayName))
	return s, nil
}

// Get is an exact lookup.
func (r *Registry) Get(room string) (*Session, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.sessions[room]
	return s, ok
}

// Resolve looks up room, falling back to the legacy default session when room
// is empty or unknown.
func (r *Registry) Resolve(room string) (*Session, bool) {
	if room != "" {
		if s, ok := r.Get(room); ok {
			return s, true
		}
	}
	return r.Get(broadcast.DefaultRoom)
}

// List returns summaries of every session, sorted by room.
func (r *Registry) List() []Summary {
	r.mu.RLock()
	all := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		all = append(all, s)
	}
	r.mu.RUnlock()

	out := make([]Summary, 0, len(all))
	for _, s := range all {
		out = append(out, s.Summary())
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Room < out[j].Room })
	return out
}

// Len returns the number of sessions.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.sessions)
}

// Close stops every session's sources.
func (r *Registry) Close() {
	r.mu.RLock()
	all := make([]*Session, 0, len(r.sessions))
	for _, s := range r.sessions {
		all = append(all, s)
	}
	r.mu.RUnlock()
	for _, s := range all {
		s.Close()
	}
}
