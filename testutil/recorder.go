package testutil

import (
	"sync"
	"testing"
	"time"

	"github.com/onnwee/liveroom/event"
)

// Published is one recorded publish call.
type Published struct {
	Room    string
	Kind    event.Kind
	Payload any
}

// Recorder is a publisher that remembers everything it was given.
type Recorder struct {
	mu     sync.Mutex
	events []Published
	wake   chan struct{}
}

func NewRecorder() *Recorder {
	return &Recorder{wake: make(chan struct{})}
}

func (r *Recorder) Publish(room string, kind event.Kind, payload any) {
	r.mu.Lock()
	r.events = append(r.events, Published{Room: room, Kind: kind, Payload: payload})
	close(r.wake)
	r.wake = make(chan struct{})
	r.mu.Unlock()
}

// Events returns a copy of everything recorded so far.
func (r *Recorder) Events() []Published {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Published(nil), r.events...)
}

// OfKind returns the recorded events of kind, in order.
func (r *Recorder) OfKind(kind event.Kind) []Published {
	var out []Published
	for _, e := range r.Events() {
		if e.Kind == kind {
			out = append(out, e)
		}
	}
	return out
}

// Len returns the number of recorded events.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

// Reset forgets everything recorded.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.events = nil
	r.mu.Unlock()
}

// WaitFor blocks until an event matching match has been recorded, failing the
// test after timeout.
func (r *Recorder) WaitFor(t *testing.T, timeout time.Duration, match func(Published) bool) Published {
	t.Helper()
	deadline := time.After(timeout)
	for {
		r.mu.Lock()
		for _, e := range r.events {
			if match(e) {
				r.mu.Unlock()
				return e
			}
		}
		wake := r.wake
		r.mu.Unlock()
		select {
		case <-wake:
		case <-deadline:
			t.Fatalf("timed out after %v waiting for event", timeout)
			return Published{}
		}
	}
}
