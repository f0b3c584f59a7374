package session

import (
	"sync"
	"time"

	"github.com/onnwee/liveroom/clock"
)

// task is a cancellable self-rescheduling timer. Its body runs with the owning
// session's lock held. The stopped flag is checked when the callback is entered
// (a callback may already be waiting on the lock when stop runs) and again
// before the next run is armed.
//
// All fields are guarded by the owner's lock.
type task struct {
	clk     clock.Clock
	lock    sync.Locker
	delay   func() time.Duration
	body    func() bool // false ends the task
	timer   clock.Timer
	stopped bool
}

func newTask(clk clock.Clock, lock sync.Locker, delay func() time.Duration, body func() bool) *task {
	return &task{clk: clk, lock: lock, delay: delay, body: body}
}

// every returns a delay function with a fixed period.
func every(d time.Duration) func() time.Duration {
	return func() time.Duration { return d }
}

// start arms the first run. Caller holds the lock.
func (t *task) start() {
	t.arm()
}

func (t *task) arm() {
	if t.stopped {
		return
	}
	t.timer = t.clk.AfterFunc(t.delay(), t.fire)
}

func (t *task) fire() {
	t.lock.Lock()
	defer t.lock.Unlock()
	if t.stopped {
		return
	}
	t.timer = nil
	if !t.body() {
		t.stopped = true
		return
	}
	if t.stopped {
		return
	}
	t.arm()
}

// stop cancels the pending run, if any. Caller holds the lock.
func (t *task) stop() {
	t.stopped = true
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
}

// Stopped reports whether the task will run again.
func (t *task) Stopped() bool { return t.stopped }
