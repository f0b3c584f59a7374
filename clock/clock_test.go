package clock

import (
	"testing"
	"time"
)

func TestManualFiresInDeadlineOrder(t *testing.T) {
	start := time.Unix(0, 0)
	m := NewManual(start)
	var got []string
	var at []time.Duration
	rec := func(name string) func() {
		return func() {
			got = append(got, name)
			at = append(at, m.Now().Sub(start))
		}
	}
	m.AfterFunc(3*time.Second, rec("c"))
	m.AfterFunc(1*time.Second, rec("a"))
	m.AfterFunc(2*time.Second, rec("b1"))
	m.AfterFunc(2*time.Second, rec("b2"))

	m.Advance(10 * time.Second)

	want := []string{"a", "b1", "b2", "c"}
	if len(got) != len(want) {
		t.Fatalf("fired %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("fired %v, want %v", got, want)
		}
	}
	if at[0] != time.Second || at[3] != 3*time.Second {
		t.Fatalf("callback times %v", at)
	}
	if m.Now().Sub(start) != 10*time.Second {
		t.Fatalf("clock at %v after advance", m.Now().Sub(start))
	}
}

func TestManualRescheduleWithinWindow(t *testing.T) {
	m := NewManual(time.Unix(0, 0))
	n := 0
	var tick func()
	tick = func() {
		n++
		m.AfterFunc(time.Second, tick)
	}
	m.AfterFunc(time.Second, tick)
	m.Advance(5 * time.Second)
	if n != 5 {
		t.Fatalf("ticks = %d, want 5", n)
	}
	if m.Pending() != 1 {
		t.Fatalf("pending = %d, want 1", m.Pending())
	}
}

func TestManualStop(t *testing.T) {
	m := NewManual(time.Unix(0, 0))
	fired := false
	tm := m.AfterFunc(time.Second, func() { fired = true })
	if !tm.Stop() {
		t.Fatal("Stop on pending timer returned false")
	}
	if tm.Stop() {
		t.Fatal("second Stop returned true")
	}
	m.Advance(time.Minute)
	if fired {
		t.Fatal("stopped timer fired")
	}
}
