package clock

import (
	"sync"
	"time"
)

type (
	// EventTimeSource is a fake TimeSource for tests. It is synchronous: a call to
	// Advance or Update fires every due timer created via AfterFunc before the
	// call returns, in the calling goroutine.
	EventTimeSource struct {
		mu     sync.RWMutex
		now    time.Time
		timers []*fakeTimer
	}

	fakeTimer struct {
		// the parent time source, needed for synchronization
		timeSource *EventTimeSource
		deadline   time.Time
		callback   func()
		// done is true once the timer has fired or been stopped
		done bool
		// position within timeSource.timers
		index int
	}
)

var _ TimeSource = (*EventTimeSource)(nil)

// NewEventTimeSource returns an EventTimeSource with the current time set to
// the Unix epoch.
func NewEventTimeSource() *EventTimeSource {
	return &EventTimeSource{
		now: time.Unix(0, 0).UTC(),
	}
}

func (ts *EventTimeSource) Now() time.Time {
	ts.mu.RLock()
	defer ts.mu.RUnlock()
	return ts.now
}

func (ts *EventTimeSource) Since(t time.Time) time.Duration {
	return ts.Now().Sub(t)
}

// AfterFunc returns a timer that fires after the given duration. The time
// source is locked while the callback runs, so the callback must not call
// mutating methods on the same time source, or it will deadlock; spawn a
// goroutine for that. A non-positive duration fires before AfterFunc returns.
func (ts *EventTimeSource) AfterFunc(d time.Duration, f func()) Timer {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	if d < 0 {
		d = 0
	}
	t := &fakeTimer{timeSource: ts, deadline: ts.now.Add(d), callback: f}
	t.index = len(ts.timers)
	ts.timers = append(ts.timers, t)
	ts.fireTimers()

	return t
}

// Update sets the fake current time. It returns the time source so calls can
// be chained: clock.NewEventTimeSource().Update(t0).
func (ts *EventTimeSource) Update(now time.Time) *EventTimeSource {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	ts.now = now
	ts.fireTimers()
	return ts
}

// Advance moves the fake current time forward by d.
func (ts *EventTimeSource) Advance(d time.Duration) {
	ts.mu.Lock()
	defer ts.mu.Unlock()

	ts.now = ts.now.Add(d)
	ts.fireTimers()
}

func (ts *EventTimeSource) fireTimers() {
	n := 0
	for _, t := range ts.timers {
		if t.deadline.After(ts.now) {
			ts.timers[n] = t
			t.index = n
			n++
		} else {
			t.callback()
			t.done = true
		}
	}
	ts.timers = ts.timers[:n]
}

func (t *fakeTimer) Reset(d time.Duration) bool {
	t.timeSource.mu.Lock()
	defer t.timeSource.mu.Unlock()

	if d < 0 {
		d = 0
	}

	wasActive := !t.done
	t.deadline = t.timeSource.now.Add(d)
	if t.done {
		t.done = false
		t.index = len(t.timeSource.timers)
		t.timeSource.timers = append(t.timeSource.timers, t)
	}
	t.timeSource.fireTimers()
	return wasActive
}

func (t *fakeTimer) Stop() bool {
	t.timeSource.mu.Lock()
	defer t.timeSource.mu.Unlock()

	if t.done {
		return false
	}

	timers := t.timeSource.timers
	i := t.index
	timers[i] = timers[len(timers)-1]
	timers[i].index = i
	t.timeSource.timers = timers[:len(timers)-1]
	// mark done so the timer is not reused
	t.done = true

	return true
}
