package clock

import (
	"time"
)

type (
	// TimeSource is an interface to make it easier to test code that uses time.
	TimeSource interface {
		Now() time.Time
		Since(t time.Time) time.Duration
		AfterFunc(d time.Duration, f func()) Timer
	}

	// Timer is a timer returned by TimeSource.AfterFunc. Unlike the timers returned
	// by [time.NewTimer] it has no channel; the callback does the signaling.
	Timer interface {
		// Reset changes the expiry time of the timer. It returns true if the timer
		// had been active, false if the timer had fired or been stopped.
		Reset(d time.Duration) bool
		// Stop prevents the Timer from firing. It returns true if the call stops
		// the timer, false if the timer has already fired or been stopped.
		Stop() bool
	}

	realTimeSource struct{}

	realTimer struct {
		t *time.Timer
	}
)

var _ TimeSource = (*realTimeSource)(nil)

// NewRealTimeSource returns a TimeSource that counts real time.
func NewRealTimeSource() TimeSource {
	return &realTimeSource{}
}

func (ts *realTimeSource) Now() time.Time {
	return time.Now().UTC()
}

func (ts *realTimeSource) Since(t time.Time) time.Duration {
	return time.Since(t)
}

func (ts *realTimeSource) AfterFunc(d time.Duration, f func()) Timer {
	return &realTimer{t: time.AfterFunc(d, f)}
}

func (t *realTimer) Reset(d time.Duration) bool {
	return t.t.Reset(d)
}

func (t *realTimer) Stop() bool {
	return t.t.Stop()
}
