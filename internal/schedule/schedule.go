// Package schedule provides a drift-corrected ticker for soft real-time
// loops.
package schedule

import (
	"runtime"
	"time"
)

const (
	// CoarseThreshold is the remaining time above which ticker sleeps
	// instead of spinning.
	CoarseThreshold = 800 * time.Microsecond
	// SpinMargin is the time left for spinning after coarse sleep.
	SpinMargin = 300 * time.Microsecond
)

// Clock abstracts time source of the ticker.
type Clock interface {
	Now() time.Time
	// Sleep blocks for d or until done is closed. Returns false if done
	// was closed.
	Sleep(d time.Duration, done <-chan struct{}) bool
	// Yield gives other goroutines a chance to run.
	Yield()
}

// SystemClock is the monotonic wall clock.
type SystemClock struct{}

// Now returns current time with monotonic reading.
func (SystemClock) Now() time.Time {
	return time.Now()
}

// Sleep blocks for d or until done is closed.
func (SystemClock) Sleep(d time.Duration, done <-chan struct{}) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-done:
		return false
	}
}

// Yield calls the scheduler.
func (SystemClock) Yield() {
	runtime.Gosched()
}

// Ticker schedules deadlines at fixed interval. Deadlines advance by the
// interval each tick, so short delays are compensated on the next tick.
// When ticker falls behind for more than an interval, it resyncs instead
// of bursting to catch up.
type Ticker struct {
	clock    Clock
	interval time.Duration
	next     time.Time
	resyncs  int
}

// New returns a ticker with the first deadline set to now.
func New(clock Clock, interval time.Duration) *Ticker {
	if clock == nil {
		clock = SystemClock{}
	}
	return &Ticker{
		clock:    clock,
		interval: interval,
		next:     clock.Now(),
	}
}

// Interval returns the ticker interval.
func (t *Ticker) Interval() time.Duration {
	return t.interval
}

// Next returns the next deadline.
func (t *Ticker) Next() time.Time {
	return t.next
}

// Resyncs returns the number of times ticker was resynced.
func (t *Ticker) Resyncs() int {
	return t.resyncs
}

// Reset sets the next deadline to now.
func (t *Ticker) Reset() {
	t.next = t.clock.Now()
}

// Wait blocks until the next deadline. It sleeps while more than
// CoarseThreshold remains, leaving SpinMargin, and then yields until the
// deadline. Returns false if done was closed.
func (t *Ticker) Wait(done <-chan struct{}) bool {
	remaining := t.next.Sub(t.clock.Now())
	if remaining > CoarseThreshold {
		if !t.clock.Sleep(remaining-SpinMargin, done) {
			return false
		}
	}
	for t.clock.Now().Before(t.next) {
		select {
		case <-done:
			return false
		default:
		}
		t.clock.Yield()
	}
	select {
	case <-done:
		return false
	default:
		return true
	}
}

// Advance moves the deadline by one interval. If the ticker is behind
// the new deadline for more than one interval, next deadline is set to
// now plus interval and true is returned.
func (t *Ticker) Advance() bool {
	t.next = t.next.Add(t.interval)
	now := t.clock.Now()
	if now.Sub(t.next) > t.interval {
		t.next = now.Add(t.interval)
		t.resyncs++
		return true
	}
	return false
}
