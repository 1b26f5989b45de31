package schedule_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"pipelined.dev/radio/internal/schedule"
)

// fakeClock advances on every sleep and yield.
type fakeClock struct {
	now    time.Time
	step   time.Duration
	sleeps []time.Duration
	yields int
}

func (c *fakeClock) Now() time.Time {
	return c.now
}

func (c *fakeClock) Sleep(d time.Duration, done <-chan struct{}) bool {
	select {
	case <-done:
		return false
	default:
	}
	c.sleeps = append(c.sleeps, d)
	c.now = c.now.Add(d)
	return true
}

func (c *fakeClock) Yield() {
	c.yields++
	c.now = c.now.Add(c.step)
}

func TestWaitTwoPhases(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0), step: 50 * time.Microsecond}
	ticker := schedule.New(clock, 10*time.Millisecond)
	start := clock.now

	// first deadline is now
	assert.True(t, ticker.Wait(nil))
	assert.Empty(t, clock.sleeps)
	assert.Equal(t, 0, clock.yields)

	assert.False(t, ticker.Advance())
	assert.True(t, ticker.Wait(nil))
	assert.Equal(t, []time.Duration{10*time.Millisecond - schedule.SpinMargin}, clock.sleeps)
	assert.Equal(t, 6, clock.yields)
	assert.False(t, clock.now.Before(start.Add(10*time.Millisecond)))
}

func TestWaitShortRemainingSpinsOnly(t *testing.T) {
	clock := &fakeClock{now: time.Unix(0, 0), step: 100 * time.Microsecond}
	ticker := schedule.New(clock, 500*time.Microsecond)
	ticker.Advance()
	assert.True(t, ticker.Wait(nil))
	assert.Empty(t, clock.sleeps)
	assert.Equal(t, 5, clock.yields)
}

func TestWaitDone(t *testing.T) {
	done := make(chan struct{})
	close(done)

	clock := &fakeClock{now: time.Unix(0, 0), step: time.Microsecond}
	ticker := schedule.New(clock, 10*time.Millisecond)
	ticker.Advance()
	assert.False(t, ticker.Wait(done))

	// spin phase
	ticker = schedule.New(clock, 100*time.Microsecond)
	ticker.Advance()
	assert.False(t, ticker.Wait(done))
}

func TestAdvance(t *testing.T) {
	interval := 10 * time.Millisecond
	tests := []struct {
		description string
		elapsed     time.Duration
		resync      bool
		next        time.Duration
	}{
		{
			description: "on time",
			elapsed:     0,
			next:        interval,
		},
		{
			description: "late within interval keeps schedule",
			elapsed:     15 * time.Millisecond,
			next:        interval,
		},
		{
			description: "exactly one interval behind keeps schedule",
			elapsed:     20 * time.Millisecond,
			next:        interval,
		},
		{
			description: "more than one interval behind resyncs",
			elapsed:     25 * time.Millisecond,
			resync:      true,
			next:        35 * time.Millisecond,
		},
	}
	for _, test := range tests {
		clock := &fakeClock{now: time.Unix(0, 0)}
		start := clock.now
		ticker := schedule.New(clock, interval)
		clock.now = clock.now.Add(test.elapsed)
		assert.Equal(t, test.resync, ticker.Advance(), test.description)
		assert.Equal(t, start.Add(test.next), ticker.Next(), test.description)
		if test.resync {
			assert.Equal(t, 1, ticker.Resyncs(), test.description)
		}
	}
}

func TestDriftCompensation(t *testing.T) {
	interval := 10 * time.Millisecond
	clock := &fakeClock{now: time.Unix(0, 0), step: 10 * time.Microsecond}
	start := clock.now
	ticker := schedule.New(clock, interval)
	for i := 0; i < 100; i++ {
		assert.True(t, ticker.Wait(nil))
		// work takes 2ms
		clock.now = clock.now.Add(2 * time.Millisecond)
		assert.False(t, ticker.Advance())
	}
	// deadlines don't accumulate work time
	assert.Equal(t, start.Add(100*interval), ticker.Next())
	assert.Equal(t, 0, ticker.Resyncs())
}

func TestSystemClock(t *testing.T) {
	var c schedule.SystemClock
	done := make(chan struct{})
	before := c.Now()
	assert.True(t, c.Sleep(time.Millisecond, done))
	assert.True(t, c.Now().Sub(before) >= time.Millisecond)
	close(done)
	assert.False(t, c.Sleep(time.Hour, done))
	c.Yield()
}
