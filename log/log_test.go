package log_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"pipelined.dev/radio/log"
)

func TestGetLogger(t *testing.T) {
	assert.NotNil(t, log.GetLogger())
}

func TestLimiter(t *testing.T) {
	l := log.NewLimiter(2 * time.Second)
	start := time.Unix(100, 0)

	ok, suppressed := l.Allow(start)
	assert.True(t, ok)
	assert.Equal(t, 0, suppressed)

	for i := 1; i < 20; i++ {
		ok, _ = l.Allow(start.Add(time.Duration(i) * 100 * time.Millisecond))
		assert.False(t, ok)
	}

	ok, suppressed = l.Allow(start.Add(2 * time.Second))
	assert.True(t, ok)
	assert.Equal(t, 19, suppressed)
}
