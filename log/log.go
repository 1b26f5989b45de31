// Package log provides loggers for radio components.
package log

import (
	"os"
	"strconv"
	"sync"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

var (
	debug bool
	level logrus.Level = logrus.InfoLevel
)

func init() {
	var err error
	debug, err = strconv.ParseBool(os.Getenv("RADIO_DEBUG"))
	if err != nil {
		debug = false
	}
	if debug {
		level = logrus.DebugLevel
	}
	if l, err := logrus.ParseLevel(os.Getenv("RADIO_LOG_LEVEL")); err == nil {
		level = l
	}
}

// GetLogger returns a new logger instance. Level is taken from
// RADIO_DEBUG and RADIO_LOG_LEVEL environment variables.
func GetLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(level)
	return l
}

// Limiter allows an action at most once per interval. It's used to keep
// repeating failures from flooding the log.
type Limiter struct {
	m          sync.Mutex
	limiter    *rate.Limiter
	suppressed int
}

// NewLimiter returns a limiter with provided interval.
func NewLimiter(interval time.Duration) *Limiter {
	return &Limiter{limiter: rate.NewLimiter(rate.Every(interval), 1)}
}

// Allow reports whether the action is allowed at the moment now. If it is,
// the number of occurrences suppressed since the previous allowed one is
// returned as well.
func (l *Limiter) Allow(now time.Time) (bool, int) {
	l.m.Lock()
	defer l.m.Unlock()
	if !l.limiter.AllowN(now, 1) {
		l.suppressed++
		return false, 0
	}
	suppressed := l.suppressed
	l.suppressed = 0
	return true, suppressed
}
