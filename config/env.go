package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

// Environment variables.
const (
	EnvRate          = "RADIO_RATE_HZ"
	EnvVerboseFrames = "RADIO_VERBOSE_FRAMES"
	EnvLogEvery      = "RADIO_LOG_EVERY"
	EnvBindSeconds   = "RADIO_BIND_SECONDS"
	EnvPort          = "RADIO_PORT"
	EnvCapture       = "RADIO_CAPTURE"
)

// Default tunables.
const (
	DefaultRate     = 45.0
	DefaultLogEvery = 45
	DefaultPort     = "/dev/serial0"
)

// Env holds transmitter tunables.
type Env struct {
	Rate          float64
	VerboseFrames bool
	LogEvery      int
	Bind          time.Duration
	Port          string
	// Capture replaces serial port with in-memory capture when set.
	Capture bool
}

// LookupFunc retrieves the value of the variable.
type LookupFunc func(key string) (string, bool)

// FromEnv reads tunables from process environment.
func FromEnv() (Env, error) {
	return Lookup(os.LookupEnv)
}

// Lookup reads tunables with provided function. Unset and empty variables
// take default values.
func Lookup(lookup LookupFunc) (Env, error) {
	e := Env{
		Rate:     DefaultRate,
		LogEvery: DefaultLogEvery,
		Port:     DefaultPort,
	}
	get := func(key string) (string, bool) {
		v, ok := lookup(key)
		return v, ok && v != ""
	}

	if v, ok := get(EnvRate); ok {
		rate, err := strconv.ParseFloat(v, 64)
		if err != nil || rate <= 0 {
			return Env{}, fmt.Errorf("%s must be a positive number, got %q", EnvRate, v)
		}
		e.Rate = rate
	}
	if v, ok := get(EnvVerboseFrames); ok {
		on, err := strconv.ParseBool(v)
		if err != nil {
			return Env{}, fmt.Errorf("%s: %w", EnvVerboseFrames, err)
		}
		e.VerboseFrames = on
	}
	if v, ok := get(EnvLogEvery); ok {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			return Env{}, fmt.Errorf("%s must be a positive integer, got %q", EnvLogEvery, v)
		}
		e.LogEvery = n
	}
	if v, ok := get(EnvBindSeconds); ok {
		s, err := strconv.ParseFloat(v, 64)
		if err != nil || s < 0 {
			return Env{}, fmt.Errorf("%s must be a non-negative number, got %q", EnvBindSeconds, v)
		}
		e.Bind = time.Duration(s * float64(time.Second))
	}
	if v, ok := get(EnvPort); ok {
		e.Port = v
	}
	if v, ok := get(EnvCapture); ok {
		on, err := strconv.ParseBool(v)
		if err != nil {
			return Env{}, fmt.Errorf("%s: %w", EnvCapture, err)
		}
		e.Capture = on
	}
	return e, nil
}
