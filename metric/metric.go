// Package metric publishes transmission counters with expvar.
package metric

import (
	"expvar"
	"fmt"
	"sync"
	"sync/atomic"
	"time"
)

const componentsLabel = "radio.components"

const (
	// FrameCounter measures number of sent frames.
	FrameCounter = "Frames"
	// ByteCounter measures number of sent bytes.
	ByteCounter = "Bytes"
	// WriteErrorCounter counts failed writes.
	WriteErrorCounter = "WriteErrors"
	// SamplerErrorCounter counts failed samples.
	SamplerErrorCounter = "SamplerErrors"
	// ResyncCounter counts schedule resyncs.
	ResyncCounter = "Resyncs"
	// ReconnectCounter counts port reopen attempts.
	ReconnectCounter = "Reconnects"
	// LatencyCounter measures time between two sent frames.
	LatencyCounter = "Latency"
	// LatenessCounter measures how late the last frame was sent.
	LatenessCounter = "Lateness"
	// ComponentCounter counts number of meters.
	ComponentCounter = "Components"
)

var (
	components = metrics{
		m: make(map[string]metric),
	}

	counters = []string{
		FrameCounter,
		ByteCounter,
		WriteErrorCounter,
		SamplerErrorCounter,
		ResyncCounter,
		ReconnectCounter,
		LatencyCounter,
		LatenessCounter,
		ComponentCounter,
	}
)

// Get metrics values for provided component.
func Get(component string) map[string]string {
	return getCounters(component)
}

// GetAll returns counters for all measured components.
func GetAll() map[string]map[string]string {
	m := make(map[string]map[string]string)
	components.Lock()
	defer components.Unlock()
	for component := range components.m {
		m[component] = getCounters(component)
	}
	return m
}

func getCounters(component string) map[string]string {
	m := make(map[string]string)
	for _, counter := range counters {
		v := expvar.Get(key(component, counter))
		if v != nil {
			m[counter] = v.String()
		}
	}
	return m
}

// Meter captures counters of a single running component. Counters are
// shared between all meters of the same component.
type Meter struct {
	metric   metric
	calledAt time.Time
}

// NewMeter creates new meter for component.
func NewMeter(component string) *Meter {
	metric := components.get(component)
	metric.components.Add(1)
	return &Meter{metric: metric}
}

// Reset restarts latency measurement. It's called when component starts
// running.
func (m *Meter) Reset() {
	m.calledAt = time.Now()
}

// Frame captures a sent frame of provided size and how late it was sent.
func (m *Meter) Frame(size int, lateness time.Duration) {
	now := time.Now()
	if !m.calledAt.IsZero() {
		m.metric.latency.set(now.Sub(m.calledAt))
	}
	m.calledAt = now
	m.metric.lateness.set(lateness)
	m.metric.frames.Add(1)
	m.metric.bytes.Add(int64(size))
}

// WriteError counts failed write.
func (m *Meter) WriteError() {
	m.metric.writeErrors.Add(1)
}

// SamplerError counts failed sample.
func (m *Meter) SamplerError() {
	m.metric.samplerErrors.Add(1)
}

// Resync counts schedule resync.
func (m *Meter) Resync() {
	m.metric.resyncs.Add(1)
}

// Reconnect counts port reopen attempt.
func (m *Meter) Reconnect() {
	m.metric.reconnects.Add(1)
}

type metrics struct {
	sync.Mutex
	m map[string]metric
}

func (m *metrics) get(component string) metric {
	m.Lock()
	defer m.Unlock()
	if metric, ok := m.m[component]; ok {
		// return existing metric if available
		return metric
	}
	metric := newMetric(component)
	m.m[component] = metric
	return metric
}

type metric struct {
	components    *expvar.Int
	frames        *expvar.Int
	bytes         *expvar.Int
	writeErrors   *expvar.Int
	samplerErrors *expvar.Int
	resyncs       *expvar.Int
	reconnects    *expvar.Int
	latency       *duration
	lateness      *duration
}

func newMetric(component string) metric {
	m := metric{
		components:    expvar.NewInt(key(component, ComponentCounter)),
		frames:        expvar.NewInt(key(component, FrameCounter)),
		bytes:         expvar.NewInt(key(component, ByteCounter)),
		writeErrors:   expvar.NewInt(key(component, WriteErrorCounter)),
		samplerErrors: expvar.NewInt(key(component, SamplerErrorCounter)),
		resyncs:       expvar.NewInt(key(component, ResyncCounter)),
		reconnects:    expvar.NewInt(key(component, ReconnectCounter)),
		latency:       &duration{},
		lateness:      &duration{},
	}
	expvar.Publish(key(component, LatencyCounter), m.latency)
	expvar.Publish(key(component, LatenessCounter), m.lateness)
	return m
}

func key(component, counter string) string {
	return fmt.Sprintf("%s.%s.%s", componentsLabel, component, counter)
}

// duration allows to format time.Duration metric values.
type duration struct {
	d int64
}

func (v *duration) String() string {
	return fmt.Sprintf("%q", time.Duration(atomic.LoadInt64(&v.d)).String())
}

func (v *duration) set(value time.Duration) {
	atomic.StoreInt64(&v.d, int64(value))
}
