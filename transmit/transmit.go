// Package transmit sends channel frames to the multiprotocol module at a
// fixed rate.
package transmit

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/xid"
	"github.com/sirupsen/logrus"

	"pipelined.dev/radio/frame"
	"pipelined.dev/radio/internal/schedule"
	"pipelined.dev/radio/log"
	"pipelined.dev/radio/metric"
	"pipelined.dev/radio/serial"
)

const (
	// DefaultRate is the frame rate in Hz.
	DefaultRate = 45.0
	// DefaultChannels is the number of channels in the frame.
	DefaultChannels = 10
	// DefaultStopTimeout limits how long Stop waits for the loop.
	DefaultStopTimeout = time.Second
	// DefaultErrorInterval limits how often repeating errors are logged.
	DefaultErrorInterval = 2 * time.Second
	// DefaultLogEvery is the number of frames between verbose log entries.
	DefaultLogEvery = 45
)

var (
	// ErrNoPort is returned when transmitter is created without port.
	ErrNoPort = errors.New("port is not provided")
	// ErrStopping is returned when transmitter is started while the loop
	// of the previous run is still exiting.
	ErrStopping = errors.New("send loop is still stopping")
)

// Sampler returns current channel values.
type Sampler func() ([]float64, error)

// Stats holds transmission counters.
type Stats struct {
	Frames        uint64
	Bytes         uint64
	WriteErrors   uint64
	SamplerErrors uint64
	Resyncs       uint64
	Reconnects    uint64
}

// Transmitter periodically samples channel values, encodes them into a
// frame and writes it to the port. Transmitter is the only writer of the
// port.
type Transmitter struct {
	id            string
	port          serial.Port
	clock         schedule.Clock
	logger        logrus.FieldLogger
	name          string
	interval      time.Duration
	stopTimeout   time.Duration
	errorInterval time.Duration
	verbose       bool
	logEvery      int
	meter         *metric.Meter
	samplerLimit  *log.Limiter
	writeLimit    *log.Limiter

	m          sync.Mutex
	header     frame.Header
	bind       bool
	bindUntil  time.Time
	channels   []uint16
	sampler    Sampler
	convention frame.Convention
	modelID    string
	buf        []byte
	stats      Stats

	lifecycle sync.Mutex
	done      chan struct{}
	stopped   chan struct{}
}

// Option configures the transmitter.
type Option func(*Transmitter)

// WithSampler sets the sampler and the convention of its values.
func WithSampler(s Sampler, c frame.Convention) Option {
	return func(t *Transmitter) {
		t.sampler = s
		t.convention = c
	}
}

// WithRate sets frame rate in Hz. Non-positive rate is ignored.
func WithRate(hz float64) Option {
	return func(t *Transmitter) {
		if hz > 0 {
			t.interval = time.Duration(float64(time.Second) / hz)
		}
	}
}

// WithProtocol sets protocol id and sub protocol.
func WithProtocol(id, subProtocol byte) Option {
	return func(t *Transmitter) {
		t.header.Protocol = id
		t.header.SubProtocol = subProtocol & 0x1F
	}
}

// WithRxSlot sets the receiver slot. Value is clamped to [0, 15].
func WithRxSlot(slot int) Option {
	return func(t *Transmitter) {
		t.header.RxSlot = clampRxSlot(slot)
	}
}

// WithOption sets the protocol option. Value is clamped to [-32, 31].
func WithOption(option int) Option {
	return func(t *Transmitter) {
		t.header.Option = clampOption(option)
	}
}

// WithChannels sets the number of channels in the frame. Value is clamped
// to [1, 16].
func WithChannels(n int) Option {
	return func(t *Transmitter) {
		if n < 1 {
			n = 1
		}
		if n > frame.MaxChannels {
			n = frame.MaxChannels
		}
		t.channels = make([]uint16, n)
	}
}

// WithLogger sets the logger.
func WithLogger(l logrus.FieldLogger) Option {
	return func(t *Transmitter) {
		t.logger = l
	}
}

// WithClock sets the clock of the send loop.
func WithClock(c schedule.Clock) Option {
	return func(t *Transmitter) {
		t.clock = c
	}
}

// WithFrameLogging enables logging of every n-th sent frame.
func WithFrameLogging(every int) Option {
	return func(t *Transmitter) {
		t.verbose = true
		if every > 0 {
			t.logEvery = every
		}
	}
}

// WithStopTimeout sets how long Stop waits for the loop to exit.
func WithStopTimeout(d time.Duration) Option {
	return func(t *Transmitter) {
		t.stopTimeout = d
	}
}

// WithErrorInterval sets how often repeating sampler and write errors
// are logged.
func WithErrorInterval(d time.Duration) Option {
	return func(t *Transmitter) {
		t.errorInterval = d
	}
}

// WithName sets the name used for metrics.
func WithName(name string) Option {
	return func(t *Transmitter) {
		t.name = name
	}
}

// WithModelID sets the id of the model that is transmitted.
func WithModelID(id string) Option {
	return func(t *Transmitter) {
		t.modelID = id
	}
}

// New returns a stopped transmitter. By default it sends AFHDS2A frames
// with DefaultChannels neutral channels at DefaultRate.
func New(port serial.Port, options ...Option) (*Transmitter, error) {
	if port == nil {
		return nil, ErrNoPort
	}
	t := &Transmitter{
		id:            xid.New().String(),
		port:          port,
		name:          "transmitter",
		interval:      time.Second / DefaultRate,
		stopTimeout:   DefaultStopTimeout,
		errorInterval: DefaultErrorInterval,
		logEvery:      DefaultLogEvery,
		header: frame.Header{
			Protocol:    frame.ProtocolAFHDS2A,
			SubProtocol: frame.PWMIBus,
		},
		channels: make([]uint16, DefaultChannels),
	}
	for _, option := range options {
		option(t)
	}
	for i := range t.channels {
		t.channels[i] = frame.Neutral
	}
	if t.clock == nil {
		t.clock = schedule.SystemClock{}
	}
	if t.logger == nil {
		t.logger = log.GetLogger()
	}
	t.logger = t.logger.WithFields(logrus.Fields{
		"component": t.name,
		"id":        t.id,
	})
	t.meter = metric.NewMeter(t.name)
	t.samplerLimit = log.NewLimiter(t.errorInterval)
	t.writeLimit = log.NewLimiter(t.errorInterval)
	t.buf = make([]byte, 0, frame.Len(frame.MaxChannels))
	return t, nil
}

// ID returns the transmitter id.
func (t *Transmitter) ID() string {
	return t.id
}

// Interval returns the time between two frames.
func (t *Transmitter) Interval() time.Duration {
	return t.interval
}

// Open opens the port.
func (t *Transmitter) Open() error {
	t.m.Lock()
	defer t.m.Unlock()
	if err := t.port.Open(); err != nil {
		return fmt.Errorf("open port: %w", err)
	}
	return nil
}

// Start starts the send loop. Calling Start on running transmitter is
// no-op. ErrStopping is returned if the loop of the previous run didn't
// exit yet.
func (t *Transmitter) Start() error {
	t.lifecycle.Lock()
	defer t.lifecycle.Unlock()
	if t.done != nil {
		return nil
	}
	if t.stale() {
		return ErrStopping
	}
	t.done = make(chan struct{})
	t.stopped = make(chan struct{})
	t.logger.WithField("interval", t.interval).Debug("starting")
	go t.run(t.done, t.stopped)
	return nil
}

// Stop signals the send loop to exit and waits for it at most the stop
// timeout. False is returned if the loop didn't exit in time, the next
// call waits for it again. Calling Stop on stopped transmitter is no-op.
func (t *Transmitter) Stop() bool {
	t.lifecycle.Lock()
	defer t.lifecycle.Unlock()
	if t.done != nil {
		close(t.done)
		t.done = nil
	}
	if t.stopped == nil {
		return true
	}

	timer := time.NewTimer(t.stopTimeout)
	defer timer.Stop()
	select {
	case <-t.stopped:
		t.stopped = nil
		t.logger.Debug("stopped")
		return true
	case <-timer.C:
		t.logger.Warn("send loop didn't stop in time")
		return false
	}
}

// Running reports if the send loop is running. A loop that was asked to
// stop but didn't exit yet is still running.
func (t *Transmitter) Running() bool {
	t.lifecycle.Lock()
	defer t.lifecycle.Unlock()
	return t.done != nil || t.stale()
}

// stale reports if the loop of a stopped run is still alive. Must be
// called under lifecycle lock.
func (t *Transmitter) stale() bool {
	if t.stopped == nil {
		return false
	}
	select {
	case <-t.stopped:
		t.stopped = nil
		return false
	default:
		return true
	}
}

// Close stops the transmitter and closes the port.
func (t *Transmitter) Close() error {
	t.Stop()
	t.m.Lock()
	defer t.m.Unlock()
	if err := t.port.Close(); err != nil {
		return fmt.Errorf("close port: %w", err)
	}
	return nil
}

func (t *Transmitter) run(done, stopped chan struct{}) {
	defer close(stopped)
	ticker := schedule.New(t.clock, t.interval)
	t.m.Lock()
	t.meter.Reset()
	t.m.Unlock()
	for ticker.Wait(done) {
		now := t.clock.Now()
		lateness := now.Sub(ticker.Next())
		t.sample()

		t.m.Lock()
		t.send(now, lateness)
		t.m.Unlock()

		if ticker.Advance() {
			t.m.Lock()
			t.stats.Resyncs++
			t.meter.Resync()
			t.m.Unlock()
			t.logger.WithField("next", ticker.Next()).Debug("schedule resynced")
		}
	}
}

// sample calls sampler and updates channels. Sampler is called without
// holding the lock.
func (t *Transmitter) sample() error {
	t.m.Lock()
	sampler, convention := t.sampler, t.convention
	t.m.Unlock()
	if sampler == nil {
		return nil
	}

	values, err := safeSample(sampler)
	t.m.Lock()
	defer t.m.Unlock()
	if err != nil {
		t.stats.SamplerErrors++
		t.meter.SamplerError()
		if ok, suppressed := t.samplerLimit.Allow(t.clock.Now()); ok {
			t.logger.WithError(err).WithField("suppressed", suppressed).Error("sampler failed")
		}
		return err
	}
	for i := range t.channels {
		if i >= len(values) {
			break
		}
		t.channels[i] = convention.Convert(values[i])
	}
	return nil
}

func safeSample(s Sampler) (values []float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("sampler panic: %v", r)
		}
	}()
	return s()
}

// send builds a fresh frame and writes it. Must be called under lock.
func (t *Transmitter) send(now time.Time, lateness time.Duration) ([]byte, error) {
	h := t.header
	h.Bind = t.bindActive(now)
	var err error
	if t.buf, err = frame.Append(t.buf[:0], h, t.channels); err != nil {
		return nil, err
	}
	if err := t.write(now); err != nil {
		return t.buf, err
	}
	t.stats.Frames++
	t.stats.Bytes += uint64(len(t.buf))
	t.meter.Frame(len(t.buf), lateness)
	if t.verbose && t.stats.Frames%uint64(t.logEvery) == 0 {
		t.logger.WithFields(logrus.Fields{
			"frames": t.stats.Frames,
			"bind":   h.Bind,
			"frame":  fmt.Sprintf("% x", t.buf),
		}).Info("frame sent")
	}
	return t.buf, nil
}

// write writes the buffer. On failure the port is closed and reopened.
// If reopen fails, next write retries the same way.
func (t *Transmitter) write(now time.Time) error {
	_, err := t.port.Write(t.buf)
	if err == nil {
		return nil
	}
	t.stats.WriteErrors++
	t.meter.WriteError()
	closeErr := t.port.Close()
	t.stats.Reconnects++
	t.meter.Reconnect()
	openErr := t.port.Open()
	if ok, suppressed := t.writeLimit.Allow(now); ok {
		entry := t.logger.WithError(err).WithField("suppressed", suppressed)
		if closeErr != nil {
			entry = entry.WithField("close", closeErr.Error())
		}
		if openErr != nil {
			entry.WithField("reopen", openErr.Error()).Error("write failed, port is not reopened")
		} else {
			entry.Warn("write failed, port is reopened")
		}
	}
	return err
}

// SendFrame samples channels, builds the frame and writes it immediately.
// It can be used with stopped transmitter. Written frame is returned.
func (t *Transmitter) SendFrame() ([]byte, error) {
	t.sample()
	t.m.Lock()
	defer t.m.Unlock()
	now := t.clock.Now()
	b, err := t.send(now, 0)
	return append([]byte(nil), b...), err
}

// Frame returns the frame for current channels without sending it.
func (t *Transmitter) Frame() []byte {
	t.m.Lock()
	defer t.m.Unlock()
	h := t.header
	h.Bind = t.bindActive(t.clock.Now())
	b, _ := frame.Encode(h, t.channels)
	return b
}

// SampleOnce calls the sampler and updates channels.
func (t *Transmitter) SampleOnce() error {
	return t.sample()
}

// SetSampler replaces the sampler.
func (t *Transmitter) SetSampler(s Sampler, c frame.Convention) {
	t.m.Lock()
	defer t.m.Unlock()
	t.sampler = s
	t.convention = c
}

// ClearSampler removes the sampler. Channels keep their last values.
func (t *Transmitter) ClearSampler() {
	t.SetSampler(nil, frame.Normalized)
}

// StartBind enables the bind flag for duration d. The flag is checked on
// every frame and is cleared once the window expires.
func (t *Transmitter) StartBind(d time.Duration) {
	t.m.Lock()
	defer t.m.Unlock()
	t.bindUntil = t.clock.Now().Add(d)
	t.logger.WithField("duration", d).Info("bind started")
}

// SetBind sets the static bind flag. It's active until reset.
func (t *Transmitter) SetBind(on bool) {
	t.m.Lock()
	defer t.m.Unlock()
	t.bind = on
	if !on {
		t.bindUntil = time.Time{}
	}
}

// BindActive reports if frames are sent with the bind flag.
func (t *Transmitter) BindActive() bool {
	t.m.Lock()
	defer t.m.Unlock()
	return t.bindActive(t.clock.Now())
}

func (t *Transmitter) bindActive(now time.Time) bool {
	return t.bind || now.Before(t.bindUntil)
}

// Header returns current frame header.
func (t *Transmitter) Header() frame.Header {
	t.m.Lock()
	defer t.m.Unlock()
	h := t.header
	h.Bind = t.bindActive(t.clock.Now())
	return h
}

// SetRxSlot sets the receiver slot. Value is clamped to [0, 15].
func (t *Transmitter) SetRxSlot(slot int) {
	t.m.Lock()
	defer t.m.Unlock()
	t.header.RxSlot = clampRxSlot(slot)
}

// SetOption sets the protocol option. Value is clamped to [-32, 31].
func (t *Transmitter) SetOption(option int) {
	t.m.Lock()
	defer t.m.Unlock()
	t.header.Option = clampOption(option)
}

// SetSubProtocol sets the sub protocol. Only lower 5 bits are used.
func (t *Transmitter) SetSubProtocol(sub byte) {
	t.m.Lock()
	defer t.m.Unlock()
	t.header.SubProtocol = sub & 0x1F
}

// SetRangeCheck sets the range check flag.
func (t *Transmitter) SetRangeCheck(on bool) {
	t.m.Lock()
	defer t.m.Unlock()
	t.header.RangeCheck = on
}

// SetAutobind sets the autobind flag.
func (t *Transmitter) SetAutobind(on bool) {
	t.m.Lock()
	defer t.m.Unlock()
	t.header.Autobind = on
}

// SetChannel sets 0-based channel to 11-bit value. Value is clamped to
// [0, 2047]. False is returned if channel is out of range.
func (t *Transmitter) SetChannel(i, value int) bool {
	t.m.Lock()
	defer t.m.Unlock()
	if i < 0 || i >= len(t.channels) {
		return false
	}
	t.channels[i] = clampValue(value)
	return true
}

// SetChannels sets channels starting from the first one. Extra values are
// ignored.
func (t *Transmitter) SetChannels(values ...int) {
	t.m.Lock()
	defer t.m.Unlock()
	for i, v := range values {
		if i >= len(t.channels) {
			break
		}
		t.channels[i] = clampValue(v)
	}
}

// Channels returns a copy of current channel values.
func (t *Transmitter) Channels() []uint16 {
	t.m.Lock()
	defer t.m.Unlock()
	return append([]uint16(nil), t.channels...)
}

// SetModelID sets the id of transmitted model. It's not a part of the
// frame.
func (t *Transmitter) SetModelID(id string) {
	t.m.Lock()
	defer t.m.Unlock()
	t.modelID = id
}

// ModelID returns the id of transmitted model.
func (t *Transmitter) ModelID() string {
	t.m.Lock()
	defer t.m.Unlock()
	return t.modelID
}

// Stats returns a copy of counters.
func (t *Transmitter) Stats() Stats {
	t.m.Lock()
	defer t.m.Unlock()
	return t.stats
}

func clampRxSlot(slot int) byte {
	if slot < 0 {
		return 0
	}
	if slot > frame.MaxRxSlot {
		return frame.MaxRxSlot
	}
	return byte(slot)
}

func clampOption(option int) int8 {
	if option < frame.MinOption {
		return frame.MinOption
	}
	if option > frame.MaxOption {
		return frame.MaxOption
	}
	return int8(option)
}

func clampValue(v int) uint16 {
	if v < 0 {
		return 0
	}
	if v > frame.MaxValue {
		return frame.MaxValue
	}
	return uint16(v)
}
