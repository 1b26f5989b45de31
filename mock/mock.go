// Package mock provides mocks for transmitter collaborators and allows to
// execute integration tests without hardware.
package mock

import (
	"sync"

	"pipelined.dev/radio/serial"
)

// Port mocks a serial.Port interface. It's safe to inspect while
// transmitter is running.
type Port struct {
	counter

	m      sync.Mutex
	open   bool
	frames [][]byte
	limit  int

	errorOnOpen  error
	errorOnWrite error
	errorOnClose error
	failures     int
	failure      error
}

type counter struct {
	opens  int
	closes int
	writes int
	bytes  int
}

// NewPort returns mocked port that keeps up to limit latest frames. Zero
// limit keeps all frames.
func NewPort(limit int) *Port {
	return &Port{limit: limit}
}

// Open implements serial.Port.
func (p *Port) Open() error {
	p.m.Lock()
	defer p.m.Unlock()
	p.opens++
	if p.errorOnOpen != nil {
		return p.errorOnOpen
	}
	p.open = true
	return nil
}

// Close implements serial.Port.
func (p *Port) Close() error {
	p.m.Lock()
	defer p.m.Unlock()
	p.closes++
	p.open = false
	return p.errorOnClose
}

// Write implements serial.Port. Frame is copied.
func (p *Port) Write(b []byte) (int, error) {
	p.m.Lock()
	defer p.m.Unlock()
	if p.failures > 0 {
		p.failures--
		return 0, p.failure
	}
	if p.errorOnWrite != nil {
		return 0, p.errorOnWrite
	}
	if !p.open {
		return 0, serial.ErrNotOpen
	}
	p.writes++
	p.bytes += len(b)
	p.frames = append(p.frames, append([]byte(nil), b...))
	if p.limit > 0 && len(p.frames) > p.limit {
		p.frames = p.frames[len(p.frames)-p.limit:]
	}
	return len(b), nil
}

// ErrorOnOpen makes all subsequent opens fail. Nil error resets it.
func (p *Port) ErrorOnOpen(err error) {
	p.m.Lock()
	defer p.m.Unlock()
	p.errorOnOpen = err
}

// ErrorOnWrite makes all subsequent writes fail. Nil error resets it.
func (p *Port) ErrorOnWrite(err error) {
	p.m.Lock()
	defer p.m.Unlock()
	p.errorOnWrite = err
}

// ErrorOnClose makes all subsequent closes fail.
func (p *Port) ErrorOnClose(err error) {
	p.m.Lock()
	defer p.m.Unlock()
	p.errorOnClose = err
}

// FailWrites makes next n writes fail with err.
func (p *Port) FailWrites(n int, err error) {
	p.m.Lock()
	defer p.m.Unlock()
	p.failures = n
	p.failure = err
}

// IsOpen reports if port is open.
func (p *Port) IsOpen() bool {
	p.m.Lock()
	defer p.m.Unlock()
	return p.open
}

// Frames returns a copy of written frames.
func (p *Port) Frames() [][]byte {
	p.m.Lock()
	defer p.m.Unlock()
	return append([][]byte(nil), p.frames...)
}

// Last returns the last written frame.
func (p *Port) Last() []byte {
	p.m.Lock()
	defer p.m.Unlock()
	if len(p.frames) == 0 {
		return nil
	}
	return p.frames[len(p.frames)-1]
}

// Writes returns the number of successful writes.
func (p *Port) Writes() int {
	p.m.Lock()
	defer p.m.Unlock()
	return p.writes
}

// Bytes returns the number of successfully written bytes.
func (p *Port) Bytes() int {
	p.m.Lock()
	defer p.m.Unlock()
	return p.bytes
}

// Opens returns the number of open calls.
func (p *Port) Opens() int {
	p.m.Lock()
	defer p.m.Unlock()
	return p.opens
}

// Closes returns the number of close calls.
func (p *Port) Closes() int {
	p.m.Lock()
	defer p.m.Unlock()
	return p.closes
}

// Sampler mocks a transmitter sampler. It returns its values on every call.
type Sampler struct {
	m           sync.Mutex
	values      []float64
	calls       int
	errorOnCall error
	panicOnCall interface{}
}

// NewSampler returns sampler with provided values.
func NewSampler(values ...float64) *Sampler {
	return &Sampler{values: values}
}

// Sample returns a copy of values.
func (s *Sampler) Sample() ([]float64, error) {
	s.m.Lock()
	defer s.m.Unlock()
	s.calls++
	if s.panicOnCall != nil {
		panic(s.panicOnCall)
	}
	if s.errorOnCall != nil {
		return nil, s.errorOnCall
	}
	return append([]float64(nil), s.values...), nil
}

// SetValues replaces values.
func (s *Sampler) SetValues(values ...float64) {
	s.m.Lock()
	defer s.m.Unlock()
	s.values = values
}

// ErrorOnCall makes all subsequent calls fail. Nil error resets it.
func (s *Sampler) ErrorOnCall(err error) {
	s.m.Lock()
	defer s.m.Unlock()
	s.errorOnCall = err
}

// PanicOnCall makes all subsequent calls panic with v. Nil resets it.
func (s *Sampler) PanicOnCall(v interface{}) {
	s.m.Lock()
	defer s.m.Unlock()
	s.panicOnCall = v
}

// Calls returns the number of calls.
func (s *Sampler) Calls() int {
	s.m.Lock()
	defer s.m.Unlock()
	return s.calls
}
