// Package store provides index-addressed channel storage. Raw values are
// set by input path and derived values are read by transmitter.
package store

import (
	"fmt"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"pipelined.dev/radio"
	"pipelined.dev/radio/log"
)

// DefaultSize is the number of channels in the store if size is not
// provided.
const DefaultSize = 10

// Pair is a differential pair of 0-based channel indices.
type Pair struct {
	Left    int
	Right   int
	Inverse bool
}

// stage is a single transform of the pipeline. It must not modify the
// input slice.
type stage struct {
	name string
	fn   func([]float64) []float64
}

// Store keeps raw channel values and values derived from them with the
// pipeline: identity, reverse, differential, endpoint. Derived values are
// recomputed every time raw values or configuration change.
type Store struct {
	logger logrus.FieldLogger

	m         sync.RWMutex
	raw       []float64
	derived   []float64
	reverse   []bool
	types     []radio.ControlType
	endpoints []radio.Endpoint
	pairs     []Pair
	stages    []stage
}

// Option configures the store.
type Option func(*Store)

// WithLogger sets the logger used to report skipped configuration and
// stage failures.
func WithLogger(l logrus.FieldLogger) Option {
	return func(s *Store) {
		s.logger = l
	}
}

// New returns a store with size channels. Non-positive size results in
// DefaultSize channels. All channels are unipolar, not reversed and have
// default endpoints.
func New(size int, options ...Option) *Store {
	if size <= 0 {
		size = DefaultSize
	}
	s := &Store{
		raw:       make([]float64, size),
		derived:   make([]float64, size),
		reverse:   make([]bool, size),
		types:     make([]radio.ControlType, size),
		endpoints: make([]radio.Endpoint, size),
	}
	for i := range s.types {
		s.types[i] = radio.Unipolar
		s.endpoints[i] = radio.DefaultEndpoint
	}
	for _, option := range options {
		option(s)
	}
	if s.logger == nil {
		s.logger = log.GetLogger().WithField("component", "store")
	}
	s.build()
	return s
}

// Size returns the number of channels.
func (s *Store) Size() int {
	return len(s.raw)
}

// Set sets the raw value of 1-based channel.
func (s *Store) Set(ch int, v float64) bool {
	return s.SetMany(map[int]float64{ch: v})
}

// SetMany sets raw values of 1-based channels. Channels out of range are
// ignored. Derived values are recomputed only if any value has changed.
// Returns true if recomputation happened.
func (s *Store) SetMany(updates map[int]float64) bool {
	s.m.Lock()
	defer s.m.Unlock()
	changed := false
	for ch, v := range updates {
		if ch < 1 || ch > len(s.raw) {
			continue
		}
		if s.raw[ch-1] != v {
			s.raw[ch-1] = v
			changed = true
		}
	}
	if changed {
		s.recompute()
	}
	return changed
}

// Snapshot returns a copy of derived values.
func (s *Store) Snapshot() []float64 {
	s.m.RLock()
	defer s.m.RUnlock()
	return append([]float64(nil), s.derived...)
}

// SnapshotInto copies derived values into dst and returns the number of
// copied values. It doesn't allocate.
func (s *Store) SnapshotInto(dst []float64) int {
	s.m.RLock()
	defer s.m.RUnlock()
	return copy(dst, s.derived)
}

// RawSnapshot returns a copy of raw values.
func (s *Store) RawSnapshot() []float64 {
	s.m.RLock()
	defer s.m.RUnlock()
	return append([]float64(nil), s.raw...)
}

// Sampler returns a function that reads n derived channels. If store has
// less channels, the rest is padded with zeros. Negative n is treated as 0.
func (s *Store) Sampler(n int) func() ([]float64, error) {
	if n < 0 {
		n = 0
	}
	return func() ([]float64, error) {
		values := make([]float64, n)
		s.SnapshotInto(values)
		return values, nil
	}
}

// SetReverse sets reverse flag of 1-based channel and recomputes derived
// values.
func (s *Store) SetReverse(ch int, reversed bool) error {
	s.m.Lock()
	defer s.m.Unlock()
	if err := s.check(ch); err != nil {
		return err
	}
	s.reverse[ch-1] = reversed
	s.build()
	return nil
}

// SetChannelType sets the type of 1-based channel. Type defines how
// reversing is applied.
func (s *Store) SetChannelType(ch int, t radio.ControlType) error {
	s.m.Lock()
	defer s.m.Unlock()
	if err := s.check(ch); err != nil {
		return err
	}
	s.types[ch-1] = t
	s.build()
	return nil
}

// SetEndpoint sets the clamp range of 1-based channel.
func (s *Store) SetEndpoint(ch int, e radio.Endpoint) error {
	if err := e.Validate(); err != nil {
		return err
	}
	s.m.Lock()
	defer s.m.Unlock()
	if err := s.check(ch); err != nil {
		return err
	}
	s.endpoints[ch-1] = e
	s.build()
	return nil
}

// SetDifferentialPairs replaces differential pairs. Pairs with indices out
// of range or same indices are skipped with a warning.
func (s *Store) SetDifferentialPairs(pairs ...Pair) {
	s.m.Lock()
	defer s.m.Unlock()
	s.pairs = s.pairs[:0]
	for _, p := range pairs {
		if err := s.checkPair(p); err != nil {
			s.logger.WithError(err).Warn("skipping differential pair")
			continue
		}
		s.pairs = append(s.pairs, p)
	}
	s.build()
}

// Pairs returns a copy of configured differential pairs.
func (s *Store) Pairs() []Pair {
	s.m.RLock()
	defer s.m.RUnlock()
	return append([]Pair(nil), s.pairs...)
}

// ClearMixes drops all stages. Derived values become equal to raw ones
// until the store is reconfigured.
func (s *Store) ClearMixes() {
	s.m.Lock()
	defer s.m.Unlock()
	s.stages = nil
	s.recompute()
}

// Configure applies processors configuration. Invalid entries are skipped
// with a warning, valid ones are applied. Differential pairs are replaced
// only if configuration contains them.
func (s *Store) Configure(cfg Config) {
	s.m.Lock()
	defer s.m.Unlock()
	for _, err := range cfg.Skipped {
		s.logger.WithError(err).Warn("skipping malformed entry")
	}
	for _, key := range sortedKeys(cfg.Reverse) {
		ch, err := s.parse(key)
		if err != nil {
			s.logger.WithError(err).Warn("skipping reverse entry")
			continue
		}
		s.reverse[ch-1] = cfg.Reverse[key]
	}
	for _, key := range sortedKeys(cfg.Types) {
		ch, err := s.parse(key)
		if err != nil {
			s.logger.WithError(err).Warn("skipping channel type entry")
			continue
		}
		t := radio.Unipolar
		if name := cfg.Types[key]; name != "" {
			if t, err = radio.ParseControlType(name); err != nil || t == radio.Button {
				s.logger.WithField("channel", key).Warnf("skipping channel type entry: unsupported type '%s'", name)
				continue
			}
		}
		s.types[ch-1] = t
	}
	for _, key := range sortedKeys(cfg.Endpoints) {
		ch, err := s.parse(key)
		if err != nil {
			s.logger.WithError(err).Warn("skipping endpoint entry")
			continue
		}
		e := radio.Endpoint{Min: cfg.Endpoints[key].Min, Max: cfg.Endpoints[key].Max}
		if err := e.Validate(); err != nil {
			s.logger.WithField("channel", key).WithError(err).Warn("skipping endpoint entry")
			continue
		}
		s.endpoints[ch-1] = e
	}
	if cfg.Differential != nil {
		s.pairs = s.pairs[:0]
		for i, d := range cfg.Differential {
			p, err := s.parsePair(d)
			if err != nil {
				s.logger.WithField("mix", i).WithError(err).Warn("skipping differential mix")
				continue
			}
			s.pairs = append(s.pairs, p)
		}
	}
	s.build()
}

func (s *Store) parsePair(d DifferentialConfig) (Pair, error) {
	left, err := ParseChannel(d.Left)
	if err != nil {
		return Pair{}, fmt.Errorf("left: %w", err)
	}
	right, err := ParseChannel(d.Right)
	if err != nil {
		return Pair{}, fmt.Errorf("right: %w", err)
	}
	p := Pair{Left: left - 1, Right: right - 1, Inverse: d.Inverse}
	return p, s.checkPair(p)
}

func (s *Store) parse(key string) (int, error) {
	ch, err := ParseChannel(key)
	if err != nil {
		return 0, err
	}
	return ch, s.check(ch)
}

func (s *Store) check(ch int) error {
	if ch < 1 || ch > len(s.raw) {
		return fmt.Errorf("channel %d is out of range [1, %d]", ch, len(s.raw))
	}
	return nil
}

func (s *Store) checkPair(p Pair) error {
	if p.Left < 0 || p.Left >= len(s.raw) || p.Right < 0 || p.Right >= len(s.raw) {
		return fmt.Errorf("pair (%d, %d) is out of range [0, %d)", p.Left, p.Right, len(s.raw))
	}
	if p.Left == p.Right {
		return fmt.Errorf("pair (%d, %d) references the same channel", p.Left, p.Right)
	}
	return nil
}

// build rebuilds the pipeline and recomputes derived values. Must be
// called under write lock.
func (s *Store) build() {
	s.stages = []stage{
		{name: "identity", fn: identity},
		{name: "reverse", fn: s.reverseStage},
		{name: "differential", fn: s.differentialStage},
		{name: "endpoint", fn: s.endpointStage},
	}
	s.recompute()
}

// recompute runs the pipeline over raw values. A failing stage is skipped
// and its input is passed to the next stage.
func (s *Store) recompute() {
	cur := s.raw
	for _, st := range s.stages {
		out, err := run(st, cur)
		if err != nil {
			s.logger.WithField("stage", st.name).WithError(err).Warn("stage failed")
			continue
		}
		cur = out
	}
	copy(s.derived, cur)
}

func run(st stage, in []float64) (out []float64, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic: %v", r)
		}
	}()
	out = st.fn(in)
	if len(out) != len(in) {
		return nil, fmt.Errorf("stage returned %d values, expected %d", len(out), len(in))
	}
	return out, nil
}

func identity(values []float64) []float64 {
	return append([]float64(nil), values...)
}

func (s *Store) reverseStage(values []float64) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		if s.reverse[i] {
			v = radio.Reverse(v, s.types[i])
		}
		out[i] = v
	}
	return out
}

func (s *Store) differentialStage(values []float64) []float64 {
	out := append([]float64(nil), values...)
	for _, p := range s.pairs {
		out[p.Left], out[p.Right] = radio.Differential(out[p.Left], out[p.Right], p.Inverse)
	}
	return out
}

func (s *Store) endpointStage(values []float64) []float64 {
	out := make([]float64, len(values))
	for i, v := range values {
		out[i] = s.endpoints[i].Clamp(v)
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
