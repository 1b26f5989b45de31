package radio

import (
	"fmt"
	"sync"
	"time"
)

// MaxRxSlot is the highest receiver slot number.
const MaxRxSlot = 15

// Model is a complete transmitter configuration: named values, mixes
// applied in declared order and the receiver slot the model is bound to.
//
// Model is safe for concurrent use. The input path calls SetRaw or Feed
// while the output path calls ReadValues or Channels.
type Model struct {
	name          string
	id            string
	rxSlot        int
	bindTimestamp time.Time
	values        []*Value
	byName        map[string]*Value
	mixes         []Mix
	outputs       []string

	m   sync.Mutex
	raw map[string]float64
}

// ModelOption configures a model.
type ModelOption func(*Model)

// WithID sets the model id.
func WithID(id string) ModelOption {
	return func(m *Model) {
		m.id = id
	}
}

// WithRxSlot sets the receiver slot.
func WithRxSlot(slot int) ModelOption {
	return func(m *Model) {
		m.rxSlot = slot
	}
}

// WithBindTimestamp sets the time the model was last bound.
func WithBindTimestamp(t time.Time) ModelOption {
	return func(m *Model) {
		m.bindTimestamp = t
	}
}

// WithMixes appends mixes. Mixes are applied in the order they are
// provided.
func WithMixes(mixes ...Mix) ModelOption {
	return func(m *Model) {
		m.mixes = append(m.mixes, mixes...)
	}
}

// WithOutputs maps value names to channel positions. First name is
// channel 1. Empty names leave the position unmapped.
func WithOutputs(names ...string) ModelOption {
	return func(m *Model) {
		m.outputs = append(m.outputs, names...)
	}
}

// NewModel creates and validates a model. If configuration is invalid,
// ValidationErrors is returned and model is not created.
func NewModel(name string, values []*Value, options ...ModelOption) (*Model, error) {
	m := &Model{
		name:   name,
		values: values,
		byName: make(map[string]*Value, len(values)),
		raw:    make(map[string]float64, len(values)),
	}
	for _, option := range options {
		option(m)
	}
	if err := m.validate().ret(); err != nil {
		return nil, err
	}
	return m, nil
}

// validate returns the list of configuration problems. It also fills
// the name index.
func (m *Model) validate() ValidationErrors {
	var errs ValidationErrors
	duplicates := make(map[string]struct{})
	for i, v := range m.values {
		if v == nil {
			errs = append(errs, fmt.Sprintf("value %d is not defined", i))
			continue
		}
		if _, ok := m.byName[v.name]; ok {
			if _, reported := duplicates[v.name]; !reported {
				errs = append(errs, fmt.Sprintf("duplicate value name: '%s'", v.name))
				duplicates[v.name] = struct{}{}
			}
			continue
		}
		m.byName[v.name] = v
	}

	for i, mix := range m.mixes {
		switch mix := mix.(type) {
		case DifferentialMix:
			if err := mix.Validate(); err != nil {
				errs = append(errs, fmt.Sprintf("differential mix %d: %v", i, err))
			}
			errs = m.checkRef(errs, mix.Left, "differential mix %d: references invalid channel '%s'", i)
			errs = m.checkRef(errs, mix.Right, "differential mix %d: references invalid channel '%s'", i)
		case AggregateMix:
			if err := mix.Validate(); err != nil {
				errs = append(errs, fmt.Sprintf("aggregate mix %d: %v", i, err))
			}
			for j, s := range mix.Sources {
				if s.Name == "" {
					continue
				}
				if _, ok := m.byName[s.Name]; !ok {
					errs = append(errs, fmt.Sprintf("aggregate mix %d, source %d: references invalid channel '%s'", i, j, s.Name))
				}
			}
			if mix.Target != "" {
				errs = m.checkRef(errs, mix.Target, "aggregate mix %d: target channel '%s' is invalid", i)
			}
		case nil:
			errs = append(errs, fmt.Sprintf("mix %d is not defined", i))
		default:
			errs = append(errs, fmt.Sprintf("mix %d: unsupported type %T", i, mix))
		}
	}

	for i, name := range m.outputs {
		if name == "" {
			continue
		}
		errs = m.checkRef(errs, name, "output ch%d: references invalid channel '%s'", i+1)
	}

	if m.rxSlot < 0 || m.rxSlot > MaxRxSlot {
		errs = append(errs, fmt.Sprintf("rx slot must be in range [0, %d], got %d", MaxRxSlot, m.rxSlot))
	}
	return errs
}

func (m *Model) checkRef(errs ValidationErrors, name, format string, i int) ValidationErrors {
	if _, ok := m.byName[name]; !ok {
		return append(errs, fmt.Sprintf(format, i, name))
	}
	return errs
}

// Name returns the model name.
func (m *Model) Name() string {
	return m.name
}

// ID returns the model id.
func (m *Model) ID() string {
	return m.id
}

// RxSlot returns the receiver slot.
func (m *Model) RxSlot() int {
	return m.rxSlot
}

// BindTimestamp returns the time the model was last bound.
func (m *Model) BindTimestamp() time.Time {
	m.m.Lock()
	defer m.m.Unlock()
	return m.bindTimestamp
}

// MarkBound records the bind time.
func (m *Model) MarkBound(t time.Time) {
	m.m.Lock()
	defer m.m.Unlock()
	m.bindTimestamp = t
}

// Values returns declared values.
func (m *Model) Values() []*Value {
	return m.values
}

// Value returns value by its name.
func (m *Model) Value(name string) (*Value, bool) {
	v, ok := m.byName[name]
	return v, ok
}

// Mixes returns mixes in the order they are applied.
func (m *Model) Mixes() []Mix {
	return m.mixes
}

// Outputs returns value names mapped to channel positions.
func (m *Model) Outputs() []string {
	return m.outputs
}

// SetRaw pre-processes the normalized input for the value and stores it.
// False is returned if model has no value with such name.
func (m *Model) SetRaw(name string, raw float64) bool {
	v, ok := m.byName[name]
	if !ok {
		return false
	}
	m.m.Lock()
	m.raw[name] = v.PreProcess(raw)
	m.m.Unlock()
	return true
}

// Feed normalizes the raw reading of the control and stores it for every
// value bound to that control. Number of updated values is returned.
func (m *Model) Feed(controlName string, reading float64) int {
	n := 0
	m.m.Lock()
	defer m.m.Unlock()
	for _, v := range m.values {
		if v.control.Name() != controlName {
			continue
		}
		m.raw[v.name] = v.PreProcess(v.control.Normalize(reading))
		n++
	}
	return n
}

// RawValues returns a copy of pre-processed values before mixing.
func (m *Model) RawValues() map[string]float64 {
	m.m.Lock()
	defer m.m.Unlock()
	raw := make(map[string]float64, len(m.raw))
	for k, v := range m.raw {
		raw[k] = v
	}
	return raw
}

// ReadValues applies mixes in declared order and post-processes every
// declared value. Values without input default to 0. Mixes read from the
// accumulated map, so later mixes see outputs of earlier ones.
func (m *Model) ReadValues() map[string]float64 {
	values := m.RawValues()
	for _, mix := range m.mixes {
		for k, v := range mix.Compute(values) {
			values[k] = v
		}
	}
	out := make(map[string]float64, len(m.values))
	for _, v := range m.values {
		out[v.name] = v.PostProcess(values[v.name])
	}
	return out
}

// Channels returns n positional channel values. Unmapped positions are 0.
// Negative n is treated as 0.
func (m *Model) Channels(n int) []float64 {
	if n < 0 {
		n = 0
	}
	values := m.ReadValues()
	channels := make([]float64, n)
	for i, name := range m.outputs {
		if i >= n {
			break
		}
		if name != "" {
			channels[i] = values[name]
		}
	}
	return channels
}

// Sampler returns a function that reads n positional channels. It can be
// used as a transmitter sampler.
func (m *Model) Sampler(n int) func() ([]float64, error) {
	return func() ([]float64, error) {
		return m.Channels(n), nil
	}
}
