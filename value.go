package radio

import (
	"errors"
	"fmt"
)

// ErrInvalidValue is returned when value configuration is not valid.
var ErrInvalidValue = errors.New("invalid value")

// Value is a named channel of the model. It reads one control and applies
// per-channel processing: latching before the mixes, reversing and
// endpoint clamping after them.
type Value struct {
	name     string
	control  Control
	reversed bool
	latching bool
	endpoint Endpoint

	// latch state is only mutated by PreProcess.
	latchState float64
	lastInput  float64
}

// ValueOption configures a value.
type ValueOption func(*Value)

// Reversed inverts the output of the value.
func Reversed() ValueOption {
	return func(v *Value) {
		v.reversed = true
	}
}

// Latching turns a momentary input into a toggled held output.
func Latching() ValueOption {
	return func(v *Value) {
		v.latching = true
	}
}

// WithEndpoint sets the output clamp range.
func WithEndpoint(e Endpoint) ValueOption {
	return func(v *Value) {
		v.endpoint = e
	}
}

// NewValue creates a new value bound to the control. Name must not be
// empty. Endpoint defaults to [-1, 1].
func NewValue(name string, control Control, options ...ValueOption) (*Value, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: name must be a non-empty string", ErrInvalidValue)
	}
	if control == nil {
		return nil, fmt.Errorf("%w: %s has no control", ErrInvalidValue, name)
	}
	v := &Value{
		name:     name,
		control:  control,
		endpoint: DefaultEndpoint,
	}
	for _, option := range options {
		option(v)
	}
	if err := v.endpoint.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrInvalidValue, name, err)
	}
	return v, nil
}

// Name returns the value name.
func (v *Value) Name() string {
	return v.name
}

// Control returns the control bound to the value.
func (v *Value) Control() Control {
	return v.control
}

// IsReversed reports if output is reversed.
func (v *Value) IsReversed() bool {
	return v.reversed
}

// IsLatching reports if input is latched.
func (v *Value) IsLatching() bool {
	return v.latching
}

// Endpoint returns the output clamp range.
func (v *Value) Endpoint() Endpoint {
	return v.endpoint
}

// PreProcess applies latching. Without latching raw is returned as is.
// With latching every rising edge, transition from zero to any non-zero
// input, toggles the latch between 0 and 1 and the latch is returned.
func (v *Value) PreProcess(raw float64) float64 {
	if !v.latching {
		return raw
	}
	if v.lastInput == 0 && raw != 0 {
		if v.latchState == 0 {
			v.latchState = 1
		} else {
			v.latchState = 0
		}
	}
	v.lastInput = raw
	return v.latchState
}

// PostProcess applies reversing and endpoint clamping. Bipolar values are
// negated, others are mirrored as 1 - value.
func (v *Value) PostProcess(value float64) float64 {
	if v.reversed {
		value = Reverse(value, v.control.Type())
	}
	return v.endpoint.Clamp(value)
}

// Reverse inverts the value according to the control type convention.
func Reverse(value float64, t ControlType) float64 {
	if t == Bipolar {
		return -value
	}
	return 1 - value
}
