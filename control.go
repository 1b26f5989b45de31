package radio

import "fmt"

// ControlType defines the value domain of a control.
type ControlType int

const (
	// Bipolar controls produce values in [-1, 1].
	Bipolar ControlType = iota
	// Unipolar controls produce values in [0, 1].
	Unipolar
	// Button controls produce either 0 or 1.
	Button
)

// String returns the configuration name of the control type.
func (t ControlType) String() string {
	switch t {
	case Bipolar:
		return "bipolar"
	case Unipolar:
		return "unipolar"
	case Button:
		return "button"
	}
	return "unknown"
}

// ParseControlType returns control type for its configuration name.
func ParseControlType(s string) (ControlType, error) {
	switch s {
	case "bipolar":
		return Bipolar, nil
	case "unipolar":
		return Unipolar, nil
	case "button":
		return Button, nil
	}
	return 0, fmt.Errorf("unknown control type %q", s)
}

// Control is a source of raw input for a value. Implementations convert raw
// readings into normalized floats.
type Control interface {
	Name() string
	Type() ControlType
	Normalize(raw float64) float64
}

type (
	// Axis is an analog control, e.g. a stick axis.
	Axis struct {
		ControlName string
		Kind        ControlType
		Min         float64
		Max         float64
		// Flat is the width of the centre deadzone in raw units.
		Flat float64
	}

	// PushButton is a digital control.
	PushButton struct {
		ControlName string
	}

	// Virtual is a control without hardware. Its raw value is already
	// normalized, e.g. computed by a mix.
	Virtual struct {
		ControlName string
		Kind        ControlType
	}
)

// Name of the axis.
func (a Axis) Name() string {
	return a.ControlName
}

// Type of the axis.
func (a Axis) Type() ControlType {
	return a.Kind
}

// Normalize maps raw reading to [-1, 1] for bipolar axis and to [0, 1]
// otherwise. Readings within the deadzone snap to centre. Axis without
// range always reads as its minimum.
func (a Axis) Normalize(raw float64) float64 {
	span := a.Max - a.Min
	if span <= 0 {
		if a.Kind == Bipolar {
			return -1
		}
		return 0
	}
	if raw < a.Min {
		raw = a.Min
	} else if raw > a.Max {
		raw = a.Max
	}
	n := (raw - a.Min) / span
	if d := n - 0.5; d < a.Flat/span && -d < a.Flat/span {
		n = 0.5
	}
	if a.Kind == Bipolar {
		return n*2 - 1
	}
	return n
}

// Name of the button.
func (b PushButton) Name() string {
	return b.ControlName
}

// Type is always Button.
func (PushButton) Type() ControlType {
	return Button
}

// Normalize returns 1 for any non-zero reading.
func (PushButton) Normalize(raw float64) float64 {
	if raw != 0 {
		return 1
	}
	return 0
}

// Name of the virtual control.
func (v Virtual) Name() string {
	return v.ControlName
}

// Type of the virtual control.
func (v Virtual) Type() ControlType {
	return v.Kind
}

// Normalize returns raw value as is.
func (Virtual) Normalize(raw float64) float64 {
	return raw
}
