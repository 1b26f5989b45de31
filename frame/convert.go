package frame

import (
	"fmt"
	"math"
)

// Convention defines how sampled floats are mapped to channel values.
type Convention int

const (
	// Normalized values are in [-1, 1].
	Normalized Convention = iota
	// Scaled values are pulse widths in [900, 2100] microseconds or raw
	// channel values.
	Scaled
)

func (c Convention) String() string {
	switch c {
	case Normalized:
		return "normalized"
	case Scaled:
		return "scaled"
	}
	return fmt.Sprintf("Convention(%d)", int(c))
}

// ParseConvention returns convention by its name.
func ParseConvention(s string) (Convention, error) {
	switch s {
	case "normalized":
		return Normalized, nil
	case "scaled":
		return Scaled, nil
	}
	return 0, fmt.Errorf("unknown convention %q", s)
}

// Convert maps v to channel value.
func (c Convention) Convert(v float64) uint16 {
	if c == Scaled {
		return FromScaled(v)
	}
	return FromNormalized(v)
}

// ConvertAll maps values to dst and returns it. If dst is shorter than
// values, extra values are ignored.
func (c Convention) ConvertAll(dst []uint16, values []float64) []uint16 {
	for i := range dst {
		if i >= len(values) {
			break
		}
		dst[i] = c.Convert(values[i])
	}
	return dst
}

// FromNormalized maps [-1, 1] to [0, 2047]. NaN maps to Neutral.
func FromNormalized(v float64) uint16 {
	if math.IsNaN(v) {
		return Neutral
	}
	return clamp(math.Round((v*0.5 + 0.5) * MaxValue))
}

// FromScaled maps pulse width in [900, 2100] to channel value. Values
// outside of that range are treated as channel values.
func FromScaled(v float64) uint16 {
	if math.IsNaN(v) {
		return Neutral
	}
	if v >= 900 && v <= 2100 {
		v = (v - 1000) * MaxValue / 1000
	}
	return clamp(math.Trunc(v))
}

// ToNormalized maps channel value back to [-1, 1].
func ToNormalized(v uint16) float64 {
	if v > MaxValue {
		v = MaxValue
	}
	return float64(v)/MaxValue*2 - 1
}

func clamp(v float64) uint16 {
	if v <= 0 {
		return 0
	}
	if v >= MaxValue {
		return MaxValue
	}
	return uint16(v)
}
