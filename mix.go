package radio

import (
	"errors"
	"fmt"
	"math"
)

// ErrInvalidMix is returned when mix configuration is not valid.
var ErrInvalidMix = errors.New("invalid mix")

// Mix is a pure function over named values. It returns only the values it
// targets.
type Mix interface {
	Compute(values map[string]float64) map[string]float64
}

type (
	// DifferentialMix combines two channels into sum and difference, used
	// for tank steering.
	DifferentialMix struct {
		Left    string
		Right   string
		Inverse bool
	}

	// AggregateMix sums weighted absolute values of sources into a single
	// target, e.g. an activity-driven sound channel.
	AggregateMix struct {
		Sources []AggregateSource
		// Target is optional, first source is the target if empty.
		Target string
	}

	// AggregateSource is a single weighted input of aggregate mix.
	AggregateSource struct {
		Name   string
		Weight float64
	}
)

// NewDifferentialMix returns validated differential mix.
func NewDifferentialMix(left, right string, inverse bool) (DifferentialMix, error) {
	m := DifferentialMix{Left: left, Right: right, Inverse: inverse}
	if err := m.Validate(); err != nil {
		return DifferentialMix{}, err
	}
	return m, nil
}

// Validate checks that both channels are set and distinct.
func (m DifferentialMix) Validate() error {
	if m.Left == "" || m.Right == "" {
		return fmt.Errorf("%w: differential mix requires left and right channels", ErrInvalidMix)
	}
	if m.Left == m.Right {
		return fmt.Errorf("%w: left and right channels cannot be the same: %s", ErrInvalidMix, m.Left)
	}
	return nil
}

// Compute returns new left and right values.
func (m DifferentialMix) Compute(values map[string]float64) map[string]float64 {
	l, r := Differential(values[m.Left], values[m.Right], m.Inverse)
	return map[string]float64{
		m.Left:  l,
		m.Right: r,
	}
}

// Differential mixes left and right into sum and difference. Both outputs
// are divided by the largest magnitude when it exceeds 1, so the result
// stays in [-1, 1] without hard clipping. Inverse swaps the outputs.
func Differential(l, r float64, inverse bool) (float64, float64) {
	left := l + r
	right := r - l
	scale := math.Max(1, math.Max(math.Abs(left), math.Abs(right)))
	left, right = left/scale, right/scale
	if inverse {
		return right, left
	}
	return left, right
}

// NewAggregateMix returns validated aggregate mix.
func NewAggregateMix(target string, sources ...AggregateSource) (AggregateMix, error) {
	m := AggregateMix{Sources: sources, Target: target}
	if err := m.Validate(); err != nil {
		return AggregateMix{}, err
	}
	return m, nil
}

// Validate checks that at least one source is present and all weights are
// within [0, 1].
func (m AggregateMix) Validate() error {
	if len(m.Sources) == 0 {
		return fmt.Errorf("%w: aggregate mix must have at least one source", ErrInvalidMix)
	}
	for _, s := range m.Sources {
		if s.Name == "" {
			return fmt.Errorf("%w: aggregate source without channel", ErrInvalidMix)
		}
		if s.Weight < 0 || s.Weight > 1 {
			return fmt.Errorf("%w: weight of %s must be in range [0, 1], got %v", ErrInvalidMix, s.Name, s.Weight)
		}
	}
	return nil
}

// TargetName returns the explicit target or the first source name.
func (m AggregateMix) TargetName() string {
	if m.Target != "" || len(m.Sources) == 0 {
		return m.Target
	}
	return m.Sources[0].Name
}

// Compute returns the clamped weighted sum for the target. Only the final
// sum is clamped to [0, 1].
func (m AggregateMix) Compute(values map[string]float64) map[string]float64 {
	var sum float64
	for _, s := range m.Sources {
		sum += math.Abs(values[s.Name]) * s.Weight
	}
	if sum > 1 {
		sum = 1
	} else if sum < 0 {
		sum = 0
	}
	return map[string]float64{
		m.TargetName(): sum,
	}
}
