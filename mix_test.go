package radio_test

import (
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"

	"pipelined.dev/radio"
)

const delta = 1e-9

func TestDifferentialMix(t *testing.T) {
	tests := []struct {
		description string
		left, right float64
		inverse     bool
		expected    [2]float64
	}{
		{
			description: "turning input",
			left:        0.2,
			right:       0.8,
			expected:    [2]float64{1.0, 0.6},
		},
		{
			description: "turning input inverse",
			left:        0.2,
			right:       0.8,
			inverse:     true,
			expected:    [2]float64{0.6, 1.0},
		},
		{
			description: "neutral",
			expected:    [2]float64{0, 0},
		},
		{
			description: "full forward is scaled",
			left:        1,
			right:       1,
			expected:    [2]float64{1, 0},
		},
		{
			description: "opposite inputs are scaled",
			left:        -1,
			right:       1,
			expected:    [2]float64{0, 1},
		},
		{
			description: "magnitude over one on both outputs",
			left:        0.9,
			right:       0.6,
			expected:    [2]float64{1, -0.3 / 1.5},
		},
	}
	for _, test := range tests {
		mix := radio.DifferentialMix{Left: "l", Right: "r", Inverse: test.inverse}
		out := mix.Compute(map[string]float64{"l": test.left, "r": test.right})
		assert.Len(t, out, 2, test.description)
		assert.InDelta(t, test.expected[0], out["l"], delta, test.description)
		assert.InDelta(t, test.expected[1], out["r"], delta, test.description)
	}
}

func TestDifferentialMixBounds(t *testing.T) {
	for l := -1.0; l <= 1.0; l += 0.05 {
		for r := -1.0; r <= 1.0; r += 0.05 {
			for _, inverse := range []bool{false, true} {
				a, b := radio.Differential(l, r, inverse)
				assert.LessOrEqual(t, math.Max(math.Abs(a), math.Abs(b)), 1.0+delta, "l=%v r=%v", l, r)
			}
		}
	}
}

func TestDifferentialMixMissingValues(t *testing.T) {
	mix := radio.DifferentialMix{Left: "l", Right: "r"}
	out := mix.Compute(map[string]float64{"r": 0.5})
	assert.InDelta(t, 0.5, out["l"], delta)
	assert.InDelta(t, 0.5, out["r"], delta)
}

func TestNewDifferentialMix(t *testing.T) {
	_, err := radio.NewDifferentialMix("a", "a", false)
	assert.True(t, errors.Is(err, radio.ErrInvalidMix))
	_, err = radio.NewDifferentialMix("a", "", false)
	assert.True(t, errors.Is(err, radio.ErrInvalidMix))
	m, err := radio.NewDifferentialMix("a", "b", true)
	assert.NoError(t, err)
	assert.Equal(t, radio.DifferentialMix{Left: "a", Right: "b", Inverse: true}, m)
}

func TestAggregateMix(t *testing.T) {
	tests := []struct {
		description string
		mix         radio.AggregateMix
		values      map[string]float64
		target      string
		expected    float64
	}{
		{
			description: "weighted absolute sum",
			mix: radio.AggregateMix{
				Sources: []radio.AggregateSource{
					{Name: "ch1", Weight: 0.5},
					{Name: "ch2", Weight: 0.5},
				},
				Target: "sound",
			},
			values:   map[string]float64{"ch1": 0.6, "ch2": -0.4},
			target:   "sound",
			expected: 0.5,
		},
		{
			description: "only final sum is clamped",
			mix: radio.AggregateMix{
				Sources: []radio.AggregateSource{
					{Name: "a", Weight: 1},
					{Name: "b", Weight: 1},
					{Name: "c", Weight: 1},
				},
				Target: "sound",
			},
			values:   map[string]float64{"a": 0.7, "b": -0.8, "c": 0.7},
			target:   "sound",
			expected: 1.0,
		},
		{
			description: "negative terms do not cancel",
			mix: radio.AggregateMix{
				Sources: []radio.AggregateSource{
					{Name: "a", Weight: 0.5},
					{Name: "b", Weight: 0.5},
				},
				Target: "sound",
			},
			values:   map[string]float64{"a": 0.8, "b": -0.8},
			target:   "sound",
			expected: 0.8,
		},
		{
			description: "first source is implicit target",
			mix: radio.AggregateMix{
				Sources: []radio.AggregateSource{
					{Name: "a", Weight: 0.25},
					{Name: "b", Weight: 1},
				},
			},
			values:   map[string]float64{"a": 1, "b": 0.5},
			target:   "a",
			expected: 0.75,
		},
		{
			description: "missing source is zero",
			mix: radio.AggregateMix{
				Sources: []radio.AggregateSource{{Name: "a", Weight: 1}},
				Target:  "sound",
			},
			values:   map[string]float64{},
			target:   "sound",
			expected: 0,
		},
	}
	for _, test := range tests {
		out := test.mix.Compute(test.values)
		assert.Len(t, out, 1, test.description)
		v, ok := out[test.target]
		assert.True(t, ok, test.description)
		assert.InDelta(t, test.expected, v, delta, test.description)
		assert.LessOrEqual(t, v, 1.0, test.description)
	}
}

func TestNewAggregateMix(t *testing.T) {
	_, err := radio.NewAggregateMix("sound")
	assert.True(t, errors.Is(err, radio.ErrInvalidMix))
	_, err = radio.NewAggregateMix("sound", radio.AggregateSource{Name: "a", Weight: 1.5})
	assert.True(t, errors.Is(err, radio.ErrInvalidMix))
	_, err = radio.NewAggregateMix("sound", radio.AggregateSource{Name: "a", Weight: -0.1})
	assert.True(t, errors.Is(err, radio.ErrInvalidMix))
	m, err := radio.NewAggregateMix("", radio.AggregateSource{Name: "a", Weight: 1})
	assert.NoError(t, err)
	assert.Equal(t, "a", m.TargetName())
}
