package radio_test

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pipelined.dev/radio"
)

func newValue(t *testing.T, name string, control radio.Control, options ...radio.ValueOption) *radio.Value {
	t.Helper()
	v, err := radio.NewValue(name, control, options...)
	require.NoError(t, err)
	return v
}

func bipolar(name string) radio.Control {
	return radio.Virtual{ControlName: name, Kind: radio.Bipolar}
}

func TestModelValidation(t *testing.T) {
	a := newValue(t, "a", bipolar("a"))
	b := newValue(t, "b", bipolar("b"))
	dup := newValue(t, "a", bipolar("x"))
	tests := []struct {
		description string
		values      []*radio.Value
		options     []radio.ModelOption
		errors      []string
	}{
		{
			description: "valid",
			values:      []*radio.Value{a, b},
			options: []radio.ModelOption{
				radio.WithRxSlot(15),
				radio.WithMixes(radio.DifferentialMix{Left: "a", Right: "b"}),
				radio.WithOutputs("a", "", "b"),
			},
		},
		{
			description: "duplicate names",
			values:      []*radio.Value{a, b, dup, dup},
			errors:      []string{"duplicate value name: 'a'"},
		},
		{
			description: "dangling differential",
			values:      []*radio.Value{a, b},
			options: []radio.ModelOption{
				radio.WithMixes(radio.DifferentialMix{Left: "a", Right: "c"}),
			},
			errors: []string{"differential mix 0: references invalid channel 'c'"},
		},
		{
			description: "dangling aggregate",
			values:      []*radio.Value{a, b},
			options: []radio.ModelOption{
				radio.WithMixes(
					radio.DifferentialMix{Left: "a", Right: "b"},
					radio.AggregateMix{
						Sources: []radio.AggregateSource{{Name: "a", Weight: 1}, {Name: "z", Weight: 1}},
						Target:  "sound",
					},
				),
			},
			errors: []string{
				"aggregate mix 1, source 1: references invalid channel 'z'",
				"aggregate mix 1: target channel 'sound' is invalid",
			},
		},
		{
			description: "rx slot out of range",
			values:      []*radio.Value{a},
			options:     []radio.ModelOption{radio.WithRxSlot(16)},
			errors:      []string{"rx slot must be in range [0, 15], got 16"},
		},
		{
			description: "dangling output",
			values:      []*radio.Value{a},
			options:     []radio.ModelOption{radio.WithOutputs("a", "b")},
			errors:      []string{"output ch2: references invalid channel 'b'"},
		},
		{
			description: "multiple problems are all reported",
			values:      []*radio.Value{a, a},
			options: []radio.ModelOption{
				radio.WithRxSlot(-1),
				radio.WithMixes(radio.DifferentialMix{Left: "a", Right: "a"}),
			},
			errors: []string{
				"duplicate value name: 'a'",
				"differential mix 0: invalid mix: left and right channels cannot be the same: a",
				"rx slot must be in range [0, 15], got -1",
			},
		},
	}
	for _, test := range tests {
		m, err := radio.NewModel("test", test.values, test.options...)
		if len(test.errors) == 0 {
			assert.NoError(t, err, test.description)
			assert.NotNil(t, m, test.description)
			continue
		}
		assert.Nil(t, m, test.description)
		var verr radio.ValidationErrors
		require.True(t, errors.As(err, &verr), test.description)
		assert.Equal(t, radio.ValidationErrors(test.errors), verr, test.description)
	}
}

func TestReadValues(t *testing.T) {
	m, err := radio.NewModel("tracks",
		[]*radio.Value{
			newValue(t, "left", bipolar("ly"), radio.Reversed()),
			newValue(t, "right", bipolar("ry")),
			newValue(t, "sound", radio.Virtual{ControlName: "sound", Kind: radio.Unipolar}),
			newValue(t, "idle", bipolar("idle")),
		},
		radio.WithMixes(
			radio.DifferentialMix{Left: "left", Right: "right"},
			radio.AggregateMix{
				Sources: []radio.AggregateSource{{Name: "left", Weight: 0.5}, {Name: "right", Weight: 0.5}},
				Target:  "sound",
			},
		),
	)
	require.NoError(t, err)

	assert.True(t, m.SetRaw("left", 0.2))
	assert.True(t, m.SetRaw("right", 0.8))
	assert.False(t, m.SetRaw("unknown", 1))

	values := m.ReadValues()
	// mixes see values before reversing
	assert.InDelta(t, -1.0, values["left"], delta)
	assert.InDelta(t, 0.6, values["right"], delta)
	// aggregate sees the output of differential mix
	assert.InDelta(t, 0.8, values["sound"], delta)
	// no input defaults to zero
	assert.InDelta(t, 0, values["idle"], delta)
	assert.Len(t, values, 4)

	// reading does not change raw values
	assert.Equal(t, values, m.ReadValues())
	assert.Equal(t, map[string]float64{"left": 0.2, "right": 0.8}, m.RawValues())
}

func TestChannels(t *testing.T) {
	m, err := radio.NewModel("outputs",
		[]*radio.Value{
			newValue(t, "steer", bipolar("x")),
			newValue(t, "throttle", bipolar("y")),
		},
		radio.WithOutputs("throttle", "", "steer"),
	)
	require.NoError(t, err)
	m.SetRaw("steer", -0.5)
	m.SetRaw("throttle", 0.25)

	assert.Equal(t, []float64{0.25, 0, -0.5, 0, 0}, m.Channels(5))
	assert.Equal(t, []float64{0.25}, m.Channels(1))
	assert.Empty(t, m.Channels(-1))

	values, err := m.Sampler(3)()
	assert.NoError(t, err)
	assert.Equal(t, []float64{0.25, 0, -0.5}, values)
}

func TestFeed(t *testing.T) {
	m, err := radio.NewModel("feed",
		[]*radio.Value{
			newValue(t, "throttle", radio.Axis{ControlName: "stick_y", Kind: radio.Bipolar, Min: 0, Max: 100}),
			newValue(t, "lights", radio.PushButton{ControlName: "trigger"}, radio.Latching()),
		},
	)
	require.NoError(t, err)

	assert.Equal(t, 1, m.Feed("stick_y", 75))
	assert.Equal(t, 0, m.Feed("stick_x", 75))
	assert.Equal(t, 1, m.Feed("trigger", 1))
	m.Feed("trigger", 0)

	values := m.ReadValues()
	assert.InDelta(t, 0.5, values["throttle"], delta)
	assert.Equal(t, 1.0, values["lights"])
}

func TestModelConcurrentAccess(t *testing.T) {
	m, err := radio.NewModel("race", []*radio.Value{newValue(t, "a", bipolar("a"))}, radio.WithOutputs("a"))
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			m.SetRaw("a", float64(i%3)-1)
		}
	}()
	go func() {
		defer wg.Done()
		for i := 0; i < 1000; i++ {
			v := m.Channels(1)[0]
			assert.Contains(t, []float64{-1, 0, 1}, v)
		}
	}()
	wg.Wait()
}

func TestMarkBound(t *testing.T) {
	ts := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	m, err := radio.NewModel("bind", nil, radio.WithID("abc"), radio.WithRxSlot(3), radio.WithBindTimestamp(ts))
	require.NoError(t, err)
	assert.Equal(t, "abc", m.ID())
	assert.Equal(t, 3, m.RxSlot())
	assert.Equal(t, ts, m.BindTimestamp())

	now := ts.Add(time.Hour)
	m.MarkBound(now)
	assert.Equal(t, now, m.BindTimestamp())
}
