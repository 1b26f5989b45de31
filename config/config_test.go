package config_test

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"pipelined.dev/radio"
	"pipelined.dev/radio/config"
	"pipelined.dev/radio/frame"
	"pipelined.dev/radio/store"
)

const tank = `
name: tank
id: 0123456789abcdef0123456789abcdef
rx_slot: 3
bind_timestamp: 2024-05-01T10:00:00Z
protocol:
  sub_protocol: 1
  option: -5
channels:
  - name: left
    control: {kind: axis, name: stick_y, min: 0, max: 1000}
  - name: right
    control: {kind: axis, name: stick_x, min: 0, max: 1000}
    reversed: true
  - name: lights
    control: {kind: button}
    latching: true
  - name: sound
    control: {kind: virtual, type: unipolar}
    endpoint: {min: 0, max: 0.5}
mixes:
  - aggregate:
      sources:
        - name: left
          weight: 0.5
        - name: right
      target: sound
outputs: [left, right, lights, "", sound]
processors:
  reverse: {ch2: true}
  types: {ch1: bipolar}
  differential:
    - {left: ch1, right: ch2}
`

func TestLoad(t *testing.T) {
	f, err := config.Load(strings.NewReader(tank))
	require.NoError(t, err)
	assert.Equal(t, "tank", f.Name)
	assert.Equal(t, "0123456789abcdef0123456789abcdef", f.ID)
	assert.Equal(t, 4, len(f.Channels))
	assert.Equal(t, map[string]bool{"ch2": true}, f.Processors.Reverse)
	assert.Equal(t, []store.DifferentialConfig{{Left: "ch1", Right: "ch2"}}, f.Processors.Differential)

	m, err := f.Model()
	require.NoError(t, err)
	assert.Equal(t, "tank", m.Name())
	assert.Equal(t, 3, m.RxSlot())
	assert.Equal(t, time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC), m.BindTimestamp().UTC())

	assert.Equal(t, 1, m.Feed("stick_y", 750))
	assert.Equal(t, 1, m.Feed("stick_x", 250))
	assert.True(t, m.SetRaw("lights", 1))
	values := m.ReadValues()
	assert.InDelta(t, 0.5, values["left"], 1e-9)
	assert.InDelta(t, 0.5, values["right"], 1e-9)
	assert.Equal(t, 1.0, values["lights"])
	// 0.5*|0.5| + |-0.5| clamped by the endpoint.
	assert.Equal(t, 0.5, values["sound"])

	channels := m.Channels(6)
	assert.InDeltaSlice(t, []float64{0.5, 0.5, 1, 0, 0.5, 0}, channels, 1e-9)
}

func TestLoadGeneratesID(t *testing.T) {
	f, err := config.Load(strings.NewReader("name: empty\n"))
	require.NoError(t, err)
	assert.Len(t, f.ID, 32)
	assert.NotContains(t, f.ID, "-")

	other, err := config.Load(strings.NewReader(""))
	require.NoError(t, err)
	assert.NotEqual(t, f.ID, other.ID)
}

func TestLoadErrors(t *testing.T) {
	tests := []struct {
		description string
		input       string
	}{
		{
			description: "unknown field",
			input:       "name: x\ncolor: red\n",
		},
		{
			description: "malformed",
			input:       "channels: [\n",
		},
		{
			description: "wrong type",
			input:       "rx_slot: first\n",
		},
	}
	for _, test := range tests {
		t.Run(test.description, func(t *testing.T) {
			_, err := config.Load(strings.NewReader(test.input))
			assert.Error(t, err)
		})
	}
}

func TestLoadSkipsMalformedProcessors(t *testing.T) {
	f, err := config.Load(strings.NewReader(`
name: lenient
processors:
  reverse: {ch1: true, ch2: maybe}
  endpoints:
    ch3: {min: low, max: 1}
    ch4: {min: 0, max: 0.5}
`))
	require.NoError(t, err)
	assert.Len(t, f.Processors.Skipped, 2)
	assert.Equal(t, map[string]bool{"ch1": true}, f.Processors.Reverse)

	logger, hook := test.NewNullLogger()
	s := f.Store(4, store.WithLogger(logger))
	assert.Len(t, hook.AllEntries(), 2)
	for _, e := range hook.AllEntries() {
		assert.Equal(t, logrus.WarnLevel, e.Level)
	}

	s.SetMany(map[int]float64{1: 0.25, 2: 0.5, 3: 2, 4: 0.8})
	assert.InDeltaSlice(t, []float64{0.75, 0.5, 1, 0.5}, s.Snapshot(), 1e-9)
}

func TestLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tank.yaml")
	require.NoError(t, os.WriteFile(path, []byte(tank), 0o600))
	f, err := config.LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "tank", f.Name)

	_, err = config.LoadFile(filepath.Join(t.TempDir(), "missing.yaml"))
	assert.True(t, errors.Is(err, os.ErrNotExist))
}

func TestModelErrors(t *testing.T) {
	tests := []struct {
		description string
		input       string
		expected    []string
	}{
		{
			description: "unknown control kind",
			input: `
channels:
  - name: a
    control: {kind: slider}
`,
			expected: []string{`channel 0: unknown control kind "slider"`},
		},
		{
			description: "axis without range",
			input: `
channels:
  - name: a
    control: {kind: axis, min: 1, max: 1}
`,
			expected: []string{"channel 0: axis a: min must be less than max"},
		},
		{
			description: "empty mix",
			input: `
channels:
  - name: a
mixes:
  - {}
`,
			expected: []string{"mix 0: invalid mix: mix is empty"},
		},
		{
			description: "invalid references",
			input: `
rx_slot: 16
channels:
  - name: a
mixes:
  - differential: {left: a, right: b}
outputs: [a, c]
`,
			expected: []string{
				"differential mix 0: references invalid channel 'b'",
				"output ch2: references invalid channel 'c'",
				"rx slot must be in range [0, 15], got 16",
			},
		},
		{
			description: "reversed by both channel and processors",
			input: `
channels:
  - name: a
    reversed: true
  - name: b
    reversed: true
outputs: [a, b]
processors:
  reverse: {ch2: true, ch1: false, ch5: true}
`,
			expected: []string{"output ch2: 'b' is reversed by both channel and processors"},
		},
	}
	for _, test := range tests {
		t.Run(test.description, func(t *testing.T) {
			f, err := config.Load(strings.NewReader(test.input))
			require.NoError(t, err)
			_, err = f.Model()
			var errs radio.ValidationErrors
			require.True(t, errors.As(err, &errs))
			assert.Equal(t, test.expected, []string(errs))
		})
	}
}

func TestHeader(t *testing.T) {
	f, err := config.Load(strings.NewReader(tank))
	require.NoError(t, err)
	h, err := f.Header()
	require.NoError(t, err)
	assert.Equal(t, frame.Header{
		Protocol:    frame.ProtocolAFHDS2A,
		SubProtocol: 1,
		Option:      -5,
		RxSlot:      3,
	}, h)

	f, err = config.Load(strings.NewReader("protocol: {id: 7, option: 40}\n"))
	require.NoError(t, err)
	_, err = f.Header()
	assert.Error(t, err)

	f, err = config.Load(strings.NewReader("protocol: {id: 300}\n"))
	require.NoError(t, err)
	_, err = f.Header()
	assert.Error(t, err)
}

func TestConvention(t *testing.T) {
	f, err := config.Load(strings.NewReader(""))
	require.NoError(t, err)
	c, err := f.Convention()
	assert.NoError(t, err)
	assert.Equal(t, frame.Normalized, c)

	f.Protocol.Convention = "scaled"
	c, err = f.Convention()
	assert.NoError(t, err)
	assert.Equal(t, frame.Scaled, c)

	f.Protocol.Convention = "percent"
	_, err = f.Convention()
	assert.Error(t, err)
}

func TestStore(t *testing.T) {
	f, err := config.Load(strings.NewReader(tank))
	require.NoError(t, err)
	logger, hook := test.NewNullLogger()
	s := f.Store(4, store.WithLogger(logger))
	assert.Empty(t, hook.AllEntries())
	assert.Equal(t, []store.Pair{{Left: 0, Right: 1}}, s.Pairs())

	s.SetMany(map[int]float64{1: 0.5, 2: 0.75})
	// ch2 is unipolar and reversed: 1 - 0.75.
	// Differential: 0.5+0.25, 0.25-0.5.
	assert.InDeltaSlice(t, []float64{0.75, -0.25, 0, 0}, s.Snapshot(), 1e-9)
}
