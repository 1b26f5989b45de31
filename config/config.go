// Package config loads model files and environment tunables.
package config

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"gopkg.in/yaml.v3"

	"pipelined.dev/radio"
	"pipelined.dev/radio/frame"
	"pipelined.dev/radio/store"
)

// Control kinds.
const (
	KindAxis    = "axis"
	KindButton  = "button"
	KindVirtual = "virtual"
)

type (
	// File is a model file.
	File struct {
		Name          string       `yaml:"name"`
		ID            string       `yaml:"id"`
		RxSlot        int          `yaml:"rx_slot"`
		BindTimestamp *time.Time   `yaml:"bind_timestamp"`
		Protocol      Protocol     `yaml:"protocol"`
		Channels      []Channel    `yaml:"channels"`
		Mixes         []Mix        `yaml:"mixes"`
		Outputs       []string     `yaml:"outputs"`
		Processors    store.Config `yaml:"processors"`
	}

	// Protocol contains frame settings.
	Protocol struct {
		ID          *int   `yaml:"id"`
		SubProtocol int    `yaml:"sub_protocol"`
		Option      int    `yaml:"option"`
		Convention  string `yaml:"convention"`
	}

	// Channel is a named value of the model.
	Channel struct {
		Name     string    `yaml:"name"`
		Control  Control   `yaml:"control"`
		Reversed bool      `yaml:"reversed"`
		Latching bool      `yaml:"latching"`
		Endpoint *Endpoint `yaml:"endpoint"`
	}

	// Control is an input source of the channel. Name defaults to the
	// channel name.
	Control struct {
		Kind string  `yaml:"kind"`
		Name string  `yaml:"name"`
		Type string  `yaml:"type"`
		Min  float64 `yaml:"min"`
		Max  float64 `yaml:"max"`
		Flat float64 `yaml:"flat"`
	}

	// Endpoint is a clamp range.
	Endpoint struct {
		Min float64 `yaml:"min"`
		Max float64 `yaml:"max"`
	}

	// Mix holds exactly one mix definition.
	Mix struct {
		Differential *DifferentialMix `yaml:"differential"`
		Aggregate    *AggregateMix    `yaml:"aggregate"`
	}

	// DifferentialMix defines radio.DifferentialMix.
	DifferentialMix struct {
		Left    string `yaml:"left"`
		Right   string `yaml:"right"`
		Inverse bool   `yaml:"inverse"`
	}

	// AggregateMix defines radio.AggregateMix.
	AggregateMix struct {
		Sources []AggregateSource `yaml:"sources"`
		Target  string            `yaml:"target"`
	}

	// AggregateSource is a weighted source of aggregate mix. Weight
	// defaults to 1.
	AggregateSource struct {
		Name   string   `yaml:"name"`
		Weight *float64 `yaml:"weight"`
	}
)

// Load decodes the model file. Unknown fields are rejected. If id is not
// set, a new one is generated.
func Load(r io.Reader) (*File, error) {
	var f File
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil && err != io.EOF {
		return nil, fmt.Errorf("decode model file: %w", err)
	}
	if f.ID == "" {
		f.ID = NewID()
	}
	return &f, nil
}

// LoadFile reads and decodes the model file.
func LoadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read model file: %w", err)
	}
	f, err := Load(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("load %s: %w", path, err)
	}
	return f, nil
}

// NewID returns a new model id.
func NewID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}

// Model builds and validates the model. All problems are reported
// together as radio.ValidationErrors.
func (f *File) Model() (*radio.Model, error) {
	var errs radio.ValidationErrors
	values := make([]*radio.Value, 0, len(f.Channels))
	for i, c := range f.Channels {
		v, err := c.value()
		if err != nil {
			errs = append(errs, fmt.Sprintf("channel %d: %v", i, err))
			continue
		}
		values = append(values, v)
	}

	mixes := make([]radio.Mix, 0, len(f.Mixes))
	for i, m := range f.Mixes {
		mix, err := m.mix()
		if err != nil {
			errs = append(errs, fmt.Sprintf("mix %d: %v", i, err))
			continue
		}
		mixes = append(mixes, mix)
	}
	errs = append(errs, f.reversedTwice()...)
	if len(errs) > 0 {
		return nil, errs
	}

	options := []radio.ModelOption{
		radio.WithID(f.ID),
		radio.WithRxSlot(f.RxSlot),
		radio.WithMixes(mixes...),
		radio.WithOutputs(f.Outputs...),
	}
	if f.BindTimestamp != nil {
		options = append(options, radio.WithBindTimestamp(*f.BindTimestamp))
	}
	return radio.NewModel(f.Name, values, options...)
}

// reversedTwice reports outputs whose value is reversed and whose channel
// is also reversed by processors.
func (f *File) reversedTwice() []string {
	reversed := make(map[string]bool, len(f.Channels))
	for _, c := range f.Channels {
		if c.Reversed {
			reversed[c.Name] = true
		}
	}
	keys := make([]string, 0, len(f.Processors.Reverse))
	for key, on := range f.Processors.Reverse {
		if on {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	var errs []string
	for _, key := range keys {
		ch, err := store.ParseChannel(key)
		if err != nil || ch > len(f.Outputs) {
			continue
		}
		if name := f.Outputs[ch-1]; reversed[name] {
			errs = append(errs, fmt.Sprintf("output %s: '%s' is reversed by both channel and processors", key, name))
		}
	}
	return errs
}

// Header returns frame header for the model.
func (f *File) Header() (frame.Header, error) {
	h := frame.Header{
		Protocol:    frame.ProtocolAFHDS2A,
		SubProtocol: byte(f.Protocol.SubProtocol) & 0x1F,
	}
	if f.Protocol.ID != nil {
		if *f.Protocol.ID < 0 || *f.Protocol.ID > 255 {
			return frame.Header{}, fmt.Errorf("protocol id must be in range [0, 255], got %d", *f.Protocol.ID)
		}
		h.Protocol = byte(*f.Protocol.ID)
	}
	if f.Protocol.Option < frame.MinOption || f.Protocol.Option > frame.MaxOption {
		return frame.Header{}, fmt.Errorf("option must be in range [%d, %d], got %d", frame.MinOption, frame.MaxOption, f.Protocol.Option)
	}
	h.Option = int8(f.Protocol.Option)
	if f.RxSlot >= 0 && f.RxSlot <= frame.MaxRxSlot {
		h.RxSlot = byte(f.RxSlot)
	}
	return h, nil
}

// Convention returns the sampler convention. Default is normalized.
func (f *File) Convention() (frame.Convention, error) {
	if f.Protocol.Convention == "" {
		return frame.Normalized, nil
	}
	c, err := frame.ParseConvention(f.Protocol.Convention)
	if err != nil {
		return 0, fmt.Errorf("protocol: %w", err)
	}
	return c, nil
}

// Store returns a store configured with processors.
func (f *File) Store(size int, options ...store.Option) *store.Store {
	s := store.New(size, options...)
	s.Configure(f.Processors)
	return s
}

func (c Channel) value() (*radio.Value, error) {
	control, err := c.Control.control(c.Name)
	if err != nil {
		return nil, err
	}
	var options []radio.ValueOption
	if c.Reversed {
		options = append(options, radio.Reversed())
	}
	if c.Latching {
		options = append(options, radio.Latching())
	}
	if c.Endpoint != nil {
		options = append(options, radio.WithEndpoint(radio.Endpoint{Min: c.Endpoint.Min, Max: c.Endpoint.Max}))
	}
	return radio.NewValue(c.Name, control, options...)
}

func (c Control) control(channel string) (radio.Control, error) {
	name := c.Name
	if name == "" {
		name = channel
	}
	t := radio.Bipolar
	if c.Type != "" {
		var err error
		if t, err = radio.ParseControlType(c.Type); err != nil {
			return nil, err
		}
	}
	switch c.Kind {
	case KindAxis:
		if c.Min >= c.Max {
			return nil, fmt.Errorf("axis %s: min must be less than max", name)
		}
		return radio.Axis{ControlName: name, Kind: t, Min: c.Min, Max: c.Max, Flat: c.Flat}, nil
	case KindButton:
		return radio.PushButton{ControlName: name}, nil
	case KindVirtual, "":
		return radio.Virtual{ControlName: name, Kind: t}, nil
	}
	return nil, fmt.Errorf("unknown control kind %q", c.Kind)
}

func (m Mix) mix() (radio.Mix, error) {
	switch {
	case m.Differential != nil && m.Aggregate != nil:
		return nil, fmt.Errorf("%w: only one of differential and aggregate must be set", radio.ErrInvalidMix)
	case m.Differential != nil:
		return radio.DifferentialMix{
			Left:    m.Differential.Left,
			Right:   m.Differential.Right,
			Inverse: m.Differential.Inverse,
		}, nil
	case m.Aggregate != nil:
		sources := make([]radio.AggregateSource, 0, len(m.Aggregate.Sources))
		for _, s := range m.Aggregate.Sources {
			weight := 1.0
			if s.Weight != nil {
				weight = *s.Weight
			}
			sources = append(sources, radio.AggregateSource{Name: s.Name, Weight: weight})
		}
		return radio.AggregateMix{Sources: sources, Target: m.Aggregate.Target}, nil
	}
	return nil, fmt.Errorf("%w: mix is empty", radio.ErrInvalidMix)
}
