/*
Package radio converts normalized control inputs into the output channels of
a hobby radio-control transmitter.

Concept

A transmitter model is built from values. Every value reads one control
(stick axis, button or a virtual source) and goes through a fixed sequence
of stages:

    PreProcess - latching, turns a momentary button into a held state;
    Mixes      - differential and aggregate mixes, in declared order;
    PostProcess - reversing and endpoint clamping.

Mixes always see the values before post-processing. Reversing and endpoints
are applied strictly after all mixing.

Model

Model is created once and validated at construction:

    left, _ := radio.NewValue("left_track", radio.Axis{ControlName: "ly", Kind: radio.Bipolar, Min: -1, Max: 1})
    right, _ := radio.NewValue("right_track", radio.Axis{ControlName: "ry", Kind: radio.Bipolar, Min: -1, Max: 1})
    m, err := radio.NewModel("excavator", []*radio.Value{left, right},
        radio.WithMixes(radio.DifferentialMix{Left: "left_track", Right: "right_track"}),
        radio.WithOutputs("left_track", "right_track"),
    )

Construction fails with ValidationErrors if the configuration is invalid.
The input path feeds normalized values with SetRaw and the output path reads
them with ReadValues or Channels. Both are safe for concurrent use.

Transmission

The positional channel values are consumed by the transmit package, which
encodes them into frames (package frame) and streams them to a serial port
(package serial) at a steady rate. The store package provides the
index-addressed variant of the pipeline used by the transmitter-facing path.
*/
package radio
