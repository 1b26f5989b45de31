package main

import (
	"encoding/hex"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/davecgh/go-spew/spew"

	"pipelined.dev/radio/frame"
	"pipelined.dev/radio/serial"
)

type encodeCommand struct {
	protocol    int
	subProtocol int
	option      int
	rxSlot      int
	bind        bool
	rangeCheck  bool
	autobind    bool
	convention  string
	values      []string
}

func (cmd *encodeCommand) Name() string {
	return "encode"
}

func (cmd *encodeCommand) Help() string {
	return "Encode channel values into a hex frame"
}

func (cmd *encodeCommand) Register(fs *flag.FlagSet) {
	fs.IntVar(&cmd.protocol, "protocol", int(frame.ProtocolAFHDS2A), "protocol id")
	fs.IntVar(&cmd.subProtocol, "sub", int(frame.PWMIBus), "sub protocol")
	fs.IntVar(&cmd.option, "option", 0, "protocol option in range [-32, 31]")
	fs.IntVar(&cmd.rxSlot, "rx", 0, "receiver slot in range [0, 15]")
	fs.BoolVar(&cmd.bind, "bind", false, "set bind flag")
	fs.BoolVar(&cmd.rangeCheck, "range", false, "set range check flag")
	fs.BoolVar(&cmd.autobind, "autobind", false, "set autobind flag")
	fs.StringVar(&cmd.convention, "convention", "normalized", "values convention: normalized, scaled or raw")
}

func (cmd *encodeCommand) Args(args []string) {
	cmd.values = args
}

func (cmd *encodeCommand) Run() error {
	h, err := cmd.header()
	if err != nil {
		return err
	}
	channels := make([]uint16, len(cmd.values))
	for i, s := range cmd.values {
		if channels[i], err = cmd.channel(s); err != nil {
			return fmt.Errorf("channel %d: %w", i+1, err)
		}
	}
	b, err := frame.Encode(h, channels)
	if err != nil {
		return err
	}
	fmt.Fprintln(stdout, hex.EncodeToString(b))
	return nil
}

func (cmd *encodeCommand) header() (frame.Header, error) {
	if cmd.protocol < 0 || cmd.protocol > 255 {
		return frame.Header{}, fmt.Errorf("protocol must be in range [0, 255], got %d", cmd.protocol)
	}
	if cmd.subProtocol < 0 || cmd.subProtocol > 31 {
		return frame.Header{}, fmt.Errorf("sub protocol must be in range [0, 31], got %d", cmd.subProtocol)
	}
	if cmd.option < frame.MinOption || cmd.option > frame.MaxOption {
		return frame.Header{}, fmt.Errorf("option must be in range [%d, %d], got %d", frame.MinOption, frame.MaxOption, cmd.option)
	}
	if cmd.rxSlot < 0 || cmd.rxSlot > frame.MaxRxSlot {
		return frame.Header{}, fmt.Errorf("rx slot must be in range [0, %d], got %d", frame.MaxRxSlot, cmd.rxSlot)
	}
	return frame.Header{
		Protocol:    byte(cmd.protocol),
		SubProtocol: byte(cmd.subProtocol),
		Bind:        cmd.bind,
		RangeCheck:  cmd.rangeCheck,
		Autobind:    cmd.autobind,
		Option:      int8(cmd.option),
		RxSlot:      byte(cmd.rxSlot),
	}, nil
}

func (cmd *encodeCommand) channel(s string) (uint16, error) {
	if cmd.convention == "raw" {
		v, err := strconv.ParseUint(s, 10, 16)
		if err != nil {
			return 0, err
		}
		if v > frame.MaxValue {
			return 0, fmt.Errorf("value must be in range [0, %d], got %d", frame.MaxValue, v)
		}
		return uint16(v), nil
	}
	c, err := frame.ParseConvention(cmd.convention)
	if err != nil {
		return 0, err
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	return c.Convert(v), nil
}

type decodeCommand struct {
	verbose bool
	capture string
	frames  []string
}

func (cmd *decodeCommand) Name() string {
	return "decode"
}

func (cmd *decodeCommand) Help() string {
	return "Decode hex frames or a capture dump"
}

func (cmd *decodeCommand) Register(fs *flag.FlagSet) {
	fs.BoolVar(&cmd.verbose, "v", false, "dump decoded structures")
	fs.StringVar(&cmd.capture, "capture", "", "capture dump to decode instead of arguments")
}

func (cmd *decodeCommand) Args(args []string) {
	cmd.frames = args
}

func (cmd *decodeCommand) Run() error {
	if cmd.capture != "" {
		return cmd.decodeCapture()
	}
	if len(cmd.frames) == 0 {
		return errors.New("no frames provided")
	}
	for _, s := range cmd.frames {
		b, err := hex.DecodeString(s)
		if err != nil {
			return fmt.Errorf("frame %s: %w", s, err)
		}
		h, channels, err := frame.Decode(b)
		if err != nil {
			return fmt.Errorf("frame %s: %w", s, err)
		}
		cmd.print(h, channels)
	}
	return nil
}

func (cmd *decodeCommand) decodeCapture() error {
	f, err := os.Open(cmd.capture)
	if err != nil {
		return err
	}
	defer f.Close()
	records, err := serial.Load(f)
	if err != nil {
		return err
	}
	fmt.Fprintf(stdout, "%d frames\n", len(records))
	for _, r := range records {
		if r.Error != "" {
			fmt.Fprintf(stdout, "%s invalid: %s\n", hex.EncodeToString(r.Raw), r.Error)
			continue
		}
		cmd.print(r.Header, r.Channels)
	}
	return nil
}

func (cmd *decodeCommand) print(h frame.Header, channels []uint16) {
	if cmd.verbose {
		spew.Fdump(stdout, h, channels)
		return
	}
	fmt.Fprintf(stdout, "protocol=%d sub=%d bind=%t range=%t autobind=%t option=%d rx=%d channels=%v\n",
		h.Protocol, h.SubProtocol, h.Bind, h.RangeCheck, h.Autobind, h.Option, h.RxSlot, channels)
}
