package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"pipelined.dev/radio"
	"pipelined.dev/radio/config"
	"pipelined.dev/radio/log"
	"pipelined.dev/radio/serial"
	"pipelined.dev/radio/store"
	"pipelined.dev/radio/transmit"
)

type validateCommand struct {
	model string
}

func (cmd *validateCommand) Name() string {
	return "validate"
}

func (cmd *validateCommand) Help() string {
	return "Validate model file"
}

func (cmd *validateCommand) Register(fs *flag.FlagSet) {
	fs.StringVar(&cmd.model, "model", "", "model file (required)")
}

func (cmd *validateCommand) Run() error {
	if cmd.model == "" {
		return errors.New("missing -model required flag")
	}
	f, err := config.LoadFile(cmd.model)
	if err != nil {
		return err
	}
	m, err := f.Model()
	if err != nil {
		var errs radio.ValidationErrors
		if errors.As(err, &errs) {
			for _, e := range errs {
				fmt.Fprintln(stdout, e)
			}
		}
		return err
	}
	if _, err := f.Header(); err != nil {
		return err
	}
	fmt.Fprintf(stdout, "model %s is valid: %d values, %d mixes, %d outputs\n",
		m.Name(), len(m.Values()), len(m.Mixes()), len(m.Outputs()))
	return nil
}

type runCommand struct {
	model    string
	duration time.Duration
	bind     time.Duration
	capture  bool
	dump     string
	set      stringList
}

func (cmd *runCommand) Name() string {
	return "run"
}

func (cmd *runCommand) Help() string {
	return "Transmit model channels until interrupted"
}

func (cmd *runCommand) Register(fs *flag.FlagSet) {
	fs.StringVar(&cmd.model, "model", "", "model file (required)")
	fs.DurationVar(&cmd.duration, "duration", 0, "stop after duration, run until interrupted if zero")
	fs.DurationVar(&cmd.bind, "bind", 0, "bind window, overrides "+config.EnvBindSeconds)
	fs.BoolVar(&cmd.capture, "capture", false, "capture frames in memory instead of serial port")
	fs.StringVar(&cmd.dump, "dump", "", "file to dump captured frames to")
	fs.Var(&cmd.set, "set", "raw input in name=value format, repeatable")
}

func (cmd *runCommand) Run() error {
	if cmd.model == "" {
		return errors.New("missing -model required flag")
	}
	env, err := config.FromEnv()
	if err != nil {
		return err
	}
	f, err := config.LoadFile(cmd.model)
	if err != nil {
		return err
	}
	m, err := f.Model()
	if err != nil {
		return err
	}
	h, err := f.Header()
	if err != nil {
		return err
	}
	convention, err := f.Convention()
	if err != nil {
		return err
	}
	if err := cmd.setInputs(m); err != nil {
		return err
	}

	logger := log.GetLogger()
	st := f.Store(transmit.DefaultChannels, store.WithLogger(logger.WithField("component", "store")))

	var (
		port    serial.Port
		capture *serial.Capture
	)
	if cmd.capture || env.Capture {
		capture = serial.NewCapture(serial.DefaultCaptureSize)
		port = capture
	} else {
		if cmd.dump != "" {
			return errors.New("-dump requires capture")
		}
		port = serial.NewDevice(env.Port)
	}

	options := []transmit.Option{
		transmit.WithSampler(modelSampler(m, st, transmit.DefaultChannels), convention),
		transmit.WithRate(env.Rate),
		transmit.WithProtocol(h.Protocol, h.SubProtocol),
		transmit.WithRxSlot(int(h.RxSlot)),
		transmit.WithOption(int(h.Option)),
		transmit.WithLogger(logger),
		transmit.WithName(m.Name()),
		transmit.WithModelID(m.ID()),
	}
	if env.VerboseFrames {
		options = append(options, transmit.WithFrameLogging(env.LogEvery))
	}
	tx, err := transmit.New(port, options...)
	if err != nil {
		return err
	}
	if err := tx.Open(); err != nil {
		logger.WithError(err).Warn("port is not open, transmitter will retry")
	}

	bind := env.Bind
	if cmd.bind > 0 {
		bind = cmd.bind
	}
	if bind > 0 {
		tx.StartBind(bind)
		m.MarkBound(time.Now())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if cmd.duration > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cmd.duration)
		defer cancel()
	}

	if err := tx.Start(); err != nil {
		tx.Close()
		return err
	}
	<-ctx.Done()
	if !tx.Stop() {
		logger.Warn("transmitter didn't stop in time")
	}
	if err := tx.Close(); err != nil {
		logger.WithError(err).Warn("failed to close port")
	}

	stats := tx.Stats()
	fmt.Fprintf(stdout, "sent %d frames, %d bytes, %d write errors, %d sampler errors\n",
		stats.Frames, stats.Bytes, stats.WriteErrors, stats.SamplerErrors)
	if capture != nil && cmd.dump != "" {
		return dump(capture, cmd.dump)
	}
	return nil
}

func (cmd *runCommand) setInputs(m *radio.Model) error {
	for _, s := range cmd.set {
		name, value, ok := strings.Cut(s, "=")
		if !ok {
			return fmt.Errorf("invalid input %q, expected name=value", s)
		}
		v, err := strconv.ParseFloat(value, 64)
		if err != nil {
			return fmt.Errorf("input %s: %w", name, err)
		}
		if !m.SetRaw(name, v) {
			return fmt.Errorf("input %s: model has no such value", name)
		}
	}
	return nil
}

// modelSampler feeds model channels into the store and samples processed
// values.
func modelSampler(m *radio.Model, st *store.Store, n int) transmit.Sampler {
	sample := st.Sampler(n)
	updates := make(map[int]float64, st.Size())
	return func() ([]float64, error) {
		for i, v := range m.Channels(st.Size()) {
			updates[i+1] = v
		}
		st.SetMany(updates)
		return sample()
	}
}

func dump(c *serial.Capture, path string) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	if err := c.Dump(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
