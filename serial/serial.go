// Package serial provides sinks for encoded frames.
package serial

import (
	"errors"
)

const (
	// DefaultPath is the UART of Raspberry Pi.
	DefaultPath = "/dev/serial0"
	// DefaultBaudRate is the baud rate of the multiprotocol module.
	DefaultBaudRate = 100000
)

var (
	// ErrNotOpen is returned when port is used before it's opened.
	ErrNotOpen = errors.New("port is not open")
	// ErrUnsupported is returned when serial device is not supported on
	// current platform.
	ErrUnsupported = errors.New("serial device is not supported on this platform")
)

// Port is a serial sink. Transmitter owns the port and is the only
// writer.
type Port interface {
	Open() error
	Close() error
	Write([]byte) (int, error)
}

// Option configures the device.
type Option func(*Device)

// WithBaudRate sets custom baud rate.
func WithBaudRate(baud int) Option {
	return func(d *Device) {
		d.baud = baud
	}
}

// NewDevice returns a device for provided path. Device is configured as
// 8 data bits, even parity and 2 stop bits when opened.
func NewDevice(path string, options ...Option) *Device {
	if path == "" {
		path = DefaultPath
	}
	d := &Device{
		path: path,
		baud: DefaultBaudRate,
		fd:   -1,
	}
	for _, option := range options {
		option(d)
	}
	return d
}

// Path returns the device path.
func (d *Device) Path() string {
	return d.path
}
