//go:build !(linux && (amd64 || arm64 || arm || 386))

package serial

import "fmt"

// Device is a serial device. It's not supported on this platform and
// every call returns ErrUnsupported.
type Device struct {
	path string
	baud int
	fd   int
}

// Open always fails.
func (d *Device) Open() error {
	return fmt.Errorf("%s: %w", d.path, ErrUnsupported)
}

// Close is no-op.
func (d *Device) Close() error {
	return nil
}

// Write always fails.
func (d *Device) Write([]byte) (int, error) {
	return 0, fmt.Errorf("%s: %w", d.path, ErrUnsupported)
}
