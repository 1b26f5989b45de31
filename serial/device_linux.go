//go:build linux && (amd64 || arm64 || arm || 386)

package serial

import (
	"fmt"
	"sync"

	"golang.org/x/sys/unix"
)

// Device is a serial device with termios2 arbitrary baud rate support.
type Device struct {
	path string
	baud int

	m  sync.Mutex
	fd int
}

// Open opens the device and configures it. If device is already open,
// it's reopened.
func (d *Device) Open() error {
	d.m.Lock()
	defer d.m.Unlock()
	d.close()
	fd, err := unix.Open(d.path, unix.O_RDWR|unix.O_NOCTTY|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		return fmt.Errorf("open %s: %w", d.path, err)
	}
	if err := configure(fd, d.baud); err != nil {
		unix.Close(fd)
		return fmt.Errorf("configure %s: %w", d.path, err)
	}
	if err := unix.SetNonblock(fd, false); err != nil {
		unix.Close(fd)
		return fmt.Errorf("set blocking mode %s: %w", d.path, err)
	}
	d.fd = fd
	return nil
}

// configure sets raw mode, 8E2 and custom baud rate.
func configure(fd, baud int) error {
	t, err := unix.IoctlGetTermios(fd, unix.TCGETS2)
	if err != nil {
		return fmt.Errorf("get termios: %w", err)
	}
	t.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP | unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON
	t.Oflag &^= unix.OPOST
	t.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	t.Cflag &^= unix.CBAUD | unix.CSIZE | unix.PARODD | unix.CRTSCTS
	t.Cflag |= unix.BOTHER | unix.CS8 | unix.PARENB | unix.CSTOPB | unix.CLOCAL | unix.CREAD
	t.Ispeed = uint32(baud)
	t.Ospeed = uint32(baud)
	t.Cc[unix.VMIN] = 0
	t.Cc[unix.VTIME] = 0
	if err := unix.IoctlSetTermios(fd, unix.TCSETS2, t); err != nil {
		return fmt.Errorf("set termios: %w", err)
	}
	return nil
}

// Close closes the device. Closing closed device is no-op.
func (d *Device) Close() error {
	d.m.Lock()
	defer d.m.Unlock()
	return d.close()
}

func (d *Device) close() error {
	if d.fd < 0 {
		return nil
	}
	err := unix.Close(d.fd)
	d.fd = -1
	if err != nil {
		return fmt.Errorf("close %s: %w", d.path, err)
	}
	return nil
}

// Write writes the whole buffer to the device.
func (d *Device) Write(b []byte) (int, error) {
	d.m.Lock()
	defer d.m.Unlock()
	if d.fd < 0 {
		return 0, ErrNotOpen
	}
	written := 0
	for written < len(b) {
		n, err := unix.Write(d.fd, b[written:])
		if err == unix.EINTR || err == unix.EAGAIN {
			continue
		}
		if err != nil {
			return written, fmt.Errorf("write %s: %w", d.path, err)
		}
		written += n
	}
	return written, nil
}
