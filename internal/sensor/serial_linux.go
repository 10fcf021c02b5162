//go:build linux

package sensor

import (
	"io"
	"os"
	"time"

	"codeberg.org/mutker/co2mqtt/internal/errors"
	"golang.org/x/sys/unix"
)

// maxVTIME is the largest read timeout termios can express, in deciseconds.
const maxVTIME = 255

// OpenSerial opens device at 9600 baud 8N1 in raw mode. Reads return after
// timeout with whatever arrived, so a silent sensor surfaces as a short read
// instead of a hang.
func OpenSerial(device string, timeout time.Duration) (io.ReadWriteCloser, error) {
	errFactory := errors.New()

	f, err := os.OpenFile(device, os.O_RDWR|unix.O_NOCTTY, 0)
	if err != nil {
		return nil, errFactory.Wrap(ErrOpenFailed, err)
	}

	fd := int(f.Fd())
	t, err := unix.IoctlGetTermios(fd, unix.TCGETS)
	if err != nil {
		f.Close()
		return nil, errFactory.Wrap(ErrConfigurePort, err)
	}

	t.Iflag &^= unix.IGNBRK | unix.BRKINT | unix.PARMRK | unix.ISTRIP |
		unix.INLCR | unix.IGNCR | unix.ICRNL | unix.IXON | unix.IXOFF
	t.Oflag &^= unix.OPOST
	t.Lflag &^= unix.ECHO | unix.ECHONL | unix.ICANON | unix.ISIG | unix.IEXTEN
	t.Cflag &^= unix.CSIZE | unix.PARENB | unix.CSTOPB | unix.CBAUD | unix.CRTSCTS
	t.Cflag |= unix.CS8 | unix.CREAD | unix.CLOCAL | unix.B9600
	t.Ispeed = unix.B9600
	t.Ospeed = unix.B9600
	t.Cc[unix.VMIN] = 0
	t.Cc[unix.VTIME] = vtime(timeout)

	if err := unix.IoctlSetTermios(fd, unix.TCSETS, t); err != nil {
		f.Close()
		return nil, errFactory.Wrap(ErrConfigurePort, err)
	}

	port := &serialPort{File: f}

	// Drop anything the sensor sent before we were listening.
	if err := port.Flush(); err != nil {
		f.Close()
		return nil, errFactory.Wrap(ErrConfigurePort, err)
	}

	return port, nil
}

// serialPort is the opened device. Flush discards received but unread input.
type serialPort struct {
	*os.File
}

func (p *serialPort) Flush() error {
	return unix.IoctlSetInt(int(p.Fd()), unix.TCFLSH, unix.TCIFLUSH)
}

func vtime(timeout time.Duration) uint8 {
	ds := timeout.Milliseconds() / 100
	if ds < 1 {
		return 1
	}
	if ds > maxVTIME {
		return maxVTIME
	}

	return uint8(ds)
}
