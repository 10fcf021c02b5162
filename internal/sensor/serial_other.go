//go:build !linux

package sensor

import (
	"io"
	"time"

	"codeberg.org/mutker/co2mqtt/internal/errors"
)

// OpenSerial is only implemented on linux.
func OpenSerial(device string, _ time.Duration) (io.ReadWriteCloser, error) {
	return nil, errors.New().WithData(ErrUnsupported, device)
}
