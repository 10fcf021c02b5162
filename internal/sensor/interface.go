package sensor

import (
	"context"
	"fmt"
)

// Sensor produces one Reading per call. Implementations must tolerate being
// read at the sampling interval indefinitely.
type Sensor interface {
	Read(ctx context.Context) Reading
	Close() error
}

// Reading is one sample. Err is NoError for a valid sample; otherwise CO2 and
// Temperature carry no meaning.
type Reading struct {
	CO2         int // parts per million
	Temperature int // degrees Celsius
	Err         ErrorCode
}

// OK reports whether the reading carries valid values.
func (r Reading) OK() bool {
	return r.Err == NoError
}

// ErrorCode is the numeric fault code a sensor reports instead of values.
// The numbering follows the MH-Z19 driver convention and is published as-is.
type ErrorCode uint8

const (
	NoError      ErrorCode = 0
	ErrorTimeout ErrorCode = 2 // no complete reply within the read timeout
	ErrorMatch   ErrorCode = 3 // reply does not belong to the command sent
	ErrorCRC     ErrorCode = 4 // reply checksum mismatch
	ErrorFilter  ErrorCode = 5 // reply decoded but value is implausible
	ErrorFailed  ErrorCode = 6 // transport write/read failure
)

func (c ErrorCode) String() string {
	switch c {
	case NoError:
		return "ok"
	case ErrorTimeout:
		return "timeout"
	case ErrorMatch:
		return "match"
	case ErrorCRC:
		return "crc"
	case ErrorFilter:
		return "filter"
	case ErrorFailed:
		return "failed"
	default:
		return fmt.Sprintf("unknown(%d)", uint8(c))
	}
}
