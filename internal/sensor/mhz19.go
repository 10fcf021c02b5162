package sensor

import (
	"context"
	"io"
	"sync"

	"codeberg.org/mutker/co2mqtt/internal/errors"
	"codeberg.org/mutker/co2mqtt/internal/logger"
)

const (
	frameSize         = 9
	frameStart        = 0xFF
	sensorID          = 0x01
	temperatureOffset = 40

	cmdReadGas         = 0x86
	cmdAutoCalibration = 0x79
	autoCalibrationOn  = 0xA0
	autoCalibrationOff = 0x00
)

// flusher is implemented by ports that can discard unread input.
type flusher interface {
	Flush() error
}

// MHZ19 speaks the MH-Z19 UART protocol over any byte stream: 9-byte frames
// starting with 0xFF and ending with a negated-sum checksum.
type MHZ19 struct {
	port io.ReadWriter
	mu   sync.Mutex
	log  logger.Logger
}

func NewMHZ19(port io.ReadWriter, log logger.Logger) *MHZ19 {
	return &MHZ19{port: port, log: log}
}

// Read requests the gas concentration and decodes the reply. Stale input
// left by a reply that missed an earlier timeout is discarded or skipped.
func (m *MHZ19) Read(ctx context.Context) Reading {
	m.mu.Lock()
	defer m.mu.Unlock()

	if ctx.Err() != nil {
		return Reading{Err: ErrorTimeout}
	}

	if f, ok := m.port.(flusher); ok {
		if err := f.Flush(); err != nil {
			m.log.Debug().Err(err).Msg("Failed to flush MH-Z19 input")
		}
	}

	cmd := buildFrame(cmdReadGas)
	if _, err := m.port.Write(cmd[:]); err != nil {
		m.log.Debug().Err(err).Msg("Failed to write MH-Z19 command")
		return Reading{Err: ErrorFailed}
	}

	reply, code := m.readReply(cmdReadGas)
	if code != NoError {
		return Reading{Err: code}
	}

	return decodeGasReply(reply)
}

// readReply reads one frame. When the bytes read do not start with the
// expected header, it realigns on the first header inside them and reads the
// rest of that frame.
func (m *MHZ19) readReply(cmd byte) ([frameSize]byte, ErrorCode) {
	var reply [frameSize]byte
	if code := m.readFull(reply[:]); code != NoError {
		return reply, code
	}
	if reply[0] == frameStart && reply[1] == cmd {
		return reply, NoError
	}

	for i := 1; i < frameSize; i++ {
		if reply[i] != frameStart || (i+1 < frameSize && reply[i+1] != cmd) {
			continue
		}

		m.log.Debug().Int("skipped", i).Msg("Realigning on MH-Z19 frame header")
		n := copy(reply[:], reply[i:])
		if code := m.readFull(reply[n:]); code != NoError {
			return reply, code
		}
		return reply, NoError
	}

	return reply, ErrorMatch
}

func (m *MHZ19) readFull(buf []byte) ErrorCode {
	if _, err := io.ReadFull(m.port, buf); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return ErrorTimeout
		}
		m.log.Debug().Err(err).Msg("Failed to read MH-Z19 reply")
		return ErrorFailed
	}

	return NoError
}

// SetAutoCalibration toggles the sensor's automatic baseline correction.
// The sensor does not acknowledge this command.
func (m *MHZ19) SetAutoCalibration(on bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	arg := byte(autoCalibrationOff)
	if on {
		arg = autoCalibrationOn
	}

	cmd := buildFrame(cmdAutoCalibration, arg)
	if _, err := m.port.Write(cmd[:]); err != nil {
		return errors.New().Wrap(ErrWriteFailed, err)
	}

	return nil
}

func (m *MHZ19) Close() error {
	c, ok := m.port.(io.Closer)
	if !ok {
		return nil
	}
	if err := c.Close(); err != nil {
		return errors.New().Wrap(ErrCloseFailed, err)
	}

	return nil
}

func decodeGasReply(reply [frameSize]byte) Reading {
	if reply[0] != frameStart || reply[1] != cmdReadGas {
		return Reading{Err: ErrorMatch}
	}
	if checksum(reply[:]) != reply[8] {
		return Reading{Err: ErrorCRC}
	}

	ppm := int(reply[2])<<8 | int(reply[3])
	if ppm == 0 {
		// Reported during warm-up.
		return Reading{Err: ErrorFilter}
	}

	return Reading{
		CO2:         ppm,
		Temperature: int(reply[4]) - temperatureOffset,
	}
}

func buildFrame(cmd byte, data ...byte) [frameSize]byte {
	var f [frameSize]byte
	f[0] = frameStart
	f[1] = sensorID
	f[2] = cmd
	copy(f[3:8], data)
	f[8] = checksum(f[:])

	return f
}

// checksum is 0xFF minus the sum of bytes 1..7, plus one.
func checksum(f []byte) byte {
	var sum byte
	for _, b := range f[1:8] {
		sum += b
	}

	return 0xFF - sum + 1
}
