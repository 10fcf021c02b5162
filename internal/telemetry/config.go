package telemetry

import "codeberg.org/mutker/co2mqtt/internal/errors"

const (
	FormatJSON = "json"
	FormatCBOR = "cbor"
)

// NewCodec returns the codec for a configured payload format.
func NewCodec(format string) (Codec, error) {
	switch format {
	case FormatJSON, "":
		return JSONCodec{}, nil
	case FormatCBOR:
		return NewCBORCodec()
	default:
		return nil, errors.New().WithData(ErrUnknownFormat, format)
	}
}
