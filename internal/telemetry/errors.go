package telemetry

import "codeberg.org/mutker/co2mqtt/internal/errors"

const (
	ErrUnknownFormat = errors.ErrorCode("telemetry_unknown_format")
	ErrEncodeFailed  = errors.ErrorCode("telemetry_encode_failed")
	ErrDecodeFailed  = errors.ErrorCode("telemetry_decode_failed")
	ErrCodecInit     = errors.ErrorCode("telemetry_codec_init_failed")
)
