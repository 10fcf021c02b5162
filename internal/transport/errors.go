package transport

import "codeberg.org/mutker/co2mqtt/internal/errors"

const (
	ErrInvalidConfig  = errors.ErrInvalidConfig
	ErrNotConnected   = errors.ErrorCode("transport_not_connected")
	ErrDialFailed     = errors.ErrorCode("transport_dial_failed")
	ErrConnectRefused = errors.ErrorCode("transport_connect_refused")
	ErrPublishFailed  = errors.ErrorCode("transport_publish_failed")
	ErrDisconnect     = errors.ErrorCode("transport_disconnect_failed")
)
