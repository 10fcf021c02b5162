package agent

import "codeberg.org/mutker/co2mqtt/internal/errors"

const (
	ErrInvalidConfig  = errors.ErrInvalidConfig
	ErrEmptyAggregate = errors.ErrorCode("agent_empty_aggregate")
	ErrEncodeFailed   = errors.ErrorCode("agent_encode_failed")
	ErrSendFailed     = errors.ErrorCode("agent_send_failed")
	ErrSensorFault    = errors.ErrorCode("agent_sensor_fault")
)
