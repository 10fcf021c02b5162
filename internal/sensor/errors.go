package sensor

import "codeberg.org/mutker/co2mqtt/internal/errors"

const (
	// Configuration Errors
	ErrInvalidConfig = errors.ErrInvalidConfig
	ErrUnknownDriver = errors.ErrorCode("sensor_unknown_driver")

	// Device Errors
	ErrOpenFailed      = errors.ErrorCode("sensor_open_failed")
	ErrConfigurePort   = errors.ErrorCode("sensor_configure_port_failed")
	ErrUnsupported     = errors.ErrorCode("sensor_unsupported_platform")
	ErrWriteFailed     = errors.ErrorCode("sensor_write_failed")
	ErrCloseFailed     = errors.ErrorCode("sensor_close_failed")
	ErrCalibrationFail = errors.ErrorCode("sensor_calibration_failed")
)
