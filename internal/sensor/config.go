package sensor

import (
	"time"

	"codeberg.org/mutker/co2mqtt/internal/errors"
	"codeberg.org/mutker/co2mqtt/internal/logger"
)

const (
	DriverMHZ19     = "mhz19"
	DriverSimulated = "simulated"

	defaultDevice      = "/dev/ttyS0"
	defaultReadTimeout = time.Second
)

type Config struct {
	Driver          string
	Device          string
	AutoCalibration bool
	ReadTimeout     time.Duration
}

func DefaultConfig() Config {
	return Config{
		Driver:          DriverMHZ19,
		Device:          defaultDevice,
		AutoCalibration: true,
		ReadTimeout:     defaultReadTimeout,
	}
}

func (c Config) Validate() error {
	errFactory := errors.New()

	switch c.Driver {
	case DriverMHZ19:
		if c.Device == "" {
			return errFactory.WithMessage(ErrInvalidConfig, "sensor device path is empty")
		}
		if c.ReadTimeout <= 0 {
			return errFactory.WithData(errors.ErrInvalidInterval, c.ReadTimeout)
		}
	case DriverSimulated:
	default:
		return errFactory.WithData(ErrUnknownDriver, c.Driver)
	}

	return nil
}

// Open builds the Sensor selected by cfg.Driver.
func Open(cfg Config, log logger.Logger) (Sensor, error) {
	errFactory := errors.New()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	switch cfg.Driver {
	case DriverSimulated:
		log.Info().Msg("Using simulated CO2 sensor")
		return NewSimulated(time.Now().UnixNano()), nil
	default:
		port, err := OpenSerial(cfg.Device, cfg.ReadTimeout)
		if err != nil {
			return nil, err
		}

		dev := NewMHZ19(port, log)
		if err := dev.SetAutoCalibration(cfg.AutoCalibration); err != nil {
			_ = dev.Close()
			return nil, errFactory.Wrap(ErrCalibrationFail, err)
		}

		log.Info().
			Str("device", cfg.Device).
			Bool("auto_calibration", cfg.AutoCalibration).
			Msg("MH-Z19 sensor opened")

		return dev, nil
	}
}
