package agent

import (
	"time"

	"codeberg.org/mutker/co2mqtt/internal/clock"
	"codeberg.org/mutker/co2mqtt/internal/errors"
)

const (
	defaultTopic            = "wifi2mqtt/co2meter"
	defaultSamplingInterval = 5 * time.Second
	defaultPublishInterval  = time.Minute
	defaultBufferSize       = 10
	defaultChangeThreshold  = 50
)

type Config struct {
	Topic            string
	SamplingInterval time.Duration
	PublishInterval  time.Duration
	BufferSize       int
	ChangeThreshold  int // ppm
}

func DefaultConfig() Config {
	return Config{
		Topic:            defaultTopic,
		SamplingInterval: defaultSamplingInterval,
		PublishInterval:  defaultPublishInterval,
		BufferSize:       defaultBufferSize,
		ChangeThreshold:  defaultChangeThreshold,
	}
}

func (c Config) Validate() error {
	errFactory := errors.New()

	if c.Topic == "" {
		return errFactory.WithMessage(ErrInvalidConfig, "topic is empty")
	}
	intervals := []struct {
		field string
		value time.Duration
	}{
		{"sampling_interval", c.SamplingInterval},
		{"publish_interval", c.PublishInterval},
	}
	for _, iv := range intervals {
		// Since cannot measure spans at or beyond the counter's range.
		if iv.value < time.Millisecond || iv.value > clock.MaxSpan {
			return errFactory.WithData(errors.ErrInvalidInterval, struct {
				Field string
				Value time.Duration
			}{
				Field: iv.field,
				Value: iv.value,
			})
		}
	}
	if c.BufferSize < 1 {
		return errFactory.WithData(ErrInvalidConfig, struct {
			Field string
			Value int
		}{
			Field: "buffer_size",
			Value: c.BufferSize,
		})
	}
	if c.ChangeThreshold < 0 {
		return errFactory.WithData(ErrInvalidConfig, struct {
			Field string
			Value int
		}{
			Field: "change_threshold",
			Value: c.ChangeThreshold,
		})
	}

	return nil
}
