// Package agent runs the sampling loop: it reads the sensor on a fixed
// cadence, keeps a rolling average of valid readings and decides on every
// sampling tick whether the average is worth publishing.
package agent

import (
	"context"
	"time"

	"codeberg.org/mutker/co2mqtt/internal/change"
	"codeberg.org/mutker/co2mqtt/internal/clock"
	"codeberg.org/mutker/co2mqtt/internal/errors"
	"codeberg.org/mutker/co2mqtt/internal/logger"
	"codeberg.org/mutker/co2mqtt/internal/metrics"
	"codeberg.org/mutker/co2mqtt/internal/sample"
	"codeberg.org/mutker/co2mqtt/internal/sensor"
	"codeberg.org/mutker/co2mqtt/internal/telemetry"
	"codeberg.org/mutker/co2mqtt/internal/transport"
)

// StartedPayload is sent once after the first successful connect.
const StartedPayload = "started"

// Result describes what one call to Tick did.
type Result struct {
	Sampled   bool
	Reading   sensor.Reading
	Fault     bool // diagnostic record accepted by the transport
	Published bool // measurement accepted by the transport
	Reason    string
}

// State is a read-only view of the loop internals.
type State struct {
	Samples        []int
	Average        int
	HasAverage     bool
	Temperature    int
	HasTemperature bool
	Sampled        bool
	LastSample     clock.Millis
	Published      bool
	LastPublish    clock.Millis
}

// Loop owns the sample buffer, the change detector and both timers. Tick
// must be called from a single goroutine.
type Loop struct {
	cfg       Config
	sensor    sensor.Sensor
	transport transport.Transport
	codec     telemetry.Codec
	metrics   metrics.Collector
	clock     clock.Clock
	log       logger.Logger
	wallClock func() time.Time

	samplingInterval clock.Millis
	publishInterval  clock.Millis

	buffer   *sample.Buffer[int]
	detector *change.Detector[int]

	sampled     bool
	lastSample  clock.Millis
	published   bool
	lastPublish clock.Millis

	temperature    int
	hasTemperature bool
}

func New(
	cfg Config,
	s sensor.Sensor,
	t transport.Transport,
	codec telemetry.Codec,
	collector metrics.Collector,
	c clock.Clock,
	log logger.Logger,
) (*Loop, error) {
	errFactory := errors.New()

	if err := cfg.Validate(); err != nil {
		return nil, errFactory.Wrap(ErrInvalidConfig, err)
	}
	if collector == nil {
		collector = metrics.Nop()
	}

	l := &Loop{
		cfg:              cfg,
		sensor:           s,
		transport:        t,
		codec:            codec,
		metrics:          collector,
		clock:            c,
		log:              log,
		wallClock:        time.Now,
		samplingInterval: clock.FromDuration(cfg.SamplingInterval),
		publishInterval:  clock.FromDuration(cfg.PublishInterval),
		buffer:           sample.New[int](cfg.BufferSize),
		detector:         change.New[int](1),
	}

	l.detector.SetThreshold(cfg.ChangeThreshold)
	l.detector.SetValueSource(change.SourceFunc[int](l.trackedValues))
	l.detector.OnChange(func(current, baseline []int) {
		l.log.Debug().
			Int("co2", current[0]).
			Int("baseline", baseline[0]).
			Int("threshold", cfg.ChangeThreshold).
			Msg("CO2 average changed")
	})

	return l, nil
}

// Tick runs one iteration. It returns immediately unless a sampling interval
// has passed since the previous sample; the very first call always samples.
func (l *Loop) Tick(ctx context.Context) Result {
	now := l.clock.Now()
	if l.sampled && now.Since(l.lastSample) < l.samplingInterval {
		return Result{}
	}

	reading := l.sensor.Read(ctx)
	res := Result{Sampled: true, Reading: reading}

	if reading.OK() {
		l.buffer.Add(reading.CO2)
		l.temperature = reading.Temperature
		l.hasTemperature = true
	} else {
		res.Fault = l.publishFault(ctx, reading.Err)
	}

	// Poll runs every sampling tick so the change callback sees every change,
	// even when the fallback would publish anyway.
	changed := l.detector.Poll()
	fallbackDue := !l.published || now.Since(l.lastPublish) >= l.publishInterval

	switch {
	case changed:
		res.Reason = metrics.ReasonChange
	case fallbackDue && !l.buffer.IsEmpty():
		res.Reason = metrics.ReasonFallback
	}

	if res.Reason != metrics.ReasonNone {
		res.Published = l.publish(ctx, now)
	}

	l.lastSample = now
	l.sampled = true

	l.record(ctx, res)

	return res
}

// Announce publishes StartedPayload as plain text when the transport can
// label it so. Wire it to the supervisor's first connect.
func (l *Loop) Announce(ctx context.Context) error {
	var err error
	if ts, ok := l.transport.(transport.TextSender); ok {
		err = ts.SendText(ctx, l.cfg.Topic, StartedPayload)
	} else {
		err = l.transport.Send(ctx, l.cfg.Topic, []byte(StartedPayload))
	}
	if err != nil {
		return errors.New().Wrap(ErrSendFailed, err)
	}

	l.log.Info().Str("topic", l.cfg.Topic).Msg("Announced startup")

	return nil
}

// State returns a snapshot of the loop internals.
func (l *Loop) State() State {
	avg, ok := l.buffer.Average()

	return State{
		Samples:        l.buffer.Values(),
		Average:        avg,
		HasAverage:     ok,
		Temperature:    l.temperature,
		HasTemperature: l.hasTemperature,
		Sampled:        l.sampled,
		LastSample:     l.lastSample,
		Published:      l.published,
		LastPublish:    l.lastPublish,
	}
}

func (l *Loop) trackedValues() ([]int, bool) {
	avg, ok := l.buffer.Average()
	if !ok {
		return nil, false
	}

	return []int{avg}, true
}

// publish sends the current average. Timers and baseline move only when the
// transport accepts the message.
func (l *Loop) publish(ctx context.Context, now clock.Millis) bool {
	errFactory := errors.New()

	avg, ok := l.buffer.Average()
	if !ok {
		l.log.ErrorWithCode(errFactory.New(ErrEmptyAggregate)).Msg("Refusing to publish without samples")
		return false
	}

	var temp *int
	if l.hasTemperature {
		t := l.temperature
		temp = &t
	}

	if !l.send(ctx, telemetry.Measurement(avg, temp)) {
		return false
	}

	l.lastPublish = now
	l.published = true
	l.detector.Remember()

	l.log.Info().Int("co2", avg).Msg("Published CO2 average")

	return true
}

// publishFault sends the diagnostic record for a failed read. It never
// touches the publish timer or the baseline.
func (l *Loop) publishFault(ctx context.Context, code sensor.ErrorCode) bool {
	var avg *int
	if v, ok := l.buffer.Average(); ok {
		avg = &v
	}

	l.log.Warn().
		Str("error_code", string(ErrSensorFault)).
		Int("sensor_error", int(code)).
		Str("sensor_error_name", code.String()).
		Msg("Sensor read failed")

	return l.send(ctx, telemetry.Fault(int(code), avg))
}

func (l *Loop) send(ctx context.Context, rec telemetry.Record) bool {
	errFactory := errors.New()

	payload, err := l.codec.Encode(rec)
	if err != nil {
		l.log.ErrorWithCode(errFactory.Wrap(ErrEncodeFailed, err)).Msg("Failed to encode record")
		return false
	}

	if err := l.transport.Send(ctx, l.cfg.Topic, payload); err != nil {
		l.log.Debug().Err(err).Bool("fault", rec.IsFault()).Msg("Telemetry dropped")
		return false
	}

	return true
}

func (l *Loop) record(ctx context.Context, res Result) {
	avg, ok := l.buffer.Average()

	snapshot := &metrics.Snapshot{
		Timestamp: l.wallClock(),
		Reading: metrics.ReadingMetrics{
			CO2:         res.Reading.CO2,
			Temperature: res.Reading.Temperature,
			SensorError: int(res.Reading.Err),
		},
		Aggregate: metrics.AggregateMetrics{
			Average:    avg,
			HasAverage: ok,
			Samples:    l.buffer.Len(),
		},
		Publish: metrics.PublishMetrics{
			Published: res.Published,
			Reason:    res.Reason,
			Fault:     res.Fault,
		},
	}
	if !res.Published {
		snapshot.Publish.Reason = metrics.ReasonNone
	}

	if err := l.metrics.Record(ctx, snapshot); err != nil {
		l.log.Debug().Err(err).Msg("Failed to record metrics")
	}
}
