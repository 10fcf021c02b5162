package agent_test

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"codeberg.org/mutker/co2mqtt/internal/agent"
	"codeberg.org/mutker/co2mqtt/internal/clock"
	"codeberg.org/mutker/co2mqtt/internal/logger"
	"codeberg.org/mutker/co2mqtt/internal/metrics"
	"codeberg.org/mutker/co2mqtt/internal/sensor"
	"codeberg.org/mutker/co2mqtt/internal/telemetry"
	"codeberg.org/mutker/co2mqtt/internal/transport"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	samplingMs = clock.Millis(5000)
	topic      = "test/co2"
)

type stubSensor struct {
	reading sensor.Reading
	reads   int
}

func (s *stubSensor) Read(context.Context) sensor.Reading {
	s.reads++
	return s.reading
}

func (*stubSensor) Close() error { return nil }

func (s *stubSensor) set(co2, temp int) {
	s.reading = sensor.Reading{CO2: co2, Temperature: temp}
}

func (s *stubSensor) fail(code sensor.ErrorCode) {
	s.reading = sensor.Reading{CO2: 1100, Err: code}
}

type message struct {
	topic   string
	payload []byte
}

type recordingTransport struct {
	sent []message
	down bool
}

func (*recordingTransport) Connect(context.Context, transport.Credentials) error { return nil }

func (r *recordingTransport) IsConnected() bool { return !r.down }

func (r *recordingTransport) Send(_ context.Context, topic string, payload []byte) error {
	if r.down {
		return errors.New("not connected")
	}
	r.sent = append(r.sent, message{topic: topic, payload: payload})
	return nil
}

func (*recordingTransport) Disconnect() error { return nil }

func (r *recordingTransport) record(t *testing.T, i int) telemetry.Record {
	t.Helper()
	require.Greater(t, len(r.sent), i)
	rec, err := telemetry.JSONCodec{}.Decode(r.sent[i].payload)
	require.NoError(t, err)
	return rec
}

func (r *recordingTransport) last(t *testing.T) telemetry.Record {
	t.Helper()
	return r.record(t, len(r.sent)-1)
}

// textTransport also records plain-text sends apart from telemetry.
type textTransport struct {
	recordingTransport
	texts []message
}

func (r *textTransport) SendText(_ context.Context, topic, text string) error {
	if r.down {
		return errors.New("not connected")
	}
	r.texts = append(r.texts, message{topic: topic, payload: []byte(text)})
	return nil
}

type recordingCollector struct {
	snapshots []*metrics.Snapshot
}

func (c *recordingCollector) Record(_ context.Context, s *metrics.Snapshot) error {
	c.snapshots = append(c.snapshots, s)
	return nil
}

func (*recordingCollector) Close() error { return nil }

type fixture struct {
	loop      *agent.Loop
	sensor    *stubSensor
	transport *recordingTransport
	clock     *clock.Manual
}

func testConfig() agent.Config {
	return agent.Config{
		Topic:            topic,
		SamplingInterval: samplingMs.Duration(),
		PublishInterval:  time.Minute,
		BufferSize:       3,
		ChangeThreshold:  10,
	}
}

func newFixture(t *testing.T, cfg agent.Config, start clock.Millis, collector metrics.Collector) *fixture {
	t.Helper()

	f := &fixture{
		sensor:    &stubSensor{},
		transport: &recordingTransport{},
		clock:     clock.NewManual(start),
	}

	loop, err := agent.New(cfg, f.sensor, f.transport, telemetry.JSONCodec{}, collector, f.clock, logger.Nop())
	require.NoError(t, err)
	f.loop = loop

	return f
}

// next advances one sampling interval and ticks.
func (f *fixture) next() agent.Result {
	f.clock.Advance(samplingMs)
	return f.loop.Tick(context.Background())
}

func TestScenarioErrorReadingExcludedFromAverage(t *testing.T) {
	f := newFixture(t, testConfig(), 0, nil)
	ctx := context.Background()

	f.sensor.set(400, 21)
	res := f.loop.Tick(ctx)
	require.True(t, res.Published)
	assert.Equal(t, metrics.ReasonFallback, res.Reason)

	f.sensor.set(420, 22)
	res = f.next()
	assert.False(t, res.Published, "Expected drift of 10 to stay within threshold")

	f.sensor.fail(sensor.ErrorCRC)
	res = f.next()
	assert.True(t, res.Fault)
	assert.False(t, res.Published)

	state := f.loop.State()
	assert.Equal(t, []int{400, 420}, state.Samples)
	assert.Equal(t, 410, state.Average)

	rec := f.transport.last(t)
	require.NotNil(t, rec.Error)
	assert.Equal(t, int(sensor.ErrorCRC), *rec.Error)
	require.NotNil(t, rec.CO2)
	assert.Equal(t, 410, *rec.CO2)
	assert.Nil(t, rec.Temp)
	assert.Equal(t, topic, f.transport.sent[len(f.transport.sent)-1].topic)
}

func TestFirstTickPublishesMeasurement(t *testing.T) {
	f := newFixture(t, testConfig(), 1000, nil)

	f.sensor.set(480, 19)
	res := f.loop.Tick(context.Background())

	assert.True(t, res.Sampled)
	assert.True(t, res.Published)

	rec := f.transport.last(t)
	require.NotNil(t, rec.CO2)
	require.NotNil(t, rec.Temp)
	assert.Equal(t, 480, *rec.CO2)
	assert.Equal(t, 19, *rec.Temp)
	assert.Nil(t, rec.Error)

	state := f.loop.State()
	assert.True(t, state.Published)
	assert.Equal(t, clock.Millis(1000), state.LastPublish)
}

func TestTickIsIdleWithinSamplingInterval(t *testing.T) {
	f := newFixture(t, testConfig(), 0, nil)
	ctx := context.Background()

	f.sensor.set(400, 20)
	f.loop.Tick(ctx)
	require.Equal(t, 1, f.sensor.reads)

	f.clock.Advance(samplingMs - 1)
	res := f.loop.Tick(ctx)
	assert.False(t, res.Sampled)
	assert.Equal(t, 1, f.sensor.reads)

	f.clock.Advance(1)
	res = f.loop.Tick(ctx)
	assert.True(t, res.Sampled)
	assert.Equal(t, 2, f.sensor.reads)
}

func TestChangeWithinThresholdIsSuppressed(t *testing.T) {
	cfg := testConfig()
	cfg.BufferSize = 1
	f := newFixture(t, cfg, 0, nil)

	f.sensor.set(500, 20)
	require.True(t, f.loop.Tick(context.Background()).Published)

	f.sensor.set(505, 20)
	res := f.next()
	assert.False(t, res.Published)
	assert.Equal(t, metrics.ReasonNone, res.Reason)

	f.sensor.set(512, 20)
	res = f.next()
	assert.True(t, res.Published)
	assert.Equal(t, metrics.ReasonChange, res.Reason)
	assert.Equal(t, 512, *f.transport.last(t).CO2)
}

func TestPublishRemembersBaseline(t *testing.T) {
	cfg := testConfig()
	cfg.BufferSize = 1
	f := newFixture(t, cfg, 0, nil)

	f.sensor.set(500, 20)
	f.loop.Tick(context.Background())

	f.sensor.set(600, 20)
	require.True(t, f.next().Published)

	res := f.next()
	assert.False(t, res.Published, "Expected no publish against the refreshed baseline")
	assert.Len(t, f.transport.sent, 2)
}

func TestChangePublishesBeforeFallback(t *testing.T) {
	f := newFixture(t, testConfig(), 0, nil)

	f.sensor.set(500, 20)
	f.loop.Tick(context.Background())
	f.next()

	f.sensor.set(560, 20)
	res := f.next()

	require.True(t, res.Published)
	assert.Equal(t, metrics.ReasonChange, res.Reason)
	assert.Equal(t, 520, *f.transport.last(t).CO2)
	assert.Equal(t, 2*samplingMs, f.loop.State().LastPublish)
}

func TestFallbackPublishesFlatSignal(t *testing.T) {
	f := newFixture(t, testConfig(), 0, nil)

	f.sensor.set(450, 20)
	f.loop.Tick(context.Background())
	for i := 0; i < 25; i++ {
		f.next()
	}

	// Published at 0, 60s and 120s
	require.Len(t, f.transport.sent, 3)
	for i := range f.transport.sent {
		assert.Equal(t, 450, *f.transport.record(t, i).CO2)
	}
	assert.Equal(t, clock.Millis(120000), f.loop.State().LastPublish)
}

func TestFallbackAndChangeInSameTickPublishOnce(t *testing.T) {
	cfg := testConfig()
	cfg.BufferSize = 1
	f := newFixture(t, cfg, 0, nil)
	ctx := context.Background()

	f.sensor.set(500, 20)
	f.loop.Tick(ctx)

	f.clock.Advance(clock.FromDuration(cfg.PublishInterval))
	f.sensor.set(700, 20)
	res := f.loop.Tick(ctx)

	assert.True(t, res.Published)
	assert.Len(t, f.transport.sent, 2)
}

func TestFallbackNeverPublishesEmptyBuffer(t *testing.T) {
	f := newFixture(t, testConfig(), 0, nil)

	f.sensor.fail(sensor.ErrorTimeout)
	res := f.loop.Tick(context.Background())

	assert.True(t, res.Fault)
	assert.False(t, res.Published)
	require.Len(t, f.transport.sent, 1)

	rec := f.transport.last(t)
	require.NotNil(t, rec.Error)
	assert.Equal(t, int(sensor.ErrorTimeout), *rec.Error)
	assert.Nil(t, rec.CO2, "Expected no average without samples")
	assert.False(t, f.loop.State().HasAverage)
}

func TestFaultDoesNotTouchPublishTimer(t *testing.T) {
	f := newFixture(t, testConfig(), 0, nil)
	ctx := context.Background()

	f.sensor.set(400, 20)
	f.loop.Tick(ctx)

	f.sensor.fail(sensor.ErrorMatch)
	f.next()

	state := f.loop.State()
	assert.Equal(t, clock.Millis(0), state.LastPublish)
	assert.Equal(t, samplingMs, state.LastSample, "Expected sample time to advance on error")

	// A failing sensor is still read only once per sampling interval
	f.clock.Advance(samplingMs - 1)
	f.loop.Tick(ctx)
	assert.Equal(t, 2, f.sensor.reads)
}

func TestTemperatureSurvivesFault(t *testing.T) {
	cfg := testConfig()
	cfg.BufferSize = 1
	f := newFixture(t, cfg, 0, nil)

	f.sensor.set(500, 23)
	f.loop.Tick(context.Background())

	f.sensor.fail(sensor.ErrorFilter)
	f.next()

	state := f.loop.State()
	assert.True(t, state.HasTemperature)
	assert.Equal(t, 23, state.Temperature)

	f.sensor.set(600, 24)
	f.next()
	assert.Equal(t, 24, *f.transport.last(t).Temp)
}

func TestSendFailureDoesNotCountAsPublish(t *testing.T) {
	f := newFixture(t, testConfig(), 0, nil)

	f.transport.down = true
	f.sensor.set(400, 20)
	res := f.loop.Tick(context.Background())

	assert.False(t, res.Published)
	assert.Equal(t, metrics.ReasonFallback, res.Reason)
	assert.False(t, f.loop.State().Published)

	// Still never published, so the next sample retries
	f.transport.down = false
	res = f.next()
	assert.True(t, res.Published)
	assert.Equal(t, samplingMs, f.loop.State().LastPublish)
}

func TestSendFailureKeepsBaseline(t *testing.T) {
	cfg := testConfig()
	cfg.BufferSize = 1
	f := newFixture(t, cfg, 0, nil)

	f.sensor.set(500, 20)
	f.loop.Tick(context.Background())

	f.transport.down = true
	f.sensor.set(600, 20)
	assert.False(t, f.next().Published)

	// The change is still pending against the old baseline
	f.transport.down = false
	res := f.next()
	assert.True(t, res.Published)
	assert.Equal(t, metrics.ReasonChange, res.Reason)
	assert.Equal(t, 2*samplingMs, f.loop.State().LastPublish)
}

func TestTimersSurviveClockWrap(t *testing.T) {
	start := clock.Millis(math.MaxUint32 - 2000)
	f := newFixture(t, testConfig(), start, nil)
	ctx := context.Background()

	f.sensor.set(450, 20)
	require.True(t, f.loop.Tick(ctx).Published)

	res := f.next()
	assert.True(t, res.Sampled, "Expected sampling to continue across the wrap")
	assert.False(t, res.Published)
	assert.Less(t, uint32(f.clock.Now()), uint32(start))

	for i := 0; i < 11; i++ {
		f.next()
	}
	assert.Len(t, f.transport.sent, 2, "Expected fallback publish one interval after the wrap")
}

func TestAnnounce(t *testing.T) {
	f := newFixture(t, testConfig(), 0, nil)

	require.NoError(t, f.loop.Announce(context.Background()))
	require.Len(t, f.transport.sent, 1)
	assert.Equal(t, topic, f.transport.sent[0].topic)
	assert.Equal(t, []byte(agent.StartedPayload), f.transport.sent[0].payload)

	f.transport.down = true
	assert.Error(t, f.loop.Announce(context.Background()))
}

func TestAnnounceUsesPlainText(t *testing.T) {
	tr := &textTransport{}
	loop, err := agent.New(testConfig(), &stubSensor{}, tr, telemetry.JSONCodec{}, nil, clock.NewManual(0), logger.Nop())
	require.NoError(t, err)

	require.NoError(t, loop.Announce(context.Background()))
	assert.Empty(t, tr.sent, "Expected the startup text to bypass the telemetry path")
	require.Len(t, tr.texts, 1)
	assert.Equal(t, message{topic: topic, payload: []byte(agent.StartedPayload)}, tr.texts[0])

	tr.down = true
	assert.Error(t, loop.Announce(context.Background()))
}

func TestSnapshotsRecorded(t *testing.T) {
	collector := &recordingCollector{}
	f := newFixture(t, testConfig(), 0, collector)

	f.sensor.set(400, 20)
	f.loop.Tick(context.Background())
	f.clock.Advance(1)
	f.loop.Tick(context.Background())
	f.sensor.set(410, 20)
	f.next()
	f.sensor.fail(sensor.ErrorFailed)
	f.next()

	require.Len(t, collector.snapshots, 3, "Expected one snapshot per sampling tick")

	first := collector.snapshots[0]
	assert.True(t, first.Publish.Published)
	assert.Equal(t, metrics.ReasonFallback, first.Publish.Reason)
	assert.Equal(t, 400, first.Reading.CO2)
	assert.True(t, first.Aggregate.HasAverage)

	second := collector.snapshots[1]
	assert.False(t, second.Publish.Published)
	assert.Equal(t, metrics.ReasonNone, second.Publish.Reason)
	assert.Equal(t, 2, second.Aggregate.Samples)

	third := collector.snapshots[2]
	assert.True(t, third.Publish.Fault)
	assert.False(t, third.Publish.Published)
	assert.Equal(t, metrics.ReasonNone, third.Publish.Reason)
	assert.Equal(t, int(sensor.ErrorFailed), third.Reading.SensorError)
	assert.Equal(t, 405, third.Aggregate.Average)
}

func TestSnapshotKeepsFaultAndFallbackOnSameTick(t *testing.T) {
	collector := &recordingCollector{}
	f := newFixture(t, testConfig(), 0, collector)

	f.sensor.set(400, 20)
	require.True(t, f.loop.Tick(context.Background()).Published)

	f.clock.Advance(clock.FromDuration(time.Minute))
	f.sensor.fail(sensor.ErrorTimeout)
	res := f.loop.Tick(context.Background())

	assert.True(t, res.Fault)
	assert.True(t, res.Published)
	assert.Equal(t, metrics.ReasonFallback, res.Reason)
	require.Len(t, f.transport.sent, 3)
	assert.True(t, f.transport.record(t, 1).IsFault())
	assert.False(t, f.transport.last(t).IsFault())

	require.Len(t, collector.snapshots, 2)
	snap := collector.snapshots[1]
	assert.True(t, snap.Publish.Fault, "Expected the fault to be kept in history")
	assert.True(t, snap.Publish.Published)
	assert.Equal(t, metrics.ReasonFallback, snap.Publish.Reason)
	assert.Equal(t, int(sensor.ErrorTimeout), snap.Reading.SensorError)
}

func TestNewRejectsInvalidConfig(t *testing.T) {
	cfg := testConfig()
	cfg.BufferSize = 0

	_, err := agent.New(cfg, &stubSensor{}, &recordingTransport{}, telemetry.JSONCodec{}, nil, clock.NewManual(0), logger.Nop())
	assert.Error(t, err)
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, agent.DefaultConfig().Validate())

	tests := []struct {
		name   string
		modify func(*agent.Config)
	}{
		{"empty topic", func(c *agent.Config) { c.Topic = "" }},
		{"zero sampling interval", func(c *agent.Config) { c.SamplingInterval = 0 }},
		{"zero publish interval", func(c *agent.Config) { c.PublishInterval = 0 }},
		{"publish interval beyond counter", func(c *agent.Config) { c.PublishInterval = 50 * 24 * time.Hour }},
		{"sampling interval beyond counter", func(c *agent.Config) { c.SamplingInterval = clock.MaxSpan + time.Millisecond }},
		{"empty buffer", func(c *agent.Config) { c.BufferSize = 0 }},
		{"negative threshold", func(c *agent.Config) { c.ChangeThreshold = -1 }},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := agent.DefaultConfig()
			tt.modify(&cfg)
			assert.Error(t, cfg.Validate())
		})
	}

	cfg := agent.DefaultConfig()
	cfg.PublishInterval = clock.MaxSpan
	assert.NoError(t, cfg.Validate(), "Expected the longest measurable interval to be accepted")
}
