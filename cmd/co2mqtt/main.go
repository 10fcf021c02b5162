package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"codeberg.org/mutker/co2mqtt/internal/agent"
	"codeberg.org/mutker/co2mqtt/internal/clock"
	"codeberg.org/mutker/co2mqtt/internal/config"
	"codeberg.org/mutker/co2mqtt/internal/errors"
	"codeberg.org/mutker/co2mqtt/internal/logger"
	"codeberg.org/mutker/co2mqtt/internal/metrics"
	"codeberg.org/mutker/co2mqtt/internal/pid"
	"codeberg.org/mutker/co2mqtt/internal/sensor"
	"codeberg.org/mutker/co2mqtt/internal/telemetry"
	"codeberg.org/mutker/co2mqtt/internal/transport"
)

type app struct {
	cfg        *config.Config
	log        logger.Logger
	sensor     sensor.Sensor
	transport  transport.Transport
	supervisor *transport.Supervisor
	metrics    metrics.Collector
	loop       *agent.Loop
}

func main() {
	cfg, err := config.Load(os.Args[1:])
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.LogLevel.Level(), logger.IsService())
	logger.Debug().
		Str("config_file", cfg.ConfigFile).
		Str("log_level", cfg.LogLevel.String()).
		Msg("Config loaded")

	pidPath := pid.DefaultPath()
	if err := pid.Write(pidPath); err != nil {
		var appErr errors.Error
		if errors.As(err, &appErr) {
			logger.FatalWithCode(appErr).Msg("Failed to write PID file")
		}
		logger.Fatal().Err(err).Msg("Failed to write PID file")
	}

	a, err := newApp(cfg, logger.Default())
	if err != nil {
		_ = pid.Remove(pidPath)
		logger.Fatal().Err(err).Msg("Failed to initialize")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go handleSignals(cancel)

	a.run(ctx)

	a.cleanup()
	if err := pid.Remove(pidPath); err != nil {
		logger.Error().Err(err).Msg("Failed to remove PID file")
	}
	logger.Info().Msg("Exiting...")
}

func newApp(cfg *config.Config, log logger.Logger) (*app, error) {
	errFactory := errors.New()

	codec, err := telemetry.NewCodec(cfg.PayloadFormat)
	if err != nil {
		return nil, errFactory.Wrap(errors.ErrInitApp, err)
	}

	tc := cfg.Transport()
	tc.ContentType = codec.ContentType()
	if err := tc.Validate(); err != nil {
		return nil, errFactory.Wrap(errors.ErrInitApp, err)
	}

	collector, err := metrics.NewService(cfg.Metrics(), log)
	if err != nil {
		return nil, errFactory.Wrap(errors.ErrInitMetrics, err)
	}

	s, err := sensor.Open(cfg.Sensor(), log)
	if err != nil {
		_ = collector.Close()
		return nil, errFactory.Wrap(errors.ErrInitSensor, err)
	}

	clk := clock.NewSystem()
	mqtt := transport.NewMQTT(tc, log)

	loop, err := agent.New(cfg.Agent(), s, mqtt, codec, collector, clk, log)
	if err != nil {
		_ = s.Close()
		_ = collector.Close()
		return nil, errFactory.Wrap(errors.ErrInitApp, err)
	}

	supervisor := transport.NewSupervisor(mqtt, clk, tc.Credentials(), clock.FromDuration(tc.ReconnectCooldown), log)

	log.Info().
		Str("broker", tc.Addr()).
		Str("client_id", tc.ClientID).
		Str("topic", tc.Topic).
		Str("sensor", cfg.SensorDriver).
		Str("payload", codec.ContentType()).
		Dur("sampling_interval", cfg.SamplingInterval).
		Dur("publish_interval", cfg.PublishInterval).
		Int("buffer_size", cfg.BufferSize).
		Int("change_threshold", cfg.ChangeThreshold).
		Msg("Initialized")

	return &app{
		cfg:        cfg,
		log:        log,
		sensor:     s,
		transport:  mqtt,
		supervisor: supervisor,
		metrics:    collector,
		loop:       loop,
	}, nil
}

func (a *app) run(ctx context.Context) {
	a.supervisor.OnConnect(func(first bool) {
		if !first {
			return
		}
		if err := a.loop.Announce(ctx); err != nil {
			a.log.Warn().Err(err).Msg("Failed to announce startup")
		}
	})

	ticker := time.NewTicker(a.cfg.TickInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			a.supervisor.EnsureConnected(ctx)
			a.loop.Tick(ctx)
		}
	}
}

func handleSignals(cancel context.CancelFunc) {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	<-sigs
	logger.Info().Msg("Received termination signal.")
	cancel()
}

func (a *app) cleanup() {
	if a.transport.IsConnected() {
		if err := a.transport.Disconnect(); err != nil {
			a.log.Error().Err(err).Msg("Failed to disconnect from MQTT broker")
		}
	}
	if err := a.sensor.Close(); err != nil {
		a.log.ErrorWithCode(errors.New().Wrap(errors.ErrCloseSensor, err)).Msg("Failed to close sensor")
	}
	if err := a.metrics.Close(); err != nil {
		a.log.Error().Err(err).Msg("Failed to close metrics")
	}
}
