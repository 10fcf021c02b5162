package config

import (
	"os"
	"strings"
	"time"

	"codeberg.org/mutker/co2mqtt/internal/agent"
	"codeberg.org/mutker/co2mqtt/internal/clock"
	"codeberg.org/mutker/co2mqtt/internal/errors"
	"codeberg.org/mutker/co2mqtt/internal/metrics"
	"codeberg.org/mutker/co2mqtt/internal/sensor"
	"codeberg.org/mutker/co2mqtt/internal/telemetry"
	"codeberg.org/mutker/co2mqtt/internal/transport"
	"github.com/google/uuid"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	appName           = "co2mqtt"
	envPrefix         = "CO2MQTT"
	envConfigPath     = envPrefix + "_CONFIG"
	DefaultConfigPath = "/etc/co2mqtt.toml"
	DefaultLogLevel   = LogLevelInfo
	clientIDPrefix    = "co2meter-"
)

type Config struct {
	LogLevel LogLevel

	SamplingInterval time.Duration
	PublishInterval  time.Duration
	TickInterval     time.Duration
	BufferSize       int
	ChangeThreshold  int

	SensorDriver          string
	SensorDevice          string
	SensorAutoCalibration bool
	SensorReadTimeout     time.Duration

	MQTTHost              string
	MQTTPort              int
	MQTTUsername          string
	MQTTPassword          string
	MQTTClientID          string
	MQTTTopic             string
	MQTTKeepAlive         int // seconds
	MQTTConnectTimeout    time.Duration
	MQTTReconnectCooldown time.Duration

	PayloadFormat string

	MetricsEnabled      bool
	MetricsDBPath       string
	MetricsBatchSize    int
	MetricsBatchTimeout time.Duration

	// ConfigFile is the file actually read, empty when none was found.
	ConfigFile string
}

// Load reads configuration from defaults, the TOML config file, CO2MQTT_*
// environment variables and command-line flags, in increasing precedence,
// and validates the result.
func Load(args []string) (*Config, error) {
	errFactory := errors.New()

	v := viper.New()
	setDefaults(v)

	fs := newFlagSet()
	if err := fs.Parse(args); err != nil {
		return nil, errFactory.Wrap(errors.ErrBindFlags, err)
	}
	for key, name := range flagKeys {
		if err := v.BindPFlag(key, fs.Lookup(name)); err != nil {
			return nil, errFactory.Wrap(errors.ErrBindFlags, err)
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	configFile, err := readConfigFile(v, fs)
	if err != nil {
		return nil, err
	}

	cfg := &Config{
		LogLevel: LogLevel(strings.ToLower(v.GetString("log_level"))),

		SamplingInterval: millis(v.GetInt("sampling_interval")),
		PublishInterval:  millis(v.GetInt("publish_interval")),
		TickInterval:     millis(v.GetInt("tick_interval")),
		BufferSize:       v.GetInt("buffer_size"),
		ChangeThreshold:  v.GetInt("change_threshold"),

		SensorDriver:          v.GetString("sensor.driver"),
		SensorDevice:          v.GetString("sensor.device"),
		SensorAutoCalibration: v.GetBool("sensor.auto_calibration"),
		SensorReadTimeout:     millis(v.GetInt("sensor.read_timeout")),

		MQTTHost:              v.GetString("mqtt.host"),
		MQTTPort:              v.GetInt("mqtt.port"),
		MQTTUsername:          v.GetString("mqtt.username"),
		MQTTPassword:          v.GetString("mqtt.password"),
		MQTTClientID:          v.GetString("mqtt.client_id"),
		MQTTTopic:             v.GetString("mqtt.topic"),
		MQTTKeepAlive:         v.GetInt("mqtt.keep_alive"),
		MQTTConnectTimeout:    millis(v.GetInt("mqtt.connect_timeout")),
		MQTTReconnectCooldown: millis(v.GetInt("mqtt.reconnect_cooldown")),

		PayloadFormat: strings.ToLower(v.GetString("payload.format")),

		MetricsEnabled:      v.GetBool("metrics.enabled"),
		MetricsDBPath:       v.GetString("metrics.db_path"),
		MetricsBatchSize:    v.GetInt("metrics.batch_size"),
		MetricsBatchTimeout: time.Duration(v.GetInt("metrics.batch_timeout")) * time.Second,

		ConfigFile: configFile,
	}

	if cfg.MQTTClientID == "" {
		cfg.MQTTClientID = DefaultClientID()
	}

	if err := cfg.Validate(); err != nil {
		return nil, errFactory.Wrap(errors.ErrInvalidConfig, err)
	}

	return cfg, nil
}

// DefaultClientID returns a fresh "co2meter-xxxxxxxx" identifier.
func DefaultClientID() string {
	return clientIDPrefix + uuid.NewString()[:8]
}

// Validate checks every field and returns the first ValidationError found.
func (c *Config) Validate() error {
	if !c.LogLevel.IsValid() {
		return invalid("log_level", c.LogLevel, "must be one of debug, info, warning, error")
	}

	durations := []struct {
		field string
		value time.Duration
	}{
		{"sampling_interval", c.SamplingInterval},
		{"publish_interval", c.PublishInterval},
		{"tick_interval", c.TickInterval},
		{"mqtt.connect_timeout", c.MQTTConnectTimeout},
		{"mqtt.reconnect_cooldown", c.MQTTReconnectCooldown},
	}
	for _, d := range durations {
		if d.value <= 0 {
			return invalid(d.field, d.value, "must be positive")
		}
		if d.value > clock.MaxSpan {
			return invalid(d.field, d.value, "must be below 4294967295 ms")
		}
	}

	if c.BufferSize < 1 {
		return invalid("buffer_size", c.BufferSize, "must be at least 1")
	}
	if c.ChangeThreshold < 0 {
		return invalid("change_threshold", c.ChangeThreshold, "must not be negative")
	}

	switch c.SensorDriver {
	case sensor.DriverMHZ19:
		if c.SensorDevice == "" {
			return invalid("sensor.device", c.SensorDevice, "must not be empty")
		}
		if c.SensorReadTimeout <= 0 {
			return invalid("sensor.read_timeout", c.SensorReadTimeout, "must be positive")
		}
	case sensor.DriverSimulated:
	default:
		return invalid("sensor.driver", c.SensorDriver, "must be mhz19 or simulated")
	}

	if c.MQTTHost == "" {
		return invalid("mqtt.host", c.MQTTHost, "must not be empty")
	}
	if c.MQTTPort < 1 || c.MQTTPort > 65535 {
		return invalid("mqtt.port", c.MQTTPort, "must be between 1 and 65535")
	}
	if c.MQTTTopic == "" {
		return invalid("mqtt.topic", c.MQTTTopic, "must not be empty")
	}
	if len(c.MQTTClientID) > 23 {
		return invalid("mqtt.client_id", c.MQTTClientID, "must be at most 23 characters")
	}
	if c.MQTTKeepAlive < 0 || c.MQTTKeepAlive > 65535 {
		return invalid("mqtt.keep_alive", c.MQTTKeepAlive, "must be between 0 and 65535")
	}

	if _, err := telemetry.NewCodec(c.PayloadFormat); err != nil {
		return invalid("payload.format", c.PayloadFormat, "must be json or cbor")
	}

	if c.MetricsEnabled {
		if c.MetricsDBPath == "" {
			return invalid("metrics.db_path", c.MetricsDBPath, "must not be empty when metrics are enabled")
		}
		if c.MetricsBatchSize < 1 {
			return invalid("metrics.batch_size", c.MetricsBatchSize, "must be at least 1")
		}
		if c.MetricsBatchTimeout < 0 {
			return invalid("metrics.batch_timeout", c.MetricsBatchTimeout, "must not be negative")
		}
	}

	return nil
}

func (c *Config) Agent() agent.Config {
	return agent.Config{
		Topic:            c.MQTTTopic,
		SamplingInterval: c.SamplingInterval,
		PublishInterval:  c.PublishInterval,
		BufferSize:       c.BufferSize,
		ChangeThreshold:  c.ChangeThreshold,
	}
}

func (c *Config) Sensor() sensor.Config {
	return sensor.Config{
		Driver:          c.SensorDriver,
		Device:          c.SensorDevice,
		AutoCalibration: c.SensorAutoCalibration,
		ReadTimeout:     c.SensorReadTimeout,
	}
}

// Transport returns the MQTT settings. ContentType is left for the caller,
// which knows the codec in use.
func (c *Config) Transport() transport.Config {
	return transport.Config{
		Host:              c.MQTTHost,
		Port:              c.MQTTPort,
		ClientID:          c.MQTTClientID,
		Username:          c.MQTTUsername,
		Password:          c.MQTTPassword,
		Topic:             c.MQTTTopic,
		KeepAlive:         uint16(c.MQTTKeepAlive),
		ConnectTimeout:    c.MQTTConnectTimeout,
		ReconnectCooldown: c.MQTTReconnectCooldown,
	}
}

func (c *Config) Metrics() metrics.Config {
	return metrics.Config{
		DBPath:       c.MetricsDBPath,
		Enabled:      c.MetricsEnabled,
		BatchSize:    c.MetricsBatchSize,
		BatchTimeout: c.MetricsBatchTimeout,
	}
}

func setDefaults(v *viper.Viper) {
	agentDefaults := agent.DefaultConfig()
	sensorDefaults := sensor.DefaultConfig()
	mqttDefaults := transport.DefaultConfig()
	metricsDefaults := metrics.DefaultConfig()

	v.SetDefault("log_level", string(DefaultLogLevel))

	v.SetDefault("sampling_interval", agentDefaults.SamplingInterval.Milliseconds())
	v.SetDefault("publish_interval", agentDefaults.PublishInterval.Milliseconds())
	v.SetDefault("tick_interval", 50)
	v.SetDefault("buffer_size", agentDefaults.BufferSize)
	v.SetDefault("change_threshold", agentDefaults.ChangeThreshold)

	v.SetDefault("sensor.driver", sensorDefaults.Driver)
	v.SetDefault("sensor.device", sensorDefaults.Device)
	v.SetDefault("sensor.auto_calibration", sensorDefaults.AutoCalibration)
	v.SetDefault("sensor.read_timeout", sensorDefaults.ReadTimeout.Milliseconds())

	v.SetDefault("mqtt.host", mqttDefaults.Host)
	v.SetDefault("mqtt.port", mqttDefaults.Port)
	v.SetDefault("mqtt.username", "")
	v.SetDefault("mqtt.password", "")
	v.SetDefault("mqtt.client_id", "")
	v.SetDefault("mqtt.topic", mqttDefaults.Topic)
	v.SetDefault("mqtt.keep_alive", int(mqttDefaults.KeepAlive))
	v.SetDefault("mqtt.connect_timeout", mqttDefaults.ConnectTimeout.Milliseconds())
	v.SetDefault("mqtt.reconnect_cooldown", mqttDefaults.ReconnectCooldown.Milliseconds())

	v.SetDefault("payload.format", "json")

	v.SetDefault("metrics.enabled", metricsDefaults.Enabled)
	v.SetDefault("metrics.db_path", metricsDefaults.DBPath)
	v.SetDefault("metrics.batch_size", metricsDefaults.BatchSize)
	v.SetDefault("metrics.batch_timeout", int(metricsDefaults.BatchTimeout/time.Second))
}

// flagKeys maps config keys to the command-line flags overriding them.
var flagKeys = map[string]string{
	"log_level":         "log-level",
	"sampling_interval": "sampling-interval",
	"publish_interval":  "publish-interval",
	"buffer_size":       "buffer-size",
	"change_threshold":  "change-threshold",
	"sensor.driver":     "sensor",
	"sensor.device":     "device",
	"mqtt.host":         "mqtt-host",
	"mqtt.port":         "mqtt-port",
	"mqtt.topic":        "mqtt-topic",
	"mqtt.client_id":    "mqtt-client-id",
	"payload.format":    "payload-format",
	"metrics.enabled":   "metrics",
	"metrics.db_path":   "metrics-db",
}

func newFlagSet() *pflag.FlagSet {
	fs := pflag.NewFlagSet(appName, pflag.ContinueOnError)

	fs.StringP("config", "c", "", "Path to config file (default "+DefaultConfigPath+")")
	fs.StringP("log-level", "l", string(DefaultLogLevel), "Log level (debug, info, warning, error)")
	fs.Int("sampling-interval", 0, "Milliseconds between sensor reads")
	fs.Int("publish-interval", 0, "Maximum milliseconds between publishes")
	fs.Int("buffer-size", 0, "Number of samples in the rolling average")
	fs.Int("change-threshold", 0, "CO2 change in ppm that triggers an early publish")
	fs.String("sensor", "", "Sensor driver (mhz19, simulated)")
	fs.String("device", "", "Serial device of the sensor")
	fs.String("mqtt-host", "", "MQTT broker host")
	fs.Int("mqtt-port", 0, "MQTT broker port")
	fs.String("mqtt-topic", "", "MQTT topic to publish to")
	fs.String("mqtt-client-id", "", "MQTT client identifier")
	fs.String("payload-format", "", "Payload encoding (json, cbor)")
	fs.Bool("metrics", false, "Record sampling history to SQLite")
	fs.String("metrics-db", "", "Path to the metrics database")

	return fs
}

// readConfigFile loads the TOML file named by --config or CO2MQTT_CONFIG, or
// the default path if it exists. An explicitly named file must be readable.
func readConfigFile(v *viper.Viper, fs *pflag.FlagSet) (string, error) {
	errFactory := errors.New()

	path, _ := fs.GetString("config")
	if path == "" {
		path = os.Getenv(envConfigPath)
	}

	explicit := path != ""
	if !explicit {
		path = DefaultConfigPath
		if _, err := os.Stat(path); err != nil {
			return "", nil
		}
	}

	v.SetConfigFile(path)
	v.SetConfigType("toml")
	if err := v.ReadInConfig(); err != nil {
		return "", errFactory.WithData(errors.ErrReadConfig, struct {
			Path  string
			Error string
		}{
			Path:  path,
			Error: err.Error(),
		})
	}

	return path, nil
}

func millis(ms int) time.Duration {
	return time.Duration(ms) * time.Millisecond
}
