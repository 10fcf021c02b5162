package transport

import (
	"net"
	"strconv"
	"time"

	"codeberg.org/mutker/co2mqtt/internal/errors"
)

const (
	defaultHost              = "localhost"
	defaultPort              = 1883
	defaultTopic             = "wifi2mqtt/co2meter"
	defaultKeepAlive         = 30
	defaultConnectTimeout    = 5 * time.Second
	defaultReconnectCooldown = time.Minute

	// MQTT 5 caps client identifiers at 23 bytes for guaranteed acceptance.
	maxClientIDLength = 23
)

type Config struct {
	Host              string
	Port              int
	ClientID          string
	Username          string
	Password          string
	Topic             string
	KeepAlive         uint16 // seconds
	ConnectTimeout    time.Duration
	ReconnectCooldown time.Duration
	ContentType       string
}

func DefaultConfig() Config {
	return Config{
		Host:              defaultHost,
		Port:              defaultPort,
		Topic:             defaultTopic,
		KeepAlive:         defaultKeepAlive,
		ConnectTimeout:    defaultConnectTimeout,
		ReconnectCooldown: defaultReconnectCooldown,
	}
}

func (c Config) Validate() error {
	errFactory := errors.New()

	if c.Host == "" {
		return errFactory.WithMessage(ErrInvalidConfig, "mqtt host is empty")
	}
	if c.Port < 1 || c.Port > 65535 {
		return errFactory.WithData(ErrInvalidConfig, struct {
			Field string
			Value int
		}{
			Field: "mqtt.port",
			Value: c.Port,
		})
	}
	if c.Topic == "" {
		return errFactory.WithMessage(ErrInvalidConfig, "mqtt topic is empty")
	}
	if c.ClientID == "" || len(c.ClientID) > maxClientIDLength {
		return errFactory.WithData(ErrInvalidConfig, struct {
			Field string
			Value string
		}{
			Field: "mqtt.client_id",
			Value: c.ClientID,
		})
	}
	if c.ConnectTimeout <= 0 || c.ReconnectCooldown <= 0 {
		return errFactory.New(errors.ErrInvalidInterval)
	}

	return nil
}

// Addr returns host:port for dialing.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Credentials returns the configured login.
func (c Config) Credentials() Credentials {
	return Credentials{Username: c.Username, Password: c.Password}
}
