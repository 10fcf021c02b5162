package transport

import (
	"context"
	"fmt"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"codeberg.org/mutker/co2mqtt/internal/errors"
	"codeberg.org/mutker/co2mqtt/internal/logger"
	"github.com/eclipse/paho.golang/paho"
)

const (
	disconnectNormal = 0x00
	textContentType  = "text/plain"
)

// MQTT publishes over MQTT v5 at QoS 0. Each Connect dials a fresh TCP
// connection and starts a clean session; nothing is queued while offline.
type MQTT struct {
	addr           string
	clientID       string
	keepAlive      uint16
	connectTimeout time.Duration
	contentType    string
	log            logger.Logger

	mu        sync.Mutex
	client    *paho.Client
	connected atomic.Bool
}

func NewMQTT(cfg Config, log logger.Logger) *MQTT {
	return &MQTT{
		addr:           cfg.Addr(),
		clientID:       cfg.ClientID,
		keepAlive:      cfg.KeepAlive,
		connectTimeout: cfg.ConnectTimeout,
		contentType:    cfg.ContentType,
		log:            log,
	}
}

// Connect dials the broker and performs the CONNECT handshake, bounded by the
// configured connect timeout.
func (m *MQTT) Connect(ctx context.Context, creds Credentials) error {
	errFactory := errors.New()

	m.mu.Lock()
	defer m.mu.Unlock()

	m.connected.Store(false)
	m.client = nil

	ctx, cancel := context.WithTimeout(ctx, m.connectTimeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(ctx, "tcp", m.addr)
	if err != nil {
		return errFactory.Wrap(ErrDialFailed, err)
	}

	client := paho.NewClient(paho.ClientConfig{
		ClientID: m.clientID,
		Conn:     conn,
		OnClientError: func(err error) {
			m.lost(err)
		},
		OnServerDisconnect: func(d *paho.Disconnect) {
			m.lost(fmt.Errorf("server sent disconnect with reason code 0x%02x", d.ReasonCode))
		},
	})

	cp := &paho.Connect{
		ClientID:   m.clientID,
		KeepAlive:  m.keepAlive,
		CleanStart: true,
	}
	if creds.Username != "" {
		cp.Username = creds.Username
		cp.UsernameFlag = true
	}
	if creds.Password != "" {
		cp.Password = []byte(creds.Password)
		cp.PasswordFlag = true
	}

	connack, err := client.Connect(ctx, cp)
	if err != nil {
		_ = conn.Close()
		if connack != nil {
			return errFactory.WithData(ErrConnectRefused, struct {
				ReasonCode byte
				Reason     string
			}{
				ReasonCode: connack.ReasonCode,
				Reason:     err.Error(),
			})
		}
		return errFactory.Wrap(ErrConnectRefused, err)
	}

	m.client = client
	m.connected.Store(true)

	m.log.Debug().
		Str("addr", m.addr).
		Str("client_id", m.clientID).
		Msg("MQTT session established")

	return nil
}

func (m *MQTT) IsConnected() bool {
	return m.connected.Load()
}

// Send publishes payload on topic, labelled with the configured content
// type. It fails fast when not connected.
func (m *MQTT) Send(ctx context.Context, topic string, payload []byte) error {
	return m.publish(ctx, topic, payload, m.contentType)
}

// SendText publishes text labelled text/plain regardless of the payload
// encoding in use.
func (m *MQTT) SendText(ctx context.Context, topic, text string) error {
	return m.publish(ctx, topic, []byte(text), textContentType)
}

func (m *MQTT) publish(ctx context.Context, topic string, payload []byte, contentType string) error {
	errFactory := errors.New()

	m.mu.Lock()
	client := m.client
	m.mu.Unlock()

	if client == nil || !m.connected.Load() {
		return errFactory.New(ErrNotConnected)
	}

	pub := &paho.Publish{
		QoS:     0,
		Topic:   topic,
		Payload: payload,
	}
	if contentType != "" {
		pub.Properties = &paho.PublishProperties{ContentType: contentType}
	}

	if _, err := client.Publish(ctx, pub); err != nil {
		m.lost(err)
		return errFactory.Wrap(ErrPublishFailed, err)
	}

	return nil
}

// Disconnect sends a normal DISCONNECT if a session is up.
func (m *MQTT) Disconnect() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	client := m.client
	m.client = nil
	wasConnected := m.connected.Swap(false)

	if client == nil || !wasConnected {
		return nil
	}

	if err := client.Disconnect(&paho.Disconnect{ReasonCode: disconnectNormal}); err != nil {
		return errors.New().Wrap(ErrDisconnect, err)
	}

	return nil
}

func (m *MQTT) lost(err error) {
	if m.connected.Swap(false) {
		m.log.Warn().Err(err).Msg("MQTT connection lost")
	}
}
