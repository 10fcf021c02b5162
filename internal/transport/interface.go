package transport

import "context"

// Transport is the outbound telemetry sink. Send is fire-and-forget: a nil
// error only means the message was accepted for delivery.
type Transport interface {
	Connect(ctx context.Context, creds Credentials) error
	IsConnected() bool
	Send(ctx context.Context, topic string, payload []byte) error
	Disconnect() error
}

// TextSender is implemented by transports that can label a payload as plain
// text instead of the configured telemetry content type.
type TextSender interface {
	SendText(ctx context.Context, topic, text string) error
}

// Credentials authenticate against the sink. Empty fields are not sent.
type Credentials struct {
	Username string
	Password string
}
