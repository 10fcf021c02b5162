package transport

import (
	"context"

	"codeberg.org/mutker/co2mqtt/internal/clock"
	"codeberg.org/mutker/co2mqtt/internal/logger"
)

// ConnectionState is the supervisor's view of the link.
type ConnectionState struct {
	Connected   bool
	Attempted   bool
	LastAttempt clock.Millis
	Attempts    int
}

// Supervisor keeps a Transport connected without hammering an unreachable
// sink: at most one connect attempt per cooldown window. It is meant to be
// polled from the same loop that drives sampling and is not safe for
// concurrent use.
type Supervisor struct {
	transport Transport
	clock     clock.Clock
	creds     Credentials
	cooldown  clock.Millis
	log       logger.Logger

	attempted   bool
	lastAttempt clock.Millis
	attempts    int
	onConnect   func(first bool)
	connects    int
}

func NewSupervisor(t Transport, c clock.Clock, creds Credentials, cooldown clock.Millis, log logger.Logger) *Supervisor {
	return &Supervisor{
		transport: t,
		clock:     c,
		creds:     creds,
		cooldown:  cooldown,
		log:       log,
	}
}

// OnConnect registers fn to run after every successful connect. first is
// true only for the initial connection of the process.
func (s *Supervisor) OnConnect(fn func(first bool)) {
	s.onConnect = fn
}

// EnsureConnected returns true if the transport is connected after the call.
// When disconnected it tries once, unless the previous attempt was less than
// one cooldown ago. The very first attempt is never deferred.
func (s *Supervisor) EnsureConnected(ctx context.Context) bool {
	if s.transport.IsConnected() {
		return true
	}

	now := s.clock.Now()
	if s.attempted && now.Since(s.lastAttempt) < s.cooldown {
		return false
	}

	s.attempted = true
	s.lastAttempt = now
	s.attempts++

	s.log.Info().Int("attempt", s.attempts).Msg("Connecting to MQTT broker...")
	if err := s.transport.Connect(ctx, s.creds); err != nil {
		s.log.Warn().
			Err(err).
			Dur("retry_in", s.cooldown.Duration()).
			Msg("MQTT connect failed")
		return false
	}

	s.connects++
	s.log.Info().Msg("Connected to MQTT broker")
	if s.onConnect != nil {
		s.onConnect(s.connects == 1)
	}

	return true
}

// State returns a snapshot of the connection state.
func (s *Supervisor) State() ConnectionState {
	return ConnectionState{
		Connected:   s.transport.IsConnected(),
		Attempted:   s.attempted,
		LastAttempt: s.lastAttempt,
		Attempts:    s.attempts,
	}
}
