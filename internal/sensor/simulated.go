package sensor

import (
	"context"
	"math/rand"
	"sync"
)

const (
	simulatedBasePPM     = 600
	simulatedMinPPM      = 400
	simulatedMaxPPM      = 5000
	simulatedStep        = 25
	simulatedTemperature = 22
)

// Simulated is a Sensor that random-walks around a base concentration. It
// lets the agent run end to end without hardware.
type Simulated struct {
	mu        sync.Mutex
	rng       *rand.Rand
	ppm       int
	faultRate float64
}

// SimulatedOption configures a Simulated sensor.
type SimulatedOption func(*Simulated)

// WithFaultRate makes a fraction of reads fail with ErrorTimeout.
func WithFaultRate(rate float64) SimulatedOption {
	return func(s *Simulated) {
		s.faultRate = rate
	}
}

// WithStartPPM sets the first concentration of the walk.
func WithStartPPM(ppm int) SimulatedOption {
	return func(s *Simulated) {
		s.ppm = ppm
	}
}

func NewSimulated(seed int64, opts ...SimulatedOption) *Simulated {
	s := &Simulated{
		//nolint:gosec // G404: simulation, not security sensitive
		rng: rand.New(rand.NewSource(seed)),
		ppm: simulatedBasePPM,
	}
	for _, opt := range opts {
		opt(s)
	}

	return s
}

func (s *Simulated) Read(_ context.Context) Reading {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.faultRate > 0 && s.rng.Float64() < s.faultRate {
		return Reading{Err: ErrorTimeout}
	}

	step := s.rng.Intn(2*simulatedStep+1) - simulatedStep
	// Drift back toward the base so the walk stays plausible.
	if s.ppm > simulatedBasePPM {
		step--
	} else if s.ppm < simulatedBasePPM {
		step++
	}
	s.ppm = min(max(s.ppm+step, simulatedMinPPM), simulatedMaxPPM)

	return Reading{
		CO2:         s.ppm,
		Temperature: simulatedTemperature + s.rng.Intn(3) - 1,
	}
}

func (*Simulated) Close() error {
	return nil
}
