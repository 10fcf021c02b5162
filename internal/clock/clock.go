// Package clock provides the 32-bit millisecond monotonic time base used
// for all interval math. Comparisons go through Since, which subtracts in
// uint32 arithmetic so a counter wrap after ~49.7 days never stalls a timer.
package clock

import (
	"math"
	"sync"
	"time"
)

// Millis is a monotonic millisecond timestamp that wraps at 2^32.
type Millis uint32

// MaxSpan is the longest interval Since can measure before the counter wraps
// onto itself. Longer intervals cannot be timed.
const MaxSpan = time.Duration(math.MaxUint32-1) * time.Millisecond

// Since returns the time elapsed from earlier to m. Correct across a single
// wrap of the counter.
func (m Millis) Since(earlier Millis) Millis {
	return m - earlier
}

// Duration converts m, read as an elapsed span, into a time.Duration.
func (m Millis) Duration() time.Duration {
	return time.Duration(m) * time.Millisecond
}

// FromDuration truncates d to whole milliseconds. Spans beyond the 32-bit
// range saturate.
func FromDuration(d time.Duration) Millis {
	ms := d.Milliseconds()
	if ms < 0 {
		return 0
	}
	if ms > int64(^uint32(0)) {
		return Millis(^uint32(0))
	}

	return Millis(ms)
}

// Clock abstracts the time source so components can be driven
// deterministically in tests.
type Clock interface {
	Now() Millis
}

// System counts milliseconds since it was created using the runtime's
// monotonic clock.
type System struct {
	start time.Time
}

func NewSystem() *System {
	return &System{start: time.Now()}
}

func (s *System) Now() Millis {
	//nolint:gosec // G115: 32-bit wrap
	return Millis(uint32(time.Since(s.start).Milliseconds()))
}

// Manual is a Clock that only moves when told to.
type Manual struct {
	mu  sync.Mutex
	now Millis
}

func NewManual(start Millis) *Manual {
	return &Manual{now: start}
}

func (m *Manual) Now() Millis {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Set jumps the clock to t.
func (m *Manual) Set(t Millis) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = t
}

// Advance moves the clock forward by d, wrapping like the real counter.
func (m *Manual) Advance(d Millis) Millis {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now += d
	return m.now
}
