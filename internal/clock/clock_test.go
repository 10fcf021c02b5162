package clock_test

import (
	"math"
	"testing"
	"time"

	"codeberg.org/mutker/co2mqtt/internal/clock"
	"github.com/stretchr/testify/assert"
)

func TestSinceAcrossWrap(t *testing.T) {
	before := clock.Millis(math.MaxUint32 - 99)
	after := before + 200

	assert.Equal(t, clock.Millis(100), after, "Expected counter to wrap")
	assert.Equal(t, clock.Millis(200), after.Since(before), "Expected wrap-safe elapsed time")
}

func TestSinceNoWrap(t *testing.T) {
	assert.Equal(t, clock.Millis(5000), clock.Millis(15000).Since(10000))
	assert.Equal(t, clock.Millis(0), clock.Millis(42).Since(42))
}

func TestManualAdvanceWraps(t *testing.T) {
	c := clock.NewManual(math.MaxUint32)
	start := c.Now()

	c.Advance(1)
	assert.Equal(t, clock.Millis(0), c.Now())
	assert.Equal(t, clock.Millis(1), c.Now().Since(start))

	c.Set(1234)
	assert.Equal(t, clock.Millis(1234), c.Now())
}

func TestFromDuration(t *testing.T) {
	assert.Equal(t, clock.Millis(60000), clock.FromDuration(time.Minute))
	assert.Equal(t, clock.Millis(0), clock.FromDuration(-time.Second))
	assert.Equal(t, clock.Millis(math.MaxUint32), clock.FromDuration(100*24*time.Hour))
	assert.Equal(t, 5*time.Second, clock.Millis(5000).Duration())
}

func TestMaxSpanIsMeasurable(t *testing.T) {
	start := clock.Millis(1000)
	end := start + clock.FromDuration(clock.MaxSpan)

	assert.Equal(t, clock.FromDuration(clock.MaxSpan), end.Since(start))
	assert.Less(t, uint32(clock.FromDuration(clock.MaxSpan)), uint32(math.MaxUint32))
}

func TestSystemIsMonotonic(t *testing.T) {
	c := clock.NewSystem()
	a := c.Now()
	time.Sleep(5 * time.Millisecond)
	b := c.Now()

	assert.GreaterOrEqual(t, uint32(b.Since(a)), uint32(5))
}
