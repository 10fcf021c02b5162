package metrics

import (
	"context"
	"time"
)

// Collector records one snapshot per sampling tick.
type Collector interface {
	Record(ctx context.Context, snapshot *Snapshot) error
	Close() error
}

// Repository defines the interface for snapshot storage
type Repository interface {
	Record(snapshot *Snapshot) error
	Close() error
}

// Publish reasons
const (
	ReasonNone     = ""
	ReasonFallback = "fallback"
	ReasonChange   = "change"
)

// Snapshot captures what one sampling tick saw and did.
type Snapshot struct {
	Timestamp time.Time
	Reading   ReadingMetrics
	Aggregate AggregateMetrics
	Publish   PublishMetrics
}

type ReadingMetrics struct {
	CO2         int
	Temperature int
	SensorError int
}

type AggregateMetrics struct {
	Average    int
	HasAverage bool
	Samples    int
}

// PublishMetrics records what the tick sent. Published and Reason describe
// the measurement; Fault is set when a diagnostic record went out.
type PublishMetrics struct {
	Published bool
	Reason    string
	Fault     bool
}
