// Package change flags when a fixed set of tracked values has drifted past a
// threshold since the last remembered baseline.
package change

import "fmt"

// Value is the set of types a Detector can track.
type Value interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 |
		~float32 | ~float64
}

// Source supplies the current tracked values on demand. ok is false while no
// current values exist (for example before the first sample).
type Source[V Value] interface {
	TrackedValues() (values []V, ok bool)
}

// SourceFunc adapts a plain function to Source.
type SourceFunc[V Value] func() ([]V, bool)

func (f SourceFunc[V]) TrackedValues() ([]V, bool) {
	return f()
}

// ChangeFunc receives the values that triggered a change and the baseline
// they were compared against. Both slices are copies.
type ChangeFunc[V Value] func(current, baseline []V)

// Detector compares the values pulled from its Source against a remembered
// baseline. The number of tracked values is fixed at construction.
//
// A Detector is not safe for concurrent use.
type Detector[V Value] struct {
	size        int
	threshold   V
	source      Source[V]
	onChange    ChangeFunc[V]
	baseline    []V
	hasBaseline bool
}

// New returns a Detector tracking size values. It panics if size < 1.
func New[V Value](size int) *Detector[V] {
	if size < 1 {
		panic(fmt.Sprintf("change: invalid tracked value count %d", size))
	}

	return &Detector[V]{
		size:     size,
		baseline: make([]V, size),
	}
}

// SetThreshold sets the largest per-value drift still treated as unchanged.
func (d *Detector[V]) SetThreshold(threshold V) {
	d.threshold = threshold
}

// SetValueSource registers where current values are pulled from.
func (d *Detector[V]) SetValueSource(src Source[V]) {
	d.source = src
}

// OnChange registers fn to be called once for every Poll that reports a
// change.
func (d *Detector[V]) OnChange(fn ChangeFunc[V]) {
	d.onChange = fn
}

// Size returns the number of tracked values.
func (d *Detector[V]) Size() int {
	return d.size
}

// Baseline returns a copy of the remembered values, and false if nothing has
// been remembered yet.
func (d *Detector[V]) Baseline() ([]V, bool) {
	if !d.hasBaseline {
		return nil, false
	}

	return append([]V(nil), d.baseline...), true
}

// Remember replaces the baseline with the current values in one step. It
// returns false, leaving the baseline untouched, when the source has no
// current values.
func (d *Detector[V]) Remember() bool {
	current, ok := d.current()
	if !ok {
		return false
	}

	copy(d.baseline, current)
	d.hasBaseline = true

	return true
}

// Poll reports whether any tracked value differs from its baseline by more
// than the threshold. Before the first Remember there is nothing to compare
// against and Poll reports no change. Poll never updates the baseline.
func (d *Detector[V]) Poll() bool {
	if !d.hasBaseline {
		return false
	}

	current, ok := d.current()
	if !ok {
		return false
	}

	changed := false
	for i, v := range current {
		if delta(v, d.baseline[i]) > d.threshold {
			changed = true
			break
		}
	}

	if changed && d.onChange != nil {
		d.onChange(current, append([]V(nil), d.baseline...))
	}

	return changed
}

func (d *Detector[V]) current() ([]V, bool) {
	if d.source == nil {
		return nil, false
	}

	values, ok := d.source.TrackedValues()
	if !ok {
		return nil, false
	}
	if len(values) != d.size {
		panic(fmt.Sprintf("change: source returned %d values, detector tracks %d", len(values), d.size))
	}

	return values, true
}

// delta is |a-b|, computed without underflow for unsigned types.
func delta[V Value](a, b V) V {
	if a > b {
		return a - b
	}

	return b - a
}
