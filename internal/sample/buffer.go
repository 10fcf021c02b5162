// Package sample holds the fixed-capacity ring of recent valid readings and
// its rolling average.
package sample

import "fmt"

// Number is the set of element types a Buffer can average.
type Number interface {
	~int | ~int8 | ~int16 | ~int32 | ~int64 |
		~uint | ~uint8 | ~uint16 | ~uint32 | ~uint64 |
		~float32 | ~float64
}

// Buffer keeps the last Cap() values added. Once full, each Add overwrites
// the oldest entry. The zero value is not usable; call New.
type Buffer[T Number] struct {
	items []T
	next  int
	count int
}

// New returns an empty buffer holding at most capacity values. It panics if
// capacity < 1, since a zero-sized window can never produce an average.
func New[T Number](capacity int) *Buffer[T] {
	if capacity < 1 {
		panic(fmt.Sprintf("sample: invalid buffer capacity %d", capacity))
	}

	return &Buffer[T]{items: make([]T, capacity)}
}

// Add stores v, evicting the oldest value when the buffer is full.
func (b *Buffer[T]) Add(v T) {
	b.items[b.next] = v
	b.next = (b.next + 1) % len(b.items)
	if b.count < len(b.items) {
		b.count++
	}
}

// Average returns the arithmetic mean of the held values. Integer element
// types truncate toward zero.
//
// An empty buffer returns (0, false). The zero is not a reading; callers
// must not publish it.
func (b *Buffer[T]) Average() (T, bool) {
	if b.count == 0 {
		return 0, false
	}

	var zero T
	switch {
	case T(1)/T(2) != zero: // floating point
		var sum float64
		for _, v := range b.Values() {
			sum += float64(v)
		}
		return T(sum / float64(b.count)), true
	case zero-1 < zero: // signed integer
		var sum int64
		for _, v := range b.Values() {
			sum += int64(v)
		}
		return T(sum / int64(b.count)), true
	default:
		var sum uint64
		for _, v := range b.Values() {
			sum += uint64(v)
		}
		return T(sum / uint64(b.count)), true
	}
}

// IsEmpty reports whether no value has been added yet.
func (b *Buffer[T]) IsEmpty() bool {
	return b.count == 0
}

// Len returns the number of held values.
func (b *Buffer[T]) Len() int {
	return b.count
}

// Cap returns the buffer capacity.
func (b *Buffer[T]) Cap() int {
	return len(b.items)
}

// Values returns a copy of the held values, oldest first.
func (b *Buffer[T]) Values() []T {
	out := make([]T, 0, b.count)
	start := b.next - b.count
	if start < 0 {
		start += len(b.items)
	}
	for i := 0; i < b.count; i++ {
		out = append(out, b.items[(start+i)%len(b.items)])
	}

	return out
}
