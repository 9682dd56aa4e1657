// Package window keeps the most recent raw samples as a fixed-length,
// plot-ready sequence. The buffer always holds exactly Size points; every
// append evicts the oldest one.
package window

import "sync"

const (
	// DefaultSize is the number of samples kept for the live plot.
	DefaultSize = 300
	// Baseline is the neutral display value the buffer is pre-filled with.
	Baseline = 50.0
)

// Point is one plottable sample. X is the position in the window, oldest
// first; Y is the scaled display value in [0, 100].
type Point struct {
	X int     `json:"x"`
	Y float64 `json:"y"`
}

// Scale maps a raw sample (roughly -2048..2047) onto the 0..100 display
// range. Positive voltages plot upward on a top-origin canvas.
func Scale(raw int) float64 {
	y := 50 - float64(raw)/8
	if y < 0 {
		return 0
	}
	if y > 100 {
		return 100
	}
	return y
}

// Buffer is a ring of display values. Append is O(1); readers get copies,
// so a snapshot is never affected by later appends. Safe for concurrent use.
type Buffer struct {
	mu      sync.RWMutex
	vals    []float64
	head    int // index of the oldest value
	version uint64
}

// New returns a buffer of the given size pre-filled with baseline. A
// non-positive size falls back to DefaultSize.
func New(size int, baseline float64) *Buffer {
	if size <= 0 {
		size = DefaultSize
	}
	vals := make([]float64, size)
	for i := range vals {
		vals[i] = baseline
	}
	return &Buffer{vals: vals}
}

// Len returns the fixed length of the buffer.
func (b *Buffer) Len() int {
	return len(b.vals)
}

// Append evicts the oldest value and adds v as the newest.
func (b *Buffer) Append(v float64) {
	b.mu.Lock()
	b.vals[b.head] = v
	b.head = (b.head + 1) % len(b.vals)
	b.version++
	b.mu.Unlock()
}

// AppendRaw scales a raw sample and appends it.
func (b *Buffer) AppendRaw(raw int) {
	b.Append(Scale(raw))
}

// Version increments on every append. Publishers use it to skip unchanged
// snapshots.
func (b *Buffer) Version() uint64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.version
}

// Values returns a copy of the display values, oldest first.
func (b *Buffer) Values() []float64 {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]float64, 0, len(b.vals))
	out = append(out, b.vals[b.head:]...)
	return append(out, b.vals[:b.head]...)
}

// Points returns a copy of the buffer as positioned points. X runs 0..Len-1
// left to right, oldest first.
func (b *Buffer) Points() []Point {
	vals := b.Values()
	pts := make([]Point, len(vals))
	for i, v := range vals {
		pts[i] = Point{X: i, Y: v}
	}
	return pts
}
