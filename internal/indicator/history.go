package indicator

import "fmt"

// History is a fixed-capacity ring buffer of daily closes. Index 0 is the
// most recent close; the oldest entry is evicted when the buffer is full.
// Capacity never changes after construction.
type History struct {
	data     []float64
	capacity int
	head     int // position of the most recent close
	size     int
}

// NewHistory creates a buffer holding at most capacity closes.
func NewHistory(capacity int) *History {
	if capacity < 1 {
		capacity = 1
	}
	return &History{
		data:     make([]float64, capacity),
		capacity: capacity,
	}
}

// Push records a new close as the most recent entry.
func (h *History) Push(close float64) {
	h.head = (h.head + 1) % h.capacity
	h.data[h.head] = close
	if h.size < h.capacity {
		h.size++
	}
}

// At returns the close i bars ago; At(0) is the most recent.
func (h *History) At(i int) float64 {
	return h.data[(h.head-i+h.capacity*2)%h.capacity]
}

// Len returns the number of closes currently held.
func (h *History) Len() int {
	return h.size
}

// Cap returns the fixed capacity.
func (h *History) Cap() int {
	return h.capacity
}

// Window returns the n most recent closes, newest first.
func (h *History) Window(n int) ([]float64, error) {
	if n > h.size {
		return nil, fmt.Errorf("window of %d requested with %d closes held", n, h.size)
	}
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		out[i] = h.At(i)
	}
	return out, nil
}

// Returns computes the n most recent single-period rates of change, newest
// first. Requires n+1 closes.
func (h *History) Returns(n int) ([]float64, error) {
	if n+1 > h.size {
		return nil, fmt.Errorf("%d returns requested with %d closes held", n, h.size)
	}
	out := make([]float64, n)
	for i := 0; i < n; i++ {
		prev := h.At(i + 1)
		out[i] = (h.At(i) - prev) / prev
	}
	return out, nil
}
