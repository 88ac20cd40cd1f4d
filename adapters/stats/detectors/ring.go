package detectors

// ringBuffer is a fixed-capacity buffer keeping the most recent entries.
// Detector histories use it so a long-running process never grows past the
// configured cap.
type ringBuffer[T any] struct {
	buf  []T
	next int
	size int
}

func newRing[T any](capacity int) *ringBuffer[T] {
	if capacity < 1 {
		capacity = 1
	}
	return &ringBuffer[T]{buf: make([]T, capacity)}
}

// Push appends an entry, evicting the oldest when full
func (r *ringBuffer[T]) Push(v T) {
	r.buf[r.next] = v
	r.next = (r.next + 1) % len(r.buf)
	if r.size < len(r.buf) {
		r.size++
	}
}

// Len returns the number of retained entries
func (r *ringBuffer[T]) Len() int {
	return r.size
}

// Last returns up to n most recent entries, oldest first
func (r *ringBuffer[T]) Last(n int) []T {
	if n > r.size {
		n = r.size
	}
	out := make([]T, 0, n)
	start := r.next - n
	if start < 0 {
		start += len(r.buf)
	}
	for i := 0; i < n; i++ {
		out = append(out, r.buf[(start+i)%len(r.buf)])
	}
	return out
}
