package accel

// window is a fixed-capacity FIFO ring buffer. Push appends at the back and,
// once the buffer is full, evicts the oldest entry from the front.
type window[T any] struct {
	buf   []T
	start int
	n     int
}

func newWindow[T any](capacity int) *window[T] {
	return &window[T]{buf: make([]T, capacity)}
}

func (w *window[T]) Len() int  { return w.n }
func (w *window[T]) Full() bool { return w.n == len(w.buf) }

// At returns the i-th entry, oldest first.
func (w *window[T]) At(i int) T {
	if i < 0 || i >= w.n {
		panic("accel: window index out of range")
	}
	return w.buf[(w.start+i)%len(w.buf)]
}

// Push appends v. If the window was full the oldest entry is evicted and
// returned with ok set.
func (w *window[T]) Push(v T) (evicted T, ok bool) {
	if w.n < len(w.buf) {
		w.buf[(w.start+w.n)%len(w.buf)] = v
		w.n++
		return evicted, false
	}
	evicted = w.buf[w.start]
	w.buf[w.start] = v
	w.start = (w.start + 1) % len(w.buf)
	return evicted, true
}

// Clear empties the window and drops references to its entries.
func (w *window[T]) Clear() {
	var zero T
	for i := range w.buf {
		w.buf[i] = zero
	}
	w.start, w.n = 0, 0
}
