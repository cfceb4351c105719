package meters

// window is a bounded FIFO of float64 values. Once full, pushing a new
// value evicts the oldest one.
type window struct {
	maxSize int
	values  []float64
}

func newWindow(maxSize int) *window {
	return &window{maxSize: maxSize, values: make([]float64, 0, maxSize)}
}

func (w *window) push(value float64) {
	if len(w.values) == w.maxSize {
		copy(w.values, w.values[1:])
		w.values[len(w.values)-1] = value
		return
	}
	w.values = append(w.values, value)
}

func (w *window) len() int {
	return len(w.values)
}

func (w *window) snapshot() []float64 {
	out := make([]float64, len(w.values))
	copy(out, w.values)
	return out
}

func (w *window) replace(values []float64) {
	w.values = w.values[:0]
	for _, v := range values {
		w.push(v)
	}
}

func (w *window) clear() {
	w.values = w.values[:0]
}
