package control

// MovingAverage smooths temperature readings over a fixed window before
// they reach the controller, so a single noisy sample cannot kick the
// derivative term. Until the window fills, the average covers the
// samples seen so far.
type MovingAverage struct {
	window []float64
	next   int
	count  int
}

// NewMovingAverage creates a filter over the last n samples. n < 1 is
// treated as 1 (no smoothing).
func NewMovingAverage(n int) *MovingAverage {
	if n < 1 {
		n = 1
	}
	return &MovingAverage{window: make([]float64, n)}
}

// Add records a sample and returns the current smoothed value.
func (m *MovingAverage) Add(v float64) float64 {
	m.window[m.next] = v
	m.next = (m.next + 1) % len(m.window)
	if m.count < len(m.window) {
		m.count++
	}

	var sum float64
	for _, s := range m.window[:m.count] {
		sum += s
	}
	return sum / float64(m.count)
}

// Reset empties the window.
func (m *MovingAverage) Reset() {
	m.next = 0
	m.count = 0
}
