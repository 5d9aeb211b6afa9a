package pipeline

import (
	"time"

	"github.com/montanaflynn/stats"
)

// fpsWindow is how many recent iterations feed the reported average.
const fpsWindow = 50

// fpsMeter tracks per-iteration throughput as 1/elapsed over a sliding
// window.
type fpsMeter struct {
	samples []float64
	next    int
	filled  bool
}

func (m *fpsMeter) record(elapsed time.Duration) float64 {
	if elapsed <= 0 {
		return 0
	}
	fps := float64(time.Second) / float64(elapsed)
	if m.samples == nil {
		m.samples = make([]float64, fpsWindow)
	}
	m.samples[m.next] = fps
	m.next = (m.next + 1) % fpsWindow
	if m.next == 0 {
		m.filled = true
	}
	return fps
}

func (m *fpsMeter) average() float64 {
	if m.samples == nil {
		return 0
	}
	window := m.samples
	if !m.filled {
		window = m.samples[:m.next]
	}
	avg, err := stats.Mean(window)
	if err != nil {
		return 0
	}
	return avg
}
