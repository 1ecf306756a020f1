// Package sla tracks recent operation latencies against a service-level threshold.
package sla

import (
	"sync"
	"time"

	"github.com/ledgerlens/fincorr/internal/models"
	"github.com/ledgerlens/fincorr/internal/utils"
)

const (
	// DefaultWindowSize is the number of samples retained when none is configured.
	DefaultWindowSize = 200
	// DefaultSLAMS is the breach threshold in milliseconds when none is configured.
	DefaultSLAMS = 500.0
)

// Tracker keeps the most recent latency samples in a fixed-size ring and counts every
// sample that exceeded the SLA threshold. The breach counter is never reset by eviction.
type Tracker struct {
	mu       sync.Mutex
	samples  []float64
	next     int
	size     int
	slaMS    float64
	breaches int64
}

// NewTracker creates a tracker holding up to windowSize samples. A non-positive window
// falls back to DefaultWindowSize and a negative threshold to DefaultSLAMS.
func NewTracker(windowSize int, slaMS float64) *Tracker {
	if windowSize <= 0 {
		windowSize = DefaultWindowSize
	}
	if slaMS < 0 {
		slaMS = DefaultSLAMS
	}
	return &Tracker{
		samples: make([]float64, windowSize),
		slaMS:   slaMS,
	}
}

// Record stores a latency sample in milliseconds, evicting the oldest when full.
func (t *Tracker) Record(latencyMS float64) {
	if latencyMS < 0 {
		latencyMS = 0
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	t.samples[t.next] = latencyMS
	t.next = (t.next + 1) % len(t.samples)
	if t.size < len(t.samples) {
		t.size++
	}
	if latencyMS > t.slaMS {
		t.breaches++
	}
}

// Observe records a duration.
func (t *Tracker) Observe(d time.Duration) {
	t.Record(utils.DurationMilliseconds(d))
}

// Time runs fn and records how long it took.
func (t *Tracker) Time(fn func()) time.Duration {
	start := time.Now()
	fn()
	elapsed := time.Since(start)
	t.Observe(elapsed)
	return elapsed
}

// Stats returns a consistent snapshot. An empty tracker reports zeros.
func (t *Tracker) Stats() models.SLASnapshot {
	t.mu.Lock()
	defer t.mu.Unlock()

	snap := models.SLASnapshot{
		Count:       t.size,
		SLAMS:       t.slaMS,
		SLABreaches: t.breaches,
	}
	if t.size == 0 {
		return snap
	}

	// Oldest sample sits at next once the ring has wrapped, at 0 before that.
	start := 0
	if t.size == len(t.samples) {
		start = t.next
	}
	sum := 0.0
	min := t.samples[start]
	max := min
	for i := 0; i < t.size; i++ {
		s := t.samples[(start+i)%len(t.samples)]
		sum += s
		if s < min {
			min = s
		}
		if s > max {
			max = s
		}
	}
	snap.AverageLatencyMS = sum / float64(t.size)
	snap.MinLatencyMS = min
	snap.MaxLatencyMS = max
	return snap
}

// WindowSize returns the ring capacity.
func (t *Tracker) WindowSize() int {
	return len(t.samples)
}
