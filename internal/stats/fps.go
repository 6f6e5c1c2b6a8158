// Package stats summarizes FPS readings and formats the end-of-run report.
package stats

import (
	"math"
	"sync"

	"github.com/influxdata/tdigest"
)

// digestCompression gives ~100 centroids, plenty for a few thousand samples.
const digestCompression = 100

// FPSSummary describes a set of FPS readings. The zero value means no
// readings were seen.
type FPSSummary struct {
	Count int
	Mean  float64
	Min   float64
	Max   float64
	P5    float64
	P50   float64
	P95   float64
}

// Empty reports whether no readings were summarized.
func (s FPSSummary) Empty() bool {
	return s.Count == 0
}

// SummarizeFPS summarizes values in one pass. Non-finite values are ignored.
func SummarizeFPS(values []float64) FPSSummary {
	t := NewFPSTracker()
	for _, v := range values {
		t.Add(v)
	}
	return t.Summary()
}

// FPSTracker accumulates readings as they arrive, for the live dashboard
// and for the final summary. Safe for concurrent use.
type FPSTracker struct {
	mu     sync.Mutex
	digest *tdigest.TDigest
	count  int
	sum    float64
	min    float64
	max    float64
	last   float64
}

// NewFPSTracker returns an empty tracker.
func NewFPSTracker() *FPSTracker {
	return &FPSTracker{digest: tdigest.NewWithCompression(digestCompression)}
}

// Add records one reading.
func (t *FPSTracker) Add(v float64) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.count == 0 || v < t.min {
		t.min = v
	}
	if t.count == 0 || v > t.max {
		t.max = v
	}
	t.count++
	t.sum += v
	t.last = v
	t.digest.Add(v, 1)
}

// Last returns the most recent reading, or false if there is none.
func (t *FPSTracker) Last() (float64, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.last, t.count > 0
}

// Summary returns a snapshot of everything added so far.
func (t *FPSTracker) Summary() FPSSummary {
	t.mu.Lock()
	defer t.mu.Unlock()

	if t.count == 0 {
		return FPSSummary{}
	}
	return FPSSummary{
		Count: t.count,
		Mean:  t.sum / float64(t.count),
		Min:   t.min,
		Max:   t.max,
		P5:    clamp(t.digest.Quantile(0.05), t.min, t.max),
		P50:   clamp(t.digest.Quantile(0.50), t.min, t.max),
		P95:   clamp(t.digest.Quantile(0.95), t.min, t.max),
	}
}

// clamp keeps digest interpolation inside the observed range.
func clamp(v, lo, hi float64) float64 {
	return math.Max(lo, math.Min(hi, v))
}
