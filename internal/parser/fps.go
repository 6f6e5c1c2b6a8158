package parser

import (
	"sync"
	"time"
)

// Sample is one live metric reading.
type Sample struct {
	Value      float64
	ReceivedAt time.Time
}

// SampleCallback receives each live sample.
type SampleCallback func(Sample)

// MetricParser is a LineParser that runs a Matcher over live output and
// reports every parsed value. Thread-safe.
type MetricParser struct {
	matcher  *Matcher
	callback SampleCallback

	mu      sync.Mutex
	samples int64
	last    Sample
}

// NewMetricParser creates a live parser. cb may be nil if only the latest
// value is needed.
func NewMetricParser(m *Matcher, cb SampleCallback) *MetricParser {
	return &MetricParser{matcher: m, callback: cb}
}

// ParseLine implements LineParser.
func (p *MetricParser) ParseLine(line string) {
	v, ok := p.matcher.Parse(line)
	if !ok {
		return
	}
	s := Sample{Value: v, ReceivedAt: time.Now()}

	p.mu.Lock()
	p.samples++
	p.last = s
	p.mu.Unlock()

	if p.callback != nil {
		p.callback(s)
	}
}

// Last returns the most recent sample and whether one has been seen.
func (p *MetricParser) Last() (Sample, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last, p.samples > 0
}

// Samples returns how many values have been parsed.
func (p *MetricParser) Samples() int64 {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.samples
}
