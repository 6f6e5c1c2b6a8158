// Package parser turns captured pipeline output into numbers and verdicts.
//
// Two paths share the same line predicates:
//
//	Post-mortem: ExtractNumericMetric / ErrorSignature run over the full,
//	             lossless output once the child has been reaped.
//	Live:        LineWriter -> Pipeline -> LineParser, fed while the child
//	             runs. Lossy: lines are dropped rather than ever blocking the
//	             child's stdout/stderr.
package parser

import (
	"sync"
	"sync/atomic"
)

// LineParser consumes one line of child output at a time.
type LineParser interface {
	ParseLine(line string)
}

// Pipeline is a bounded, lossy line queue between a reader and a parser.
//
// If the parser cannot keep up, lines are dropped instead of blocking the
// writer (the child process).
type Pipeline struct {
	name       string
	stream     string // "stdout" or "stderr"
	bufferSize int

	lineChan  chan string
	closeOnce sync.Once

	linesRead    atomic.Int64
	linesDropped atomic.Int64
	linesParsed  atomic.Int64

	dropThreshold float64
}

// NewPipeline creates a lossy parsing pipeline.
//
// Parameters:
//   - name: pipeline (script) name for logging
//   - stream: "stdout" or "stderr"
//   - bufferSize: channel buffer size in lines
//   - dropThreshold: fraction (0.0-1.0) above which the stream is degraded
func NewPipeline(name, stream string, bufferSize int, dropThreshold float64) *Pipeline {
	if bufferSize < 1 {
		bufferSize = 1000
	}
	if dropThreshold <= 0 {
		dropThreshold = 0.01
	}

	return &Pipeline{
		name:          name,
		stream:        stream,
		bufferSize:    bufferSize,
		lineChan:      make(chan string, bufferSize),
		dropThreshold: dropThreshold,
	}
}

// FeedLine queues a line. Returns false if it was dropped.
func (p *Pipeline) FeedLine(line string) bool {
	p.linesRead.Add(1)

	select {
	case p.lineChan <- line:
		return true
	default:
		p.linesDropped.Add(1)
		return false
	}
}

// CloseChannel closes the queue so RunParser returns. Idempotent.
//
// The feeding LineWriter calls this from Close; without it the parser
// goroutine leaks.
func (p *Pipeline) CloseChannel() {
	p.closeOnce.Do(func() {
		close(p.lineChan)
	})
}

// RunParser hands every queued line to parser. Blocks until the queue is
// closed and drained.
func (p *Pipeline) RunParser(parser LineParser) {
	for line := range p.lineChan {
		parser.ParseLine(line)
		p.linesParsed.Add(1)
	}
}

// Stats returns lines read, dropped and parsed.
func (p *Pipeline) Stats() (read, dropped, parsed int64) {
	return p.linesRead.Load(), p.linesDropped.Load(), p.linesParsed.Load()
}

// DropRate returns the fraction of lines dropped so far.
func (p *Pipeline) DropRate() float64 {
	read := p.linesRead.Load()
	if read == 0 {
		return 0
	}
	return float64(p.linesDropped.Load()) / float64(read)
}

// IsDegraded reports whether the drop rate exceeds the configured threshold.
// Live metrics from a degraded stream are incomplete; the captured output
// used for assertions is not affected.
func (p *Pipeline) IsDegraded() bool {
	return p.DropRate() > p.dropThreshold
}

// Name returns the pipeline name.
func (p *Pipeline) Name() string {
	return p.name
}

// Stream returns "stdout" or "stderr".
func (p *Pipeline) Stream() string {
	return p.stream
}

// MultiParser fans a line out to several parsers in order.
type MultiParser []LineParser

// ParseLine implements LineParser.
func (m MultiParser) ParseLine(line string) {
	for _, p := range m {
		if p != nil {
			p.ParseLine(line)
		}
	}
}
