package parser

import (
	"bytes"
	"sync"
	"sync/atomic"
)

// maxLineSize bounds a single buffered line. Longer lines are cut and fed
// as-is so a child that never writes a newline cannot grow memory unbounded.
const maxLineSize = 1024 * 1024

// LineWriter is an io.Writer that splits written bytes into lines and feeds
// them to a Pipeline.
//
// It is meant to sit behind exec.Cmd.Stdout/Stderr (usually via
// io.MultiWriter next to the capture buffer). Write never blocks on the
// parser: the Pipeline drops when full.
type LineWriter struct {
	pipeline *Pipeline

	mu      sync.Mutex
	partial []byte
	closed  bool

	bytesWritten atomic.Int64
	linesFed     atomic.Int64
}

// NewLineWriter creates a writer feeding pipeline.
func NewLineWriter(pipeline *Pipeline) *LineWriter {
	return &LineWriter{pipeline: pipeline}
}

// Write implements io.Writer. It always reports len(b) written.
func (w *LineWriter) Write(b []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()

	w.bytesWritten.Add(int64(len(b)))
	if w.closed {
		return len(b), nil
	}

	data := b
	for len(data) > 0 {
		idx := bytes.IndexByte(data, '\n')
		if idx < 0 {
			w.partial = append(w.partial, data...)
			if len(w.partial) >= maxLineSize {
				w.feed(w.partial)
				w.partial = w.partial[:0]
			}
			break
		}
		w.partial = append(w.partial, data[:idx]...)
		w.feed(w.partial)
		w.partial = w.partial[:0]
		data = data[idx+1:]
	}

	return len(b), nil
}

func (w *LineWriter) feed(line []byte) {
	line = bytes.TrimSuffix(line, []byte{'\r'})
	w.linesFed.Add(1)
	w.pipeline.FeedLine(string(line))
}

// Close flushes a trailing unterminated line and closes the pipeline.
// Safe to call multiple times.
func (w *LineWriter) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if w.closed {
		return nil
	}
	if len(w.partial) > 0 {
		w.feed(w.partial)
		w.partial = nil
	}
	w.closed = true
	w.pipeline.CloseChannel()
	return nil
}

// Stats returns (bytesWritten, linesFed, healthy).
func (w *LineWriter) Stats() (bytesWritten int64, linesFed int64, healthy bool) {
	w.mu.Lock()
	closed := w.closed
	w.mu.Unlock()
	return w.bytesWritten.Load(), w.linesFed.Load(), !closed
}
