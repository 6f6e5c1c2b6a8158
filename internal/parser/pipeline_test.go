package parser

import (
	"strings"
	"sync"
	"testing"
	"time"
)

// slowParser simulates a parser that can't keep up with a chatty pipeline.
type slowParser struct {
	delay time.Duration
	mu    sync.Mutex
	lines []string
}

func (p *slowParser) ParseLine(line string) {
	time.Sleep(p.delay)
	p.mu.Lock()
	p.lines = append(p.lines, line)
	p.mu.Unlock()
}

// recordingParser keeps every line it sees.
type recordingParser struct {
	mu    sync.Mutex
	lines []string
}

func (p *recordingParser) ParseLine(line string) {
	p.mu.Lock()
	p.lines = append(p.lines, line)
	p.mu.Unlock()
}

func (p *recordingParser) Lines() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.lines))
	copy(out, p.lines)
	return out
}

// drive writes input through a LineWriter while a parser goroutine drains
// the pipeline, and waits for both.
func drive(p *Pipeline, input string, lp LineParser) {
	var wg sync.WaitGroup
	wg.Add(2)
	go func() {
		defer wg.Done()
		w := NewLineWriter(p)
		for line := range strings.Lines(input) {
			w.Write([]byte(line))
		}
		w.Close()
	}()
	go func() {
		defer wg.Done()
		p.RunParser(lp)
	}()
	wg.Wait()
}

func TestPipeline_DropsUnderPressure(t *testing.T) {
	p := NewPipeline("detection.py", "stdout", 5, 0.01)
	drive(p, strings.Repeat("FPS: 30.0\n", 100), &slowParser{delay: 10 * time.Millisecond})

	read, dropped, parsed := p.Stats()
	if read != 100 {
		t.Errorf("read = %d, want 100", read)
	}
	if dropped == 0 {
		t.Error("expected drops with a 5-line buffer and a slow parser")
	}
	if parsed+dropped != read {
		t.Errorf("parsed(%d) + dropped(%d) != read(%d)", parsed, dropped, read)
	}
	if !p.IsDegraded() {
		t.Errorf("IsDegraded() = false with drop rate %.2f", p.DropRate())
	}
}

func TestPipeline_NoDropsWhenFast(t *testing.T) {
	p := NewPipeline("detection.py", "stdout", 1000, 0.01)
	rec := &recordingParser{}
	drive(p, strings.Repeat("line\n", 100), rec)

	read, dropped, parsed := p.Stats()
	if read != 100 || dropped != 0 || parsed != 100 {
		t.Errorf("Stats() = (%d, %d, %d), want (100, 0, 100)", read, dropped, parsed)
	}
	if p.DropRate() != 0 {
		t.Errorf("DropRate() = %v, want 0", p.DropRate())
	}
	if p.IsDegraded() {
		t.Error("IsDegraded() = true without drops")
	}
}

func TestPipeline_CloseChannelIdempotent(t *testing.T) {
	p := NewPipeline("x", "stderr", 10, 0.01)
	p.CloseChannel()
	p.CloseChannel()

	// RunParser must return immediately on a closed, empty queue.
	done := make(chan struct{})
	go func() {
		p.RunParser(&recordingParser{})
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("RunParser did not return after CloseChannel")
	}
}

func TestPipeline_Identity(t *testing.T) {
	p := NewPipeline("pose_estimation.py", "stderr", 0, 0)
	if p.Name() != "pose_estimation.py" {
		t.Errorf("Name() = %q", p.Name())
	}
	if p.Stream() != "stderr" {
		t.Errorf("Stream() = %q", p.Stream())
	}
	if p.bufferSize < 1 {
		t.Errorf("bufferSize = %d, want default >= 1", p.bufferSize)
	}
	if p.dropThreshold <= 0 {
		t.Errorf("dropThreshold = %v, want default > 0", p.dropThreshold)
	}
}

func TestMultiParser(t *testing.T) {
	a, b := &recordingParser{}, &recordingParser{}
	m := MultiParser{a, nil, b}
	m.ParseLine("one")
	m.ParseLine("two")

	for i, rp := range []*recordingParser{a, b} {
		if got := rp.Lines(); len(got) != 2 || got[0] != "one" || got[1] != "two" {
			t.Errorf("parser %d saw %v", i, got)
		}
	}
}

func BenchmarkPipeline(b *testing.B) {
	input := strings.Repeat("Frame FPS: 29.97, objects=4\n", 1000)
	for i := 0; i < b.N; i++ {
		p := NewPipeline("bench", "stdout", 1000, 0.01)
		drive(p, input, NewMetricParser(FPS, nil))
	}
}
