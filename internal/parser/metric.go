package parser

import (
	"errors"
	"fmt"
	"iter"
	"log/slog"
	"math"
	"slices"
	"strconv"
	"strings"
)

// FieldExtractor pulls a single number out of a line that already matched a
// label.
type FieldExtractor func(line string) (float64, error)

var errNoField = errors.New("no value field")

// ColonField reads the text after the first ':' and before the first ','.
//
// Examples:
//   - "Frame FPS: 42.5, objects=3" -> 42.5
//   - "FPS: 30"                    -> 30
//   - "FPS: abc"                   -> error
//   - "fps measured"               -> error (no colon)
func ColonField(line string) (float64, error) {
	_, after, ok := strings.Cut(line, ":")
	if !ok {
		return 0, errNoField
	}
	field, _, _ := strings.Cut(after, ",")
	return parseFinite(strings.TrimSpace(field))
}

// KeyValueField returns an extractor for "key=value" tokens, as printed by
// ffmpeg/GStreamer style progress lines ("frame=60 fps=29.97 q=-1.0").
// The key match is case-insensitive.
func KeyValueField(key string) FieldExtractor {
	prefix := strings.ToLower(key) + "="
	return func(line string) (float64, error) {
		for _, tok := range strings.FieldsFunc(line, func(r rune) bool {
			return r == ' ' || r == '\t' || r == ','
		}) {
			if len(tok) > len(prefix) && strings.EqualFold(tok[:len(prefix)], prefix) {
				return parseFinite(tok[len(prefix):])
			}
		}
		return 0, errNoField
	}
}

// parseFinite parses a float and rejects NaN and ±Inf, which would poison
// any average computed from the samples.
func parseFinite(s string) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, fmt.Errorf("non-finite value %q", s)
	}
	return v, nil
}

// Matcher selects lines by case-insensitive label substrings and extracts a
// number from each selected line.
//
// A Matcher is immutable after construction and safe for concurrent use.
type Matcher struct {
	labels  []string // lower-cased
	extract FieldExtractor
	logger  *slog.Logger
}

// NewMatcher creates a matcher for the given labels using ColonField.
func NewMatcher(labels ...string) *Matcher {
	lower := make([]string, 0, len(labels))
	for _, l := range labels {
		if l = strings.ToLower(strings.TrimSpace(l)); l != "" {
			lower = append(lower, l)
		}
	}
	return &Matcher{
		labels:  lower,
		extract: ColonField,
	}
}

// WithExtractor returns a copy using a different field extractor.
func (m *Matcher) WithExtractor(fn FieldExtractor) *Matcher {
	c := *m
	c.extract = fn
	return &c
}

// WithLogger returns a copy that logs skipped lines to logger.
func (m *Matcher) WithLogger(logger *slog.Logger) *Matcher {
	c := *m
	c.logger = logger
	return &c
}

// Labels returns the lower-cased label patterns.
func (m *Matcher) Labels() []string {
	return slices.Clone(m.labels)
}

// Matches reports whether line contains any of the labels.
func (m *Matcher) Matches(line string) bool {
	if len(m.labels) == 0 {
		return false
	}
	lower := strings.ToLower(line)
	for _, l := range m.labels {
		if strings.Contains(lower, l) {
			return true
		}
	}
	return false
}

// Parse returns the value of a matching line. ok is false when the line does
// not match or its value cannot be parsed; parse failures are logged at
// debug level and otherwise ignored.
func (m *Matcher) Parse(line string) (v float64, ok bool) {
	if !m.Matches(line) {
		return 0, false
	}
	v, err := m.extract(line)
	if err != nil {
		m.log().Debug("metric_parse_failed",
			"labels", m.labels,
			"line", line,
			"error", err,
		)
		return 0, false
	}
	return v, true
}

// Values lazily yields the value of every well-formed matching line in text,
// in order. Each iteration is a fresh single pass over text, so ranging twice
// yields identical sequences.
func (m *Matcher) Values(text string) iter.Seq[float64] {
	return func(yield func(float64) bool) {
		for line := range strings.Lines(text) {
			v, ok := m.Parse(strings.TrimRight(line, "\r\n"))
			if !ok {
				continue
			}
			if !yield(v) {
				return
			}
		}
	}
}

// Collect returns all values in text as a slice (never nil).
func (m *Matcher) Collect(text string) []float64 {
	values := slices.Collect(m.Values(text))
	if values == nil {
		values = []float64{}
	}
	return values
}

func (m *Matcher) log() *slog.Logger {
	if m.logger != nil {
		return m.logger
	}
	return slog.Default()
}

// FPS matches throughput lines such as "FPS: 29.8" or "Frame fps: 30, ...".
var FPS = NewMatcher("fps")

// ExtractNumericMetric yields the value of every line of text containing any
// of labels (case-insensitive) in "label: value[, ...]" shape. Malformed
// lines are skipped.
func ExtractNumericMetric(text string, labels ...string) iter.Seq[float64] {
	return NewMatcher(labels...).Values(text)
}
