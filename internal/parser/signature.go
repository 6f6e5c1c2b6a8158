package parser

import (
	"strings"
)

// ErrorSignature is a marker whose presence in diagnostic output means the
// pipeline failed.
type ErrorSignature struct {
	Marker        string
	CaseSensitive bool
}

// The stability run greps stderr for "Error" exactly, the camera smoke test
// for any casing of "error". Both are kept so either policy can be chosen
// per scenario.
var (
	StrictErrorSignature = ErrorSignature{Marker: "Error", CaseSensitive: true}
	AnyErrorSignature    = ErrorSignature{Marker: "error", CaseSensitive: false}
)

// Find returns the first line of text containing the marker.
func (s ErrorSignature) Find(text string) (line string, found bool) {
	if s.Marker == "" {
		return "", false
	}
	marker := s.Marker
	if !s.CaseSensitive {
		marker = strings.ToLower(marker)
	}
	for l := range strings.Lines(text) {
		candidate := l
		if !s.CaseSensitive {
			candidate = strings.ToLower(l)
		}
		if strings.Contains(candidate, marker) {
			return strings.TrimRight(l, "\r\n"), true
		}
	}
	return "", false
}

// Present reports whether text contains the marker.
func (s ErrorSignature) Present(text string) bool {
	_, found := s.Find(text)
	return found
}

// Watch returns a LineParser that calls fn with every line containing the
// marker.
func (s ErrorSignature) Watch(fn func(line string)) LineParser {
	return signatureWatch{sig: s, fn: fn}
}

type signatureWatch struct {
	sig ErrorSignature
	fn  func(line string)
}

func (w signatureWatch) ParseLine(line string) {
	if w.sig.Present(line) {
		w.fn(line)
	}
}

// String describes the signature for log output.
func (s ErrorSignature) String() string {
	if s.CaseSensitive {
		return `"` + s.Marker + `"`
	}
	return `"` + s.Marker + `" (any case)`
}
