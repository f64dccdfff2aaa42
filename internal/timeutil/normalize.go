// Package timeutil parses catalog timestamps and converts instants to the
// configured display timezone.
package timeutil

import (
	"fmt"
	"strings"
	"time"
)

// ParseError indicates a timestamp string that does not conform to ISO 8601.
// It is recoverable: the affected file is classified as unmatched and the scan
// continues.
type ParseError struct {
	Input string
	Cause error
}

func (e *ParseError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("invalid timestamp %q: %v", e.Input, e.Cause)
	}
	return fmt.Sprintf("invalid timestamp %q", e.Input)
}

func (e *ParseError) Unwrap() error {
	return e.Cause
}

// Layouts without a zone designator are interpreted as UTC. The catalog emits
// "2006-01-02T15:04:05.999999" without an offset; fractional seconds are
// accepted by the parser even when a layout omits them.
var naiveLayouts = []string{
	"2006-01-02T15:04:05",
	"2006-01-02 15:04:05",
	"2006-01-02",
}

// ParseUTC parses an ISO 8601 timestamp into an absolute instant. Strings
// without an offset are assumed to be UTC.
func ParseUTC(s string) (time.Time, error) {
	trimmed := strings.TrimSpace(s)
	if trimmed == "" {
		return time.Time{}, &ParseError{Input: s}
	}

	if t, err := time.Parse(time.RFC3339Nano, trimmed); err == nil {
		return t, nil
	}

	var lastErr error
	for _, layout := range naiveLayouts {
		t, err := time.ParseInLocation(layout, trimmed, time.UTC)
		if err == nil {
			return t, nil
		}
		lastErr = err
	}

	return time.Time{}, &ParseError{Input: s, Cause: lastErr}
}

// Normalizer converts absolute instants to a named civil timezone for display.
type Normalizer struct {
	loc *time.Location
}

// NewNormalizer resolves an IANA timezone name, e.g. "Europe/Berlin".
func NewNormalizer(zone string) (*Normalizer, error) {
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return nil, fmt.Errorf("unknown display timezone %q: %w", zone, err)
	}
	return &Normalizer{loc: loc}, nil
}

// ToDisplay converts an instant to the display timezone. The instant itself is
// unchanged; only the civil representation shifts, including across DST
// transitions.
func (n *Normalizer) ToDisplay(t time.Time) time.Time {
	return t.In(n.loc)
}

// Location returns the display timezone.
func (n *Normalizer) Location() *time.Location {
	return n.loc
}
