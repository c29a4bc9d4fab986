// Package sse provides a minimal, line-oriented SSE (Server-Sent Events)
// tee-reader for consuming streamed chat completions. It reads lines from an
// upstream response body while simultaneously forwarding the raw bytes
// verbatim to an optional capture writer.
//
// This package intentionally does NOT assemble multi-line events or provide
// SSE writer or server capabilities. Chat completion streams carry exactly one
// "data:" line per event, so consumers work line by line.
//
// See the SSE specification:
// https://html.spec.whatwg.org/multipage/server-sent-events.html
package sse

import "strings"

// Field names recognized by the SSE specification.
const (
	FieldData  = "data"
	FieldEvent = "event"
	FieldID    = "id"
	FieldRetry = "retry"
)

// Line is a single parsed, non-blank SSE line.
type Line struct {
	// Field is the SSE field name, e.g. "data". Empty for comment lines.
	Field string

	// Value is the field value with a single leading space stripped.
	Value string

	// Comment is true for lines starting with ':'.
	Comment bool
}

// ParseLine splits a raw SSE line into its field and value.
//
// Per the SSE spec, a line has the form "field:value" where the first
// space after the colon is optional and stripped if present. A line with no
// colon is a field name with an empty value. Blank lines return ok=false.
func ParseLine(raw string) (Line, bool) {
	raw = strings.TrimRight(raw, "\r")
	if strings.TrimSpace(raw) == "" {
		return Line{}, false
	}

	if strings.HasPrefix(raw, ":") {
		return Line{Comment: true, Value: strings.TrimPrefix(raw[1:], " ")}, true
	}

	field, value, found := strings.Cut(raw, ":")
	if !found {
		return Line{Field: raw}, true
	}

	return Line{Field: field, Value: strings.TrimPrefix(value, " ")}, true
}

// IsData reports whether the line is a "data:" field.
func (l Line) IsData() bool {
	return !l.Comment && l.Field == FieldData
}
