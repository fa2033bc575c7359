// Package markers implements the field marker protocol: an ATX header line
// whose title is followed by an inline {#field_name} tag binds the lines
// below it, up to the next header, to that field.
package markers

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	markerRe = regexp.MustCompile(`^ {0,3}(#{1,6})\s+(.*?)\s*\{#([A-Za-z0-9_][A-Za-z0-9_-]*)\}\s*$`)
	headerRe = regexp.MustCompile(`^ {0,3}(#{1,6})(?:\s+(.*?))?\s*$`)
)

// Header is a parsed header line. Field is empty for bare (unmarked) headers.
type Header struct {
	Level int
	Title string
	Field string
}

// Marked reports whether the header carries a field marker.
func (h Header) Marked() bool { return h.Field != "" }

// ParseLine classifies a line. ok is false when the line is not a header.
func ParseLine(line string) (h Header, ok bool) {
	line = strings.TrimRight(line, " \t\r")
	if m := markerRe.FindStringSubmatch(line); m != nil {
		return Header{Level: len(m[1]), Title: m[2], Field: m[3]}, true
	}
	if m := headerRe.FindStringSubmatch(line); m != nil {
		return Header{Level: len(m[1]), Title: m[2]}, true
	}
	return Header{}, false
}

// Format renders a header line, tagged with field when it is non-empty.
func Format(level int, title, field string) string {
	if level < 1 {
		level = 1
	}
	if level > 6 {
		level = 6
	}
	prefix := strings.Repeat("#", level)
	if field == "" {
		return fmt.Sprintf("%s %s", prefix, title)
	}
	return fmt.Sprintf("%s %s {#%s}", prefix, title, field)
}

// Tag returns the inline marker for field, e.g. "{#description}".
func Tag(field string) string {
	return "{#" + field + "}"
}
