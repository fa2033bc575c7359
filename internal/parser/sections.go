package parser

import (
	"strings"

	"github.com/starford/gtmkit/internal/markers"
)

// ExtractMarkedSections maps each marked field to the raw lines beneath its
// marker. A section ends at the next header line, marked or not, or at the
// end of the document. Content outside any marked section is dropped. When a
// field is marked twice the last section wins.
func ExtractMarkedSections(document string) map[string]string {
	sections, _ := extractSections(document)
	return sections
}

// extractSections also returns, in order of first repeat, the fields that
// were marked more than once.
func extractSections(document string) (map[string]string, []string) {
	sections := make(map[string]string)
	var duplicates []string
	seen := make(map[string]int)

	var current string
	var buf []string
	flush := func() {
		if current != "" {
			sections[current] = strings.Join(buf, "\n")
		}
		current = ""
		buf = buf[:0]
	}

	for _, line := range strings.Split(document, "\n") {
		h, isHeader := markers.ParseLine(line)
		if !isHeader {
			if current != "" {
				buf = append(buf, strings.TrimRight(line, "\r"))
			}
			continue
		}
		flush()
		if h.Marked() {
			current = h.Field
			seen[current]++
			if seen[current] == 2 {
				duplicates = append(duplicates, current)
			}
		}
	}
	flush()
	return sections, duplicates
}
