package markers

import (
	"fmt"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	metadataOpen  = "<!-- gtm-sync"
	metadataClose = "-->"
)

// Metadata is the informational block a rendered document starts with.
type Metadata struct {
	GeneratedAt time.Time `yaml:"generated_at"`
	Source      string    `yaml:"source"`
}

// RenderMetadata renders m as a leading HTML comment holding YAML.
func RenderMetadata(m Metadata) string {
	return fmt.Sprintf("%s\ngenerated_at: %s\nsource: %s\n%s\n",
		metadataOpen, m.GeneratedAt.UTC().Format(time.RFC3339), m.Source, metadataClose)
}

// SplitMetadata separates a leading metadata comment from the document body.
// found is true when the comment is present; m is nil when it is present but
// unreadable. Documents without the comment are returned unchanged.
func SplitMetadata(doc string) (m *Metadata, body string, found bool) {
	trimmed := strings.TrimLeft(doc, "\n\r\t ")
	if !strings.HasPrefix(trimmed, metadataOpen) {
		return nil, doc, false
	}
	rest := trimmed[len(metadataOpen):]
	idx := strings.Index(rest, metadataClose)
	if idx < 0 {
		// Unterminated comment: leave everything as body.
		return nil, doc, true
	}
	block := rest[:idx]
	body = strings.TrimLeft(rest[idx+len(metadataClose):], "\r\n")

	var meta Metadata
	if err := yaml.Unmarshal([]byte(block), &meta); err != nil {
		return nil, body, true
	}
	return &meta, body, true
}
