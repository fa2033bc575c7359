// Package formatter renders step JSON as markdown whose sections are tagged
// with field markers, so that edits can be parsed back field by field.
package formatter

import (
	"encoding/json"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/starford/gtmkit/internal/markers"
	"github.com/starford/gtmkit/internal/schema"
)

// Formatter renders step data. It is safe for concurrent use.
type Formatter struct {
	schema *schema.Schema
	now    func() time.Time
}

// Option configures a Formatter.
type Option func(*Formatter)

// WithClock overrides the clock used for the metadata timestamp.
func WithClock(now func() time.Time) Option {
	return func(f *Formatter) { f.now = now }
}

// New creates a Formatter for the given schema.
func New(s *schema.Schema, opts ...Option) *Formatter {
	f := &Formatter{schema: s, now: time.Now}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// FormatWithMarkers renders data for step. Every key in data gets exactly one
// marked section: declared fields in schema order, then undeclared keys
// alphabetically.
func (f *Formatter) FormatWithMarkers(data map[string]any, step string) (string, error) {
	st, err := f.schema.Step(step)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	b.WriteString(markers.RenderMetadata(markers.Metadata{
		GeneratedAt: f.now(),
		Source:      step + ".json",
	}))
	b.WriteString("\n")
	b.WriteString(markers.Format(1, st.Title, ""))
	b.WriteString("\n")

	for _, field := range st.Fields {
		v, ok := data[field.Name]
		if !ok {
			continue
		}
		writeSection(&b, field.Title, field.Name)
		switch field.Shape {
		case schema.StringList:
			writeList(&b, v)
		case schema.Records:
			writeRecords(&b, field.Record, v)
		default:
			writeText(&b, v)
		}
	}

	var extra []string
	for k := range data {
		if !st.Known(k) {
			extra = append(extra, k)
		}
	}
	slices.Sort(extra)
	for _, k := range extra {
		writeSection(&b, schema.TitleFromName(k), k)
		writeRaw(&b, data[k])
	}

	return b.String(), nil
}

func writeSection(b *strings.Builder, title, field string) {
	b.WriteString("\n")
	b.WriteString(markers.Format(2, title, field))
	b.WriteString("\n\n")
}

func writeText(b *strings.Builder, v any) {
	if s := strings.TrimSpace(schema.AsText(v)); s != "" {
		b.WriteString(s)
		b.WriteString("\n")
	}
}

func writeList(b *strings.Builder, v any) {
	items, ok := schema.AsStrings(v)
	if !ok {
		writeRaw(b, v)
		return
	}
	for _, item := range items {
		item = strings.Join(strings.Fields(item), " ")
		if item == "" {
			continue
		}
		b.WriteString("- ")
		b.WriteString(item)
		b.WriteString("\n")
	}
}

func writeRecords(b *strings.Builder, spec *schema.RecordSpec, v any) {
	records, ok := schema.AsRecords(v)
	if !ok {
		writeRaw(b, v)
		return
	}
	for i, r := range records {
		if i > 0 {
			b.WriteString("\n")
		}
		title := schema.AsText(r[spec.TitleKey])
		q := schema.AsText(r[spec.QualifierKey])
		switch {
		case spec.QualifierKey != "" && q != "":
			fmt.Fprintf(b, "**%s (%s)**\n", title, q)
		case spec.QualifierKey != "" && strings.HasSuffix(strings.TrimSpace(title), ")"):
			// An empty qualifier keeps a parenthetical title from being
			// read back as "Title (Qualifier)".
			fmt.Fprintf(b, "**%s ()**\n", title)
		default:
			fmt.Fprintf(b, "**%s**\n", title)
		}
		if body := strings.TrimSpace(schema.AsText(r[spec.BodyKey])); spec.BodyKey != "" && body != "" {
			b.WriteString(body)
			b.WriteString("\n")
		}

		used := map[string]bool{spec.TitleKey: true, spec.QualifierKey: true, spec.BodyKey: true}
		for _, c := range spec.Clauses {
			used[c.Key] = true
			if val := schema.AsText(r[c.Key]); val != "" {
				fmt.Fprintf(b, "*%s: %s*\n", c.Label, val)
			}
		}
		var rest []string
		for k := range r {
			if !used[k] {
				rest = append(rest, k)
			}
		}
		slices.Sort(rest)
		for _, k := range rest {
			if val := schema.AsText(r[k]); val != "" {
				fmt.Fprintf(b, "*%s: %s*\n", schema.TitleFromName(k), val)
			}
		}
	}
}

func writeRaw(b *strings.Builder, v any) {
	if s, ok := v.(string); ok {
		writeText(b, s)
		return
	}
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		writeText(b, fmt.Sprint(v))
		return
	}
	b.WriteString("```json\n")
	b.Write(data)
	b.WriteString("\n```\n")
}
