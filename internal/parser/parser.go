// Package parser reads marked-up step markdown back into field values.
package parser

import (
	"fmt"
	"slices"

	"github.com/starford/gtmkit/internal/markers"
	"github.com/starford/gtmkit/internal/schema"
)

// Result holds the outcome of parsing one step document.
type Result struct {
	Step         string            `json:"step"`
	Fields       map[string]any    `json:"fields"`
	Orphaned     []string          `json:"orphaned_fields"`
	Warnings     []string          `json:"warnings"`
	Info         []string          `json:"info"`
	SuccessCount int               `json:"success_count"`
	Metadata     *markers.Metadata `json:"metadata,omitempty"`
}

// IsSuccess reports whether at least one field was parsed.
func (r *Result) IsSuccess() bool {
	return r.SuccessCount > 0
}

// FieldNames returns the parsed field names in schema order.
func (r *Result) FieldNames(st *schema.Step) []string {
	var out []string
	for _, name := range st.FieldNames() {
		if _, ok := r.Fields[name]; ok {
			out = append(out, name)
		}
	}
	return out
}

// Parser turns marked markdown into step data.
type Parser struct {
	schema *schema.Schema
}

// New creates a Parser for the given schema.
func New(s *schema.Schema) *Parser {
	return &Parser{schema: s}
}

// ParseWithOrphanHandling parses every marked section of document for step.
// A field that fails to parse becomes a warning and the rest continue.
// Marked fields the step does not declare are noted and left out. Expected
// fields with no marker are reported as orphaned and left out. The only
// error is an unknown step.
func (p *Parser) ParseWithOrphanHandling(document, step string) (*Result, error) {
	st, err := p.schema.Step(step)
	if err != nil {
		return nil, err
	}

	res := &Result{
		Step:     step,
		Fields:   make(map[string]any),
		Orphaned: []string{},
		Warnings: []string{},
		Info:     []string{},
	}

	meta, body, found := markers.SplitMetadata(document)
	switch {
	case meta != nil:
		res.Metadata = meta
		res.Info = append(res.Info, fmt.Sprintf("generated from %s at %s", meta.Source, meta.GeneratedAt.Format("2006-01-02 15:04:05")))
	case found:
		res.Info = append(res.Info, "sync metadata block is unreadable; ignored")
	}

	sections, duplicates := extractSections(body)
	for _, f := range duplicates {
		res.Warnings = append(res.Warnings, fmt.Sprintf("%s: marker appears more than once; using the last section", f))
	}

	names := make([]string, 0, len(sections))
	for name := range sections {
		names = append(names, name)
	}
	slices.Sort(names)

	for _, name := range names {
		if !st.Known(name) {
			res.Info = append(res.Info, fmt.Sprintf("%s: not a %s field; ignored", name, step))
			continue
		}
		value, err := p.ParseFieldContent(sections[name], name, step)
		if err != nil {
			res.Warnings = append(res.Warnings, fmt.Sprintf("%s: %v", name, err))
			continue
		}
		res.Fields[name] = value
		res.SuccessCount++
	}

	for _, name := range st.Expected() {
		if _, ok := sections[name]; ok {
			continue
		}
		res.Orphaned = append(res.Orphaned, name)
		res.Warnings = append(res.Warnings, fmt.Sprintf("%s: marker %s not found; field is orphaned", name, markers.Tag(name)))
	}

	return res, nil
}
