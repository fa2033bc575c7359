package eval

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/starford/gtmkit/internal/formatter"
	"github.com/starford/gtmkit/internal/parser"
	"github.com/starford/gtmkit/internal/schema"
)

// Completeness is the share of required fields present and non-empty.
type Completeness struct {
	Schema *schema.Schema
}

// Name implements Scorer.
func (Completeness) Name() string { return "completeness" }

// Score implements Scorer.
func (c Completeness) Score(_ context.Context, s Sample) (float64, string, error) {
	st, err := c.Schema.Step(s.Step)
	if err != nil {
		return 0, "", err
	}
	expected := st.Expected()
	if len(expected) == 0 {
		return 1, "", nil
	}
	var missing []string
	for _, f := range expected {
		if schema.IsEmpty(s.Data[f]) {
			missing = append(missing, f)
		}
	}
	v := float64(len(expected)-len(missing)) / float64(len(expected))
	if len(missing) > 0 {
		return v, "missing: " + strings.Join(missing, ", "), nil
	}
	return v, "", nil
}

// SchemaValid scores 1 when the data passes schema validation, else 0.
type SchemaValid struct {
	Schema *schema.Schema
}

// Name implements Scorer.
func (SchemaValid) Name() string { return "schema_valid" }

// Score implements Scorer.
func (v SchemaValid) Score(_ context.Context, s Sample) (float64, string, error) {
	if _, err := v.Schema.Step(s.Step); err != nil {
		return 0, "", err
	}
	if err := v.Schema.Validate(s.Step, s.Data); err != nil {
		return 0, err.Error(), nil
	}
	return 1, "", nil
}

// RoundTrip is the share of declared fields that survive rendering to
// markdown and parsing back unchanged.
type RoundTrip struct {
	Schema *schema.Schema
}

// Name implements Scorer.
func (RoundTrip) Name() string { return "round_trip" }

// Score implements Scorer.
func (r RoundTrip) Score(_ context.Context, s Sample) (float64, string, error) {
	st, err := r.Schema.Step(s.Step)
	if err != nil {
		return 0, "", err
	}
	doc, err := formatter.New(r.Schema).FormatWithMarkers(s.Data, s.Step)
	if err != nil {
		return 0, "", err
	}
	res, err := parser.New(r.Schema).ParseWithOrphanHandling(doc, s.Step)
	if err != nil {
		return 0, "", err
	}

	var total int
	var lost []string
	for _, name := range st.FieldNames() {
		v, ok := s.Data[name]
		if !ok || schema.IsEmpty(v) {
			continue
		}
		total++
		if !sameJSON(v, res.Fields[name]) {
			lost = append(lost, name)
		}
	}
	if total == 0 {
		return 0, "no declared fields", nil
	}
	v := float64(total-len(lost)) / float64(total)
	if len(lost) > 0 {
		return v, "changed by round trip: " + strings.Join(lost, ", "), nil
	}
	return v, "", nil
}

func sameJSON(a, b any) bool {
	ja, err := json.Marshal(a)
	if err != nil {
		return false
	}
	jb, err := json.Marshal(b)
	if err != nil {
		return false
	}
	return string(ja) == string(jb)
}

// describe renders sample data for prompts.
func describe(s Sample) string {
	b, err := json.MarshalIndent(s.Data, "", "  ")
	if err != nil {
		return fmt.Sprint(s.Data)
	}
	return string(b)
}
