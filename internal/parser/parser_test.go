package parser

import (
	"encoding/json"
	"errors"
	"reflect"
	"slices"
	"strings"
	"testing"

	"github.com/starford/gtmkit/internal/apperr"
	"github.com/starford/gtmkit/internal/formatter"
	"github.com/starford/gtmkit/internal/schema"
)

func newParser() *Parser { return New(schema.Default()) }

func TestExtractMarkedSections(t *testing.T) {
	doc := `intro text is dropped
# Overview

## Description {#description}
A widget maker.
Second line.

## Notes
unmarked content is dropped

### Capabilities {#capabilities}
- Cutting
`
	got := ExtractMarkedSections(doc)
	if len(got) != 2 {
		t.Fatalf("sections = %v", got)
	}
	if strings.TrimSpace(got["description"]) != "A widget maker.\nSecond line." {
		t.Errorf("description = %q", got["description"])
	}
	if strings.Contains(got["description"], "unmarked") {
		t.Error("bare header must end the section")
	}
	if strings.TrimSpace(got["capabilities"]) != "- Cutting" {
		t.Errorf("capabilities = %q", got["capabilities"])
	}
}

func TestExtractMarkedSections_DuplicateLastWins(t *testing.T) {
	doc := "## A {#description}\nfirst\n## B {#description}\nsecond\n"
	sections, dups := extractSections(doc)
	if strings.TrimSpace(sections["description"]) != "second" {
		t.Errorf("description = %q", sections["description"])
	}
	if !slices.Equal(dups, []string{"description"}) {
		t.Errorf("duplicates = %v", dups)
	}
}

func TestParseFieldContent_List(t *testing.T) {
	p := newParser()
	got, err := p.ParseFieldContent("- Alpha: one\n- Beta: two", "capabilities", "overview")
	if err != nil {
		t.Fatal(err)
	}
	if want := []string{"Alpha: one", "Beta: two"}; !reflect.DeepEqual(got, want) {
		t.Errorf("got %#v, want %#v", got, want)
	}
}

func TestParseFieldContent_ListContinuation(t *testing.T) {
	p := newParser()
	raw := "- Alpha: one\n  continues here\n* Beta\n1. Gamma\n2) Delta\n-\nEpsilon"
	got, err := p.ParseFieldContent(raw, "capabilities", "overview")
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"Alpha: one continues here", "Beta", "Gamma", "Delta", "Epsilon"}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %#v, want %#v", got, want)
	}
}

func TestParseFieldContent_ListLeadingText(t *testing.T) {
	got := parseList("Loose line\n- Bullet\n")
	if want := []string{"Loose line", "Bullet"}; !reflect.DeepEqual(got, want) {
		t.Errorf("got %#v, want %#v", got, want)
	}
	if got := parseList("  \n\n"); len(got) != 0 {
		t.Errorf("blank content should yield no items, got %#v", got)
	}
}

func TestParseFieldContent_TextAndUnknown(t *testing.T) {
	p := newParser()
	got, err := p.ParseFieldContent("\n  A widget maker.  \n\n", "description", "overview")
	if err != nil || got != "A widget maker." {
		t.Errorf("got %#v, %v", got, err)
	}
	got, err = p.ParseFieldContent("\n- raw\n", "mystery", "overview")
	if err != nil || got != "- raw" {
		t.Errorf("unknown field got %#v, %v", got, err)
	}
	if _, err := p.ParseFieldContent("x", "description", "nope"); !errors.Is(err, apperr.ErrUnknownStep) {
		t.Errorf("err = %v, want ErrUnknownStep", err)
	}
}

func TestParseFieldContent_Records(t *testing.T) {
	p := newParser()
	raw := `
**Recent funding (High)**
Raised a Series B in the last six months.
*Detection: Crunchbase alerts*

**Hiring SDRs**
Job posts for sales development. _Detection: LinkedIn jobs_

**Tooling change (Low)**
Moved off a competitor.
*Source Url: https://example.com*
`
	got, err := p.ParseFieldContent(raw, "buying_signals", "account")
	if err != nil {
		t.Fatal(err)
	}
	want := []map[string]any{
		{"title": "Recent funding", "priority": "High", "description": "Raised a Series B in the last six months.", "detection_method": "Crunchbase alerts"},
		{"title": "Hiring SDRs", "description": "Job posts for sales development.", "detection_method": "LinkedIn jobs"},
		{"title": "Tooling change", "priority": "Low", "description": "Moved off a competitor.", "source_url": "https://example.com"},
	}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got  %#v\nwant %#v", got, want)
	}
}

func TestParseFieldContent_RecordsWithoutTitles(t *testing.T) {
	p := newParser()
	_, err := p.ParseFieldContent("just prose", "buying_signals", "account")
	if !errors.Is(err, ErrNoRecords) {
		t.Errorf("err = %v, want ErrNoRecords", err)
	}
}

func TestParseWithOrphanHandling_PartialSuccess(t *testing.T) {
	p := newParser()
	doc := `# Buyer Persona

## Persona {#target_persona_name}
VP Sales

## Signals {#buying_signals}
nothing bold here

## Legacy {#old_field}
stale
`
	res, err := p.ParseWithOrphanHandling(doc, "persona")
	if err != nil {
		t.Fatal(err)
	}
	if !res.IsSuccess() || res.SuccessCount != 1 {
		t.Fatalf("SuccessCount = %d", res.SuccessCount)
	}
	if res.Fields["target_persona_name"] != "VP Sales" {
		t.Errorf("fields = %v", res.Fields)
	}
	if _, ok := res.Fields["buying_signals"]; ok {
		t.Error("malformed field should be left out")
	}
	if _, ok := res.Fields["old_field"]; ok {
		t.Error("undeclared field should be left out")
	}
	if want := []string{"target_persona_description", "pain_points"}; !slices.Equal(res.Orphaned, want) {
		t.Errorf("orphaned = %v, want %v", res.Orphaned, want)
	}
	if !containsPrefix(res.Warnings, "buying_signals:") {
		t.Errorf("warnings = %v", res.Warnings)
	}
	if !containsPrefix(res.Info, "old_field:") {
		t.Errorf("info = %v", res.Info)
	}
}

func TestParseWithOrphanHandling_ZeroFields(t *testing.T) {
	res, err := newParser().ParseWithOrphanHandling("# Just a title\n\nSome prose.\n", "overview")
	if err != nil {
		t.Fatal(err)
	}
	if res.IsSuccess() {
		t.Error("a document with no parsed fields is not a success")
	}
	if !slices.Equal(res.Orphaned, []string{"description", "capabilities"}) {
		t.Errorf("orphaned = %v", res.Orphaned)
	}
}

func TestParseWithOrphanHandling_DuplicateWarns(t *testing.T) {
	doc := "## A {#description}\nold\n## B {#description}\nnew\n## C {#capabilities}\n- x\n"
	res, err := newParser().ParseWithOrphanHandling(doc, "overview")
	if err != nil {
		t.Fatal(err)
	}
	if res.Fields["description"] != "new" {
		t.Errorf("description = %v", res.Fields["description"])
	}
	if !containsPrefix(res.Warnings, "description: marker appears more than once") {
		t.Errorf("warnings = %v", res.Warnings)
	}
}

func TestParseWithOrphanHandling_Metadata(t *testing.T) {
	doc := "<!-- gtm-sync\ngenerated_at: 2026-10-18T09:00:00Z\nsource: overview.json\n-->\n## D {#description}\nx\n"
	res, err := newParser().ParseWithOrphanHandling(doc, "overview")
	if err != nil {
		t.Fatal(err)
	}
	if res.Metadata == nil || res.Metadata.Source != "overview.json" {
		t.Errorf("metadata = %+v", res.Metadata)
	}
}

func TestOrphanDetectionCompleteness(t *testing.T) {
	s := schema.Default()
	f := formatter.New(s)
	p := New(s)
	for _, step := range s.Steps() {
		st, _ := s.Step(step)
		data := sampleData(st)
		doc, err := f.FormatWithMarkers(data, step)
		if err != nil {
			t.Fatal(err)
		}
		expected := st.Expected()
		// Remove every subset of expected markers.
		for mask := 0; mask < 1<<len(expected); mask++ {
			var removed []string
			edited := doc
			for i, name := range expected {
				if mask&(1<<i) != 0 {
					removed = append(removed, name)
					edited = strings.Replace(edited, " {#"+name+"}", "", 1)
				}
			}
			res, err := p.ParseWithOrphanHandling(edited, step)
			if err != nil {
				t.Fatal(err)
			}
			if !slices.Equal(res.Orphaned, nonNil(removed)) {
				t.Errorf("%s mask %b: orphaned = %v, want %v", step, mask, res.Orphaned, removed)
			}
			for _, name := range removed {
				if _, ok := res.Fields[name]; ok {
					t.Errorf("%s: orphaned field %q present in result", step, name)
				}
			}
		}
	}
}

func TestRoundTrip(t *testing.T) {
	s := schema.Default()
	f := formatter.New(s)
	p := New(s)
	for _, step := range s.Steps() {
		st, _ := s.Step(step)
		data := sampleData(st)
		doc, err := f.FormatWithMarkers(data, step)
		if err != nil {
			t.Fatal(err)
		}
		res, err := p.ParseWithOrphanHandling(doc, step)
		if err != nil {
			t.Fatal(err)
		}
		if len(res.Warnings) != 0 {
			t.Errorf("%s: warnings %v", step, res.Warnings)
		}
		if !reflect.DeepEqual(normalize(t, res.Fields), normalize(t, data)) {
			t.Errorf("%s round trip mismatch:\n got  %v\n want %v\n doc:\n%s", step, res.Fields, data, doc)
		}
	}
}

func TestRoundTrip_ParentheticalTitles(t *testing.T) {
	s := schema.Default()
	signals := []any{
		map[string]any{"title": "Hiring (Ops)", "description": "Posting roles."},
		map[string]any{"title": "Expansion (EMEA)", "priority": "High", "description": "New office."},
		map[string]any{"title": "Plan B)", "description": "Odd title."},
	}
	doc, err := formatter.New(s).FormatWithMarkers(map[string]any{"buying_signals": signals}, "account")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(doc, "**Hiring (Ops) ()**") || !strings.Contains(doc, "**Expansion (EMEA) (High)**") {
		t.Fatalf("record titles not disambiguated:\n%s", doc)
	}
	res, err := New(s).ParseWithOrphanHandling(doc, "account")
	if err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(normalize(t, res.Fields["buying_signals"]), normalize(t, signals)) {
		t.Errorf("got  %v\nwant %v\ndoc:\n%s", res.Fields["buying_signals"], signals, doc)
	}
}

func TestParseRecords_NoQualifierKey(t *testing.T) {
	spec := &schema.RecordSpec{TitleKey: "name", BodyKey: "notes"}
	got, err := parseRecords("**Acme (US)**\nBig account.\n", spec)
	if err != nil {
		t.Fatal(err)
	}
	want := []map[string]any{{"name": "Acme (US)", "notes": "Big account."}}
	if !reflect.DeepEqual(got, want) {
		t.Errorf("got %#v", got)
	}
}

func TestEndToEndOverviewScenario(t *testing.T) {
	s := schema.Default()
	data := map[string]any{
		"description":  "A widget maker.",
		"capabilities": []any{"Cutting: fast", "Shipping: same-day"},
	}
	doc, err := formatter.New(s).FormatWithMarkers(data, "overview")
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(doc, "{#description}") || !strings.Contains(doc, "{#capabilities}") {
		t.Fatalf("markers missing:\n%s", doc)
	}
	p := New(s)
	res, _ := p.ParseWithOrphanHandling(doc, "overview")
	if res.Fields["description"] != "A widget maker." {
		t.Errorf("description = %v", res.Fields["description"])
	}
	if !reflect.DeepEqual(res.Fields["capabilities"], []string{"Cutting: fast", "Shipping: same-day"}) {
		t.Errorf("capabilities = %v", res.Fields["capabilities"])
	}

	edited := strings.Replace(doc, " {#capabilities}", "", 1)
	res, _ = p.ParseWithOrphanHandling(edited, "overview")
	if !slices.Equal(res.Orphaned, []string{"capabilities"}) {
		t.Errorf("orphaned = %v", res.Orphaned)
	}
	if len(res.Fields) != 1 || res.Fields["description"] != "A widget maker." {
		t.Errorf("fields = %v", res.Fields)
	}
}

func sampleData(st *schema.Step) map[string]any {
	data := make(map[string]any)
	for _, f := range st.Fields {
		switch f.Shape {
		case schema.StringList:
			data[f.Name] = []any{f.Title + ": first", f.Title + ": second"}
		case schema.Records:
			data[f.Name] = []any{
				map[string]any{"title": "Recent funding", "priority": "High", "description": "Raised a round.", "detection_method": "Crunchbase"},
				map[string]any{"title": "New exec", "description": "Hired a CRO."},
			}
		default:
			data[f.Name] = "Text for " + f.Title + "."
		}
	}
	return data
}

func normalize(t *testing.T, v any) any {
	t.Helper()
	raw, err := json.Marshal(v)
	if err != nil {
		t.Fatal(err)
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		t.Fatal(err)
	}
	return out
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func containsPrefix(list []string, prefix string) bool {
	for _, s := range list {
		if strings.HasPrefix(s, prefix) {
			return true
		}
	}
	return false
}
