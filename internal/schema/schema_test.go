package schema

import (
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/starford/gtmkit/internal/apperr"
)

func TestDefault_StepOrder(t *testing.T) {
	s := Default()
	want := []string{"overview", "account", "persona", "email"}
	if got := s.Steps(); !slices.Equal(got, want) {
		t.Errorf("Steps() = %v, want %v", got, want)
	}
	if got := s.Before("persona"); !slices.Equal(got, []string{"overview", "account"}) {
		t.Errorf("Before(persona) = %v", got)
	}
}

func TestStep_Unknown(t *testing.T) {
	_, err := Default().Step("pricing")
	if !errors.Is(err, apperr.ErrUnknownStep) {
		t.Fatalf("err = %v, want ErrUnknownStep", err)
	}
}

func TestStep_ExpectedSkipsOptional(t *testing.T) {
	st, err := Default().Step("overview")
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"description", "capabilities"}
	if got := st.Expected(); !slices.Equal(got, want) {
		t.Errorf("Expected() = %v, want %v", got, want)
	}
	if !st.Known("testimonials") {
		t.Error("testimonials should be known")
	}
}

func TestNew_RejectsBadSteps(t *testing.T) {
	cases := map[string]*Step{
		"no name":       {Fields: []FieldSpec{{Name: "a"}}},
		"no fields":     {Name: "x"},
		"dup field":     {Name: "x", Fields: []FieldSpec{{Name: "a"}, {Name: "a"}}},
		"bad shape":     {Name: "x", Fields: []FieldSpec{{Name: "a", Shape: "table"}}},
		"record no key": {Name: "x", Fields: []FieldSpec{{Name: "a", Shape: Records}}},
	}
	for name, st := range cases {
		if _, err := New(st); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestNew_DefaultsTitlesAndShape(t *testing.T) {
	s, err := New(&Step{Name: "pricing_page", Fields: []FieldSpec{{Name: "price_tiers"}}})
	if err != nil {
		t.Fatal(err)
	}
	st, _ := s.Step("pricing_page")
	if st.Title != "Pricing Page" {
		t.Errorf("step title = %q", st.Title)
	}
	f, _ := st.Field("price_tiers")
	if f.Title != "Price Tiers" || f.Shape != PlainText {
		t.Errorf("field = %+v", f)
	}
}

func TestLoad_OverridesAndAppends(t *testing.T) {
	path := filepath.Join(t.TempDir(), "steps.yaml")
	content := `steps:
  - name: overview
    title: Overview
    fields:
      - name: description
        shape: text
  - name: pricing
    fields:
      - name: tiers
        shape: list
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	s, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := []string{"overview", "account", "persona", "email", "pricing"}
	if got := s.Steps(); !slices.Equal(got, want) {
		t.Errorf("Steps() = %v, want %v", got, want)
	}
	st, _ := s.Step("overview")
	if len(st.Fields) != 1 {
		t.Errorf("overview should be replaced, has %d fields", len(st.Fields))
	}
}

func TestValidate(t *testing.T) {
	s := Default()
	ok := map[string]any{
		"description":  "A widget maker.",
		"capabilities": []any{"Cutting: fast"},
		"extra":        42,
	}
	if err := s.Validate("overview", ok); err != nil {
		t.Errorf("valid data rejected: %v", err)
	}

	missing := map[string]any{"description": "x"}
	err := s.Validate("overview", missing)
	if err == nil || !strings.Contains(err.Error(), "capabilities") {
		t.Errorf("missing field error = %v", err)
	}

	wrongShape := map[string]any{"description": "x", "capabilities": "not a list"}
	if err := s.Validate("overview", wrongShape); err == nil {
		t.Error("expected shape error")
	}

	badRecord := map[string]any{
		"target_account_name":        "Mid-market SaaS",
		"target_account_description": "Series B",
		"buying_signals":             []any{map[string]any{"priority": "High"}},
	}
	if err := s.Validate("account", badRecord); err == nil {
		t.Error("expected record title error")
	}
}

func TestTitleFromName(t *testing.T) {
	if got := TitleFromName("call_to_action"); got != "Call To Action" {
		t.Errorf("got %q", got)
	}
}
