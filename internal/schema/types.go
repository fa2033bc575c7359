// Package schema declares the fields each pipeline step carries and the
// content shape of every field. Parsers and formatters consult it generically
// instead of branching on field names.
package schema

import (
	"fmt"
	"slices"

	"github.com/starford/gtmkit/internal/apperr"
)

// Shape is the content shape of a field.
type Shape string

// Supported shapes.
const (
	PlainText  Shape = "text"
	StringList Shape = "list"
	Records    Shape = "records"
)

// Clause is a labelled italic line inside a record, e.g. "*Detection: ...*".
type Clause struct {
	Label string `yaml:"label"`
	Key   string `yaml:"key"`
}

// RecordSpec describes the sub-grammar of a Records field. Each record is
// introduced by a bold "Title (Qualifier)" line followed by free text.
type RecordSpec struct {
	TitleKey     string   `yaml:"title_key"`
	QualifierKey string   `yaml:"qualifier_key"`
	BodyKey      string   `yaml:"body_key"`
	Clauses      []Clause `yaml:"clauses"`
}

// ClauseKey returns the record key bound to label, matched case-insensitively.
func (r *RecordSpec) ClauseKey(label string) (string, bool) {
	for _, c := range r.Clauses {
		if equalFold(c.Label, label) {
			return c.Key, true
		}
	}
	return "", false
}

// FieldSpec declares one field of a step.
type FieldSpec struct {
	Name     string      `yaml:"name"`
	Title    string      `yaml:"title"`
	Shape    Shape       `yaml:"shape"`
	Optional bool        `yaml:"optional"`
	Record   *RecordSpec `yaml:"record,omitempty"`
}

// Step declares a pipeline step and its ordered fields.
type Step struct {
	Name        string      `yaml:"name"`
	Title       string      `yaml:"title"`
	Description string      `yaml:"description"`
	Fields      []FieldSpec `yaml:"fields"`
}

// Field looks up a field by name.
func (s *Step) Field(name string) (FieldSpec, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return FieldSpec{}, false
}

// FieldNames returns every declared field name in declaration order.
func (s *Step) FieldNames() []string {
	out := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		out[i] = f.Name
	}
	return out
}

// Expected returns the non-optional field names in declaration order.
// These are the fields whose missing markers count as orphaned.
func (s *Step) Expected() []string {
	var out []string
	for _, f := range s.Fields {
		if !f.Optional {
			out = append(out, f.Name)
		}
	}
	return out
}

// Known reports whether name is declared on the step.
func (s *Step) Known(name string) bool {
	_, ok := s.Field(name)
	return ok
}

func (s *Step) check() error {
	if s.Name == "" {
		return fmt.Errorf("schema: step without a name")
	}
	if len(s.Fields) == 0 {
		return fmt.Errorf("schema: step %q declares no fields", s.Name)
	}
	seen := make(map[string]struct{}, len(s.Fields))
	for i := range s.Fields {
		f := &s.Fields[i]
		if f.Name == "" {
			return fmt.Errorf("schema: step %q: field %d has no name", s.Name, i)
		}
		if _, dup := seen[f.Name]; dup {
			return fmt.Errorf("schema: step %q: duplicate field %q", s.Name, f.Name)
		}
		seen[f.Name] = struct{}{}
		if f.Title == "" {
			f.Title = TitleFromName(f.Name)
		}
		switch f.Shape {
		case PlainText, StringList:
		case Records:
			if f.Record == nil || f.Record.TitleKey == "" {
				return fmt.Errorf("schema: step %q: records field %q needs record.title_key", s.Name, f.Name)
			}
		case "":
			f.Shape = PlainText
		default:
			return fmt.Errorf("schema: step %q: field %q has unknown shape %q", s.Name, f.Name, f.Shape)
		}
	}
	if s.Title == "" {
		s.Title = TitleFromName(s.Name)
	}
	return nil
}

// Schema is the ordered set of steps known to the pipeline.
type Schema struct {
	steps  []*Step
	byName map[string]*Step
}

// New builds a Schema from steps, in pipeline order.
func New(steps ...*Step) (*Schema, error) {
	s := &Schema{byName: make(map[string]*Step, len(steps))}
	for _, st := range steps {
		if err := st.check(); err != nil {
			return nil, err
		}
		if _, dup := s.byName[st.Name]; dup {
			return nil, fmt.Errorf("schema: duplicate step %q", st.Name)
		}
		s.steps = append(s.steps, st)
		s.byName[st.Name] = st
	}
	return s, nil
}

// Step returns the named step or an error wrapping apperr.ErrUnknownStep.
func (s *Schema) Step(name string) (*Step, error) {
	st, ok := s.byName[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", apperr.ErrUnknownStep, name)
	}
	return st, nil
}

// Steps returns step names in pipeline order.
func (s *Schema) Steps() []string {
	out := make([]string, len(s.steps))
	for i, st := range s.steps {
		out[i] = st.Name
	}
	return out
}

// Before returns the steps that precede name in pipeline order.
func (s *Schema) Before(name string) []string {
	names := s.Steps()
	if i := slices.Index(names, name); i >= 0 {
		return names[:i]
	}
	return nil
}

// With returns a new Schema where steps replace same-named steps and
// unknown ones are appended.
func (s *Schema) With(steps ...*Step) (*Schema, error) {
	merged := make([]*Step, 0, len(s.steps)+len(steps))
	override := make(map[string]*Step, len(steps))
	for _, st := range steps {
		override[st.Name] = st
	}
	for _, st := range s.steps {
		if o, ok := override[st.Name]; ok {
			merged = append(merged, o)
			delete(override, st.Name)
			continue
		}
		merged = append(merged, st)
	}
	for _, st := range steps {
		if _, ok := override[st.Name]; ok {
			merged = append(merged, st)
		}
	}
	return New(merged...)
}
