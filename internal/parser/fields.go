package parser

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/starford/gtmkit/internal/schema"
)

var (
	bulletRe       = regexp.MustCompile(`^\s*(?:[-*+]|\d+[.)])\s+(.*)$`)
	emptyBulletRe  = regexp.MustCompile(`^\s*(?:[-*+]|\d+[.)])\s*$`)
	recordTitleRe  = regexp.MustCompile(`^\*\*((.+?)(?:\s*\(([^()]*)\))?)\*\*\s*:?\s*$`)
	clauseLineRe   = regexp.MustCompile(`^[*_]\s*([A-Za-z][A-Za-z0-9 _-]*?)\s*:\s*(.*?)\s*[*_]$`)
	inlineClauseRe = regexp.MustCompile(`\s*[*_]([A-Za-z][A-Za-z0-9 _-]*?)\s*:\s*([^*_]+?)\s*[*_]\s*$`)
)

// ErrNoRecords is returned when a records field holds text but no record
// title lines.
var ErrNoRecords = errors.New("no records found")

// ParseFieldContent converts the raw content of a marked section into the
// field's declared shape. Undeclared fields come back as trimmed raw text.
func (p *Parser) ParseFieldContent(raw, field, step string) (any, error) {
	st, err := p.schema.Step(step)
	if err != nil {
		return nil, err
	}
	spec, ok := st.Field(field)
	if !ok {
		return strings.TrimSpace(raw), nil
	}
	switch spec.Shape {
	case schema.StringList:
		return parseList(raw), nil
	case schema.Records:
		return parseRecords(raw, spec.Record)
	default:
		return strings.TrimSpace(raw), nil
	}
}

// parseList reads bullet and numbered items. A non-bullet line continues the
// previous item; before any bullet it starts an item of its own.
func parseList(raw string) []string {
	items := []string{}
	open := false
	for _, line := range strings.Split(raw, "\n") {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			continue
		}
		if emptyBulletRe.MatchString(line) {
			items = append(items, "")
			open = true
			continue
		}
		if m := bulletRe.FindStringSubmatch(line); m != nil {
			items = append(items, strings.TrimSpace(m[1]))
			open = true
			continue
		}
		if !open {
			items = append(items, trimmed)
			open = true
			continue
		}
		last := len(items) - 1
		if items[last] == "" {
			items[last] = trimmed
		} else {
			items[last] += " " + trimmed
		}
	}

	out := items[:0]
	for _, it := range items {
		if it != "" {
			out = append(out, it)
		}
	}
	return out
}

// parseRecords reads records introduced by bold "Title (Qualifier)" lines.
// Free text below a title is the record body; italic "Label: value" lines,
// whole or trailing a body line, become keyed clauses.
func parseRecords(raw string, spec *schema.RecordSpec) ([]map[string]any, error) {
	var records []map[string]any
	var current map[string]any
	var body []string

	flush := func() {
		if current == nil {
			return
		}
		if text := strings.TrimSpace(strings.Join(body, "\n")); text != "" && spec.BodyKey != "" {
			current[spec.BodyKey] = text
		}
		records = append(records, current)
		current = nil
		body = nil
	}

	for _, line := range strings.Split(raw, "\n") {
		trimmed := strings.TrimSpace(line)
		if m := recordTitleRe.FindStringSubmatch(trimmed); m != nil {
			flush()
			if spec.QualifierKey == "" {
				current = map[string]any{spec.TitleKey: strings.TrimSpace(m[1])}
				continue
			}
			current = map[string]any{spec.TitleKey: strings.TrimSpace(m[2])}
			if q := strings.TrimSpace(m[3]); q != "" {
				current[spec.QualifierKey] = q
			}
			continue
		}
		if current == nil {
			continue
		}
		if m := clauseLineRe.FindStringSubmatch(trimmed); m != nil {
			current[clauseKey(spec, m[1])] = m[2]
			continue
		}
		if m := inlineClauseRe.FindStringSubmatchIndex(line); m != nil {
			label := line[m[2]:m[3]]
			if key, ok := spec.ClauseKey(label); ok {
				current[key] = line[m[4]:m[5]]
				line = line[:m[0]]
			}
		}
		body = append(body, line)
	}
	flush()

	if len(records) == 0 {
		if strings.TrimSpace(raw) == "" {
			return []map[string]any{}, nil
		}
		return nil, fmt.Errorf("%w: expected bold **Title (Priority)** lines", ErrNoRecords)
	}
	return records, nil
}

func clauseKey(spec *schema.RecordSpec, label string) string {
	if key, ok := spec.ClauseKey(label); ok {
		return key
	}
	return strings.ToLower(strings.Join(strings.Fields(label), "_"))
}
