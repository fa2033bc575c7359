package markers

import (
	"fmt"
	"slices"
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
)

// IssueKind classifies a lint finding.
type IssueKind string

// Lint finding kinds.
const (
	IssueDuplicate IssueKind = "duplicate"
	IssueNotHeader IssueKind = "not_header"
)

// Issue is one lint finding. Line is 1-indexed.
type Issue struct {
	Kind    IssueKind `json:"kind"`
	Field   string    `json:"field"`
	Line    int       `json:"line"`
	Message string    `json:"message"`
}

// Lint cross-checks the line-oriented marker scan against a CommonMark parse
// of the document. It reports fields marked more than once and marker-shaped
// lines that CommonMark does not treat as headings (for example inside a
// fenced code block). The sync parser still honours such lines, so they are
// worth surfacing before an edit is synced back.
func Lint(document []byte) []Issue {
	scanned := scanMarkers(string(document))
	headings := headingMarkers(document)

	var issues []Issue
	fields := make([]string, 0, len(scanned))
	for f := range scanned {
		fields = append(fields, f)
	}
	slices.Sort(fields)

	for _, f := range fields {
		lines := scanned[f]
		if len(lines) > 1 {
			issues = append(issues, Issue{
				Kind:    IssueDuplicate,
				Field:   f,
				Line:    lines[len(lines)-1],
				Message: fmt.Sprintf("field %q is marked %d times (lines %s); the last one wins", f, len(lines), joinInts(lines)),
			})
		}
		for _, ln := range lines {
			if _, ok := headings[ln]; !ok {
				issues = append(issues, Issue{
					Kind:    IssueNotHeader,
					Field:   f,
					Line:    ln,
					Message: fmt.Sprintf("marker for %q on line %d is not a markdown heading (code block?)", f, ln),
				})
			}
		}
	}
	return issues
}

func scanMarkers(doc string) map[string][]int {
	out := make(map[string][]int)
	for i, line := range strings.Split(doc, "\n") {
		if h, ok := ParseLine(line); ok && h.Marked() {
			out[h.Field] = append(out[h.Field], i+1)
		}
	}
	return out
}

// headingMarkers returns the 1-indexed lines of headings that carry an id
// attribute according to goldmark.
func headingMarkers(src []byte) map[int]string {
	md := goldmark.New(goldmark.WithParserOptions(parser.WithHeadingAttribute()))
	doc := md.Parser().Parse(text.NewReader(src))
	lineStarts := computeLineStarts(src)

	out := make(map[int]string)
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}
		heading, ok := n.(*ast.Heading)
		if !ok || heading.Lines().Len() == 0 {
			return ast.WalkContinue, nil
		}
		raw, ok := heading.AttributeString("id")
		if !ok {
			return ast.WalkContinue, nil
		}
		id, ok := raw.([]byte)
		if !ok {
			return ast.WalkContinue, nil
		}
		line := offsetToLine(lineStarts, heading.Lines().At(0).Start) + 1
		out[line] = string(id)
		return ast.WalkSkipChildren, nil
	})
	return out
}

func computeLineStarts(content []byte) []int {
	starts := []int{0}
	for i, c := range content {
		if c == '\n' && i+1 < len(content) {
			starts = append(starts, i+1)
		}
	}
	return starts
}

func offsetToLine(lineStarts []int, offset int) int {
	for i := len(lineStarts) - 1; i >= 0; i-- {
		if lineStarts[i] <= offset {
			return i
		}
	}
	return 0
}

func joinInts(xs []int) string {
	parts := make([]string, len(xs))
	for i, x := range xs {
		parts[i] = fmt.Sprint(x)
	}
	return strings.Join(parts, ", ")
}
