package eval

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strconv"

	"github.com/starford/gtmkit/internal/llm"
)

// DefaultRubric asks for a holistic quality rating.
const DefaultRubric = `Rate the go-to-market content below from 1 (unusable) to 10
(ready to ship). Consider specificity, internal consistency, and whether a
sales team could act on it. Reply with the number first.`

// ErrNoRating is returned when a judge reply holds no 1-10 rating.
var ErrNoRating = errors.New("eval: judge reply has no 1-10 rating")

var ratingRe = regexp.MustCompile(`\b(10|[1-9])\b`)

// Completer is the part of llm.Gateway the judge needs.
type Completer interface {
	Complete(ctx context.Context, req llm.Request) (*llm.Response, error)
}

// Judge asks a model to rate a sample against a rubric. The 1-10 rating
// is normalised to 0..1.
type Judge struct {
	LLM    Completer
	Model  string
	Rubric string
}

// Name implements Scorer.
func (Judge) Name() string { return "judge" }

// Score implements Scorer.
func (j Judge) Score(ctx context.Context, s Sample) (float64, string, error) {
	rubric := j.Rubric
	if rubric == "" {
		rubric = DefaultRubric
	}
	req := llm.UserPrompt(rubric, fmt.Sprintf("Step: %s\n\n%s", s.Step, describe(s)))
	req.Model = j.Model
	resp, err := j.LLM.Complete(ctx, req)
	if err != nil {
		return 0, "", err
	}
	n, err := ParseRating(resp.Text)
	if err != nil {
		return 0, "", err
	}
	return float64(n-1) / 9, fmt.Sprintf("rated %d/10", n), nil
}

// ParseRating returns the first 1-10 integer in a reply.
func ParseRating(text string) (int, error) {
	m := ratingRe.FindString(text)
	if m == "" {
		return 0, ErrNoRating
	}
	return strconv.Atoi(m)
}
