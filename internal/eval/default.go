package eval

import "github.com/starford/gtmkit/internal/schema"

// DefaultStages returns the deterministic stage and, when judge is non-nil,
// a judge stage gated on the deterministic score reaching 0.8.
func DefaultStages(s *schema.Schema, judge *Judge) []Stage {
	stages := []Stage{{
		Name: "deterministic",
		Gate: 0.8,
		Scorers: []Weighted{
			{Scorer: Completeness{Schema: s}, Weight: 2},
			{Scorer: SchemaValid{Schema: s}, Weight: 1},
			{Scorer: RoundTrip{Schema: s}, Weight: 1},
		},
	}}
	if judge != nil {
		stages = append(stages, Stage{
			Name:    "judge",
			Scorers: []Weighted{{Scorer: *judge, Weight: 4}},
		})
	}
	return stages
}
