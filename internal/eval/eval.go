// Package eval scores generated step content in gated stages: cheap
// deterministic checks first, then an optional LLM judge.
package eval

import (
	"context"
	"fmt"
	"log/slog"
)

// Sample is one step's content under evaluation.
type Sample struct {
	Step string
	Data map[string]any
}

// Score is one scorer's verdict. Value is in 0..1.
type Score struct {
	Scorer  string  `json:"scorer"`
	Stage   string  `json:"stage"`
	Value   float64 `json:"value"`
	Weight  float64 `json:"weight"`
	Detail  string  `json:"detail,omitempty"`
	Skipped bool    `json:"skipped,omitempty"`
}

// Scorer rates a sample.
type Scorer interface {
	Name() string
	Score(ctx context.Context, s Sample) (value float64, detail string, err error)
}

// Weighted pairs a scorer with its weight in the overall score.
type Weighted struct {
	Scorer Scorer
	Weight float64
}

// Stage is a group of scorers. Later stages run only when this stage's
// weighted score reaches Gate.
type Stage struct {
	Name    string
	Scorers []Weighted
	Gate    float64
}

// Report is the outcome of a pipeline run.
type Report struct {
	Step      string  `json:"step"`
	Scores    []Score `json:"scores"`
	Overall   float64 `json:"overall"`
	Passed    bool    `json:"passed"`
	StoppedAt string  `json:"stopped_at,omitempty"`
}

// Pipeline runs stages in order.
type Pipeline struct {
	stages   []Stage
	passMark float64
	logger   *slog.Logger
}

// Option configures a Pipeline.
type Option func(*Pipeline)

// WithPassMark sets the overall score needed to pass. Default 0.7.
func WithPassMark(v float64) Option {
	return func(p *Pipeline) { p.passMark = v }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) { p.logger = l }
}

// NewPipeline creates a Pipeline.
func NewPipeline(stages []Stage, opts ...Option) *Pipeline {
	p := &Pipeline{stages: stages, passMark: 0.7, logger: slog.Default()}
	for _, o := range opts {
		o(p)
	}
	return p
}

// Run scores s. A scorer error fails the run; a failed gate skips the
// remaining stages and fails the report.
func (p *Pipeline) Run(ctx context.Context, s Sample) (*Report, error) {
	rep := &Report{Step: s.Step, Scores: []Score{}}
	var sum, weights float64

	for i, st := range p.stages {
		if rep.StoppedAt != "" {
			for _, w := range st.Scorers {
				rep.Scores = append(rep.Scores, Score{Scorer: w.Scorer.Name(), Stage: st.Name, Weight: w.Weight, Skipped: true})
			}
			continue
		}

		var stageSum, stageWeights float64
		for _, w := range st.Scorers {
			v, detail, err := w.Scorer.Score(ctx, s)
			if err != nil {
				return nil, fmt.Errorf("eval: %s: %w", w.Scorer.Name(), err)
			}
			v = clamp(v)
			rep.Scores = append(rep.Scores, Score{Scorer: w.Scorer.Name(), Stage: st.Name, Value: v, Weight: w.Weight, Detail: detail})
			stageSum += v * w.Weight
			stageWeights += w.Weight
		}
		sum += stageSum
		weights += stageWeights

		if stageWeights > 0 && stageSum/stageWeights < st.Gate && i < len(p.stages)-1 {
			rep.StoppedAt = st.Name
			p.logger.Debug("eval: gate not reached", slog.String("stage", st.Name), slog.Float64("score", stageSum/stageWeights))
		}
	}

	if weights > 0 {
		rep.Overall = sum / weights
	}
	rep.Passed = rep.StoppedAt == "" && rep.Overall >= p.passMark
	p.logger.Info("eval: sample scored",
		slog.String("step", s.Step),
		slog.Float64("overall", rep.Overall),
		slog.Bool("passed", rep.Passed))
	return rep, nil
}

func clamp(v float64) float64 {
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
