// Package generate drafts step content with an LLM and hands it to the sync
// engine.
package generate

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/starford/gtmkit/internal/apperr"
	"github.com/starford/gtmkit/internal/llm"
	"github.com/starford/gtmkit/internal/models"
	"github.com/starford/gtmkit/internal/plansync"
	"github.com/starford/gtmkit/internal/schema"
)

// ErrNoJSON is returned when a reply holds no JSON object.
var ErrNoJSON = errors.New("generate: reply contains no JSON object")

// Completer is the part of llm.Gateway the generator needs.
type Completer interface {
	Complete(ctx context.Context, req llm.Request) (*llm.Response, error)
}

// Generator drafts step JSON and regenerates the step's plan from it.
type Generator struct {
	mgr    *plansync.Manager
	llm    Completer
	model  string
	logger *slog.Logger
}

// Option configures a Generator.
type Option func(*Generator)

// WithModel sets the model identifier passed to the gateway.
func WithModel(model string) Option {
	return func(g *Generator) { g.model = model }
}

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(g *Generator) { g.logger = l }
}

// New creates a Generator.
func New(mgr *plansync.Manager, c Completer, opts ...Option) *Generator {
	g := &Generator{mgr: mgr, llm: c, logger: slog.Default()}
	for _, o := range opts {
		o(g)
	}
	return g
}

// Result is the outcome of one generation. Backup is set when unsynced plan
// edits were copied aside before the step was overwritten.
type Result struct {
	Project string                 `json:"project"`
	Step    string                 `json:"step"`
	Data    map[string]any         `json:"data"`
	Sync    *plansync.StepResult   `json:"sync"`
	Backup  *plansync.BackupResult `json:"backup,omitempty"`
	Usage   llm.Usage              `json:"usage"`
}

const systemPrompt = `You write go-to-market strategy content for B2B companies.
Reply with exactly one JSON object and nothing else. Use only the keys listed.
Plain text values are strings, lists are arrays of strings, records are arrays
of objects with the listed keys.`

// Generate asks the model for step's content, validates it against the
// schema, stores it as the step's JSON and regenerates the markdown plan.
// Earlier steps' JSON is passed to the model as context.
func (g *Generator) Generate(ctx context.Context, project, step, brief string) (*Result, error) {
	s := g.mgr.Schema()
	st, err := s.Step(step)
	if err != nil {
		return nil, err
	}

	prompt, err := g.prompt(project, st, brief)
	if err != nil {
		return nil, err
	}
	req := llm.UserPrompt(systemPrompt, prompt)
	req.Model = g.model

	resp, err := g.llm.Complete(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("generate: %s: %w", step, err)
	}
	data, err := ExtractJSON(resp.Text)
	if err != nil {
		return nil, fmt.Errorf("generate: %s: %w", step, err)
	}
	if err := s.Validate(step, data); err != nil {
		return nil, fmt.Errorf("generate: %s: reply does not match schema: %w", step, err)
	}

	backup, err := g.preserveEdits(project, step)
	if err != nil {
		return nil, err
	}

	if err := g.mgr.StoreJSON(project, step, data); err != nil {
		return nil, fmt.Errorf("generate: store %s: %w", step, err)
	}
	res, err := g.mgr.SyncJSONToPlans(project, step)
	if err != nil {
		return nil, err
	}
	g.logger.Info("generate: step drafted",
		slog.String("project", project),
		slog.String("step", step),
		slog.Int("fields", len(data)),
		slog.Bool("plan_written", res.Success))

	return &Result{Project: res.Project, Step: step, Data: data, Sync: res, Backup: backup, Usage: resp.Usage}, nil
}

// preserveEdits backs up the step when its markdown holds edits that were
// never synced back to JSON, since regeneration overwrites both sides.
// It returns nil when there is nothing to keep.
func (g *Generator) preserveEdits(project, step string) (*plansync.BackupResult, error) {
	dir, err := g.mgr.DetectChanges(project, step)
	if err != nil {
		return nil, fmt.Errorf("generate: detect %s: %w", step, err)
	}
	if dir != models.PlansToJSON && dir != models.Conflict {
		return nil, nil
	}
	b, err := g.mgr.CreateBackup(project, step)
	if err != nil {
		return nil, err
	}
	if b.Error != "" {
		return nil, fmt.Errorf("generate: %s has unsynced plan edits and the backup failed: %s", step, b.Error)
	}
	g.logger.Warn("generate: unsynced plan edits backed up",
		slog.String("project", project),
		slog.String("step", step),
		slog.String("detected", string(dir)),
		slog.Any("files", b.Files))
	return b, nil
}

func (g *Generator) prompt(project string, st *schema.Step, brief string) (string, error) {
	var b strings.Builder
	fmt.Fprintf(&b, "Company: %s\n\n", project)
	fmt.Fprintf(&b, "Write the %q step (%s).\n", st.Title, st.Name)
	if st.Description != "" {
		b.WriteString(st.Description + "\n")
	}
	b.WriteString("\nKeys:\n")
	for _, f := range st.Fields {
		req := "required"
		if f.Optional {
			req = "optional"
		}
		fmt.Fprintf(&b, "- %s (%s, %s): %s\n", f.Name, req, describeShape(f), f.Title)
	}

	for _, prev := range g.mgr.Schema().Before(st.Name) {
		data, err := g.mgr.ReadJSON(project, prev)
		if err != nil {
			if errors.Is(err, apperr.ErrNotFound) {
				continue
			}
			return "", err
		}
		ctxJSON, _ := json.MarshalIndent(data, "", "  ")
		fmt.Fprintf(&b, "\nEarlier step %q:\n%s\n", prev, ctxJSON)
	}

	if brief = strings.TrimSpace(brief); brief != "" {
		fmt.Fprintf(&b, "\nBrief:\n%s\n", brief)
	}
	return b.String(), nil
}

func describeShape(f schema.FieldSpec) string {
	switch f.Shape {
	case schema.StringList:
		return "list of strings"
	case schema.Records:
		keys := []string{f.Record.TitleKey}
		if f.Record.QualifierKey != "" {
			keys = append(keys, f.Record.QualifierKey)
		}
		if f.Record.BodyKey != "" {
			keys = append(keys, f.Record.BodyKey)
		}
		for _, c := range f.Record.Clauses {
			keys = append(keys, c.Key)
		}
		return "records with keys " + strings.Join(keys, ", ")
	default:
		return "text"
	}
}

// ExtractJSON pulls the first JSON object out of a model reply, tolerating
// code fences and surrounding prose.
func ExtractJSON(text string) (map[string]any, error) {
	start := strings.Index(text, "{")
	if start < 0 {
		return nil, ErrNoJSON
	}
	dec := json.NewDecoder(strings.NewReader(text[start:]))
	var out map[string]any
	if err := dec.Decode(&out); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrNoJSON, err)
	}
	return out, nil
}
