package generate

import (
	"context"
	"errors"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/starford/gtmkit/internal/llm"
	"github.com/starford/gtmkit/internal/storage"
	"github.com/starford/gtmkit/internal/testutil"
)

func newGenerator(t *testing.T, replies ...string) (*Generator, *llm.Scripted, storage.Provider) {
	t.Helper()
	mgr, store := testutil.TestManager(t)
	p := llm.NewScripted("anthropic", replies...)
	return New(mgr, p, WithModel("claude-test"), WithLogger(testutil.Quiet())), p, store
}

const overviewReply = "Here you go:\n```json\n" +
	`{"description": "A widget maker.", "capabilities": ["Cutting: fast", "Shipping: same-day"]}` +
	"\n```\n"

func TestGenerate_WritesJSONAndPlan(t *testing.T) {
	g, p, store := newGenerator(t, overviewReply)

	res, err := g.Generate(context.Background(), "Acme Corp", "overview", "Industrial widgets for factories.")
	if err != nil {
		t.Fatal(err)
	}
	if res.Project != "acme-corp" || res.Data["description"] != "A widget maker." {
		t.Errorf("result = %+v", res)
	}
	if res.Sync == nil || !res.Sync.Success || res.Sync.FieldsSynced != 2 {
		t.Errorf("sync = %+v", res.Sync)
	}
	if res.Backup != nil {
		t.Errorf("fresh step was backed up: %+v", res.Backup)
	}
	md, err := store.Read("acme-corp/plans/overview.md")
	if err != nil || !strings.Contains(string(md), "{#capabilities}") {
		t.Errorf("plan = %s, %v", md, err)
	}

	calls := p.Calls()
	if len(calls) != 1 {
		t.Fatalf("calls = %d", len(calls))
	}
	prompt := calls[0].Messages[0].Content
	for _, want := range []string{"Company: Acme Corp", "- description (required, text)", "- capabilities (required, list of strings)", "Industrial widgets"} {
		if !strings.Contains(prompt, want) {
			t.Errorf("prompt missing %q:\n%s", want, prompt)
		}
	}
	if calls[0].Model != "claude-test" || calls[0].System == "" {
		t.Errorf("request = %+v", calls[0])
	}
}

func TestGenerate_UsesEarlierSteps(t *testing.T) {
	g, p, _ := newGenerator(t, overviewReply,
		`{"target_persona_name": "VP Ops", "target_persona_description": "Runs plants.", "pain_points": ["Downtime"]}`)
	ctx := context.Background()
	if _, err := g.Generate(ctx, "acme", "overview", ""); err != nil {
		t.Fatal(err)
	}
	if _, err := g.Generate(ctx, "acme", "persona", ""); err != nil {
		t.Fatal(err)
	}
	prompt := p.Calls()[1].Messages[0].Content
	if !strings.Contains(prompt, `Earlier step "overview"`) || !strings.Contains(prompt, "A widget maker.") {
		t.Errorf("prompt lacks overview context:\n%s", prompt)
	}
	if !strings.Contains(prompt, "buying_signals (optional, records with keys title, priority, description, detection_method)") {
		t.Errorf("prompt lacks record shape:\n%s", prompt)
	}
}

func TestGenerate_BacksUpUnsyncedPlanEdits(t *testing.T) {
	g, _, store := newGenerator(t, overviewReply, overviewReply)
	ctx := context.Background()
	if _, err := g.Generate(ctx, "acme", "overview", ""); err != nil {
		t.Fatal(err)
	}

	const plan = "acme/plans/overview.md"
	md, err := store.Read(plan)
	if err != nil {
		t.Fatal(err)
	}
	edited := strings.Replace(string(md), "A widget maker.", "A widget maker. HUMAN EDIT.", 1)
	if edited == string(md) {
		t.Fatalf("description not found in plan:\n%s", md)
	}
	testutil.WriteFile(t, store, plan, edited)
	abs, _ := store.Abs(plan)
	later := time.Now().Add(time.Minute)
	if err := os.Chtimes(abs, later, later); err != nil {
		t.Fatal(err)
	}

	res, err := g.Generate(ctx, "acme", "overview", "")
	if err != nil {
		t.Fatal(err)
	}
	if res.Backup == nil || len(res.Backup.Files) != 2 {
		t.Fatalf("backup = %+v", res.Backup)
	}

	md, _ = store.Read(plan)
	if strings.Contains(string(md), "HUMAN EDIT.") {
		t.Error("plan was not regenerated")
	}
	backups, err := g.mgr.ListBackups("acme", "overview")
	if err != nil {
		t.Fatal(err)
	}
	var kept bool
	for _, b := range backups {
		data, err := store.Read(b.Path)
		if err != nil {
			t.Fatal(err)
		}
		if strings.HasSuffix(b.Path, ".md") && strings.Contains(string(data), "HUMAN EDIT.") {
			kept = true
		}
	}
	if !kept {
		t.Errorf("edit missing from backups %+v", backups)
	}
}

func TestGenerate_RejectsInvalidReply(t *testing.T) {
	g, _, store := newGenerator(t, `{"description": "Only half."}`)
	_, err := g.Generate(context.Background(), "acme", "overview", "")
	if err == nil || !strings.Contains(err.Error(), "does not match schema") {
		t.Fatalf("err = %v", err)
	}
	if _, err := store.Stat("acme/json_output/overview.json"); err == nil {
		t.Error("invalid reply was stored")
	}
}

func TestGenerate_Errors(t *testing.T) {
	g, p, _ := newGenerator(t, "I cannot help with that.")
	if _, err := g.Generate(context.Background(), "acme", "overview", ""); !errors.Is(err, ErrNoJSON) {
		t.Errorf("no json err = %v", err)
	}
	if _, err := g.Generate(context.Background(), "acme", "bogus", ""); err == nil {
		t.Error("expected unknown step error")
	}
	p.FailWith(&llm.ProviderError{Provider: "anthropic", StatusCode: 529, Message: "overloaded"})
	_, err := g.Generate(context.Background(), "acme", "overview", "")
	var pe *llm.ProviderError
	if !errors.As(err, &pe) || !pe.IsOverloaded() {
		t.Errorf("provider err = %v", err)
	}
}

func TestExtractJSON(t *testing.T) {
	tests := []struct {
		in   string
		want string
		ok   bool
	}{
		{`{"a": "b"}`, "b", true},
		{"```json\n{\"a\": \"b\"}\n```", "b", true},
		{`Sure! {"a": "b"} Hope this helps.`, "b", true},
		{"no json here", "", false},
		{`{"a": `, "", false},
	}
	for _, tt := range tests {
		got, err := ExtractJSON(tt.in)
		if (err == nil) != tt.ok {
			t.Errorf("ExtractJSON(%q) err = %v", tt.in, err)
			continue
		}
		if tt.ok && got["a"] != tt.want {
			t.Errorf("ExtractJSON(%q) = %v", tt.in, got)
		}
	}
}
