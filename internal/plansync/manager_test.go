package plansync

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"

	"github.com/starford/gtmkit/internal/apperr"
	"github.com/starford/gtmkit/internal/checksum"
	"github.com/starford/gtmkit/internal/models"
	"github.com/starford/gtmkit/internal/project"
	"github.com/starford/gtmkit/internal/schema"
	"github.com/starford/gtmkit/internal/storage"
	"github.com/starford/gtmkit/internal/syncstate"
)

const (
	overviewJSON  = "acme/json_output/overview.json"
	overviewPlans = "acme/plans/overview.md"
)

type harness struct {
	m     *Manager
	fs    *storage.FS
	root  string
	state *syncstate.Store
	rec   *memRecorder
}

type memRecorder struct {
	results []*StepResult
}

func (r *memRecorder) Record(res *StepResult) error {
	r.results = append(r.results, res)
	return nil
}

func newHarness(t *testing.T, opts ...Option) *harness {
	t.Helper()
	root := t.TempDir()
	fs, err := storage.NewFS(root)
	if err != nil {
		t.Fatal(err)
	}
	layout := project.NewLayout(fs)
	rec := &memRecorder{}
	base := []Option{
		WithLogger(slog.New(slog.NewTextHandler(io.Discard, nil))),
		WithRecorder(rec),
	}
	m := NewManager(schema.Default(), layout, append(base, opts...)...)
	return &harness{m: m, fs: fs, root: root, state: syncstate.NewStore(layout), rec: rec}
}

func (h *harness) write(t *testing.T, rel, content string) {
	t.Helper()
	if err := h.fs.Write(rel, []byte(content)); err != nil {
		t.Fatal(err)
	}
}

func (h *harness) read(t *testing.T, rel string) string {
	t.Helper()
	data, err := h.fs.Read(rel)
	if err != nil {
		t.Fatal(err)
	}
	return string(data)
}

func (h *harness) touch(t *testing.T, rel string, at time.Time) {
	t.Helper()
	if err := os.Chtimes(filepath.Join(h.root, filepath.FromSlash(rel)), at, at); err != nil {
		t.Fatal(err)
	}
}

func (h *harness) detect(t *testing.T) models.Direction {
	t.Helper()
	d, err := h.m.detector.DetectChanges("acme", "overview")
	if err != nil {
		t.Fatal(err)
	}
	return d
}

func (h *harness) syncedOverview(t *testing.T) {
	t.Helper()
	h.write(t, overviewJSON, `{"description": "A widget maker.", "capabilities": ["Cutting: fast", "Shipping: same-day"]}`)
	r, err := h.m.SyncJSONToPlans("acme", "overview")
	if err != nil {
		t.Fatal(err)
	}
	if !r.Success {
		t.Fatalf("initial sync failed: %s", r.Error)
	}
}

func TestDetectChanges_Existence(t *testing.T) {
	h := newHarness(t)
	if d := h.detect(t); d != models.NoChange {
		t.Errorf("no files: %s", d)
	}
	h.write(t, overviewJSON, `{}`)
	if d := h.detect(t); d != models.JSONToPlans {
		t.Errorf("json only: %s", d)
	}
	abs, _ := h.fs.Abs(overviewJSON)
	if err := os.Remove(abs); err != nil {
		t.Fatal(err)
	}
	h.write(t, overviewPlans, "## Description {#description}\n\nx\n")
	if d := h.detect(t); d != models.PlansToJSON {
		t.Errorf("plans only: %s", d)
	}
}

func TestDetectChanges_FirstSyncTolerance(t *testing.T) {
	h := newHarness(t)
	h.write(t, overviewJSON, `{}`)
	h.write(t, overviewPlans, "x")
	base := time.Now().Add(-time.Hour)

	tests := []struct {
		name  string
		json  time.Time
		plans time.Time
		want  models.Direction
	}{
		{"same time", base, base, models.NoChange},
		{"within tolerance", base.Add(time.Second), base, models.NoChange},
		{"json newer", base.Add(10 * time.Second), base, models.JSONToPlans},
		{"plans newer", base, base.Add(10 * time.Second), models.PlansToJSON},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h.touch(t, overviewJSON, tt.json)
			h.touch(t, overviewPlans, tt.plans)
			if got := h.detect(t); got != tt.want {
				t.Errorf("got %s, want %s", got, tt.want)
			}
		})
	}
}

func TestDetectChanges_AgainstState(t *testing.T) {
	h := newHarness(t)
	h.syncedOverview(t)
	if d := h.detect(t); d != models.NoChange {
		t.Fatalf("after sync: %s", d)
	}

	later := time.Now().Add(time.Hour)

	// Touching without a content change is not a change.
	h.touch(t, overviewJSON, later)
	if d := h.detect(t); d != models.NoChange {
		t.Errorf("touched json: %s", d)
	}

	md := h.read(t, overviewPlans)
	h.write(t, overviewPlans, strings.Replace(md, "A widget maker.", "A gadget maker.", 1))
	h.touch(t, overviewPlans, later)
	if d := h.detect(t); d != models.PlansToJSON {
		t.Errorf("edited plans: %s", d)
	}

	h.write(t, overviewJSON, `{"description": "Changed."}`)
	h.touch(t, overviewJSON, later)
	if d := h.detect(t); d != models.Conflict {
		t.Errorf("both edited: %s", d)
	}
}

func TestDetectChanges_JSONEditedSinceSync(t *testing.T) {
	h := newHarness(t)
	h.syncedOverview(t)

	h.write(t, overviewJSON, `{"description": "A gadget maker.", "capabilities": ["Cutting: fast"]}`)
	h.touch(t, overviewJSON, time.Now().Add(time.Hour))

	d, err := h.m.DetectChanges("acme", "overview")
	if err != nil {
		t.Fatal(err)
	}
	if d != models.JSONToPlans {
		t.Fatalf("edited json: %s", d)
	}

	r, err := h.m.SyncStep("acme", "overview", SyncOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if !r.Success || r.Direction != models.JSONToPlans {
		t.Fatalf("sync = %+v", r)
	}
	if !strings.Contains(h.read(t, overviewPlans), "A gadget maker.") {
		t.Error("plan not regenerated from edited json")
	}

	if _, err := h.m.DetectChanges("acme", "bogus"); err == nil {
		t.Error("expected unknown step error")
	}
}

func TestSyncJSONToPlans(t *testing.T) {
	h := newHarness(t)
	h.syncedOverview(t)

	md := h.read(t, overviewPlans)
	for _, want := range []string{"# Company Overview", "## Company Description {#description}", "A widget maker.", "## Key Capabilities {#capabilities}", "- Cutting: fast"} {
		if !strings.Contains(md, want) {
			t.Errorf("markdown missing %q:\n%s", want, md)
		}
	}

	rec, ok, err := h.state.Get("acme", "overview")
	if err != nil || !ok {
		t.Fatalf("state: ok=%v err=%v", ok, err)
	}
	if !slices.Equal(rec.SyncedFields, []string{"description", "capabilities"}) {
		t.Errorf("synced fields = %v", rec.SyncedFields)
	}
	if len(rec.OrphanedFields) != 0 {
		t.Errorf("orphaned = %v", rec.OrphanedFields)
	}
	if rec.SyncDirection != models.JSONToPlans {
		t.Errorf("direction = %s", rec.SyncDirection)
	}
	if rec.JSONHash == "" || rec.PlansHash == "" {
		t.Error("hashes not recorded")
	}
	if len(h.rec.results) != 1 {
		t.Errorf("recorded %d results", len(h.rec.results))
	}
}

func TestSyncJSONToPlans_NoData(t *testing.T) {
	h := newHarness(t)
	r, err := h.m.SyncJSONToPlans("acme", "overview")
	if err != nil {
		t.Fatal(err)
	}
	if r.Success || !strings.Contains(r.Error, "no JSON data") {
		t.Errorf("result = %+v", r)
	}
	if _, err := h.fs.Stat(overviewPlans); err == nil {
		t.Error("plans file should not be created")
	}
}

func TestSyncJSONToPlans_InvalidJSON(t *testing.T) {
	h := newHarness(t)
	h.write(t, overviewJSON, `["not", "an", "object"]`)
	r, _ := h.m.SyncJSONToPlans("acme", "overview")
	if r.Success || !strings.Contains(r.Error, "invalid JSON") {
		t.Errorf("result = %+v", r)
	}
}

func TestSyncJSONToPlans_ToleratesComments(t *testing.T) {
	h := newHarness(t)
	h.write(t, overviewJSON, "{\n  // edited by hand\n  \"description\": \"A widget maker.\",\n}\n")
	r, _ := h.m.SyncJSONToPlans("acme", "overview")
	if !r.Success {
		t.Fatalf("error = %s", r.Error)
	}
	if !strings.Contains(h.read(t, overviewPlans), "A widget maker.") {
		t.Error("description not rendered")
	}
}

func TestEndToEndScenario(t *testing.T) {
	h := newHarness(t)
	h.syncedOverview(t)

	md := h.read(t, overviewPlans)
	h.write(t, overviewPlans, strings.Replace(md, " {#capabilities}", "", 1))

	r, err := h.m.SyncPlansToJSON("acme", "overview")
	if err != nil {
		t.Fatal(err)
	}
	if !r.Success {
		t.Fatalf("error = %s", r.Error)
	}
	if !slices.Equal(r.Orphaned, []string{"capabilities"}) {
		t.Errorf("orphaned = %v", r.Orphaned)
	}
	if !slices.Equal(r.SyncedFields, []string{"description"}) {
		t.Errorf("synced = %v", r.SyncedFields)
	}

	var got map[string]any
	if err := json.Unmarshal([]byte(h.read(t, overviewJSON)), &got); err != nil {
		t.Fatal(err)
	}
	if len(got) != 1 || got["description"] != "A widget maker." {
		t.Errorf("json = %v", got)
	}

	rec, _, _ := h.state.Get("acme", "overview")
	if !slices.Equal(rec.OrphanedFields, []string{"capabilities"}) || rec.SyncDirection != models.PlansToJSON {
		t.Errorf("state = %+v", rec)
	}
}

func TestSyncPlansToJSON_ZeroFieldsLeavesJSON(t *testing.T) {
	h := newHarness(t)
	h.syncedOverview(t)
	before := h.read(t, overviewJSON)

	h.write(t, overviewPlans, "# Overview\n\nAll the markers are gone.\n")
	r, err := h.m.SyncPlansToJSON("acme", "overview")
	if err != nil {
		t.Fatal(err)
	}
	if r.Success || r.Error == "" {
		t.Errorf("result = %+v", r)
	}
	if after := h.read(t, overviewJSON); after != before {
		t.Errorf("json changed:\n%s", after)
	}
}

func TestSyncPlansToJSON_OptionalFieldMarkerRemoved(t *testing.T) {
	h := newHarness(t)
	h.write(t, overviewJSON, `{"description": "d", "capabilities": ["c"], "alternatives": ["a"]}`)
	if r, _ := h.m.SyncJSONToPlans("acme", "overview"); !r.Success {
		t.Fatal(r.Error)
	}
	md := h.read(t, overviewPlans)
	h.write(t, overviewPlans, strings.Replace(md, " {#alternatives}", "", 1))

	r, _ := h.m.SyncPlansToJSON("acme", "overview")
	if !r.Success {
		t.Fatal(r.Error)
	}
	if !slices.Equal(r.Orphaned, []string{"alternatives"}) {
		t.Errorf("orphaned = %v", r.Orphaned)
	}
}

func TestSyncPlansToJSON_KeepsSchemaOrder(t *testing.T) {
	h := newHarness(t)
	h.write(t, overviewPlans, "## Capabilities {#capabilities}\n\n- a & b\n\n## Description {#description}\n\nd\n")
	r, _ := h.m.SyncPlansToJSON("acme", "overview")
	if !r.Success {
		t.Fatal(r.Error)
	}
	got := h.read(t, overviewJSON)
	want := "{\n  \"description\": \"d\",\n  \"capabilities\": [\n    \"a & b\"\n  ]\n}\n"
	if got != want {
		t.Errorf("json =\n%s\nwant\n%s", got, want)
	}
}

func TestSyncStep_UnknownStepAndProject(t *testing.T) {
	h := newHarness(t)
	if _, err := h.m.SyncStep("acme", "nope", SyncOptions{}); !errors.Is(err, apperr.ErrUnknownStep) {
		t.Errorf("unknown step err = %v", err)
	}
	if _, err := h.m.SyncStep("  ", "overview", SyncOptions{}); !errors.Is(err, apperr.ErrInvalidProject) {
		t.Errorf("invalid project err = %v", err)
	}
}

// conflicted leaves the overview step with both sides edited since the
// last sync.
func conflicted(t *testing.T, h *harness) {
	t.Helper()
	h.syncedOverview(t)
	later := time.Now().Add(time.Hour)
	md := h.read(t, overviewPlans)
	h.write(t, overviewPlans, strings.Replace(md, "A widget maker.", "From markdown.", 1))
	h.write(t, overviewJSON, `{"description": "From JSON.", "capabilities": ["x"]}`)
	h.touch(t, overviewPlans, later)
	h.touch(t, overviewJSON, later)
}

func TestSyncStep_ConflictNeedsInput(t *testing.T) {
	h := newHarness(t)
	conflicted(t, h)
	beforeJSON, beforeMD := h.read(t, overviewJSON), h.read(t, overviewPlans)

	r, err := h.m.SyncStep("acme", "overview", SyncOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if r.Direction != models.Conflict || !r.NeedsUserInput || r.Success || !r.Conflicted() {
		t.Errorf("result = %+v", r)
	}
	if h.read(t, overviewJSON) != beforeJSON || h.read(t, overviewPlans) != beforeMD {
		t.Error("files changed on unresolved conflict")
	}
}

func TestSyncStep_ConflictAutoResolvePlansWins(t *testing.T) {
	h := newHarness(t)
	conflicted(t, h)

	r, _ := h.m.SyncStep("acme", "overview", SyncOptions{AutoResolve: true})
	if !r.Success || r.Direction != models.PlansToJSON || r.Detected != models.Conflict {
		t.Fatalf("result = %+v", r)
	}
	if r.Resolution == nil || r.Resolution.Action != UsePlans {
		t.Errorf("resolution = %+v", r.Resolution)
	}
	if !strings.Contains(h.read(t, overviewJSON), "From markdown.") {
		t.Error("json not rewritten from markdown")
	}
	rec, _, _ := h.state.Get("acme", "overview")
	if rec.SyncDirection != models.PlansToJSON {
		t.Errorf("state direction = %s", rec.SyncDirection)
	}
	if d := h.detect(t); d != models.NoChange {
		t.Errorf("after resolve: %s", d)
	}
}

func TestSyncStep_ConflictPolicies(t *testing.T) {
	t.Run("json wins", func(t *testing.T) {
		h := newHarness(t, WithPolicy(PolicyJSONWins))
		conflicted(t, h)
		r, _ := h.m.SyncStep("acme", "overview", SyncOptions{AutoResolve: true})
		if !r.Success || r.Direction != models.JSONToPlans {
			t.Fatalf("result = %+v", r)
		}
		if !strings.Contains(h.read(t, overviewPlans), "From JSON.") {
			t.Error("markdown not regenerated")
		}
	})
	t.Run("manual", func(t *testing.T) {
		h := newHarness(t, WithPolicy(PolicyManual))
		conflicted(t, h)
		r, _ := h.m.SyncStep("acme", "overview", SyncOptions{AutoResolve: true})
		if !r.NeedsUserInput || r.Success {
			t.Fatalf("result = %+v", r)
		}
	})
	t.Run("prefer overrides policy", func(t *testing.T) {
		h := newHarness(t, WithPolicy(PolicyManual))
		conflicted(t, h)
		r, _ := h.m.SyncStep("acme", "overview", SyncOptions{Prefer: UseJSON})
		if !r.Success || r.Direction != models.JSONToPlans {
			t.Fatalf("result = %+v", r)
		}
	})
}

func TestSyncProject_IsolatesFailures(t *testing.T) {
	h := newHarness(t)
	h.write(t, overviewJSON, `{"description": "d", "capabilities": ["c"]}`)
	h.write(t, "acme/json_output/account.json", `{not json`)

	sum, err := h.m.SyncProject("acme", nil, SyncOptions{})
	if err != nil {
		t.Fatal(err)
	}
	if len(sum.Results) != len(schema.Default().Steps()) {
		t.Errorf("results = %d", len(sum.Results))
	}
	if !slices.Equal(sum.Synced, []string{"overview"}) {
		t.Errorf("synced = %v", sum.Synced)
	}
	if len(sum.Errors) != 1 || !strings.HasPrefix(sum.Errors[0], "account: ") {
		t.Errorf("errors = %v", sum.Errors)
	}
	if !slices.Equal(sum.Unchanged, []string{"persona", "email"}) {
		t.Errorf("unchanged = %v", sum.Unchanged)
	}
	if sum.Success() {
		t.Error("summary should not report success")
	}
}

func TestSyncProject_UnknownStep(t *testing.T) {
	h := newHarness(t)
	if _, err := h.m.SyncProject("acme", []string{"overview", "bogus"}, SyncOptions{}); !errors.Is(err, apperr.ErrUnknownStep) {
		t.Errorf("err = %v", err)
	}
}

func TestGetSyncStatus(t *testing.T) {
	h := newHarness(t)
	h.syncedOverview(t)
	h.write(t, "acme/json_output/persona.json", `{}`)

	stateBefore := h.read(t, "acme/plans/.sync_state.json")
	st, err := h.m.GetSyncStatus("acme")
	if err != nil {
		t.Fatal(err)
	}
	if len(st.Steps) != 4 {
		t.Fatalf("steps = %d", len(st.Steps))
	}
	ov := st.Steps[0]
	if ov.Step != "overview" || ov.NeedsSync || ov.LastSync == nil || !ov.JSONExists || !ov.PlansExists {
		t.Errorf("overview = %+v", ov)
	}
	if !slices.Equal(st.Pending(), []string{"persona"}) {
		t.Errorf("pending = %v", st.Pending())
	}
	if h.read(t, "acme/plans/.sync_state.json") != stateBefore {
		t.Error("status changed the state file")
	}
}

func TestCreateBackupAndRepair(t *testing.T) {
	at := time.Date(2026, 10, 18, 9, 30, 0, 0, time.UTC)
	h := newHarness(t, WithClock(func() time.Time { return at }))
	h.syncedOverview(t)
	h.write(t, overviewPlans, "garbage")

	b, err := h.m.CreateBackup("acme", "overview")
	if err != nil {
		t.Fatal(err)
	}
	want := []string{
		"acme/.backup/overview_json_20261018_093000.json",
		"acme/.backup/overview_plans_20261018_093000.md",
	}
	if !slices.Equal(b.Files, want) {
		t.Errorf("files = %v", b.Files)
	}
	if h.read(t, want[1]) != "garbage" {
		t.Error("backup content differs")
	}

	rep, err := h.m.Repair("acme", "overview")
	if err != nil {
		t.Fatal(err)
	}
	if rep.Sync == nil || !rep.Sync.Success {
		t.Fatalf("repair = %+v", rep)
	}
	if !strings.Contains(h.read(t, overviewPlans), "{#description}") {
		t.Error("markdown not regenerated")
	}
}

func TestCreateBackup_Nothing(t *testing.T) {
	h := newHarness(t)
	b, err := h.m.CreateBackup("acme", "email")
	if err != nil {
		t.Fatal(err)
	}
	if len(b.Files) != 0 || b.Error != "" {
		t.Errorf("backup = %+v", b)
	}
}

func TestListBackups(t *testing.T) {
	h := newHarness(t)
	if got, err := h.m.ListBackups("acme", "overview"); err != nil || len(got) != 0 {
		t.Fatalf("before any backup = %v, %v", got, err)
	}

	h.syncedOverview(t)
	h.write(t, "acme/json_output/email.json", `{"subject_lines": ["Hi"]}`)
	if _, err := h.m.CreateBackup("acme", "overview"); err != nil {
		t.Fatal(err)
	}
	if _, err := h.m.CreateBackup("acme", "email"); err != nil {
		t.Fatal(err)
	}

	overview, err := h.m.ListBackups("acme", "overview")
	if err != nil {
		t.Fatal(err)
	}
	if len(overview) != 2 {
		t.Fatalf("overview backups = %+v", overview)
	}
	for _, f := range overview {
		if !strings.HasPrefix(f.Path, "acme/.backup/overview_") {
			t.Errorf("unexpected backup %s", f.Path)
		}
		if f.Checksum != checksum.Sum([]byte(h.read(t, f.Path))) {
			t.Errorf("%s checksum = %q", f.Path, f.Checksum)
		}
	}

	all, err := h.m.ListBackups("acme", "")
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Errorf("all backups = %+v", all)
	}
	for i := 1; i < len(all); i++ {
		if all[i].ModTime.After(all[i-1].ModTime) {
			t.Errorf("backups not newest first: %+v", all)
		}
	}

	if _, err := h.m.ListBackups("acme", "bogus"); err == nil {
		t.Error("expected unknown step error")
	}
}

func TestReadPlan_NotFound(t *testing.T) {
	h := newHarness(t)
	if _, err := h.m.ReadPlan("acme", "overview"); !errors.Is(err, apperr.ErrNotFound) {
		t.Errorf("err = %v", err)
	}
}

func TestStoreJSON(t *testing.T) {
	h := newHarness(t)
	err := h.m.StoreJSON("acme", "overview", map[string]any{
		"zeta":         1,
		"capabilities": []string{"c"},
		"description":  "d",
	})
	if err != nil {
		t.Fatal(err)
	}
	got := h.read(t, overviewJSON)
	di, ci, zi := strings.Index(got, "description"), strings.Index(got, "capabilities"), strings.Index(got, "zeta")
	if !(di < ci && ci < zi) {
		t.Errorf("key order wrong:\n%s", got)
	}
	data, err := h.m.ReadJSON("acme", "overview")
	if err != nil || data["description"] != "d" {
		t.Errorf("ReadJSON = %v, %v", data, err)
	}
}
