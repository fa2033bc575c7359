package plansync

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"slices"
	"strings"
	"time"

	"github.com/starford/gtmkit/internal/apperr"
	"github.com/starford/gtmkit/internal/checksum"
	"github.com/starford/gtmkit/internal/formatter"
	"github.com/starford/gtmkit/internal/markers"
	"github.com/starford/gtmkit/internal/models"
	"github.com/starford/gtmkit/internal/parser"
	"github.com/starford/gtmkit/internal/project"
	"github.com/starford/gtmkit/internal/schema"
	"github.com/starford/gtmkit/internal/storage"
	"github.com/starford/gtmkit/internal/syncstate"
)

// Formatter renders step data as marked markdown.
type Formatter interface {
	FormatWithMarkers(data map[string]any, step string) (string, error)
}

// Recorder receives every completed step sync. Recording failures are
// logged and never fail the sync.
type Recorder interface {
	Record(r *StepResult) error
}

// Manager orchestrates detection, resolution and the two sync directions.
// It performs no locking; concurrent syncs of the same step are the
// caller's responsibility.
type Manager struct {
	schema    *schema.Schema
	layout    *project.Layout
	store     storage.Provider
	state     *syncstate.Store
	formatter Formatter
	parser    *parser.Parser
	detector  *Detector
	resolver  *Resolver
	recorder  Recorder
	logger    *slog.Logger
	now       func() time.Time
	tolerance time.Duration
	policy    Policy
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger sets the logger.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) { m.logger = l }
}

// WithRecorder sets the sync history recorder.
func WithRecorder(r Recorder) Option {
	return func(m *Manager) { m.recorder = r }
}

// WithFormatter replaces the markdown formatter.
func WithFormatter(f Formatter) Option {
	return func(m *Manager) { m.formatter = f }
}

// WithTolerance sets the first-sync modification time tolerance.
func WithTolerance(d time.Duration) Option {
	return func(m *Manager) { m.tolerance = d }
}

// WithPolicy sets the conflict policy used for automatic resolution.
func WithPolicy(p Policy) Option {
	return func(m *Manager) { m.policy = p }
}

// WithClock sets the time source used for backup names.
func WithClock(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager creates a Manager over the workspace behind layout.
func NewManager(s *schema.Schema, layout *project.Layout, opts ...Option) *Manager {
	m := &Manager{
		schema:    s,
		layout:    layout,
		store:     layout.Store(),
		state:     syncstate.NewStore(layout),
		parser:    parser.New(s),
		logger:    slog.Default(),
		now:       time.Now,
		tolerance: DefaultTolerance,
		policy:    PolicyPlansWins,
	}
	for _, o := range opts {
		o(m)
	}
	if m.formatter == nil {
		m.formatter = formatter.New(s, formatter.WithClock(m.now))
	}
	m.detector = NewDetector(layout, m.state, m.tolerance)
	m.resolver = NewResolver(m.policy)
	return m
}

// Schema returns the step schema the manager syncs against.
func (m *Manager) Schema() *schema.Schema { return m.schema }

// Layout returns the workspace layout.
func (m *Manager) Layout() *project.Layout { return m.layout }

// SyncOptions controls how SyncStep handles conflicts.
type SyncOptions struct {
	// AutoResolve applies the configured policy to conflicts.
	AutoResolve bool
	// Prefer forces the side that wins a conflict. It overrides the policy.
	Prefer Action
}

// SyncStep detects the step's direction and applies it. Conflicts are
// resolved by opts.Prefer, then by the policy when AutoResolve is set, and
// are otherwise returned unresolved with NeedsUserInput. The error is
// non-nil only for an unknown step or an invalid project name.
func (m *Manager) SyncStep(projectName, step string, opts SyncOptions) (*StepResult, error) {
	if err := m.check(projectName, step); err != nil {
		return nil, err
	}
	start := time.Now()

	dir, err := m.detector.DetectChanges(projectName, step)
	if err != nil {
		r := m.newResult(projectName, step)
		r.fail(fmt.Sprintf("detect changes: %v", err))
		return m.finish(r, start), nil
	}

	var r *StepResult
	switch dir {
	case models.JSONToPlans:
		r = m.jsonToPlans(projectName, step)
	case models.PlansToJSON:
		r = m.plansToJSON(projectName, step)
	case models.Conflict:
		r = m.conflict(projectName, step, opts)
	default:
		r = m.newResult(projectName, step)
		r.Direction = models.NoChange
		r.Success = true
	}
	r.Detected = dir
	return m.finish(r, start), nil
}

func (m *Manager) conflict(projectName, step string, opts SyncOptions) *StepResult {
	var res Resolution
	switch {
	case opts.Prefer == UseJSON || opts.Prefer == UsePlans:
		res = Resolution{Action: opts.Prefer, Message: fmt.Sprintf("%s: conflict resolved by request (%s)", step, opts.Prefer)}
	case opts.AutoResolve:
		res = m.resolver.ResolveConflicts(step)
	default:
		res = Resolution{
			Action:         Manual,
			Message:        fmt.Sprintf("%s: both JSON and markdown changed since the last sync", step),
			NeedsUserInput: true,
		}
	}

	var r *StepResult
	switch res.Action {
	case UseJSON:
		r = m.jsonToPlans(projectName, step)
	case UsePlans:
		r = m.plansToJSON(projectName, step)
	default:
		r = m.newResult(projectName, step)
		r.Direction = models.Conflict
		r.NeedsUserInput = true
		r.Warnings = append(r.Warnings, res.Message)
	}
	r.Resolution = &res
	m.logger.Info("sync: conflict", "project", projectName, "step", step, "action", res.Action)
	return r
}

// SyncProject syncs steps of a project in order, or every schema step when
// steps is empty. A failing step is recorded and the rest still run.
func (m *Manager) SyncProject(projectName string, steps []string, opts SyncOptions) (*ProjectSummary, error) {
	dir, err := m.layout.Dir(projectName)
	if err != nil {
		return nil, err
	}
	if len(steps) == 0 {
		steps = m.schema.Steps()
	}
	for _, s := range steps {
		if _, err := m.schema.Step(s); err != nil {
			return nil, err
		}
	}

	sum := &ProjectSummary{Project: dir}
	for _, s := range steps {
		r, err := m.SyncStep(projectName, s, opts)
		if err != nil {
			return nil, err
		}
		sum.add(r)
	}
	m.logger.Info("sync: project done",
		"project", dir,
		"synced", len(sum.Synced),
		"unchanged", len(sum.Unchanged),
		"conflicts", len(sum.Conflicts),
		"errors", len(sum.Errors),
	)
	return sum, nil
}

// SyncJSONToPlans regenerates the step's markdown from its JSON.
func (m *Manager) SyncJSONToPlans(projectName, step string) (*StepResult, error) {
	if err := m.check(projectName, step); err != nil {
		return nil, err
	}
	start := time.Now()
	r := m.jsonToPlans(projectName, step)
	r.Detected = models.JSONToPlans
	return m.finish(r, start), nil
}

// SyncPlansToJSON rebuilds the step's JSON from its markdown. When no field
// can be parsed the JSON is left untouched.
func (m *Manager) SyncPlansToJSON(projectName, step string) (*StepResult, error) {
	if err := m.check(projectName, step); err != nil {
		return nil, err
	}
	start := time.Now()
	r := m.plansToJSON(projectName, step)
	r.Detected = models.PlansToJSON
	return m.finish(r, start), nil
}

func (m *Manager) jsonToPlans(projectName, step string) *StepResult {
	r := m.newResult(projectName, step)
	r.Direction = models.JSONToPlans
	st, _ := m.schema.Step(step)
	paths, _ := m.layout.StepPaths(projectName, step)

	raw, err := m.store.Read(paths.JSON)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return r.fail(fmt.Sprintf("no JSON data for step %s", step))
		}
		return r.fail(fmt.Sprintf("read %s: %v", paths.JSON, err))
	}
	data, err := decodeStep(raw)
	if err != nil {
		return r.fail(fmt.Sprintf("invalid JSON in %s: %v", paths.JSON, err))
	}

	md, err := m.formatter.FormatWithMarkers(data, step)
	if err != nil {
		return r.fail(fmt.Sprintf("format %s: %v", step, err))
	}
	if err := m.store.Write(paths.Plans, []byte(md)); err != nil {
		return r.fail(fmt.Sprintf("write %s: %v", paths.Plans, err))
	}

	fields := fieldOrder(st, data)
	if err := m.saveState(paths, models.JSONToPlans, raw, []byte(md), fields, nil); err != nil {
		return r.fail(fmt.Sprintf("markdown written but sync state not saved: %v", err))
	}

	r.Success = true
	r.SyncedFields = fields
	r.FieldsSynced = len(fields)
	if err := m.schema.Validate(step, data); err != nil {
		r.Warnings = append(r.Warnings, fmt.Sprintf("JSON does not match schema: %v", err))
	}
	return r
}

func (m *Manager) plansToJSON(projectName, step string) *StepResult {
	r := m.newResult(projectName, step)
	r.Direction = models.PlansToJSON
	st, _ := m.schema.Step(step)
	paths, _ := m.layout.StepPaths(projectName, step)

	raw, err := m.store.Read(paths.Plans)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return r.fail(fmt.Sprintf("no plans file for step %s", step))
		}
		return r.fail(fmt.Sprintf("read %s: %v", paths.Plans, err))
	}

	parsed, err := m.parser.ParseWithOrphanHandling(string(raw), step)
	if err != nil {
		return r.fail(err.Error())
	}
	r.Warnings = append(r.Warnings, parsed.Warnings...)
	r.Info = append(r.Info, parsed.Info...)
	r.Orphaned = append(r.Orphaned, parsed.Orphaned...)
	if !parsed.IsSuccess() {
		return r.fail(fmt.Sprintf("no fields could be parsed from %s; JSON left unchanged", paths.Plans))
	}

	// Fields that were synced before and have lost their marker since are
	// orphaned too, even when the schema marks them optional.
	if prev, ok, _ := m.state.Get(projectName, step); ok {
		for _, f := range prev.SyncedFields {
			if _, present := parsed.Fields[f]; present || !st.Known(f) || slices.Contains(r.Orphaned, f) {
				continue
			}
			r.Orphaned = append(r.Orphaned, f)
			r.Warnings = append(r.Warnings, fmt.Sprintf("%s: marker missing; field dropped from JSON", f))
		}
	}

	fields := parsed.FieldNames(st)
	out, err := encodeStep(parsed.Fields, fields)
	if err != nil {
		return r.fail(fmt.Sprintf("encode %s: %v", step, err))
	}
	if err := m.store.Write(paths.JSON, out); err != nil {
		return r.fail(fmt.Sprintf("write %s: %v", paths.JSON, err))
	}
	if err := m.saveState(paths, models.PlansToJSON, out, raw, fields, r.Orphaned); err != nil {
		return r.fail(fmt.Sprintf("JSON written but sync state not saved: %v", err))
	}

	r.Success = true
	r.SyncedFields = fields
	r.FieldsSynced = len(fields)
	return r
}

// saveState records both sides as they are right after a sync. LastSync is
// never earlier than either file's mtime, so a file system clock running
// slightly ahead does not make the files look changed.
func (m *Manager) saveState(paths project.Paths, dir models.Direction, jsonData, plansData []byte, fields, orphaned []string) error {
	js, err := m.store.Stat(paths.JSON)
	if err != nil {
		return err
	}
	pl, err := m.store.Stat(paths.Plans)
	if err != nil {
		return err
	}
	last := time.Now()
	for _, t := range []time.Time{js.ModTime, pl.ModTime} {
		if t.After(last) {
			last = t
		}
	}
	return m.state.Put(paths.Project, paths.Step, syncstate.StepState{
		LastSync:       last,
		JSONModified:   js.ModTime,
		PlansModified:  pl.ModTime,
		JSONHash:       checksum.Short(jsonData),
		PlansHash:      checksum.Short(plansData),
		SyncDirection:  dir,
		SyncedFields:   slices.Clone(fields),
		OrphanedFields: slices.Clone(orphaned),
	})
}

// GetSyncStatus reports every step of a project without changing anything.
func (m *Manager) GetSyncStatus(projectName string) (*ProjectStatus, error) {
	dir, err := m.layout.Dir(projectName)
	if err != nil {
		return nil, err
	}
	state, err := m.state.Load(projectName)
	if err != nil && !errors.Is(err, syncstate.ErrCorrupt) {
		return nil, err
	}

	out := &ProjectStatus{Project: dir}
	for _, step := range m.schema.Steps() {
		paths, _ := m.layout.StepPaths(projectName, step)
		ss := StepStatus{Step: step, Orphaned: []string{}}
		if js, err := m.detector.side(paths.JSON); err == nil {
			ss.JSONExists = js.exists
		}
		if pl, err := m.detector.side(paths.Plans); err == nil {
			ss.PlansExists = pl.exists
		}
		if rec, ok := state[step]; ok {
			t := rec.LastSync
			ss.LastSync = &t
			ss.LastApplied = rec.SyncDirection
			ss.Orphaned = append(ss.Orphaned, rec.OrphanedFields...)
		}
		dir, err := m.detector.DetectChanges(projectName, step)
		if err != nil {
			ss.Error = err.Error()
		} else {
			ss.Direction = dir
			ss.NeedsSync = dir != models.NoChange
		}
		out.Steps = append(out.Steps, ss)
	}
	return out, nil
}

// CreateBackup copies the step's current JSON and markdown into the
// project's backup directory with a timestamped name. Missing sides are
// skipped, so Files may be empty.
func (m *Manager) CreateBackup(projectName, step string) (*BackupResult, error) {
	if err := m.check(projectName, step); err != nil {
		return nil, err
	}
	paths, _ := m.layout.StepPaths(projectName, step)
	now := m.now()
	out := &BackupResult{Project: paths.Project, Step: step, Files: []string{}}

	sides := []struct {
		kind, src string
	}{
		{"json", paths.JSON},
		{"plans", paths.Plans},
	}
	for _, s := range sides {
		dst, err := m.layout.BackupPath(projectName, step, s.kind, now)
		if err != nil {
			return nil, err
		}
		if err := m.store.Copy(s.src, dst); err != nil {
			if errors.Is(err, os.ErrNotExist) {
				continue
			}
			out.Error = fmt.Sprintf("backup %s: %v", s.src, err)
			return out, nil
		}
		out.Files = append(out.Files, dst)
	}
	if len(out.Files) > 0 {
		m.logger.Info("sync: backup created", "project", projectName, "step", step, "files", len(out.Files))
	}
	return out, nil
}

// ListBackups returns the step's backups, newest first. An empty step lists
// the backups of every step in the project.
func (m *Manager) ListBackups(projectName, step string) ([]models.FileMeta, error) {
	if step != "" {
		if err := m.check(projectName, step); err != nil {
			return nil, err
		}
	}
	files, err := m.layout.Backups(projectName)
	if err != nil {
		return nil, err
	}
	out := make([]models.FileMeta, 0, len(files))
	for _, f := range files {
		name := path.Base(f.Path)
		if step != "" && !strings.HasPrefix(name, step+"_json_") && !strings.HasPrefix(name, step+"_plans_") {
			continue
		}
		out = append(out, f)
	}
	slices.SortStableFunc(out, func(a, b models.FileMeta) int {
		if c := b.ModTime.Compare(a.ModTime); c != 0 {
			return c
		}
		return strings.Compare(b.Path, a.Path)
	})
	return out, nil
}

// Repair backs up a step and regenerates its markdown from JSON. Use it when
// the markdown's markers are damaged beyond what the parser tolerates.
func (m *Manager) Repair(projectName, step string) (*RepairResult, error) {
	b, err := m.CreateBackup(projectName, step)
	if err != nil {
		return nil, err
	}
	out := &RepairResult{Backup: b}
	if b.Error != "" {
		return out, nil
	}
	out.Sync, err = m.SyncJSONToPlans(projectName, step)
	if err != nil {
		return nil, err
	}
	return out, nil
}

// DetectChanges reports the direction a sync of step would take, without
// applying it.
func (m *Manager) DetectChanges(projectName, step string) (models.Direction, error) {
	if err := m.check(projectName, step); err != nil {
		return "", err
	}
	return m.detector.DetectChanges(projectName, step)
}

// StoreJSON writes data as the step's JSON artifact. It does not touch the
// markdown or the sync state.
func (m *Manager) StoreJSON(projectName, step string, data map[string]any) error {
	if err := m.check(projectName, step); err != nil {
		return err
	}
	st, _ := m.schema.Step(step)
	paths, _ := m.layout.StepPaths(projectName, step)
	out, err := encodeStep(data, fieldOrder(st, data))
	if err != nil {
		return fmt.Errorf("plansync: encode %s: %w", step, err)
	}
	return m.store.Write(paths.JSON, out)
}

// ReadJSON returns the step's decoded JSON artifact.
func (m *Manager) ReadJSON(projectName, step string) (map[string]any, error) {
	if err := m.check(projectName, step); err != nil {
		return nil, err
	}
	paths, _ := m.layout.StepPaths(projectName, step)
	raw, err := m.store.Read(paths.JSON)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", apperr.ErrNotFound, paths.JSON)
		}
		return nil, err
	}
	data, err := decodeStep(raw)
	if err != nil {
		return nil, fmt.Errorf("plansync: %s: %w", paths.JSON, err)
	}
	return data, nil
}

// ReadPlan returns the step's markdown.
func (m *Manager) ReadPlan(projectName, step string) ([]byte, error) {
	if err := m.check(projectName, step); err != nil {
		return nil, err
	}
	paths, _ := m.layout.StepPaths(projectName, step)
	raw, err := m.store.Read(paths.Plans)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", apperr.ErrNotFound, paths.Plans)
		}
		return nil, err
	}
	return raw, nil
}

// ParsePlan parses the step's markdown without writing anything.
func (m *Manager) ParsePlan(projectName, step string) (*parser.Result, error) {
	raw, err := m.ReadPlan(projectName, step)
	if err != nil {
		return nil, err
	}
	return m.parser.ParseWithOrphanHandling(string(raw), step)
}

// LintPlan reports marker problems in the step's markdown.
func (m *Manager) LintPlan(projectName, step string) ([]markers.Issue, error) {
	raw, err := m.ReadPlan(projectName, step)
	if err != nil {
		return nil, err
	}
	return markers.Lint(raw), nil
}

// Projects lists the project directories in the workspace.
func (m *Manager) Projects() ([]string, error) {
	return m.layout.List()
}

func (m *Manager) check(projectName, step string) error {
	if _, err := m.schema.Step(step); err != nil {
		return err
	}
	_, err := m.layout.Dir(projectName)
	return err
}

// newResult starts a result keyed by the project's directory name, so
// results for "Acme Corp" and "acme-corp" are recorded together.
func (m *Manager) newResult(projectName, step string) *StepResult {
	dir, _ := m.layout.Dir(projectName)
	return &StepResult{
		Project:      dir,
		Step:         step,
		SyncedFields: []string{},
		Orphaned:     []string{},
		Warnings:     []string{},
		Info:         []string{},
	}
}

func (m *Manager) finish(r *StepResult, start time.Time) *StepResult {
	r.Duration = time.Since(start)
	if r.Success {
		if r.Direction != models.NoChange {
			m.logger.Info("sync: step synced",
				"project", r.Project,
				"step", r.Step,
				"direction", r.Direction,
				"fields", r.FieldsSynced,
				"orphaned", len(r.Orphaned),
			)
		}
	} else if r.Error != "" {
		m.logger.Warn("sync: step failed", "project", r.Project, "step", r.Step, "error", r.Error)
	}
	if m.recorder != nil && r.Direction != models.NoChange {
		if err := m.recorder.Record(r); err != nil {
			m.logger.Warn("sync: record history", "project", r.Project, "step", r.Step, "error", err)
		}
	}
	return r
}
