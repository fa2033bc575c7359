package plansync

import (
	"time"

	"github.com/starford/gtmkit/internal/models"
)

// StepResult reports the outcome of syncing one step. Failures are reported
// here rather than as errors so that one broken step never hides the rest
// of a project.
type StepResult struct {
	Project        string           `json:"project"`
	Step           string           `json:"step"`
	Detected       models.Direction `json:"detected"`
	Direction      models.Direction `json:"direction"`
	Success        bool             `json:"success"`
	FieldsSynced   int              `json:"fields_synced"`
	SyncedFields   []string         `json:"synced_fields"`
	Orphaned       []string         `json:"orphaned_fields"`
	Warnings       []string         `json:"warnings"`
	Info           []string         `json:"info"`
	Resolution     *Resolution      `json:"resolution,omitempty"`
	NeedsUserInput bool             `json:"needs_user_input"`
	Error          string           `json:"error,omitempty"`
	Duration       time.Duration    `json:"duration_ns"`
}

// Conflicted reports whether the step is waiting for a manual resolution.
func (r *StepResult) Conflicted() bool {
	return r.Direction == models.Conflict && r.NeedsUserInput
}

func (r *StepResult) fail(msg string) *StepResult {
	r.Success = false
	r.Error = msg
	return r
}

// ProjectSummary aggregates the per-step results of a project sync.
type ProjectSummary struct {
	Project   string        `json:"project"`
	Results   []*StepResult `json:"results"`
	Synced    []string      `json:"synced"`
	Unchanged []string      `json:"unchanged"`
	Conflicts []string      `json:"conflicts"`
	Errors    []string      `json:"errors"`
}

// Success reports whether every step synced or needed nothing.
func (s *ProjectSummary) Success() bool {
	return len(s.Errors) == 0 && len(s.Conflicts) == 0
}

func (s *ProjectSummary) add(r *StepResult) {
	s.Results = append(s.Results, r)
	switch {
	case r.Conflicted():
		s.Conflicts = append(s.Conflicts, r.Step)
	case !r.Success:
		s.Errors = append(s.Errors, r.Step+": "+r.Error)
	case r.Direction == models.NoChange:
		s.Unchanged = append(s.Unchanged, r.Step)
	default:
		s.Synced = append(s.Synced, r.Step)
	}
}

// StepStatus is the read-only view of one step.
type StepStatus struct {
	Step        string           `json:"step"`
	JSONExists  bool             `json:"json_exists"`
	PlansExists bool             `json:"plans_exists"`
	NeedsSync   bool             `json:"needs_sync"`
	Direction   models.Direction `json:"direction"`
	LastSync    *time.Time       `json:"last_sync,omitempty"`
	LastApplied models.Direction `json:"last_direction,omitempty"`
	Orphaned    []string         `json:"orphaned_fields"`
	Error       string           `json:"error,omitempty"`
}

// ProjectStatus is the read-only view of a project.
type ProjectStatus struct {
	Project string       `json:"project"`
	Steps   []StepStatus `json:"steps"`
}

// Pending returns the steps that need a sync or a resolution.
func (p *ProjectStatus) Pending() []string {
	var out []string
	for _, s := range p.Steps {
		if s.NeedsSync {
			out = append(out, s.Step)
		}
	}
	return out
}

// BackupResult lists the files copied by a backup.
type BackupResult struct {
	Project string   `json:"project"`
	Step    string   `json:"step"`
	Files   []string `json:"files"`
	Error   string   `json:"error,omitempty"`
}

// RepairResult is a backup followed by a markdown regeneration.
type RepairResult struct {
	Backup *BackupResult `json:"backup"`
	Sync   *StepResult   `json:"sync,omitempty"`
}
