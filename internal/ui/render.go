package ui

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/starford/gtmkit/internal/checksum"
	"github.com/starford/gtmkit/internal/eval"
	"github.com/starford/gtmkit/internal/journal"
	"github.com/starford/gtmkit/internal/markers"
	"github.com/starford/gtmkit/internal/models"
	"github.com/starford/gtmkit/internal/plansync"
)

const timeLayout = "2006-01-02 15:04:05"

// Status prints a project's per-step status.
func (p *Printer) Status(st *plansync.ProjectStatus) {
	rows := make([][]string, 0, len(st.Steps))
	for _, s := range st.Steps {
		last := "never"
		if s.LastSync != nil {
			last = s.LastSync.Local().Format(timeLayout)
		}
		note := s.Error
		if note == "" && len(s.Orphaned) > 0 {
			note = "orphaned: " + strings.Join(s.Orphaned, ", ")
		}
		rows = append(rows, []string{
			s.Step,
			yesNo(s.JSONExists),
			yesNo(s.PlansExists),
			p.direction(s.Direction),
			last,
			note,
		})
	}
	fmt.Fprintln(p.w, p.style(accent, st.Project))
	fmt.Fprintln(p.w, p.table([]string{"STEP", "JSON", "PLANS", "STATE", "LAST SYNC", "NOTE"}, rows))
	if pending := st.Pending(); len(pending) > 0 {
		fmt.Fprintln(p.w, p.style(warn, fmt.Sprintf("%d step(s) need attention: %s", len(pending), strings.Join(pending, ", "))))
	} else {
		fmt.Fprintln(p.w, p.style(good, "all steps in sync"))
	}
}

// Step prints one step result with its warnings.
func (p *Printer) Step(r *plansync.StepResult) {
	sym, line := p.outcome(r)
	fmt.Fprintf(p.w, "%s %s/%s %s\n", sym, p.style(accent, r.Project), r.Step, line)
	for _, w := range r.Warnings {
		fmt.Fprintf(p.w, "    %s %s\n", p.style(warn, SymConflict), w)
	}
	if r.Resolution != nil && r.Resolution.Message != "" {
		fmt.Fprintf(p.w, "    %s\n", p.style(muted, r.Resolution.Message))
	}
}

// Summary prints every step of a project sync and a closing tally.
func (p *Printer) Summary(s *plansync.ProjectSummary) {
	for _, r := range s.Results {
		p.Step(r)
	}
	tally := fmt.Sprintf("%d synced, %d unchanged, %d conflicts, %d errors",
		len(s.Synced), len(s.Unchanged), len(s.Conflicts), len(s.Errors))
	if s.Success() {
		fmt.Fprintln(p.w, p.style(good, tally))
		return
	}
	fmt.Fprintln(p.w, p.style(bad, tally))
}

// Projects prints project names, one per line.
func (p *Printer) Projects(names []string) {
	if len(names) == 0 {
		fmt.Fprintln(p.w, p.style(muted, "no projects"))
		return
	}
	for _, n := range names {
		fmt.Fprintln(p.w, n)
	}
}

// Backup prints the files a backup wrote.
func (p *Printer) Backup(b *plansync.BackupResult) {
	if b.Error != "" {
		fmt.Fprintf(p.w, "%s backup %s/%s: %s\n", p.style(bad, SymFail), b.Project, b.Step, b.Error)
		return
	}
	if len(b.Files) == 0 {
		fmt.Fprintf(p.w, "%s nothing to back up for %s/%s\n", p.style(muted, SymIdle), b.Project, b.Step)
		return
	}
	for _, f := range b.Files {
		fmt.Fprintf(p.w, "%s %s\n", p.style(good, SymOK), f)
	}
}

// Backups lists backup files with a short content digest.
func (p *Printer) Backups(files []models.FileMeta) {
	if len(files) == 0 {
		fmt.Fprintln(p.w, p.style(muted, "no backups"))
		return
	}
	rows := make([][]string, 0, len(files))
	for _, f := range files {
		sum := f.Checksum
		if len(sum) > checksum.ShortLen {
			sum = sum[:checksum.ShortLen]
		}
		rows = append(rows, []string{
			f.Path,
			strconv.FormatInt(f.Size, 10),
			f.ModTime.Local().Format(timeLayout),
			sum,
		})
	}
	fmt.Fprintln(p.w, p.table([]string{"FILE", "BYTES", "MODIFIED", "SHA256"}, rows))
}

// History prints journal runs, newest first.
func (p *Printer) History(runs []journal.Run) {
	if len(runs) == 0 {
		fmt.Fprintln(p.w, p.style(muted, "no sync history"))
		return
	}
	rows := make([][]string, 0, len(runs))
	for _, r := range runs {
		result := "ok"
		if !r.Success {
			result = r.Error
			if result == "" {
				result = "failed"
			}
		}
		rows = append(rows, []string{
			r.CreatedAt.Local().Format(timeLayout),
			r.Project,
			r.Step,
			string(r.Direction),
			strconv.Itoa(r.FieldsSynced),
			result,
		})
	}
	fmt.Fprintln(p.w, p.table([]string{"WHEN", "PROJECT", "STEP", "DIRECTION", "FIELDS", "RESULT"}, rows))
}

// Lint prints marker lint issues for a document.
func (p *Printer) Lint(name string, issues []markers.Issue) {
	if len(issues) == 0 {
		fmt.Fprintf(p.w, "%s %s\n", p.style(good, SymOK), name)
		return
	}
	for _, is := range issues {
		fmt.Fprintf(p.w, "%s %s:%d %s\n", p.style(warn, SymConflict), name, is.Line, is.Message)
	}
}

// Eval prints an evaluation report.
func (p *Printer) Eval(project string, rep *eval.Report) {
	rows := make([][]string, 0, len(rep.Scores))
	for _, s := range rep.Scores {
		value := fmt.Sprintf("%.2f", s.Value)
		if s.Skipped {
			value = "skipped"
		}
		rows = append(rows, []string{s.Stage, s.Scorer, value, fmt.Sprintf("%g", s.Weight), s.Detail})
	}
	fmt.Fprintf(p.w, "%s/%s\n", p.style(accent, project), rep.Step)
	fmt.Fprintln(p.w, p.table([]string{"STAGE", "SCORER", "SCORE", "WEIGHT", "DETAIL"}, rows))
	verdict := fmt.Sprintf("overall %.2f", rep.Overall)
	if rep.StoppedAt != "" {
		verdict += " (stopped at " + rep.StoppedAt + ")"
	}
	if rep.Passed {
		fmt.Fprintf(p.w, "%s %s\n", p.style(good, SymOK), verdict)
		return
	}
	fmt.Fprintf(p.w, "%s %s\n", p.style(bad, SymFail), verdict)
}

func (p *Printer) outcome(r *plansync.StepResult) (string, string) {
	switch {
	case r.Conflicted():
		return p.style(warn, SymConflict), "conflict: both sides changed"
	case !r.Success:
		return p.style(bad, SymFail), r.Error
	case r.Direction == models.NoChange:
		return p.style(muted, SymIdle), "up to date"
	}
	return p.style(good, SymOK), fmt.Sprintf("%s, %d field(s) in %s",
		describe(r.Direction), r.FieldsSynced, r.Duration.Round(time.Millisecond))
}

func (p *Printer) direction(d models.Direction) string {
	switch d {
	case models.NoChange:
		return p.style(muted, "in sync")
	case models.Conflict:
		return p.style(warn, "conflict")
	}
	return p.style(accent, describe(d))
}

func describe(d models.Direction) string {
	switch d {
	case models.JSONToPlans:
		return "json → plans"
	case models.PlansToJSON:
		return "plans → json"
	case models.Conflict:
		return "conflict"
	}
	return "in sync"
}

func yesNo(b bool) string {
	if b {
		return "yes"
	}
	return "-"
}
