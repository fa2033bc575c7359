// Package project resolves project names to directories inside the
// workspace and knows where each step's files live.
package project

import (
	"errors"
	"fmt"
	"os"
	"path"
	"time"

	"github.com/gosimple/slug"

	"github.com/starford/gtmkit/internal/apperr"
	"github.com/starford/gtmkit/internal/models"
	"github.com/starford/gtmkit/internal/storage"
)

// Directory and file names inside a project.
const (
	JSONDir       = "json_output"
	PlansDir      = "plans"
	BackupDir     = ".backup"
	StateFile     = ".sync_state.json"
	backupTimeFmt = "20060102_150405"
)

// Layout maps projects to workspace-relative paths.
type Layout struct {
	store storage.Provider
}

// NewLayout creates a Layout over store.
func NewLayout(store storage.Provider) *Layout {
	return &Layout{store: store}
}

// Store returns the underlying storage provider.
func (l *Layout) Store() storage.Provider { return l.store }

// Dir returns the project directory for a project or domain name,
// e.g. "Acme Corp" -> "acme-corp".
func (l *Layout) Dir(name string) (string, error) {
	s := slug.Make(name)
	if s == "" {
		return "", fmt.Errorf("%w: %q", apperr.ErrInvalidProject, name)
	}
	return s, nil
}

// Paths holds the workspace-relative paths of one step.
type Paths struct {
	Project string
	Step    string
	JSON    string
	Plans   string
}

// StepPaths returns the JSON and plans paths for step in project.
func (l *Layout) StepPaths(project, step string) (Paths, error) {
	dir, err := l.Dir(project)
	if err != nil {
		return Paths{}, err
	}
	return Paths{
		Project: dir,
		Step:    step,
		JSON:    path.Join(dir, JSONDir, step+".json"),
		Plans:   path.Join(dir, PlansDir, step+".md"),
	}, nil
}

// StatePath returns the sync state file of project.
func (l *Layout) StatePath(project string) (string, error) {
	dir, err := l.Dir(project)
	if err != nil {
		return "", err
	}
	return path.Join(dir, PlansDir, StateFile), nil
}

// BackupPath returns the backup file for one side of a step at t. kind is
// "json" or "plans".
func (l *Layout) BackupPath(project, step, kind string, t time.Time) (string, error) {
	dir, err := l.Dir(project)
	if err != nil {
		return "", err
	}
	ext := ".json"
	if kind == "plans" {
		ext = ".md"
	}
	name := fmt.Sprintf("%s_%s_%s%s", step, kind, t.Format(backupTimeFmt), ext)
	return path.Join(dir, BackupDir, name), nil
}

// Backups returns every file in the project's backup directory. A project
// that was never backed up has none.
func (l *Layout) Backups(project string) ([]models.FileMeta, error) {
	dir, err := l.Dir(project)
	if err != nil {
		return nil, err
	}
	files, err := l.store.List(path.Join(dir, BackupDir), "")
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	return files, nil
}

// List returns the project directories in the workspace. A workspace that
// does not exist yet has no projects.
func (l *Layout) List() ([]string, error) {
	dirs, err := l.store.Dirs("")
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, nil
		}
		return nil, err
	}
	return dirs, nil
}
