// Package plansync keeps each step's JSON artifact and its editable
// markdown plan in step with each other.
package plansync

import (
	"errors"
	"os"
	"time"

	"github.com/starford/gtmkit/internal/checksum"
	"github.com/starford/gtmkit/internal/models"
	"github.com/starford/gtmkit/internal/project"
	"github.com/starford/gtmkit/internal/storage"
	"github.com/starford/gtmkit/internal/syncstate"
)

// DefaultTolerance is the window within which two first-sync files count as
// written together.
const DefaultTolerance = 2 * time.Second

// Detector classifies which side of a step needs to be synced.
type Detector struct {
	layout    *project.Layout
	store     storage.Provider
	state     *syncstate.Store
	tolerance time.Duration
}

// NewDetector creates a Detector.
func NewDetector(layout *project.Layout, state *syncstate.Store, tolerance time.Duration) *Detector {
	if tolerance < 0 {
		tolerance = 0
	}
	return &Detector{layout: layout, store: layout.Store(), state: state, tolerance: tolerance}
}

// fileSide is the observed state of one side of a step.
type fileSide struct {
	exists bool
	meta   models.FileMeta
}

// DetectChanges returns the direction the step needs.
//
// Existence decides first: a lone file is copied to the other side. With
// both present, each file counts as changed when it was modified after the
// recorded last sync and its content hash differs from the recorded one.
// Without a record the newer file wins, unless the two were modified
// within the tolerance of each other.
func (d *Detector) DetectChanges(projectName, step string) (models.Direction, error) {
	paths, err := d.layout.StepPaths(projectName, step)
	if err != nil {
		return "", err
	}
	js, err := d.side(paths.JSON)
	if err != nil {
		return "", err
	}
	pl, err := d.side(paths.Plans)
	if err != nil {
		return "", err
	}

	switch {
	case !js.exists && !pl.exists:
		return models.NoChange, nil
	case js.exists && !pl.exists:
		return models.JSONToPlans, nil
	case !js.exists && pl.exists:
		return models.PlansToJSON, nil
	}

	rec, ok, err := d.state.Get(projectName, step)
	if err != nil && !errors.Is(err, syncstate.ErrCorrupt) {
		return "", err
	}
	if !ok {
		return d.compareTimes(js.meta.ModTime, pl.meta.ModTime), nil
	}

	jsonChanged, err := d.changed(paths.JSON, js.meta, rec.LastSync, rec.JSONHash)
	if err != nil {
		return "", err
	}
	plansChanged, err := d.changed(paths.Plans, pl.meta, rec.LastSync, rec.PlansHash)
	if err != nil {
		return "", err
	}

	switch {
	case jsonChanged && plansChanged:
		return models.Conflict, nil
	case jsonChanged:
		return models.JSONToPlans, nil
	case plansChanged:
		return models.PlansToJSON, nil
	default:
		return models.NoChange, nil
	}
}

func (d *Detector) side(path string) (fileSide, error) {
	meta, err := d.store.Stat(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return fileSide{}, nil
		}
		return fileSide{}, err
	}
	return fileSide{exists: true, meta: meta}, nil
}

func (d *Detector) changed(path string, meta models.FileMeta, lastSync time.Time, hash string) (bool, error) {
	if !meta.ModTime.After(lastSync) {
		return false, nil
	}
	if hash == "" {
		return true, nil
	}
	data, err := d.store.Read(path)
	if err != nil {
		return false, err
	}
	return checksum.Short(data) != hash, nil
}

func (d *Detector) compareTimes(jsonMod, plansMod time.Time) models.Direction {
	diff := jsonMod.Sub(plansMod)
	if diff.Abs() < d.tolerance {
		return models.NoChange
	}
	if diff > 0 {
		return models.JSONToPlans
	}
	return models.PlansToJSON
}
