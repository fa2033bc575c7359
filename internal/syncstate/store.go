// Package syncstate persists the last synchronized state of every step of a
// project in plans/.sync_state.json.
package syncstate

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/starford/gtmkit/internal/models"
	"github.com/starford/gtmkit/internal/project"
	"github.com/starford/gtmkit/internal/storage"
)

// ErrCorrupt is returned when the state file exists but cannot be decoded.
var ErrCorrupt = errors.New("sync state file is corrupt")

// StepState records one step at the moment of its last sync.
type StepState struct {
	LastSync       time.Time        `json:"last_sync"`
	JSONModified   time.Time        `json:"json_modified"`
	PlansModified  time.Time        `json:"plans_modified"`
	JSONHash       string           `json:"json_hash"`
	PlansHash      string           `json:"plans_hash"`
	SyncDirection  models.Direction `json:"sync_direction"`
	SyncedFields   []string         `json:"synced_fields"`
	OrphanedFields []string         `json:"orphaned_fields"`
}

// State maps step names to their last sync record.
type State map[string]StepState

// Store reads and writes project state files.
type Store struct {
	store  storage.Provider
	layout *project.Layout
}

// NewStore creates a Store.
func NewStore(layout *project.Layout) *Store {
	return &Store{store: layout.Store(), layout: layout}
}

// Load returns the project's state. A missing file yields an empty State.
func (s *Store) Load(projectName string) (State, error) {
	p, err := s.layout.StatePath(projectName)
	if err != nil {
		return nil, err
	}
	data, err := s.store.Read(p)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return State{}, nil
		}
		return nil, err
	}
	st := State{}
	if err := json.Unmarshal(data, &st); err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrCorrupt, p, err)
	}
	return st, nil
}

// Get returns the record for one step. ok is false when the step has never
// been synced.
func (s *Store) Get(projectName, step string) (rec StepState, ok bool, err error) {
	st, err := s.Load(projectName)
	if err != nil {
		return StepState{}, false, err
	}
	rec, ok = st[step]
	return rec, ok, nil
}

// Put replaces the record for one step. The file is rewritten atomically so
// readers see either the previous or the new state. A corrupt state file is
// replaced rather than merged.
func (s *Store) Put(projectName, step string, rec StepState) error {
	st, err := s.Load(projectName)
	if err != nil {
		if !errors.Is(err, ErrCorrupt) {
			return err
		}
		st = State{}
	}
	if rec.SyncedFields == nil {
		rec.SyncedFields = []string{}
	}
	if rec.OrphanedFields == nil {
		rec.OrphanedFields = []string{}
	}
	st[step] = rec

	data, err := json.MarshalIndent(st, "", "  ")
	if err != nil {
		return fmt.Errorf("syncstate: encode: %w", err)
	}
	p, err := s.layout.StatePath(projectName)
	if err != nil {
		return err
	}
	return s.store.Write(p, append(data, '\n'))
}
