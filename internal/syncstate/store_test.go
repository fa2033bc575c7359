package syncstate

import (
	"errors"
	"slices"
	"testing"
	"time"

	"github.com/starford/gtmkit/internal/models"
	"github.com/starford/gtmkit/internal/project"
	"github.com/starford/gtmkit/internal/storage"
)

func newStore(t *testing.T) (*Store, storage.Provider) {
	t.Helper()
	fs, err := storage.NewFS(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	return NewStore(project.NewLayout(fs)), fs
}

func TestLoad_MissingIsEmpty(t *testing.T) {
	s, _ := newStore(t)
	st, err := s.Load("acme")
	if err != nil {
		t.Fatal(err)
	}
	if len(st) != 0 {
		t.Errorf("state = %v", st)
	}
	if _, ok, _ := s.Get("acme", "overview"); ok {
		t.Error("Get should report no record")
	}
}

func TestPutGet(t *testing.T) {
	s, fs := newStore(t)
	now := time.Date(2026, 10, 18, 10, 0, 0, 123, time.UTC)
	rec := StepState{
		LastSync:      now,
		JSONModified:  now.Add(-time.Second),
		PlansModified: now.Add(-time.Second),
		JSONHash:      "aaaa",
		PlansHash:     "bbbb",
		SyncDirection: models.JSONToPlans,
		SyncedFields:  []string{"description"},
	}
	if err := s.Put("acme", "overview", rec); err != nil {
		t.Fatalf("Put: %v", err)
	}
	if err := s.Put("acme", "email", StepState{LastSync: now, SyncDirection: models.PlansToJSON}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	got, ok, err := s.Get("acme", "overview")
	if err != nil || !ok {
		t.Fatalf("Get: ok=%v err=%v", ok, err)
	}
	if !got.LastSync.Equal(now) || got.SyncDirection != models.JSONToPlans || !slices.Equal(got.SyncedFields, []string{"description"}) {
		t.Errorf("got %+v", got)
	}
	if got.OrphanedFields == nil {
		t.Error("orphaned fields should encode as an empty list")
	}

	raw, _ := fs.Read("acme/plans/.sync_state.json")
	if len(raw) == 0 {
		t.Fatal("state file not written")
	}
	st, _ := s.Load("acme")
	if len(st) != 2 {
		t.Errorf("steps = %d, want 2", len(st))
	}
}

func TestLoad_Corrupt(t *testing.T) {
	s, fs := newStore(t)
	_ = fs.Write("acme/plans/.sync_state.json", []byte("{not json"))
	if _, err := s.Load("acme"); !errors.Is(err, ErrCorrupt) {
		t.Fatalf("err = %v, want ErrCorrupt", err)
	}
	if err := s.Put("acme", "overview", StepState{SyncDirection: models.NoChange}); err != nil {
		t.Fatalf("Put over corrupt file: %v", err)
	}
	if _, ok, err := s.Get("acme", "overview"); err != nil || !ok {
		t.Errorf("Get after repair: ok=%v err=%v", ok, err)
	}
}
