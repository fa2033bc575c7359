// Package testutil provides shared test helpers for setting up workspaces,
// journals and sync managers.
package testutil

import (
	"io"
	"log/slog"
	"os"
	"testing"

	"github.com/starford/gtmkit/internal/journal"
	"github.com/starford/gtmkit/internal/plansync"
	"github.com/starford/gtmkit/internal/project"
	"github.com/starford/gtmkit/internal/schema"
	"github.com/starford/gtmkit/internal/storage"
)

// OverviewJSON is a complete overview step.
const OverviewJSON = `{"description": "A widget maker.", "capabilities": ["Cutting: fast"]}`

// Quiet returns a logger that discards everything.
func Quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// TestJournal creates a temporary journal database that is automatically cleaned up.
func TestJournal(t *testing.T) *journal.DB {
	t.Helper()
	dbFile, err := os.CreateTemp("", "gtm-test-*.db")
	if err != nil {
		t.Fatal(err)
	}
	dbFile.Close()
	t.Cleanup(func() { os.Remove(dbFile.Name()) })

	db, err := journal.Open(dbFile.Name())
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// TestWorkspace creates a temporary workspace directory with a storage
// provider rooted at it.
func TestWorkspace(t *testing.T) (string, *storage.FS) {
	t.Helper()
	dir := t.TempDir()
	store, err := storage.NewFS(dir)
	if err != nil {
		t.Fatal(err)
	}
	return dir, store
}

// TestManager creates a sync manager over a fresh workspace with the
// default schema and a quiet logger. opts are applied after those.
func TestManager(t *testing.T, opts ...plansync.Option) (*plansync.Manager, *storage.FS) {
	t.Helper()
	_, store := TestWorkspace(t)
	all := append([]plansync.Option{plansync.WithLogger(Quiet())}, opts...)
	return plansync.NewManager(schema.Default(), project.NewLayout(store), all...), store
}

// WriteFile writes content to a workspace-relative path.
func WriteFile(t *testing.T, store storage.Provider, rel, content string) {
	t.Helper()
	if err := store.Write(rel, []byte(content)); err != nil {
		t.Fatal(err)
	}
}
