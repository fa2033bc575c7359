package journal

import (
	"github.com/starford/gtmkit/internal/plansync"
)

// History defines the sync history operations. Consumers depend on this
// interface rather than *DB.
type History interface {
	Record(r *plansync.StepResult) error
	List(project string, limit, offset int) ([]Run, int, error)
	Latest(project string) (map[string]Run, error)
	Search(query string, limit int) ([]Run, error)
	Close() error
}

// Verify *DB satisfies History and plansync.Recorder at compile time.
var (
	_ History           = (*DB)(nil)
	_ plansync.Recorder = (*DB)(nil)
)
