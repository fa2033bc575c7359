//go:build !sqlite_fts5

package journal

import (
	"database/sql"
	"fmt"

	"github.com/starford/gtmkit/internal/plansync"
)

func initFTS(_ *sql.DB) error {
	// Without FTS5 the search scans sync_runs directly.
	return nil
}

func ftsInsert(_ *sql.Tx, _ int64, _ *plansync.StepResult) error { return nil }

// Search returns runs whose error or warnings contain query, newest first.
func (db *DB) Search(query string, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	like := "%" + query + "%"
	rows, err := db.conn.Query(`SELECT `+runColumns+` FROM sync_runs
		WHERE error LIKE ? OR warnings LIKE ?
		ORDER BY created_at DESC, id DESC LIMIT ?`, like, like, limit)
	if err != nil {
		return nil, fmt.Errorf("journal: search: %w", err)
	}
	defer rows.Close()
	return scanRuns(rows)
}
