//go:build sqlite_fts5

package journal

import (
	"database/sql"
	"fmt"
	"strings"

	"github.com/starford/gtmkit/internal/plansync"
)

func initFTS(conn *sql.DB) error {
	_, err := conn.Exec(`
		CREATE VIRTUAL TABLE IF NOT EXISTS runs_fts USING fts5(
			run_id UNINDEXED,
			project,
			step,
			error,
			warnings,
			tokenize = 'unicode61 remove_diacritics 2'
		);
	`)
	return err
}

func ftsInsert(tx *sql.Tx, id int64, r *plansync.StepResult) error {
	_, err := tx.Exec(`INSERT INTO runs_fts (run_id, project, step, error, warnings) VALUES (?, ?, ?, ?, ?)`,
		id, r.Project, r.Step, r.Error, strings.Join(r.Warnings, "\n"))
	if err != nil {
		return fmt.Errorf("journal: insert fts: %w", err)
	}
	return nil
}

// Search returns runs matching an FTS5 query over errors and warnings,
// best match first.
func (db *DB) Search(query string, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := db.conn.Query(`SELECT `+prefixed("r.")+` FROM runs_fts f
		JOIN sync_runs r ON r.id = f.run_id
		WHERE runs_fts MATCH ?
		ORDER BY f.rank
		LIMIT ?`, query, limit)
	if err != nil {
		return nil, fmt.Errorf("journal: search: %w", err)
	}
	defer rows.Close()
	return scanRuns(rows)
}
