package journal

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/starford/gtmkit/internal/models"
	"github.com/starford/gtmkit/internal/plansync"
)

// Run is one recorded step sync.
type Run struct {
	ID           int64            `json:"id"`
	Project      string           `json:"project"`
	Step         string           `json:"step"`
	Detected     models.Direction `json:"detected"`
	Direction    models.Direction `json:"direction"`
	Success      bool             `json:"success"`
	FieldsSynced int              `json:"fields_synced"`
	SyncedFields []string         `json:"synced_fields"`
	Orphaned     []string         `json:"orphaned_fields"`
	Warnings     []string         `json:"warnings"`
	Error        string           `json:"error,omitempty"`
	Resolution   string           `json:"resolution,omitempty"`
	Duration     time.Duration    `json:"duration_ns"`
	CreatedAt    time.Time        `json:"created_at"`
}

const runColumns = `id, project, step, detected, direction, success, fields_synced,
	synced_fields, orphaned, warnings, error, resolution, duration_ms, created_at`

// Record stores a step result and marks it as the step's latest run.
func (db *DB) Record(r *plansync.StepResult) error {
	tx, err := db.conn.Begin()
	if err != nil {
		return fmt.Errorf("journal: begin tx: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck // best-effort on failure path

	resolution := ""
	if r.Resolution != nil {
		resolution = string(r.Resolution.Action)
	}
	res, err := tx.Exec(`
		INSERT INTO sync_runs (project, step, detected, direction, success, fields_synced,
			synced_fields, orphaned, warnings, error, resolution, duration_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`, r.Project, r.Step, string(r.Detected), string(r.Direction), r.Success, r.FieldsSynced,
		encodeList(r.SyncedFields), encodeList(r.Orphaned), encodeList(r.Warnings),
		r.Error, resolution, r.Duration.Milliseconds(), db.now().UTC())
	if err != nil {
		return fmt.Errorf("journal: insert run: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("journal: run id: %w", err)
	}
	if err := ftsInsert(tx, id, r); err != nil {
		return err
	}

	_, err = tx.Exec(`
		INSERT INTO step_latest (project, step, run_id) VALUES (?, ?, ?)
		ON CONFLICT(project, step) DO UPDATE SET run_id = excluded.run_id
	`, r.Project, r.Step, id)
	if err != nil {
		return fmt.Errorf("journal: update latest: %w", err)
	}
	return tx.Commit()
}

// List returns a project's runs, newest first, and the total count. An
// empty project lists every project.
func (db *DB) List(project string, limit, offset int) ([]Run, int, error) {
	if limit <= 0 {
		limit = 50
	}
	where, args := "", []any{}
	if project != "" {
		where = "WHERE project = ?"
		args = append(args, project)
	}

	var total int
	if err := db.conn.QueryRow(`SELECT count(*) FROM sync_runs `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("journal: count: %w", err)
	}

	rows, err := db.conn.Query(`SELECT `+runColumns+` FROM sync_runs `+where+`
		ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`, append(args, limit, offset)...)
	if err != nil {
		return nil, 0, fmt.Errorf("journal: list: %w", err)
	}
	defer rows.Close()
	out, err := scanRuns(rows)
	if err != nil {
		return nil, 0, err
	}
	return out, total, nil
}

// Latest returns the most recent run of each step of a project, keyed by
// step name.
func (db *DB) Latest(project string) (map[string]Run, error) {
	rows, err := db.conn.Query(`SELECT `+prefixed("r.")+` FROM step_latest l
		JOIN sync_runs r ON r.id = l.run_id WHERE l.project = ?`, project)
	if err != nil {
		return nil, fmt.Errorf("journal: latest: %w", err)
	}
	defer rows.Close()
	runs, err := scanRuns(rows)
	if err != nil {
		return nil, err
	}
	out := make(map[string]Run, len(runs))
	for _, r := range runs {
		out[r.Step] = r
	}
	return out, nil
}

func scanRuns(rows *sql.Rows) ([]Run, error) {
	var out []Run
	for rows.Next() {
		var (
			r                          Run
			detected, direction        string
			synced, orphaned, warnings string
			durationMS                 int64
		)
		if err := rows.Scan(&r.ID, &r.Project, &r.Step, &detected, &direction, &r.Success, &r.FieldsSynced,
			&synced, &orphaned, &warnings, &r.Error, &r.Resolution, &durationMS, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("journal: scan: %w", err)
		}
		r.Detected = models.Direction(detected)
		r.Direction = models.Direction(direction)
		r.SyncedFields = decodeList(synced)
		r.Orphaned = decodeList(orphaned)
		r.Warnings = decodeList(warnings)
		r.Duration = time.Duration(durationMS) * time.Millisecond
		out = append(out, r)
	}
	return out, rows.Err()
}

func prefixed(p string) string {
	return p + `id, ` + p + `project, ` + p + `step, ` + p + `detected, ` + p + `direction, ` +
		p + `success, ` + p + `fields_synced, ` + p + `synced_fields, ` + p + `orphaned, ` +
		p + `warnings, ` + p + `error, ` + p + `resolution, ` + p + `duration_ms, ` + p + `created_at`
}

func encodeList(xs []string) string {
	if xs == nil {
		xs = []string{}
	}
	b, _ := json.Marshal(xs)
	return string(b)
}

func decodeList(s string) []string {
	out := []string{}
	_ = json.Unmarshal([]byte(s), &out)
	return out
}
