package api

import (
	"github.com/starford/gtmkit/internal/journal"
	"github.com/starford/gtmkit/internal/markers"
)

// SyncProjectRequest is the optional body of POST /projects/{project}/sync.
type SyncProjectRequest struct {
	Steps       []string `json:"steps"`
	AutoResolve *bool    `json:"auto_resolve"`
	Prefer      string   `json:"prefer"`
}

// ProjectsResponse lists the workspace projects.
type ProjectsResponse struct {
	Projects []string `json:"projects"`
}

// PlanResponse is the markdown of one step with its parse outcome.
type PlanResponse struct {
	Project  string          `json:"project"`
	Step     string          `json:"step"`
	Content  string          `json:"content"`
	Fields   map[string]any  `json:"fields"`
	Orphaned []string        `json:"orphaned_fields"`
	Warnings []string        `json:"warnings"`
	Issues   []markers.Issue `json:"issues"`
}

// HistoryResponse wraps paginated sync runs.
type HistoryResponse struct {
	Runs  []journal.Run `json:"runs"`
	Total int           `json:"total"`
}
