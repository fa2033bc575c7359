package api

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/starford/gtmkit/internal/journal"
	"github.com/starford/gtmkit/internal/markers"
	"github.com/starford/gtmkit/internal/plansync"
)

// Handler holds API route handlers.
type Handler struct {
	mgr     *plansync.Manager
	history journal.History
	notify  plansync.EventCallback
}

// NewHandler creates a Handler. history and notify may be nil; without a
// history the history route answers 404.
func NewHandler(mgr *plansync.Manager, history journal.History, notify plansync.EventCallback) *Handler {
	return &Handler{mgr: mgr, history: history, notify: notify}
}

func (h *Handler) publish(r *plansync.StepResult) {
	if h.notify != nil {
		h.notify(r)
	}
}

// ListProjects handles GET /api/projects.
func (h *Handler) ListProjects(w http.ResponseWriter, r *http.Request) {
	projects, err := h.mgr.Projects()
	if err != nil {
		writeError(w, "list projects", err)
		return
	}
	if projects == nil {
		projects = []string{}
	}
	writeJSON(w, http.StatusOK, ProjectsResponse{Projects: projects})
}

// Status handles GET /api/projects/{project}/status.
func (h *Handler) Status(w http.ResponseWriter, r *http.Request) {
	st, err := h.mgr.GetSyncStatus(chi.URLParam(r, "project"))
	if err != nil {
		writeError(w, "status", err)
		return
	}
	writeJSON(w, http.StatusOK, st)
}

// SyncProject handles POST /api/projects/{project}/sync. Options come from
// the query (?steps=a,b&auto_resolve=false&prefer=json) or a JSON body; body
// fields win. Conflicts are auto-resolved unless auto_resolve is false.
func (h *Handler) SyncProject(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	var req SyncProjectRequest
	if s := q.Get("steps"); s != "" {
		for _, step := range strings.Split(s, ",") {
			if step = strings.TrimSpace(step); step != "" {
				req.Steps = append(req.Steps, step)
			}
		}
	}
	if v := q.Get("auto_resolve"); v != "" {
		b := v != "false"
		req.AutoResolve = &b
	}
	req.Prefer = q.Get("prefer")

	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeJSON(w, http.StatusBadRequest, errorBody("invalid JSON body"))
		return
	}
	opts := plansync.SyncOptions{AutoResolve: req.AutoResolve == nil || *req.AutoResolve}
	if req.Prefer != "" {
		a, err := plansync.ParseAction(req.Prefer)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
			return
		}
		opts.Prefer = a
	}

	sum, err := h.mgr.SyncProject(chi.URLParam(r, "project"), req.Steps, opts)
	if err != nil {
		writeError(w, "sync project", err)
		return
	}
	for _, res := range sum.Results {
		h.publish(res)
	}
	writeJSON(w, http.StatusOK, sum)
}

// SyncStep handles POST /api/projects/{project}/steps/{step}/sync.
// ?prefer=json|plans forces the winning side of a conflict;
// ?auto_resolve=false reports conflicts instead of resolving them.
func (h *Handler) SyncStep(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	opts := plansync.SyncOptions{AutoResolve: q.Get("auto_resolve") != "false"}
	if p := q.Get("prefer"); p != "" {
		a, err := plansync.ParseAction(p)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody(err.Error()))
			return
		}
		opts.Prefer = a
	}

	res, err := h.mgr.SyncStep(chi.URLParam(r, "project"), chi.URLParam(r, "step"), opts)
	if err != nil {
		writeError(w, "sync step", err)
		return
	}
	h.publish(res)
	status := http.StatusOK
	if res.Conflicted() {
		status = http.StatusConflict
	}
	writeJSON(w, status, res)
}

// Backup handles POST /api/projects/{project}/steps/{step}/backup.
func (h *Handler) Backup(w http.ResponseWriter, r *http.Request) {
	res, err := h.mgr.CreateBackup(chi.URLParam(r, "project"), chi.URLParam(r, "step"))
	if err != nil {
		writeError(w, "backup", err)
		return
	}
	status := http.StatusCreated
	if res.Error != "" {
		status = http.StatusInternalServerError
	} else if len(res.Files) == 0 {
		status = http.StatusOK
	}
	writeJSON(w, status, res)
}

// Repair handles POST /api/projects/{project}/steps/{step}/repair.
func (h *Handler) Repair(w http.ResponseWriter, r *http.Request) {
	res, err := h.mgr.Repair(chi.URLParam(r, "project"), chi.URLParam(r, "step"))
	if err != nil {
		writeError(w, "repair", err)
		return
	}
	if res.Sync != nil {
		h.publish(res.Sync)
	}
	writeJSON(w, http.StatusOK, res)
}

// Plan handles GET /api/projects/{project}/steps/{step}/plan.
func (h *Handler) Plan(w http.ResponseWriter, r *http.Request) {
	project, step := chi.URLParam(r, "project"), chi.URLParam(r, "step")
	raw, err := h.mgr.ReadPlan(project, step)
	if err != nil {
		writeError(w, "read plan", err)
		return
	}
	parsed, err := h.mgr.ParsePlan(project, step)
	if err != nil {
		writeError(w, "parse plan", err)
		return
	}
	issues := markers.Lint(raw)
	if issues == nil {
		issues = []markers.Issue{}
	}
	writeJSON(w, http.StatusOK, PlanResponse{
		Project:  project,
		Step:     step,
		Content:  string(raw),
		Fields:   parsed.Fields,
		Orphaned: parsed.Orphaned,
		Warnings: parsed.Warnings,
		Issues:   issues,
	})
}

// History handles GET /api/projects/{project}/history.
func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	if h.history == nil {
		writeJSON(w, http.StatusNotFound, errorBody("sync history is disabled"))
		return
	}
	q := r.URL.Query()
	limit, _ := strconv.Atoi(q.Get("limit"))
	offset, _ := strconv.Atoi(q.Get("offset"))
	dir, err := h.mgr.Layout().Dir(chi.URLParam(r, "project"))
	if err != nil {
		writeError(w, "history", err)
		return
	}
	runs, total, err := h.history.List(dir, limit, offset)
	if err != nil {
		slog.Error("history failed", slog.String("project", dir), slog.String("error", err.Error()))
		writeJSON(w, http.StatusInternalServerError, errorBody("internal error"))
		return
	}
	if runs == nil {
		runs = []journal.Run{}
	}
	writeJSON(w, http.StatusOK, HistoryResponse{Runs: runs, Total: total})
}
