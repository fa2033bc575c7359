package plansync

import (
	"context"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/starford/gtmkit/internal/models"
	"github.com/starford/gtmkit/internal/project"
)

// DefaultDebounce is how long the watcher waits after the last file event
// before syncing the affected steps.
const DefaultDebounce = 500 * time.Millisecond

// EventCallback is called with every watcher-driven step result that
// changed something or needs attention.
type EventCallback func(r *StepResult)

// stepKey identifies one step of one project.
type stepKey struct {
	project string
	step    string
}

// Watch watches the workspace and syncs any step whose JSON or markdown
// changes, until ctx is cancelled. Events are debounced; a burst of writes
// to the same step produces one sync. Conflicts are resolved with the
// configured policy.
func (m *Manager) Watch(ctx context.Context, debounce time.Duration, cb EventCallback) error {
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	root, err := m.store.Abs("")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(root, 0o755); err != nil {
		return err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return err
	}
	defer w.Close()

	if err := addDirsRecursive(w, root); err != nil {
		return err
	}
	m.logger.Info("watcher: started", slog.String("root", root), slog.Duration("debounce", debounce))

	pending := map[stepKey]struct{}{}
	var timer *time.Timer
	var timerCh <-chan time.Time
	schedule := func(k stepKey) {
		pending[k] = struct{}{}
		if timer == nil {
			timer = time.NewTimer(debounce)
			timerCh = timer.C
		} else {
			timer.Reset(debounce)
		}
	}

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			m.logger.Info("watcher: stopped")
			return nil

		case <-timerCh:
			keys := make([]stepKey, 0, len(pending))
			for k := range pending {
				keys = append(keys, k)
			}
			clear(pending)
			slices.SortFunc(keys, func(a, b stepKey) int {
				if c := strings.Compare(a.project, b.project); c != 0 {
					return c
				}
				return m.stepIndex(a.step) - m.stepIndex(b.step)
			})
			for _, k := range keys {
				m.watchSync(k, cb)
			}

		case ev, ok := <-w.Events:
			if !ok {
				return nil
			}
			if ev.Op&fsnotify.Create != 0 {
				if info, statErr := os.Stat(ev.Name); statErr == nil && info.IsDir() {
					if addErr := addDirsRecursive(w, ev.Name); addErr != nil {
						m.logger.Warn("watcher: add new dir failed",
							slog.String("path", ev.Name),
							slog.String("error", addErr.Error()))
					}
					continue
				}
			}
			if ev.Op&(fsnotify.Create|fsnotify.Write|fsnotify.Remove|fsnotify.Rename) == 0 {
				continue
			}
			rel, relErr := filepath.Rel(root, ev.Name)
			if relErr != nil {
				continue
			}
			if k, ok := m.classify(filepath.ToSlash(rel)); ok {
				m.logger.Debug("watcher: change", slog.String("path", rel), slog.String("op", ev.Op.String()))
				schedule(k)
			}

		case watchErr, ok := <-w.Errors:
			if !ok {
				return nil
			}
			m.logger.Error("watcher: error", slog.String("error", watchErr.Error()))
		}
	}
}

func (m *Manager) watchSync(k stepKey, cb EventCallback) {
	r, err := m.SyncStep(k.project, k.step, SyncOptions{AutoResolve: true})
	if err != nil {
		m.logger.Warn("watcher: sync failed",
			slog.String("project", k.project),
			slog.String("step", k.step),
			slog.String("error", err.Error()))
		return
	}
	if cb != nil && (r.Direction != models.NoChange || !r.Success) {
		cb(r)
	}
}

// classify maps a workspace-relative path such as
// "acme/plans/overview.md" to its step. Temporary files, backups and
// unknown steps are ignored.
func (m *Manager) classify(rel string) (stepKey, bool) {
	parts := strings.Split(rel, "/")
	if len(parts) != 3 {
		return stepKey{}, false
	}
	name := parts[2]
	if strings.HasPrefix(name, ".") {
		return stepKey{}, false
	}
	var step string
	switch parts[1] {
	case project.JSONDir:
		step = strings.TrimSuffix(name, ".json")
		if step == name {
			return stepKey{}, false
		}
	case project.PlansDir:
		step = strings.TrimSuffix(name, ".md")
		if step == name {
			return stepKey{}, false
		}
	default:
		return stepKey{}, false
	}
	if _, err := m.schema.Step(step); err != nil {
		return stepKey{}, false
	}
	return stepKey{project: parts[0], step: step}, true
}

func (m *Manager) stepIndex(step string) int {
	return slices.Index(m.schema.Steps(), step)
}

// addDirsRecursive adds root and all its subdirectories except hidden ones
// to the watcher.
func addDirsRecursive(w *fsnotify.Watcher, root string) error {
	return filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() {
			return nil
		}
		if path != root && strings.HasPrefix(d.Name(), ".") {
			return filepath.SkipDir
		}
		return w.Add(path)
	})
}
