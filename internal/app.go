package internal

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/starford/gtmkit/internal/journal"
	"github.com/starford/gtmkit/internal/llm"
	"github.com/starford/gtmkit/internal/plansync"
	"github.com/starford/gtmkit/internal/project"
	"github.com/starford/gtmkit/internal/schema"
	"github.com/starford/gtmkit/internal/storage"
)

// App holds the components shared by the CLI commands and serve mode.
type App struct {
	Config  *Config
	Logger  *slog.Logger
	Schema  *schema.Schema
	Store   *storage.FS
	Manager *plansync.Manager

	journal *journal.DB
}

// NewApp wires the workspace, schema, journal and sync manager from cfg.
func NewApp(cfg *Config, logger *slog.Logger) (*App, error) {
	if err := os.MkdirAll(cfg.Workspace.Path, 0o755); err != nil {
		return nil, fmt.Errorf("create workspace dir: %w", err)
	}
	store, err := storage.NewFS(cfg.Workspace.Path)
	if err != nil {
		return nil, fmt.Errorf("init storage: %w", err)
	}

	s := schema.Default()
	if cfg.Sync.SchemaFile != "" {
		if s, err = schema.Load(cfg.Sync.SchemaFile); err != nil {
			return nil, fmt.Errorf("load schema: %w", err)
		}
	}

	app := &App{Config: cfg, Logger: logger, Schema: s, Store: store}
	opts := []plansync.Option{
		plansync.WithLogger(logger),
		plansync.WithTolerance(cfg.Sync.Tolerance),
		plansync.WithPolicy(cfg.Sync.Policy()),
	}

	if cfg.Journal.Enabled() {
		if err := os.MkdirAll(filepath.Dir(cfg.Journal.Path), 0o755); err != nil {
			return nil, fmt.Errorf("create journal dir: %w", err)
		}
		db, err := journal.Open(cfg.Journal.Path)
		if err != nil {
			return nil, fmt.Errorf("init journal: %w", err)
		}
		app.journal = db
		opts = append(opts, plansync.WithRecorder(db))
	}

	app.Manager = plansync.NewManager(s, project.NewLayout(store), opts...)
	return app, nil
}

// History returns the sync journal, or nil when it is disabled.
func (a *App) History() journal.History {
	if a.journal == nil {
		return nil
	}
	return a.journal
}

// Gateway builds the LLM gateway. It fails when no API key is available.
func (a *App) Gateway() (*llm.Gateway, error) {
	c := a.Config.LLM
	key := c.APIKey
	if key == "" {
		key = os.Getenv("ANTHROPIC_API_KEY")
	}
	if key == "" {
		return nil, errors.New("llm: no API key; set llm.api_key or ANTHROPIC_API_KEY")
	}

	var opts []option.RequestOption
	if c.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(c.BaseURL))
	}
	g := llm.NewGateway(c.Provider,
		llm.WithDefaultModel(c.Model),
		llm.WithMaxTokens(c.MaxTokens),
		llm.WithTimeout(c.Timeout),
		llm.WithLogger(a.Logger))
	g.Register(llm.NewAnthropic(key, opts...))
	return g, nil
}

// Close releases the journal.
func (a *App) Close() error {
	if a.journal != nil {
		return a.journal.Close()
	}
	return nil
}
