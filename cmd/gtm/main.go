package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/gtmkit/internal"
	"github.com/starford/gtmkit/internal/ui"
	pkgconfig "github.com/starford/gtmkit/pkg/config"
)

var version = "dev"

// session is the per-invocation state every subcommand works with.
type session struct {
	cfg     *internal.Config
	app     *internal.App
	out     *ui.Printer
	json    bool
	project string
	closers []func() error
}

func (s *session) close() {
	for i := len(s.closers) - 1; i >= 0; i-- {
		_ = s.closers[i]()
	}
}

// emit writes v as JSON when --json is set, otherwise calls render.
func (s *session) emit(v any, render func()) error {
	if !s.json {
		render()
		return nil
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func (s *session) requireProject() (string, error) {
	if s.project == "" {
		return "", errors.New("a project is required: pass --project or set GTM_PROJECT")
	}
	return s.project, nil
}

func loadConfig(cmd *cli.Command) (*internal.Config, error) {
	cfg := internal.NewDefaultConfig()
	if _, err := pkgconfig.LoadOptional(cmd.Root().String("config"), cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if ws := cmd.Root().String("workspace"); ws != "" {
		cfg.Workspace.Path = ws
	}
	return cfg, nil
}

func openSession(cmd *cli.Command) (*session, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}
	logger, closeLog := internal.NewLogger(cfg.App, os.Stderr)
	slog.SetDefault(logger)

	s := &session{
		cfg:     cfg,
		out:     ui.NewPrinter(os.Stdout),
		json:    cmd.Root().Bool("json"),
		project: cmd.Root().String("project"),
		closers: []func() error{closeLog},
	}
	app, err := internal.NewApp(cfg, logger)
	if err != nil {
		s.close()
		return nil, err
	}
	s.app = app
	s.closers = append(s.closers, app.Close)
	return s, nil
}

// withSession adapts a session-aware action to a cli action.
func withSession(fn func(ctx context.Context, cmd *cli.Command, s *session) error) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		s, err := openSession(cmd)
		if err != nil {
			return err
		}
		defer s.close()
		return fn(ctx, cmd, s)
	}
}

func main() {
	cmd := &cli.Command{
		Name:    "gtm",
		Usage:   "Keep GTM step JSON and hand-editable markdown plans in sync",
		Version: version,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file (YAML or TOML)",
				DefaultText: "gtm.yaml",
				Value:       "gtm.yaml",
				Sources:     cli.EnvVars("GTM_CONFIG_FILE"),
			},
			&cli.StringFlag{
				Name:    "project",
				Aliases: []string{"p"},
				Usage:   "Project or company name",
				Sources: cli.EnvVars("GTM_PROJECT"),
			},
			&cli.StringFlag{
				Name:    "workspace",
				Aliases: []string{"w"},
				Usage:   "Workspace directory (overrides workspace.path)",
				Sources: cli.EnvVars("GTM_WORKSPACE"),
			},
			&cli.BoolFlag{
				Name:  "json",
				Usage: "Print machine-readable JSON",
			},
		},
		Commands: []*cli.Command{
			projectsCommand(),
			statusCommand(),
			syncCommand(),
			backupCommand(),
			repairCommand(),
			lintCommand(),
			historyCommand(),
			watchCommand(),
			serveCommand(),
			mcpCommand(),
			generateCommand(),
			evalCommand(),
		},
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := cmd.Run(ctx, os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		fmt.Fprintln(os.Stderr, "gtm:", err)
		os.Exit(1)
	}
}
