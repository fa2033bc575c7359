package main

import (
	"context"
	"errors"

	"github.com/urfave/cli/v3"

	"github.com/starford/gtmkit/internal"
	"github.com/starford/gtmkit/internal/mcpserver"
	"github.com/starford/gtmkit/internal/plansync"
)

func watchCommand() *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "Sync steps automatically as their files change",
		Flags: []cli.Flag{
			&cli.DurationFlag{Name: "debounce", Usage: "Quiet period before a changed step is synced"},
		},
		Action: withSession(func(ctx context.Context, cmd *cli.Command, s *session) error {
			debounce := s.cfg.Watch.Debounce
			if d := cmd.Duration("debounce"); d > 0 {
				debounce = d
			}
			err := s.app.Manager.Watch(ctx, debounce, func(r *plansync.StepResult) {
				_ = s.emit(r, func() { s.out.Step(r) })
			})
			if errors.Is(err, context.Canceled) {
				return nil
			}
			return err
		}),
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Run the HTTP API with live sync events and the file watcher",
		Action: withSession(func(ctx context.Context, _ *cli.Command, s *session) error {
			return internal.Run(ctx,
				internal.WithConfig(s.cfg),
				internal.WithVersion(version),
				internal.WithApp(s.app),
			)
		}),
	}
}

func mcpCommand() *cli.Command {
	return &cli.Command{
		Name:  "mcp",
		Usage: "Serve the sync tools to an MCP client over stdio",
		Action: withSession(func(_ context.Context, _ *cli.Command, s *session) error {
			return mcpserver.New(s.app.Manager, version).ServeStdio()
		}),
	}
}
