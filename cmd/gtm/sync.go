package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/starford/gtmkit/internal/journal"
	"github.com/starford/gtmkit/internal/plansync"
)

func projectsCommand() *cli.Command {
	return &cli.Command{
		Name:  "projects",
		Usage: "List projects in the workspace",
		Action: withSession(func(_ context.Context, _ *cli.Command, s *session) error {
			names, err := s.app.Manager.Projects()
			if err != nil {
				return err
			}
			return s.emit(names, func() { s.out.Projects(names) })
		}),
	}
}

func statusCommand() *cli.Command {
	return &cli.Command{
		Name:  "status",
		Usage: "Show which steps need syncing",
		Action: withSession(func(_ context.Context, _ *cli.Command, s *session) error {
			project, err := s.requireProject()
			if err != nil {
				return err
			}
			st, err := s.app.Manager.GetSyncStatus(project)
			if err != nil {
				return err
			}
			return s.emit(st, func() { s.out.Status(st) })
		}),
	}
}

func syncCommand() *cli.Command {
	return &cli.Command{
		Name:      "sync",
		Usage:     "Sync JSON and markdown for a project's steps",
		ArgsUsage: "[step...]",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "no-auto-resolve",
				Usage: "Report conflicts instead of applying the conflict policy",
			},
			&cli.StringFlag{
				Name:  "prefer",
				Usage: "Side that wins a conflict: plans or json",
			},
		},
		Action: withSession(func(_ context.Context, cmd *cli.Command, s *session) error {
			project, err := s.requireProject()
			if err != nil {
				return err
			}
			opts := plansync.SyncOptions{AutoResolve: !cmd.Bool("no-auto-resolve")}
			if p := cmd.String("prefer"); p != "" {
				if opts.Prefer, err = plansync.ParseAction(p); err != nil {
					return err
				}
			}

			sum, err := s.app.Manager.SyncProject(project, cmd.Args().Slice(), opts)
			if err != nil {
				return err
			}
			if err := s.emit(sum, func() { s.out.Summary(sum) }); err != nil {
				return err
			}
			if !sum.Success() {
				return cli.Exit("", 1)
			}
			return nil
		}),
	}
}

func stepArg(cmd *cli.Command) (string, error) {
	step := cmd.Args().First()
	if step == "" {
		return "", fmt.Errorf("%s: a step name is required", cmd.Name)
	}
	return step, nil
}

func backupCommand() *cli.Command {
	return &cli.Command{
		Name:      "backup",
		Usage:     "Copy a step's JSON and markdown into the project's .backup directory",
		ArgsUsage: "<step>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "list", Aliases: []string{"l"}, Usage: "List existing backups of the step, or of every step when none is given"},
		},
		Action: withSession(func(_ context.Context, cmd *cli.Command, s *session) error {
			project, err := s.requireProject()
			if err != nil {
				return err
			}
			if cmd.Bool("list") {
				files, err := s.app.Manager.ListBackups(project, cmd.Args().First())
				if err != nil {
					return err
				}
				return s.emit(files, func() { s.out.Backups(files) })
			}
			step, err := stepArg(cmd)
			if err != nil {
				return err
			}
			res, err := s.app.Manager.CreateBackup(project, step)
			if err != nil {
				return err
			}
			if err := s.emit(res, func() { s.out.Backup(res) }); err != nil {
				return err
			}
			if res.Error != "" {
				return cli.Exit("", 1)
			}
			return nil
		}),
	}
}

func repairCommand() *cli.Command {
	return &cli.Command{
		Name:      "repair",
		Usage:     "Back up a step, then regenerate its markdown from JSON",
		ArgsUsage: "<step>",
		Action: withSession(func(_ context.Context, cmd *cli.Command, s *session) error {
			project, err := s.requireProject()
			if err != nil {
				return err
			}
			step, err := stepArg(cmd)
			if err != nil {
				return err
			}
			res, err := s.app.Manager.Repair(project, step)
			if err != nil {
				return err
			}
			if err := s.emit(res, func() {
				s.out.Backup(res.Backup)
				if res.Sync != nil {
					s.out.Step(res.Sync)
				}
			}); err != nil {
				return err
			}
			if res.Sync == nil || !res.Sync.Success {
				return cli.Exit("", 1)
			}
			return nil
		}),
	}
}

func lintCommand() *cli.Command {
	return &cli.Command{
		Name:      "lint",
		Usage:     "Check a step's markdown plan for marker problems",
		ArgsUsage: "<step>",
		Action: withSession(func(_ context.Context, cmd *cli.Command, s *session) error {
			project, err := s.requireProject()
			if err != nil {
				return err
			}
			step, err := stepArg(cmd)
			if err != nil {
				return err
			}
			issues, err := s.app.Manager.LintPlan(project, step)
			if err != nil {
				return err
			}
			if err := s.emit(issues, func() { s.out.Lint(step+".md", issues) }); err != nil {
				return err
			}
			if len(issues) > 0 {
				return cli.Exit("", 1)
			}
			return nil
		}),
	}
}

func historyCommand() *cli.Command {
	return &cli.Command{
		Name:  "history",
		Usage: "Show recent sync runs from the journal",
		Flags: []cli.Flag{
			&cli.IntFlag{Name: "limit", Aliases: []string{"n"}, Value: 20, Usage: "Number of runs"},
			&cli.StringFlag{Name: "search", Aliases: []string{"q"}, Usage: "Only runs whose errors or warnings match"},
		},
		Action: withSession(func(_ context.Context, cmd *cli.Command, s *session) error {
			h := s.app.History()
			if h == nil {
				return fmt.Errorf("history: the journal is disabled (journal.path is empty)")
			}
			limit := int(cmd.Int("limit"))

			var runs []journal.Run
			var err error
			if q := cmd.String("search"); q != "" {
				runs, err = h.Search(q, limit)
			} else {
				dir := ""
				if s.project != "" {
					if dir, err = s.app.Manager.Layout().Dir(s.project); err != nil {
						return err
					}
				}
				runs, _, err = h.List(dir, limit, 0)
			}
			if err != nil {
				return err
			}
			return s.emit(runs, func() { s.out.History(runs) })
		}),
	}
}
