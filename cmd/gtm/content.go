package main

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/starford/gtmkit/internal/eval"
	"github.com/starford/gtmkit/internal/generate"
)

func generateCommand() *cli.Command {
	return &cli.Command{
		Name:      "generate",
		Usage:     "Draft a step's content with the configured model and write its plan",
		ArgsUsage: "<step>",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "brief", Aliases: []string{"b"}, Usage: "What the company does, in a sentence or two"},
			&cli.StringFlag{Name: "brief-file", Usage: "Read the brief from a file"},
			&cli.StringFlag{Name: "model", Usage: "Model to use, optionally provider/model"},
		},
		Action: withSession(func(ctx context.Context, cmd *cli.Command, s *session) error {
			project, err := s.requireProject()
			if err != nil {
				return err
			}
			step, err := stepArg(cmd)
			if err != nil {
				return err
			}
			brief := cmd.String("brief")
			if f := cmd.String("brief-file"); f != "" {
				b, err := os.ReadFile(f)
				if err != nil {
					return fmt.Errorf("read brief: %w", err)
				}
				brief = strings.TrimSpace(string(b))
			}

			gw, err := s.app.Gateway()
			if err != nil {
				return err
			}
			model := s.cfg.LLM.Model
			if m := cmd.String("model"); m != "" {
				model = m
			}
			g := generate.New(s.app.Manager, gw, generate.WithModel(model), generate.WithLogger(s.app.Logger))

			res, err := g.Generate(ctx, project, step, brief)
			if err != nil {
				return err
			}
			return s.emit(res, func() {
				if res.Backup != nil {
					s.out.Backup(res.Backup)
				}
				if res.Sync != nil {
					s.out.Step(res.Sync)
				}
				fmt.Fprintf(os.Stdout, "tokens: %d in, %d out\n", res.Usage.InputTokens, res.Usage.OutputTokens)
			})
		}),
	}
}

func evalCommand() *cli.Command {
	return &cli.Command{
		Name:      "eval",
		Usage:     "Score a step's content; --judge adds an LLM review",
		ArgsUsage: "<step>",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "judge", Usage: "Ask the model to rate content that passes the deterministic checks"},
			&cli.StringFlag{Name: "rubric-file", Usage: "Judge rubric to use instead of the default"},
			&cli.FloatFlag{Name: "pass-mark", Value: 0.7, Usage: "Overall score needed to pass"},
		},
		Action: withSession(func(ctx context.Context, cmd *cli.Command, s *session) error {
			project, err := s.requireProject()
			if err != nil {
				return err
			}
			step, err := stepArg(cmd)
			if err != nil {
				return err
			}
			data, err := s.app.Manager.ReadJSON(project, step)
			if err != nil {
				return err
			}

			var judge *eval.Judge
			if cmd.Bool("judge") {
				gw, err := s.app.Gateway()
				if err != nil {
					return err
				}
				judge = &eval.Judge{LLM: gw, Model: s.cfg.LLM.Model}
				if f := cmd.String("rubric-file"); f != "" {
					b, err := os.ReadFile(f)
					if err != nil {
						return fmt.Errorf("read rubric: %w", err)
					}
					judge.Rubric = string(b)
				}
			}

			pipe := eval.NewPipeline(eval.DefaultStages(s.app.Schema, judge),
				eval.WithPassMark(cmd.Float("pass-mark")),
				eval.WithLogger(s.app.Logger))
			rep, err := pipe.Run(ctx, eval.Sample{Step: step, Data: data})
			if err != nil {
				return err
			}
			if err := s.emit(rep, func() { s.out.Eval(project, rep) }); err != nil {
				return err
			}
			if !rep.Passed {
				return cli.Exit("", 1)
			}
			return nil
		}),
	}
}

