package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"

	"github.com/ahrav/go-grader/cmd/grader/commands"
	"github.com/ahrav/go-grader/internal/domain"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &cli.Command{
		Name:  "grader",
		Usage: "LLM-backed answer grading service",
		Commands: []*cli.Command{
			{
				Name:   "serve",
				Usage:  "run the HTTP grading service",
				Flags:  []cli.Flag{envFlag()},
				Action: commands.ServeAction,
			},
			{
				Name:  "grade",
				Usage: "grade one answer file and print the correction",
				Flags: []cli.Flag{
					envFlag(),
					&cli.StringFlag{
						Name:  "type",
						Usage: "question type label (concept, calculation, proof, programming)",
						Value: domain.LabelConcept,
					},
					&cli.StringFlag{
						Name:  "problem",
						Usage: "file holding the problem stem",
					},
					&cli.StringFlag{
						Name:     "answer",
						Usage:    "file holding the student answer",
						Required: true,
					},
					&cli.StringFlag{
						Name:  "rubric",
						Usage: "file holding the grading rubric",
					},
					&cli.FloatFlag{
						Name:  "max-score",
						Usage: "score ceiling when the model reports none",
						Value: domain.DefaultMaxScore,
					},
				},
				Action: commands.GradeAction,
			},
		},
	}

	if err := app.Run(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}

func envFlag() cli.Flag {
	return &cli.StringFlag{
		Name:  "env",
		Usage: "path to a .env file",
		Value: ".env",
	}
}
