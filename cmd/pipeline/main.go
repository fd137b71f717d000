package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/urfave/cli/v3"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &cli.Command{
		Name:  "pipeline",
		Usage: "Fetch JSON endpoints concurrently and stream their records to JSONL",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: "YAML config file path",
			},
			&cli.StringFlag{
				Name:  "env",
				Usage: "Environment file path",
				Value: ".env",
			},
			&cli.StringFlag{
				Name:  "log-level",
				Usage: "Log level (debug, info, warn, error)",
			},
			&cli.StringFlag{
				Name:  "log-format",
				Usage: "Log format (console, json)",
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "run",
				Usage:     "Run the pipeline once over an endpoint list",
				ArgsUsage: "[endpoint...]",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "input",
						Aliases: []string{"i"},
						Usage:   "File with one endpoint per line (- for stdin)",
					},
					&cli.StringFlag{
						Name:    "output",
						Aliases: []string{"o"},
						Usage:   "JSONL output file (- for stdout)",
						Value:   "-",
					},
					&cli.IntFlag{
						Name:    "concurrency",
						Aliases: []string{"c"},
						Usage:   "Maximum requests in flight",
					},
					&cli.DurationFlag{
						Name:  "timeout",
						Usage: "Per-request timeout",
					},
					&cli.StringFlag{
						Name:  "policy",
						Usage: "Scheduling policy (gated_fan_out, worker_pool)",
					},
					&cli.StringFlag{
						Name:  "arrays",
						Usage: "Array scalar handling (index, omit)",
					},
					&cli.BoolFlag{
						Name:  "unwrap-root-array",
						Usage: "Treat each element of a top-level array as a record",
					},
					&cli.BoolFlag{
						Name:  "fsync",
						Usage: "Sync the output file after every line",
					},
					&cli.BoolFlag{
						Name:  "persist",
						Usage: "Also record the run in the sqlite store",
					},
					&cli.StringFlag{
						Name:  "db",
						Usage: "sqlite database path; implies --persist",
					},
				},
				Action: runAction,
			},
			{
				Name:  "serve",
				Usage: "Start the HTTP API",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "addr",
						Usage: "Listen address",
					},
					&cli.StringFlag{
						Name:  "db",
						Usage: "sqlite database path",
					},
					&cli.StringFlag{
						Name:  "output-dir",
						Usage: "Directory for per-run JSONL results",
					},
				},
				Action: serveAction,
			},
		},
	}

	if err := app.Run(ctx, os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}
