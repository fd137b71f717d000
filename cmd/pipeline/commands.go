package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"go-fetch-pipeline/internal/app"
	"go-fetch-pipeline/internal/config"
	"go-fetch-pipeline/internal/logger"
	"go-fetch-pipeline/internal/model"
	"go-fetch-pipeline/internal/pipeline"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v3"
)

// loadConfig resolves file and env config, then applies explicitly set flags
func loadConfig(cmd *cli.Command) (*config.Config, zerolog.Logger, error) {
	opts := []config.Option{config.WithEnvFile(cmd.String("env"))}
	if path := cmd.String("config"); path != "" {
		opts = append(opts, config.WithConfigFile(path))
	}
	cfg, err := config.Load(opts...)
	if err != nil {
		return nil, zerolog.Nop(), err
	}

	if cmd.IsSet("log-level") {
		cfg.Log.Level = cmd.String("log-level")
	}
	if cmd.IsSet("log-format") {
		cfg.Log.Format = cmd.String("log-format")
	}
	if cmd.IsSet("concurrency") {
		cfg.Pipeline.ConcurrencyLimit = int(cmd.Int("concurrency"))
	}
	if cmd.IsSet("timeout") {
		cfg.Pipeline.RequestTimeout = cmd.Duration("timeout")
	}
	if cmd.IsSet("policy") {
		cfg.Pipeline.Policy = cmd.String("policy")
	}
	if cmd.IsSet("arrays") {
		cfg.Pipeline.Arrays = cmd.String("arrays")
	}
	if cmd.IsSet("unwrap-root-array") {
		cfg.Pipeline.UnwrapRootArray = cmd.Bool("unwrap-root-array")
	}
	if cmd.IsSet("fsync") {
		cfg.Output.Fsync = cmd.Bool("fsync")
	}
	if cmd.IsSet("db") {
		cfg.Store.Path = cmd.String("db")
	}
	if cmd.IsSet("addr") {
		cfg.Server.Addr = cmd.String("addr")
	}
	if cmd.IsSet("output-dir") {
		cfg.Output.Dir = cmd.String("output-dir")
	}

	if err := cfg.Validate(); err != nil {
		return nil, zerolog.Nop(), err
	}
	return cfg, logger.New(cfg.Log), nil
}

func runAction(ctx context.Context, cmd *cli.Command) error {
	cfg, log, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	endpoints, err := readEndpoints(cmd)
	if err != nil {
		return err
	}

	summary, err := app.Run(ctx, cfg, app.RunOptions{
		Endpoints: endpoints,
		Output:    cmd.String("output"),
		Persist:   cmd.Bool("persist") || cmd.IsSet("db"),
	}, log)
	printSummary(summary)
	return err
}

func serveAction(ctx context.Context, cmd *cli.Command) error {
	cfg, log, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	return app.Serve(ctx, cfg, log)
}

func readEndpoints(cmd *cli.Command) ([]string, error) {
	endpoints := cmd.Args().Slice()
	switch input := cmd.String("input"); input {
	case "":
	case "-":
		fromStdin, err := pipeline.ReadEndpoints(os.Stdin)
		if err != nil {
			return nil, err
		}
		endpoints = append(endpoints, fromStdin...)
	default:
		fromFile, err := pipeline.LoadEndpoints(input)
		if err != nil {
			return nil, err
		}
		endpoints = append(endpoints, fromFile...)
	}
	return endpoints, nil
}

// printSummary writes the run totals to stderr so stdout stays pure JSONL
func printSummary(s model.Summary) {
	fmt.Fprintf(os.Stderr, "\n✅ Run %s finished in %s\n", s.RunID, s.Duration.Round(time.Millisecond))
	fmt.Fprintf(os.Stderr, "   endpoints: %d  succeeded: %d  failed: %d  records: %d  max in flight: %d\n",
		s.Endpoints, s.Succeeded, s.Failed, s.Records, s.MaxInFlight)
	for _, kind := range model.FailureKinds {
		if n := s.FailuresByKind[kind]; n > 0 {
			fmt.Fprintf(os.Stderr, "   %s failures: %d\n", kind, n)
		}
	}
}
