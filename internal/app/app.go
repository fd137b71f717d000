// Package app wires configuration into the pipeline, the store and the HTTP API.
package app

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"

	"go-fetch-pipeline/internal/api"
	"go-fetch-pipeline/internal/api/handler"
	"go-fetch-pipeline/internal/config"
	"go-fetch-pipeline/internal/model"
	"go-fetch-pipeline/internal/pipeline"
	"go-fetch-pipeline/internal/store"
	"go-fetch-pipeline/pkg/router"
	"go-fetch-pipeline/pkg/utils"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// NewHTTPClient builds the shared client. Timeouts are applied per request by
// the task runner, so the client itself has none.
func NewHTTPClient(cfg config.HTTPConfig) *http.Client {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	transport.MaxIdleConnsPerHost = cfg.MaxIdleConnsPerHost
	transport.IdleConnTimeout = cfg.IdleConnTimeout
	return &http.Client{Transport: transport}
}

// NewFetcher builds the HTTP fetcher described by cfg
func NewFetcher(cfg config.HTTPConfig) pipeline.Fetcher {
	return pipeline.NewHTTPFetcher(NewHTTPClient(cfg), cfg.UserAgent)
}

// Serve runs the HTTP API until ctx is cancelled and waits for background
// runs to finish before returning.
func Serve(ctx context.Context, cfg *config.Config, log zerolog.Logger) error {
	defaults, err := cfg.PipelineConfig()
	if err != nil {
		return err
	}

	db, err := store.Open(cfg.Store.Path)
	if err != nil {
		return fmt.Errorf("failed to open store: %w", err)
	}
	defer db.Close()

	outputs := utils.NewOutputManager(cfg.Output.Dir)
	if err := outputs.EnsureOutputDirExists(); err != nil {
		return fmt.Errorf("failed to create output dir: %w", err)
	}

	h := handler.New(ctx, handler.Deps{
		Store:            db,
		Outputs:          outputs,
		Fetcher:          NewFetcher(cfg.HTTP),
		Defaults:         defaults,
		Fsync:            cfg.Output.Fsync,
		ProgressInterval: cfg.Pipeline.ProgressInterval,
		Log:              log,
	})

	r := router.New(log)
	api.RegisterRoutes(r, h)

	err = r.Start(ctx, cfg.Server.Addr)
	h.Wait()
	return err
}

// RunOptions describe a single command-line run
type RunOptions struct {
	Endpoints []string
	// Output is the JSONL destination; empty or "-" writes to Stdout
	Output string
	Stdout io.Writer
	// Persist also records the run in the sqlite store at cfg.Store.Path
	Persist bool
}

// Run executes one pipeline run with cfg and returns its summary
func Run(ctx context.Context, cfg *config.Config, opts RunOptions, log zerolog.Logger) (model.Summary, error) {
	pc, err := cfg.PipelineConfig()
	if err != nil {
		return model.Summary{}, err
	}

	var jsonl *pipeline.JSONLSink
	if opts.Output == "" || opts.Output == "-" {
		out := opts.Stdout
		if out == nil {
			out = os.Stdout
		}
		jsonl = pipeline.NewJSONLSink(out)
	} else {
		jsonl, err = pipeline.CreateJSONLSink(opts.Output, cfg.Output.Fsync)
		if err != nil {
			return model.Summary{}, err
		}
	}

	runID := uuid.New().String()
	sinks := []pipeline.Sink{jsonl}
	var db *store.Store
	if opts.Persist && cfg.Store.Path != "" {
		db, err = store.Open(cfg.Store.Path)
		if err != nil {
			jsonl.Close()
			return model.Summary{}, fmt.Errorf("failed to open store: %w", err)
		}
		defer db.Close()
		spec := model.RunSpec{
			Endpoints:        opts.Endpoints,
			ConcurrencyLimit: pc.ConcurrencyLimit,
			Timeout:          pc.PerRequestTimeout.String(),
			Policy:           string(pc.SchedulingPolicy),
			ArrayPolicy:      string(pc.ArrayPolicy),
			UnwrapRootArray:  pc.UnwrapRootArray,
		}
		if err := db.CreateRun(runID, spec); err != nil {
			jsonl.Close()
			return model.Summary{}, fmt.Errorf("failed to save run: %w", err)
		}
		if err := db.UpdateRunStatus(runID, store.StatusRunning); err != nil {
			log.Warn().Err(err).Str("run_id", runID).Msg("failed to mark run as running")
		}
		sinks = append(sinks, db.OutcomeSink(runID))
	}

	sink := pipeline.NewMultiSink(sinks...)
	orch := pipeline.New(NewFetcher(cfg.HTTP), sink,
		pipeline.WithRunID(runID),
		pipeline.WithLogger(log),
		pipeline.WithProgressInterval(cfg.Pipeline.ProgressInterval),
	)
	summary, runErr := orch.Run(ctx, opts.Endpoints, pc)
	if err := sink.Close(); err != nil && runErr == nil {
		runErr = fmt.Errorf("failed to close output: %w", err)
	}

	if db != nil {
		status := store.StatusCompleted
		if runErr != nil {
			status = store.StatusFailed
			if err := db.SaveRunError(runID, runErr); err != nil {
				log.Warn().Err(err).Msg("failed to save run error")
			}
		}
		if err := db.FinishRun(runID, status, summary); err != nil {
			log.Warn().Err(err).Msg("failed to save run summary")
		}
	}
	return summary, runErr
}
