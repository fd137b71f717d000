package pipeline

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"go-fetch-pipeline/internal/model"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// Orchestrator drives endpoints through the governor, the fetch task and the sink
type Orchestrator struct {
	fetcher          Fetcher
	sink             Sink
	log              zerolog.Logger
	progressInterval time.Duration
	runID            string
	onStart          func(endpoint string)
}

// Option configures an Orchestrator
type Option func(*Orchestrator)

// WithLogger sets the logger used for run and task logs
func WithLogger(log zerolog.Logger) Option {
	return func(o *Orchestrator) { o.log = log }
}

// WithProgressInterval sets how often progress is logged; 0 disables it
func WithProgressInterval(d time.Duration) Option {
	return func(o *Orchestrator) { o.progressInterval = d }
}

// WithRunID fixes the run ID instead of generating one
func WithRunID(id string) Option {
	return func(o *Orchestrator) { o.runID = id }
}

// WithTaskHook registers a callback invoked as each task starts executing
func WithTaskHook(fn func(endpoint string)) Option {
	return func(o *Orchestrator) { o.onStart = fn }
}

// New builds an orchestrator. A nil fetcher falls back to an HTTPFetcher over
// http.DefaultClient.
func New(fetcher Fetcher, sink Sink, opts ...Option) *Orchestrator {
	if fetcher == nil {
		fetcher = NewHTTPFetcher(http.DefaultClient, "")
	}
	o := &Orchestrator{
		fetcher:          fetcher,
		sink:             sink,
		log:              zerolog.Nop(),
		progressInterval: 5 * time.Second,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Run fetches every endpoint under cfg and returns once each outcome has been
// appended to the sink. Task failures are counted in the summary; only a sink
// failure makes Run return an error, together with the partial summary.
func (o *Orchestrator) Run(ctx context.Context, endpoints []string, cfg model.PipelineConfig) (summary model.Summary, err error) {
	if err := cfg.Validate(); err != nil {
		return model.Summary{}, err
	}
	governor, err := NewGovernor(cfg.SchedulingPolicy, cfg.ConcurrencyLimit)
	if err != nil {
		return model.Summary{}, err
	}

	runID := o.runID
	if runID == "" {
		runID = uuid.New().String()
	}
	log := o.log.With().Str("run_id", runID).Logger()

	tracker := NewTracker(runID, endpoints, o.progressInterval, log)
	defer func() {
		tracker.Stop()
		summary = tracker.Summary()
		ev := log.Info()
		if err != nil {
			ev = log.Error().Err(err)
		}
		ev.Int("succeeded", summary.Succeeded).
			Int("failed", summary.Failed).
			Int("records", summary.Records).
			Int("max_in_flight", summary.MaxInFlight).
			Dur("duration", summary.Duration).
			Msg("🏁 pipeline finished")
	}()

	log.Info().
		Int("endpoints", len(endpoints)).
		Str("policy", string(governor.Policy())).
		Int("limit", governor.Limit()).
		Dur("timeout", cfg.PerRequestTimeout).
		Msg("🚀 starting pipeline")

	if len(endpoints) == 0 {
		return model.Summary{}, nil
	}

	runner := NewTaskRunner(o.fetcher, cfg.PerRequestTimeout, ParserOptions{
		Arrays:          cfg.ArrayPolicy,
		UnwrapRootArray: cfg.UnwrapRootArray,
	}, log)

	// outcomes are delivered even while ctx is being cancelled
	sinkCtx := context.WithoutCancel(ctx)

	work := func(ctx context.Context, endpoint string) error {
		task := &model.FetchTask{Endpoint: endpoint, Status: model.TaskPending}
		tracker.TaskStarted(endpoint)
		if o.onStart != nil {
			o.onStart(endpoint)
		}
		outcome := runner.Run(ctx, task)
		tracker.TaskFinished(outcome)

		if err := o.sink.Append(sinkCtx, outcome); err != nil {
			return fmt.Errorf("sink append for %s: %w", endpoint, err)
		}
		return nil
	}

	if err := governor.Run(ctx, endpoints, work); err != nil {
		return model.Summary{}, fmt.Errorf("pipeline run %s: %w", runID, err)
	}
	return model.Summary{}, nil
}
