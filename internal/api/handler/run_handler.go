package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"go-fetch-pipeline/internal/model"
	"go-fetch-pipeline/internal/pipeline"
	"go-fetch-pipeline/internal/store"
	"go-fetch-pipeline/pkg/utils"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const runsPrefix = "/api/v1/runs/"

// Deps are the collaborators a Handler needs
type Deps struct {
	Store            *store.Store
	Outputs          *utils.OutputManager
	Fetcher          pipeline.Fetcher
	Defaults         model.PipelineConfig
	Fsync            bool
	ProgressInterval time.Duration
	Log              zerolog.Logger
}

// Handler serves the run API. Runs execute in the background under ctx.
type Handler struct {
	deps Deps
	ctx  context.Context
	log  zerolog.Logger
	wg   sync.WaitGroup
}

func New(ctx context.Context, deps Deps) *Handler {
	return &Handler{
		deps: deps,
		ctx:  ctx,
		log:  deps.Log.With().Str("component", "api").Logger(),
	}
}

// Wait blocks until every background run has finished
func (h *Handler) Wait() { h.wg.Wait() }

// CreateRun creates a new fetch-and-parse run
// @Summary Create a new run
// @Description Submit endpoints and start a fetch-and-parse run in the background
// @Tags runs
// @Accept json
// @Produce json
// @Param run body model.RunSpec true "Run configuration"
// @Success 202 {object} map[string]interface{} "Run accepted"
// @Failure 400 {object} map[string]interface{} "Invalid request payload"
// @Failure 500 {object} map[string]interface{} "Internal server error"
// @Router /runs [post]
func (h *Handler) CreateRun(w http.ResponseWriter, r *http.Request) {
	var spec model.RunSpec
	if err := json.NewDecoder(r.Body).Decode(&spec); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid JSON payload")
		return
	}

	// 1. Validate payload
	spec.Endpoints = cleanEndpoints(spec.Endpoints)
	if len(spec.Endpoints) == 0 {
		writeError(w, http.StatusBadRequest, "At least one endpoint is required")
		return
	}
	cfg, err := h.runConfig(spec)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	// 2. Generate run ID and save it
	runID := uuid.New().String()
	if err := h.deps.Store.CreateRun(runID, spec); err != nil {
		h.log.Error().Err(err).Msg("failed to save run")
		writeError(w, http.StatusInternalServerError, "Failed to save run")
		return
	}

	resultsPath, err := h.deps.Outputs.GetOutputFilePath(runID, utils.ResultsFileName)
	if err != nil {
		h.failRun(runID, err)
		writeError(w, http.StatusInternalServerError, "Failed to prepare output")
		return
	}
	jsonl, err := pipeline.CreateJSONLSink(resultsPath, h.deps.Fsync)
	if err != nil {
		h.failRun(runID, err)
		writeError(w, http.StatusInternalServerError, "Failed to prepare output")
		return
	}

	// 3. Start pipeline asynchronously
	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		h.execute(runID, spec.Endpoints, cfg, jsonl)
	}()

	writeJSON(w, http.StatusAccepted, map[string]interface{}{
		"message":     "Run created successfully!",
		"runID":       runID,
		"status":      store.StatusPending,
		"downloadURL": h.deps.Outputs.GetDownloadURL(runID),
		"createdAt":   time.Now().UTC(),
	})
}

func (h *Handler) execute(runID string, endpoints []string, cfg model.PipelineConfig, jsonl *pipeline.JSONLSink) {
	log := h.log.With().Str("run_id", runID).Logger()
	if err := h.deps.Store.UpdateRunStatus(runID, store.StatusRunning); err != nil {
		log.Error().Err(err).Msg("failed to mark run as running")
	}

	sink := pipeline.NewMultiSink(jsonl, h.deps.Store.OutcomeSink(runID))
	orch := pipeline.New(h.deps.Fetcher, sink,
		pipeline.WithRunID(runID),
		pipeline.WithLogger(h.deps.Log),
		pipeline.WithProgressInterval(h.deps.ProgressInterval),
	)

	summary, runErr := orch.Run(h.ctx, endpoints, cfg)
	if err := sink.Close(); err != nil && runErr == nil {
		runErr = err
	}

	status := store.StatusCompleted
	if runErr != nil {
		status = store.StatusFailed
		if err := h.deps.Store.SaveRunError(runID, runErr); err != nil {
			log.Error().Err(err).Msg("failed to save run error")
		}
	}
	if err := h.deps.Store.FinishRun(runID, status, summary); err != nil {
		log.Error().Err(err).Msg("failed to save run summary")
	}
}

// failRun marks a run that never started as failed
func (h *Handler) failRun(runID string, cause error) {
	log := h.log.With().Str("run_id", runID).Logger()
	log.Error().Err(cause).Msg("failed to start run")
	if err := h.deps.Store.SaveRunError(runID, cause); err != nil {
		log.Error().Err(err).Msg("failed to save run error")
	}
	if err := h.deps.Store.FinishRun(runID, store.StatusFailed, model.Summary{RunID: runID}); err != nil {
		log.Error().Err(err).Msg("failed to mark run as failed")
	}
}

// runConfig overlays the request's settings on the server defaults
func (h *Handler) runConfig(spec model.RunSpec) (model.PipelineConfig, error) {
	cfg := h.deps.Defaults
	cfg.ConcurrencyLimit = utils.FirstPositive(spec.ConcurrencyLimit, cfg.ConcurrencyLimit)
	cfg.PerRequestTimeout = utils.ParseDuration(spec.Timeout, cfg.PerRequestTimeout)
	if spec.Policy != "" {
		policy, err := model.ParsePolicy(spec.Policy)
		if err != nil {
			return cfg, err
		}
		cfg.SchedulingPolicy = policy
	}
	if spec.ArrayPolicy != "" {
		arrays, err := model.ParseArrayPolicy(spec.ArrayPolicy)
		if err != nil {
			return cfg, err
		}
		cfg.ArrayPolicy = arrays
	}
	if spec.UnwrapRootArray {
		cfg.UnwrapRootArray = true
	}
	return cfg, cfg.Validate()
}

// ListRuns retrieves all runs
// @Summary List all runs
// @Description Get a list of all pipeline runs with their current status
// @Tags runs
// @Produce json
// @Success 200 {array} store.Run "List of runs"
// @Failure 500 {object} map[string]interface{} "Internal server error"
// @Router /runs [get]
func (h *Handler) ListRuns(w http.ResponseWriter, r *http.Request) {
	runs, err := h.deps.Store.ListRuns()
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to fetch runs")
		return
	}
	writeJSON(w, http.StatusOK, runs)
}

// GetRun retrieves a specific run
// @Summary Get run
// @Tags runs
// @Produce json
// @Param id path string true "Run ID"
// @Success 200 {object} store.Run "Run details"
// @Failure 404 {object} map[string]interface{} "Run not found"
// @Router /runs/{id} [get]
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	run, ok := h.lookupRun(w, r)
	if !ok {
		return
	}
	errs, err := h.deps.Store.RunErrors(run.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to fetch run errors")
		return
	}
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"run":         run,
		"errors":      errs,
		"downloadURL": h.deps.Outputs.GetDownloadURL(run.ID),
	})
}

// GetRunOutcomes lists the outcomes of a run
// @Summary List run outcomes
// @Tags runs
// @Produce json
// @Param id path string true "Run ID"
// @Success 200 {array} store.StoredOutcome "Outcomes in delivery order"
// @Failure 404 {object} map[string]interface{} "Run not found"
// @Router /runs/{id}/outcomes [get]
func (h *Handler) GetRunOutcomes(w http.ResponseWriter, r *http.Request) {
	run, ok := h.lookupRun(w, r)
	if !ok {
		return
	}
	outcomes, err := h.deps.Store.ListOutcomes(run.ID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to fetch outcomes")
		return
	}
	if r.URL.Query().Get("failed") == "true" {
		failed := outcomes[:0]
		for _, o := range outcomes {
			if !o.Succeeded {
				failed = append(failed, o)
			}
		}
		outcomes = failed
	}
	writeJSON(w, http.StatusOK, outcomes)
}

// DownloadResults streams a run's JSONL file
// @Summary Download run results as JSONL
// @Tags runs
// @Produce application/x-ndjson
// @Param id path string true "Run ID"
// @Success 200 {file} file "JSONL file"
// @Failure 404 {object} map[string]interface{} "Results not found"
// @Router /runs/{id}/download [get]
func (h *Handler) DownloadResults(w http.ResponseWriter, r *http.Request) {
	run, ok := h.lookupRun(w, r)
	if !ok {
		return
	}
	path := h.deps.Outputs.ResultsPath(run.ID)
	if _, err := os.Stat(path); err != nil {
		writeError(w, http.StatusNotFound, "Results not found")
		return
	}
	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Content-Disposition", "attachment; filename="+run.ID+".jsonl")
	http.ServeFile(w, r, path)
}

func (h *Handler) lookupRun(w http.ResponseWriter, r *http.Request) (store.Run, bool) {
	runID := runIDFromPath(r.URL.Path)
	if runID == "" {
		writeError(w, http.StatusBadRequest, "Run ID is required")
		return store.Run{}, false
	}
	run, err := h.deps.Store.GetRun(runID)
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, http.StatusNotFound, "Run not found")
		return store.Run{}, false
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to fetch run")
		return store.Run{}, false
	}
	return run, true
}

// runIDFromPath extracts {id} from /api/v1/runs/{id}[/...]
func runIDFromPath(path string) string {
	if !strings.HasPrefix(path, runsPrefix) {
		return ""
	}
	rest := path[len(runsPrefix):]
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		rest = rest[:i]
	}
	return rest
}

func cleanEndpoints(in []string) []string {
	out := make([]string, 0, len(in))
	for _, ep := range in {
		if ep = strings.TrimSpace(ep); ep != "" {
			out = append(out, ep)
		}
	}
	return out
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]interface{}{"error": msg})
}
