package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go-fetch-pipeline/internal/model"
	"go-fetch-pipeline/internal/pipeline"
	"go-fetch-pipeline/internal/store"
	"go-fetch-pipeline/pkg/utils"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeFetcher serves bodies keyed by URL; unknown URLs get a 404
func fakeFetcher(bodies map[string]string) pipeline.Fetcher {
	return pipeline.FetcherFunc(func(ctx context.Context, url string) (*pipeline.Response, error) {
		body, ok := bodies[url]
		if !ok {
			return &pipeline.Response{StatusCode: http.StatusNotFound, Body: io.NopCloser(strings.NewReader(""))}, nil
		}
		return &pipeline.Response{StatusCode: http.StatusOK, Body: io.NopCloser(strings.NewReader(body))}, nil
	})
}

func newTestHandler(t *testing.T, fetcher pipeline.Fetcher) (*Handler, *store.Store) {
	t.Helper()
	dir := t.TempDir()
	db, err := store.Open(filepath.Join(dir, "api.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })

	h := New(context.Background(), Deps{
		Store:    db,
		Outputs:  utils.NewOutputManager(filepath.Join(dir, "output")),
		Fetcher:  fetcher,
		Defaults: model.DefaultPipelineConfig(),
		Log:      zerolog.Nop(),
	})
	return h, db
}

func createRun(t *testing.T, h *Handler, body string) (int, map[string]any) {
	t.Helper()
	rec := httptest.NewRecorder()
	h.CreateRun(rec, httptest.NewRequest(http.MethodPost, "/api/v1/runs", strings.NewReader(body)))
	var resp map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	return rec.Code, resp
}

func TestCreateRunCompletesInBackground(t *testing.T) {
	h, db := newTestHandler(t, fakeFetcher(map[string]string{
		"http://a": `{"id":1}{"id":2}`,
		"http://b": `{"name":"b","tags":["x"]}`,
	}))

	code, resp := createRun(t, h, `{"endpoints":["http://a"," http://b ","","http://missing"],"concurrency_limit":2,"policy":"worker_pool"}`)
	require.Equal(t, http.StatusAccepted, code)
	runID, _ := resp["runID"].(string)
	require.NotEmpty(t, runID)
	assert.Equal(t, "/api/v1/runs/"+runID+"/download", resp["downloadURL"])

	h.Wait()

	run, err := db.GetRun(runID)
	require.NoError(t, err)
	assert.Equal(t, store.StatusCompleted, run.Status)
	assert.Equal(t, []string{"http://a", "http://b", "http://missing"}, run.Spec.Endpoints)
	require.NotNil(t, run.Summary)
	assert.Equal(t, 2, run.Summary.Succeeded)
	assert.Equal(t, 1, run.Summary.Failed)
	assert.Equal(t, 3, run.Summary.Records)

	// download
	rec := httptest.NewRecorder()
	h.DownloadResults(rec, httptest.NewRequest(http.MethodGet, "/api/v1/runs/"+runID+"/download", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/x-ndjson", rec.Header().Get("Content-Type"))
	lines := bytes.Split(bytes.TrimSpace(rec.Body.Bytes()), []byte("\n"))
	assert.Len(t, lines, 2)

	// outcomes, including the failed one
	rec = httptest.NewRecorder()
	h.GetRunOutcomes(rec, httptest.NewRequest(http.MethodGet, "/api/v1/runs/"+runID+"/outcomes?failed=true", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var failed []store.StoredOutcome
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &failed))
	require.Len(t, failed, 1)
	assert.Equal(t, "http://missing", failed[0].URL)
	assert.Equal(t, model.FailureTransport, failed[0].FailureKind)
}

func TestCreateRunValidation(t *testing.T) {
	h, _ := newTestHandler(t, fakeFetcher(nil))
	tests := map[string]string{
		"bad json":        `{"endpoints":`,
		"no endpoints":    `{"endpoints":[]}`,
		"blank endpoints": `{"endpoints":["  "]}`,
		"bad policy":      `{"endpoints":["http://a"],"policy":"lifo"}`,
		"bad arrays":      `{"endpoints":["http://a"],"array_policy":"join"}`,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			code, resp := createRun(t, h, body)
			assert.Equal(t, http.StatusBadRequest, code)
			assert.NotEmpty(t, resp["error"])
		})
	}
}

func TestCreateRunOutputFailureMarksRunFailed(t *testing.T) {
	h, db := newTestHandler(t, fakeFetcher(nil))
	// a regular file where the output directory should be
	blocker := filepath.Join(t.TempDir(), "not-a-dir")
	require.NoError(t, os.WriteFile(blocker, nil, 0644))
	h.deps.Outputs = utils.NewOutputManager(blocker)

	code, _ := createRun(t, h, `{"endpoints":["http://a"]}`)
	assert.Equal(t, http.StatusInternalServerError, code)

	runs, err := db.ListRuns()
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, store.StatusFailed, runs[0].Status)

	errs, err := db.RunErrors(runs[0].ID)
	require.NoError(t, err)
	assert.Len(t, errs, 1)
}

func TestRunConfigOverlay(t *testing.T) {
	h, _ := newTestHandler(t, fakeFetcher(nil))
	cfg, err := h.runConfig(model.RunSpec{
		ConcurrencyLimit: 9,
		Timeout:          "3s",
		Policy:           "pool",
		ArrayPolicy:      "omit",
		UnwrapRootArray:  true,
	})
	require.NoError(t, err)
	assert.Equal(t, model.PipelineConfig{
		ConcurrencyLimit:  9,
		PerRequestTimeout: 3 * time.Second,
		SchedulingPolicy:  model.WorkerPool,
		ArrayPolicy:       model.ArrayOmit,
		UnwrapRootArray:   true,
	}, cfg)

	cfg, err = h.runConfig(model.RunSpec{Timeout: "nonsense"})
	require.NoError(t, err)
	assert.Equal(t, model.DefaultPipelineConfig(), cfg)
}

func TestGetRun(t *testing.T) {
	h, db := newTestHandler(t, fakeFetcher(nil))
	require.NoError(t, db.CreateRun("run-1", model.RunSpec{Endpoints: []string{"http://a"}}))

	rec := httptest.NewRecorder()
	h.GetRun(rec, httptest.NewRequest(http.MethodGet, "/api/v1/runs/run-1", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var resp struct {
		Run store.Run `json:"run"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "run-1", resp.Run.ID)
	assert.Equal(t, store.StatusPending, resp.Run.Status)

	rec = httptest.NewRecorder()
	h.GetRun(rec, httptest.NewRequest(http.MethodGet, "/api/v1/runs/missing", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestListRuns(t *testing.T) {
	h, db := newTestHandler(t, fakeFetcher(nil))

	rec := httptest.NewRecorder()
	h.ListRuns(rec, httptest.NewRequest(http.MethodGet, "/api/v1/runs", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `[]`, rec.Body.String())

	require.NoError(t, db.CreateRun("run-1", model.RunSpec{}))
	rec = httptest.NewRecorder()
	h.ListRuns(rec, httptest.NewRequest(http.MethodGet, "/api/v1/runs", nil))
	var runs []store.Run
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &runs))
	assert.Len(t, runs, 1)
}

func TestDownloadBeforeResultsExist(t *testing.T) {
	h, db := newTestHandler(t, fakeFetcher(nil))
	require.NoError(t, db.CreateRun("run-1", model.RunSpec{}))

	rec := httptest.NewRecorder()
	h.DownloadResults(rec, httptest.NewRequest(http.MethodGet, "/api/v1/runs/run-1/download", nil))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestRunIDFromPath(t *testing.T) {
	assert.Equal(t, "abc", runIDFromPath("/api/v1/runs/abc"))
	assert.Equal(t, "abc", runIDFromPath("/api/v1/runs/abc/download"))
	assert.Equal(t, "", runIDFromPath("/api/v1/runs/"))
	assert.Equal(t, "", runIDFromPath("/other/abc"))
}
