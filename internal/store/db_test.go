package store

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"go-fetch-pipeline/internal/model"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func TestRunLifecycle(t *testing.T) {
	s := openTestStore(t)
	spec := model.RunSpec{Endpoints: []string{"http://a", "http://b"}, ConcurrencyLimit: 2, Policy: "worker_pool"}

	require.NoError(t, s.CreateRun("run-1", spec))
	run, err := s.GetRun("run-1")
	require.NoError(t, err)
	assert.Equal(t, StatusPending, run.Status)
	assert.Equal(t, spec, run.Spec)
	assert.Nil(t, run.Summary)

	require.NoError(t, s.UpdateRunStatus("run-1", StatusRunning))
	summary := model.Summary{
		RunID:          "run-1",
		Endpoints:      2,
		Succeeded:      1,
		Failed:         1,
		Records:        4,
		FailuresByKind: map[model.FailureKind]int{model.FailureTimeout: 1},
		Duration:       time.Second,
	}
	require.NoError(t, s.FinishRun("run-1", StatusCompleted, summary))

	run, err = s.GetRun("run-1")
	require.NoError(t, err)
	assert.Equal(t, StatusCompleted, run.Status)
	require.NotNil(t, run.Summary)
	assert.Equal(t, 4, run.Summary.Records)
	assert.Equal(t, 1, run.Summary.FailuresByKind[model.FailureTimeout])

	runs, err := s.ListRuns()
	require.NoError(t, err)
	require.Len(t, runs, 1)
	assert.Equal(t, "run-1", runs[0].ID)
}

func TestGetRunNotFound(t *testing.T) {
	s := openTestStore(t)
	_, err := s.GetRun("nope")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.ErrorIs(t, s.UpdateRunStatus("nope", StatusRunning), ErrNotFound)
}

func TestRunErrors(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.CreateRun("run-1", model.RunSpec{}))
	require.NoError(t, s.SaveRunError("run-1", nil))
	require.NoError(t, s.SaveRunError("run-1", errors.New("disk full")))

	msgs, err := s.RunErrors("run-1")
	require.NoError(t, err)
	assert.Equal(t, []string{"disk full"}, msgs)
}

func TestOutcomeSinkPersistsBothKinds(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.CreateRun("run-1", model.RunSpec{}))
	sink := s.OutcomeSink("run-1")

	var rec model.Record
	rec.Set("id", model.Number("1"))
	rec.Set("user.name", model.String("ann"))

	ctx := context.Background()
	require.NoError(t, sink.Append(ctx, model.Outcome{Endpoint: "http://ok", Records: []model.Record{rec}, Duration: 1500 * time.Millisecond}))
	require.NoError(t, sink.Append(ctx, model.Outcome{
		Endpoint: "http://bad",
		Err:      &model.FetchError{Kind: model.FailureTransport, Endpoint: "http://bad", StatusCode: 503, Err: errors.New("unexpected status 503")},
	}))
	require.NoError(t, sink.Close())

	outcomes, err := s.ListOutcomes("run-1")
	require.NoError(t, err)
	require.Len(t, outcomes, 2)

	ok := outcomes[0]
	assert.Equal(t, "http://ok", ok.URL)
	assert.True(t, ok.Succeeded)
	assert.Equal(t, 1, ok.RecordCount)
	assert.Equal(t, int64(1500), ok.DurationMS)
	require.Len(t, ok.Content, 1)
	assert.Equal(t, rec.Map(), ok.Content[0].Map())

	bad := outcomes[1]
	assert.False(t, bad.Succeeded)
	assert.Equal(t, model.FailureTransport, bad.FailureKind)
	assert.Equal(t, 503, bad.StatusCode)
	assert.Contains(t, bad.Error, "unexpected status 503")
	assert.Empty(t, bad.Content)
}

func TestSaveOutcomeKeepsHTMLVerbatim(t *testing.T) {
	s := openTestStore(t)
	require.NoError(t, s.CreateRun("run-1", model.RunSpec{}))

	var rec model.Record
	rec.Set("html", model.String("<b>&</b>"))
	require.NoError(t, s.SaveOutcome(context.Background(), "run-1", model.Outcome{Endpoint: "http://ok", Records: []model.Record{rec}}))

	var raw string
	require.NoError(t, s.db.QueryRow(`SELECT content FROM outcomes WHERE run_id = ?`, "run-1").Scan(&raw))
	assert.Equal(t, `[{"html":"<b>&</b>"}]`, raw)
}
