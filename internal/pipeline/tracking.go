package pipeline

import (
	"context"
	"sync"
	"time"

	"go-fetch-pipeline/internal/model"

	"github.com/rs/zerolog"
)

// EndpointMetrics is what the tracker remembers about one endpoint
type EndpointMetrics struct {
	URL        string            `json:"url"`
	Status     model.TaskStatus  `json:"status"`
	Records    int               `json:"records"`
	Kind       model.FailureKind `json:"kind,omitempty"`
	StatusCode int               `json:"status_code,omitempty"`
	Duration   time.Duration     `json:"duration"`
}

// Tracker counts in-flight tasks and outcomes for one run and logs progress
// from a background goroutine until Stop is called.
type Tracker struct {
	runID string
	total int
	log   zerolog.Logger

	mu          sync.Mutex
	startTime   time.Time
	inFlight    int
	maxInFlight int
	succeeded   int
	failed      int
	records     int
	byKind      map[model.FailureKind]int
	endpoints   map[string]*EndpointMetrics

	cancel context.CancelFunc
	done   chan struct{}
}

// NewTracker starts tracking a run. interval <= 0 disables progress logging.
func NewTracker(runID string, endpoints []string, interval time.Duration, log zerolog.Logger) *Tracker {
	ctx, cancel := context.WithCancel(context.Background())
	t := &Tracker{
		runID:     runID,
		total:     len(endpoints),
		log:       log.With().Str("component", "tracker").Str("run_id", runID).Logger(),
		startTime: time.Now(),
		byKind:    make(map[model.FailureKind]int),
		endpoints: make(map[string]*EndpointMetrics, len(endpoints)),
		cancel:    cancel,
		done:      make(chan struct{}),
	}
	for _, ep := range endpoints {
		t.endpoints[ep] = &EndpointMetrics{URL: ep, Status: model.TaskPending}
	}

	go t.startBackgroundTracking(ctx, interval)
	return t
}

func (t *Tracker) startBackgroundTracking(ctx context.Context, interval time.Duration) {
	defer close(t.done)
	if interval <= 0 {
		<-ctx.Done()
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			t.logProgress()
		}
	}
}

func (t *Tracker) logProgress() {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.log.Info().
		Int("done", t.succeeded+t.failed).
		Int("total", t.total).
		Int("in_flight", t.inFlight).
		Int("records", t.records).
		Msg("📊 progress")
}

// TaskStarted marks a task as executing
func (t *Tracker) TaskStarted(endpoint string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.inFlight++
	if t.inFlight > t.maxInFlight {
		t.maxInFlight = t.inFlight
	}
	t.endpoint(endpoint).Status = model.TaskInFlight
}

// TaskFinished records a task's outcome
func (t *Tracker) TaskFinished(outcome model.Outcome) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.inFlight--

	em := t.endpoint(outcome.Endpoint)
	em.Duration = outcome.Duration
	if outcome.Succeeded() {
		t.succeeded++
		t.records += len(outcome.Records)
		em.Status = model.TaskSucceeded
		em.Records = len(outcome.Records)
		return
	}
	t.failed++
	t.byKind[outcome.Err.Kind]++
	em.Status = model.TaskFailed
	em.Kind = outcome.Err.Kind
	em.StatusCode = outcome.Err.StatusCode
}

func (t *Tracker) endpoint(url string) *EndpointMetrics {
	em, ok := t.endpoints[url]
	if !ok {
		em = &EndpointMetrics{URL: url, Status: model.TaskPending}
		t.endpoints[url] = em
	}
	return em
}

// InFlight is the number of tasks executing right now
func (t *Tracker) InFlight() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.inFlight
}

// Endpoint returns a copy of one endpoint's metrics
func (t *Tracker) Endpoint(url string) (EndpointMetrics, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	em, ok := t.endpoints[url]
	if !ok {
		return EndpointMetrics{}, false
	}
	return *em, true
}

// Summary snapshots the run counters
func (t *Tracker) Summary() model.Summary {
	t.mu.Lock()
	defer t.mu.Unlock()
	byKind := make(map[model.FailureKind]int, len(t.byKind))
	for k, v := range t.byKind {
		byKind[k] = v
	}
	return model.Summary{
		RunID:          t.runID,
		Endpoints:      t.total,
		Succeeded:      t.succeeded,
		Failed:         t.failed,
		Records:        t.records,
		FailuresByKind: byKind,
		MaxInFlight:    t.maxInFlight,
		StartedAt:      t.startTime,
		Duration:       time.Since(t.startTime),
	}
}

// Stop ends background logging and waits for it to exit
func (t *Tracker) Stop() {
	t.cancel()
	<-t.done
}
