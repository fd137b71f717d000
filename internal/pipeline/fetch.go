package pipeline

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"go-fetch-pipeline/internal/model"

	"github.com/rs/zerolog"
)

// Response is what a Fetcher hands back: a status and a streaming body
type Response struct {
	StatusCode int
	Body       io.ReadCloser
}

// Fetcher is the transport capability. The deadline of ctx bounds the whole
// exchange, including reads from Body.
type Fetcher interface {
	Fetch(ctx context.Context, url string) (*Response, error)
}

// FetcherFunc adapts a function to the Fetcher interface
type FetcherFunc func(ctx context.Context, url string) (*Response, error)

func (f FetcherFunc) Fetch(ctx context.Context, url string) (*Response, error) { return f(ctx, url) }

// HTTPFetcher issues GET requests through one shared client. The client is
// owned by the caller and only used for connection reuse.
type HTTPFetcher struct {
	client    *http.Client
	userAgent string
}

func NewHTTPFetcher(client *http.Client, userAgent string) *HTTPFetcher {
	if client == nil {
		client = http.DefaultClient
	}
	return &HTTPFetcher{client: client, userAgent: userAgent}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, url string) (*Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if f.userAgent != "" {
		req.Header.Set("User-Agent", f.userAgent)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	return &Response{StatusCode: resp.StatusCode, Body: resp.Body}, nil
}

// TaskRunner executes fetch tasks. It is safe for concurrent use; each Run
// owns its own parser state.
type TaskRunner struct {
	fetcher Fetcher
	timeout time.Duration
	parser  ParserOptions
	log     zerolog.Logger
}

func NewTaskRunner(fetcher Fetcher, timeout time.Duration, parser ParserOptions, log zerolog.Logger) *TaskRunner {
	return &TaskRunner{
		fetcher: fetcher,
		timeout: timeout,
		parser:  parser,
		log:     log.With().Str("component", "fetch").Logger(),
	}
}

// Run fetches one endpoint and parses its body. It never returns an error:
// every failure becomes a classified Outcome for this endpoint alone.
func (r *TaskRunner) Run(ctx context.Context, task *model.FetchTask) (out model.Outcome) {
	start := time.Now()
	task.Status = model.TaskInFlight
	out.Endpoint = task.Endpoint

	defer func() {
		if p := recover(); p != nil {
			out.Records = nil
			out.Err = &model.FetchError{
				Kind:     model.FailureUnknown,
				Endpoint: task.Endpoint,
				Err:      fmt.Errorf("panic: %v", p),
			}
		}
		out.Duration = time.Since(start)
		if out.Err != nil {
			task.Status = model.TaskFailed
			r.log.Warn().
				Str("url", task.Endpoint).
				Str("kind", string(out.Err.Kind)).
				Int("status", out.Err.StatusCode).
				Err(out.Err.Err).
				Msg("❌ fetch failed")
			return
		}
		task.Status = model.TaskSucceeded
		r.log.Debug().
			Str("url", task.Endpoint).
			Int("records", len(out.Records)).
			Dur("took", out.Duration).
			Msg("✅ fetch done")
	}()

	records, err := r.fetch(ctx, task.Endpoint)
	if err != nil {
		out.Err = err
		return out
	}
	out.Records = records
	return out
}

func (r *TaskRunner) fetch(parent context.Context, endpoint string) ([]model.Record, *model.FetchError) {
	ctx, cancel := context.WithTimeout(parent, r.timeout)
	defer cancel()

	resp, err := r.fetcher.Fetch(ctx, endpoint)
	if err != nil {
		return nil, classify(ctx, parent, endpoint, err, phaseConnect)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		// drain a little so the connection can be reused
		_, _ = io.CopyN(io.Discard, resp.Body, 4<<10)
		return nil, &model.FetchError{
			Kind:       model.FailureTransport,
			Endpoint:   endpoint,
			StatusCode: resp.StatusCode,
			Err:        fmt.Errorf("unexpected status %d", resp.StatusCode),
		}
	}

	records, err := ParseRecords(resp.Body, r.parser)
	if err != nil {
		fe := classify(ctx, parent, endpoint, err, phaseBody)
		fe.StatusCode = resp.StatusCode
		return nil, fe
	}
	return records, nil
}

// classify maps an error onto the failure taxonomy. Errors from the transport
// phase that are neither timeouts nor cancellations are transport failures;
// during body parsing only reader failures are.
func classify(ctx, parent context.Context, endpoint string, err error, phase fetchPhase) *model.FetchError {
	fe := &model.FetchError{Endpoint: endpoint, Err: err}

	var netErr net.Error
	var readErr *ReadError
	switch {
	case parent.Err() != nil:
		// the run itself is being torn down, not this endpoint's fault
		fe.Kind = model.FailureUnknown
	case errors.Is(err, context.DeadlineExceeded), errors.Is(ctx.Err(), context.DeadlineExceeded):
		fe.Kind = model.FailureTimeout
	case errors.As(err, &netErr) && netErr.Timeout():
		fe.Kind = model.FailureTimeout
	case errors.Is(err, ErrMalformedStream):
		fe.Kind = model.FailureParse
	case phase == phaseConnect, errors.As(err, &readErr):
		fe.Kind = model.FailureTransport
	default:
		fe.Kind = model.FailureUnknown
	}
	return fe
}

type fetchPhase uint8

const (
	phaseConnect fetchPhase = iota
	phaseBody
)
