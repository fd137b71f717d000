package pipeline

import (
	"context"
	"fmt"

	"go-fetch-pipeline/internal/model"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"
)

// WorkFunc processes one endpoint. A non-nil error is fatal to the run.
type WorkFunc func(ctx context.Context, endpoint string) error

// Governor dispatches every endpoint exactly once with at most Limit() calls
// to work running at the same time. After the first fatal error no new work
// starts; work already running finishes before Run returns.
type Governor interface {
	Run(ctx context.Context, endpoints []string, work WorkFunc) error
	Limit() int
	Policy() model.SchedulingPolicy
}

// NewGovernor builds the governor for a scheduling policy
func NewGovernor(policy model.SchedulingPolicy, limit int) (Governor, error) {
	if limit <= 0 {
		return nil, fmt.Errorf("%w: concurrency limit must be positive, got %d", model.ErrInvalidConfig, limit)
	}
	policy, err := model.ParsePolicy(string(policy))
	if err != nil {
		return nil, err
	}
	if policy == model.WorkerPool {
		return &workerPool{workers: limit}, nil
	}
	return &gatedFanOut{limit: limit}, nil
}

// gatedFanOut starts one goroutine per endpoint; a weighted semaphore admits
// limit of them into the work body at a time.
type gatedFanOut struct {
	limit int
}

func (g *gatedFanOut) Limit() int                     { return g.limit }
func (g *gatedFanOut) Policy() model.SchedulingPolicy { return model.GatedFanOut }

func (g *gatedFanOut) Run(ctx context.Context, endpoints []string, work WorkFunc) error {
	gate := semaphore.NewWeighted(int64(g.limit))

	// stop is only cancelled by a fatal error. Cancelling ctx must not drop
	// endpoints: their tasks still run and fail fast.
	eg, stop := errgroup.WithContext(context.WithoutCancel(ctx))
	for _, ep := range endpoints {
		eg.Go(func() error {
			if err := gate.Acquire(stop, 1); err != nil {
				return nil
			}
			defer gate.Release(1)
			if stop.Err() != nil {
				return nil
			}
			return work(ctx, ep)
		})
	}
	return eg.Wait()
}

// workerPool runs a fixed set of workers draining a shared FIFO queue.
// Closing the queue is the shutdown signal: a worker exits only once the
// queue is closed and empty.
type workerPool struct {
	workers int
}

func (p *workerPool) Limit() int                     { return p.workers }
func (p *workerPool) Policy() model.SchedulingPolicy { return model.WorkerPool }

func (p *workerPool) Run(ctx context.Context, endpoints []string, work WorkFunc) error {
	queue := make(chan string, p.workers)

	eg, stop := errgroup.WithContext(context.WithoutCancel(ctx))
	for range p.workers {
		eg.Go(func() error {
			for ep := range queue {
				if stop.Err() != nil {
					continue // drain without working once the run has failed
				}
				if err := work(ctx, ep); err != nil {
					return err
				}
			}
			return nil
		})
	}

enqueue:
	for _, ep := range endpoints {
		select {
		case queue <- ep:
		case <-stop.Done():
			break enqueue
		}
	}
	close(queue)

	return eg.Wait()
}
