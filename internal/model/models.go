package model

import (
	"errors"
	"fmt"
	"time"
)

// ErrInvalidConfig is returned by PipelineConfig.Validate
var ErrInvalidConfig = errors.New("invalid pipeline config")

// SchedulingPolicy selects how the concurrency governor dispatches fetch tasks
type SchedulingPolicy string

const (
	// GatedFanOut launches every task at once behind a counting gate
	GatedFanOut SchedulingPolicy = "gated_fan_out"
	// WorkerPool runs a fixed number of workers pulling from a shared queue
	WorkerPool SchedulingPolicy = "worker_pool"
)

// ArrayPolicy decides what happens to scalars found inside arrays of a record
type ArrayPolicy string

const (
	// ArrayIndex keeps array scalars under indexed paths such as tags[0]
	ArrayIndex ArrayPolicy = "index"
	// ArrayOmit drops every scalar that sits inside an array
	ArrayOmit ArrayPolicy = "omit"
)

// ParsePolicy parses a scheduling policy name, accepting a few aliases
func ParsePolicy(s string) (SchedulingPolicy, error) {
	switch s {
	case "", string(GatedFanOut), "gated", "fanout", "fan_out":
		return GatedFanOut, nil
	case string(WorkerPool), "pool", "workers":
		return WorkerPool, nil
	}
	return "", fmt.Errorf("%w: unknown scheduling policy %q", ErrInvalidConfig, s)
}

// ParseArrayPolicy parses an array policy name
func ParseArrayPolicy(s string) (ArrayPolicy, error) {
	switch s {
	case "", string(ArrayIndex):
		return ArrayIndex, nil
	case string(ArrayOmit):
		return ArrayOmit, nil
	}
	return "", fmt.Errorf("%w: unknown array policy %q", ErrInvalidConfig, s)
}

// PipelineConfig is fixed for the lifetime of one pipeline run
type PipelineConfig struct {
	ConcurrencyLimit  int              `json:"concurrency_limit"`
	PerRequestTimeout time.Duration    `json:"per_request_timeout"`
	SchedulingPolicy  SchedulingPolicy `json:"scheduling_policy"`
	ArrayPolicy       ArrayPolicy      `json:"array_policy"`
	UnwrapRootArray   bool             `json:"unwrap_root_array"` // treat objects inside a root array as records
}

// DefaultPipelineConfig returns the settings used when nothing is configured
func DefaultPipelineConfig() PipelineConfig {
	return PipelineConfig{
		ConcurrencyLimit:  5,
		PerRequestTimeout: 10 * time.Second,
		SchedulingPolicy:  GatedFanOut,
		ArrayPolicy:       ArrayIndex,
	}
}

// Validate checks limits and enum values
func (c PipelineConfig) Validate() error {
	if c.ConcurrencyLimit <= 0 {
		return fmt.Errorf("%w: concurrency limit must be positive, got %d", ErrInvalidConfig, c.ConcurrencyLimit)
	}
	if c.PerRequestTimeout <= 0 {
		return fmt.Errorf("%w: per-request timeout must be positive, got %v", ErrInvalidConfig, c.PerRequestTimeout)
	}
	if _, err := ParsePolicy(string(c.SchedulingPolicy)); err != nil {
		return err
	}
	if _, err := ParseArrayPolicy(string(c.ArrayPolicy)); err != nil {
		return err
	}
	return nil
}

// RunSpec is the body of POST /api/v1/runs
type RunSpec struct {
	Endpoints        []string `json:"endpoints"`
	ConcurrencyLimit int      `json:"concurrency_limit,omitempty"`
	Timeout          string   `json:"timeout,omitempty"` // e.g. "10s"
	Policy           string   `json:"policy,omitempty"`  // gated_fan_out or worker_pool
	ArrayPolicy      string   `json:"array_policy,omitempty"`
	UnwrapRootArray  bool     `json:"unwrap_root_array,omitempty"`
}
