package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPipelineConfigValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*PipelineConfig)
		wantErr bool
	}{
		{"defaults", func(*PipelineConfig) {}, false},
		{"zero limit", func(c *PipelineConfig) { c.ConcurrencyLimit = 0 }, true},
		{"negative limit", func(c *PipelineConfig) { c.ConcurrencyLimit = -1 }, true},
		{"zero timeout", func(c *PipelineConfig) { c.PerRequestTimeout = 0 }, true},
		{"unknown policy", func(c *PipelineConfig) { c.SchedulingPolicy = "round_robin" }, true},
		{"unknown arrays", func(c *PipelineConfig) { c.ArrayPolicy = "join" }, true},
		{"worker pool", func(c *PipelineConfig) { c.SchedulingPolicy = WorkerPool }, false},
		{"tiny timeout", func(c *PipelineConfig) { c.PerRequestTimeout = time.Millisecond }, false},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultPipelineConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.wantErr {
				assert.ErrorIs(t, err, ErrInvalidConfig)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestParsePolicy(t *testing.T) {
	for in, want := range map[string]SchedulingPolicy{
		"":              GatedFanOut,
		"gated_fan_out": GatedFanOut,
		"gated":         GatedFanOut,
		"worker_pool":   WorkerPool,
		"pool":          WorkerPool,
	} {
		got, err := ParsePolicy(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}

	_, err := ParsePolicy("fifo")
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestParseArrayPolicy(t *testing.T) {
	got, err := ParseArrayPolicy("")
	require.NoError(t, err)
	assert.Equal(t, ArrayIndex, got)

	got, err = ParseArrayPolicy("omit")
	require.NoError(t, err)
	assert.Equal(t, ArrayOmit, got)

	_, err = ParseArrayPolicy("flatten")
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestSummaryDelivered(t *testing.T) {
	assert.Equal(t, 5, Summary{Succeeded: 3, Failed: 2}.Delivered())
}
