package model

import "time"

// TaskStatus is the lifecycle state of a FetchTask
type TaskStatus string

const (
	TaskPending   TaskStatus = "pending"
	TaskInFlight  TaskStatus = "in_flight"
	TaskSucceeded TaskStatus = "succeeded"
	TaskFailed    TaskStatus = "failed"
)

// FetchTask is one endpoint's unit of work. Only the worker executing it
// changes Status.
type FetchTask struct {
	Endpoint string
	Status   TaskStatus
}

// Outcome is the per-endpoint result: records on success, Err on failure
type Outcome struct {
	Endpoint string
	Records  []Record
	Err      *FetchError
	Duration time.Duration
}

func (o Outcome) Succeeded() bool { return o.Err == nil }

// Line returns the JSONL payload for a successful outcome
func (o Outcome) Line() SuccessLine {
	content := o.Records
	if content == nil {
		content = []Record{}
	}
	return SuccessLine{URL: o.Endpoint, Content: content}
}

// Summary is what a pipeline run reports once every outcome reached the sink
type Summary struct {
	RunID          string              `json:"run_id"`
	Endpoints      int                 `json:"endpoints"`
	Succeeded      int                 `json:"succeeded"`
	Failed         int                 `json:"failed"`
	Records        int                 `json:"records"`
	FailuresByKind map[FailureKind]int `json:"failures_by_kind"`
	MaxInFlight    int                 `json:"max_in_flight"`
	StartedAt      time.Time           `json:"started_at"`
	Duration       time.Duration       `json:"duration"`
}

// Delivered is the number of outcomes that reached the sink
func (s Summary) Delivered() int { return s.Succeeded + s.Failed }
