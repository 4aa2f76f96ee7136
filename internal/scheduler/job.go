package scheduler

import (
	"context"
	"time"
)

// Job is one schedulable unit of work.
type Job interface {
	Name() string

	Run(ctx context.Context) error

	// Schedule returns the cron expression, e.g. "0 30 17 * * 1-5"
	// or "@daily".
	Schedule() string
}

// JobResult records one job execution.
type JobResult struct {
	JobName   string        `json:"job_name"`
	StartTime time.Time     `json:"start_time"`
	EndTime   time.Time     `json:"end_time"`
	Duration  time.Duration `json:"duration"`
	Success   bool          `json:"success"`
	Error     string        `json:"error,omitempty"`
}

// JobHistory keeps the trailing execution results for one job.
type JobHistory struct {
	Results []JobResult
}

func (h *JobHistory) AddResult(result JobResult) {
	h.Results = append(h.Results, result)
	if len(h.Results) > 100 {
		h.Results = h.Results[len(h.Results)-100:]
	}
}

func (h *JobHistory) Latest(n int) []JobResult {
	if n > len(h.Results) {
		n = len(h.Results)
	}
	if n == 0 {
		return []JobResult{}
	}
	return h.Results[len(h.Results)-n:]
}
