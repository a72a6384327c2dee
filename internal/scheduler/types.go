package scheduler

import (
	"context"
	"time"
)

// Job is one scheduled maintenance task.
type Job struct {
	ID       string
	Name     string
	Schedule string // cron syntax with seconds
	Enabled  bool
	Timeout  time.Duration
	// Run does the work and returns a short summary for the log.
	Run func(ctx context.Context) (string, error)
}

// JobResult captures the outcome of one run
type JobResult struct {
	JobID     string
	StartTime time.Time
	EndTime   time.Time
	Success   bool
	Output    string
	Error     error
}

// JobHistory tracks historical execution data for a job
type JobHistory struct {
	JobID        string    `json:"job_id"`
	LastRun      time.Time `json:"last_run"`
	LastStatus   string    `json:"last_status"` // "success", "failure", "timeout"
	LastDuration int64     `json:"last_duration_ms"`
	LastOutput   string    `json:"last_output,omitempty"`
	RunCount     int       `json:"run_count"`
	SuccessCount int       `json:"success_count"`
	FailureCount int       `json:"failure_count"`
}
