package jobs

import (
	"context"
	"encoding/json"
	"time"
)

const (
	StatusQueued  = "queued"
	StatusRunning = "running"
	StatusRetry   = "retry"
	StatusDone    = "done"
	StatusFailed  = "failed"
)

// Job is a row of the jobs table. Times are unix milliseconds.
type Job struct {
	ID          string          `json:"id"`
	Type        string          `json:"type"`
	Payload     json.RawMessage `json:"payload"`
	Status      string          `json:"status"`
	Attempts    int             `json:"attempts"`
	MaxAttempts int             `json:"max_attempts"`
	Priority    int             `json:"priority"`
	ScheduledAt int64           `json:"scheduled_at"`
	NextTryAt   *int64          `json:"next_try_at,omitempty"`
	LastError   string          `json:"last_error,omitempty"`
	Created     int64           `json:"created"`
	Updated     int64           `json:"updated"`
}

// Handler is the function that processes a job
type Handler func(ctx context.Context, j *Job) error

// BackoffDuration returns exponential backoff duration for attempt n
func BackoffDuration(attempt int) time.Duration {
	if attempt <= 0 {
		return time.Second
	}
	// 2^attempt seconds, capped
	d := time.Duration(1<<uint(min(attempt, 16))) * time.Second
	max := 5 * time.Minute
	if d > max {
		return max
	}
	return d
}
