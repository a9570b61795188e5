package database

import (
	"time"
)

type RunStatus string

const (
	RunStatusRunning    RunStatus = "running"
	RunStatusCompleted  RunStatus = "completed"
	RunStatusNoKeywords RunStatus = "no_keywords"
	RunStatusNoData     RunStatus = "no_data"
	RunStatusFailed     RunStatus = "failed"
)

type Run struct {
	ID          string
	Job         string
	Trigger     string // http, api, schedule
	Status      RunStatus
	Message     string
	Keywords    int
	Succeeded   int
	Empty       int
	Failed      int
	RateLimited int
	Rows        int
	Columns     int
	StartedAt   time.Time
	FinishedAt  *time.Time
}

// RunResult carries the final counters of a run.
type RunResult struct {
	Status      RunStatus
	Message     string
	Keywords    int
	Succeeded   int
	Empty       int
	Failed      int
	RateLimited int
	Rows        int
	Columns     int
	FinishedAt  time.Time
}

type KeywordOutcome struct {
	RunID    string
	Position int
	Keyword  string
	Status   string // success, empty, failed
	Reason   string // rate_limited, other
	Points   int
	Error    string
}
