package tasks

import (
	"context"

	"github.com/xtrap1101/TRENDS-SHEET/app/jobs"
)

// TaskSchedulerInterface defines the interface for task scheduling operations.
// Used by the main application and the HTTP API.
// Example usage:
//
//	scheduler := NewScheduler(configCache, runner, runRepo, interval, runTimeout)
//	scheduler.Start()
//	defer scheduler.Stop()
//	report, err := scheduler.RunNow(ctx, job, TriggerHTTP)
type TaskSchedulerInterface interface {
	Start()
	Stop()
	EnqueueTask(task TaskInterface) error
	EnqueueJob(job *jobs.Job, trigger string) (string, error)
	RunNow(ctx context.Context, job *jobs.Job, trigger string) (*RunReport, error)
}

// Spreadsheet is the part of the Sheets client a run needs.
type Spreadsheet interface {
	ReadColumn(ctx context.Context, sheet string) ([]string, error)
	Replace(ctx context.Context, sheet string, rows [][]interface{}) error
}

// SheetOpener authenticates and opens a spreadsheet.
type SheetOpener func(ctx context.Context, credentialsJSON []byte, spreadsheetID string) (Spreadsheet, error)

// CredentialsFunc returns the service account key.
type CredentialsFunc func() ([]byte, error)
