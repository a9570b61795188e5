package tasks

import (
	"context"
	"log/slog"

	"github.com/xtrap1101/TRENDS-SHEET/app/jobs"
)

type RunJobTask struct {
	Task
	Job    *jobs.Job
	runner *Runner
	report *RunReport
}

func NewRunJobTask(job *jobs.Job, trigger string, runner *Runner) *RunJobTask {
	return &RunJobTask{
		Task:   NewTask(TaskTypeRunJob, job.Name, trigger),
		Job:    job,
		runner: runner,
	}
}

func (t *RunJobTask) Execute(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
	}

	// Retries are recorded as separate runs.
	runID := t.ID
	if t.RetryCount > 0 {
		runID = NewTask(t.Type, t.JobName, t.Trigger).ID
	}

	report, err := t.runner.Run(ctx, t.Job, runID, t.Trigger)
	t.report = report
	if err != nil {
		return err
	}

	slog.Info("Task completed", "type", string(t.Type), "job", t.JobName, "trigger", t.Trigger,
		"status", string(report.Status), "keywords", report.Keywords, "succeeded", report.Succeeded,
		"empty", report.Empty, "failed", report.Failed, "rate_limited", report.RateLimited,
		"duration", report.Duration.String())

	return nil
}

// Report returns the report of the last execution, or nil before the first.
func (t *RunJobTask) Report() *RunReport {
	return t.report
}
