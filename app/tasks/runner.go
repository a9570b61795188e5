package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/xtrap1101/TRENDS-SHEET/app/cfg"
	"github.com/xtrap1101/TRENDS-SHEET/app/database"
	"github.com/xtrap1101/TRENDS-SHEET/app/jobs"
	"github.com/xtrap1101/TRENDS-SHEET/app/keywords"
	"github.com/xtrap1101/TRENDS-SHEET/app/metrics"
	"github.com/xtrap1101/TRENDS-SHEET/app/table"
	"github.com/xtrap1101/TRENDS-SHEET/app/trends"
)

// RunReport summarizes one pipeline run.
type RunReport struct {
	RunID       string
	Job         string
	Trigger     string
	Status      database.RunStatus
	Message     string
	Keywords    int
	Succeeded   int
	Empty       int
	Failed      int
	RateLimited int
	Rows        int
	Columns     int
	Duration    time.Duration
	Outcomes    []trends.Outcome
}

// Runner executes the pipeline: read keywords, fetch each keyword's series,
// assemble the table and replace the output sheet.
type Runner struct {
	runRepo     database.RunRepository
	provider    trends.Provider
	openSheet   SheetOpener
	credentials CredentialsFunc
	httpClient  *http.Client
	userAgent   string
}

func NewRunner(runRepo database.RunRepository, provider trends.Provider, openSheet SheetOpener,
	credentials CredentialsFunc, httpClient *http.Client, userAgent string) *Runner {
	return &Runner{
		runRepo:     runRepo,
		provider:    provider,
		openSheet:   openSheet,
		credentials: credentials,
		httpClient:  httpClient,
		userAgent:   userAgent,
	}
}

// Run executes one job. The returned report is never nil. The error is set
// for configuration, authentication and I/O failures; no keywords and no
// data are reported through the report status only.
func (r *Runner) Run(ctx context.Context, job *jobs.Job, runID, trigger string) (*RunReport, error) {
	startedAt := time.Now()
	report := &RunReport{RunID: runID, Job: job.Name, Trigger: trigger}

	if err := r.runRepo.CreateRun(database.Run{
		ID:        runID,
		Job:       job.Name,
		Trigger:   trigger,
		Status:    database.RunStatusRunning,
		StartedAt: startedAt,
	}); err != nil {
		slog.Warn("Failed to record run start", "job", job.Name, "run_id", runID, "error", err)
	}

	err := r.execute(ctx, job, report)
	if err != nil {
		report.Status = database.RunStatusFailed
		report.Message = err.Error()
	}
	report.Duration = time.Since(startedAt)

	r.finish(job, report, startedAt)

	return report, err
}

func (r *Runner) execute(ctx context.Context, job *jobs.Job, report *RunReport) error {
	if job.SpreadsheetID == "" {
		return fmt.Errorf("%w: SPREADSHEET_ID", cfg.ErrMissingConfig)
	}

	credentialsJSON, err := r.credentials()
	if err != nil {
		return err
	}

	sheet, err := r.openSheet(ctx, credentialsJSON, job.SpreadsheetID)
	if err != nil {
		return fmt.Errorf("failed to open spreadsheet: %w", err)
	}

	kws, err := keywords.Load(ctx, r.keywordSource(job, sheet))
	if errors.Is(err, keywords.ErrNoKeywords) {
		report.Status = database.RunStatusNoKeywords
		report.Message = fmt.Sprintf("No keywords found in %s", r.sourceName(job))
		slog.Warn("No keywords to process", "job", job.Name, "source", job.Keywords.Source)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to load keywords: %w", err)
	}

	report.Keywords = len(kws)
	slog.Info("Keywords loaded", "job", job.Name, "count", len(kws))

	fetcher := trends.NewFetcher(r.provider, job.Query, job.Pacing)
	outcomes := fetcher.FetchAll(ctx, kws)
	report.Outcomes = outcomes
	r.count(job, report)

	// A cancelled run keeps the previous sheet content.
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("run cancelled: %w", err)
	}

	tbl, err := table.Assemble(outcomes, table.Options{EmptyColumns: job.EmptyColumns})
	if errors.Is(err, table.ErrNoData) {
		report.Status = database.RunStatusNoData
		report.Message = fmt.Sprintf("Done! Processed %d keywords but found no data for any of them.", report.Keywords)
		slog.Warn("No data for any keyword, output sheet left untouched", "job", job.Name, "keywords", report.Keywords)
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to assemble table: %w", err)
	}

	if err := sheet.Replace(ctx, job.OutputSheet, tbl.Values(job.Render)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	report.Rows = tbl.RowCount()
	report.Columns = tbl.ColumnCount()
	report.Status = database.RunStatusCompleted
	report.Message = fmt.Sprintf("Done! Processed %d keywords, found data for %d.", report.Keywords, report.Succeeded)

	return nil
}

func (r *Runner) keywordSource(job *jobs.Job, sheet Spreadsheet) keywords.Source {
	switch job.Keywords.Source {
	case jobs.SourceStatic:
		return keywords.NewStaticSource(job.Keywords.List)
	case jobs.SourceFeed:
		return keywords.NewFeedSource(r.httpClient, job.Keywords.FeedURL, r.userAgent, job.Keywords.Max)
	default:
		return keywords.NewSheetSource(sheet, job.InputSheet)
	}
}

func (r *Runner) sourceName(job *jobs.Job) string {
	switch job.Keywords.Source {
	case jobs.SourceStatic:
		return "the static keyword list"
	case jobs.SourceFeed:
		return fmt.Sprintf("feed %s", job.Keywords.FeedURL)
	default:
		return fmt.Sprintf("sheet '%s'", job.InputSheet)
	}
}

func (r *Runner) count(job *jobs.Job, report *RunReport) {
	for _, o := range report.Outcomes {
		switch o.Status {
		case trends.StatusSuccess:
			report.Succeeded++
		case trends.StatusEmpty:
			report.Empty++
		default:
			report.Failed++
			if o.Reason == trends.ReasonRateLimited {
				report.RateLimited++
			}
		}
		metrics.RecordOutcome(job.Name, o.Label())
	}
}

func (r *Runner) finish(job *jobs.Job, report *RunReport, startedAt time.Time) {
	if len(report.Outcomes) > 0 {
		records := make([]database.KeywordOutcome, len(report.Outcomes))
		for i, o := range report.Outcomes {
			records[i] = database.KeywordOutcome{
				Position: i,
				Keyword:  o.Keyword,
				Status:   string(o.Status),
				Reason:   string(o.Reason),
				Points:   len(o.Series),
			}
			if o.Err != nil {
				records[i].Error = o.Err.Error()
			}
		}
		if err := r.runRepo.SaveOutcomes(report.RunID, records); err != nil {
			slog.Warn("Failed to record keyword outcomes", "job", job.Name, "run_id", report.RunID, "error", err)
		}
	}

	if err := r.runRepo.FinishRun(report.RunID, database.RunResult{
		Status:      report.Status,
		Message:     report.Message,
		Keywords:    report.Keywords,
		Succeeded:   report.Succeeded,
		Empty:       report.Empty,
		Failed:      report.Failed,
		RateLimited: report.RateLimited,
		Rows:        report.Rows,
		Columns:     report.Columns,
		FinishedAt:  startedAt.Add(report.Duration),
	}); err != nil {
		slog.Warn("Failed to record run result", "job", job.Name, "run_id", report.RunID, "error", err)
	}

	metrics.RecordRun(job.Name, string(report.Status), report.Duration)
}
