package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/xtrap1101/TRENDS-SHEET/app/cfg"
	"github.com/xtrap1101/TRENDS-SHEET/app/database"
	"github.com/xtrap1101/TRENDS-SHEET/app/jobs"
	"github.com/xtrap1101/TRENDS-SHEET/app/sheets"
	"github.com/xtrap1101/TRENDS-SHEET/app/tasks"
)

func NewHandler(configCache *jobs.ConfigCache, runRepo database.RunRepository,
	scheduler tasks.TaskSchedulerInterface) *Handler {
	return &Handler{
		configCache: configCache,
		runRepo:     runRepo,
		scheduler:   scheduler,
	}
}

// Trigger runs the default job synchronously and answers with a plain-text
// status line.
func (h *Handler) Trigger(c *gin.Context) {
	job, err := h.configCache.GetJob(jobs.DefaultJobName)
	if err != nil {
		slog.Error("Default job not found", "error", err)
		c.String(http.StatusInternalServerError, "Configuration error: %v", err)
		return
	}

	report, err := h.run(c, job, tasks.TriggerHTTP)
	if err != nil {
		status, message := errorStatus(err)
		c.String(status, "%s", message)
		return
	}

	c.String(http.StatusOK, "%s", report.Message)
}

func (h *Handler) GetHealth(c *gin.Context) {
	health := map[string]interface{}{
		"status":    "ok",
		"version":   cfg.GetVersion(),
		"timestamp": time.Now().In(time.Local).Format(time.RFC3339),
		"jobs":      h.configCache.GetJobCount(),
	}

	if last, err := h.runRepo.GetLastRun(jobs.DefaultJobName); err == nil && last != nil {
		health["last_run"] = map[string]interface{}{
			"id":         last.ID,
			"status":     string(last.Status),
			"started_at": last.StartedAt,
		}
	}

	c.JSON(http.StatusOK, health)
}

func (h *Handler) APIListJobs(c *gin.Context) {
	configured := h.configCache.GetJobs()

	list := make([]map[string]interface{}, 0, len(configured))
	for _, job := range configured {
		jobInfo := map[string]interface{}{
			"name":           job.Name,
			"enabled":        job.Enabled,
			"spreadsheet_id": job.SpreadsheetID,
			"input_sheet":    job.InputSheet,
			"output_sheet":   job.OutputSheet,
			"source":         job.Keywords.Source,
			"query": map[string]interface{}{
				"geo":       job.Query.Geo,
				"category":  job.Query.Category,
				"timeframe": job.Query.Timeframe,
				"property":  job.Query.Property,
			},
			"empty_columns": string(job.EmptyColumns),
			"interval":      job.Interval.String(),
		}

		if last, err := h.runRepo.GetLastRun(job.Name); err == nil && last != nil {
			jobInfo["last_run"] = runJSON(*last)
		}

		list = append(list, jobInfo)
	}

	c.JSON(http.StatusOK, map[string]interface{}{
		"jobs":  list,
		"total": len(list),
	})
}

func (h *Handler) APIRunJob(c *gin.Context) {
	job, ok := h.lookupJob(c)
	if !ok {
		return
	}

	report, err := h.run(c, job, tasks.TriggerAPI)
	if err != nil {
		status, message := errorStatus(err)
		response := gin.H{"error": message}
		if report != nil {
			response["run"] = reportJSON(report)
		}
		c.JSON(status, response)
		return
	}

	c.JSON(http.StatusOK, reportJSON(report))
}

func (h *Handler) APIEnqueueJob(c *gin.Context) {
	job, ok := h.lookupJob(c)
	if !ok {
		return
	}

	taskID, err := h.scheduler.EnqueueJob(job, tasks.TriggerAPI)
	if err != nil {
		slog.Error("Error enqueueing run", "job", job.Name, "error", err)
		status := http.StatusServiceUnavailable
		if errors.Is(err, tasks.ErrAlreadyQueued) {
			status = http.StatusConflict
		}
		c.JSON(status, gin.H{
			"error":   "Failed to enqueue run",
			"details": err.Error(),
		})
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"success": true,
		"message": "Run enqueued",
		"job":     job.Name,
		"task": gin.H{
			"id":   taskID,
			"type": tasks.TaskTypeRunJob,
		},
	})
}

func (h *Handler) APIListRuns(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid limit parameter"})
			return
		}
		limit = min(parsed, 500)
	}

	runs, err := h.runRepo.GetRecentRuns(c.Query("job"), limit)
	if err != nil {
		slog.Error("Database error", "operation", "get_recent_runs", "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	list := make([]gin.H, 0, len(runs))
	for _, run := range runs {
		list = append(list, runJSON(run))
	}

	c.JSON(http.StatusOK, gin.H{
		"runs":  list,
		"total": len(list),
	})
}

func (h *Handler) APIGetRun(c *gin.Context) {
	id := c.Param("id")

	run, err := h.runRepo.GetRun(id)
	if err != nil {
		slog.Error("Database error", "operation", "get_run", "run_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}
	if run == nil {
		c.JSON(http.StatusNotFound, gin.H{"error": "Run not found"})
		return
	}

	outcomes, err := h.runRepo.GetOutcomes(id)
	if err != nil {
		slog.Error("Database error", "operation", "get_outcomes", "run_id", id, "error", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Database error"})
		return
	}

	details := runJSON(*run)
	list := make([]gin.H, 0, len(outcomes))
	for _, o := range outcomes {
		list = append(list, outcomeJSON(o))
	}
	details["outcomes"] = list

	c.JSON(http.StatusOK, details)
}

func (h *Handler) lookupJob(c *gin.Context) (*jobs.Job, bool) {
	name := c.Param("name")

	job, err := h.configCache.GetJob(name)
	if err != nil {
		slog.Error("Job configuration not found", "job", name, "error", err)
		c.JSON(http.StatusNotFound, gin.H{"error": "Job configuration not found"})
		return nil, false
	}
	return job, true
}

// run executes a job on the request goroutine. A dropped connection does not
// abort the run.
func (h *Handler) run(c *gin.Context, job *jobs.Job, trigger string) (*tasks.RunReport, error) {
	ctx := context.WithoutCancel(c.Request.Context())

	report, err := h.scheduler.RunNow(ctx, job, trigger)
	if err != nil {
		if errors.Is(err, tasks.ErrBusy) {
			slog.Warn("Run rejected, another run is in progress", "job", job.Name, "trigger", trigger)
		} else {
			slog.Error("Run failed", "job", job.Name, "trigger", trigger, "error", err)
		}
		return report, err
	}

	return report, nil
}

func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, tasks.ErrBusy):
		return http.StatusConflict, "A run is already in progress"
	case errors.Is(err, cfg.ErrMissingConfig):
		return http.StatusInternalServerError, "Configuration error: " + err.Error()
	case errors.Is(err, sheets.ErrAuth):
		return http.StatusInternalServerError, "Authentication error: " + err.Error()
	default:
		return http.StatusInternalServerError, "Run failed: " + err.Error()
	}
}
