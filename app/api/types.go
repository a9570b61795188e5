package api

import (
	"github.com/gin-gonic/gin"

	"github.com/xtrap1101/TRENDS-SHEET/app/database"
	"github.com/xtrap1101/TRENDS-SHEET/app/jobs"
	"github.com/xtrap1101/TRENDS-SHEET/app/tasks"
)

type Handler struct {
	configCache *jobs.ConfigCache
	runRepo     database.RunRepository
	scheduler   tasks.TaskSchedulerInterface
}

func reportJSON(report *tasks.RunReport) gin.H {
	outcomes := make([]gin.H, 0, len(report.Outcomes))
	for _, o := range report.Outcomes {
		outcome := gin.H{
			"keyword": o.Keyword,
			"status":  string(o.Status),
			"points":  len(o.Series),
		}
		if o.Reason != "" {
			outcome["reason"] = string(o.Reason)
		}
		if o.Err != nil {
			outcome["error"] = o.Err.Error()
		}
		outcomes = append(outcomes, outcome)
	}

	return gin.H{
		"run_id":       report.RunID,
		"job":          report.Job,
		"trigger":      report.Trigger,
		"status":       string(report.Status),
		"message":      report.Message,
		"keywords":     report.Keywords,
		"succeeded":    report.Succeeded,
		"empty":        report.Empty,
		"failed":       report.Failed,
		"rate_limited": report.RateLimited,
		"rows":         report.Rows,
		"columns":      report.Columns,
		"duration":     report.Duration.String(),
		"outcomes":     outcomes,
	}
}

func runJSON(run database.Run) gin.H {
	return gin.H{
		"id":           run.ID,
		"job":          run.Job,
		"trigger":      run.Trigger,
		"status":       string(run.Status),
		"message":      run.Message,
		"keywords":     run.Keywords,
		"succeeded":    run.Succeeded,
		"empty":        run.Empty,
		"failed":       run.Failed,
		"rate_limited": run.RateLimited,
		"rows":         run.Rows,
		"columns":      run.Columns,
		"started_at":   run.StartedAt,
		"finished_at":  run.FinishedAt,
	}
}

func outcomeJSON(o database.KeywordOutcome) gin.H {
	return gin.H{
		"position": o.Position,
		"keyword":  o.Keyword,
		"status":   o.Status,
		"reason":   o.Reason,
		"points":   o.Points,
		"error":    o.Error,
	}
}
