package database

// RunRepository stores the history of pipeline runs.
type RunRepository interface {
	CreateRun(run Run) error
	FinishRun(runID string, result RunResult) error
	SaveOutcomes(runID string, outcomes []KeywordOutcome) error

	// GetRun returns nil when the run does not exist.
	GetRun(runID string) (*Run, error)
	GetRecentRuns(job string, limit int) ([]Run, error)
	GetLastRun(job string) (*Run, error)
	GetOutcomes(runID string) ([]KeywordOutcome, error)
}
