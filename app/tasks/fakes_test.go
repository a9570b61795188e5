package tasks

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/xtrap1101/TRENDS-SHEET/app/database"
	"github.com/xtrap1101/TRENDS-SHEET/app/jobs"
	"github.com/xtrap1101/TRENDS-SHEET/app/table"
	"github.com/xtrap1101/TRENDS-SHEET/app/trends"
)

// MockRunRepository keeps runs in memory
type MockRunRepository struct {
	mu       sync.Mutex
	runs     map[string]*database.Run
	order    []string
	outcomes map[string][]database.KeywordOutcome
}

var _ database.RunRepository = (*MockRunRepository)(nil)

func NewMockRunRepository() *MockRunRepository {
	return &MockRunRepository{
		runs:     make(map[string]*database.Run),
		outcomes: make(map[string][]database.KeywordOutcome),
	}
}

func (m *MockRunRepository) CreateRun(run database.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[run.ID] = &run
	m.order = append(m.order, run.ID)
	return nil
}

func (m *MockRunRepository) FinishRun(runID string, result database.RunResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[runID]
	if !ok {
		return fmt.Errorf("run '%s' not found", runID)
	}
	run.Status = result.Status
	run.Message = result.Message
	run.Keywords = result.Keywords
	run.Succeeded = result.Succeeded
	run.Failed = result.Failed
	finished := result.FinishedAt
	run.FinishedAt = &finished
	return nil
}

func (m *MockRunRepository) SaveOutcomes(runID string, outcomes []database.KeywordOutcome) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.outcomes[runID] = append(m.outcomes[runID], outcomes...)
	return nil
}

func (m *MockRunRepository) GetRun(runID string) (*database.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	run, ok := m.runs[runID]
	if !ok {
		return nil, nil
	}
	copied := *run
	return &copied, nil
}

func (m *MockRunRepository) GetRecentRuns(job string, limit int) ([]database.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var runs []database.Run
	for i := len(m.order) - 1; i >= 0; i-- {
		run := m.runs[m.order[i]]
		if job == "" || run.Job == job {
			runs = append(runs, *run)
		}
	}
	return runs, nil
}

func (m *MockRunRepository) GetLastRun(job string) (*database.Run, error) {
	runs, _ := m.GetRecentRuns(job, 1)
	if len(runs) == 0 {
		return nil, nil
	}
	return &runs[0], nil
}

func (m *MockRunRepository) GetOutcomes(runID string) ([]database.KeywordOutcome, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.outcomes[runID], nil
}

func (m *MockRunRepository) finishedRuns() []database.Run {
	m.mu.Lock()
	defer m.mu.Unlock()
	var runs []database.Run
	for _, id := range m.order {
		if m.runs[id].FinishedAt != nil {
			runs = append(runs, *m.runs[id])
		}
	}
	return runs
}

// MockProvider returns canned series per keyword
type MockProvider struct {
	mu      sync.Mutex
	results map[string]trends.Series
	errors  map[string]error
	calls   []string
}

func (m *MockProvider) InterestOverTime(ctx context.Context, keyword string, query trends.Query) (trends.Series, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = append(m.calls, keyword)
	if err, ok := m.errors[keyword]; ok {
		return nil, err
	}
	return m.results[keyword], nil
}

func (m *MockProvider) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// MockSpreadsheet records reads and writes
type MockSpreadsheet struct {
	column     []string
	readErr    error
	replaceErr error
	reads      []string
	replaced   map[string][][]interface{}
}

func (m *MockSpreadsheet) ReadColumn(ctx context.Context, sheet string) ([]string, error) {
	m.reads = append(m.reads, sheet)
	return m.column, m.readErr
}

func (m *MockSpreadsheet) Replace(ctx context.Context, sheet string, rows [][]interface{}) error {
	if m.replaceErr != nil {
		return m.replaceErr
	}
	if m.replaced == nil {
		m.replaced = make(map[string][][]interface{})
	}
	m.replaced[sheet] = rows
	return nil
}

type runnerFixture struct {
	repo     *MockRunRepository
	provider *MockProvider
	sheet    *MockSpreadsheet
	opened   int
	openErr  error
	credsErr error
	runner   *Runner
}

func newRunnerFixture() *runnerFixture {
	f := &runnerFixture{
		repo:     NewMockRunRepository(),
		provider: &MockProvider{results: map[string]trends.Series{}, errors: map[string]error{}},
		sheet:    &MockSpreadsheet{},
	}

	opener := func(ctx context.Context, credentialsJSON []byte, spreadsheetID string) (Spreadsheet, error) {
		f.opened++
		if f.openErr != nil {
			return nil, f.openErr
		}
		return f.sheet, nil
	}
	credentials := func() ([]byte, error) {
		if f.credsErr != nil {
			return nil, f.credsErr
		}
		return []byte(`{}`), nil
	}

	f.runner = NewRunner(f.repo, f.provider, opener, credentials, nil, "test-agent")
	return f
}

func testJob(name string) *jobs.Job {
	return &jobs.Job{
		Name:          name,
		Enabled:       true,
		SpreadsheetID: "sheet-123",
		InputSheet:    "KEY",
		OutputSheet:   "Trends_Data",
		Keywords:      jobs.KeywordSource{Source: jobs.SourceSheet},
		Query:         trends.Query{Geo: "VN", Timeframe: "today 3-m", Property: "youtube"},
		EmptyColumns:  table.OmitEmpty,
		Render:        table.RenderOptions{DateHeader: "Date", DateFormat: "02/01/06"},
	}
}

func series(values ...int) trends.Series {
	start := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	s := make(trends.Series, len(values))
	for i, v := range values {
		s[i] = trends.TimePoint{Time: start.AddDate(0, 0, i), Value: v, HasData: true}
	}
	return s
}
