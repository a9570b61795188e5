package tasks

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/xtrap1101/TRENDS-SHEET/app/cfg"
	"github.com/xtrap1101/TRENDS-SHEET/app/database"
	"github.com/xtrap1101/TRENDS-SHEET/app/jobs"
	"github.com/xtrap1101/TRENDS-SHEET/app/keywords"
	"github.com/xtrap1101/TRENDS-SHEET/app/sheets"
	"github.com/xtrap1101/TRENDS-SHEET/app/table"
)

func newTestScheduler(t *testing.T, jobsDir string, f *runnerFixture) *Scheduler {
	t.Helper()

	config, err := cfg.LoadArgs([]string{"--scheduler-interval=0", "--spreadsheet-id=sheet-123", "--min-delay=0s", "--max-delay=0s"})
	if err != nil {
		t.Fatal(err)
	}

	configCache := jobs.NewConfigCache(jobsDir, config)
	if err := configCache.Run(); err != nil {
		t.Fatal(err)
	}

	return NewScheduler(configCache, f.runner, f.repo, 0, time.Hour)
}

func TestNewSchedulerUsesGivenSettings(t *testing.T) {
	f := newRunnerFixture()
	s := NewScheduler(nil, f.runner, f.repo, 5*time.Minute, 10*time.Minute)
	defer s.cancel()

	if s.interval != 5*time.Minute {
		t.Errorf("Expected interval 5m, got %v", s.interval)
	}
	if s.runTimeout != 10*time.Minute {
		t.Errorf("Expected run timeout 10m, got %v", s.runTimeout)
	}

	ctx, cancel := s.runContext(context.Background())
	defer cancel()
	deadline, ok := ctx.Deadline()
	if !ok || time.Until(deadline) > 10*time.Minute {
		t.Errorf("Expected run context bounded by 10m, got %v (ok=%v)", deadline, ok)
	}
}

func TestRunNowBusy(t *testing.T) {
	f := newRunnerFixture()
	s := newTestScheduler(t, t.TempDir(), f)

	s.runLock.Lock()
	_, err := s.RunNow(context.Background(), testJob("default"), TriggerHTTP)
	s.runLock.Unlock()

	if !errors.Is(err, ErrBusy) {
		t.Errorf("Expected ErrBusy, got: %v", err)
	}
	if f.opened != 0 {
		t.Error("Expected busy run not to start")
	}
}

func TestRunNowReturnsReport(t *testing.T) {
	f := newRunnerFixture()
	f.sheet.column = []string{"A"}
	f.provider.results["A"] = series(3)
	s := newTestScheduler(t, t.TempDir(), f)

	report, err := s.RunNow(context.Background(), testJob("default"), TriggerHTTP)
	if err != nil {
		t.Fatalf("Expected no error, got: %v", err)
	}
	if report == nil || report.Status != database.RunStatusCompleted || report.Trigger != TriggerHTTP {
		t.Errorf("Expected completed http run, got %+v", report)
	}

	// The lock is released after the run.
	if _, err := s.RunNow(context.Background(), testJob("default"), TriggerHTTP); errors.Is(err, ErrBusy) {
		t.Error("Expected second run to acquire the lock")
	}
}

func TestEnqueueJobDeduplicates(t *testing.T) {
	f := newRunnerFixture()
	s := newTestScheduler(t, t.TempDir(), f)

	id, err := s.EnqueueJob(testJob("default"), TriggerAPI)
	if err != nil || id == "" {
		t.Fatalf("Expected task ID, got %q, %v", id, err)
	}

	if _, err := s.EnqueueJob(testJob("default"), TriggerAPI); !errors.Is(err, ErrAlreadyQueued) {
		t.Errorf("Expected ErrAlreadyQueued, got: %v", err)
	}

	if _, err := s.EnqueueJob(testJob("other"), TriggerAPI); err != nil {
		t.Errorf("Expected other job to be queued, got: %v", err)
	}

	if len(s.taskQueue) != 2 {
		t.Errorf("Expected 2 queued tasks, got %d", len(s.taskQueue))
	}
}

func TestEnqueueDueJobs(t *testing.T) {
	tempDir := t.TempDir()
	for name, content := range map[string]string{
		"hourly": "keywords:\n  source: static\n  list: [a]\nschedule:\n  interval: 1h\n",
		"daily":  "keywords:\n  source: static\n  list: [b]\nschedule:\n  interval: 24h\n",
		"manual": "keywords:\n  source: static\n  list: [c]\n",
	} {
		if err := os.WriteFile(filepath.Join(tempDir, name+".yml"), []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}

	f := newRunnerFixture()
	f.repo.CreateRun(database.Run{ID: "prev", Job: "hourly", Status: database.RunStatusCompleted, StartedAt: time.Now().Add(-10 * time.Minute)})
	f.repo.CreateRun(database.Run{ID: "old", Job: "daily", Status: database.RunStatusCompleted, StartedAt: time.Now().Add(-25 * time.Hour)})

	s := newTestScheduler(t, tempDir, f)
	s.enqueueDueJobs()

	if len(s.taskQueue) != 1 {
		t.Fatalf("Expected 1 due job, got %d", len(s.taskQueue))
	}
	task := <-s.taskQueue
	if task.GetJobName() != "daily" {
		t.Errorf("Expected 'daily' to be due, got '%s'", task.GetJobName())
	}
}

func TestWorkerExecutesQueuedJob(t *testing.T) {
	f := newRunnerFixture()
	f.sheet.column = []string{"A"}
	f.provider.results["A"] = series(7)

	s := newTestScheduler(t, t.TempDir(), f)
	s.Start()
	defer s.Stop()

	if _, err := s.EnqueueJob(testJob("default"), TriggerAPI); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(2 * time.Second)
	for len(f.repo.finishedRuns()) == 0 {
		if time.Now().After(deadline) {
			t.Fatal("Timed out waiting for queued run")
		}
		time.Sleep(10 * time.Millisecond)
	}

	runs := f.repo.finishedRuns()
	if runs[0].Status != database.RunStatusCompleted || runs[0].Trigger != TriggerAPI {
		t.Errorf("Expected completed api run, got %+v", runs[0])
	}
}

func TestIsTransient(t *testing.T) {
	tests := []struct {
		err       error
		transient bool
	}{
		{fmt.Errorf("failed: %w", cfg.ErrMissingConfig), false},
		{fmt.Errorf("failed: %w", sheets.ErrAuth), false},
		{keywords.ErrNoKeywords, false},
		{table.ErrNoData, false},
		{fmt.Errorf("run cancelled: %w", context.Canceled), false},
		{errors.New("failed to write output: 503"), true},
		{fmt.Errorf("run cancelled: %w", context.DeadlineExceeded), false},
	}

	for _, tt := range tests {
		if got := isTransient(tt.err); got != tt.transient {
			t.Errorf("isTransient(%v): expected %v, got %v", tt.err, tt.transient, got)
		}
	}
}

func TestRetryDelay(t *testing.T) {
	expected := map[int]time.Duration{
		1: time.Second,
		2: 2 * time.Second,
		3: 4 * time.Second,
		6: 30 * time.Second,
	}
	for retry, delay := range expected {
		if got := retryDelay(retry); got != delay {
			t.Errorf("retryDelay(%d): expected %v, got %v", retry, delay, got)
		}
	}
}

func TestNewTaskIDsAreUnique(t *testing.T) {
	a := NewTask(TaskTypeRunJob, "default", TriggerHTTP)
	b := NewTask(TaskTypeRunJob, "default", TriggerHTTP)

	if a.ID == b.ID {
		t.Error("Expected unique task IDs")
	}
	if a.MaxRetries != DefaultMaxRetries || !a.CanRetry() {
		t.Errorf("Expected %d retries available, got %+v", DefaultMaxRetries, a)
	}
	if a.GetDuration() != 0 {
		t.Error("Expected zero duration before start")
	}
}
