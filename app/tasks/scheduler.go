package tasks

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/xtrap1101/TRENDS-SHEET/app/cfg"
	"github.com/xtrap1101/TRENDS-SHEET/app/database"
	"github.com/xtrap1101/TRENDS-SHEET/app/jobs"
	"github.com/xtrap1101/TRENDS-SHEET/app/keywords"
	"github.com/xtrap1101/TRENDS-SHEET/app/sheets"
	"github.com/xtrap1101/TRENDS-SHEET/app/table"
)

var (
	// ErrBusy is returned by RunNow while another run is in progress.
	ErrBusy = errors.New("a run is already in progress")

	// ErrAlreadyQueued is returned by EnqueueJob for a job waiting in the queue.
	ErrAlreadyQueued = errors.New("job is already queued")
)

var _ TaskSchedulerInterface = (*Scheduler)(nil)

// Scheduler runs jobs one at a time: a single worker drains the queue and
// RunNow shares the same run lock, so runs never overlap.
type Scheduler struct {
	configCache *jobs.ConfigCache
	runner      *Runner
	runRepo     database.RunRepository
	interval    time.Duration
	runTimeout  time.Duration
	ctx         context.Context
	cancel      context.CancelFunc
	wg          sync.WaitGroup
	taskQueue   chan TaskInterface
	runLock     sync.Mutex
	queued      map[string]bool
	queuedMu    sync.Mutex
}

// NewScheduler creates a scheduler. An interval of zero disables scheduled
// runs; a runTimeout of zero leaves runs unbounded.
func NewScheduler(configCache *jobs.ConfigCache, runner *Runner, runRepo database.RunRepository, interval, runTimeout time.Duration) *Scheduler {
	ctx, cancel := context.WithCancel(context.Background())

	return &Scheduler{
		configCache: configCache,
		runner:      runner,
		runRepo:     runRepo,
		interval:    interval,
		runTimeout:  runTimeout,
		ctx:         ctx,
		cancel:      cancel,
		taskQueue:   make(chan TaskInterface, 300),
		queued:      make(map[string]bool),
	}
}

func (s *Scheduler) Start() {
	s.wg.Add(1)
	go s.worker()

	if s.interval <= 0 {
		slog.Info("Scheduled runs disabled")
		return
	}

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		s.enqueueDueJobs()

		for {
			select {
			case <-s.ctx.Done():
				return
			case <-ticker.C:
				s.enqueueDueJobs()
			}
		}
	}()
}

func (s *Scheduler) Stop() {
	s.cancel()
	s.wg.Wait()
}

func (s *Scheduler) EnqueueTask(task TaskInterface) error {
	select {
	case s.taskQueue <- task:
		return nil
	case <-s.ctx.Done():
		return s.ctx.Err()
	default:
		return fmt.Errorf("task queue is full")
	}
}

// EnqueueJob queues a background run and returns its task ID. A job that is
// already waiting in the queue is not queued twice.
func (s *Scheduler) EnqueueJob(job *jobs.Job, trigger string) (string, error) {
	s.queuedMu.Lock()
	defer s.queuedMu.Unlock()

	if s.queued[job.Name] {
		return "", fmt.Errorf("%w: %s", ErrAlreadyQueued, job.Name)
	}

	task := NewRunJobTask(job, trigger, s.runner)
	if err := s.EnqueueTask(task); err != nil {
		return "", err
	}
	s.queued[job.Name] = true

	return task.GetID(), nil
}

// RunNow executes a job synchronously on the caller's goroutine. It fails
// with ErrBusy instead of waiting when a run is active.
func (s *Scheduler) RunNow(ctx context.Context, job *jobs.Job, trigger string) (*RunReport, error) {
	if !s.runLock.TryLock() {
		return nil, ErrBusy
	}
	defer s.runLock.Unlock()

	runCtx, cancel := s.runContext(ctx)
	defer cancel()

	task := NewRunJobTask(job, trigger, s.runner)
	task.Start()
	err := task.Execute(runCtx)
	return task.Report(), err
}

func (s *Scheduler) enqueueDueJobs() {
	scheduled := s.configCache.GetScheduledJobs()
	if len(scheduled) == 0 {
		slog.Debug("No scheduled jobs found")
		return
	}

	now := time.Now().UTC()
	for _, job := range scheduled {
		last, err := s.runRepo.GetLastRun(job.Name)
		if err != nil {
			slog.Warn("Failed to get last run, skipping", "job", job.Name, "error", err)
			continue
		}

		if last != nil && last.StartedAt.Add(job.Interval).After(now) {
			slog.Debug("Job not due yet", "job", job.Name, "next_run_at", last.StartedAt.Add(job.Interval))
			continue
		}

		if _, err := s.EnqueueJob(job, TriggerSchedule); err != nil {
			slog.Debug("Job not enqueued", "job", job.Name, "error", err)
		}
	}
}

func (s *Scheduler) worker() {
	defer s.wg.Done()

	for {
		select {
		case task := <-s.taskQueue:
			s.executeTask(task)

		case <-s.ctx.Done():
			return
		}
	}
}

func (s *Scheduler) executeTask(task TaskInterface) {
	s.queuedMu.Lock()
	delete(s.queued, task.GetJobName())
	s.queuedMu.Unlock()

	s.runLock.Lock()
	defer s.runLock.Unlock()

	task.Start()

	taskCtx, cancel := s.runContext(s.ctx)
	defer cancel()

	err := task.Execute(taskCtx)
	if err == nil {
		return
	}

	slog.Error("Worker task execution failed", "type", string(task.GetType()), "id", task.GetID(), "job", task.GetJobName(), "retry_count", task.GetRetryCount(), "error", err)

	if !isTransient(err) {
		slog.Debug("Task error is permanent, not retrying", "type", string(task.GetType()), "job", task.GetJobName())
		return
	}

	if !task.CanRetry() {
		slog.Error("Task failed after maximum retries", "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "max_retries", task.GetMaxRetries(), "last_error", err)
		return
	}

	task.IncrementRetryCount()
	delay := retryDelay(task.GetRetryCount())

	slog.Warn("Task retry scheduled", "type", string(task.GetType()), "job", task.GetJobName(), "retry_count", task.GetRetryCount(), "max_retries", task.GetMaxRetries(), "delay", delay.String())

	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		select {
		case <-s.ctx.Done():
			slog.Debug("Scheduler stopped, skipping task retry", "type", string(task.GetType()), "id", task.GetID())
			return
		case <-time.After(delay):
		}

		if retryErr := s.EnqueueTask(task); retryErr != nil {
			slog.Error("Failed to re-enqueue task for retry", "type", string(task.GetType()), "id", task.GetID(), "retry_count", task.GetRetryCount(), "error", retryErr)
		}
	}()
}

func (s *Scheduler) runContext(parent context.Context) (context.Context, context.CancelFunc) {
	if s.runTimeout > 0 {
		return context.WithTimeout(parent, s.runTimeout)
	}
	return context.WithCancel(parent)
}

// retryDelay doubles from 1s and is capped at 30s.
func retryDelay(retryCount int) time.Duration {
	delay := time.Duration(1<<uint(retryCount-1)) * time.Second
	if delay > 30*time.Second {
		delay = 30 * time.Second
	}
	return delay
}

// isTransient reports whether retrying the run could succeed.
func isTransient(err error) bool {
	permanent := []error{
		cfg.ErrMissingConfig,
		sheets.ErrAuth,
		keywords.ErrNoKeywords,
		table.ErrNoData,
		context.Canceled,
		context.DeadlineExceeded, // run timeout; a retry would re-query every keyword
	}
	for _, target := range permanent {
		if errors.Is(err, target) {
			return false
		}
	}
	return true
}
