package jobs

import (
	"cmp"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/xtrap1101/TRENDS-SHEET/app/cfg"
	"github.com/xtrap1101/TRENDS-SHEET/app/table"
	"github.com/xtrap1101/TRENDS-SHEET/app/trends"
)

type ConfigCache struct {
	jobsDir  string
	defaults *cfg.Cfg
	cache    map[string]*Job
	mu       sync.RWMutex
}

func NewConfigCache(jobsDir string, defaults *cfg.Cfg) *ConfigCache {
	return &ConfigCache{
		jobsDir:  jobsDir,
		defaults: defaults,
		cache:    make(map[string]*Job),
	}
}

// Run registers the default job and loads every *.yml file of the jobs
// directory. A default.yml overrides the environment-only default job.
func (cc *ConfigCache) Run() error {
	defaultJob, err := cc.resolve(DefaultJobName, &Config{})
	if err != nil {
		return fmt.Errorf("invalid default job: %w", err)
	}
	cc.store(defaultJob)

	if _, err := os.Stat(cc.jobsDir); os.IsNotExist(err) {
		slog.Debug("Jobs directory not found, using default job only", "dir", cc.jobsDir)
		return nil
	}

	files, err := filepath.Glob(filepath.Join(cc.jobsDir, "*.yml"))
	if err != nil {
		return fmt.Errorf("failed to find YML files: %w", err)
	}

	for _, file := range files {
		jobName := strings.TrimSuffix(filepath.Base(file), ".yml")

		job, err := cc.LoadConfig(jobName)
		if err != nil {
			return fmt.Errorf("error loading %s: %w", file, err)
		}

		slog.Debug("Job configuration loaded", "job", jobName, "enabled", job.Enabled, "source", job.Keywords.Source, "interval", job.Interval)
	}

	return nil
}

func (cc *ConfigCache) LoadConfig(jobName string) (*Job, error) {
	configFile := cc.getConfigFilePath(jobName)
	jobConfig, err := cc.parseConfig(configFile)
	if err != nil {
		return nil, err
	}

	job, err := cc.resolve(jobName, jobConfig)
	if err != nil {
		return nil, fmt.Errorf("invalid config %s: %w", configFile, err)
	}

	cc.store(job)
	return job, nil
}

func (cc *ConfigCache) GetJob(jobName string) (*Job, error) {
	cc.mu.RLock()
	defer cc.mu.RUnlock()

	job, ok := cc.cache[jobName]
	if !ok {
		return nil, fmt.Errorf("job with name '%s' not found", jobName)
	}
	return job, nil
}

// GetJobs returns all jobs sorted by name.
func (cc *ConfigCache) GetJobs() []*Job {
	cc.mu.RLock()
	defer cc.mu.RUnlock()

	jobs := make([]*Job, 0, len(cc.cache))
	for _, job := range cc.cache {
		jobs = append(jobs, job)
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].Name < jobs[j].Name })
	return jobs
}

// GetScheduledJobs returns enabled jobs that have a schedule interval.
func (cc *ConfigCache) GetScheduledJobs() []*Job {
	var scheduled []*Job
	for _, job := range cc.GetJobs() {
		if job.Enabled && job.Interval > 0 {
			scheduled = append(scheduled, job)
		}
	}
	return scheduled
}

func (cc *ConfigCache) GetJobCount() int {
	cc.mu.RLock()
	defer cc.mu.RUnlock()
	return len(cc.cache)
}

func (cc *ConfigCache) store(job *Job) {
	cc.mu.Lock()
	defer cc.mu.Unlock()
	cc.cache[job.Name] = job
}

func (cc *ConfigCache) parseConfig(configFile string) (*Config, error) {
	data, err := os.ReadFile(configFile)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}

	var jobConfig Config
	if err := yaml.Unmarshal(data, &jobConfig); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}

	return &jobConfig, nil
}

// resolve fills every omitted setting from the environment configuration.
func (cc *ConfigCache) resolve(jobName string, c *Config) (*Job, error) {
	d := cc.defaults

	job := &Job{
		Name:          jobName,
		Enabled:       c.Enabled == nil || *c.Enabled,
		SpreadsheetID: cmp.Or(c.SpreadsheetID, d.SpreadsheetID),
		InputSheet:    cmp.Or(c.InputSheet, d.InputSheet),
		OutputSheet:   cmp.Or(c.OutputSheet, d.OutputSheet),
		Keywords: KeywordSource{
			Source:  cmp.Or(c.Keywords.Source, SourceSheet),
			FeedURL: c.Keywords.FeedURL,
			Max:     c.Keywords.Max,
			List:    c.Keywords.List,
		},
		Query: trends.Query{
			Geo:       cmp.Or(c.Query.Geo, d.Geo),
			Category:  orPtr(c.Query.Category, d.Category),
			Timeframe: cmp.Or(c.Query.Timeframe, d.Timeframe),
			Property:  orPtr(c.Query.Property, d.Property),
		},
		Pacing: trends.Pacing{
			MinDelay:         orPtr(c.Pacing.MinDelay, d.MinDelay),
			MaxDelay:         orPtr(c.Pacing.MaxDelay, d.MaxDelay),
			Cooldown:         orPtr(c.Pacing.Cooldown, d.Cooldown),
			Timeout:          orPtr(c.Pacing.Timeout, d.RequestTimeout),
			RateLimitRetries: orPtr(c.Pacing.RateLimitRetries, d.RateLimitRetries),
		},
		EmptyColumns: table.EmptyColumnPolicy(cmp.Or(c.Output.EmptyColumns, d.EmptyColumns)),
		Render: table.RenderOptions{
			DateHeader:    cmp.Or(c.Output.DateHeader, d.DateHeader),
			DateFormat:    cmp.Or(c.Output.DateFormat, d.DateFormat),
			MissingMarker: orPtr(c.Output.MissingMarker, d.MissingMarker),
		},
		Interval: c.Schedule.Interval,
	}

	if jobName == DefaultJobName && c.Schedule.Interval == 0 {
		job.Interval = d.DefaultInterval
	}

	if err := validateJob(job); err != nil {
		return nil, err
	}
	return job, nil
}

func validateJob(job *Job) error {
	if job == nil {
		return fmt.Errorf("job is nil")
	}

	requiredFields := map[string]string{
		"job name":     job.Name,
		"input sheet":  job.InputSheet,
		"output sheet": job.OutputSheet,
		"date format":  job.Render.DateFormat,
	}

	for fieldName, fieldValue := range requiredFields {
		if fieldValue == "" {
			return fmt.Errorf("%s is required", fieldName)
		}
	}

	if job.InputSheet == job.OutputSheet && job.Keywords.Source == SourceSheet {
		return fmt.Errorf("input and output sheet must differ")
	}

	switch job.Keywords.Source {
	case SourceSheet:
	case SourceFeed:
		if job.Keywords.FeedURL == "" {
			return fmt.Errorf("keywords.feed_url is required for feed source")
		}
	case SourceStatic:
		if len(job.Keywords.List) == 0 {
			return fmt.Errorf("keywords.list is required for static source")
		}
	default:
		return fmt.Errorf("invalid keyword source: %s", job.Keywords.Source)
	}

	switch job.EmptyColumns {
	case table.OmitEmpty, table.IncludeEmpty:
	default:
		return fmt.Errorf("invalid empty columns policy: %s", job.EmptyColumns)
	}

	nonNegativeFields := map[string]int64{
		"min delay":          int64(job.Pacing.MinDelay),
		"max delay":          int64(job.Pacing.MaxDelay),
		"cooldown":           int64(job.Pacing.Cooldown),
		"timeout":            int64(job.Pacing.Timeout),
		"rate limit retries": int64(job.Pacing.RateLimitRetries),
		"category":           int64(job.Query.Category),
		"keyword max":        int64(job.Keywords.Max),
		"schedule interval":  int64(job.Interval),
	}

	for fieldName, fieldValue := range nonNegativeFields {
		if fieldValue < 0 {
			return fmt.Errorf("%s must be non-negative", fieldName)
		}
	}

	if job.Pacing.MaxDelay < job.Pacing.MinDelay {
		return fmt.Errorf("max delay must not be shorter than min delay")
	}

	if job.Pacing.Cooldown < job.Pacing.MaxDelay {
		return fmt.Errorf("cooldown must not be shorter than max delay")
	}

	return nil
}

func (cc *ConfigCache) getConfigFilePath(jobName string) string {
	return filepath.Join(cc.jobsDir, jobName+".yml")
}

func orPtr[T any](value *T, fallback T) T {
	if value != nil {
		return *value
	}
	return fallback
}
