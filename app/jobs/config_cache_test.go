package jobs

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/xtrap1101/TRENDS-SHEET/app/cfg"
	"github.com/xtrap1101/TRENDS-SHEET/app/table"
)

func testDefaults() *cfg.Cfg {
	return &cfg.Cfg{
		SpreadsheetID:  "env-sheet",
		InputSheet:     "KEY",
		OutputSheet:    "Trends_Data",
		Geo:            "VN",
		Category:       0,
		Timeframe:      "today 3-m",
		Property:       "youtube",
		MinDelay:       2 * time.Second,
		MaxDelay:       8 * time.Second,
		Cooldown:       60 * time.Second,
		RequestTimeout: 30 * time.Second,
		EmptyColumns:   "omit",
		DateFormat:     "02/01/06",
		DateHeader:     "Date",
	}
}

func writeJob(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name+".yml"), []byte(content), 0644); err != nil {
		t.Fatal(err)
	}
}

func TestConfigCacheDefaultJobOnly(t *testing.T) {
	configCache := NewConfigCache(filepath.Join(t.TempDir(), "missing"), testDefaults())
	if err := configCache.Run(); err != nil {
		t.Fatal(err)
	}

	if configCache.GetJobCount() != 1 {
		t.Errorf("Expected 1 job, got %d", configCache.GetJobCount())
	}

	job, err := configCache.GetJob(DefaultJobName)
	if err != nil {
		t.Fatal(err)
	}

	if !job.Enabled {
		t.Error("Expected default job to be enabled")
	}
	if job.SpreadsheetID != "env-sheet" || job.InputSheet != "KEY" || job.OutputSheet != "Trends_Data" {
		t.Errorf("Expected env sheets, got %+v", job)
	}
	if job.Keywords.Source != SourceSheet {
		t.Errorf("Expected sheet source, got '%s'", job.Keywords.Source)
	}
	if job.Query.Geo != "VN" || job.Query.Timeframe != "today 3-m" || job.Query.Property != "youtube" {
		t.Errorf("Expected env query, got %+v", job.Query)
	}
	if job.Pacing.Cooldown != 60*time.Second || job.Pacing.Timeout != 30*time.Second {
		t.Errorf("Expected env pacing, got %+v", job.Pacing)
	}
	if job.EmptyColumns != table.OmitEmpty {
		t.Errorf("Expected omit policy, got '%s'", job.EmptyColumns)
	}
	if job.Interval != 0 {
		t.Errorf("Expected manual-only default job, got interval %v", job.Interval)
	}
}

func TestConfigCacheLoadValidConfig(t *testing.T) {
	tempDir := t.TempDir()

	writeJob(t, tempDir, "music", `
spreadsheet_id: "music-sheet"
output_sheet: "Music"

keywords:
  source: static
  list:
    - "son tung"
    - "den vau"

query:
  geo: "US"
  category: 35
  timeframe: "today 12-m"
  property: ""

pacing:
  min_delay: 0s
  max_delay: 1s
  cooldown: 2m
  rate_limit_retries: 2

output:
  empty_columns: include
  missing_marker: "-"

schedule:
  interval: 6h
`)

	configCache := NewConfigCache(tempDir, testDefaults())
	if err := configCache.Run(); err != nil {
		t.Fatal(err)
	}

	if configCache.GetJobCount() != 2 {
		t.Errorf("Expected 2 jobs, got %d", configCache.GetJobCount())
	}

	job, err := configCache.GetJob("music")
	if err != nil {
		t.Fatal(err)
	}

	if job.Name != "music" {
		t.Errorf("Expected name 'music', got '%s'", job.Name)
	}
	if job.SpreadsheetID != "music-sheet" || job.OutputSheet != "Music" || job.InputSheet != "KEY" {
		t.Errorf("Unexpected sheets: %+v", job)
	}
	if job.Keywords.Source != SourceStatic || len(job.Keywords.List) != 2 {
		t.Errorf("Expected static source with 2 keywords, got %+v", job.Keywords)
	}
	if job.Query.Geo != "US" || job.Query.Category != 35 || job.Query.Property != "" {
		t.Errorf("Expected overridden query with web search, got %+v", job.Query)
	}
	if job.Pacing.MinDelay != 0 || job.Pacing.MaxDelay != time.Second || job.Pacing.Cooldown != 2*time.Minute {
		t.Errorf("Expected overridden pacing, got %+v", job.Pacing)
	}
	if job.Pacing.Timeout != 30*time.Second {
		t.Errorf("Expected default timeout 30s, got %v", job.Pacing.Timeout)
	}
	if job.Pacing.RateLimitRetries != 2 {
		t.Errorf("Expected 2 rate limit retries, got %d", job.Pacing.RateLimitRetries)
	}
	if job.EmptyColumns != table.IncludeEmpty || job.Render.MissingMarker != "-" {
		t.Errorf("Expected include policy with '-' marker, got %s %q", job.EmptyColumns, job.Render.MissingMarker)
	}
	if job.Render.DateFormat != "02/01/06" {
		t.Errorf("Expected default date format, got '%s'", job.Render.DateFormat)
	}
	if job.Interval != 6*time.Hour {
		t.Errorf("Expected interval 6h, got %v", job.Interval)
	}
}

func TestConfigCacheDefaultFileOverridesEnv(t *testing.T) {
	tempDir := t.TempDir()

	writeJob(t, tempDir, "default", `
output_sheet: "Daily"
schedule:
  interval: 24h
`)

	configCache := NewConfigCache(tempDir, testDefaults())
	if err := configCache.Run(); err != nil {
		t.Fatal(err)
	}

	if configCache.GetJobCount() != 1 {
		t.Errorf("Expected 1 job, got %d", configCache.GetJobCount())
	}

	job, err := configCache.GetJob(DefaultJobName)
	if err != nil {
		t.Fatal(err)
	}
	if job.OutputSheet != "Daily" || job.Interval != 24*time.Hour {
		t.Errorf("Expected overridden default job, got %+v", job)
	}
}

func TestConfigCacheDefaultIntervalFromEnv(t *testing.T) {
	defaults := testDefaults()
	defaults.DefaultInterval = 12 * time.Hour

	configCache := NewConfigCache(t.TempDir(), defaults)
	if err := configCache.Run(); err != nil {
		t.Fatal(err)
	}

	scheduled := configCache.GetScheduledJobs()
	if len(scheduled) != 1 || scheduled[0].Interval != 12*time.Hour {
		t.Errorf("Expected default job scheduled every 12h, got %v", scheduled)
	}
}

func TestConfigCacheScheduledJobs(t *testing.T) {
	tempDir := t.TempDir()

	writeJob(t, tempDir, "hourly", "schedule:\n  interval: 1h\n")
	writeJob(t, tempDir, "paused", "enabled: false\nschedule:\n  interval: 1h\n")
	writeJob(t, tempDir, "manual", "output_sheet: Manual\n")

	configCache := NewConfigCache(tempDir, testDefaults())
	if err := configCache.Run(); err != nil {
		t.Fatal(err)
	}

	names := []string{}
	for _, job := range configCache.GetJobs() {
		names = append(names, job.Name)
	}
	if strings.Join(names, ",") != "default,hourly,manual,paused" {
		t.Errorf("Expected sorted job names, got %v", names)
	}

	scheduled := configCache.GetScheduledJobs()
	if len(scheduled) != 1 || scheduled[0].Name != "hourly" {
		t.Errorf("Expected only 'hourly' to be scheduled, got %d jobs", len(scheduled))
	}
}

func TestConfigCacheInvalidConfig(t *testing.T) {
	tests := map[string]string{
		"unknown source":    "keywords:\n  source: ftp\n",
		"feed without url":  "keywords:\n  source: feed\n",
		"static empty list": "keywords:\n  source: static\n",
		"bad policy":        "output:\n  empty_columns: maybe\n",
		"negative cooldown": "pacing:\n  cooldown: -1s\n",
		"inverted delays":   "pacing:\n  min_delay: 5s\n  max_delay: 1s\n",
		"short cooldown":    "pacing:\n  max_delay: 8s\n  cooldown: 0s\n",
		"same sheets":       "input_sheet: KEY\noutput_sheet: KEY\n",
		"broken yaml":       "keywords: [\n",
	}

	for name, content := range tests {
		t.Run(name, func(t *testing.T) {
			tempDir := t.TempDir()
			writeJob(t, tempDir, "broken", content)

			configCache := NewConfigCache(tempDir, testDefaults())
			if err := configCache.Run(); err == nil {
				t.Error("Expected error for invalid config")
			}
		})
	}
}

func TestConfigCacheGetJobNotFound(t *testing.T) {
	configCache := NewConfigCache(t.TempDir(), testDefaults())
	if err := configCache.Run(); err != nil {
		t.Fatal(err)
	}

	if _, err := configCache.GetJob("nonexistent"); err == nil {
		t.Error("Expected error for nonexistent job")
	}
}
