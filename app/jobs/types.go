package jobs

import (
	"time"

	"github.com/xtrap1101/TRENDS-SHEET/app/table"
	"github.com/xtrap1101/TRENDS-SHEET/app/trends"
)

// DefaultJobName is the job built from environment configuration and run by
// the root HTTP trigger.
const DefaultJobName = "default"

const (
	SourceSheet  = "sheet"
	SourceFeed   = "feed"
	SourceStatic = "static"
)

// Job is a fully resolved pipeline configuration.
type Job struct {
	Name          string
	Enabled       bool
	SpreadsheetID string
	InputSheet    string
	OutputSheet   string
	Keywords      KeywordSource
	Query         trends.Query
	Pacing        trends.Pacing
	EmptyColumns  table.EmptyColumnPolicy
	Render        table.RenderOptions
	Interval      time.Duration // 0 means manual runs only
}

type KeywordSource struct {
	Source  string
	FeedURL string
	Max     int
	List    []string
}

// Configuration file types. Pointer fields distinguish "not set" from an
// explicit zero so that environment defaults apply only to omitted keys.

type Config struct {
	Enabled       *bool          `yaml:"enabled"`
	SpreadsheetID string         `yaml:"spreadsheet_id"`
	InputSheet    string         `yaml:"input_sheet"`
	OutputSheet   string         `yaml:"output_sheet"`
	Keywords      KeywordsConfig `yaml:"keywords"`
	Query         QueryConfig    `yaml:"query"`
	Pacing        PacingConfig   `yaml:"pacing"`
	Output        OutputConfig   `yaml:"output"`
	Schedule      ScheduleConfig `yaml:"schedule"`
}

type KeywordsConfig struct {
	Source  string   `yaml:"source"` // sheet, feed, static
	FeedURL string   `yaml:"feed_url"`
	Max     int      `yaml:"max"`
	List    []string `yaml:"list"`
}

type QueryConfig struct {
	Geo       string  `yaml:"geo"`
	Category  *int    `yaml:"category"`
	Timeframe string  `yaml:"timeframe"`
	Property  *string `yaml:"property"` // empty string means web search
}

type PacingConfig struct {
	MinDelay         *time.Duration `yaml:"min_delay"`
	MaxDelay         *time.Duration `yaml:"max_delay"`
	Cooldown         *time.Duration `yaml:"cooldown"`
	Timeout          *time.Duration `yaml:"timeout"`
	RateLimitRetries *int           `yaml:"rate_limit_retries"`
}

type OutputConfig struct {
	EmptyColumns  string  `yaml:"empty_columns"` // omit, include
	DateFormat    string  `yaml:"date_format"`
	DateHeader    string  `yaml:"date_header"`
	MissingMarker *string `yaml:"missing_marker"`
}

type ScheduleConfig struct {
	Interval time.Duration `yaml:"interval"`
}
