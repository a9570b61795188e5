package cfg

import (
	"cmp"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/jessevdk/go-flags"
)

// Version is set at build time via -ldflags
var Version = "dev"

// ErrMissingConfig is returned when a value required to start a run is absent.
var ErrMissingConfig = errors.New("missing required configuration")

func GetVersion() string {
	return cmp.Or(Version, "unknown")
}

type rawCfg struct {
	// Application configuration
	Port              string        `long:"port" env:"PORT" default:"8080" description:"HTTP server port"`
	JobsDir           string        `long:"jobs-dir" env:"JOBS_DIR" default:"./jobs" description:"Directory containing job configuration files"`
	DBPath            string        `long:"db-path" env:"DB_PATH" default:"file::memory:?cache=shared" description:"SQLite database for run history (in-memory by default)"`
	SchedulerInterval int           `long:"scheduler-interval" env:"SCHEDULER_INTERVAL" default:"0" description:"Scheduler tick in seconds, 0 disables scheduled runs"`
	DefaultInterval   time.Duration `long:"default-interval" env:"DEFAULT_JOB_INTERVAL" default:"0s" description:"Schedule interval of the default job, 0 means manual runs only"`
	RunTimeout        time.Duration `long:"run-timeout" env:"RUN_TIMEOUT" default:"1h" description:"Upper bound of a single pipeline run"`
	APIAccessKey      string        `long:"api-key" env:"API_ACCESS_KEY" description:"API access key for authentication (optional)"`

	// Google Sheets
	SpreadsheetID   string `long:"spreadsheet-id" env:"SPREADSHEET_ID" description:"Target spreadsheet ID (required to run)"`
	Credentials     string `long:"credentials" env:"GCP_CREDENTIALS" description:"Service account JSON (required to run unless --credentials-file is set)"`
	CredentialsFile string `long:"credentials-file" env:"GCP_CREDENTIALS_FILE" description:"Path to a service account JSON file"`
	InputSheet      string `long:"input-sheet" env:"INPUT_SHEET" default:"KEY" description:"Sheet holding the keyword list in column A"`
	OutputSheet     string `long:"output-sheet" env:"OUTPUT_SHEET" default:"Trends_Data" description:"Sheet the result table is written to"`

	// Google Trends query
	NIDCookie string `long:"nid-cookie" env:"NID_COOKIE" description:"Google NID session cookie value"`
	Geo       string `long:"geo" env:"TRENDS_GEO" default:"VN" description:"Region code"`
	Category  int    `long:"category" env:"TRENDS_CATEGORY" default:"0" description:"Category ID, 0 means all"`
	Timeframe string `long:"timeframe" env:"TRENDS_TIMEFRAME" default:"today 3-m" description:"Trailing time window"`
	Property  string `long:"property" env:"TRENDS_PROPERTY" default:"youtube" description:"Content vertical (empty for web search)"`
	Language  string `long:"language" env:"TRENDS_LANGUAGE" default:"vi-VN" description:"Host language sent as hl"`
	TZOffset  int    `long:"tz-offset" env:"TRENDS_TZ" default:"420" description:"Timezone offset in minutes sent as tz"`

	// Pacing
	MinDelay         time.Duration `long:"min-delay" env:"MIN_DELAY" default:"2s" description:"Lower bound of the delay between keywords"`
	MaxDelay         time.Duration `long:"max-delay" env:"MAX_DELAY" default:"8s" description:"Upper bound of the delay between keywords"`
	Cooldown         time.Duration `long:"cooldown" env:"COOLDOWN" default:"60s" description:"Extra delay after a rate-limited request"`
	RequestTimeout   time.Duration `long:"request-timeout" env:"REQUEST_TIMEOUT" default:"30s" description:"Timeout of a single provider request"`
	RateLimitRetries int           `long:"rate-limit-retries" env:"RATE_LIMIT_RETRIES" default:"0" description:"Re-queries of a rate-limited keyword after the cool-down"`

	// Output table
	EmptyColumns  string `long:"empty-columns" env:"EMPTY_COLUMNS" default:"omit" choice:"omit" choice:"include" description:"Whether keywords without data get an empty column"`
	DateFormat    string `long:"date-format" env:"DATE_FORMAT" default:"02/01/06" description:"Go time layout of the date column"`
	DateHeader    string `long:"date-header" env:"DATE_HEADER" default:"Date" description:"Header of the date column"`
	MissingMarker string `long:"missing-marker" env:"MISSING_MARKER" description:"Cell value for dates without data"`

	// Application metadata
	UserAgent string `long:"user-agent" env:"USER_AGENT" default:"Mozilla/5.0 (compatible; TrendsSheet/1.0)" description:"User agent string for HTTP requests"`
	Timezone  string `long:"timezone" env:"TZ" default:"UTC" description:"Timezone for timestamps (e.g., UTC, Asia/Ho_Chi_Minh)"`
	Debug     bool   `long:"debug" env:"DEBUG" description:"Enable debug logging"`
}

var globalCfg *Cfg

func Load() (*Cfg, error) {
	return LoadArgs(os.Args[1:])
}

func LoadArgs(args []string) (*Cfg, error) {
	var raw rawCfg

	parser := flags.NewParser(&raw, flags.Default)

	if _, err := parser.ParseArgs(args); err != nil {
		if flagsErr, ok := err.(*flags.Error); ok {
			if flagsErr.Type == flags.ErrHelp {
				return nil, nil
			}
		}
		return nil, fmt.Errorf("failed to parse configuration: %w", err)
	}

	cfg := &Cfg{
		Port:              raw.Port,
		JobsDir:           raw.JobsDir,
		DBPath:            raw.DBPath,
		SchedulerInterval: raw.SchedulerInterval,
		DefaultInterval:   raw.DefaultInterval,
		RunTimeout:        raw.RunTimeout,
		APIAccessKey:      raw.APIAccessKey,
		SpreadsheetID:     raw.SpreadsheetID,
		Credentials:       raw.Credentials,
		CredentialsFile:   raw.CredentialsFile,
		InputSheet:        raw.InputSheet,
		OutputSheet:       raw.OutputSheet,
		NIDCookie:         raw.NIDCookie,
		Geo:               raw.Geo,
		Category:          raw.Category,
		Timeframe:         raw.Timeframe,
		Property:          raw.Property,
		Language:          raw.Language,
		TZOffset:          raw.TZOffset,
		MinDelay:          raw.MinDelay,
		MaxDelay:          raw.MaxDelay,
		Cooldown:          raw.Cooldown,
		RequestTimeout:    raw.RequestTimeout,
		RateLimitRetries:  raw.RateLimitRetries,
		EmptyColumns:      raw.EmptyColumns,
		DateFormat:        raw.DateFormat,
		DateHeader:        raw.DateHeader,
		MissingMarker:     raw.MissingMarker,
		UserAgent:         raw.UserAgent,
		Timezone:          raw.Timezone,
		Debug:             raw.Debug,
		Version:           GetVersion(),
	}

	if cfg.MaxDelay < cfg.MinDelay {
		return nil, fmt.Errorf("max delay %s is shorter than min delay %s", cfg.MaxDelay, cfg.MinDelay)
	}

	if cfg.Cooldown < cfg.MaxDelay {
		return nil, fmt.Errorf("cooldown %s is shorter than max delay %s", cfg.Cooldown, cfg.MaxDelay)
	}

	if err := applyTimezone(cfg.Timezone); err != nil {
		fmt.Printf("Warning: Invalid timezone '%s', using system default: %v\n", cfg.Timezone, err)
	}

	globalCfg = cfg

	return cfg, nil
}

func Get() *Cfg {
	if globalCfg == nil {
		panic("configuration not loaded - call cfg.Load() first")
	}
	return globalCfg
}

// CredentialsJSON returns the service account key, preferring the inline
// value over the file.
func (c *Cfg) CredentialsJSON() ([]byte, error) {
	if c.Credentials != "" {
		return []byte(c.Credentials), nil
	}
	if c.CredentialsFile == "" {
		return nil, fmt.Errorf("%w: GCP_CREDENTIALS", ErrMissingConfig)
	}
	data, err := os.ReadFile(c.CredentialsFile)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to read credentials file: %v", ErrMissingConfig, err)
	}
	return data, nil
}

// MissingKeys lists the required settings that are not set.
func (c *Cfg) MissingKeys() []string {
	var missing []string
	if c.SpreadsheetID == "" {
		missing = append(missing, "SPREADSHEET_ID")
	}
	if c.Credentials == "" && c.CredentialsFile == "" {
		missing = append(missing, "GCP_CREDENTIALS")
	}
	return missing
}

func applyTimezone(timezone string) error {
	if timezone != "" {
		if loc, err := time.LoadLocation(timezone); err != nil {
			return err
		} else {
			time.Local = loc
			fmt.Printf("Timezone configured: %s\n", timezone)
		}
	}
	return nil
}

// Validate reports ErrMissingConfig naming every absent required setting.
func (c *Cfg) Validate() error {
	if missing := c.MissingKeys(); len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingConfig, strings.Join(missing, ", "))
	}
	return nil
}
