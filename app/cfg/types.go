package cfg

import "time"

type Cfg struct {
	// Application configuration
	Port              string
	JobsDir           string
	DBPath            string
	SchedulerInterval int
	DefaultInterval   time.Duration
	RunTimeout        time.Duration
	APIAccessKey      string

	// Google Sheets
	SpreadsheetID   string
	Credentials     string
	CredentialsFile string
	InputSheet      string
	OutputSheet     string

	// Google Trends query
	NIDCookie string
	Geo       string
	Category  int
	Timeframe string
	Property  string
	Language  string
	TZOffset  int

	// Pacing
	MinDelay         time.Duration
	MaxDelay         time.Duration
	Cooldown         time.Duration
	RequestTimeout   time.Duration
	RateLimitRetries int

	// Output table
	EmptyColumns  string
	DateFormat    string
	DateHeader    string
	MissingMarker string

	// Application metadata
	UserAgent string
	Timezone  string
	Debug     bool
	Version   string
}
