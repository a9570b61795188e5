package trends

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrRateLimited marks a provider response carrying a rate-limit signal (HTTP 429).
	ErrRateLimited = errors.New("rate limited by provider")

	// ErrSchema marks a provider payload that does not match the expected shape.
	ErrSchema = errors.New("unexpected response schema")
)

// TimePoint is one interest score of a keyword. HasData is false when the
// provider reported no value for Time.
type TimePoint struct {
	Time    time.Time
	Value   int
	HasData bool
	Partial bool
}

type Series []TimePoint

// HasData reports whether at least one point carries a value.
func (s Series) HasData() bool {
	for _, p := range s {
		if p.HasData {
			return true
		}
	}
	return false
}

type Status string

const (
	StatusSuccess Status = "success"
	StatusEmpty   Status = "empty"
	StatusFailed  Status = "failed"
)

type Reason string

const (
	ReasonNone        Reason = ""
	ReasonRateLimited Reason = "rate_limited"
	ReasonOther       Reason = "other"
)

// Outcome is the result of fetching one keyword. Series is set only for
// StatusSuccess; Reason and Err only for StatusFailed.
type Outcome struct {
	Keyword string
	Status  Status
	Series  Series
	Reason  Reason
	Err     error
}

func Success(keyword string, series Series) Outcome {
	return Outcome{Keyword: keyword, Status: StatusSuccess, Series: series}
}

func Empty(keyword string) Outcome {
	return Outcome{Keyword: keyword, Status: StatusEmpty}
}

func Failed(keyword string, reason Reason, err error) Outcome {
	return Outcome{Keyword: keyword, Status: StatusFailed, Reason: reason, Err: err}
}

// Label is the outcome name used in logs, metrics and run history.
func (o Outcome) Label() string {
	if o.Status == StatusFailed && o.Reason != ReasonNone {
		return string(o.Reason)
	}
	return string(o.Status)
}

// Query scopes a request: region, category, content vertical and window.
type Query struct {
	Geo       string
	Category  int
	Timeframe string
	Property  string
}

// Provider returns the interest-over-time series of a single keyword.
type Provider interface {
	InterestOverTime(ctx context.Context, keyword string, query Query) (Series, error)
}
