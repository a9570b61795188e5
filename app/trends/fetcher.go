package trends

import (
	"context"
	"errors"
	"log/slog"
	"math/rand/v2"
	"time"
)

// Pacing is the request policy of a fetch batch. Every request after the
// first, retries included, is preceded by a delay drawn uniformly from
// [MinDelay, MaxDelay]; a rate-limited request adds Cooldown on top of it.
// Cooldown must not be shorter than MaxDelay.
type Pacing struct {
	MinDelay         time.Duration
	MaxDelay         time.Duration
	Cooldown         time.Duration
	Timeout          time.Duration
	RateLimitRetries int
}

type SleepFunc func(ctx context.Context, d time.Duration) error

// Fetcher queries the provider one keyword at a time. It never runs
// requests concurrently.
type Fetcher struct {
	provider Provider
	query    Query
	pacing   Pacing
	sleep    SleepFunc
	jitter   func(n int64) int64
}

func NewFetcher(provider Provider, query Query, pacing Pacing) *Fetcher {
	return &Fetcher{
		provider: provider,
		query:    query,
		pacing:   pacing,
		sleep:    sleepContext,
		jitter:   rand.Int64N,
	}
}

// FetchAll returns exactly one outcome per keyword, in input order. Failures
// are recorded in the outcome and never abort the batch. Once ctx is done no
// further requests are made and the remaining keywords are marked failed.
func (f *Fetcher) FetchAll(ctx context.Context, keywords []string) []Outcome {
	outcomes := make([]Outcome, 0, len(keywords))

	for i, keyword := range keywords {
		select {
		case <-ctx.Done():
			slog.Warn("Fetch cancelled", "remaining", len(keywords)-i, "error", ctx.Err())
			for _, rest := range keywords[i:] {
				outcomes = append(outcomes, Failed(rest, ReasonOther, ctx.Err()))
			}
			return outcomes
		default:
		}

		slog.Info("Fetching keyword", "keyword", keyword, "position", i+1, "total", len(keywords))
		outcome := f.fetchOne(ctx, keyword)
		outcomes = append(outcomes, outcome)
		logOutcome(outcome)

		if i == len(keywords)-1 {
			break
		}

		delay := f.nextDelay()
		if outcome.Reason == ReasonRateLimited {
			delay += f.pacing.Cooldown
		}
		slog.Debug("Pacing before next keyword", "delay", delay.String())
		if err := f.sleep(ctx, delay); err != nil {
			slog.Debug("Pacing interrupted", "error", err)
		}
	}

	return outcomes
}

func (f *Fetcher) fetchOne(ctx context.Context, keyword string) Outcome {
	for attempt := 0; ; attempt++ {
		series, err := f.request(ctx, keyword)
		outcome := classify(keyword, series, err)
		if outcome.Reason != ReasonRateLimited || attempt >= f.pacing.RateLimitRetries {
			return outcome
		}

		delay := f.nextDelay() + f.pacing.Cooldown
		slog.Warn("Rate limited, retrying after cool-down",
			"keyword", keyword,
			"attempt", attempt+1,
			"delay", delay.String())
		if err := f.sleep(ctx, delay); err != nil {
			return outcome
		}
	}
}

func (f *Fetcher) request(ctx context.Context, keyword string) (Series, error) {
	if f.pacing.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.pacing.Timeout)
		defer cancel()
	}
	return f.provider.InterestOverTime(ctx, keyword, f.query)
}

func (f *Fetcher) nextDelay() time.Duration {
	span := f.pacing.MaxDelay - f.pacing.MinDelay
	if span <= 0 {
		return f.pacing.MinDelay
	}
	return f.pacing.MinDelay + time.Duration(f.jitter(int64(span)+1))
}

func classify(keyword string, series Series, err error) Outcome {
	switch {
	case errors.Is(err, ErrRateLimited):
		return Failed(keyword, ReasonRateLimited, err)
	case err != nil:
		return Failed(keyword, ReasonOther, err)
	case !series.HasData():
		return Empty(keyword)
	default:
		return Success(keyword, series)
	}
}

func logOutcome(o Outcome) {
	switch o.Status {
	case StatusSuccess:
		slog.Info("Keyword data found", "keyword", o.Keyword, "points", len(o.Series))
	case StatusEmpty:
		slog.Info("Keyword has no data", "keyword", o.Keyword)
	default:
		slog.Error("Keyword fetch failed", "keyword", o.Keyword, "reason", o.Reason, "error", o.Err)
	}
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
