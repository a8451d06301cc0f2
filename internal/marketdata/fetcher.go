package marketdata

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"notes-tracker/internal/logging"
	"notes-tracker/internal/models"
	"notes-tracker/internal/performance"
)

// FetchResult holds the outcome of fetching one ticker. A ticker that
// fails stays absent from the snapshot set; the engine treats its days
// as data gaps.
type FetchResult struct {
	Ticker string
	Bars   int
	Err    error
}

// Fetcher pulls daily closes for a set of tickers, pacing requests so
// the upstream API is called at most once per configured delay.
type Fetcher struct {
	source  Source
	limiter *performance.RateLimiter
	log     zerolog.Logger
}

// NewFetcher creates a paced fetcher around a price source.
func NewFetcher(source Source, delay time.Duration, logger zerolog.Logger) *Fetcher {
	return &Fetcher{
		source:  source,
		limiter: performance.NewDelayLimiter(delay),
		log:     logger,
	}
}

// FetchAll fetches daily closes for every ticker within [from, to].
// Failures are collected per ticker and never abort the remaining
// tickers. The returned snapshot set holds whatever succeeded.
func (f *Fetcher) FetchAll(ctx context.Context, tickers []string, from, to time.Time) (models.SnapshotSet, []FetchResult, error) {
	set := models.NewSnapshotSet()
	results := make([]FetchResult, 0, len(tickers))

	for _, ticker := range tickers {
		if err := f.limiter.Wait(ctx); err != nil {
			return set, results, err
		}

		start := time.Now()
		snaps, err := f.source.DailyCloses(ctx, ticker, from, to)
		elapsed := time.Since(start)
		if err != nil {
			logging.LogFetch(f.log, ticker, 0, elapsed, err)
			results = append(results, FetchResult{Ticker: ticker, Err: err})
			continue
		}

		for _, snap := range snaps {
			set.Add(snap.Ticker, snap.Date, snap.Close)
		}
		logging.LogFetch(f.log, ticker, len(snaps), elapsed, nil)
		results = append(results, FetchResult{Ticker: ticker, Bars: len(snaps)})
	}

	return set, results, nil
}

// Snapshots flattens a snapshot set back into rows for persistence.
func Snapshots(set models.SnapshotSet) []models.PriceSnapshot {
	var out []models.PriceSnapshot
	for ticker, byDate := range set {
		for dateKey, close := range byDate {
			date, err := time.Parse("2006-01-02", dateKey)
			if err != nil {
				continue
			}
			out = append(out, models.PriceSnapshot{Ticker: ticker, Date: date, Close: close})
		}
	}
	return out
}
