package marketdata

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/rs/zerolog"

	apperrors "notes-tracker/internal/errors"
	"notes-tracker/internal/models"
	"notes-tracker/pkg/utils"
)

const yahooChartURL = "https://query1.finance.yahoo.com/v8/finance/chart/"

// YahooSource fetches daily closes from the Yahoo Finance chart API.
type YahooSource struct {
	client  *http.Client
	baseURL string
	retry   utils.RetryConfig
	log     zerolog.Logger
}

// NewYahooSource creates a Yahoo Finance price source.
func NewYahooSource(logger zerolog.Logger) *YahooSource {
	return &YahooSource{
		client: &http.Client{
			Timeout: 15 * time.Second,
		},
		baseURL: yahooChartURL,
		retry:   utils.DefaultRetryConfig(),
		log:     logger,
	}
}

// SetBaseURL overrides the API base URL. Used by tests.
func (y *YahooSource) SetBaseURL(base string) {
	y.baseURL = base
}

type chartResponse struct {
	Chart struct {
		Result []struct {
			Timestamp  []int64 `json:"timestamp"`
			Indicators struct {
				Quote []struct {
					Close []*float64 `json:"close"`
				} `json:"quote"`
			} `json:"indicators"`
		} `json:"result"`
		Error *struct {
			Code        string `json:"code"`
			Description string `json:"description"`
		} `json:"error"`
	} `json:"chart"`
}

// DailyCloses fetches daily closing prices for ticker within [from, to].
func (y *YahooSource) DailyCloses(ctx context.Context, ticker string, from, to time.Time) ([]models.PriceSnapshot, error) {
	// period2 is exclusive in the chart API, so push it past end of day
	params := url.Values{}
	params.Set("period1", fmt.Sprintf("%d", from.UTC().Truncate(24*time.Hour).Unix()))
	params.Set("period2", fmt.Sprintf("%d", to.UTC().Truncate(24*time.Hour).Add(24*time.Hour).Unix()))
	params.Set("interval", "1d")
	params.Set("events", "history")

	reqURL := y.baseURL + url.PathEscape(ticker) + "?" + params.Encode()

	body, err := utils.RetryWithResult(ctx, y.retry, func() ([]byte, error) {
		return y.get(ctx, reqURL)
	})
	if err != nil {
		return nil, apperrors.NewDataError(ticker, "fetching daily closes", err)
	}

	var parsed chartResponse
	if err := json.Unmarshal(body, &parsed); err != nil {
		return nil, apperrors.NewDataError(ticker, "decoding chart response", err)
	}
	if parsed.Chart.Error != nil {
		return nil, apperrors.NewDataError(ticker,
			fmt.Sprintf("chart API error: %s (%s)", parsed.Chart.Error.Description, parsed.Chart.Error.Code), nil)
	}
	if len(parsed.Chart.Result) == 0 || len(parsed.Chart.Result[0].Indicators.Quote) == 0 {
		return nil, apperrors.NewDataError(ticker, "empty chart response", apperrors.ErrDataNotFound)
	}

	result := parsed.Chart.Result[0]
	closes := result.Indicators.Quote[0].Close

	snapshots := make([]models.PriceSnapshot, 0, len(result.Timestamp))
	for i, ts := range result.Timestamp {
		if i >= len(closes) || closes[i] == nil {
			// holiday or halted session, not an error
			continue
		}
		date := time.Unix(ts, 0).UTC()
		if date.Before(from.UTC().Truncate(24*time.Hour)) || date.After(to) && !models.SameDay(date, to) {
			continue
		}
		snapshots = append(snapshots, models.PriceSnapshot{
			Ticker: ticker,
			Date:   date,
			Close:  *closes[i],
		})
	}

	y.log.Debug().
		Str("ticker", ticker).
		Int("bars", len(snapshots)).
		Msg("fetched daily closes")

	return snapshots, nil
}

func (y *YahooSource) get(ctx context.Context, reqURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "notes-tracker/1.0")

	resp, err := y.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return nil, apperrors.ErrRateLimited
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	return io.ReadAll(resp.Body)
}
