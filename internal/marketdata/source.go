// Package marketdata fetches daily closing prices for note underlyings.
package marketdata

import (
	"context"
	"time"

	"notes-tracker/internal/models"
)

// Source provides daily closing prices for a ticker.
type Source interface {
	// DailyCloses returns the daily closes for ticker within [from, to].
	// Days with no trading simply have no entry in the result.
	DailyCloses(ctx context.Context, ticker string, from, to time.Time) ([]models.PriceSnapshot, error)
}
