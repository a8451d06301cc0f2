// Package store provides data persistence interfaces and implementations.
package store

import (
	"context"
	"time"

	"notes-tracker/internal/models"
)

// NoteStore defines the interface for note, underlying and snapshot
// persistence. The evaluation engine is the sole writer of the derived
// status fields; callers must treat them as read-only outputs.
type NoteStore interface {
	// Notes
	SaveNote(ctx context.Context, note *models.Note) (int64, error)
	GetNote(ctx context.Context, id int64) (*models.Note, error)
	GetNoteByISIN(ctx context.Context, isin string) (*models.Note, error)
	ListNotes(ctx context.Context, filter NoteFilter) ([]models.Note, error)
	DeleteNote(ctx context.Context, id int64) error
	UpdateDerived(ctx context.Context, id int64, status models.Status, koDate, kiDate *time.Time) error

	// Underlyings
	SaveUnderlyings(ctx context.Context, noteID int64, underlyings []models.Underlying) error
	GetUnderlyings(ctx context.Context, noteID int64) ([]models.Underlying, error)
	UpdateLastClose(ctx context.Context, ticker string, close float64) error
	Tickers(ctx context.Context) ([]string, error)

	// Price snapshots
	SaveSnapshots(ctx context.Context, snapshots []models.PriceSnapshot) error
	GetSnapshots(ctx context.Context, tickers []string, from, to time.Time) (models.SnapshotSet, error)

	// Sync
	GetLastSync(dataType string) time.Time
	SetLastSync(dataType string, t time.Time) error

	// Lifecycle
	Close() error
}

// NoteFilter represents filters for querying notes.
type NoteFilter struct {
	Product  models.ProductType
	Status   models.Status
	Customer string
	Limit    int
}
