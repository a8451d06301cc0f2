// Package errors provides custom error types for domain-specific errors.
package errors

import (
	"errors"
	"fmt"
)

// Standard sentinel errors
var (
	// Configuration errors: raised before any evaluation begins, always
	// fatal to the single note being evaluated, never silently defaulted.
	ErrUnknownProduct              = errors.New("unknown product type")
	ErrInvalidDateRange            = errors.New("invalid date range")
	ErrMissingObservationFrequency = errors.New("missing observation frequency")

	ErrNoteNotFound   = errors.New("note not found")
	ErrTickerNotFound = errors.New("ticker not found")
	ErrDataNotFound   = errors.New("data not found")
	ErrDatabaseError  = errors.New("database error")
	ErrRateLimited    = errors.New("rate limited")
	ErrTimeout        = errors.New("operation timed out")
	ErrConfigInvalid  = errors.New("invalid configuration")
)

// ConfigError represents a note configuration error that prevents
// evaluation of that note. It never aborts other notes in a batch.
type ConfigError struct {
	ISIN    string
	Field   string
	Message string
	Err     error
}

func (e *ConfigError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("config error [%s] %s: %s: %v", e.ISIN, e.Field, e.Message, e.Err)
	}
	return fmt.Sprintf("config error [%s] %s: %s", e.ISIN, e.Field, e.Message)
}

func (e *ConfigError) Unwrap() error {
	return e.Err
}

// NewConfigError creates a new ConfigError.
func NewConfigError(isin, field, message string, err error) *ConfigError {
	return &ConfigError{
		ISIN:    isin,
		Field:   field,
		Message: message,
		Err:     err,
	}
}

// DataError represents a market data retrieval or parsing error.
type DataError struct {
	Ticker  string
	Message string
	Err     error
}

func (e *DataError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("data error [%s]: %s: %v", e.Ticker, e.Message, e.Err)
	}
	return fmt.Sprintf("data error [%s]: %s", e.Ticker, e.Message)
}

func (e *DataError) Unwrap() error {
	return e.Err
}

// NewDataError creates a new DataError.
func NewDataError(ticker, message string, err error) *DataError {
	return &DataError{
		Ticker:  ticker,
		Message: message,
		Err:     err,
	}
}

// StoreError represents a persistence error.
type StoreError struct {
	Operation string
	Err       error
}

func (e *StoreError) Error() string {
	return fmt.Sprintf("store error [%s]: %v", e.Operation, e.Err)
}

func (e *StoreError) Unwrap() error {
	return e.Err
}

// NewStoreError creates a new StoreError.
func NewStoreError(operation string, err error) *StoreError {
	return &StoreError{Operation: operation, Err: err}
}

// ExtractionError represents a termsheet extraction failure.
type ExtractionError struct {
	Stage   string
	Message string
	Err     error
}

func (e *ExtractionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("extraction error [%s]: %s: %v", e.Stage, e.Message, e.Err)
	}
	return fmt.Sprintf("extraction error [%s]: %s", e.Stage, e.Message)
}

func (e *ExtractionError) Unwrap() error {
	return e.Err
}

// NewExtractionError creates a new ExtractionError.
func NewExtractionError(stage, message string, err error) *ExtractionError {
	return &ExtractionError{Stage: stage, Message: message, Err: err}
}

// Wrap wraps an error with additional context.
func Wrap(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// Wrapf wraps an error with formatted context.
func Wrapf(err error, format string, args ...interface{}) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), err)
}

// Is reports whether any error in err's chain matches target.
func Is(err, target error) bool {
	return errors.Is(err, target)
}

// As finds the first error in err's chain that matches target.
func As(err error, target interface{}) bool {
	return errors.As(err, target)
}
