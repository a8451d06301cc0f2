// Package logging provides structured logging functionality.
package logging

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"gopkg.in/natefinch/lumberjack.v2"
)

// LogConfig holds logging configuration.
type LogConfig struct {
	Level      string
	Console    bool
	File       bool
	FilePath   string
	MaxSize    int // megabytes
	MaxBackups int
	MaxAge     int // days
}

// DefaultLogConfig returns the default logging configuration.
func DefaultLogConfig() LogConfig {
	home, _ := os.UserHomeDir()
	return LogConfig{
		Level:      "info",
		Console:    true,
		File:       true,
		FilePath:   filepath.Join(home, ".config", "notes-tracker", "logs", "notes.log"),
		MaxSize:    50,
		MaxBackups: 7,
		MaxAge:     30,
	}
}

// NewLogger creates a new logger with default configuration.
func NewLogger() zerolog.Logger {
	return NewLoggerWithConfig(DefaultLogConfig())
}

// NewLoggerWithConfig creates a new logger with the specified configuration.
func NewLoggerWithConfig(cfg LogConfig) zerolog.Logger {
	var writers []io.Writer

	// Console writer
	if cfg.Console {
		consoleWriter := zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
			FormatLevel: func(i interface{}) string {
				if ll, ok := i.(string); ok {
					switch ll {
					case "debug":
						return "\033[36mDBG\033[0m"
					case "info":
						return "\033[32mINF\033[0m"
					case "warn":
						return "\033[33mWRN\033[0m"
					case "error":
						return "\033[31mERR\033[0m"
					default:
						return ll
					}
				}
				return "???"
			},
		}
		writers = append(writers, consoleWriter)
	}

	// File writer with rotation
	if cfg.File {
		logDir := filepath.Dir(cfg.FilePath)
		if err := os.MkdirAll(logDir, 0755); err == nil {
			fileWriter := &lumberjack.Logger{
				Filename:   cfg.FilePath,
				MaxSize:    cfg.MaxSize,
				MaxBackups: cfg.MaxBackups,
				MaxAge:     cfg.MaxAge,
				Compress:   true,
			}
			writers = append(writers, fileWriter)
		}
	}

	var writer io.Writer
	if len(writers) == 0 {
		writer = os.Stdout
	} else if len(writers) == 1 {
		writer = writers[0]
	} else {
		writer = zerolog.MultiLevelWriter(writers...)
	}

	level := parseLevel(cfg.Level)
	zerolog.SetGlobalLevel(level)

	logger := zerolog.New(writer).
		With().
		Timestamp().
		Caller().
		Logger()

	return logger
}

func parseLevel(level string) zerolog.Level {
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	default:
		return zerolog.InfoLevel
	}
}

// SetDebugLevel sets the global log level to debug.
func SetDebugLevel() {
	zerolog.SetGlobalLevel(zerolog.DebugLevel)
}

// SetInfoLevel sets the global log level to info.
func SetInfoLevel() {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
}

// ContextKey is the type for context keys.
type ContextKey string

const (
	// LoggerKey is the context key for the logger.
	LoggerKey ContextKey = "logger"
)

// WithLogger adds a logger to the context.
func WithLogger(ctx context.Context, logger zerolog.Logger) context.Context {
	return context.WithValue(ctx, LoggerKey, logger)
}

// FromContext retrieves the logger from context.
func FromContext(ctx context.Context) zerolog.Logger {
	if logger, ok := ctx.Value(LoggerKey).(zerolog.Logger); ok {
		return logger
	}
	return zerolog.Nop()
}

// WithNote adds note identifiers to the logger context.
func WithNote(logger zerolog.Logger, noteID int64, isin string) zerolog.Logger {
	return logger.With().Int64("note_id", noteID).Str("isin", isin).Logger()
}

// WithTicker adds a ticker to the logger context.
func WithTicker(logger zerolog.Logger, ticker string) zerolog.Logger {
	return logger.With().Str("ticker", ticker).Logger()
}

// LogBarrierEvent logs a recorded knock-out or knock-in event.
func LogBarrierEvent(logger zerolog.Logger, isin, kind string, date time.Time, ticker string) {
	logger.Info().
		Str("event", "barrier").
		Str("isin", isin).
		Str("kind", kind).
		Str("date", date.Format("2006-01-02")).
		Str("ticker", ticker).
		Msg("Barrier event recorded")
}

// LogStatusChange logs a lifecycle status transition.
func LogStatusChange(logger zerolog.Logger, isin, from, to string) {
	logger.Info().
		Str("event", "status").
		Str("isin", isin).
		Str("from", from).
		Str("to", to).
		Msg("Note status changed")
}

// LogCouponPayment logs a paid coupon period.
func LogCouponPayment(logger zerolog.Logger, isin string, period int, rate, amount float64) {
	logger.Info().
		Str("event", "coupon").
		Str("isin", isin).
		Int("period", period).
		Float64("rate", rate).
		Float64("amount", amount).
		Msg("Coupon payable")
}

// LogDataGap logs a skipped barrier check due to a missing snapshot.
// Data gaps are an observability signal, not a failure.
func LogDataGap(logger zerolog.Logger, isin, ticker string, date time.Time, check string) {
	logger.Debug().
		Str("event", "data_gap").
		Str("isin", isin).
		Str("ticker", ticker).
		Str("date", date.Format("2006-01-02")).
		Str("check", check).
		Msg("Missing snapshot, check skipped")
}

// LogFetch logs a price retrieval call.
func LogFetch(logger zerolog.Logger, ticker string, count int, duration time.Duration, err error) {
	event := logger.Debug().
		Str("event", "fetch").
		Str("ticker", ticker).
		Int("snapshots", count).
		Dur("duration", duration)

	if err != nil {
		event.Err(err).Msg("Price fetch failed")
	} else {
		event.Msg("Price fetch completed")
	}
}
