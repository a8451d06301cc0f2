// Package cli provides the command-line interface for the notes tracker.
package cli

import (
	"fmt"
	"strings"
	"time"

	"notes-tracker/internal/models"
	"notes-tracker/pkg/utils"
)

// FormatMoney formats an amount with thousands separators.
func FormatMoney(amount float64) string {
	return utils.FormatMoney(amount)
}

// FormatRate formats a fractional rate as a percentage, e.g. 0.065 -> "6.50%".
func FormatRate(rate float64) string {
	return utils.FormatPercent(rate)
}

// FormatPrice formats a price with appropriate decimal places.
func FormatPrice(price float64) string {
	if price >= 10 {
		return fmt.Sprintf("%.2f", price)
	}
	return fmt.Sprintf("%.4f", price)
}

// FormatDate formats a date, or "-" for the zero value.
func FormatDate(t time.Time) string {
	return utils.FormatDate(t)
}

// FormatDatePtr formats an optional date, or "-" when absent.
func FormatDatePtr(t *time.Time) string {
	return utils.FormatDatePtr(t)
}

// FormatStepDown renders a step-down schedule as "1:100.00 2:98.00".
func FormatStepDown(schedule []models.StepDownBarrier) string {
	if len(schedule) == 0 {
		return "-"
	}
	parts := make([]string, 0, len(schedule))
	for _, e := range schedule {
		parts = append(parts, fmt.Sprintf("%d:%.2f", e.Period, e.Level))
	}
	return strings.Join(parts, " ")
}

// FormatTickers joins underlying tickers for display.
func FormatTickers(underlyings []models.Underlying) string {
	parts := make([]string, 0, len(underlyings))
	for _, u := range underlyings {
		parts = append(parts, u.Ticker)
	}
	return strings.Join(parts, "/")
}

// TruncateString truncates a string to max length with ellipsis.
func TruncateString(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	if maxLen <= 3 {
		return s[:maxLen]
	}
	return s[:maxLen-3] + "..."
}

// PadRight pads a string to the right.
func PadRight(s string, length int) string {
	if len(s) >= length {
		return s
	}
	return s + strings.Repeat(" ", length-len(s))
}

// PadLeft pads a string to the left.
func PadLeft(s string, length int) string {
	if len(s) >= length {
		return s
	}
	return strings.Repeat(" ", length-len(s)) + s
}
