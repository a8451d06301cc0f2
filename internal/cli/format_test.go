package cli

import (
	"testing"
	"time"

	"notes-tracker/internal/models"
)

func TestFormatMoney(t *testing.T) {
	tests := []struct {
		amount   float64
		expected string
	}{
		{0, "0.00"},
		{999.5, "999.50"},
		{1000, "1,000.00"},
		{2000000, "2,000,000.00"},
		{1234567.891, "1,234,567.89"},
		{-45000, "-45,000.00"},
	}
	for _, tt := range tests {
		if got := FormatMoney(tt.amount); got != tt.expected {
			t.Errorf("FormatMoney(%v) = %q, expected %q", tt.amount, got, tt.expected)
		}
	}
}

func TestFormatRate(t *testing.T) {
	tests := []struct {
		rate     float64
		expected string
	}{
		{0, "0.00%"},
		{0.065, "6.50%"},
		{0.13, "13.00%"},
		{1, "100.00%"},
	}
	for _, tt := range tests {
		if got := FormatRate(tt.rate); got != tt.expected {
			t.Errorf("FormatRate(%v) = %q, expected %q", tt.rate, got, tt.expected)
		}
	}
}

func TestFormatPrice(t *testing.T) {
	if got := FormatPrice(180.456); got != "180.46" {
		t.Errorf("FormatPrice(180.456) = %q", got)
	}
	if got := FormatPrice(1.23456); got != "1.2346" {
		t.Errorf("FormatPrice(1.23456) = %q", got)
	}
}

func TestFormatDate(t *testing.T) {
	if got := FormatDate(time.Date(2025, 3, 3, 0, 0, 0, 0, time.UTC)); got != "2025-03-03" {
		t.Errorf("FormatDate = %q", got)
	}
	if got := FormatDate(time.Time{}); got != "-" {
		t.Errorf("FormatDate(zero) = %q", got)
	}

	d := time.Date(2025, 7, 10, 0, 0, 0, 0, time.UTC)
	if got := FormatDatePtr(&d); got != "2025-07-10" {
		t.Errorf("FormatDatePtr = %q", got)
	}
	if got := FormatDatePtr(nil); got != "-" {
		t.Errorf("FormatDatePtr(nil) = %q", got)
	}
}

func TestFormatStepDown(t *testing.T) {
	schedule := []models.StepDownBarrier{
		{Period: 1, Level: 100},
		{Period: 2, Level: 98},
		{Period: 3, Level: 96.5},
	}
	if got := FormatStepDown(schedule); got != "1:100.00 2:98.00 3:96.50" {
		t.Errorf("FormatStepDown = %q", got)
	}
	if got := FormatStepDown(nil); got != "-" {
		t.Errorf("FormatStepDown(nil) = %q", got)
	}
}

func TestFormatTickers(t *testing.T) {
	underlyings := []models.Underlying{
		{Ticker: "AAPL"}, {Ticker: "MSFT"}, {Ticker: "NVDA"},
	}
	if got := FormatTickers(underlyings); got != "AAPL/MSFT/NVDA" {
		t.Errorf("FormatTickers = %q", got)
	}
}

func TestTruncateString(t *testing.T) {
	if got := TruncateString("structured note", 10); got != "structu..." {
		t.Errorf("TruncateString = %q", got)
	}
	if got := TruncateString("short", 10); got != "short" {
		t.Errorf("TruncateString = %q", got)
	}
	if got := TruncateString("abcdef", 3); got != "abc" {
		t.Errorf("TruncateString = %q", got)
	}
}

func TestPadding(t *testing.T) {
	if got := PadRight("ab", 5); got != "ab   " {
		t.Errorf("PadRight = %q", got)
	}
	if got := PadLeft("ab", 5); got != "   ab" {
		t.Errorf("PadLeft = %q", got)
	}
	if got := PadRight("abcdef", 3); got != "abcdef" {
		t.Errorf("PadRight should not truncate, got %q", got)
	}
}
