// Package models provides domain models for the structured notes tracker.
package models

import (
	"time"
)

// ProductType identifies one of the supported structured note products.
type ProductType string

const (
	ProductFCN     ProductType = "FCN"
	ProductWOFCN   ProductType = "WOFCN"
	ProductACCU    ProductType = "ACCU"
	ProductDECU    ProductType = "DECU"
	ProductPhoenix ProductType = "Phoenix"
	ProductDCN     ProductType = "DCN"
	ProductWOBEN   ProductType = "WOBEN"
	ProductTwinWin ProductType = "TWINWIN"
)

// KOType determines how often the knock-out barrier is observed.
type KOType string

const (
	KODaily     KOType = "Daily"      // every calendar day in the observation window
	KOPeriodEnd KOType = "Period-End" // only on period boundaries at ObservationFrequency
)

// KIType determines how often the knock-in barrier is observed.
type KIType string

const (
	KIDaily    KIType = "Daily" // every calendar day in the observation window
	KIEuropean KIType = "EKI"   // only on the final valuation date
)

// Frequency represents an observation or payment frequency.
type Frequency string

const (
	FreqDaily      Frequency = "Daily"
	FreqWeekly     Frequency = "Weekly"
	FreqMonthly    Frequency = "Monthly"
	FreqQuarterly  Frequency = "Quarterly"
	FreqSemiAnnual Frequency = "Semi-Annually"
)

// Status represents the lifecycle status of a note.
type Status string

const (
	StatusNotYetObserved Status = "Not Observed Yet"
	StatusAlive          Status = "Alive"
	StatusKnockedOut     Status = "Knocked Out"
	StatusKnockedIn      Status = "Knocked In"
	StatusMatured        Status = "Matured"
	StatusConverted      Status = "Converted"
)

// Terminal reports whether the status ends barrier monitoring for good.
// Knocked In is not terminal: KO monitoring continues after a KI.
func (s Status) Terminal() bool {
	switch s {
	case StatusKnockedOut, StatusMatured, StatusConverted:
		return true
	}
	return false
}

// EventKind is the kind of a barrier event.
type EventKind string

const (
	EventKnockOut EventKind = "KO"
	EventKnockIn  EventKind = "KI"
)

// BarrierEvent records a knock-out or knock-in occurrence.
// At most one event of each kind exists per note; the first occurrence wins.
type BarrierEvent struct {
	Kind EventKind
	Date time.Time
	// ObservationDate is the schedule date whose check produced the event.
	// Under period-end monitoring this is the period boundary that was
	// evaluated; under daily monitoring it equals Date.
	ObservationDate time.Time
	// Ticker is the underlying that triggered the event, when the rule
	// attributes it to a single underlying (any-underlying KI, worst
	// performer checks). Empty for all-underlyings KO.
	Ticker string
}

// EvaluationResult is the outcome of a barrier evaluation: the derived
// lifecycle status plus the recorded events, if any.
type EvaluationResult struct {
	Status  Status
	KOEvent *BarrierEvent
	KIEvent *BarrierEvent
}

// DateKey formats a date as the canonical snapshot key (YYYY-MM-DD).
func DateKey(t time.Time) string {
	return t.Format("2006-01-02")
}

// SameDay reports whether two timestamps fall on the same calendar day.
func SameDay(a, b time.Time) bool {
	return a.Year() == b.Year() && a.Month() == b.Month() && a.Day() == b.Day()
}

// PriceSnapshot is an immutable (ticker, date, close) observation.
type PriceSnapshot struct {
	Ticker string
	Date   time.Time
	Close  float64
}

// SnapshotSet holds closing prices keyed by ticker and date. Missing keys
// mean "no data for that day", never an error.
type SnapshotSet map[string]map[string]float64

// NewSnapshotSet returns an empty snapshot set.
func NewSnapshotSet() SnapshotSet {
	return make(SnapshotSet)
}

// Add records a closing price for a ticker on a date.
func (s SnapshotSet) Add(ticker string, date time.Time, close float64) {
	byDate, ok := s[ticker]
	if !ok {
		byDate = make(map[string]float64)
		s[ticker] = byDate
	}
	byDate[DateKey(date)] = close
}

// Price returns the closing price for a ticker on a date, if present.
func (s SnapshotSet) Price(ticker string, date time.Time) (float64, bool) {
	byDate, ok := s[ticker]
	if !ok {
		return 0, false
	}
	px, ok := byDate[DateKey(date)]
	return px, ok
}

// Len returns the total number of (ticker, date) observations.
func (s SnapshotSet) Len() int {
	n := 0
	for _, byDate := range s {
		n += len(byDate)
	}
	return n
}

// Merge copies all observations from other into s.
func (s SnapshotSet) Merge(other SnapshotSet) {
	for ticker, byDate := range other {
		dst, ok := s[ticker]
		if !ok {
			dst = make(map[string]float64, len(byDate))
			s[ticker] = dst
		}
		for k, v := range byDate {
			dst[k] = v
		}
	}
}
