package models

import (
	"time"
)

// StepDownBarrier is one entry of a step-down KO schedule: an absolute
// barrier level that applies during the given 1-based observation period.
type StepDownBarrier struct {
	Period int
	Level  float64
}

// Note is a structured note contract. Contract fields are immutable once
// monitoring begins; only the derived fields (Status, KOEventDate,
// KIEventDate) change afterwards, and only the engine writes them.
type Note struct {
	ID           int64
	CustomerName string
	ISIN         string
	Product      ProductType
	Notional     float64

	TradeDate        time.Time
	IssueDate        time.Time
	ObservationStart time.Time
	FinalValuation   time.Time

	// CouponRate is the per-annum coupon rate as a decimal (0.12 = 12%).
	CouponRate float64
	// CouponDates are the declared coupon payment dates, ascending.
	CouponDates []time.Time
	// CouponBarrier is the coupon barrier level; 0 means no barrier is
	// declared and the coupon is unconditional (FCN family).
	CouponBarrier float64

	KOType KOType
	// ObservationFrequency gates period-end KO monitoring. Required when
	// KOType is Period-End, ignored for daily monitoring.
	ObservationFrequency Frequency
	KIType               KIType

	// StepDownKO is an ordered (period, level) schedule for products whose
	// KO barrier decreases over time. Empty for flat-barrier products.
	StepDownKO []StepDownBarrier
	// MemoryRates are cumulative coupon rates per period for memory-coupon
	// products (e.g. 0.0167, 0.0333, 0.05 for 1.67% per period).
	MemoryRates []float64

	// Derived fields. Engine-owned: callers must treat these as read-only.
	Status      Status
	KOEventDate *time.Time
	KIEventDate *time.Time
}

// Underlying is one of the note's reference assets. Order is significant
// for display only; barrier evaluation is order-independent.
type Underlying struct {
	NoteID int64
	Seq    int
	Ticker string
	// SpotPrice is the initial reference price used for performance ratios.
	SpotPrice float64
	// KOPrice and KIPrice are absolute barrier levels; 0 means no barrier
	// is defined for this underlying.
	KOPrice float64
	KIPrice float64
	// StrikePrice is the conversion strike used by the terminal
	// worst-performer test; 0 means the note cannot convert.
	StrikePrice float64
	// LastClose is the most recent observed closing price, refreshed by
	// the price fetcher. Display-only; evaluation reads snapshots.
	LastClose float64
}

// CouponPeriod is one coupon interval ending on a declared payment date.
type CouponPeriod struct {
	Index int // 1-based
	Start time.Time
	End   time.Time

	// Evaluated is false for periods after a knock-out (note redeemed
	// early) and for periods that have not yet ended as of evaluation.
	Evaluated bool
	// BarrierMet reports whether the coupon barrier condition held at the
	// period end. Always true for notes without a declared coupon barrier.
	BarrierMet bool

	// ScheduledRate is the period's own coupon rate.
	ScheduledRate float64
	// PaidRate is what the period actually pays: the own rate plus any
	// carried deferred amount under a memory coupon strategy.
	PaidRate float64
	// DeferredRate is the unpaid amount carried forward out of this
	// period for the next satisfied period to pick up.
	DeferredRate float64
	// PaidAmount is PaidRate applied to the note's notional.
	PaidAmount float64
}
