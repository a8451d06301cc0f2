package engine

import (
	"math"
	"testing"
	"time"

	"notes-tracker/internal/models"
)

func approx(a, b float64) bool {
	return math.Abs(a-b) < 1e-9
}

func memoryNote() *models.Note {
	return &models.Note{
		ID:               2,
		ISIN:             "XS0000000002",
		Product:          models.ProductPhoenix,
		Notional:         1000000,
		TradeDate:        date(2025, 1, 1),
		IssueDate:        date(2025, 1, 1),
		ObservationStart: date(2025, 1, 1),
		FinalValuation:   date(2025, 12, 31),
		CouponBarrier:    70,
		MemoryRates:      []float64{0.02, 0.04, 0.06},
		CouponDates: []time.Time{
			date(2025, 2, 1), date(2025, 3, 1), date(2025, 4, 1),
		},
	}
}

func singleUnderlying() []models.Underlying {
	return []models.Underlying{
		{Seq: 1, Ticker: "AAA", SpotPrice: 100, KOPrice: 110, KIPrice: 50, StrikePrice: 75},
	}
}

// Two missed periods carry forward under memory; the third satisfied
// period pays the full cumulative 6%.
func TestAccrueCoupons_MemoryCarryForward(t *testing.T) {
	e := testEngine()
	note := memoryNote()

	snaps := snapsFor(map[string]map[string]float64{
		"AAA": {"2025-02-01": 65, "2025-03-01": 68, "2025-04-01": 75},
	})

	periods, err := e.AccrueCoupons(note, singleUnderlying(), snaps, nil, date(2025, 5, 1))
	if err != nil {
		t.Fatalf("AccrueCoupons failed: %v", err)
	}
	if len(periods) != 3 {
		t.Fatalf("Expected 3 periods, got %d", len(periods))
	}

	if periods[0].BarrierMet || !approx(periods[0].PaidRate, 0) || !approx(periods[0].DeferredRate, 0.02) {
		t.Errorf("Period 1: expected miss with 2%% deferred, got %+v", periods[0])
	}
	if periods[1].BarrierMet || !approx(periods[1].PaidRate, 0) || !approx(periods[1].DeferredRate, 0.04) {
		t.Errorf("Period 2: expected miss with 4%% deferred, got %+v", periods[1])
	}
	if !periods[2].BarrierMet || !approx(periods[2].PaidRate, 0.06) {
		t.Errorf("Period 3: expected 6%% paid (own 2%% + 4%% deferred), got %+v", periods[2])
	}
	if !approx(periods[2].DeferredRate, 0) {
		t.Errorf("Deferred carry should clear after payment, got %v", periods[2].DeferredRate)
	}
	if !approx(periods[2].PaidAmount, 0.06*note.Notional) {
		t.Errorf("Paid amount: expected %v, got %v", 0.06*note.Notional, periods[2].PaidAmount)
	}
	if !approx(TotalPaid(periods), 0.06*note.Notional) {
		t.Errorf("Total paid: expected %v, got %v", 0.06*note.Notional, TotalPaid(periods))
	}
}

// Periods ending after a knock-out are not evaluated and pay nothing.
func TestAccrueCoupons_KnockOutGatesLaterPeriods(t *testing.T) {
	e := testEngine()
	note := memoryNote()

	snaps := snapsFor(map[string]map[string]float64{
		"AAA": {"2025-02-01": 75, "2025-03-01": 75, "2025-04-01": 75},
	})

	koEvent := &models.BarrierEvent{Kind: models.EventKnockOut, Date: date(2025, 3, 10)}
	periods, err := e.AccrueCoupons(note, singleUnderlying(), snaps, koEvent, date(2025, 5, 1))
	if err != nil {
		t.Fatalf("AccrueCoupons failed: %v", err)
	}

	if !periods[0].Evaluated || !periods[0].BarrierMet {
		t.Errorf("Period 1 ends before the knock-out and should pay, got %+v", periods[0])
	}
	if !periods[1].Evaluated || !periods[1].BarrierMet {
		t.Errorf("Period 2 ends before the knock-out and should pay, got %+v", periods[1])
	}
	if periods[2].Evaluated {
		t.Errorf("Period 3 ends after the knock-out and must not be evaluated")
	}
	if !approx(periods[2].PaidAmount, 0) {
		t.Errorf("Period 3 must pay nothing after the knock-out, got %v", periods[2].PaidAmount)
	}
}

// Pending deferred carry at knock-out is forfeited under the default
// policy and paid with the last evaluated period under pay-at-KO.
func TestAccrueCoupons_DeferredPolicyAtKnockOut(t *testing.T) {
	note := memoryNote()
	snaps := snapsFor(map[string]map[string]float64{
		// Period 1 misses (65 < 70), period 2 misses (68 < 70).
		"AAA": {"2025-02-01": 65, "2025-03-01": 68},
	})
	koEvent := &models.BarrierEvent{Kind: models.EventKnockOut, Date: date(2025, 3, 1)}

	e := testEngine()
	periods, err := e.AccrueCoupons(note, singleUnderlying(), snaps, koEvent, date(2025, 5, 1))
	if err != nil {
		t.Fatalf("AccrueCoupons failed: %v", err)
	}
	if !approx(TotalPaid(periods), 0) {
		t.Errorf("Forfeit policy must pay nothing, got %v", TotalPaid(periods))
	}

	e.DeferredPolicy = DeferredPayAtKnockOut
	periods, err = e.AccrueCoupons(note, singleUnderlying(), snaps, koEvent, date(2025, 5, 1))
	if err != nil {
		t.Fatalf("AccrueCoupons failed: %v", err)
	}
	if !approx(TotalPaid(periods), 0.04*note.Notional) {
		t.Errorf("Pay-at-KO policy should pay the 4%% carry, got %v", TotalPaid(periods))
	}
	if !approx(periods[1].PaidRate, 0.04) {
		t.Errorf("Carry should land on the last evaluated period, got %+v", periods[1])
	}
}

// Notes without a coupon barrier pay unconditionally at the per-annum
// rate accrued over the period's day count.
func TestAccrueCoupons_UnconditionalFCN(t *testing.T) {
	e := testEngine()
	note := fcnNote()
	note.CouponRate = 0.12
	note.CouponDates = []time.Time{date(2025, 4, 1), date(2025, 7, 1)}

	periods, err := e.AccrueCoupons(note, twoUnderlyings(), models.NewSnapshotSet(), nil, date(2025, 8, 1))
	if err != nil {
		t.Fatalf("AccrueCoupons failed: %v", err)
	}
	if len(periods) != 2 {
		t.Fatalf("Expected 2 periods, got %d", len(periods))
	}

	// Jan 1 to Apr 1 is 90 days in 2025.
	want := 0.12 * 90 / 365
	if !periods[0].BarrierMet || !approx(periods[0].PaidRate, want) {
		t.Errorf("Period 1: expected unconditional rate %v, got %+v", want, periods[0])
	}

	// Apr 1 to Jul 1 is 91 days.
	want = 0.12 * 91 / 365
	if !approx(periods[1].PaidRate, want) {
		t.Errorf("Period 2: expected rate %v, got %v", want, periods[1].PaidRate)
	}
}

// Periods ending after the evaluation date stay pending.
func TestAccrueCoupons_PendingPeriods(t *testing.T) {
	e := testEngine()
	note := memoryNote()

	snaps := snapsFor(map[string]map[string]float64{
		"AAA": {"2025-02-01": 75},
	})

	periods, err := e.AccrueCoupons(note, singleUnderlying(), snaps, nil, date(2025, 2, 15))
	if err != nil {
		t.Fatalf("AccrueCoupons failed: %v", err)
	}
	if !periods[0].Evaluated {
		t.Errorf("Period ending 2025-02-01 should be evaluated by 2025-02-15")
	}
	if periods[1].Evaluated || periods[2].Evaluated {
		t.Errorf("Periods ending after the evaluation date must stay pending")
	}
}

// Missing period-end data means the coupon barrier cannot be confirmed:
// the period is evaluated but unpaid (and carried under memory).
func TestAccrueCoupons_DataGapMissesBarrier(t *testing.T) {
	e := testEngine()
	note := memoryNote()

	snaps := snapsFor(map[string]map[string]float64{
		"AAA": {"2025-03-01": 75, "2025-04-01": 75},
	})

	periods, err := e.AccrueCoupons(note, singleUnderlying(), snaps, nil, date(2025, 5, 1))
	if err != nil {
		t.Fatalf("Data gaps must not produce errors, got %v", err)
	}
	if periods[0].BarrierMet {
		t.Errorf("Barrier cannot be met without period-end data")
	}
	// Period 2 picks up period 1's carried 2%.
	if !approx(periods[1].PaidRate, 0.04) {
		t.Errorf("Period 2 should pay own 2%% plus carried 2%%, got %v", periods[1].PaidRate)
	}
}

// A memory schedule shorter than the coupon schedule holds its last
// per-period step flat.
func TestAccrueCoupons_MemoryRatesHeldFlat(t *testing.T) {
	e := testEngine()
	note := memoryNote()
	note.MemoryRates = []float64{0.02, 0.04}
	note.CouponDates = append(note.CouponDates, date(2025, 5, 1))

	snaps := snapsFor(map[string]map[string]float64{
		"AAA": {"2025-02-01": 75, "2025-03-01": 75, "2025-04-01": 75, "2025-05-01": 75},
	})

	periods, err := e.AccrueCoupons(note, singleUnderlying(), snaps, nil, date(2025, 6, 1))
	if err != nil {
		t.Fatalf("AccrueCoupons failed: %v", err)
	}
	for i, p := range periods {
		if !approx(p.ScheduledRate, 0.02) {
			t.Errorf("Period %d: expected 2%% per period (last step held flat), got %v", i+1, p.ScheduledRate)
		}
	}
}

func TestAccrueCoupons_NoScheduleNoPeriods(t *testing.T) {
	e := testEngine()
	note := fcnNote()

	periods, err := e.AccrueCoupons(note, twoUnderlyings(), models.NewSnapshotSet(), nil, date(2025, 6, 1))
	if err != nil {
		t.Fatalf("AccrueCoupons failed: %v", err)
	}
	if len(periods) != 0 {
		t.Errorf("Expected no periods without a coupon schedule, got %d", len(periods))
	}
}
