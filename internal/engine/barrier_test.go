package engine

import (
	"testing"
	"time"

	"github.com/rs/zerolog"

	"notes-tracker/internal/errors"
	"notes-tracker/internal/models"
)

func testEngine() *Engine {
	return New(zerolog.Nop())
}

func fcnNote() *models.Note {
	return &models.Note{
		ID:               1,
		ISIN:             "XS0000000001",
		Product:          models.ProductFCN,
		Notional:         1000000,
		TradeDate:        date(2025, 1, 1),
		ObservationStart: date(2025, 1, 1),
		FinalValuation:   date(2025, 12, 31),
		KOType:           models.KODaily,
		KIType:           models.KIDaily,
	}
}

func twoUnderlyings() []models.Underlying {
	return []models.Underlying{
		{Seq: 1, Ticker: "AAA", SpotPrice: 100, KOPrice: 100, KIPrice: 60, StrikePrice: 80},
		{Seq: 2, Ticker: "BBB", SpotPrice: 100, KOPrice: 100, KIPrice: 60, StrikePrice: 80},
	}
}

func snapsFor(prices map[string]map[string]float64) models.SnapshotSet {
	set := models.NewSnapshotSet()
	for ticker, byDate := range prices {
		for dateStr, px := range byDate {
			d, err := time.Parse("2006-01-02", dateStr)
			if err != nil {
				panic(err)
			}
			set.Add(ticker, d, px)
		}
	}
	return set
}

func TestEvaluateBarriers_NotYetObserved(t *testing.T) {
	e := testEngine()
	note := fcnNote()
	note.ObservationStart = date(2025, 6, 1)

	result, err := e.EvaluateBarriers(note, twoUnderlyings(), models.NewSnapshotSet(), date(2025, 3, 1))
	if err != nil {
		t.Fatalf("EvaluateBarriers failed: %v", err)
	}
	if result.Status != models.StatusNotYetObserved {
		t.Errorf("Expected Not Observed Yet before observation start, got %s", result.Status)
	}
}

// One underlying below its KO level blocks an all-underlyings knock-out
// on the same date that the any-underlying knock-in fires.
func TestEvaluateBarriers_KOBlockedKIFires(t *testing.T) {
	e := testEngine()
	note := fcnNote()

	snaps := snapsFor(map[string]map[string]float64{
		"AAA": {"2025-02-03": 105},
		"BBB": {"2025-02-03": 59},
	})

	result, err := e.EvaluateBarriers(note, twoUnderlyings(), snaps, date(2025, 3, 1))
	if err != nil {
		t.Fatalf("EvaluateBarriers failed: %v", err)
	}
	if result.KOEvent != nil {
		t.Errorf("KO should not fire with one underlying at 59 < 100")
	}
	if result.KIEvent == nil {
		t.Fatal("KI should fire with BBB at 59 <= 60")
	}
	if result.KIEvent.Ticker != "BBB" {
		t.Errorf("KI event should name the breaching underlying, got %q", result.KIEvent.Ticker)
	}
	if !result.KIEvent.Date.Equal(date(2025, 2, 3)) {
		t.Errorf("KI date: expected 2025-02-03, got %v", result.KIEvent.Date)
	}
	if result.Status != models.StatusKnockedIn {
		t.Errorf("Expected Knocked In, got %s", result.Status)
	}
}

func TestEvaluateBarriers_KOAllUnderlyings(t *testing.T) {
	e := testEngine()
	note := fcnNote()

	snaps := snapsFor(map[string]map[string]float64{
		"AAA": {"2025-02-03": 101},
		"BBB": {"2025-02-03": 100},
	})

	result, err := e.EvaluateBarriers(note, twoUnderlyings(), snaps, date(2025, 3, 1))
	if err != nil {
		t.Fatalf("EvaluateBarriers failed: %v", err)
	}
	if result.KOEvent == nil {
		t.Fatal("KO should fire with all underlyings at or above 100")
	}
	if result.KOEvent.Ticker != "" {
		t.Errorf("All-underlyings KO attributes no single ticker, got %q", result.KOEvent.Ticker)
	}
	if result.Status != models.StatusKnockedOut {
		t.Errorf("Expected Knocked Out, got %s", result.Status)
	}
}

// A knock-out ends monitoring: conditions on later dates are ignored.
func TestEvaluateBarriers_KOEndsMonitoring(t *testing.T) {
	e := testEngine()
	note := fcnNote()

	snaps := snapsFor(map[string]map[string]float64{
		"AAA": {"2025-02-03": 101, "2025-02-10": 50},
		"BBB": {"2025-02-03": 100, "2025-02-10": 50},
	})

	result, err := e.EvaluateBarriers(note, twoUnderlyings(), snaps, date(2025, 3, 1))
	if err != nil {
		t.Fatalf("EvaluateBarriers failed: %v", err)
	}
	if result.KOEvent == nil || !result.KOEvent.Date.Equal(date(2025, 2, 3)) {
		t.Fatalf("Expected KO on 2025-02-03, got %+v", result.KOEvent)
	}
	if result.KIEvent != nil {
		t.Errorf("KI after the knock-out date must not be recorded")
	}
}

// A knock-in does not end monitoring: a later knock-out still fires, and
// the knocked-out status wins.
func TestEvaluateBarriers_KOAfterKI(t *testing.T) {
	e := testEngine()
	note := fcnNote()

	snaps := snapsFor(map[string]map[string]float64{
		"AAA": {"2025-02-03": 55, "2025-02-10": 102},
		"BBB": {"2025-02-03": 70, "2025-02-10": 103},
	})

	result, err := e.EvaluateBarriers(note, twoUnderlyings(), snaps, date(2025, 3, 1))
	if err != nil {
		t.Fatalf("EvaluateBarriers failed: %v", err)
	}
	if result.KIEvent == nil || !result.KIEvent.Date.Equal(date(2025, 2, 3)) {
		t.Fatalf("Expected KI on 2025-02-03, got %+v", result.KIEvent)
	}
	if result.KOEvent == nil || !result.KOEvent.Date.Equal(date(2025, 2, 10)) {
		t.Fatalf("Expected KO on 2025-02-10, got %+v", result.KOEvent)
	}
	if result.Status != models.StatusKnockedOut {
		t.Errorf("Knocked Out wins over Knocked In, got %s", result.Status)
	}
}

// Period-end KO monitoring only evaluates on period boundaries; a breach
// between boundaries does not trigger.
func TestEvaluateBarriers_PeriodEndKO(t *testing.T) {
	e := testEngine()
	note := fcnNote()
	note.KOType = models.KOPeriodEnd
	note.ObservationFrequency = models.FreqMonthly

	// Both above KO mid-month (Jan 20) and back below at the Feb 1
	// boundary: no KO. Daily KI still observes every day.
	snaps := snapsFor(map[string]map[string]float64{
		"AAA": {"2025-01-20": 105, "2025-02-01": 90},
		"BBB": {"2025-01-20": 104, "2025-02-01": 91},
	})

	result, err := e.EvaluateBarriers(note, twoUnderlyings(), snaps, date(2025, 3, 1))
	if err != nil {
		t.Fatalf("EvaluateBarriers failed: %v", err)
	}
	if result.KOEvent != nil {
		t.Errorf("Mid-period breach must not knock out under period-end monitoring")
	}
	if result.Status != models.StatusAlive {
		t.Errorf("Expected Alive, got %s", result.Status)
	}

	// Now meet the condition on the boundary itself.
	snaps.Add("AAA", date(2025, 2, 1), 101)
	snaps.Add("BBB", date(2025, 2, 1), 102)

	result, err = e.EvaluateBarriers(note, twoUnderlyings(), snaps, date(2025, 3, 1))
	if err != nil {
		t.Fatalf("EvaluateBarriers failed: %v", err)
	}
	if result.KOEvent == nil || !result.KOEvent.Date.Equal(date(2025, 2, 1)) {
		t.Fatalf("Expected KO at the Feb 1 boundary, got %+v", result.KOEvent)
	}
}

func TestEvaluateBarriers_PeriodEndMissingFrequency(t *testing.T) {
	e := testEngine()
	note := fcnNote()
	note.KOType = models.KOPeriodEnd

	_, err := e.EvaluateBarriers(note, twoUnderlyings(), models.NewSnapshotSet(), date(2025, 3, 1))
	if !errors.Is(err, errors.ErrMissingObservationFrequency) {
		t.Errorf("Expected ErrMissingObservationFrequency, got %v", err)
	}
}

// European KI ignores dips before the final valuation date.
func TestEvaluateBarriers_EKI(t *testing.T) {
	e := testEngine()
	note := fcnNote()
	note.KIType = models.KIEuropean
	note.FinalValuation = date(2025, 6, 30)

	snaps := snapsFor(map[string]map[string]float64{
		"AAA": {"2025-03-10": 40, "2025-06-30": 95},
		"BBB": {"2025-03-10": 45, "2025-06-30": 96},
	})

	// Deep dip mid-life: no KI under European observation.
	result, err := e.EvaluateBarriers(note, twoUnderlyings(), snaps, date(2025, 4, 1))
	if err != nil {
		t.Fatalf("EvaluateBarriers failed: %v", err)
	}
	if result.KIEvent != nil {
		t.Errorf("EKI must not observe before the final valuation date")
	}
	if result.Status != models.StatusAlive {
		t.Errorf("Expected Alive, got %s", result.Status)
	}

	// At maturity with final-date prices above KI: Matured.
	result, err = e.EvaluateBarriers(note, twoUnderlyings(), snaps, date(2025, 6, 30))
	if err != nil {
		t.Fatalf("EvaluateBarriers failed: %v", err)
	}
	if result.KIEvent != nil {
		t.Errorf("No KI expected with final prices above the barrier")
	}
	if result.Status != models.StatusMatured {
		t.Errorf("Expected Matured, got %s", result.Status)
	}
}

func TestEvaluateBarriers_EKIConversion(t *testing.T) {
	e := testEngine()
	note := fcnNote()
	note.KIType = models.KIEuropean
	note.FinalValuation = date(2025, 6, 30)

	// Final date: BBB at 55 breaches KI (<= 60) and closes below its
	// strike of 80, so the knocked-in note converts.
	snaps := snapsFor(map[string]map[string]float64{
		"AAA": {"2025-06-30": 90},
		"BBB": {"2025-06-30": 55},
	})

	result, err := e.EvaluateBarriers(note, twoUnderlyings(), snaps, date(2025, 6, 30))
	if err != nil {
		t.Fatalf("EvaluateBarriers failed: %v", err)
	}
	if result.KIEvent == nil {
		t.Fatal("Expected EKI event on the final valuation date")
	}
	if result.Status != models.StatusConverted {
		t.Errorf("Expected Converted, got %s", result.Status)
	}
}

func TestEvaluateBarriers_KnockedInMaturesAboveStrike(t *testing.T) {
	e := testEngine()
	note := fcnNote()
	note.FinalValuation = date(2025, 6, 30)

	// KI fires mid-life, but by the final date the worst performer
	// recovered above its strike: redeem at par, no conversion.
	snaps := snapsFor(map[string]map[string]float64{
		"AAA": {"2025-03-10": 58, "2025-06-30": 85},
		"BBB": {"2025-03-10": 70, "2025-06-30": 90},
	})

	result, err := e.EvaluateBarriers(note, twoUnderlyings(), snaps, date(2025, 6, 30))
	if err != nil {
		t.Fatalf("EvaluateBarriers failed: %v", err)
	}
	if result.KIEvent == nil {
		t.Fatal("Expected KI on 2025-03-10")
	}
	if result.Status != models.StatusMatured {
		t.Errorf("Expected Matured with worst performer above strike, got %s", result.Status)
	}
}

// A missing snapshot for a required underlying skips the whole
// all-underlyings KO check rather than failing or partially passing.
func TestEvaluateBarriers_DataGapSkipsKOCheck(t *testing.T) {
	e := testEngine()
	note := fcnNote()

	snaps := snapsFor(map[string]map[string]float64{
		"AAA": {"2025-02-03": 110},
		// BBB has no data that day
	})

	result, err := e.EvaluateBarriers(note, twoUnderlyings(), snaps, date(2025, 3, 1))
	if err != nil {
		t.Fatalf("Data gaps must not produce errors, got %v", err)
	}
	if result.KOEvent != nil {
		t.Errorf("KO must not fire from partial data")
	}
	if result.Status != models.StatusAlive {
		t.Errorf("Expected Alive, got %s", result.Status)
	}
}

// Worst performer is judged by performance ratio, not raw price: the
// KI test applies to the underlying with the lowest last/spot ratio.
func TestEvaluateBarriers_WorstPerformerKI(t *testing.T) {
	e := testEngine()
	note := fcnNote()
	note.Product = models.ProductWOFCN

	underlyings := []models.Underlying{
		{Seq: 1, Ticker: "AAA", SpotPrice: 200, KOPrice: 210, KIPrice: 120, StrikePrice: 160},
		{Seq: 2, Ticker: "BBB", SpotPrice: 50, KOPrice: 55, KIPrice: 30, StrikePrice: 40},
	}

	// AAA ratio 110/200 = 0.55 (worst), BBB 40/50 = 0.80.
	// AAA at 110 <= 120 => worst-performer KI fires on AAA.
	snaps := snapsFor(map[string]map[string]float64{
		"AAA": {"2025-02-03": 110},
		"BBB": {"2025-02-03": 40},
	})

	result, err := e.EvaluateBarriers(note, underlyings, snaps, date(2025, 3, 1))
	if err != nil {
		t.Fatalf("EvaluateBarriers failed: %v", err)
	}
	if result.KIEvent == nil {
		t.Fatal("Expected worst-performer KI")
	}
	if result.KIEvent.Ticker != "AAA" {
		t.Errorf("Worst performer should be AAA by ratio, got %q", result.KIEvent.Ticker)
	}
}

// Worst performer cannot be determined from partial data: one missing
// underlying skips the check entirely.
func TestEvaluateBarriers_WorstPerformerDataGap(t *testing.T) {
	e := testEngine()
	note := fcnNote()
	note.Product = models.ProductWOFCN

	snaps := snapsFor(map[string]map[string]float64{
		"AAA": {"2025-02-03": 30},
	})

	result, err := e.EvaluateBarriers(note, twoUnderlyings(), snaps, date(2025, 3, 1))
	if err != nil {
		t.Fatalf("EvaluateBarriers failed: %v", err)
	}
	if result.KIEvent != nil {
		t.Errorf("Worst-performer KI must not fire from partial data")
	}
}

// Step-down KO: the schedule level for the containing period overrides
// the flat KO price, and later periods use their stepped-down levels.
func TestEvaluateBarriers_StepDownKO(t *testing.T) {
	e := testEngine()
	note := fcnNote()
	note.Product = models.ProductPhoenix
	note.KOType = models.KOPeriodEnd
	note.ObservationFrequency = models.FreqMonthly
	note.StepDownKO = []models.StepDownBarrier{
		{Period: 1, Level: 100},
		{Period: 2, Level: 98},
	}

	underlyings := []models.Underlying{
		{Seq: 1, Ticker: "AAA", SpotPrice: 100, KOPrice: 100, KIPrice: 60, StrikePrice: 75},
	}

	// 98.5 misses the period-1 level of 100 at the Feb 1 boundary but
	// meets the period-2 level of 98 at the Mar 1 boundary.
	snaps := snapsFor(map[string]map[string]float64{
		"AAA": {"2025-02-01": 98.5, "2025-03-01": 98.5},
	})

	result, err := e.EvaluateBarriers(note, underlyings, snaps, date(2025, 4, 1))
	if err != nil {
		t.Fatalf("EvaluateBarriers failed: %v", err)
	}
	if result.KOEvent == nil {
		t.Fatal("Expected step-down KO at the second boundary")
	}
	if !result.KOEvent.Date.Equal(date(2025, 3, 1)) {
		t.Errorf("Expected KO on 2025-03-01 (period 2 level), got %v", result.KOEvent.Date)
	}
}

func TestEvaluateBarriers_ConfigErrors(t *testing.T) {
	e := testEngine()

	note := fcnNote()
	note.Product = "MYSTERY"
	if _, err := e.EvaluateBarriers(note, twoUnderlyings(), models.NewSnapshotSet(), date(2025, 3, 1)); !errors.Is(err, errors.ErrUnknownProduct) {
		t.Errorf("Expected ErrUnknownProduct, got %v", err)
	}

	note = fcnNote()
	note.FinalValuation = date(2024, 1, 1)
	if _, err := e.EvaluateBarriers(note, twoUnderlyings(), models.NewSnapshotSet(), date(2025, 3, 1)); !errors.Is(err, errors.ErrInvalidDateRange) {
		t.Errorf("Expected ErrInvalidDateRange, got %v", err)
	}
}

// Re-running the evaluation on identical inputs yields identical results.
func TestEvaluateBarriers_Deterministic(t *testing.T) {
	e := testEngine()
	note := fcnNote()

	snaps := snapsFor(map[string]map[string]float64{
		"AAA": {"2025-02-03": 55, "2025-02-10": 102},
		"BBB": {"2025-02-03": 70, "2025-02-10": 103},
	})

	first, err := e.EvaluateBarriers(note, twoUnderlyings(), snaps, date(2025, 3, 1))
	if err != nil {
		t.Fatalf("EvaluateBarriers failed: %v", err)
	}
	second, err := e.EvaluateBarriers(note, twoUnderlyings(), snaps, date(2025, 3, 1))
	if err != nil {
		t.Fatalf("EvaluateBarriers failed: %v", err)
	}

	if first.Status != second.Status {
		t.Errorf("Status differs between runs: %s vs %s", first.Status, second.Status)
	}
	if (first.KOEvent == nil) != (second.KOEvent == nil) ||
		(first.KIEvent == nil) != (second.KIEvent == nil) {
		t.Error("Event presence differs between runs")
	}
}
