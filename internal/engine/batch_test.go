package engine

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	apperrors "notes-tracker/internal/errors"
	"notes-tracker/internal/models"
)

func TestEvaluateBatch(t *testing.T) {
	eng := testEngine()
	eng.Workers = 4

	asOf := date(2025, 6, 30)
	snaps := snapsFor(map[string]map[string]float64{
		"AAA": {"2025-02-03": 105},
		"BBB": {"2025-02-03": 59},
	})

	var items []BatchItem
	for i := 0; i < 8; i++ {
		note := fcnNote()
		note.ISIN = fmt.Sprintf("XS%010d", i)
		items = append(items, BatchItem{
			Note:        note,
			Underlyings: twoUnderlyings(),
			Snapshots:   snaps,
		})
	}

	results := eng.EvaluateBatch(context.Background(), items, asOf)
	if len(results) != 8 {
		t.Fatalf("Expected 8 results, got %d", len(results))
	}

	// Results come back in input order regardless of worker scheduling.
	for i, r := range results {
		if r.Note.ISIN != items[i].Note.ISIN {
			t.Errorf("Result %d out of order: %s", i, r.Note.ISIN)
		}
		if r.Err != nil {
			t.Errorf("Unexpected error for %s: %v", r.Note.ISIN, r.Err)
			continue
		}
		if r.Result.Status != models.StatusKnockedIn {
			t.Errorf("Expected Knocked In for %s, got %s", r.Note.ISIN, r.Result.Status)
		}
	}
}

func TestEvaluateBatchFaultIsolation(t *testing.T) {
	eng := testEngine()
	asOf := date(2025, 6, 30)
	snaps := snapsFor(map[string]map[string]float64{
		"AAA": {"2025-02-03": 105},
		"BBB": {"2025-02-03": 95},
	})

	good := fcnNote()
	bad := fcnNote()
	bad.ISIN = "XS0000000BAD"
	bad.Product = "SNOWBALL"

	items := []BatchItem{
		{Note: good, Underlyings: twoUnderlyings(), Snapshots: snaps},
		{Note: bad, Underlyings: twoUnderlyings(), Snapshots: snaps},
	}

	results := eng.EvaluateBatch(context.Background(), items, asOf)

	if results[0].Err != nil {
		t.Errorf("Healthy note affected by sibling failure: %v", results[0].Err)
	}
	if results[0].Result == nil || results[0].Result.Status != models.StatusAlive {
		t.Errorf("Healthy note result missing or wrong: %+v", results[0].Result)
	}
	if !errors.Is(results[1].Err, apperrors.ErrUnknownProduct) {
		t.Errorf("Expected ErrUnknownProduct for bad note, got %v", results[1].Err)
	}
	if results[1].Result != nil {
		t.Errorf("Failed note must carry no partial result")
	}
}

func TestEvaluateBatchCancelled(t *testing.T) {
	eng := testEngine()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	snaps := snapsFor(map[string]map[string]float64{
		"AAA": {"2025-02-03": 105},
		"BBB": {"2025-02-03": 95},
	})
	items := []BatchItem{
		{Note: fcnNote(), Underlyings: twoUnderlyings(), Snapshots: snaps},
		{Note: fcnNote(), Underlyings: twoUnderlyings(), Snapshots: snaps},
	}

	results := eng.EvaluateBatch(ctx, items, date(2025, 6, 30))
	for i, r := range results {
		if !errors.Is(r.Err, context.Canceled) {
			t.Errorf("Result %d should carry the context error, got %v", i, r.Err)
		}
	}
}

func TestEvaluateBatchEmpty(t *testing.T) {
	eng := testEngine()
	results := eng.EvaluateBatch(context.Background(), nil, time.Now())
	if len(results) != 0 {
		t.Errorf("Expected no results, got %d", len(results))
	}
}

func TestEvaluateBatchIncludesCoupons(t *testing.T) {
	eng := testEngine()
	asOf := date(2025, 6, 30)
	note := memoryNote()
	snaps := snapsFor(map[string]map[string]float64{
		"AAA": {"2025-02-01": 80, "2025-03-01": 80, "2025-04-01": 80},
	})

	results := eng.EvaluateBatch(context.Background(), []BatchItem{
		{Note: note, Underlyings: singleUnderlying(), Snapshots: snaps},
	}, asOf)

	if results[0].Err != nil {
		t.Fatalf("Evaluation failed: %v", results[0].Err)
	}
	if len(results[0].Coupons) != 3 {
		t.Fatalf("Expected 3 coupon periods, got %d", len(results[0].Coupons))
	}
	for _, p := range results[0].Coupons {
		if !p.BarrierMet {
			t.Errorf("Period %d should meet the 70 barrier at px 80", p.Index)
		}
	}
}
