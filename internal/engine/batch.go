package engine

import (
	"context"
	"sync"
	"time"

	"notes-tracker/internal/models"
	"notes-tracker/internal/performance"
)

// BatchItem is one note's evaluation input: the contract, its
// underlyings, and the snapshot collection covering its tickers.
type BatchItem struct {
	Note        *models.Note
	Underlyings []models.Underlying
	Snapshots   models.SnapshotSet
}

// BatchResult is one note's evaluation outcome. Err carries a
// configuration error for that note alone; it never aborts the batch.
type BatchResult struct {
	Note    *models.Note
	Result  *models.EvaluationResult
	Coupons []models.CouponPeriod
	Err     error
}

// EvaluateBatch evaluates a batch of notes concurrently on a worker pool.
// Notes are independent, so there is no ordering guarantee between their
// evaluations; results are returned in input order. A note's evaluation
// either completes or fails atomically - partial results are never
// surfaced.
func (e *Engine) EvaluateBatch(ctx context.Context, items []BatchItem, asOf time.Time) []BatchResult {
	results := make([]BatchResult, len(items))
	if len(items) == 0 {
		return results
	}

	pool := performance.NewWorkerPool(e.Workers)
	pool.Start()
	defer pool.Stop()

	var wg sync.WaitGroup
	for i := range items {
		if err := ctx.Err(); err != nil {
			// Stop issuing new evaluations; already-submitted notes run
			// to completion.
			for j := i; j < len(items); j++ {
				results[j] = BatchResult{Note: items[j].Note, Err: err}
			}
			break
		}

		i := i
		item := items[i]
		wg.Add(1)
		task := func() {
			defer wg.Done()
			results[i] = e.evaluateOne(item, asOf)
		}
		if !pool.Submit(task) {
			// Queue full: evaluate inline rather than dropping the note.
			task()
		}
	}
	wg.Wait()

	return results
}

func (e *Engine) evaluateOne(item BatchItem, asOf time.Time) BatchResult {
	res := BatchResult{Note: item.Note}

	result, err := e.EvaluateBarriers(item.Note, item.Underlyings, item.Snapshots, asOf)
	if err != nil {
		res.Err = err
		return res
	}
	res.Result = result

	coupons, err := e.AccrueCoupons(item.Note, item.Underlyings, item.Snapshots, result.KOEvent, asOf)
	if err != nil {
		res.Err = err
		return res
	}
	res.Coupons = coupons
	return res
}
