package engine

import (
	"sort"
	"time"

	"notes-tracker/internal/logging"
	"notes-tracker/internal/models"
)

// AccrueCoupons determines, for each coupon period of a note, whether the
// coupon barrier was satisfied at the period end and what the period pays,
// including deferred amounts under a memory coupon strategy.
//
// A recorded knock-out gates every period ending after the knock-out
// date: those periods pay nothing and are marked not evaluated, since the
// note has been redeemed early. Periods ending after asOf are pending and
// likewise not evaluated.
func (e *Engine) AccrueCoupons(note *models.Note, underlyings []models.Underlying, snaps models.SnapshotSet, koEvent *models.BarrierEvent, asOf time.Time) ([]models.CouponPeriod, error) {
	strat, err := e.validate(note)
	if err != nil {
		return nil, err
	}
	if len(note.CouponDates) == 0 {
		return nil, nil
	}

	asOf = day(asOf)
	ends := dayAll(note.CouponDates)
	sort.Slice(ends, func(i, j int) bool { return ends[i].Before(ends[j]) })

	var koDate time.Time
	if koEvent != nil {
		koDate = day(koEvent.Date)
	}

	periods := make([]models.CouponPeriod, 0, len(ends))
	start := periodOrigin(note)
	deferred := 0.0

	for i, end := range ends {
		period := models.CouponPeriod{
			Index:         i + 1,
			Start:         start,
			End:           end,
			ScheduledRate: e.scheduledRate(strat, note, i, start, end, len(ends)),
		}
		start = end

		// Periods after a knock-out are not evaluated: the note has been
		// redeemed early and pays nothing further.
		if koEvent != nil && end.After(koDate) {
			periods = append(periods, period)
			continue
		}
		// Periods that have not yet ended are pending.
		if end.After(asOf) {
			periods = append(periods, period)
			continue
		}

		period.Evaluated = true
		period.BarrierMet = e.couponBarrierMet(strat, note, underlyings, snaps, end)

		if period.BarrierMet {
			period.PaidRate = period.ScheduledRate
			if strat.MemoryCoupon {
				// Pay the accumulated unpaid periods in full, then clear.
				period.PaidRate += deferred
				deferred = 0
			}
		} else if strat.MemoryCoupon {
			// The period's own rate carries forward for the next
			// satisfied period to pick up.
			deferred += period.ScheduledRate
		}
		// Without memory, an unsatisfied period's coupon is forfeited.

		period.DeferredRate = deferred
		period.PaidAmount = period.PaidRate * note.Notional
		if period.PaidRate > 0 {
			logging.LogCouponPayment(e.log, note.ISIN, period.Index, period.PaidRate, period.PaidAmount)
		}
		periods = append(periods, period)
	}

	// Pending deferred amounts at knock-out follow the configured policy:
	// forfeit by default, or pay out with the last evaluated period.
	if koEvent != nil && deferred > 0 && e.DeferredPolicy == DeferredPayAtKnockOut {
		for i := len(periods) - 1; i >= 0; i-- {
			if periods[i].Evaluated {
				periods[i].PaidRate += deferred
				periods[i].PaidAmount = periods[i].PaidRate * note.Notional
				periods[i].DeferredRate = 0
				break
			}
		}
	}

	return periods, nil
}

// periodOrigin is the start of the first coupon period.
func periodOrigin(note *models.Note) time.Time {
	if !note.IssueDate.IsZero() {
		return day(note.IssueDate)
	}
	if !note.ObservationStart.IsZero() {
		return day(note.ObservationStart)
	}
	return day(note.TradeDate)
}

// scheduledRate is a period's own coupon rate. Memory coupon products
// quote cumulative per-period rates; the own rate is the difference from
// the previous cumulative entry, holding the last step flat past the end
// of the schedule. Other products accrue the per-annum rate over the
// period's actual day count.
func (e *Engine) scheduledRate(strat Strategy, note *models.Note, idx int, start, end time.Time, total int) float64 {
	if strat.MemoryCoupon && len(note.MemoryRates) > 0 {
		rates := note.MemoryRates
		if idx >= len(rates) {
			if len(rates) == 1 {
				return rates[0]
			}
			return rates[len(rates)-1] - rates[len(rates)-2]
		}
		if idx == 0 {
			return rates[0]
		}
		return rates[idx] - rates[idx-1]
	}

	days := end.Sub(start).Hours() / 24
	if days <= 0 {
		return 0
	}
	return note.CouponRate * days / 365.0
}

// couponBarrierMet evaluates the coupon barrier at a period end date.
// Notes without a declared coupon barrier pay unconditionally (FCN
// family); the barrier price follows the strategy's aggregation rule.
func (e *Engine) couponBarrierMet(strat Strategy, note *models.Note, underlyings []models.Underlying, snaps models.SnapshotSet, end time.Time) bool {
	if note.CouponBarrier <= 0 {
		return true
	}

	if strat.KOAgg == KOWorstPerformer {
		_, px, ok := e.worstPerformer(note, underlyings, snaps, end, "coupon")
		if !ok {
			return false
		}
		return px >= note.CouponBarrier
	}

	checked := 0
	for _, u := range underlyings {
		px, ok := snaps.Price(u.Ticker, end)
		if !ok {
			logging.LogDataGap(e.log, note.ISIN, u.Ticker, end, "coupon")
			return false
		}
		if px < note.CouponBarrier {
			return false
		}
		checked++
	}
	return checked > 0
}

// TotalPaid sums the paid amounts across coupon periods.
func TotalPaid(periods []models.CouponPeriod) float64 {
	total := 0.0
	for _, p := range periods {
		total += p.PaidAmount
	}
	return total
}
