package engine

import (
	"time"

	"github.com/rs/zerolog"

	"notes-tracker/internal/errors"
	"notes-tracker/internal/logging"
	"notes-tracker/internal/models"
)

// DeferredPolicy controls what happens to pending deferred coupon
// amounts when a note knocks out before they are paid.
type DeferredPolicy string

const (
	// DeferredForfeit drops pending deferred amounts at knock-out: the
	// note is redeemed early, no further payment. This is the default.
	DeferredForfeit DeferredPolicy = "forfeit"
	// DeferredPayAtKnockOut pays pending deferred amounts together with
	// the last period evaluated before the knock-out.
	DeferredPayAtKnockOut DeferredPolicy = "pay"
)

// Engine evaluates barriers and accrues coupons for structured notes.
// All evaluation methods are pure functions over their inputs; the engine
// holds no state between calls.
type Engine struct {
	log zerolog.Logger

	// DeferredPolicy decides the fate of unpaid memory coupons at
	// knock-out.
	DeferredPolicy DeferredPolicy
	// Workers is the batch evaluation concurrency; 0 means NumCPU.
	Workers int
}

// New creates an evaluation engine.
func New(logger zerolog.Logger) *Engine {
	return &Engine{
		log:            logger,
		DeferredPolicy: DeferredForfeit,
	}
}

// EvaluateBarriers walks the KO and KI observation dates for a note in
// chronological order against the snapshot collection and returns the
// derived lifecycle status plus any recorded events.
//
// The first knock-out wins and ends monitoring; the first knock-in wins
// but monitoring for KO continues afterwards. Dates with missing
// snapshots for a required underlying are skipped, not failed. Re-running
// on unchanged inputs yields an identical result.
func (e *Engine) EvaluateBarriers(note *models.Note, underlyings []models.Underlying, snaps models.SnapshotSet, asOf time.Time) (*models.EvaluationResult, error) {
	strat, err := e.validate(note)
	if err != nil {
		return nil, err
	}

	asOf = day(asOf)
	obsStart := day(note.ObservationStart)
	finalVal := day(note.FinalValuation)

	// Before the observation window the note is not observed, regardless
	// of any other field.
	if asOf.Before(obsStart) {
		return &models.EvaluationResult{Status: models.StatusNotYetObserved}, nil
	}

	koDates, err := koSchedule(note)
	if err != nil {
		return nil, err
	}
	kiDates, err := kiSchedule(note)
	if err != nil {
		return nil, err
	}

	// Step-down levels are resolved by the containing observation period.
	// Period-end monitoring defines its own boundaries; daily monitoring
	// falls back to the coupon payment dates, which is how step-down
	// schedules are quoted.
	boundaries := koDates
	if note.KOType != models.KOPeriodEnd {
		boundaries = dayAll(note.CouponDates)
	}

	koSet := dateSet(koDates)
	kiSet := dateSet(kiDates)

	var koEvent, kiEvent *models.BarrierEvent
	for _, d := range mergeDates(koDates, kiDates) {
		if d.After(asOf) {
			break
		}
		if _, ok := koSet[models.DateKey(d)]; ok {
			koEvent = e.checkKnockOut(strat, note, underlyings, snaps, d, boundaries)
			if koEvent != nil {
				// The note's monitored life ends here: no further KO or KI
				// evaluation beyond this date.
				logging.LogBarrierEvent(e.log, note.ISIN, string(models.EventKnockOut), koEvent.Date, koEvent.Ticker)
				break
			}
		}
		if kiEvent == nil {
			if _, ok := kiSet[models.DateKey(d)]; ok {
				kiEvent = e.checkKnockIn(strat, note, underlyings, snaps, d)
				if kiEvent != nil {
					logging.LogBarrierEvent(e.log, note.ISIN, string(models.EventKnockIn), kiEvent.Date, kiEvent.Ticker)
				}
			}
		}
	}

	status := e.deriveStatus(note, underlyings, snaps, asOf, finalVal, koEvent, kiEvent)
	return &models.EvaluationResult{Status: status, KOEvent: koEvent, KIEvent: kiEvent}, nil
}

// validate resolves the strategy and checks the note's configuration.
// Configuration errors fail synchronously, before any evaluation.
func (e *Engine) validate(note *models.Note) (Strategy, error) {
	strat, err := ResolveStrategy(note.Product)
	if err != nil {
		return Strategy{}, err
	}
	if day(note.FinalValuation).Before(day(note.ObservationStart)) {
		return Strategy{}, errors.Wrapf(errors.ErrInvalidDateRange,
			"note %s: final valuation %s before observation start %s",
			note.ISIN,
			note.FinalValuation.Format("2006-01-02"),
			note.ObservationStart.Format("2006-01-02"))
	}
	if note.KOType == models.KOPeriodEnd && note.ObservationFrequency == "" {
		return Strategy{}, errors.Wrapf(errors.ErrMissingObservationFrequency,
			"note %s has period-end KO", note.ISIN)
	}
	return strat, nil
}

// checkKnockOut evaluates the KO condition on a single observation date.
// It returns nil both when the condition does not hold and when required
// snapshot data is missing (a data gap, not a failure).
func (e *Engine) checkKnockOut(strat Strategy, note *models.Note, underlyings []models.Underlying, snaps models.SnapshotSet, d time.Time, boundaries []time.Time) *models.BarrierEvent {
	// When a step-down schedule applies, its level for the containing
	// period overrides the per-underlying KO prices. Past the schedule's
	// end the last defined level is held flat. An empty schedule falls
	// back to the flat per-underlying barriers.
	stepLevel, hasStep := 0.0, false
	if strat.StepDownKO && len(note.StepDownKO) > 0 {
		stepLevel = stepDownLevel(note.StepDownKO, periodIndexFor(d, boundaries))
		hasStep = true
	}

	switch strat.KOAgg {
	case KOWorstPerformer:
		wps, px, ok := e.worstPerformer(note, underlyings, snaps, d, "ko")
		if !ok {
			return nil
		}
		level := wps.KOPrice
		if hasStep {
			level = stepLevel
		}
		if level <= 0 {
			return nil
		}
		if px >= level {
			return &models.BarrierEvent{Kind: models.EventKnockOut, Date: d, ObservationDate: d, Ticker: wps.Ticker}
		}
		return nil

	default: // KOAllUnderlyings
		checked := 0
		for _, u := range underlyings {
			level := u.KOPrice
			if hasStep {
				level = stepLevel
			}
			if level <= 0 {
				continue
			}
			px, ok := snaps.Price(u.Ticker, d)
			if !ok {
				logging.LogDataGap(e.log, note.ISIN, u.Ticker, d, "ko")
				return nil
			}
			if px < level {
				return nil
			}
			checked++
		}
		if checked == 0 {
			// No KO barriers defined; nothing to evaluate.
			return nil
		}
		return &models.BarrierEvent{Kind: models.EventKnockOut, Date: d, ObservationDate: d}
	}
}

// checkKnockIn evaluates the KI condition on a single observation date.
func (e *Engine) checkKnockIn(strat Strategy, note *models.Note, underlyings []models.Underlying, snaps models.SnapshotSet, d time.Time) *models.BarrierEvent {
	switch strat.KIAgg {
	case KIWorstPerformer:
		wps, px, ok := e.worstPerformer(note, underlyings, snaps, d, "ki")
		if !ok {
			return nil
		}
		if wps.KIPrice <= 0 {
			return nil
		}
		if px <= wps.KIPrice {
			return &models.BarrierEvent{Kind: models.EventKnockIn, Date: d, ObservationDate: d, Ticker: wps.Ticker}
		}
		return nil

	default: // KIAnyUnderlying
		for _, u := range underlyings {
			if u.KIPrice <= 0 {
				continue
			}
			px, ok := snaps.Price(u.Ticker, d)
			if !ok {
				// Underlyings without data that day simply are not checked.
				logging.LogDataGap(e.log, note.ISIN, u.Ticker, d, "ki")
				continue
			}
			if px <= u.KIPrice {
				return &models.BarrierEvent{Kind: models.EventKnockIn, Date: d, ObservationDate: d, Ticker: u.Ticker}
			}
		}
		return nil
	}
}

// worstPerformer returns the underlying with the minimum last/spot
// performance ratio on the given date. The worst performer cannot be
// determined from partial data: a missing snapshot for any underlying
// with a reference price skips the whole check.
func (e *Engine) worstPerformer(note *models.Note, underlyings []models.Underlying, snaps models.SnapshotSet, d time.Time, check string) (models.Underlying, float64, bool) {
	var worst models.Underlying
	var worstPx float64
	worstRatio := -1.0

	for _, u := range underlyings {
		if u.SpotPrice <= 0 {
			continue
		}
		px, ok := snaps.Price(u.Ticker, d)
		if !ok {
			logging.LogDataGap(e.log, note.ISIN, u.Ticker, d, check)
			return models.Underlying{}, 0, false
		}
		ratio := px / u.SpotPrice
		if worstRatio < 0 || ratio < worstRatio {
			worstRatio = ratio
			worst = u
			worstPx = px
		}
	}
	if worstRatio < 0 {
		return models.Underlying{}, 0, false
	}
	return worst, worstPx, true
}

// stepDownLevel resolves the KO level for a 1-based period index from an
// ordered step-down schedule. Indexes past the schedule hold the last
// defined level flat; indexes before the first entry use the first level.
func stepDownLevel(schedule []models.StepDownBarrier, period int) float64 {
	level := schedule[0].Level
	for _, entry := range schedule {
		if entry.Period <= period {
			level = entry.Level
		} else {
			break
		}
	}
	return level
}

// deriveStatus combines the recorded events into the single lifecycle
// status for the evaluation date.
func (e *Engine) deriveStatus(note *models.Note, underlyings []models.Underlying, snaps models.SnapshotSet, asOf, finalVal time.Time, koEvent, kiEvent *models.BarrierEvent) models.Status {
	if koEvent != nil {
		return models.StatusKnockedOut
	}

	if !asOf.Before(finalVal) {
		// Terminal test at or after the final valuation date: a recorded
		// knock-in converts to shares when the worst performer closes
		// below its conversion strike on the final date.
		if kiEvent != nil && e.shouldConvert(note, underlyings, snaps, finalVal) {
			return models.StatusConverted
		}
		return models.StatusMatured
	}

	if kiEvent != nil {
		return models.StatusKnockedIn
	}
	return models.StatusAlive
}

// shouldConvert runs the final worst-performer test against the
// conversion strike. Missing final-date data means the test cannot pass.
func (e *Engine) shouldConvert(note *models.Note, underlyings []models.Underlying, snaps models.SnapshotSet, finalVal time.Time) bool {
	wps, px, ok := e.worstPerformer(note, underlyings, snaps, finalVal, "conversion")
	if !ok {
		return false
	}
	if wps.StrikePrice <= 0 {
		return false
	}
	return px < wps.StrikePrice
}

func dateSet(dates []time.Time) map[string]struct{} {
	set := make(map[string]struct{}, len(dates))
	for _, d := range dates {
		set[models.DateKey(d)] = struct{}{}
	}
	return set
}

func dayAll(dates []time.Time) []time.Time {
	out := make([]time.Time, 0, len(dates))
	for _, d := range dates {
		out = appendUnique(out, day(d))
	}
	return out
}
