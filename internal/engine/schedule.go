package engine

import (
	"time"

	"notes-tracker/internal/errors"
	"notes-tracker/internal/models"
)

// day truncates a timestamp to midnight UTC so schedule dates compare
// and dedupe cleanly.
func day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// GenerateSchedule produces the ordered, duplicate-free observation dates
// between start and end inclusive at the given frequency.
//
// Daily frequency yields every calendar day in range. Other frequencies
// yield period-end boundaries computed by repeatedly adding the period
// length to start; a final boundary that would overshoot is clipped to
// end.
func GenerateSchedule(start, end time.Time, freq models.Frequency) ([]time.Time, error) {
	start, end = day(start), day(end)
	if end.Before(start) {
		return nil, errors.Wrapf(errors.ErrInvalidDateRange,
			"end %s before start %s", end.Format("2006-01-02"), start.Format("2006-01-02"))
	}

	if freq == models.FreqDaily || freq == "" {
		var dates []time.Time
		for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
			dates = append(dates, d)
		}
		return dates, nil
	}

	var dates []time.Time
	for k := 1; ; k++ {
		boundary, err := addPeriods(start, freq, k)
		if err != nil {
			return nil, err
		}
		if !boundary.Before(end) {
			// Clip the final boundary to the final valuation date.
			dates = append(dates, end)
			break
		}
		dates = append(dates, boundary)
	}
	return dates, nil
}

// addPeriods adds n periods of the given frequency to start. Periods are
// always measured from start rather than from the previous boundary so
// month-end normalization does not drift.
func addPeriods(start time.Time, freq models.Frequency, n int) (time.Time, error) {
	switch freq {
	case models.FreqDaily:
		return start.AddDate(0, 0, n), nil
	case models.FreqWeekly:
		return start.AddDate(0, 0, 7*n), nil
	case models.FreqMonthly:
		return start.AddDate(0, n, 0), nil
	case models.FreqQuarterly:
		return start.AddDate(0, 3*n, 0), nil
	case models.FreqSemiAnnual:
		return start.AddDate(0, 6*n, 0), nil
	default:
		return time.Time{}, errors.Wrapf(errors.ErrConfigInvalid, "unknown frequency %q", string(freq))
	}
}

// koSchedule returns the knock-out observation dates for a note.
func koSchedule(note *models.Note) ([]time.Time, error) {
	switch note.KOType {
	case models.KOPeriodEnd:
		if note.ObservationFrequency == "" {
			return nil, errors.Wrapf(errors.ErrMissingObservationFrequency,
				"note %s has period-end KO", note.ISIN)
		}
		return GenerateSchedule(note.ObservationStart, note.FinalValuation, note.ObservationFrequency)
	default:
		// Daily monitoring is the default when no KO type is declared.
		return GenerateSchedule(note.ObservationStart, note.FinalValuation, models.FreqDaily)
	}
}

// kiSchedule returns the knock-in observation dates for a note. European
// KI is observed only on the final valuation date, regardless of the KO
// frequency.
func kiSchedule(note *models.Note) ([]time.Time, error) {
	if note.KIType == models.KIEuropean {
		return []time.Time{day(note.FinalValuation)}, nil
	}
	return GenerateSchedule(note.ObservationStart, note.FinalValuation, models.FreqDaily)
}

// periodIndexFor returns the 1-based index of the observation period
// containing date, given the ascending period-end boundaries. Dates past
// the last boundary belong to the last period.
func periodIndexFor(date time.Time, boundaries []time.Time) int {
	for i, b := range boundaries {
		if !date.After(b) {
			return i + 1
		}
	}
	if len(boundaries) == 0 {
		return 1
	}
	return len(boundaries)
}

// mergeDates merges two ascending date slices into one ascending,
// duplicate-free slice.
func mergeDates(a, b []time.Time) []time.Time {
	merged := make([]time.Time, 0, len(a)+len(b))
	i, j := 0, 0
	for i < len(a) || j < len(b) {
		switch {
		case i >= len(a):
			merged = appendUnique(merged, b[j])
			j++
		case j >= len(b):
			merged = appendUnique(merged, a[i])
			i++
		case a[i].Before(b[j]):
			merged = appendUnique(merged, a[i])
			i++
		case b[j].Before(a[i]):
			merged = appendUnique(merged, b[j])
			j++
		default:
			merged = appendUnique(merged, a[i])
			i++
			j++
		}
	}
	return merged
}

func appendUnique(dates []time.Time, d time.Time) []time.Time {
	if n := len(dates); n > 0 && dates[n-1].Equal(d) {
		return dates
	}
	return append(dates, d)
}
