package timemodel

import (
	"time"

	"github.com/juniorbasecompany/turna/domain"
)

// All interval arithmetic in this package is half-open: [start, end).
// Instants are stored in UTC; day and hour projections are computed in
// the tenant's IANA timezone.

// Overlaps reports whether two half-open hour intervals intersect.
func Overlaps(aStart, aEnd, bStart, bEnd float64) bool {
	return aStart < bEnd && bStart < aEnd
}

// SpanOverlaps reports whether two half-open instant intervals intersect.
func SpanOverlaps(aStart, aEnd, bStart, bEnd time.Time) bool {
	return aStart.Before(bEnd) && bStart.Before(aEnd)
}

// HourRange is a same-day vacation block, in hour offsets from local
// midnight.
type HourRange struct {
	Start float64 `json:"start"`
	End   float64 `json:"end"`
}

// DayRange is a cross-day vacation block, in inclusive 1-based day
// indices relative to the schedule period.
type DayRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

// Period is a half-open run of civil days in a tenant timezone. A period
// of N civil days produces day indices 1..N.
type Period struct {
	Start time.Time
	End   time.Time
	loc   *time.Location
}

// NewPeriod validates the instant pair against the tenant timezone.
func NewPeriod(start, end time.Time, loc *time.Location) (Period, error) {
	if loc == nil {
		loc = time.UTC
	}
	if !end.After(start) {
		return Period{}, domain.BadRequest("period end must be after period start")
	}
	p := Period{Start: start, End: end, loc: loc}
	if p.Days() <= 0 {
		return Period{}, domain.BadRequest("period must span at least one civil day in the tenant timezone")
	}
	return p, nil
}

// Days returns the number of civil days N covered by the period.
func (p Period) Days() int {
	return daysBetween(civilDate(p.Start, p.loc), civilDate(p.End, p.loc))
}

// DayIndex maps an instant to its 1-based day index within the period.
// Values outside [1, Days()] mean the instant falls outside the period.
func (p Period) DayIndex(t time.Time) int {
	return daysBetween(civilDate(p.Start, p.loc), civilDate(t, p.loc)) + 1
}

// HourOf projects an instant onto its hour offset from the local civil
// midnight of its own day.
func (p Period) HourOf(t time.Time) float64 {
	return HourOfDay(t, p.loc)
}

// Location returns the period's timezone.
func (p Period) Location() *time.Location { return p.loc }

// HourOfDay converts an instant to hour + minute/60 + second/3600 in loc.
func HourOfDay(t time.Time, loc *time.Location) float64 {
	lt := t.In(loc)
	return float64(lt.Hour()) + float64(lt.Minute())/60.0 + float64(lt.Second())/3600.0
}

// SplitVacation converts instant vacation spans into solver vocabulary:
// spans confined to one civil day become hour ranges, spans crossing days
// become inclusive day-index ranges. Duplicate hour ranges collapse; day
// ranges ending before the period are dropped and starts clamp to 1.
func SplitVacation(spans []domain.VacationSpan, p Period) ([]HourRange, []DayRange) {
	var hours []HourRange
	var days []DayRange
	seen := map[[2]int64]bool{}

	for _, span := range spans {
		if !span.End.After(span.Start) {
			continue
		}
		startLocal := span.Start.In(p.loc)
		endLocal := span.End.In(p.loc)
		if sameCivilDay(startLocal, endLocal) {
			hr := HourRange{Start: HourOfDay(span.Start, p.loc), End: HourOfDay(span.End, p.loc)}
			key := [2]int64{int64(hr.Start * 3600), int64(hr.End * 3600)}
			if seen[key] {
				continue
			}
			seen[key] = true
			hours = append(hours, hr)
			continue
		}
		startDay := p.DayIndex(span.Start)
		// End is exclusive: a span ending at local midnight does not block
		// the day it lands on.
		endDay := daysBetween(civilDate(p.Start, p.loc), civilDate(span.End, p.loc))
		if endDay < 1 {
			continue
		}
		if startDay < 1 {
			startDay = 1
		}
		days = append(days, DayRange{Start: startDay, End: endDay})
	}
	return hours, days
}

// civilDate returns the local calendar date of t as a UTC midnight, so
// that date differences are exact integer days regardless of DST.
func civilDate(t time.Time, loc *time.Location) time.Time {
	lt := t.In(loc)
	return time.Date(lt.Year(), lt.Month(), lt.Day(), 0, 0, 0, 0, time.UTC)
}

func daysBetween(a, b time.Time) int {
	return int(b.Sub(a).Hours() / 24)
}

func sameCivilDay(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}
