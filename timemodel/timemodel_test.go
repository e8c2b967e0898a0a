package timemodel

import (
	"testing"
	"time"

	"github.com/juniorbasecompany/turna/domain"
)

func mustLoc(t *testing.T, name string) *time.Location {
	t.Helper()
	loc, err := time.LoadLocation(name)
	if err != nil {
		t.Fatalf("load location %s: %v", name, err)
	}
	return loc
}

func TestOverlapsHalfOpen(t *testing.T) {
	tests := []struct {
		name                           string
		aStart, aEnd, bStart, bEnd     float64
		want                           bool
	}{
		{"disjoint", 6, 9, 10, 12, false},
		{"touching endpoints do not overlap", 6, 9, 9, 12, false},
		{"nested", 6, 12, 8, 9, true},
		{"partial", 6, 9, 8, 12, true},
		{"identical", 6, 9, 6, 9, true},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := Overlaps(tc.aStart, tc.aEnd, tc.bStart, tc.bEnd); got != tc.want {
				t.Fatalf("Overlaps(%v,%v,%v,%v) = %v, want %v", tc.aStart, tc.aEnd, tc.bStart, tc.bEnd, got, tc.want)
			}
		})
	}
}

func TestPeriodDaysAndIndex(t *testing.T) {
	loc := mustLoc(t, "America/Sao_Paulo")
	// 2024-03-01T00:00 local to 2024-03-08T00:00 local: 7 civil days.
	start := time.Date(2024, 3, 1, 3, 0, 0, 0, time.UTC) // 00:00 local (UTC-3)
	end := time.Date(2024, 3, 8, 3, 0, 0, 0, time.UTC)

	p, err := NewPeriod(start, end, loc)
	if err != nil {
		t.Fatalf("NewPeriod: %v", err)
	}
	if got := p.Days(); got != 7 {
		t.Fatalf("Days() = %d, want 7", got)
	}

	// 2024-03-01T08:30 local.
	d1 := time.Date(2024, 3, 1, 11, 30, 0, 0, time.UTC)
	if got := p.DayIndex(d1); got != 1 {
		t.Fatalf("DayIndex(first morning) = %d, want 1", got)
	}
	if got := p.HourOf(d1); got != 8.5 {
		t.Fatalf("HourOf = %v, want 8.5", got)
	}

	// Last covered day.
	d7 := time.Date(2024, 3, 7, 12, 0, 0, 0, time.UTC)
	if got := p.DayIndex(d7); got != 7 {
		t.Fatalf("DayIndex(last day) = %d, want 7", got)
	}

	// One day past the period.
	d8 := time.Date(2024, 3, 8, 12, 0, 0, 0, time.UTC)
	if got := p.DayIndex(d8); got != 8 {
		t.Fatalf("DayIndex(past end) = %d, want 8 (outside [1,7])", got)
	}
}

func TestPeriodCrossesUTCBoundary(t *testing.T) {
	loc := mustLoc(t, "America/Sao_Paulo")
	// 2024-03-01T23:00 local is 2024-03-02T02:00 UTC; locally still day 1.
	start := time.Date(2024, 3, 1, 3, 0, 0, 0, time.UTC)
	end := time.Date(2024, 3, 4, 3, 0, 0, 0, time.UTC)
	p, err := NewPeriod(start, end, loc)
	if err != nil {
		t.Fatalf("NewPeriod: %v", err)
	}
	lateEvening := time.Date(2024, 3, 2, 2, 0, 0, 0, time.UTC)
	if got := p.DayIndex(lateEvening); got != 1 {
		t.Fatalf("DayIndex(23:00 local) = %d, want 1", got)
	}
	if got := p.HourOf(lateEvening); got != 23 {
		t.Fatalf("HourOf(23:00 local) = %v, want 23", got)
	}
}

func TestNewPeriodRejectsInverted(t *testing.T) {
	start := time.Date(2024, 3, 8, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)
	if _, err := NewPeriod(start, end, time.UTC); err == nil {
		t.Fatal("expected error for inverted period")
	}
	// Same instant is also invalid.
	if _, err := NewPeriod(start, start, time.UTC); err == nil {
		t.Fatal("expected error for empty period")
	}
	// Under one civil day is invalid.
	if _, err := NewPeriod(start, start.Add(2*time.Hour), time.UTC); err == nil {
		t.Fatal("expected error for sub-day period")
	}
}

func TestSplitVacation(t *testing.T) {
	loc := time.UTC
	start := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	end := time.Date(2024, 5, 11, 0, 0, 0, 0, time.UTC)
	p, err := NewPeriod(start, end, loc)
	if err != nil {
		t.Fatalf("NewPeriod: %v", err)
	}

	spans := []domain.VacationSpan{
		// Same-day block: 09:00-12:00 on day 2.
		{Start: time.Date(2024, 5, 2, 9, 0, 0, 0, time.UTC), End: time.Date(2024, 5, 2, 12, 0, 0, 0, time.UTC)},
		// Duplicate hour block on another day collapses.
		{Start: time.Date(2024, 5, 3, 9, 0, 0, 0, time.UTC), End: time.Date(2024, 5, 3, 12, 0, 0, 0, time.UTC)},
		// Cross-day block: days 4..6 (end midnight of day 7 is exclusive).
		{Start: time.Date(2024, 5, 4, 0, 0, 0, 0, time.UTC), End: time.Date(2024, 5, 7, 0, 0, 0, 0, time.UTC)},
		// Starts before the period: clamps to day 1.
		{Start: time.Date(2024, 4, 28, 0, 0, 0, 0, time.UTC), End: time.Date(2024, 5, 2, 0, 0, 0, 0, time.UTC)},
		// Inverted span is dropped.
		{Start: time.Date(2024, 5, 9, 12, 0, 0, 0, time.UTC), End: time.Date(2024, 5, 9, 9, 0, 0, 0, time.UTC)},
	}

	hours, days := SplitVacation(spans, p)
	if len(hours) != 1 {
		t.Fatalf("hours = %v, want one deduplicated block", hours)
	}
	if hours[0].Start != 9 || hours[0].End != 12 {
		t.Fatalf("hours[0] = %+v, want [9,12)", hours[0])
	}
	if len(days) != 2 {
		t.Fatalf("days = %v, want two ranges", days)
	}
	if days[0].Start != 4 || days[0].End != 6 {
		t.Fatalf("days[0] = %+v, want [4,6]", days[0])
	}
	if days[1].Start != 1 || days[1].End != 1 {
		t.Fatalf("days[1] = %+v, want [1,1] (clamped)", days[1])
	}
}
