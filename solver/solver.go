package solver

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/juniorbasecompany/turna/domain"
	"github.com/juniorbasecompany/turna/timemodel"
)

// The solver operates on hour offsets from the tenant-local civil
// midnight of each day in the schedule period; days are 1-based indices.
// It never touches the store: inputs are normalized demands and
// professionals, output is a per-day assignment plus a total cost.

// Demand is one surgical case in solver space.
type Demand struct {
	ID          string  `json:"id"`
	Day         int     `json:"day"`
	Start       float64 `json:"start"`
	End         float64 `json:"end"`
	IsPediatric bool    `json:"is_pediatric"`
	// DemandRowID links back to the Demand row; empty in preview mode.
	DemandRowID string `json:"demand_id,omitempty"`
	HospitalID  string `json:"hospital_id,omitempty"`
}

// Pro is one schedulable professional.
type Pro struct {
	ID           string                `json:"id"`
	Name         string                `json:"name"`
	Sequence     int                   `json:"sequence"`
	CanPeds      bool                  `json:"can_peds"`
	Vacation     []timemodel.HourRange `json:"vacation"`
	VacationDays []timemodel.DayRange  `json:"vacation_days"`
}

// Mode selects the allocation algorithm.
type Mode string

const (
	ModeGreedy Mode = "greedy"
	ModeCPSAT  Mode = "cp_sat"
)

func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeGreedy, ModeCPSAT:
		return Mode(s), nil
	case "":
		return ModeGreedy, nil
	}
	return "", domain.BadRequest("unsupported allocation_mode %q (expected: greedy|cp_sat)", s)
}

// Options carries the cost constants and search limits.
type Options struct {
	UnassignedPenalty         int
	PedUnassignedExtraPenalty int
	PedProOnNonPedPenalty     int
	BaseShift                 int
	AllowUnassigned           bool
	MaxTime                   time.Duration
	Workers                   int
}

// DefaultOptions mirrors the shipped configuration defaults.
func DefaultOptions() Options {
	return Options{
		UnassignedPenalty:         1000,
		PedUnassignedExtraPenalty: 1000,
		PedProOnNonPedPenalty:     1,
		AllowUnassigned:           true,
		MaxTime:                   5 * time.Second,
		Workers:                   8,
	}
}

type Status string

const (
	// StatusOptimal means the search proved the cost minimal.
	StatusOptimal Status = "OPTIMAL"
	// StatusFeasible means a valid assignment was found but the time cap
	// truncated the search (or the algorithm gives no optimality proof).
	StatusFeasible Status = "FEASIBLE"
	// StatusInfeasible means the hard rules conflict; the Report explains
	// the bottleneck and the assignment is empty.
	StatusInfeasible Status = "INFEASIBLE"
)

// DayResult is the per-day output consumed by the materializer and the
// PDF reconstruction.
type DayResult struct {
	DayNumber            int                 `json:"day_number"`
	ProsForDay           []Pro               `json:"pros_for_day"`
	AssignedDemandsByPro map[string][]Demand `json:"assigned_demands_by_pro"`
	DemandsDay           []Demand            `json:"demands_day"`
	AssignedPIDs         []*string           `json:"assigned_pids"`
}

type Result struct {
	PerDay    []DayResult
	TotalCost int
	Status    Status
	// Report is the infeasibility diagnostic, empty otherwise.
	Report string
}

// Solve dispatches to the requested algorithm. Professionals must arrive
// sorted by sequence; days is the period length N.
func Solve(ctx context.Context, mode Mode, demands []Demand, prosBySequence []Pro, days int, opt Options, log zerolog.Logger) (Result, error) {
	if len(prosBySequence) == 0 {
		return Result{}, domain.BadRequest("no professionals available for allocation")
	}
	if days <= 0 {
		return Result{}, domain.BadRequest("period must span at least one day")
	}
	switch mode {
	case ModeGreedy:
		return solveGreedy(demands, prosBySequence, days, opt, log), nil
	case ModeCPSAT:
		return solveCPSAT(ctx, demands, prosBySequence, days, opt, log), nil
	}
	return Result{}, domain.BadRequest("unsupported allocation_mode %q", string(mode))
}

// isAvailable applies the vacation rules: hour blocks veto overlapping
// windows, day blocks veto the whole day.
func isAvailable(p Pro, d Demand) bool {
	for _, dr := range p.VacationDays {
		if d.Day >= dr.Start && d.Day <= dr.End {
			return false
		}
	}
	for _, hr := range p.Vacation {
		if timemodel.Overlaps(hr.Start, hr.End, d.Start, d.End) {
			return false
		}
	}
	return true
}

// rotate returns the pro ordering for a 1-based day:
// start index (baseShift + day - 1) mod n gives fair first-pick rotation.
func rotate(pros []Pro, baseShift, dayNumber int) []Pro {
	n := len(pros)
	start := (baseShift + dayNumber - 1) % n
	out := make([]Pro, 0, n)
	out = append(out, pros[start:]...)
	out = append(out, pros[:start]...)
	return out
}
