package solver

import (
	"context"
	"sort"
	"sync"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// cp_sat mode solves the exact model the greedy heuristic approximates:
//
//	x[p,d] ∈ {0,1}  p assigned to d
//	u[d]   ∈ {0,1}  d unassigned (present iff unassigned allowed)
//	Σ_p x[p,d] + u[d] = 1
//	x[p,d1] + x[p,d2] ≤ 1   for same-day overlapping pairs
//	x[p,d] = 0              when p lacks can_peds and d is pediatric
//	x[p,d] = 0              when p's vacation intersects d's window
//	minimize Σ UNASSIGNED·u[d] + Σ_ped PED_EXTRA·u[d] + Σ PED_RESERVE·x[p,d]
//	                                                      (pedi p on non-ped d)
//
// Days are independent under these constraints, so the search runs one
// branch-and-bound per day, fanned out across the worker budget. A day
// whose search finishes inside the wall cap is proven optimal; a
// truncated day keeps its best incumbent.
func solveCPSAT(ctx context.Context, demands []Demand, prosBySequence []Pro, days int, opt Options, log zerolog.Logger) Result {
	log = log.With().Str("solver", "cp_sat").Logger()

	ctx, cancel := context.WithTimeout(ctx, opt.MaxTime)
	defer cancel()

	type dayOutcome struct {
		assigned []*string
		cost     int
		optimal  bool
		feasible bool
	}

	demandsByDay := make([][]Demand, days+1)
	for _, d := range demands {
		if d.Day >= 1 && d.Day <= days {
			demandsByDay[d.Day] = append(demandsByDay[d.Day], d)
		}
	}

	outcomes := make([]dayOutcome, days+1)
	g, gctx := errgroup.WithContext(ctx)
	workers := opt.Workers
	if workers <= 0 {
		workers = 1
	}
	g.SetLimit(workers)

	for day := 1; day <= days; day++ {
		day := day
		g.Go(func() error {
			s := &daySearch{
				demands: orderForSearch(demandsByDay[day]),
				pros:    prosBySequence,
				opt:     opt,
				ctx:     gctx,
			}
			assigned, cost, optimal, feasible := s.run()
			outcomes[day] = dayOutcome{assigned: assigned, cost: cost, optimal: optimal, feasible: feasible}
			return nil
		})
	}
	_ = g.Wait()

	result := Result{Status: StatusOptimal}
	for day := 1; day <= days; day++ {
		out := outcomes[day]
		ordered := orderForSearch(demandsByDay[day])

		if !out.feasible {
			// Hard rules conflict on this day. Report the bottleneck and
			// fall back to an empty assignment for the day.
			result.Status = StatusInfeasible
			result.Report = BuildInfeasibilityReport(ordered, prosBySequence)
			log.Warn().Int("day", day).Msg("no feasible assignment under hard rules")
			out.assigned = make([]*string, len(ordered))
			out.cost = 0
		} else if !out.optimal && result.Status == StatusOptimal {
			result.Status = StatusFeasible
		}

		assignedByPro := make(map[string][]Demand, len(prosBySequence))
		for _, p := range prosBySequence {
			assignedByPro[p.ID] = nil
		}
		for i, pid := range out.assigned {
			if pid != nil {
				assignedByPro[*pid] = append(assignedByPro[*pid], ordered[i])
			}
		}

		result.PerDay = append(result.PerDay, DayResult{
			DayNumber:            day,
			ProsForDay:           rotate(prosBySequence, opt.BaseShift, day),
			AssignedDemandsByPro: assignedByPro,
			DemandsDay:           ordered,
			AssignedPIDs:         out.assigned,
		})
		result.TotalCost += out.cost
	}

	log.Info().Int("total_cost", result.TotalCost).Str("status", string(result.Status)).
		Msg("cp_sat solve finished")
	return result
}

// orderForSearch fixes the branching order: earliest start first, then
// longest window, then id, so results are reproducible.
func orderForSearch(demands []Demand) []Demand {
	out := make([]Demand, len(demands))
	copy(out, demands)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Start != out[j].Start {
			return out[i].Start < out[j].Start
		}
		if out[i].End != out[j].End {
			return out[i].End > out[j].End
		}
		return out[i].ID < out[j].ID
	})
	return out
}

type daySearch struct {
	demands []Demand
	pros    []Pro
	opt     Options
	ctx     context.Context

	mu        sync.Mutex
	bestCost  int
	bestFound bool
	best      []*string

	truncated bool
}

// run explores assignments depth-first with cost pruning. Returns the
// incumbent assignment, its cost, whether the search completed (optimality
// proof) and whether any complete assignment exists.
func (s *daySearch) run() (assigned []*string, cost int, optimal, feasible bool) {
	if len(s.demands) == 0 {
		return nil, 0, true, true
	}

	// With unassigned allowed there is always the trivial incumbent of
	// leaving everything uncovered; seed it so truncation still yields a
	// valid answer.
	if s.opt.AllowUnassigned {
		trivial := make([]*string, len(s.demands))
		s.bestCost = 0
		for _, d := range s.demands {
			s.bestCost += s.opt.UnassignedPenalty
			if d.IsPediatric {
				s.bestCost += s.opt.PedUnassignedExtraPenalty
			}
		}
		s.best = trivial
		s.bestFound = true
	}

	current := make([]*string, len(s.demands))
	proLoad := make(map[string][]Demand, len(s.pros))
	s.dfs(0, 0, current, proLoad)

	if !s.bestFound {
		return nil, 0, !s.truncated, false
	}
	return s.best, s.bestCost, !s.truncated, true
}

func (s *daySearch) dfs(idx, costSoFar int, current []*string, proLoad map[string][]Demand) {
	if s.ctx.Err() != nil {
		s.truncated = true
		return
	}
	s.mu.Lock()
	prune := s.bestFound && costSoFar >= s.bestCost
	s.mu.Unlock()
	if prune {
		return
	}
	if idx == len(s.demands) {
		s.mu.Lock()
		if !s.bestFound || costSoFar < s.bestCost {
			s.bestFound = true
			s.bestCost = costSoFar
			s.best = make([]*string, len(current))
			copy(s.best, current)
		}
		s.mu.Unlock()
		return
	}

	d := s.demands[idx]
	for i := range s.pros {
		p := s.pros[i]
		if d.IsPediatric && !p.CanPeds {
			continue
		}
		if !isAvailable(p, d) {
			continue
		}
		clash := false
		for _, sd := range proLoad[p.ID] {
			if overlapsDemand(sd, d) {
				clash = true
				break
			}
		}
		if clash {
			continue
		}
		step := 0
		if p.CanPeds && !d.IsPediatric {
			step = s.opt.PedProOnNonPedPenalty
		}
		pid := p.ID
		current[idx] = &pid
		proLoad[p.ID] = append(proLoad[p.ID], d)
		s.dfs(idx+1, costSoFar+step, current, proLoad)
		proLoad[p.ID] = proLoad[p.ID][:len(proLoad[p.ID])-1]
		current[idx] = nil
	}

	if s.opt.AllowUnassigned {
		step := s.opt.UnassignedPenalty
		if d.IsPediatric {
			step += s.opt.PedUnassignedExtraPenalty
		}
		current[idx] = nil
		s.dfs(idx+1, costSoFar+step, current, proLoad)
	}
}
