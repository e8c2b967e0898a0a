package solver

import (
	"github.com/rs/zerolog"
)

// Greedy allocation, per professional in rotated order:
//   - alternate between picking the feasible demand with the earliest
//     start and the one with the latest end, until neither rule yields a
//     candidate for that professional;
//   - respect pediatric capability, vacations and non-overlap;
//   - reservation rule: a pediatric-capable professional skips
//     non-pediatric demands while any pediatric demand remains feasible
//     for them.
func solveGreedy(demands []Demand, prosBySequence []Pro, days int, opt Options, log zerolog.Logger) Result {
	log = log.With().Str("solver", "greedy").Logger()
	totalCost := 0
	perDay := make([]DayResult, 0, days)

	log.Info().Int("days", days).Int("demands", len(demands)).Int("pros", len(prosBySequence)).
		Msg("greedy solve starting")

	for day := 1; day <= days; day++ {
		var demandsDay []Demand
		for _, d := range demands {
			if d.Day == day {
				demandsDay = append(demandsDay, d)
			}
		}

		prosForDay := rotate(prosBySequence, opt.BaseShift, day)
		assignedByDemand, assignedByPro := greedyAllocate(demandsDay, prosForDay, log)

		unassigned, pedUnassigned := 0, 0
		for i, pid := range assignedByDemand {
			if pid == nil {
				unassigned++
				if demandsDay[i].IsPediatric {
					pedUnassigned++
				}
			}
		}
		dayCost := opt.UnassignedPenalty*unassigned + opt.PedUnassignedExtraPenalty*pedUnassigned
		totalCost += dayCost

		perDay = append(perDay, DayResult{
			DayNumber:            day,
			ProsForDay:           prosForDay,
			AssignedDemandsByPro: assignedByPro,
			DemandsDay:           demandsDay,
			AssignedPIDs:         assignedByDemand,
		})

		log.Debug().Int("day", day).Int("demands", len(demandsDay)).
			Int("unassigned", unassigned).Int("ped_unassigned", pedUnassigned).
			Int("cost", dayCost).Msg("day allocated")
	}

	log.Info().Int("total_cost", totalCost).Msg("greedy solve finished")
	return Result{PerDay: perDay, TotalCost: totalCost, Status: StatusFeasible}
}

func greedyAllocate(demands []Demand, pros []Pro, log zerolog.Logger) ([]*string, map[string][]Demand) {
	remaining := make(map[int]bool, len(demands))
	for i := range demands {
		remaining[i] = true
	}
	assignedByDemand := make([]*string, len(demands))
	assignedByPro := make(map[string][]Demand, len(pros))
	for _, p := range pros {
		assignedByPro[p.ID] = nil
	}

	maxIterationsPerPro := 2 * len(demands)
	maxTotalIterations := 10 * len(demands) * len(pros)
	totalIterations := 0

	for _, p := range pros {
		if len(remaining) == 0 {
			break
		}
		pid := p.ID
		var scheduled []Demand

		feasiblePed := func(di int) bool {
			d := demands[di]
			if !d.IsPediatric || !isAvailable(p, d) {
				return false
			}
			for _, sd := range scheduled {
				if sd.Day == d.Day && overlapsDemand(sd, d) {
					return false
				}
			}
			return true
		}

		feasible := func(di int) bool {
			d := demands[di]
			if d.IsPediatric && !p.CanPeds {
				return false
			}
			if !isAvailable(p, d) {
				return false
			}
			for _, sd := range scheduled {
				if sd.Day == d.Day && overlapsDemand(sd, d) {
					return false
				}
			}
			// Reservation rule: keep pediatric-capable pros free while a
			// pediatric demand is still feasible for them.
			if p.CanPeds && !d.IsPediatric {
				for odi := range remaining {
					if demands[odi].IsPediatric && feasiblePed(odi) {
						return false
					}
				}
			}
			return true
		}

		pickEarliestStart := func() int {
			best := -1
			for di := range remaining {
				if !feasible(di) {
					continue
				}
				if best == -1 || earlierStart(demands[di], di, demands[best], best) {
					best = di
				}
			}
			return best
		}

		pickLatestEnd := func() int {
			best := -1
			for di := range remaining {
				if !feasible(di) {
					continue
				}
				if best == -1 || laterEnd(demands[di], di, demands[best], best) {
					best = di
				}
			}
			return best
		}

		pickEarliest := true
		iterationsForPro := 0
		for {
			iterationsForPro++
			totalIterations++
			// Defensive loop detection; not an expected path.
			if iterationsForPro > maxIterationsPerPro {
				log.Warn().Str("pro_id", pid).Int("iterations", iterationsForPro).
					Int("remaining", len(remaining)).Msg("greedy allocation aborted: per-pro iteration limit exceeded")
				break
			}
			if totalIterations > maxTotalIterations {
				log.Warn().Int("total_iterations", totalIterations).
					Msg("greedy allocation aborted: global iteration limit exceeded")
				break
			}

			var chosen int
			if pickEarliest {
				chosen = pickEarliestStart()
			} else {
				chosen = pickLatestEnd()
			}
			if chosen == -1 {
				// Try once with the other rule; if that fails too, this
				// professional is done.
				if pickEarliest {
					chosen = pickLatestEnd()
				} else {
					chosen = pickEarliestStart()
				}
				if chosen == -1 {
					break
				}
				pickEarliest = !pickEarliest
			}

			d := demands[chosen]
			assignedByDemand[chosen] = &pid
			assignedByPro[pid] = append(assignedByPro[pid], d)
			scheduled = append(scheduled, d)
			delete(remaining, chosen)
			pickEarliest = !pickEarliest
		}
	}

	return assignedByDemand, assignedByPro
}

func overlapsDemand(a, b Demand) bool {
	return a.Start < b.End && b.Start < a.End
}

// earlierStart orders by (start asc, end desc, index asc).
func earlierStart(a Demand, ai int, b Demand, bi int) bool {
	if a.Start != b.Start {
		return a.Start < b.Start
	}
	if a.End != b.End {
		return a.End > b.End
	}
	return ai < bi
}

// laterEnd orders by (end desc, start asc, index asc).
func laterEnd(a Demand, ai int, b Demand, bi int) bool {
	if a.End != b.End {
		return a.End > b.End
	}
	if a.Start != b.Start {
		return a.Start < b.Start
	}
	return ai < bi
}
