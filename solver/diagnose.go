package solver

import (
	"fmt"
	"sort"
	"strings"

	"github.com/samber/lo"
)

// BuildInfeasibilityReport explains why the hard rules admit no complete
// assignment: per-demand eligibility (which demands no professional can
// take) and per-time-segment bottlenecks (where concurrent demand exceeds
// available staff). It is a diagnostic for operators, not an error.
func BuildInfeasibilityReport(demands []Demand, pros []Pro) string {
	var b strings.Builder
	b.WriteString("no feasible assignment under the hard rules\n")

	b.WriteString("\nper-demand eligibility:\n")
	for _, d := range demands {
		eligible := lo.Filter(pros, func(p Pro, _ int) bool {
			if d.IsPediatric && !p.CanPeds {
				return false
			}
			return isAvailable(p, d)
		})
		names := lo.Map(eligible, func(p Pro, _ int) string { return p.Name })
		kind := ""
		if d.IsPediatric {
			kind = " [pediatric]"
		}
		if len(eligible) == 0 {
			fmt.Fprintf(&b, "  demand %s day %d [%.2f, %.2f)%s: NO eligible professional\n",
				d.ID, d.Day, d.Start, d.End, kind)
		} else {
			fmt.Fprintf(&b, "  demand %s day %d [%.2f, %.2f)%s: %d eligible (%s)\n",
				d.ID, d.Day, d.Start, d.End, kind, len(eligible), strings.Join(names, ", "))
		}
	}

	b.WriteString("\nper-segment load:\n")
	byDay := lo.GroupBy(demands, func(d Demand) int { return d.Day })
	days := lo.Keys(byDay)
	sort.Ints(days)
	for _, day := range days {
		dayDemands := byDay[day]
		for _, seg := range segments(dayDemands) {
			concurrent := lo.CountBy(dayDemands, func(d Demand) bool {
				return d.Start < seg.End && seg.Start < d.End
			})
			probe := Demand{Day: day, Start: seg.Start, End: seg.End}
			available := lo.CountBy(pros, func(p Pro) bool { return isAvailable(p, probe) })
			marker := ""
			if concurrent > available {
				marker = "  <-- bottleneck"
			}
			fmt.Fprintf(&b, "  day %d [%.2f, %.2f): %d concurrent demands, %d available pros%s\n",
				day, seg.Start, seg.End, concurrent, available, marker)
		}
	}
	return b.String()
}

type segment struct {
	Start, End float64
}

// segments splits a day into the maximal intervals between demand
// boundaries.
func segments(demands []Demand) []segment {
	points := map[float64]bool{}
	for _, d := range demands {
		points[d.Start] = true
		points[d.End] = true
	}
	sorted := lo.Keys(points)
	sort.Float64s(sorted)

	var out []segment
	for i := 0; i+1 < len(sorted); i++ {
		out = append(out, segment{Start: sorted[i], End: sorted[i+1]})
	}
	return out
}
