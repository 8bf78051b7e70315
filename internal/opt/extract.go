package opt

import (
	"errors"
	"fmt"
	"math"
	"sort"

	"depotassign/internal/solver"
)

// ErrExtractionInconsistency means the solver values violate the
// one-resource-per-demand invariant. That is a solver/model mismatch bug,
// not a data problem, and aborts the run.
var ErrExtractionInconsistency = errors.New("opt: solution violates assignment uniqueness")

// AssignmentRow is one solved pairing.
type AssignmentRow struct {
	Resource string  `json:"resourceId"`
	Demand   string  `json:"demandId"`
	Cost     float64 `json:"cost"`
}

// Assignment holds exactly one row per constrained demand, sorted by demand id.
type Assignment []AssignmentRow

// CostBucket counts pairs with cost <= UpTo (and above the previous edge).
type CostBucket struct {
	UpTo  float64 `json:"upTo"` // +Inf for the overflow bucket
	Count int     `json:"count"`
}

// Metrics aggregates a solved assignment.
type Metrics struct {
	TotalCost   float64            `json:"totalCost"`
	MeanCost    float64            `json:"meanCost"`
	Loads       map[string]int     `json:"loads"`
	Utilization map[string]float64 `json:"utilization"` // load / stated capacity
	Buckets     []CostBucket       `json:"buckets"`
}

var defaultBucketEdges = []float64{1, 2, 5, 10, 20, 50}

// Extract converts solver variable values into an assignment plus metrics.
// Only valid for optimal results.
func Extract(m *Model, res solver.Result) (Assignment, Metrics, error) {
	if res.Status != solver.StatusOptimal {
		return nil, Metrics{}, fmt.Errorf("opt: extract called with status %s", res.Status)
	}
	if len(res.Values) < len(m.LP.Vars) {
		return nil, Metrics{}, fmt.Errorf("opt: solver returned %d values for %d variables", len(res.Values), len(m.LP.Vars))
	}

	perDemand := map[string]int{}
	var rows Assignment
	for i, idx := range m.AssignVars {
		if res.Values[idx] < 0.5 {
			continue
		}
		p := m.Pairs[i]
		perDemand[p.Demand]++
		rows = append(rows, AssignmentRow{Resource: p.Resource, Demand: p.Demand, Cost: m.Costs[i]})
	}
	for _, d := range m.ConstrainedDemands {
		if perDemand[d] != 1 {
			return nil, Metrics{}, fmt.Errorf("%w: demand %s assigned %d times", ErrExtractionInconsistency, d, perDemand[d])
		}
	}
	if len(rows) != len(m.ConstrainedDemands) {
		return nil, Metrics{}, fmt.Errorf("%w: %d rows for %d constrained demands", ErrExtractionInconsistency, len(rows), len(m.ConstrainedDemands))
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Demand < rows[j].Demand })

	met := Metrics{
		Loads:       map[string]int{},
		Utilization: map[string]float64{},
	}
	for _, row := range rows {
		met.TotalCost += row.Cost
		met.Loads[row.Resource]++
	}
	if len(rows) > 0 {
		met.MeanCost = met.TotalCost / float64(len(rows))
	}
	for r, load := range met.Loads {
		if c := m.Capacities[r]; c > 0 {
			met.Utilization[r] = float64(load) / float64(c)
		}
	}
	met.Buckets = bucketCosts(rows, defaultBucketEdges)
	return rows, met, nil
}

func bucketCosts(rows Assignment, edges []float64) []CostBucket {
	buckets := make([]CostBucket, len(edges)+1)
	for i, e := range edges {
		buckets[i].UpTo = e
	}
	buckets[len(edges)].UpTo = math.Inf(1)
	for _, row := range rows {
		placed := false
		for i, e := range edges {
			if row.Cost <= e {
				buckets[i].Count++
				placed = true
				break
			}
		}
		if !placed {
			buckets[len(edges)].Count++
		}
	}
	return buckets
}
