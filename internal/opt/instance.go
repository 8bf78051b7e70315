// Package opt implements the capacity-constrained assignment optimizer:
// feasibility pre-checks, MILP model construction, infeasibility diagnosis,
// and a progressive constraint-relaxation search over an external solver.
package opt

import "sort"

// Instance is one immutable optimization snapshot. Cost tables are sparse:
// a missing (resource, demand) entry means the pairing is structurally
// disallowed, not free.
type Instance struct {
	// Distances maps resource id -> demand id -> cost in km.
	Distances map[string]map[string]float64
	// Times maps resource id -> demand id -> cost in minutes. Optional;
	// required only for the time objective.
	Times map[string]map[string]float64
	// Capacities maps resource id -> max assigned demand units.
	// DefaultCapacity applies to resources missing from the map.
	Capacities      map[string]int
	DefaultCapacity int

	ResourceIDs []string
	DemandIDs   []string
}

// NewInstance derives sorted id sets from the distance table and returns a
// ready instance. Demand ids are the union over all resource rows.
func NewInstance(distances, times map[string]map[string]float64, capacities map[string]int, defaultCapacity int) Instance {
	in := Instance{
		Distances:       distances,
		Times:           times,
		Capacities:      capacities,
		DefaultCapacity: defaultCapacity,
	}
	demands := map[string]struct{}{}
	for r, row := range distances {
		in.ResourceIDs = append(in.ResourceIDs, r)
		for d := range row {
			demands[d] = struct{}{}
		}
	}
	sort.Strings(in.ResourceIDs)
	for d := range demands {
		in.DemandIDs = append(in.DemandIDs, d)
	}
	sort.Strings(in.DemandIDs)
	return in
}

// Capacity returns the stated capacity for a resource, falling back to the
// instance default.
func (in Instance) Capacity(resource string) int {
	if c, ok := in.Capacities[resource]; ok {
		return c
	}
	return in.DefaultCapacity
}

// TotalCapacity sums stated capacities over all resources.
func (in Instance) TotalCapacity() int {
	total := 0
	for _, r := range in.ResourceIDs {
		total += in.Capacity(r)
	}
	return total
}

// CostTable returns the table selected by the objective metric.
func (in Instance) CostTable(metric string) map[string]map[string]float64 {
	if metric == MetricTime {
		return in.Times
	}
	return in.Distances
}

// validResources returns, per demand id, the resources holding a cost entry
// for it in the given table.
func validResources(table map[string]map[string]float64, resourceIDs []string, demand string) []string {
	var out []string
	for _, r := range resourceIDs {
		if _, ok := table[r][demand]; ok {
			out = append(out, r)
		}
	}
	return out
}

// Relaxation is one strategy's loosened constraint parameters. A value object;
// the search never mutates one in place.
type Relaxation struct {
	Name           string  `json:"name"`
	CapacityFactor float64 `json:"capacityFactor"` // >= 1; 1 means stated capacity
	Balance        bool    `json:"balance"`
	BalanceMin     float64 `json:"balanceMin"` // lower bound factor on average load
	BalanceMax     float64 `json:"balanceMax"` // upper bound factor on average load
}

// RelaxedCapacity applies the capacity factor, truncating toward zero before
// the model is built.
func (rx Relaxation) RelaxedCapacity(capacity int) int {
	if rx.CapacityFactor <= 1 {
		return capacity
	}
	return int(float64(capacity) * rx.CapacityFactor)
}

// Objective metrics.
const (
	MetricDistance = "distance"
	MetricTime     = "time"
)

// Objective selects the cost table and enables the optional model terms. The
// multi-term variant (activation cost, minimax travel-time penalty) and the
// plain single-term variant are the same builder under different settings.
type Objective struct {
	Metric string // MetricDistance or MetricTime

	// RoundTripFactor scales every pair cost (2 = out and back). 0 means 1.
	RoundTripFactor float64
	// ActivationCost, when > 0, adds a fixed cost for every resource that
	// receives at least one demand unit.
	ActivationCost float64
	// MaxTimePenalty, when > 0, adds a t_max variable bounding the worst
	// per-unit travel time, weighted by this value.
	MaxTimePenalty float64
	// SpeedKmh converts distance to travel hours for the t_max rows.
	SpeedKmh float64
	// BigMHours is the Big-M for the t_max linking rows. 0 means 4.
	BigMHours float64
}

func (o Objective) pairCost(raw float64) float64 {
	if o.RoundTripFactor > 0 {
		return raw * o.RoundTripFactor
	}
	return raw
}

func (o Objective) bigM() float64 {
	if o.BigMHours > 0 {
		return o.BigMHours
	}
	return 4
}
