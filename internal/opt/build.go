package opt

import (
	"fmt"
	"math"

	"depotassign/internal/milp"
)

// Pair identifies one assignment decision variable.
type Pair struct {
	Resource string `json:"resourceId"`
	Demand   string `json:"demandId"`
}

// Model wraps the linear program together with the explicit mapping from
// every solver variable back to its (resource, demand) pair. The mapping is
// recorded at construction time; nothing downstream parses variable names.
type Model struct {
	LP         *milp.Model
	Pairs      []Pair    // Pairs[i] belongs to AssignVars[i]
	AssignVars []int
	Costs      []float64 // raw table cost per pair, before objective scaling

	// ActivationVars maps resource id -> y variable index when the
	// activation-cost term is enabled.
	ActivationVars map[string]int
	// TMaxVar is the t_max variable index, or -1.
	TMaxVar int

	// ConstrainedDemands are the demand ids that received an assignment row
	// (those with at least one valid pair).
	ConstrainedDemands []string

	Capacities map[string]int // stated (unrelaxed) capacities, for utilization
	Relaxation Relaxation
	Objective  Objective
}

// Build constructs a fresh model for one relaxation attempt. Idempotent and
// side-effect free: identical inputs produce an equivalent model, and no
// state leaks between attempts.
func Build(in Instance, obj Objective, rx Relaxation) *Model {
	table := in.CostTable(obj.Metric)
	name := fmt.Sprintf("assign_%s_%s", metricName(obj.Metric), strategyName(rx))
	m := &Model{
		LP:         milp.New(name),
		TMaxVar:    -1,
		Capacities: map[string]int{},
		Relaxation: rx,
		Objective:  obj,
	}

	// One binary per defined cost pair. Sparse by construction: disallowed
	// pairings never become variables.
	varsByResource := map[string][]int{}
	varsByDemand := map[string][]int{}
	for _, r := range in.ResourceIDs {
		m.Capacities[r] = in.Capacity(r)
		row := table[r]
		for _, d := range in.DemandIDs {
			cost, ok := row[d]
			if !ok {
				continue
			}
			idx := m.LP.AddBinary(fmt.Sprintf("x_%d", len(m.Pairs)), obj.pairCost(cost))
			m.Pairs = append(m.Pairs, Pair{Resource: r, Demand: d})
			m.AssignVars = append(m.AssignVars, idx)
			m.Costs = append(m.Costs, cost)
			varsByResource[r] = append(varsByResource[r], idx)
			varsByDemand[d] = append(varsByDemand[d], idx)
		}
	}

	if obj.ActivationCost > 0 {
		m.ActivationVars = map[string]int{}
		for _, r := range in.ResourceIDs {
			if len(varsByResource[r]) == 0 {
				continue
			}
			m.ActivationVars[r] = m.LP.AddBinary("y_"+r, obj.ActivationCost)
		}
	}
	if obj.MaxTimePenalty > 0 {
		m.TMaxVar = m.LP.AddContinuous("t_max", 0, math.Inf(1), obj.MaxTimePenalty)
	}

	// Exactly one resource per demand — only for demands with a valid pair.
	// Isolated demands were flagged by the pre-check; giving them an
	// unsatisfiable row here would reproduce the failure without a diagnosis.
	for _, d := range in.DemandIDs {
		vars := varsByDemand[d]
		if len(vars) == 0 {
			continue
		}
		m.ConstrainedDemands = append(m.ConstrainedDemands, d)
		m.LP.AddConstraint("assign_"+d, ones(vars), milp.EQ, 1)
	}

	// Capacity, with the relaxation factor truncated ahead of the solver.
	for _, r := range in.ResourceIDs {
		vars := varsByResource[r]
		if len(vars) == 0 {
			continue
		}
		capacity := rx.RelaxedCapacity(in.Capacity(r))
		if yIdx, ok := m.ActivationVars[r]; ok {
			terms := ones(vars)
			terms = append(terms, milp.Term{Var: yIdx, Coef: -float64(capacity)})
			m.LP.AddConstraint("cap_"+r, terms, milp.LE, 0)
		} else {
			m.LP.AddConstraint("cap_"+r, ones(vars), milp.LE, float64(capacity))
		}
	}

	// Optional load balance around the average. Resources with fewer valid
	// pairs than the lower bound are exempt, so thin routing data does not
	// manufacture infeasibility.
	if rx.Balance && len(in.ResourceIDs) > 0 {
		avg := float64(len(in.DemandIDs)) / float64(len(in.ResourceIDs))
		minLoad := int(avg * rx.BalanceMin)
		maxLoad := int(avg * rx.BalanceMax)
		for _, r := range in.ResourceIDs {
			vars := varsByResource[r]
			if len(vars) == 0 || len(vars) < minLoad {
				continue
			}
			if minLoad > 0 {
				m.LP.AddConstraint("bal_min_"+r, ones(vars), milp.GE, float64(minLoad))
			}
			m.LP.AddConstraint("bal_max_"+r, ones(vars), milp.LE, float64(maxLoad))
		}
	}

	// Big-M rows linking each assignment to the worst travel time. Travel
	// hours derive from the distance table at the configured average speed.
	if m.TMaxVar >= 0 {
		speed := obj.SpeedKmh
		if speed <= 0 {
			speed = 20
		}
		bigM := obj.bigM()
		for i, idx := range m.AssignVars {
			p := m.Pairs[i]
			dist, ok := in.Distances[p.Resource][p.Demand]
			if !ok {
				continue
			}
			hours := dist / speed
			// hours*x <= t_max + M*(1-x)  =>  (hours+M)*x - t_max <= M
			m.LP.AddConstraint(
				fmt.Sprintf("tmax_%d", i),
				[]milp.Term{{Var: idx, Coef: hours + bigM}, {Var: m.TMaxVar, Coef: -1}},
				milp.LE, bigM,
			)
		}
	}

	return m
}

func ones(vars []int) []milp.Term {
	terms := make([]milp.Term, len(vars))
	for i, v := range vars {
		terms[i] = milp.Term{Var: v, Coef: 1}
	}
	return terms
}

func metricName(metric string) string {
	if metric == MetricTime {
		return MetricTime
	}
	return MetricDistance
}

func strategyName(rx Relaxation) string {
	if rx.Name != "" {
		return rx.Name
	}
	return "unnamed"
}
