package opt

import (
	"context"
	"errors"
	"fmt"
	"time"

	"depotassign/internal/solver"
)

var (
	// ErrNoFeasibleSolution means every relaxation strategy was exhausted
	// without an optimal solution. The returned Outcome carries the first
	// (tightest) attempt's diagnosis.
	ErrNoFeasibleSolution = errors.New("opt: no feasible solution under any strategy")
	// ErrNoStrategies means the caller supplied an empty strategy list.
	ErrNoStrategies = errors.New("opt: no relaxation strategies supplied")
)

// Attempt statuses beyond the solver's own.
const (
	// AttemptShortfall marks attempts skipped before the solver because the
	// relaxed capacities still cannot hold the demand count.
	AttemptShortfall = "data_shortfall"
)

// Attempt records one strategy's outcome, kept even when a later strategy
// succeeds so operators can see how much relaxation was needed.
type Attempt struct {
	Strategy  Relaxation    `json:"strategy"`
	Status    string        `json:"status"`
	Objective float64       `json:"objective,omitempty"`
	Diagnosis *Diagnosis    `json:"diagnosis,omitempty"`
	Elapsed   time.Duration `json:"elapsed"`
}

// Outcome is the result of a relaxation search.
type Outcome struct {
	Solved        bool
	Assignment    Assignment
	Metrics       Metrics
	Objective     float64
	StrategyIndex int
	StrategyUsed  Relaxation
	Attempts      []Attempt
	// Diagnosis is the first failed attempt's diagnosis when the search
	// terminates without a solution.
	Diagnosis *Diagnosis
	// Report is the initial feasibility pre-check.
	Report Report
}

// Search tries the strategies strictly in order, building a fresh model per
// attempt: Optimal stops the search, Infeasible diagnoses and moves on, a
// gateway error aborts immediately (relaxing constraints cannot fix a
// transport failure). States: Idle -> Attempting(i) -> {Solved,
// Attempting(i+1), Failed, Aborted}.
func Search(ctx context.Context, in Instance, obj Objective, strategies []Relaxation, gw solver.Gateway, opts solver.Options) (Outcome, error) {
	out := Outcome{StrategyIndex: -1, Report: Check(in)}
	if len(strategies) == 0 {
		return out, ErrNoStrategies
	}

	assignable := len(in.DemandIDs) - len(out.Report.IsolatedDemands)
	for i, rx := range strategies {
		if err := ctx.Err(); err != nil {
			return out, fmt.Errorf("opt: search canceled: %w", err)
		}

		// Necessary condition under this strategy's capacities; when it
		// fails the solver is never invoked for the attempt.
		if assignable > relaxedTotalCapacity(in, rx) {
			d := Diagnose(in)
			out.Attempts = append(out.Attempts, Attempt{Strategy: rx, Status: AttemptShortfall, Diagnosis: &d})
			continue
		}

		m := Build(in, obj, rx)
		start := time.Now()
		res, err := gw.Solve(ctx, m.LP, opts)
		elapsed := time.Since(start)
		if err != nil {
			out.Attempts = append(out.Attempts, Attempt{Strategy: rx, Status: "error", Elapsed: elapsed})
			return out, fmt.Errorf("opt: solver failed on strategy %q: %w", strategyName(rx), err)
		}

		att := Attempt{Strategy: rx, Status: res.Status.String(), Objective: res.Objective, Elapsed: elapsed}
		switch res.Status {
		case solver.StatusOptimal:
			assignment, metrics, err := Extract(m, res)
			if err != nil {
				out.Attempts = append(out.Attempts, att)
				return out, err
			}
			out.Attempts = append(out.Attempts, att)
			out.Solved = true
			out.Assignment = assignment
			out.Metrics = metrics
			out.Objective = res.Objective
			out.StrategyIndex = i
			out.StrategyUsed = rx
			return out, nil
		case solver.StatusInfeasible:
			d := Diagnose(in)
			att.Diagnosis = &d
		}
		// Time limit and unknown statuses carry no diagnosis; the model was
		// not proven infeasible, the budget just ran out.
		out.Attempts = append(out.Attempts, att)
	}

	for i := range out.Attempts {
		if out.Attempts[i].Diagnosis != nil {
			out.Diagnosis = out.Attempts[i].Diagnosis
			break
		}
	}
	return out, ErrNoFeasibleSolution
}

func relaxedTotalCapacity(in Instance, rx Relaxation) int {
	total := 0
	for _, r := range in.ResourceIDs {
		total += rx.RelaxedCapacity(in.Capacity(r))
	}
	return total
}

// DefaultStrategies mirrors the production ladder: strict baseline first so a
// normal instance never pays for relaxation, then relaxed capacity, then no
// balance at all. The balance factors are tunable; these are starting points,
// not constants the model depends on.
func DefaultStrategies() []Relaxation {
	return []Relaxation{
		{Name: "baseline", CapacityFactor: 1, Balance: true, BalanceMin: 0.75, BalanceMax: 1.25},
		{Name: "relaxed-capacity", CapacityFactor: 1.5, Balance: true, BalanceMin: 0.3, BalanceMax: 3.0},
		{Name: "no-balance", CapacityFactor: 1.5, Balance: false},
	}
}
