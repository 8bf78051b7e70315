// Package solver submits milp models to an external MILP solver and
// normalizes the outcome. Infeasibility is a status, not an error; errors are
// reserved for transport and invocation failures.
package solver

import (
	"context"
	"time"

	"depotassign/internal/milp"
)

// Status is the normalized solver outcome.
type Status int

const (
	StatusUnknown Status = iota
	StatusOptimal
	StatusInfeasible
	// StatusTimeLimit means the time budget expired before optimality was
	// proven. Values may hold an incumbent; callers must not treat it as
	// optimal without explicit acceptance.
	StatusTimeLimit
)

func (s Status) String() string {
	switch s {
	case StatusOptimal:
		return "optimal"
	case StatusInfeasible:
		return "infeasible"
	case StatusTimeLimit:
		return "time_limit"
	}
	return "unknown"
}

// Options bound a single solve invocation.
type Options struct {
	TimeLimit time.Duration
	Gap       float64 // relative optimality gap tolerance, e.g. 0.02
}

// Result is the normalized answer from a gateway.
type Result struct {
	Status    Status
	Objective float64
	Values    []float64 // indexed by model variable; empty when no incumbent
}

// Gateway solves a model through some external backend. Implementations must
// return a nil error for solver-reported infeasibility and reserve errors for
// cases where the solver could not be invoked or crashed.
type Gateway interface {
	Solve(ctx context.Context, m *milp.Model, opts Options) (Result, error)
}
