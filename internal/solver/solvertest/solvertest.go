// Package solvertest provides solver gateways for tests: an exhaustive
// enumerator that exactly solves tiny all-binary models, and a scripted
// gateway that replays canned results.
package solvertest

import (
	"context"
	"errors"
	"math"

	"depotassign/internal/milp"
	"depotassign/internal/solver"
)

// MaxEnumVars caps the enumerator's search space (2^n candidates).
const MaxEnumVars = 22

// Enumerator solves all-binary models by brute force. It exists so that the
// optimization pipeline can be tested end to end with proven-optimal answers
// and no solver binary on the test host.
type Enumerator struct{}

func (Enumerator) Solve(_ context.Context, m *milp.Model, _ solver.Options) (solver.Result, error) {
	n := m.NumVars()
	if n != m.NumBinaries() {
		return solver.Result{}, errors.New("solvertest: enumerator supports all-binary models only")
	}
	if n > MaxEnumVars {
		return solver.Result{}, errors.New("solvertest: model too large to enumerate")
	}
	best := math.Inf(1)
	var bestValues []float64
	values := make([]float64, n)
	for mask := 0; mask < 1<<uint(n); mask++ {
		for i := 0; i < n; i++ {
			if mask&(1<<uint(i)) != 0 {
				values[i] = 1
			} else {
				values[i] = 0
			}
		}
		if !m.Satisfied(values, 1e-9) {
			continue
		}
		obj := m.ObjectiveValue(values)
		if obj < best {
			best = obj
			bestValues = append([]float64(nil), values...)
		}
	}
	if bestValues == nil {
		return solver.Result{Status: solver.StatusInfeasible}, nil
	}
	return solver.Result{Status: solver.StatusOptimal, Objective: best, Values: bestValues}, nil
}

// Step is one scripted solve outcome.
type Step struct {
	Result solver.Result
	Err    error
}

// Script replays a fixed sequence of outcomes, one per Solve call. Calls past
// the end of the script repeat the last step.
type Script struct {
	Steps []Step
	Calls int
}

func (s *Script) Solve(_ context.Context, _ *milp.Model, _ solver.Options) (solver.Result, error) {
	if len(s.Steps) == 0 {
		return solver.Result{}, errors.New("solvertest: empty script")
	}
	i := s.Calls
	if i >= len(s.Steps) {
		i = len(s.Steps) - 1
	}
	s.Calls++
	st := s.Steps[i]
	return st.Result, st.Err
}
