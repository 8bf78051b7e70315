package opt

import (
	"context"
	"errors"
	"testing"

	"depotassign/internal/solver"
	"depotassign/internal/solver/solvertest"
)

func TestSearchSolvesWithLaterStrategy(t *testing.T) {
	// Baseline balance bounds (floor of avg 1.5 gives [1,1] per resource)
	// cannot hold three demands; the relaxed strategy succeeds.
	in := testInstance()
	out, err := Search(context.Background(), in, Objective{Metric: MetricDistance},
		DefaultStrategies(), solvertest.Enumerator{}, solver.Options{})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if !out.Solved {
		t.Fatal("expected a solution")
	}
	if out.StrategyIndex != 1 || out.StrategyUsed.Name != "relaxed-capacity" {
		t.Fatalf("strategy: index %d used %q", out.StrategyIndex, out.StrategyUsed.Name)
	}
	if out.Objective != 12 {
		t.Fatalf("objective: got %v, want 12", out.Objective)
	}
	if len(out.Attempts) != 2 {
		t.Fatalf("attempts: %d", len(out.Attempts))
	}
	if out.Attempts[0].Status != solver.StatusInfeasible.String() {
		t.Fatalf("first attempt: %s", out.Attempts[0].Status)
	}
	if out.Attempts[0].Diagnosis == nil {
		t.Fatal("infeasible attempt must carry a diagnosis")
	}
	want := map[string]string{"A": "X", "B": "Y", "C": "Y"}
	for _, row := range out.Assignment {
		if want[row.Demand] != row.Resource {
			t.Fatalf("assignment %s -> %s", row.Demand, row.Resource)
		}
	}
}

func TestSearchShortfallSkipsSolver(t *testing.T) {
	// Two demands against one unit of capacity: no relaxation rung can hold
	// them, so the solver is never called.
	in := NewInstance(map[string]map[string]float64{
		"X": {"A": 1, "B": 2},
	}, nil, map[string]int{"X": 1}, 0)
	script := &solvertest.Script{Steps: []solvertest.Step{{Err: errors.New("must not be called")}}}
	out, err := Search(context.Background(), in, Objective{Metric: MetricDistance},
		DefaultStrategies(), script, solver.Options{})
	if !errors.Is(err, ErrNoFeasibleSolution) {
		t.Fatalf("err: %v", err)
	}
	if script.Calls != 0 {
		t.Fatalf("solver called %d times", script.Calls)
	}
	for _, a := range out.Attempts {
		if a.Status != AttemptShortfall {
			t.Fatalf("attempt status: %s", a.Status)
		}
	}
	if out.Diagnosis == nil || out.Diagnosis.CapacityDeficit != 1 {
		t.Fatalf("diagnosis: %+v", out.Diagnosis)
	}
}

func TestSearchAbortsOnGatewayError(t *testing.T) {
	in := testInstance()
	script := &solvertest.Script{Steps: []solvertest.Step{{Err: errors.New("connection refused")}}}
	out, err := Search(context.Background(), in, Objective{Metric: MetricDistance},
		DefaultStrategies(), script, solver.Options{})
	if err == nil || errors.Is(err, ErrNoFeasibleSolution) {
		t.Fatalf("expected transport error, got %v", err)
	}
	if script.Calls != 1 {
		t.Fatalf("solver calls: %d, relaxation must not retry transport failures", script.Calls)
	}
	if len(out.Attempts) != 1 || out.Attempts[0].Status != "error" {
		t.Fatalf("attempts: %+v", out.Attempts)
	}
}

func TestSearchTimeLimitCarriesNoDiagnosis(t *testing.T) {
	in := testInstance()
	script := &solvertest.Script{Steps: []solvertest.Step{
		{Result: solver.Result{Status: solver.StatusTimeLimit}},
	}}
	out, err := Search(context.Background(), in, Objective{Metric: MetricDistance},
		DefaultStrategies(), script, solver.Options{})
	if !errors.Is(err, ErrNoFeasibleSolution) {
		t.Fatalf("err: %v", err)
	}
	if script.Calls != 3 {
		t.Fatalf("solver calls: %d, want one per strategy", script.Calls)
	}
	for _, a := range out.Attempts {
		if a.Diagnosis != nil {
			t.Fatalf("time-limited attempt must not be diagnosed: %+v", a)
		}
	}
	if out.Diagnosis != nil {
		t.Fatalf("outcome diagnosis: %+v", out.Diagnosis)
	}
}

func TestSearchNoStrategies(t *testing.T) {
	_, err := Search(context.Background(), testInstance(), Objective{Metric: MetricDistance},
		nil, solvertest.Enumerator{}, solver.Options{})
	if !errors.Is(err, ErrNoStrategies) {
		t.Fatalf("err: %v", err)
	}
}

func TestSearchCanceledContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Search(ctx, testInstance(), Objective{Metric: MetricDistance},
		DefaultStrategies(), solvertest.Enumerator{}, solver.Options{})
	if err == nil || !errors.Is(err, context.Canceled) {
		t.Fatalf("err: %v", err)
	}
}
