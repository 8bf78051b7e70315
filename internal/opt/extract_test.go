package opt

import (
	"context"
	"errors"
	"math"
	"testing"

	"depotassign/internal/solver"
	"depotassign/internal/solver/solvertest"
)

func TestExtractAssignmentAndMetrics(t *testing.T) {
	m := Build(testInstance(), Objective{Metric: MetricDistance}, Relaxation{Name: "plain", CapacityFactor: 1})
	res, err := solvertest.Enumerator{}.Solve(context.Background(), m.LP, solver.Options{})
	if err != nil {
		t.Fatalf("solve: %v", err)
	}
	if res.Status != solver.StatusOptimal {
		t.Fatalf("status: %s", res.Status)
	}
	rows, met, err := Extract(m, res)
	if err != nil {
		t.Fatalf("extract: %v", err)
	}
	if len(rows) != 3 {
		t.Fatalf("rows: %d", len(rows))
	}
	// Sorted by demand id.
	for i := 1; i < len(rows); i++ {
		if rows[i-1].Demand > rows[i].Demand {
			t.Fatalf("rows out of order: %+v", rows)
		}
	}
	if met.TotalCost != 12 {
		t.Fatalf("total cost: %v", met.TotalCost)
	}
	if met.MeanCost != 4 {
		t.Fatalf("mean cost: %v", met.MeanCost)
	}
	if met.Loads["X"] != 1 || met.Loads["Y"] != 2 {
		t.Fatalf("loads: %v", met.Loads)
	}
	if met.Utilization["X"] != 1 || met.Utilization["Y"] != 1 {
		t.Fatalf("utilization: %v", met.Utilization)
	}
	// Costs 3, 4, 5 all land in the <=5 bucket.
	var bucketed int
	for _, b := range met.Buckets {
		bucketed += b.Count
		if b.UpTo == 5 && b.Count != 3 {
			t.Fatalf("bucket <=5: %d", b.Count)
		}
	}
	if bucketed != 3 {
		t.Fatalf("bucketed total: %d", bucketed)
	}
	if last := met.Buckets[len(met.Buckets)-1]; !math.IsInf(last.UpTo, 1) {
		t.Fatalf("overflow bucket edge: %v", last.UpTo)
	}
}

func TestExtractRejectsNonOptimal(t *testing.T) {
	m := Build(testInstance(), Objective{Metric: MetricDistance}, Relaxation{CapacityFactor: 1})
	_, _, err := Extract(m, solver.Result{Status: solver.StatusTimeLimit})
	if err == nil {
		t.Fatal("expected error for non-optimal result")
	}
}

func TestExtractDetectsInconsistentSolution(t *testing.T) {
	m := Build(testInstance(), Objective{Metric: MetricDistance}, Relaxation{CapacityFactor: 1})
	// All-zero values violate the exactly-one rows.
	res := solver.Result{Status: solver.StatusOptimal, Values: make([]float64, m.LP.NumVars())}
	_, _, err := Extract(m, res)
	if !errors.Is(err, ErrExtractionInconsistency) {
		t.Fatalf("err: %v", err)
	}
}
