package opt

import (
	"context"
	"strings"
	"testing"

	"depotassign/internal/milp"
	"depotassign/internal/solver"
	"depotassign/internal/solver/solvertest"
)

func testInstance() Instance {
	return NewInstance(map[string]map[string]float64{
		"X": {"A": 5, "B": 9},
		"Y": {"A": 6, "B": 4, "C": 3},
	}, nil, map[string]int{"X": 1, "Y": 2}, 0)
}

func TestBuildSparseVariables(t *testing.T) {
	m := Build(testInstance(), Objective{Metric: MetricDistance}, Relaxation{Name: "plain", CapacityFactor: 1})
	// One binary per defined cost pair; X-C is not a pair.
	if got := m.LP.NumVars(); got != 5 {
		t.Fatalf("vars: got %d, want 5", got)
	}
	if len(m.Pairs) != 5 || len(m.Costs) != 5 {
		t.Fatalf("pair bookkeeping: %d pairs, %d costs", len(m.Pairs), len(m.Costs))
	}
	// Exactly-one rows for A, B, C plus capacity rows for X, Y.
	if got := m.LP.NumConstraints(); got != 5 {
		t.Fatalf("constraints: got %d, want 5", got)
	}
	if len(m.ConstrainedDemands) != 3 {
		t.Fatalf("constrained demands: %v", m.ConstrainedDemands)
	}
}

func TestBuildSkipsIsolatedDemands(t *testing.T) {
	in := testInstance()
	in.DemandIDs = append(in.DemandIDs, "Zed")
	m := Build(in, Objective{Metric: MetricDistance}, Relaxation{CapacityFactor: 1})
	for _, d := range m.ConstrainedDemands {
		if d == "Zed" {
			t.Fatal("isolated demand must not get an assignment row")
		}
	}
}

func TestBuildCapacityRelaxationTruncates(t *testing.T) {
	rx := Relaxation{CapacityFactor: 1.5}
	if got := rx.RelaxedCapacity(1); got != 1 {
		t.Fatalf("relaxed(1): got %d, want 1", got)
	}
	if got := rx.RelaxedCapacity(2); got != 3 {
		t.Fatalf("relaxed(2): got %d, want 3", got)
	}
	// Factors at or below 1 leave stated capacity untouched.
	if got := (Relaxation{CapacityFactor: 0.5}).RelaxedCapacity(4); got != 4 {
		t.Fatalf("relaxed(4) at 0.5: got %d, want 4", got)
	}

	m := Build(testInstance(), Objective{Metric: MetricDistance}, rx)
	for _, c := range m.LP.Constraints {
		if c.Name == "cap_Y" && c.RHS != 3 {
			t.Fatalf("cap_Y rhs: got %v, want 3", c.RHS)
		}
	}
}

func TestBuildBalanceRows(t *testing.T) {
	rx := Relaxation{CapacityFactor: 1, Balance: true, BalanceMin: 0.75, BalanceMax: 1.25}
	m := Build(testInstance(), Objective{Metric: MetricDistance}, rx)
	// avg load 1.5: floor bounds are min 1, max 1 for both resources.
	var minRows, maxRows int
	for _, c := range m.LP.Constraints {
		if strings.HasPrefix(c.Name, "bal_min_") {
			minRows++
			if c.Sense != milp.GE || c.RHS != 1 {
				t.Fatalf("bal_min row: %+v", c)
			}
		}
		if strings.HasPrefix(c.Name, "bal_max_") {
			maxRows++
			if c.Sense != milp.LE || c.RHS != 1 {
				t.Fatalf("bal_max row: %+v", c)
			}
		}
	}
	if minRows != 2 || maxRows != 2 {
		t.Fatalf("balance rows: %d min, %d max", minRows, maxRows)
	}
}

func TestBuildBalanceExemptsThinResources(t *testing.T) {
	// W can only serve one demand; with minLoad 2 it must be exempt.
	in := NewInstance(map[string]map[string]float64{
		"X": {"A": 1, "B": 1, "C": 1, "D": 1, "E": 1, "F": 1, "G": 1},
		"W": {"A": 9},
	}, nil, map[string]int{"X": 8, "W": 8}, 0)
	rx := Relaxation{CapacityFactor: 1, Balance: true, BalanceMin: 0.75, BalanceMax: 1.25}
	m := Build(in, Objective{Metric: MetricDistance}, rx)
	for _, c := range m.LP.Constraints {
		if c.Name == "bal_min_W" || c.Name == "bal_max_W" {
			t.Fatalf("thin resource W must be exempt from balance, found %s", c.Name)
		}
	}
}

func TestBuildActivationAndMaxTime(t *testing.T) {
	obj := Objective{
		Metric:         MetricDistance,
		ActivationCost: 100,
		MaxTimePenalty: 1,
		SpeedKmh:       20,
	}
	m := Build(testInstance(), obj, Relaxation{CapacityFactor: 1})
	// 5 pair binaries + 2 activation binaries + t_max.
	if got := m.LP.NumVars(); got != 8 {
		t.Fatalf("vars: got %d, want 8", got)
	}
	if m.TMaxVar < 0 {
		t.Fatal("t_max variable missing")
	}
	if len(m.ActivationVars) != 2 {
		t.Fatalf("activation vars: %v", m.ActivationVars)
	}
	// Capacity rows fold in the activation binary: sum x - cap*y <= 0.
	var capRows, tmaxRows int
	for _, c := range m.LP.Constraints {
		if strings.HasPrefix(c.Name, "cap_") {
			capRows++
			if c.RHS != 0 {
				t.Fatalf("activation cap row rhs: %+v", c)
			}
		}
		if strings.HasPrefix(c.Name, "tmax_") {
			tmaxRows++
		}
	}
	if capRows != 2 {
		t.Fatalf("cap rows: %d", capRows)
	}
	if tmaxRows != 5 {
		t.Fatalf("tmax rows: got %d, want one per pair", tmaxRows)
	}
}

func TestBuildTwiceSameOptimum(t *testing.T) {
	in := testInstance()
	obj := Objective{Metric: MetricDistance}
	rx := Relaxation{Name: "relaxed", CapacityFactor: 1.5, Balance: true, BalanceMin: 0.3, BalanceMax: 3.0}

	m1 := Build(in, obj, rx)
	m2 := Build(in, obj, rx)
	if m1.LP.NumVars() != m2.LP.NumVars() || m1.LP.NumConstraints() != m2.LP.NumConstraints() {
		t.Fatalf("models differ: %d/%d vars, %d/%d constraints",
			m1.LP.NumVars(), m2.LP.NumVars(), m1.LP.NumConstraints(), m2.LP.NumConstraints())
	}

	r1, err := solvertest.Enumerator{}.Solve(context.Background(), m1.LP, solver.Options{})
	if err != nil {
		t.Fatalf("solve first: %v", err)
	}
	r2, err := solvertest.Enumerator{}.Solve(context.Background(), m2.LP, solver.Options{})
	if err != nil {
		t.Fatalf("solve second: %v", err)
	}
	if r1.Status != solver.StatusOptimal || r2.Status != solver.StatusOptimal {
		t.Fatalf("statuses: %s, %s", r1.Status, r2.Status)
	}
	if r1.Objective != r2.Objective {
		t.Fatalf("objectives differ: %v vs %v", r1.Objective, r2.Objective)
	}
	if r1.Objective != 12 {
		t.Fatalf("objective: %v", r1.Objective)
	}
}

func TestObjectiveRoundTripScaling(t *testing.T) {
	obj := Objective{Metric: MetricDistance, RoundTripFactor: 2}
	m := Build(testInstance(), obj, Relaxation{CapacityFactor: 1})
	// Objective coefficients are doubled; recorded costs stay raw.
	for i, idx := range m.AssignVars {
		if got, want := m.LP.Vars[idx].Cost, m.Costs[i]*2; got != want {
			t.Fatalf("pair %d: coef %v, want %v", i, got, want)
		}
	}
}
