package milp

import (
	"math"
	"strings"
	"testing"
)

func TestWriteLPSections(t *testing.T) {
	m := New("test_model")
	x0 := m.AddBinary("x0", 5)
	x1 := m.AddBinary("x1", 4)
	tmax := m.AddContinuous("t_max", 0, math.Inf(1), 1)
	m.AddConstraint("assign", []Term{{Var: x0, Coef: 1}, {Var: x1, Coef: 1}}, EQ, 1)
	m.AddConstraint("link", []Term{{Var: x0, Coef: 4.5}, {Var: tmax, Coef: -1}}, LE, 4)

	var b strings.Builder
	if err := m.WriteLP(&b); err != nil {
		t.Fatalf("write: %v", err)
	}
	out := b.String()
	for _, want := range []string{
		"Minimize",
		"Subject To",
		"Bounds",
		"Binaries",
		"End",
		"5 v0 + 4 v1",
		"c0: 1 v0 + 1 v1 = 1",
		"c1: 4.5 v0 - 1 v2 <= 4",
		"0 <= v2",
		" v0 v1",
	} {
		if !strings.Contains(out, want) {
			t.Fatalf("LP output missing %q:\n%s", want, out)
		}
	}
}

func TestWriteLPEmptyObjective(t *testing.T) {
	m := New("empty_obj")
	x := m.AddBinary("x", 0)
	m.AddConstraint("row", []Term{{Var: x, Coef: 1}}, LE, 1)
	var b strings.Builder
	if err := m.WriteLP(&b); err != nil {
		t.Fatalf("write: %v", err)
	}
	if !strings.Contains(b.String(), "obj: 0 v0") {
		t.Fatalf("empty objective must emit a placeholder term:\n%s", b.String())
	}
}

func TestSatisfiedAndObjective(t *testing.T) {
	m := New("eval")
	x0 := m.AddBinary("x0", 2)
	x1 := m.AddBinary("x1", 3)
	m.AddConstraint("one", []Term{{Var: x0, Coef: 1}, {Var: x1, Coef: 1}}, EQ, 1)
	m.AddConstraint("cap", []Term{{Var: x1, Coef: 1}}, LE, 0)

	if !m.Satisfied([]float64{1, 0}, 1e-9) {
		t.Fatal("x0=1 should satisfy")
	}
	if m.Satisfied([]float64{0, 1}, 1e-9) {
		t.Fatal("x1=1 violates the cap row")
	}
	if m.Satisfied([]float64{1, 1}, 1e-9) {
		t.Fatal("both set violates the EQ row")
	}
	if got := m.ObjectiveValue([]float64{1, 0}); got != 2 {
		t.Fatalf("objective: %v", got)
	}
}
