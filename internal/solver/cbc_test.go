package solver

import (
	"os"
	"path/filepath"
	"testing"
)

func writeSolution(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "model.sol")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestParseCBCSolutionOptimal(t *testing.T) {
	path := writeSolution(t, `Optimal - objective value 12.00000000
      0 v0               1                       5
      1 v1               0                       9
      2 v3               1                       4
      3 v4               1                       3
`)
	res, err := parseCBCSolution(path, 5)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if res.Status != StatusOptimal {
		t.Fatalf("status: %s", res.Status)
	}
	if res.Objective != 12 {
		t.Fatalf("objective: %v", res.Objective)
	}
	want := []float64{1, 0, 0, 1, 1}
	if len(res.Values) != len(want) {
		t.Fatalf("values: %v", res.Values)
	}
	for i := range want {
		if res.Values[i] != want[i] {
			t.Fatalf("value %d: got %v, want %v", i, res.Values[i], want[i])
		}
	}
}

func TestParseCBCSolutionInfeasible(t *testing.T) {
	path := writeSolution(t, "Infeasible - objective value 0.00000000\n")
	res, err := parseCBCSolution(path, 3)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if res.Status != StatusInfeasible {
		t.Fatalf("status: %s", res.Status)
	}
	if res.Values != nil {
		t.Fatalf("infeasible result must not carry values: %v", res.Values)
	}
}

func TestParseCBCSolutionTimeLimit(t *testing.T) {
	path := writeSolution(t, `Stopped on time limit - objective value 15.00000000
      0 v0               1                       5
`)
	res, err := parseCBCSolution(path, 1)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if res.Status != StatusTimeLimit {
		t.Fatalf("status: %s", res.Status)
	}
	if len(res.Values) != 1 || res.Values[0] != 1 {
		t.Fatalf("incumbent values: %v", res.Values)
	}
}

func TestCBCStatusHeaders(t *testing.T) {
	cases := map[string]Status{
		"Optimal - objective value 1":               StatusOptimal,
		"Infeasible - objective value 0":            StatusInfeasible,
		"Stopped on time limit - objective value 3": StatusTimeLimit,
		"garbage":                                   StatusUnknown,
	}
	for header, want := range cases {
		if got := cbcStatus(header); got != want {
			t.Fatalf("%q: got %s, want %s", header, got, want)
		}
	}
}
