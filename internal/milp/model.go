// Package milp holds a sparse mixed-integer linear model and a CPLEX LP
// text encoding of it. It does no solving; models are handed to a
// solver.Gateway.
package milp

import "math"

// Sense is the relation of a constraint row.
type Sense int

const (
	LE Sense = iota // Σ terms <= rhs
	GE              // Σ terms >= rhs
	EQ              // Σ terms == rhs
)

func (s Sense) String() string {
	switch s {
	case LE:
		return "<="
	case GE:
		return ">="
	case EQ:
		return "="
	}
	return "?"
}

// VarKind distinguishes binary decision variables from bounded continuous ones.
type VarKind int

const (
	Binary VarKind = iota
	Continuous
)

type Variable struct {
	Name  string
	Kind  VarKind
	Lower float64 // continuous only; binaries are 0/1
	Upper float64 // continuous only; +Inf means unbounded above
	Cost  float64 // objective coefficient
}

// Term is one coefficient in a constraint row, referencing a variable index.
type Term struct {
	Var  int
	Coef float64
}

type Constraint struct {
	Name  string
	Terms []Term
	Sense Sense
	RHS   float64
}

// Model is a minimize-objective 0/1 linear program with optional continuous
// variables. Variables are addressed by the index returned at creation; the
// caller keeps whatever mapping it needs from indices to domain entities.
type Model struct {
	Name        string
	Vars        []Variable
	Constraints []Constraint
}

func New(name string) *Model {
	return &Model{Name: name}
}

// AddBinary appends a 0/1 variable with the given objective coefficient and
// returns its index.
func (m *Model) AddBinary(name string, cost float64) int {
	m.Vars = append(m.Vars, Variable{Name: name, Kind: Binary, Upper: 1, Cost: cost})
	return len(m.Vars) - 1
}

// AddContinuous appends a bounded continuous variable and returns its index.
func (m *Model) AddContinuous(name string, lower, upper, cost float64) int {
	m.Vars = append(m.Vars, Variable{Name: name, Kind: Continuous, Lower: lower, Upper: upper, Cost: cost})
	return len(m.Vars) - 1
}

// AddConstraint appends a row. Terms reference variable indices previously
// returned by AddBinary/AddContinuous.
func (m *Model) AddConstraint(name string, terms []Term, sense Sense, rhs float64) {
	m.Constraints = append(m.Constraints, Constraint{Name: name, Terms: terms, Sense: sense, RHS: rhs})
}

func (m *Model) NumVars() int        { return len(m.Vars) }
func (m *Model) NumConstraints() int { return len(m.Constraints) }

// NumBinaries returns the count of binary variables.
func (m *Model) NumBinaries() int {
	n := 0
	for _, v := range m.Vars {
		if v.Kind == Binary {
			n++
		}
	}
	return n
}

// ObjectiveValue evaluates the objective at the given variable values.
func (m *Model) ObjectiveValue(values []float64) float64 {
	total := 0.0
	for i, v := range m.Vars {
		if i < len(values) {
			total += v.Cost * values[i]
		}
	}
	return total
}

// Satisfied reports whether all constraint rows hold at the given values,
// within tol.
func (m *Model) Satisfied(values []float64, tol float64) bool {
	for _, c := range m.Constraints {
		lhs := 0.0
		for _, t := range c.Terms {
			if t.Var < len(values) {
				lhs += t.Coef * values[t.Var]
			}
		}
		switch c.Sense {
		case LE:
			if lhs > c.RHS+tol {
				return false
			}
		case GE:
			if lhs < c.RHS-tol {
				return false
			}
		case EQ:
			if math.Abs(lhs-c.RHS) > tol {
				return false
			}
		}
	}
	return true
}
