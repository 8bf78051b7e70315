package milp

import (
	"fmt"
	"io"
	"math"
	"strings"
)

// WriteLP encodes the model in CPLEX LP format, the interchange format the
// CBC command-line solver reads. Variable names in the output are the
// positional names v0..vN so that solution files can be mapped back by index
// without parsing domain identifiers out of strings.
func (m *Model) WriteLP(w io.Writer) error {
	var b strings.Builder
	b.WriteString("\\ ")
	b.WriteString(m.Name)
	b.WriteString("\nMinimize\n obj:")
	wrote := false
	for i, v := range m.Vars {
		if v.Cost == 0 {
			continue
		}
		writeTerm(&b, v.Cost, i, !wrote)
		wrote = true
	}
	if !wrote {
		// LP format requires a non-empty objective.
		b.WriteString(" 0 v0")
	}
	b.WriteString("\nSubject To\n")
	for ci, c := range m.Constraints {
		fmt.Fprintf(&b, " c%d:", ci)
		first := true
		for _, t := range c.Terms {
			if t.Coef == 0 {
				continue
			}
			writeTerm(&b, t.Coef, t.Var, first)
			first = false
		}
		if first {
			b.WriteString(" 0 v0")
		}
		fmt.Fprintf(&b, " %s %s\n", c.Sense, trimFloat(c.RHS))
	}
	b.WriteString("Bounds\n")
	for i, v := range m.Vars {
		if v.Kind != Continuous {
			continue
		}
		if math.IsInf(v.Upper, 1) {
			fmt.Fprintf(&b, " %s <= v%d\n", trimFloat(v.Lower), i)
		} else {
			fmt.Fprintf(&b, " %s <= v%d <= %s\n", trimFloat(v.Lower), i, trimFloat(v.Upper))
		}
	}
	if n := m.NumBinaries(); n > 0 {
		b.WriteString("Binaries\n")
		col := 0
		for i, v := range m.Vars {
			if v.Kind != Binary {
				continue
			}
			fmt.Fprintf(&b, " v%d", i)
			col++
			if col%16 == 0 {
				b.WriteString("\n")
			}
		}
		if col%16 != 0 {
			b.WriteString("\n")
		}
	}
	b.WriteString("End\n")
	_, err := io.WriteString(w, b.String())
	return err
}

func writeTerm(b *strings.Builder, coef float64, idx int, first bool) {
	switch {
	case coef < 0:
		fmt.Fprintf(b, " - %s v%d", trimFloat(-coef), idx)
	case first:
		fmt.Fprintf(b, " %s v%d", trimFloat(coef), idx)
	default:
		fmt.Fprintf(b, " + %s v%d", trimFloat(coef), idx)
	}
}

func trimFloat(f float64) string {
	s := fmt.Sprintf("%.10g", f)
	return s
}
