package solver

import (
	"bufio"
	"context"
	"fmt"
	"math"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"depotassign/internal/milp"
)

// CBC invokes the COIN-OR cbc command-line solver as a subprocess. The model
// is written as an LP file, cbc is asked to stop at the time limit, and the
// solution file is read back. The subprocess itself is additionally bounded
// by the context so a wedged solver cannot block forever.
type CBC struct {
	Path string // cbc binary; defaults to "cbc" on PATH
	Dir  string // scratch dir for LP/solution files; defaults to os.TempDir
}

func NewCBC(path string) *CBC {
	if path == "" {
		path = "cbc"
	}
	return &CBC{Path: path}
}

func (c *CBC) Solve(ctx context.Context, m *milp.Model, opts Options) (Result, error) {
	dir, err := os.MkdirTemp(c.Dir, "milp-")
	if err != nil {
		return Result{}, fmt.Errorf("cbc scratch dir: %w", err)
	}
	defer os.RemoveAll(dir)

	lpPath := filepath.Join(dir, "model.lp")
	solPath := filepath.Join(dir, "model.sol")
	f, err := os.Create(lpPath)
	if err != nil {
		return Result{}, fmt.Errorf("cbc write model: %w", err)
	}
	if err := m.WriteLP(f); err != nil {
		f.Close()
		return Result{}, fmt.Errorf("cbc write model: %w", err)
	}
	if err := f.Close(); err != nil {
		return Result{}, fmt.Errorf("cbc write model: %w", err)
	}

	args := []string{lpPath}
	if opts.TimeLimit > 0 {
		args = append(args, "seconds", strconv.Itoa(int(opts.TimeLimit.Seconds())))
	}
	if opts.Gap > 0 {
		args = append(args, "ratioGap", strconv.FormatFloat(opts.Gap, 'f', -1, 64))
	}
	args = append(args, "printingOptions", "all", "solve", "solution", solPath)

	// Leave headroom past the solver's own limit before the context kills it.
	runCtx := ctx
	if opts.TimeLimit > 0 {
		var cancel context.CancelFunc
		runCtx, cancel = context.WithTimeout(ctx, opts.TimeLimit+30*time.Second)
		defer cancel()
	}
	cmd := exec.CommandContext(runCtx, c.Path, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		// cbc exits 0 even for infeasible models; a non-zero exit is an
		// invocation failure, not a model status.
		return Result{}, fmt.Errorf("cbc run: %w: %s", err, firstLine(out))
	}
	return parseCBCSolution(solPath, m.NumVars())
}

// parseCBCSolution reads a cbc solution file. The first line carries the
// status and objective, the rest are "index name value cost" columns.
func parseCBCSolution(path string, numVars int) (Result, error) {
	f, err := os.Open(path)
	if err != nil {
		return Result{}, fmt.Errorf("cbc solution: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	if !sc.Scan() {
		return Result{}, fmt.Errorf("cbc solution: empty file")
	}
	header := sc.Text()
	res := Result{Status: cbcStatus(header)}
	if i := strings.Index(header, "objective value"); i >= 0 {
		fields := strings.Fields(header[i:])
		if len(fields) >= 3 {
			if v, err := strconv.ParseFloat(fields[2], 64); err == nil {
				res.Objective = v
			}
		}
	}
	if res.Status == StatusInfeasible {
		return res, nil
	}
	values := make([]float64, numVars)
	seen := false
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 3 || !strings.HasPrefix(fields[1], "v") {
			continue
		}
		idx, err := strconv.Atoi(fields[1][1:])
		if err != nil || idx < 0 || idx >= numVars {
			continue
		}
		v, err := strconv.ParseFloat(fields[2], 64)
		if err != nil {
			continue
		}
		values[idx] = v
		seen = true
	}
	if err := sc.Err(); err != nil {
		return Result{}, fmt.Errorf("cbc solution: %w", err)
	}
	if seen || res.Status == StatusOptimal {
		res.Values = values
	}
	if res.Objective != 0 && math.IsNaN(res.Objective) {
		res.Objective = 0
	}
	return res, nil
}

func cbcStatus(header string) Status {
	h := strings.ToLower(header)
	switch {
	case strings.HasPrefix(h, "optimal"):
		return StatusOptimal
	case strings.HasPrefix(h, "infeasible"):
		return StatusInfeasible
	case strings.Contains(h, "time") && strings.Contains(h, "stopped"):
		return StatusTimeLimit
	case strings.HasPrefix(h, "stopped on time"):
		return StatusTimeLimit
	}
	return StatusUnknown
}

func firstLine(b []byte) string {
	s := strings.TrimSpace(string(b))
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[:i]
	}
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}
