package solver

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"depotassign/internal/milp"
)

// HTTP posts the model as JSON to a remote solver service and reads back the
// normalized result. Useful when the solver runs as its own deployment with
// more memory/CPU than the API pods.
type HTTP struct {
	URL    string
	Client *http.Client
}

func NewHTTP(url string) *HTTP {
	return &HTTP{URL: url, Client: &http.Client{Timeout: 10 * time.Minute}}
}

type httpVariable struct {
	Kind  string  `json:"kind"` // binary | continuous
	Lower float64 `json:"lower,omitempty"`
	Upper float64 `json:"upper,omitempty"`
	Cost  float64 `json:"cost,omitempty"`
}

type httpConstraint struct {
	Vars  []int     `json:"vars"`
	Coefs []float64 `json:"coefs"`
	Sense string    `json:"sense"` // le | ge | eq
	RHS   float64   `json:"rhs"`
}

type httpRequest struct {
	Name         string           `json:"name"`
	Variables    []httpVariable   `json:"variables"`
	Constraints  []httpConstraint `json:"constraints"`
	TimeLimitSec int              `json:"timeLimitSec,omitempty"`
	Gap          float64          `json:"gap,omitempty"`
}

type httpResponse struct {
	Status    string    `json:"status"`
	Objective float64   `json:"objective"`
	Values    []float64 `json:"values"`
}

func (h *HTTP) Solve(ctx context.Context, m *milp.Model, opts Options) (Result, error) {
	req := httpRequest{
		Name:        m.Name,
		Variables:   make([]httpVariable, 0, len(m.Vars)),
		Constraints: make([]httpConstraint, 0, len(m.Constraints)),
		Gap:         opts.Gap,
	}
	if opts.TimeLimit > 0 {
		req.TimeLimitSec = int(opts.TimeLimit.Seconds())
	}
	for _, v := range m.Vars {
		hv := httpVariable{Kind: "binary", Cost: v.Cost}
		if v.Kind == milp.Continuous {
			hv.Kind = "continuous"
			hv.Lower = v.Lower
			hv.Upper = v.Upper
		}
		req.Variables = append(req.Variables, hv)
	}
	for _, c := range m.Constraints {
		hc := httpConstraint{RHS: c.RHS}
		switch c.Sense {
		case milp.LE:
			hc.Sense = "le"
		case milp.GE:
			hc.Sense = "ge"
		default:
			hc.Sense = "eq"
		}
		for _, t := range c.Terms {
			hc.Vars = append(hc.Vars, t.Var)
			hc.Coefs = append(hc.Coefs, t.Coef)
		}
		req.Constraints = append(req.Constraints, hc)
	}

	body, err := json.Marshal(req)
	if err != nil {
		return Result{}, fmt.Errorf("solver request encode: %w", err)
	}
	hreq, err := http.NewRequestWithContext(ctx, http.MethodPost, h.URL, bytes.NewReader(body))
	if err != nil {
		return Result{}, fmt.Errorf("solver request: %w", err)
	}
	hreq.Header.Set("Content-Type", "application/json")
	resp, err := h.Client.Do(hreq)
	if err != nil {
		return Result{}, fmt.Errorf("solver transport: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Result{}, fmt.Errorf("solver service: status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))
	}
	var out httpResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return Result{}, fmt.Errorf("solver response decode: %w", err)
	}
	res := Result{Objective: out.Objective, Values: out.Values}
	switch out.Status {
	case "optimal":
		res.Status = StatusOptimal
	case "infeasible":
		res.Status = StatusInfeasible
	case "time_limit", "timeout":
		res.Status = StatusTimeLimit
	default:
		res.Status = StatusUnknown
	}
	return res, nil
}
