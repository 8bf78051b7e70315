package api

import (
	"context"
	"errors"
	"log"
	"math"
	"time"

	"github.com/google/uuid"

	"depotassign/internal/metrics"
	"depotassign/internal/model"
	"depotassign/internal/opt"
	"depotassign/internal/solver"
	"depotassign/internal/webhooks"
)

// runTimeout caps a single run end to end, on top of the per-solve limit.
const runTimeout = 30 * time.Minute

// StartRun validates the snapshot exists, persists the queued run and kicks
// off the solve in the background. Returns the queued run immediately.
func (s *Server) StartRun(ctx context.Context, req model.RunRequest) (model.Run, error) {
	tables, err := s.Store.GetSnapshotTables(ctx, req.TenantID, req.SnapshotID)
	if err != nil {
		return model.Run{}, err
	}
	objective := req.Objective
	if objective == "" {
		objective = opt.MetricDistance
	}
	run := model.Run{
		ID:            "run_" + uuid.NewString(),
		TenantID:      req.TenantID,
		SnapshotID:    req.SnapshotID,
		Status:        model.RunQueued,
		Objective:     objective,
		StrategyIndex: -1,
		CreatedAt:     time.Now().UTC(),
	}
	if err := s.Store.CreateRun(ctx, run); err != nil {
		return model.Run{}, err
	}
	s.publishRunEvent(webhooks.EventRunQueued, run)

	go s.executeRun(run, req, tables)
	return run, nil
}

func (s *Server) executeRun(run model.Run, req model.RunRequest, tables model.SnapshotIn) {
	ctx, cancel := context.WithTimeout(context.Background(), runTimeout)
	defer cancel()

	run.Status = model.RunRunning
	if err := s.Store.UpdateRun(ctx, run); err != nil {
		log.Printf("run %s: update to running failed: %v", run.ID, err)
	}
	s.publishRunEvent(webhooks.EventRunRunning, run)

	eff := s.effectiveConfig(ctx, run.TenantID)
	in := opt.NewInstance(tables.Distances, tables.Times, tables.Capacities, intOr(tables.DefaultCapacity, eff.DefaultCapacity))

	obj := s.buildObjective(run.Objective, req.Weights, eff.Weights)
	strategies := toRelaxations(req.Strategies)
	if len(strategies) == 0 {
		strategies = toRelaxations(eff.Strategies)
	}
	if len(strategies) == 0 {
		strategies = opt.DefaultStrategies()
	}
	opts := solver.Options{
		TimeLimit: time.Duration(intOr(req.TimeLimitSec, eff.TimeLimitSec)) * time.Second,
		Gap:       floatOr(req.Gap, eff.Gap),
	}

	start := time.Now()
	out, err := opt.Search(ctx, in, obj, strategies, s.Solver, opts)
	s.recordAttempts(ctx, run, out.Attempts)

	now := time.Now().UTC()
	run.FinishedAt = &now
	switch {
	case err == nil && out.Solved:
		run.Status = model.RunSolved
		run.StrategyUsed = out.StrategyUsed.Name
		run.StrategyIndex = out.StrategyIndex
		run.ObjectiveVal = out.Objective
		run.TotalCost = out.Metrics.TotalCost
		run.Assigned = len(out.Assignment)
		run.Metrics = toMetricsOut(out.Metrics)
		rows := toAssignmentRows(out.Assignment)
		if err := s.Store.SaveAssignments(ctx, run.TenantID, run.ID, rows); err != nil {
			log.Printf("run %s: save assignments failed: %v", run.ID, err)
		}
	case errors.Is(err, opt.ErrNoFeasibleSolution):
		run.Status = model.RunInfeasible
		run.Diagnosis = toDiagnosisOut(out.Diagnosis)
		run.Error = err.Error()
	default:
		run.Status = model.RunFailed
		if err != nil {
			run.Error = err.Error()
		}
	}
	if err := s.Store.UpdateRun(ctx, run); err != nil {
		log.Printf("run %s: final update failed: %v", run.ID, err)
	}
	metrics.RunsCompleted.WithLabelValues(run.Status).Inc()
	metrics.SolveDuration.WithLabelValues(run.StrategyUsed).Observe(time.Since(start).Seconds())

	evt := webhooks.EventRunCompleted
	if run.Status == model.RunFailed {
		evt = webhooks.EventRunFailed
	}
	s.publishRunEvent(evt, run)
}

func (s *Server) recordAttempts(ctx context.Context, run model.Run, attempts []opt.Attempt) {
	out := make([]model.AttemptOut, 0, len(attempts))
	for i, a := range attempts {
		metrics.SolveAttempts.WithLabelValues(a.Strategy.Name, a.Status).Inc()
		out = append(out, model.AttemptOut{
			Seq: i,
			Strategy: model.Strategy{
				Name:           a.Strategy.Name,
				CapacityFactor: a.Strategy.CapacityFactor,
				Balance:        a.Strategy.Balance,
				BalanceMin:     a.Strategy.BalanceMin,
				BalanceMax:     a.Strategy.BalanceMax,
			},
			Status:    a.Status,
			Objective: a.Objective,
			ElapsedMs: a.Elapsed.Milliseconds(),
			Diagnosis: toDiagnosisOut(a.Diagnosis),
		})
	}
	if err := s.Store.SaveAttempts(ctx, run.TenantID, run.ID, out); err != nil {
		log.Printf("run %s: save attempts failed: %v", run.ID, err)
	}
}

func (s *Server) publishRunEvent(eventType string, run model.Run) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	evt := model.RunEvent{
		Type:     eventType,
		RunID:    run.ID,
		TenantID: run.TenantID,
		TS:       time.Now().UTC().Format(time.RFC3339),
		Run:      &run,
	}
	s.Broker.Publish(run.ID, SSEEvent{Type: eventType, Data: map[string]any{
		"runId":    evt.RunID,
		"tenantId": evt.TenantID,
		"ts":       evt.TS,
		"status":   run.Status,
		"run":      evt.Run,
	}})
	s.Pub.Emit(ctx, run.TenantID, eventType, evt)
}

// effectiveConfig is the server optimizer defaults with the tenant override
// applied field by field.
func (s *Server) effectiveConfig(ctx context.Context, tenant string) model.OptimizerConfig {
	eff := model.OptimizerConfig{
		TenantID:        tenant,
		DefaultCapacity: s.Cfg.Optimizer.DefaultCapacity,
		TimeLimitSec:    s.Cfg.Solver.TimeLimitSec,
		Gap:             s.Cfg.Solver.Gap,
		Strategies:      s.Cfg.Optimizer.Strategies,
		Weights: model.ObjectiveWeights{
			RoundTripFactor: s.Cfg.Optimizer.RoundTripFactor,
			SpeedKmh:        s.Cfg.Optimizer.SpeedKmh,
		},
	}
	ov, err := s.Store.GetOptimizerConfig(ctx, tenant)
	if err != nil || ov == nil {
		return eff
	}
	if ov.DefaultCapacity > 0 {
		eff.DefaultCapacity = ov.DefaultCapacity
	}
	if ov.TimeLimitSec > 0 {
		eff.TimeLimitSec = ov.TimeLimitSec
	}
	if ov.Gap > 0 {
		eff.Gap = ov.Gap
	}
	if len(ov.Strategies) > 0 {
		eff.Strategies = ov.Strategies
	}
	if ov.Weights.RoundTripFactor > 0 {
		eff.Weights.RoundTripFactor = ov.Weights.RoundTripFactor
	}
	if ov.Weights.ActivationCost > 0 {
		eff.Weights.ActivationCost = ov.Weights.ActivationCost
	}
	if ov.Weights.MaxTimePenalty > 0 {
		eff.Weights.MaxTimePenalty = ov.Weights.MaxTimePenalty
	}
	if ov.Weights.SpeedKmh > 0 {
		eff.Weights.SpeedKmh = ov.Weights.SpeedKmh
	}
	if ov.Weights.BigMHours > 0 {
		eff.Weights.BigMHours = ov.Weights.BigMHours
	}
	return eff
}

func (s *Server) defaultCapacity(ctx context.Context, tenant string) int {
	return s.effectiveConfig(ctx, tenant).DefaultCapacity
}

func (s *Server) buildObjective(metric string, reqW *model.ObjectiveWeights, effW model.ObjectiveWeights) opt.Objective {
	w := effW
	if reqW != nil {
		if reqW.RoundTripFactor > 0 {
			w.RoundTripFactor = reqW.RoundTripFactor
		}
		if reqW.ActivationCost > 0 {
			w.ActivationCost = reqW.ActivationCost
		}
		if reqW.MaxTimePenalty > 0 {
			w.MaxTimePenalty = reqW.MaxTimePenalty
		}
		if reqW.SpeedKmh > 0 {
			w.SpeedKmh = reqW.SpeedKmh
		}
		if reqW.BigMHours > 0 {
			w.BigMHours = reqW.BigMHours
		}
	}
	return opt.Objective{
		Metric:          metric,
		RoundTripFactor: w.RoundTripFactor,
		ActivationCost:  w.ActivationCost,
		MaxTimePenalty:  w.MaxTimePenalty,
		SpeedKmh:        w.SpeedKmh,
		BigMHours:       w.BigMHours,
	}
}

func toRelaxations(in []model.Strategy) []opt.Relaxation {
	out := make([]opt.Relaxation, 0, len(in))
	for _, st := range in {
		out = append(out, opt.Relaxation{
			Name:           st.Name,
			CapacityFactor: st.CapacityFactor,
			Balance:        st.Balance,
			BalanceMin:     st.BalanceMin,
			BalanceMax:     st.BalanceMax,
		})
	}
	return out
}

func toAssignmentRows(a opt.Assignment) []model.AssignmentOut {
	rows := make([]model.AssignmentOut, 0, len(a))
	cum := 0.0
	for _, row := range a {
		cum += row.Cost
		rows = append(rows, model.AssignmentOut{
			ResourceID:     row.Resource,
			DemandID:       row.Demand,
			Cost:           row.Cost,
			CumulativeCost: cum,
		})
	}
	return rows
}

func toMetricsOut(m opt.Metrics) *model.RunMetricsOut {
	out := &model.RunMetricsOut{
		TotalCost:   m.TotalCost,
		MeanCost:    m.MeanCost,
		Loads:       m.Loads,
		Utilization: m.Utilization,
	}
	for _, b := range m.Buckets {
		ob := model.CostBucketOut{Count: b.Count}
		if !math.IsInf(b.UpTo, 1) {
			edge := b.UpTo
			ob.UpTo = &edge
		}
		out.Buckets = append(out.Buckets, ob)
	}
	return out
}

func toDiagnosisOut(d *opt.Diagnosis) *model.DiagnosisOut {
	if d == nil {
		return nil
	}
	return &model.DiagnosisOut{
		CapacityDeficit:    d.CapacityDeficit,
		IsolatedDemands:    d.IsolatedDemands,
		UnderusedResources: d.UnderusedResources,
	}
}

func intOr(v, fallback int) int {
	if v > 0 {
		return v
	}
	return fallback
}

func floatOr(v, fallback float64) float64 {
	if v > 0 {
		return v
	}
	return fallback
}
