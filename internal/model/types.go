package model

import "time"

// SnapshotIn is the ingest payload: sparse cost tables plus capacities.
// A missing (resource, demand) cost entry means the pairing is disallowed.
type SnapshotIn struct {
	Name       string                        `json:"name,omitempty"`
	Distances  map[string]map[string]float64 `json:"distances"`
	Times      map[string]map[string]float64 `json:"times,omitempty"`
	Capacities map[string]int                `json:"capacities,omitempty"`
	// DefaultCapacity applies to resources absent from Capacities. 0 means
	// the server default.
	DefaultCapacity int `json:"defaultCapacity,omitempty"`
}

// Snapshot is the stored summary returned by the API; the cost tables stay
// server-side and are only handed to the optimizer.
type Snapshot struct {
	ID              string    `json:"id"`
	TenantID        string    `json:"tenantId"`
	Name            string    `json:"name,omitempty"`
	ResourceCount   int       `json:"resourceCount"`
	DemandCount     int       `json:"demandCount"`
	PairCount       int       `json:"pairCount"`
	TotalCapacity   int       `json:"totalCapacity"`
	DefaultCapacity int       `json:"defaultCapacity"`
	CreatedAt       time.Time `json:"createdAt"`
}

// Strategy is one relaxation rung as carried on the wire.
type Strategy struct {
	Name           string  `json:"name"`
	CapacityFactor float64 `json:"capacityFactor"`
	Balance        bool    `json:"balance"`
	BalanceMin     float64 `json:"balanceMin,omitempty"`
	BalanceMax     float64 `json:"balanceMax,omitempty"`
}

// ObjectiveWeights enables the optional model terms. Zero values leave a
// term out.
type ObjectiveWeights struct {
	RoundTripFactor float64 `json:"roundTripFactor,omitempty"`
	ActivationCost  float64 `json:"activationCost,omitempty"`
	MaxTimePenalty  float64 `json:"maxTimePenalty,omitempty"`
	SpeedKmh        float64 `json:"speedKmh,omitempty"`
	BigMHours       float64 `json:"bigMHours,omitempty"`
}

// RunRequest submits an optimization run over a stored snapshot.
type RunRequest struct {
	TenantID   string `json:"tenantId"`
	SnapshotID string `json:"snapshotId"`
	// Objective is "distance" (default) or "time".
	Objective    string            `json:"objective,omitempty"`
	TimeLimitSec int               `json:"timeLimitSec,omitempty"`
	Gap          float64           `json:"gap,omitempty"`
	Strategies   []Strategy        `json:"strategies,omitempty"`
	Weights      *ObjectiveWeights `json:"weights,omitempty"`
}

// Run statuses.
const (
	RunQueued     = "queued"
	RunRunning    = "running"
	RunSolved     = "solved"
	RunInfeasible = "infeasible"
	RunFailed     = "failed"
)

// Run is a run's stored state and API read model.
type Run struct {
	ID            string         `json:"id"`
	TenantID      string         `json:"tenantId"`
	SnapshotID    string         `json:"snapshotId"`
	Status        string         `json:"status"`
	Objective     string         `json:"objective"`
	StrategyUsed  string         `json:"strategyUsed,omitempty"`
	StrategyIndex int            `json:"strategyIndex"`
	ObjectiveVal  float64        `json:"objectiveValue,omitempty"`
	TotalCost     float64        `json:"totalCost,omitempty"`
	Assigned      int            `json:"assigned"`
	Metrics       *RunMetricsOut `json:"metrics,omitempty"`
	Error         string         `json:"error,omitempty"`
	Diagnosis     *DiagnosisOut  `json:"diagnosis,omitempty"`
	CreatedAt     time.Time      `json:"createdAt"`
	FinishedAt    *time.Time     `json:"finishedAt,omitempty"`
}

// AttemptOut is one strategy attempt of a run, in order tried.
type AttemptOut struct {
	Seq       int           `json:"seq"`
	Strategy  Strategy      `json:"strategy"`
	Status    string        `json:"status"`
	Objective float64       `json:"objective,omitempty"`
	ElapsedMs int64         `json:"elapsedMs"`
	Diagnosis *DiagnosisOut `json:"diagnosis,omitempty"`
}

// DiagnosisOut explains a failed run in terms of the input data.
type DiagnosisOut struct {
	CapacityDeficit    int      `json:"capacityDeficit"`
	IsolatedDemands    []string `json:"isolatedDemands,omitempty"`
	UnderusedResources []string `json:"underusedResources,omitempty"`
}

// AssignmentOut is one solved pairing. CumulativeCost is the running total
// in output order, matching the CSV export.
type AssignmentOut struct {
	ResourceID     string  `json:"resourceId"`
	DemandID       string  `json:"demandId"`
	Cost           float64 `json:"cost"`
	CumulativeCost float64 `json:"cumulativeCost"`
}

// CostBucketOut is one cost-distribution bucket. A nil UpTo marks the
// overflow bucket (the model's +Inf edge does not survive JSON).
type CostBucketOut struct {
	UpTo  *float64 `json:"upTo,omitempty"`
	Count int      `json:"count"`
}

// RunMetricsOut is the solved run's summary: totals, per-resource loads and
// utilization, cost distribution.
type RunMetricsOut struct {
	TotalCost   float64            `json:"totalCost"`
	MeanCost    float64            `json:"meanCost"`
	Loads       map[string]int     `json:"loads"`
	Utilization map[string]float64 `json:"utilization"`
	Buckets     []CostBucketOut    `json:"buckets,omitempty"`
}

// RunEvent is what brokers fan out to SSE and websocket subscribers.
type RunEvent struct {
	Type     string `json:"type"` // run.queued, run.running, run.completed, run.failed
	RunID    string `json:"runId"`
	TenantID string `json:"tenantId"`
	TS       string `json:"ts"`
	Run      *Run   `json:"run,omitempty"`
}

// OptimizerConfig is the tenant-tunable solve configuration.
type OptimizerConfig struct {
	TenantID        string           `json:"tenantId"`
	DefaultCapacity int              `json:"defaultCapacity,omitempty"`
	TimeLimitSec    int              `json:"timeLimitSec,omitempty"`
	Gap             float64          `json:"gap,omitempty"`
	Strategies      []Strategy       `json:"strategies,omitempty"`
	Weights         ObjectiveWeights `json:"weights,omitempty"`
}

type SubscriptionRequest struct {
	TenantID string   `json:"tenantId"`
	URL      string   `json:"url"`
	Events   []string `json:"events"`
	Secret   string   `json:"secret"`
}

type Subscription struct {
	ID       string   `json:"id"`
	TenantID string   `json:"tenantId"`
	URL      string   `json:"url"`
	Events   []string `json:"events"`
	Secret   string   `json:"secret,omitempty"`
}
