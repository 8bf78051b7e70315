package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"depotassign/internal/model"
)

// Memory is a simple in-memory store used when no DATABASE_URL is set.
type Memory struct {
	mu        sync.Mutex
	snaps     map[string]model.Snapshot  // id -> summary
	snapData  map[string]model.SnapshotIn // id -> full tables
	snapsTen  map[string][]string        // tenant -> snapshot ids
	runs      map[string]model.Run       // id -> run
	runsTen   map[string][]string        // tenant -> run ids
	attempts  map[string][]model.AttemptOut
	assigns   map[string][]model.AssignmentOut
	subs      map[string][]model.Subscription // tenant -> subscriptions
	optCfg    map[string]model.OptimizerConfig
	// Webhooks queue state
	deliveries         map[string]*memDelivery
	deliveriesByTenant map[string][]string
}

func NewMemory() *Memory {
	return &Memory{
		snaps:              map[string]model.Snapshot{},
		snapData:           map[string]model.SnapshotIn{},
		snapsTen:           map[string][]string{},
		runs:               map[string]model.Run{},
		runsTen:            map[string][]string{},
		attempts:           map[string][]model.AttemptOut{},
		assigns:            map[string][]model.AssignmentOut{},
		subs:               map[string][]model.Subscription{},
		optCfg:             map[string]model.OptimizerConfig{},
		deliveries:         map[string]*memDelivery{},
		deliveriesByTenant: map[string][]string{},
	}
}

// memDelivery augments WebhookDelivery with scheduling/metrics
type memDelivery struct {
	WebhookDelivery
	NextAttemptAt time.Time
	LastError     string
	ResponseCode  int
	LatencyMs     int
	DeliveredAt   *time.Time
}

// SummarizeSnapshot derives the stored summary from raw tables.
func SummarizeSnapshot(id, tenantID string, in model.SnapshotIn) model.Snapshot {
	demands := map[string]struct{}{}
	pairs := 0
	for _, row := range in.Distances {
		pairs += len(row)
		for d := range row {
			demands[d] = struct{}{}
		}
	}
	total := 0
	for r := range in.Distances {
		if c, ok := in.Capacities[r]; ok {
			total += c
		} else {
			total += in.DefaultCapacity
		}
	}
	return model.Snapshot{
		ID:              id,
		TenantID:        tenantID,
		Name:            in.Name,
		ResourceCount:   len(in.Distances),
		DemandCount:     len(demands),
		PairCount:       pairs,
		TotalCapacity:   total,
		DefaultCapacity: in.DefaultCapacity,
		CreatedAt:       time.Now().UTC(),
	}
}

func (m *Memory) CreateSnapshot(ctx context.Context, tenantID string, in model.SnapshotIn) (model.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.New().String()
	s := SummarizeSnapshot(id, tenantID, in)
	m.snaps[id] = s
	m.snapData[id] = in
	m.snapsTen[tenantID] = append(m.snapsTen[tenantID], id)
	return s, nil
}

func (m *Memory) GetSnapshot(ctx context.Context, tenantID, id string) (model.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.snaps[id]
	if !ok || s.TenantID != tenantID {
		return model.Snapshot{}, ErrNotFound
	}
	return s, nil
}

func (m *Memory) GetSnapshotTables(ctx context.Context, tenantID, id string) (model.SnapshotIn, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.snaps[id]
	if !ok || s.TenantID != tenantID {
		return model.SnapshotIn{}, ErrNotFound
	}
	return m.snapData[id], nil
}

func (m *Memory) ListSnapshots(ctx context.Context, tenantID, cursor string, limit int) ([]model.Snapshot, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := m.snapsTen[tenantID]
	start := cursorIndex(ids, cursor)
	if limit <= 0 {
		limit = 100
	}
	out := []model.Snapshot{}
	var next string
	for i := start; i < len(ids) && len(out) < limit; i++ {
		out = append(out, m.snaps[ids[i]])
		next = ids[i]
	}
	if len(out) < limit {
		next = ""
	}
	return out, next, nil
}

func (m *Memory) CreateRun(ctx context.Context, run model.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.runs[run.ID] = run
	m.runsTen[run.TenantID] = append(m.runsTen[run.TenantID], run.ID)
	return nil
}

func (m *Memory) UpdateRun(ctx context.Context, run model.Run) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.runs[run.ID]
	if !ok || cur.TenantID != run.TenantID {
		return ErrNotFound
	}
	m.runs[run.ID] = run
	return nil
}

func (m *Memory) GetRun(ctx context.Context, tenantID, id string) (model.Run, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[id]
	if !ok || r.TenantID != tenantID {
		return model.Run{}, ErrNotFound
	}
	return r, nil
}

func (m *Memory) ListRuns(ctx context.Context, tenantID, status, cursor string, limit int) ([]model.Run, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ids := m.runsTen[tenantID]
	start := cursorIndex(ids, cursor)
	if limit <= 0 {
		limit = 100
	}
	out := []model.Run{}
	var next string
	for i := start; i < len(ids) && len(out) < limit; i++ {
		r := m.runs[ids[i]]
		if status == "" || r.Status == status {
			out = append(out, r)
		}
		next = ids[i]
	}
	if len(out) < limit {
		next = ""
	}
	return out, next, nil
}

func (m *Memory) SaveAttempts(ctx context.Context, tenantID, runID string, attempts []model.AttemptOut) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.attempts[runID] = append([]model.AttemptOut(nil), attempts...)
	return nil
}

func (m *Memory) ListAttempts(ctx context.Context, tenantID, runID string) ([]model.AttemptOut, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[runID]
	if !ok || r.TenantID != tenantID {
		return nil, ErrNotFound
	}
	out := append([]model.AttemptOut(nil), m.attempts[runID]...)
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

func (m *Memory) SaveAssignments(ctx context.Context, tenantID, runID string, rows []model.AssignmentOut) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.assigns[runID] = append([]model.AssignmentOut(nil), rows...)
	return nil
}

func (m *Memory) ListAssignments(ctx context.Context, tenantID, runID string) ([]model.AssignmentOut, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.runs[runID]
	if !ok || r.TenantID != tenantID {
		return nil, ErrNotFound
	}
	return append([]model.AssignmentOut(nil), m.assigns[runID]...), nil
}

func (m *Memory) CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s := model.Subscription{ID: uuid.New().String(), TenantID: req.TenantID, URL: req.URL, Events: req.Events, Secret: req.Secret}
	m.subs[req.TenantID] = append(m.subs[req.TenantID], s)
	return s, nil
}

func (m *Memory) GetSubscriptionsForEvent(ctx context.Context, tenantID, eventType string) ([]model.Subscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.Subscription
	for _, s := range m.subs[tenantID] {
		for _, e := range s.Events {
			if e == eventType {
				out = append(out, s)
				break
			}
		}
	}
	return out, nil
}

func (m *Memory) ListSubscriptions(ctx context.Context, tenantID, cursor string, limit int) ([]model.Subscription, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	list := m.subs[tenantID]
	start := 0
	if cursor != "" {
		for i := range list {
			if list[i].ID == cursor {
				start = i + 1
				break
			}
		}
	}
	if limit <= 0 {
		limit = 100
	}
	end := start + limit
	if end > len(list) {
		end = len(list)
	}
	items := append([]model.Subscription(nil), list[start:end]...)
	next := ""
	if end < len(list) {
		next = list[end-1].ID
	}
	return items, next, nil
}

func (m *Memory) DeleteSubscription(ctx context.Context, tenantID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	arr := m.subs[tenantID]
	out := make([]model.Subscription, 0, len(arr))
	for _, s := range arr {
		if s.ID != id {
			out = append(out, s)
		}
	}
	m.subs[tenantID] = out
	return nil
}

// Webhook deliveries
func (m *Memory) EnqueueWebhook(ctx context.Context, tenantID, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id := uuid.New().String()
	d := &memDelivery{WebhookDelivery: WebhookDelivery{ID: id, TenantID: tenantID, SubscriptionID: subscriptionID, EventType: eventType, URL: url, Secret: secret, Payload: payload, Status: "pending", Attempts: 0}, NextAttemptAt: time.Now()}
	m.deliveries[id] = d
	m.deliveriesByTenant[tenantID] = append(m.deliveriesByTenant[tenantID], id)
	return id, nil
}

func (m *Memory) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := time.Now()
	out := []WebhookDelivery{}
	for _, lst := range m.deliveriesByTenant {
		for _, id := range lst {
			d := m.deliveries[id]
			if d == nil {
				continue
			}
			if (d.Status == "pending" || d.Status == "retry") && !d.NextAttemptAt.After(now) {
				out = append(out, d.WebhookDelivery)
				if limit > 0 && len(out) >= limit {
					return out, nil
				}
			}
		}
	}
	return out, nil
}

func (m *Memory) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.deliveries[id]
	if d == nil {
		return nil
	}
	d.Attempts++
	d.ResponseCode = responseCode
	d.LatencyMs = latencyMs
	if success {
		d.Status = "delivered"
		now := time.Now()
		d.DeliveredAt = &now
	} else {
		d.Status = "retry"
		d.LastError = lastError
		if nextAttemptAt != nil {
			d.NextAttemptAt = *nextAttemptAt
		} else {
			d.NextAttemptAt = time.Now().Add(1 * time.Minute)
		}
	}
	return nil
}

func (m *Memory) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.deliveries[id]
	if d != nil {
		d.Status = "failed"
		d.LastError = lastError
		d.ResponseCode = responseCode
		d.LatencyMs = latencyMs
	}
	return nil
}

func (m *Memory) ListWebhookDeliveries(ctx context.Context, tenantID, status, cursor string, limit int) ([]map[string]any, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []map[string]any{}
	for _, id := range m.deliveriesByTenant[tenantID] {
		d := m.deliveries[id]
		if d == nil {
			continue
		}
		if status == "" || d.Status == status {
			item := map[string]any{"id": d.ID, "eventType": d.EventType, "status": d.Status, "attempts": d.Attempts, "url": d.URL}
			if !d.NextAttemptAt.IsZero() {
				item["nextAttemptAt"] = d.NextAttemptAt
			}
			if d.LastError != "" {
				item["lastError"] = d.LastError
			}
			out = append(out, item)
		}
	}
	return out, "", nil
}

func (m *Memory) RetryWebhookDelivery(ctx context.Context, tenantID, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d := m.deliveries[id]
	if d != nil && d.TenantID == tenantID {
		d.Status = "pending"
		d.NextAttemptAt = time.Now()
	}
	return nil
}

func (m *Memory) GetOptimizerConfig(ctx context.Context, tenantID string) (*model.OptimizerConfig, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if cfg, ok := m.optCfg[tenantID]; ok {
		out := cfg
		return &out, nil
	}
	return nil, nil
}

func (m *Memory) SaveOptimizerConfig(ctx context.Context, tenantID string, cfg model.OptimizerConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cfg.TenantID = tenantID
	m.optCfg[tenantID] = cfg
	return nil
}

func cursorIndex(ids []string, cursor string) int {
	if cursor == "" {
		return 0
	}
	for i, id := range ids {
		if id == cursor {
			return i + 1
		}
	}
	return 0
}
