package store

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"depotassign/internal/model"
)

type Postgres struct {
	db *sql.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	return &Postgres{db: db}, nil
}

func (p *Postgres) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

// MigrateDir applies every .sql file in dir in lexical order. Files must be
// idempotent (IF NOT EXISTS); there is no version table.
func (p *Postgres) MigrateDir(dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	names := []string{}
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".sql") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	for _, n := range names {
		b, err := os.ReadFile(filepath.Join(dir, n))
		if err != nil {
			return err
		}
		if _, err := p.db.Exec(string(b)); err != nil {
			return err
		}
	}
	return nil
}

func (p *Postgres) CreateSnapshot(ctx context.Context, tenantID string, in model.SnapshotIn) (model.Snapshot, error) {
	id := uuid.New().String()
	s := SummarizeSnapshot(id, tenantID, in)
	tables, err := json.Marshal(in)
	if err != nil {
		return model.Snapshot{}, err
	}
	_, err = p.db.ExecContext(ctx, `INSERT INTO snapshots (id, tenant_id, name, tables, resource_count, demand_count, pair_count, total_capacity, default_capacity, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
		id, tenantID, nullIfEmpty(in.Name), tables, s.ResourceCount, s.DemandCount, s.PairCount, s.TotalCapacity, s.DefaultCapacity, s.CreatedAt)
	if err != nil {
		return model.Snapshot{}, err
	}
	return s, nil
}

func (p *Postgres) GetSnapshot(ctx context.Context, tenantID, id string) (model.Snapshot, error) {
	var s model.Snapshot
	var name sql.NullString
	row := p.db.QueryRowContext(ctx, `SELECT id::text, name, resource_count, demand_count, pair_count, total_capacity, default_capacity, created_at
		FROM snapshots WHERE tenant_id=$1 AND id=$2`, tenantID, id)
	if err := row.Scan(&s.ID, &name, &s.ResourceCount, &s.DemandCount, &s.PairCount, &s.TotalCapacity, &s.DefaultCapacity, &s.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return s, ErrNotFound
		}
		return s, err
	}
	s.TenantID = tenantID
	s.Name = name.String
	return s, nil
}

func (p *Postgres) GetSnapshotTables(ctx context.Context, tenantID, id string) (model.SnapshotIn, error) {
	var js []byte
	row := p.db.QueryRowContext(ctx, `SELECT tables FROM snapshots WHERE tenant_id=$1 AND id=$2`, tenantID, id)
	if err := row.Scan(&js); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.SnapshotIn{}, ErrNotFound
		}
		return model.SnapshotIn{}, err
	}
	var in model.SnapshotIn
	if err := json.Unmarshal(js, &in); err != nil {
		return model.SnapshotIn{}, err
	}
	return in, nil
}

func (p *Postgres) ListSnapshots(ctx context.Context, tenantID, cursor string, limit int) ([]model.Snapshot, string, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var rows *sql.Rows
	var err error
	q := `SELECT id::text, name, resource_count, demand_count, pair_count, total_capacity, default_capacity, created_at FROM snapshots WHERE tenant_id=$1`
	if cursor != "" {
		rows, err = p.db.QueryContext(ctx, q+` AND id::text > $2 ORDER BY id LIMIT $3`, tenantID, cursor, limit)
	} else {
		rows, err = p.db.QueryContext(ctx, q+` ORDER BY id LIMIT $2`, tenantID, limit)
	}
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	out := []model.Snapshot{}
	var last string
	for rows.Next() {
		var s model.Snapshot
		var name sql.NullString
		if err := rows.Scan(&s.ID, &name, &s.ResourceCount, &s.DemandCount, &s.PairCount, &s.TotalCapacity, &s.DefaultCapacity, &s.CreatedAt); err != nil {
			return nil, "", err
		}
		s.TenantID = tenantID
		s.Name = name.String
		out = append(out, s)
		last = s.ID
	}
	next := ""
	if len(out) == limit {
		next = last
	}
	return out, next, nil
}

func (p *Postgres) CreateRun(ctx context.Context, run model.Run) error {
	diag, err := diagJSON(run.Diagnosis)
	if err != nil {
		return err
	}
	met, err := jsonOrNil(run.Metrics)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx, `INSERT INTO runs (id, tenant_id, snapshot_id, status, objective, strategy_used, strategy_index, objective_value, total_cost, assigned, metrics, error, diagnosis, created_at, finished_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
		run.ID, run.TenantID, run.SnapshotID, run.Status, run.Objective, nullIfEmpty(run.StrategyUsed), run.StrategyIndex,
		run.ObjectiveVal, run.TotalCost, run.Assigned, met, nullIfEmpty(run.Error), diag, run.CreatedAt, run.FinishedAt)
	return err
}

func (p *Postgres) UpdateRun(ctx context.Context, run model.Run) error {
	diag, err := diagJSON(run.Diagnosis)
	if err != nil {
		return err
	}
	met, err := jsonOrNil(run.Metrics)
	if err != nil {
		return err
	}
	res, err := p.db.ExecContext(ctx, `UPDATE runs SET status=$3, strategy_used=$4, strategy_index=$5, objective_value=$6, total_cost=$7, assigned=$8, metrics=$9, error=$10, diagnosis=$11, finished_at=$12
		WHERE tenant_id=$1 AND id=$2`,
		run.TenantID, run.ID, run.Status, nullIfEmpty(run.StrategyUsed), run.StrategyIndex,
		run.ObjectiveVal, run.TotalCost, run.Assigned, met, nullIfEmpty(run.Error), diag, run.FinishedAt)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *Postgres) GetRun(ctx context.Context, tenantID, id string) (model.Run, error) {
	row := p.db.QueryRowContext(ctx, `SELECT id::text, snapshot_id::text, status, objective, COALESCE(strategy_used,''), strategy_index, objective_value, total_cost, assigned, metrics, COALESCE(error,''), diagnosis, created_at, finished_at
		FROM runs WHERE tenant_id=$1 AND id=$2`, tenantID, id)
	r, err := scanRun(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return model.Run{}, ErrNotFound
		}
		return model.Run{}, err
	}
	r.TenantID = tenantID
	return r, nil
}

func (p *Postgres) ListRuns(ctx context.Context, tenantID, status, cursor string, limit int) ([]model.Run, string, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	q := `SELECT id::text, snapshot_id::text, status, objective, COALESCE(strategy_used,''), strategy_index, objective_value, total_cost, assigned, metrics, COALESCE(error,''), diagnosis, created_at, finished_at
		FROM runs WHERE tenant_id=$1`
	args := []any{tenantID}
	idx := 2
	if status != "" {
		q += ` AND status=$` + strconv.Itoa(idx)
		args = append(args, status)
		idx++
	}
	if cursor != "" {
		q += ` AND id::text > $` + strconv.Itoa(idx)
		args = append(args, cursor)
		idx++
	}
	q += ` ORDER BY id LIMIT $` + strconv.Itoa(idx)
	args = append(args, limit)
	rows, err := p.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	out := []model.Run{}
	var last string
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, "", err
		}
		r.TenantID = tenantID
		out = append(out, r)
		last = r.ID
	}
	next := ""
	if len(out) == limit {
		next = last
	}
	return out, next, nil
}

type rowScanner interface{ Scan(dest ...any) error }

func scanRun(row rowScanner) (model.Run, error) {
	var r model.Run
	var met, diag []byte
	var finished sql.NullTime
	if err := row.Scan(&r.ID, &r.SnapshotID, &r.Status, &r.Objective, &r.StrategyUsed, &r.StrategyIndex,
		&r.ObjectiveVal, &r.TotalCost, &r.Assigned, &met, &r.Error, &diag, &r.CreatedAt, &finished); err != nil {
		return r, err
	}
	if len(met) > 0 {
		var m model.RunMetricsOut
		if json.Unmarshal(met, &m) == nil {
			r.Metrics = &m
		}
	}
	if len(diag) > 0 {
		var d model.DiagnosisOut
		if json.Unmarshal(diag, &d) == nil {
			r.Diagnosis = &d
		}
	}
	if finished.Valid {
		t := finished.Time
		r.FinishedAt = &t
	}
	return r, nil
}

func (p *Postgres) SaveAttempts(ctx context.Context, tenantID, runID string, attempts []model.AttemptOut) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx, `DELETE FROM run_attempts WHERE tenant_id=$1 AND run_id=$2`, tenantID, runID); err != nil {
		return err
	}
	for _, a := range attempts {
		strat, err := json.Marshal(a.Strategy)
		if err != nil {
			return err
		}
		diag, err := diagJSON(a.Diagnosis)
		if err != nil {
			return err
		}
		if _, err := tx.ExecContext(ctx, `INSERT INTO run_attempts (id, tenant_id, run_id, seq, strategy, status, objective, elapsed_ms, diagnosis)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`,
			uuid.New(), tenantID, runID, a.Seq, strat, a.Status, a.Objective, a.ElapsedMs, diag); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (p *Postgres) ListAttempts(ctx context.Context, tenantID, runID string) ([]model.AttemptOut, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT seq, strategy, status, objective, elapsed_ms, diagnosis FROM run_attempts
		WHERE tenant_id=$1 AND run_id=$2 ORDER BY seq`, tenantID, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.AttemptOut{}
	for rows.Next() {
		var a model.AttemptOut
		var strat, diag []byte
		if err := rows.Scan(&a.Seq, &strat, &a.Status, &a.Objective, &a.ElapsedMs, &diag); err != nil {
			return nil, err
		}
		_ = json.Unmarshal(strat, &a.Strategy)
		if len(diag) > 0 {
			var d model.DiagnosisOut
			if json.Unmarshal(diag, &d) == nil {
				a.Diagnosis = &d
			}
		}
		out = append(out, a)
	}
	return out, nil
}

func (p *Postgres) SaveAssignments(ctx context.Context, tenantID, runID string, assigns []model.AssignmentOut) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx, `DELETE FROM assignments WHERE tenant_id=$1 AND run_id=$2`, tenantID, runID); err != nil {
		return err
	}
	for i, a := range assigns {
		if _, err := tx.ExecContext(ctx, `INSERT INTO assignments (id, tenant_id, run_id, seq, resource_id, demand_id, cost, cumulative_cost)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
			uuid.New(), tenantID, runID, i, a.ResourceID, a.DemandID, a.Cost, a.CumulativeCost); err != nil {
			return err
		}
	}
	return tx.Commit()
}

func (p *Postgres) ListAssignments(ctx context.Context, tenantID, runID string) ([]model.AssignmentOut, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT resource_id, demand_id, cost, cumulative_cost FROM assignments
		WHERE tenant_id=$1 AND run_id=$2 ORDER BY seq`, tenantID, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.AssignmentOut{}
	for rows.Next() {
		var a model.AssignmentOut
		if err := rows.Scan(&a.ResourceID, &a.DemandID, &a.Cost, &a.CumulativeCost); err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, nil
}

func (p *Postgres) CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error) {
	id := uuid.New().String()
	ev, _ := json.Marshal(req.Events)
	_, err := p.db.ExecContext(ctx, `INSERT INTO subscriptions (id, tenant_id, url, events, secret) VALUES ($1,$2,$3,$4,$5)`, id, req.TenantID, req.URL, ev, req.Secret)
	if err != nil {
		return model.Subscription{}, err
	}
	return model.Subscription{ID: id, TenantID: req.TenantID, URL: req.URL, Events: req.Events, Secret: req.Secret}, nil
}

func (p *Postgres) GetSubscriptionsForEvent(ctx context.Context, tenantID, eventType string) ([]model.Subscription, error) {
	ev, _ := json.Marshal([]string{eventType})
	rows, err := p.db.QueryContext(ctx, `SELECT id::text, url, secret, events FROM subscriptions WHERE tenant_id=$1 AND events @> $2::jsonb`, tenantID, ev)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []model.Subscription{}
	for rows.Next() {
		var s model.Subscription
		var events []byte
		if err := rows.Scan(&s.ID, &s.URL, &s.Secret, &events); err != nil {
			return nil, err
		}
		s.TenantID = tenantID
		_ = json.Unmarshal(events, &s.Events)
		out = append(out, s)
	}
	return out, nil
}

func (p *Postgres) ListSubscriptions(ctx context.Context, tenantID, cursor string, limit int) ([]model.Subscription, string, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var rows *sql.Rows
	var err error
	if cursor != "" {
		rows, err = p.db.QueryContext(ctx, `SELECT id::text, url, secret, events FROM subscriptions WHERE tenant_id=$1 AND id::text > $2 ORDER BY id LIMIT $3`, tenantID, cursor, limit)
	} else {
		rows, err = p.db.QueryContext(ctx, `SELECT id::text, url, secret, events FROM subscriptions WHERE tenant_id=$1 ORDER BY id LIMIT $2`, tenantID, limit)
	}
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	var out []model.Subscription
	var last string
	for rows.Next() {
		var s model.Subscription
		var ev []byte
		if err := rows.Scan(&s.ID, &s.URL, &s.Secret, &ev); err != nil {
			return nil, "", err
		}
		s.TenantID = tenantID
		_ = json.Unmarshal(ev, &s.Events)
		out = append(out, s)
		last = s.ID
	}
	next := ""
	if len(out) == limit {
		next = last
	}
	return out, next, nil
}

func (p *Postgres) DeleteSubscription(ctx context.Context, tenantID, id string) error {
	_, err := p.db.ExecContext(ctx, `DELETE FROM subscriptions WHERE tenant_id=$1 AND id=$2`, tenantID, id)
	return err
}

// Webhook deliveries
func (p *Postgres) EnqueueWebhook(ctx context.Context, tenantID, subscriptionID, eventType, url, secret string, payload []byte) (string, error) {
	id := uuid.New().String()
	dk := computeDedupKey(payload)
	_, err := p.db.ExecContext(ctx, `INSERT INTO webhook_deliveries (id, tenant_id, subscription_id, event_type, url, secret, payload, status, attempts, next_attempt_at, dedup_key)
		VALUES ($1,$2,$3,$4,$5,$6,$7,'pending',0,now(),$8)
		ON CONFLICT (tenant_id, event_type, url, dedup_key) DO NOTHING`, id, tenantID, nullIfEmpty(subscriptionID), eventType, url, nullIfEmpty(secret), payload, dk)
	if err != nil {
		return "", err
	}
	return id, nil
}

func (p *Postgres) FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT id::text, tenant_id::text, COALESCE(subscription_id::text,''), event_type, url, COALESCE(secret,''), payload, status, attempts
		FROM webhook_deliveries WHERE status IN ('pending','retry') AND next_attempt_at <= now() ORDER BY next_attempt_at ASC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := []WebhookDelivery{}
	for rows.Next() {
		var d WebhookDelivery
		var payload []byte
		if err := rows.Scan(&d.ID, &d.TenantID, &d.SubscriptionID, &d.EventType, &d.URL, &d.Secret, &payload, &d.Status, &d.Attempts); err != nil {
			return nil, err
		}
		d.Payload = payload
		out = append(out, d)
	}
	return out, nil
}

func (p *Postgres) MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
	if !success {
		if nextAttemptAt == nil {
			t := time.Now().Add(1 * time.Minute)
			nextAttemptAt = &t
		}
		_, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET attempts=attempts+1, status='retry', last_error=$2, next_attempt_at=$3, updated_at=now(), response_code=$4, latency_ms=$5 WHERE id=$1`,
			id, nullIfEmpty(lastError), *nextAttemptAt, responseCode, latencyMs)
		return err
	}
	_, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET attempts=attempts+1, status='delivered', delivered_at=now(), updated_at=now(), response_code=$2, latency_ms=$3 WHERE id=$1`, id, responseCode, latencyMs)
	return err
}

func (p *Postgres) FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
	_, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET status='failed', last_error=$2, updated_at=now(), response_code=$3, latency_ms=$4 WHERE id=$1`, id, nullIfEmpty(lastError), responseCode, latencyMs)
	return err
}

func (p *Postgres) ListWebhookDeliveries(ctx context.Context, tenantID, status, cursor string, limit int) ([]map[string]any, string, error) {
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	q := `SELECT id::text, event_type, status, attempts, next_attempt_at, COALESCE(last_error,''), url FROM webhook_deliveries WHERE tenant_id=$1`
	var rows *sql.Rows
	var err error
	if status != "" {
		rows, err = p.db.QueryContext(ctx, q+` AND status=$2 ORDER BY id LIMIT $3`, tenantID, status, limit)
	} else {
		rows, err = p.db.QueryContext(ctx, q+` ORDER BY id LIMIT $2`, tenantID, limit)
	}
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	out := []map[string]any{}
	var last string
	for rows.Next() {
		var id, typ, st, lastErr, url string
		var attempts int
		var nextAt sql.NullTime
		if err := rows.Scan(&id, &typ, &st, &attempts, &nextAt, &lastErr, &url); err != nil {
			return nil, "", err
		}
		m := map[string]any{"id": id, "eventType": typ, "status": st, "attempts": attempts, "url": url}
		if nextAt.Valid {
			m["nextAttemptAt"] = nextAt.Time
		}
		if lastErr != "" {
			m["lastError"] = lastErr
		}
		out = append(out, m)
		last = id
	}
	next := ""
	if len(out) == limit {
		next = last
	}
	return out, next, nil
}

func (p *Postgres) RetryWebhookDelivery(ctx context.Context, tenantID, id string) error {
	_, err := p.db.ExecContext(ctx, `UPDATE webhook_deliveries SET status='pending', next_attempt_at=now() WHERE tenant_id=$1 AND id=$2`, tenantID, id)
	return err
}

func (p *Postgres) GetOptimizerConfig(ctx context.Context, tenantID string) (*model.OptimizerConfig, error) {
	row := p.db.QueryRowContext(ctx, `SELECT config FROM optimizer_config WHERE tenant_id=$1`, tenantID)
	var js []byte
	if err := row.Scan(&js); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	var cfg model.OptimizerConfig
	if err := json.Unmarshal(js, &cfg); err != nil {
		return nil, err
	}
	cfg.TenantID = tenantID
	return &cfg, nil
}

func (p *Postgres) SaveOptimizerConfig(ctx context.Context, tenantID string, cfg model.OptimizerConfig) error {
	cfg.TenantID = tenantID
	js, err := json.Marshal(cfg)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx, `INSERT INTO optimizer_config (tenant_id, config, updated_at) VALUES ($1,$2,now())
		ON CONFLICT (tenant_id) DO UPDATE SET config=$2, updated_at=now()`, tenantID, js)
	return err
}

func computeDedupKey(payload []byte) string {
	var m map[string]any
	if json.Unmarshal(payload, &m) == nil {
		if v, ok := m["id"].(string); ok && v != "" {
			return v
		}
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:8])
}

func diagJSON(d *model.DiagnosisOut) (any, error) {
	if d == nil {
		return nil, nil
	}
	return json.Marshal(d)
}

func jsonOrNil(v *model.RunMetricsOut) (any, error) {
	if v == nil {
		return nil, nil
	}
	return json.Marshal(v)
}

// Helpers
func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}
