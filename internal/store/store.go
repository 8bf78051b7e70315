package store

import (
	"context"
	"errors"
	"time"

	"depotassign/internal/model"
)

// Store is the persistence interface used by the API server and the run
// executor.
type Store interface {
	// Snapshots
	CreateSnapshot(ctx context.Context, tenantID string, in model.SnapshotIn) (model.Snapshot, error)
	GetSnapshot(ctx context.Context, tenantID, id string) (model.Snapshot, error)
	// GetSnapshotTables returns the full cost tables for the optimizer.
	GetSnapshotTables(ctx context.Context, tenantID, id string) (model.SnapshotIn, error)
	ListSnapshots(ctx context.Context, tenantID, cursor string, limit int) ([]model.Snapshot, string, error)

	// Runs
	CreateRun(ctx context.Context, run model.Run) error
	UpdateRun(ctx context.Context, run model.Run) error
	GetRun(ctx context.Context, tenantID, id string) (model.Run, error)
	ListRuns(ctx context.Context, tenantID, status, cursor string, limit int) ([]model.Run, string, error)
	SaveAttempts(ctx context.Context, tenantID, runID string, attempts []model.AttemptOut) error
	ListAttempts(ctx context.Context, tenantID, runID string) ([]model.AttemptOut, error)
	SaveAssignments(ctx context.Context, tenantID, runID string, rows []model.AssignmentOut) error
	ListAssignments(ctx context.Context, tenantID, runID string) ([]model.AssignmentOut, error)

	// Subscriptions
	CreateSubscription(ctx context.Context, req model.SubscriptionRequest) (model.Subscription, error)
	GetSubscriptionsForEvent(ctx context.Context, tenantID, eventType string) ([]model.Subscription, error)
	ListSubscriptions(ctx context.Context, tenantID, cursor string, limit int) ([]model.Subscription, string, error)
	DeleteSubscription(ctx context.Context, tenantID, id string) error

	// Webhook deliveries
	EnqueueWebhook(ctx context.Context, tenantID, subscriptionID, eventType, url, secret string, payload []byte) (string, error)
	FetchDueWebhookDeliveries(ctx context.Context, limit int) ([]WebhookDelivery, error)
	MarkWebhookDelivery(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error
	FailWebhookDelivery(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error
	ListWebhookDeliveries(ctx context.Context, tenantID, status, cursor string, limit int) ([]map[string]any, string, error)
	RetryWebhookDelivery(ctx context.Context, tenantID, id string) error

	// Optimizer config per tenant
	GetOptimizerConfig(ctx context.Context, tenantID string) (*model.OptimizerConfig, error)
	SaveOptimizerConfig(ctx context.Context, tenantID string, cfg model.OptimizerConfig) error
}

var ErrNotFound = errors.New("not found")
