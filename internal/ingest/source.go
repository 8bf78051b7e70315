// Package ingest adapts external data sources into snapshot payloads.
package ingest

import "depotassign/internal/model"

// SnapshotSource is the minimal interface for cost-table source integrations.
type SnapshotSource interface {
	Name() string
	// Parse converts raw source bytes into a snapshot payload.
	Parse(data []byte) (model.SnapshotIn, error)
}
