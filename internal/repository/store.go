package repository

import (
	"context"

	"github.com/karimadel/giu-portal-monitor/internal/models"
)

// SnapshotStore persists the comparison baseline between runs. Load returns
// (nil, nil) when no usable baseline exists; a corrupted baseline degrades to
// absent rather than blocking monitoring.
type SnapshotStore interface {
	Load(ctx context.Context) (*models.Snapshot, error)
	Save(ctx context.Context, run models.RunInfo, snapshot *models.Snapshot) error
	Close() error
}
