package notifier

import (
	"context"

	"github.com/karimadel/giu-portal-monitor/internal/models"
)

// Notifier delivers the change events of one monitoring run. Delivery
// failures are the caller's to log; they never fail the run.
type Notifier interface {
	Notify(ctx context.Context, run models.RunInfo, changes []models.ChangeEvent) error
}
