/**
 * @description
 * Scheduled job implementations for the ledger-service.
 */
package app

import (
	"context"
	"log/slog"
	"time"
)

// GoalCharger is the slice of the service the auto-charge job needs.
type GoalCharger interface {
	ChargeDueGoals(ctx context.Context, now time.Time) (AutoChargeSummary, error)
}

// Jobs contains the logic for all scheduled tasks.
type Jobs struct {
	charger GoalCharger
	logger  *slog.Logger
}

// NewJobs creates a new Jobs runner.
func NewJobs(charger GoalCharger, logger *slog.Logger) *Jobs {
	return &Jobs{
		charger: charger,
		logger:  logger,
	}
}

// RunAutoCharge executes one savings auto-charge sweep.
func (j *Jobs) RunAutoCharge() {
	ctx := context.Background()
	now := time.Now().UTC()

	summary, err := j.charger.ChargeDueGoals(ctx, now)
	if err != nil {
		j.logger.Error("auto charge sweep failed", "error", err)
		return
	}
	if summary.Due == 0 {
		return
	}
	j.logger.Info("auto charge sweep finished",
		"due", summary.Due,
		"charged", summary.Charged,
		"skipped", summary.Skipped,
		"failed", summary.Failed,
	)
}
