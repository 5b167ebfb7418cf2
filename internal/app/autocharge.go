/**
 * @description
 * The recurring auto-charge sweep. Each run picks up every active goal whose
 * next charge time has passed, moves the configured amount from the owner's
 * main account into the goal, and advances the goal's schedule. A goal whose
 * owner cannot cover the charge is skipped for the tick with its schedule
 * untouched, so the next sweep retries it.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/bankabank/ledger-service/internal/domain"
	"github.com/bankabank/ledger-service/internal/store"
)

// AutoChargeSummary reports the outcome of one sweep.
type AutoChargeSummary struct {
	Due     int
	Charged int
	Skipped int
	Failed  int
}

// ChargeDueGoals runs one auto-charge sweep at the given time. Per-goal
// failures never abort the sweep.
func (s *Service) ChargeDueGoals(ctx context.Context, now time.Time) (AutoChargeSummary, error) {
	goals, err := s.repo.ListDueAutoChargeGoals(ctx, now)
	if err != nil {
		return AutoChargeSummary{}, fmt.Errorf("failed to list due goals: %w", err)
	}

	summary := AutoChargeSummary{Due: len(goals)}
	for i := range goals {
		goal := &goals[i]
		if !goal.ShouldAutoCharge(now) {
			summary.Skipped++
			continue
		}
		switch err := s.chargeGoal(ctx, goal, now); {
		case err == nil:
			summary.Charged++
		case errors.Is(err, store.ErrInsufficientFunds):
			// The schedule stays untouched; the next tick retries the charge.
			summary.Skipped++
		default:
			summary.Failed++
		}
	}
	return summary, nil
}

func (s *Service) chargeGoal(ctx context.Context, goal *domain.SavingsGoal, now time.Time) error {
	account, err := s.repo.FindAccountByUserID(ctx, goal.UserID)
	if err != nil {
		return fmt.Errorf("failed to find account for goal %s: %w", goal.ID, err)
	}

	reference := "AUTO_CHARGE_" + uuid.NewString()
	accountEntry, goalEntry := goalMovementEntries(account, goal, goal.AutoChargeAmount, reference, fmt.Sprintf("Auto charge to %q", goal.Name), true, now)

	updated, err := s.repo.ExecuteGoalDeposit(ctx, store.GoalMovementParams{
		AccountID:    account.ID,
		GoalID:       goal.ID,
		Amount:       goal.AutoChargeAmount,
		AccountEntry: accountEntry,
		GoalEntry:    goalEntry,
	})
	if err != nil {
		return err
	}

	updated.AdvanceAutoCharge(now)
	if updated.IsCompleted() {
		if _, err := s.finishGoalDeposit(ctx, updated); err != nil {
			return err
		}
		return nil
	}
	return s.repo.UpdateSavingsGoal(ctx, updated)
}
