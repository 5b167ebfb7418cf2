/**
 * @description
 * Savings goal operations: goal lifecycle, deposits and withdrawals between
 * the main account and a goal, auto-charge schedule management, and the
 * sweep-back of a goal's balance when it is closed or deleted.
 *
 * Every goal movement writes a ledger entry on the main account and a
 * mirrored entry for the goal side, committed together with both balance
 * changes.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/bankabank/ledger-service/internal/domain"
	"github.com/bankabank/ledger-service/internal/store"
)

var (
	ErrGoalNotOwned       = errors.New("savings goal belongs to another user")
	ErrGoalNotActive      = errors.New("savings goal is not active")
	ErrInvalidGoalAmount  = errors.New("amount must be positive")
	ErrInvalidChargeSetup = errors.New("auto charge amount and interval must be positive")
)

// CreateGoal opens a new savings goal for the user.
func (s *Service) CreateGoal(ctx context.Context, userID string, req domain.CreateGoalRequest) (*domain.SavingsGoal, error) {
	if req.TargetAmount <= 0 {
		return nil, ErrInvalidGoalAmount
	}
	now := time.Now().UTC()
	goal := &domain.SavingsGoal{
		ID:           uuid.New(),
		UserID:       userID,
		Name:         req.Name,
		TargetAmount: req.TargetAmount,
		Balance:      0,
		Status:       domain.GoalStatusActive,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.CreateSavingsGoal(ctx, goal); err != nil {
		return nil, err
	}
	log.Printf("level=info component=service msg=\"savings goal created\" user_id=%s goal_id=%s", userID, goal.ID)
	return goal, nil
}

// ListGoals returns all of the user's savings goals.
func (s *Service) ListGoals(ctx context.Context, userID string) ([]domain.SavingsGoal, error) {
	return s.repo.ListSavingsGoalsByUser(ctx, userID)
}

// findOwnedGoal loads a goal and enforces ownership.
func (s *Service) findOwnedGoal(ctx context.Context, userID string, goalID uuid.UUID) (*domain.SavingsGoal, error) {
	goal, err := s.repo.FindSavingsGoalByID(ctx, goalID)
	if err != nil {
		return nil, err
	}
	if goal.UserID != userID {
		return nil, ErrGoalNotOwned
	}
	return goal, nil
}

// GetGoal returns one of the user's goals.
func (s *Service) GetGoal(ctx context.Context, userID string, goalID uuid.UUID) (*domain.SavingsGoal, error) {
	return s.findOwnedGoal(ctx, userID, goalID)
}

func goalMovementEntries(account *domain.Account, goal *domain.SavingsGoal, amount int64, reference, description string, toGoal bool, now time.Time) (accountEntry, goalEntry *domain.Transaction) {
	accountMode, goalMode := domain.ModeDebit, domain.ModeCredit
	if !toGoal {
		accountMode, goalMode = domain.ModeCredit, domain.ModeDebit
	}
	accountEntry = &domain.Transaction{
		ID:           uuid.New(),
		UserID:       account.UserID,
		SenderName:   account.AccountName,
		ReceiverName: goal.Name,
		Amount:       amount,
		Mode:         accountMode,
		Description:  description,
		Status:       domain.StatusSuccess,
		PaidAt:       &now,
		CreatedAt:    now,
		Reference:    &reference,
	}
	goalRef := reference + "_GOAL"
	goalEntry = &domain.Transaction{
		ID:           uuid.New(),
		UserID:       account.UserID,
		SenderName:   account.AccountName,
		ReceiverName: goal.Name,
		Amount:       amount,
		Mode:         goalMode,
		Description:  description,
		Status:       domain.StatusSuccess,
		PaidAt:       &now,
		CreatedAt:    now,
		Reference:    &goalRef,
	}
	return accountEntry, goalEntry
}

// DepositToGoal moves funds from the main account into a goal. Reaching the
// target completes the goal and stops any auto charge.
func (s *Service) DepositToGoal(ctx context.Context, userID string, goalID uuid.UUID, amount int64) (*domain.SavingsGoal, error) {
	if amount <= 0 {
		return nil, ErrInvalidGoalAmount
	}
	goal, err := s.findOwnedGoal(ctx, userID, goalID)
	if err != nil {
		return nil, err
	}
	if goal.Status != domain.GoalStatusActive {
		return nil, ErrGoalNotActive
	}
	account, err := s.repo.FindAccountByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	reference := "SAVINGS_DEPOSIT_" + uuid.NewString()
	accountEntry, goalEntry := goalMovementEntries(account, goal, amount, reference, fmt.Sprintf("Savings deposit to %q", goal.Name), true, now)

	updated, err := s.repo.ExecuteGoalDeposit(ctx, store.GoalMovementParams{
		AccountID:    account.ID,
		GoalID:       goal.ID,
		Amount:       amount,
		AccountEntry: accountEntry,
		GoalEntry:    goalEntry,
	})
	if err != nil {
		return nil, err
	}
	return s.finishGoalDeposit(ctx, updated)
}

// finishGoalDeposit settles completion state after a deposit lands.
func (s *Service) finishGoalDeposit(ctx context.Context, goal *domain.SavingsGoal) (*domain.SavingsGoal, error) {
	if !goal.IsCompleted() {
		return goal, nil
	}
	goal.Status = domain.GoalStatusCompleted
	goal.DisableAutoCharge(time.Now().UTC())
	if err := s.repo.UpdateSavingsGoal(ctx, goal); err != nil {
		return nil, err
	}
	s.publish(domain.RoutingKeyGoalCompleted, domain.GoalCompletedEvent{
		UserID:    goal.UserID,
		GoalID:    goal.ID.String(),
		GoalName:  goal.Name,
		Balance:   goal.Balance,
		Timestamp: time.Now().UTC(),
	})
	log.Printf("level=info component=service msg=\"savings goal completed\" goal_id=%s balance=%d", goal.ID, goal.Balance)
	return goal, nil
}

// WithdrawFromGoal moves funds from a goal back to the main account.
func (s *Service) WithdrawFromGoal(ctx context.Context, userID string, goalID uuid.UUID, amount int64) (*domain.SavingsGoal, error) {
	if amount <= 0 {
		return nil, ErrInvalidGoalAmount
	}
	goal, err := s.findOwnedGoal(ctx, userID, goalID)
	if err != nil {
		return nil, err
	}
	account, err := s.repo.FindAccountByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	reference := "SAVINGS_WITHDRAW_" + uuid.NewString()
	accountEntry, goalEntry := goalMovementEntries(account, goal, amount, reference, fmt.Sprintf("Savings withdrawal from %q", goal.Name), false, now)

	return s.repo.ExecuteGoalWithdrawal(ctx, store.GoalMovementParams{
		AccountID:    account.ID,
		GoalID:       goal.ID,
		Amount:       amount,
		AccountEntry: accountEntry,
		GoalEntry:    goalEntry,
	})
}

// SetupAutoCharge enables the recurring sweep from the main account into the
// goal at a fixed interval.
func (s *Service) SetupAutoCharge(ctx context.Context, userID string, goalID uuid.UUID, req domain.AutoChargeRequest) (*domain.SavingsGoal, error) {
	if req.Amount <= 0 || req.IntervalMinutes <= 0 {
		return nil, ErrInvalidChargeSetup
	}
	goal, err := s.findOwnedGoal(ctx, userID, goalID)
	if err != nil {
		return nil, err
	}
	if goal.Status != domain.GoalStatusActive {
		return nil, ErrGoalNotActive
	}
	goal.SetupAutoCharge(req.Amount, req.IntervalMinutes, time.Now().UTC())
	if err := s.repo.UpdateSavingsGoal(ctx, goal); err != nil {
		return nil, err
	}
	return goal, nil
}

// DisableAutoCharge turns the recurring sweep off.
func (s *Service) DisableAutoCharge(ctx context.Context, userID string, goalID uuid.UUID) (*domain.SavingsGoal, error) {
	goal, err := s.findOwnedGoal(ctx, userID, goalID)
	if err != nil {
		return nil, err
	}
	goal.DisableAutoCharge(time.Now().UTC())
	if err := s.repo.UpdateSavingsGoal(ctx, goal); err != nil {
		return nil, err
	}
	return goal, nil
}

// sweepGoalToAccount returns a goal's remaining balance to the main account.
func (s *Service) sweepGoalToAccount(ctx context.Context, account *domain.Account, goal *domain.SavingsGoal, refPrefix string) error {
	if goal.Balance <= 0 {
		return nil
	}
	now := time.Now().UTC()
	reference := refPrefix + uuid.NewString()
	accountEntry, goalEntry := goalMovementEntries(account, goal, goal.Balance, reference, fmt.Sprintf("Savings sweep from %q", goal.Name), false, now)
	_, err := s.repo.ExecuteGoalWithdrawal(ctx, store.GoalMovementParams{
		AccountID:    account.ID,
		GoalID:       goal.ID,
		Amount:       goal.Balance,
		AccountEntry: accountEntry,
		GoalEntry:    goalEntry,
	})
	return err
}

// CloseGoal sweeps the remaining balance back to the main account and marks
// the goal closed. The goal row is kept for history.
func (s *Service) CloseGoal(ctx context.Context, userID string, goalID uuid.UUID) (*domain.SavingsGoal, error) {
	goal, err := s.findOwnedGoal(ctx, userID, goalID)
	if err != nil {
		return nil, err
	}
	account, err := s.repo.FindAccountByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := s.sweepGoalToAccount(ctx, account, goal, "SAVINGS_CLOSE_"); err != nil {
		return nil, err
	}
	goal.Balance = 0
	goal.Status = domain.GoalStatusClosed
	goal.DisableAutoCharge(time.Now().UTC())
	if err := s.repo.UpdateSavingsGoal(ctx, goal); err != nil {
		return nil, err
	}
	log.Printf("level=info component=service msg=\"savings goal closed\" goal_id=%s", goal.ID)
	return goal, nil
}

// DeleteGoal sweeps the remaining balance back and removes the goal row.
func (s *Service) DeleteGoal(ctx context.Context, userID string, goalID uuid.UUID) error {
	goal, err := s.findOwnedGoal(ctx, userID, goalID)
	if err != nil {
		return err
	}
	account, err := s.repo.FindAccountByUserID(ctx, userID)
	if err != nil {
		return err
	}
	if err := s.sweepGoalToAccount(ctx, account, goal, "SAVINGS_DELETE_"); err != nil {
		return err
	}
	if err := s.repo.DeleteSavingsGoal(ctx, goal.ID); err != nil {
		return err
	}
	log.Printf("level=info component=service msg=\"savings goal deleted\" goal_id=%s", goal.ID)
	return nil
}
