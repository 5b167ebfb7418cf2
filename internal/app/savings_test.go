package app

import (
	"context"
	"errors"
	"testing"

	"github.com/bankabank/ledger-service/internal/domain"
	"github.com/bankabank/ledger-service/internal/store"
)

func TestDepositToGoalMovesFundsAndWritesPairedEntries(t *testing.T) {
	f := newTestFixture(t)
	account := f.repo.addAccount("user_1", "1000000001", 10_000_00, hashedPIN(t))

	goal, err := f.service.CreateGoal(context.Background(), "user_1", domain.CreateGoalRequest{
		Name:         "New Laptop",
		TargetAmount: 50_000_00,
	})
	if err != nil {
		t.Fatalf("CreateGoal returned error: %v", err)
	}

	updated, err := f.service.DepositToGoal(context.Background(), "user_1", goal.ID, 4_000_00)
	if err != nil {
		t.Fatalf("DepositToGoal returned error: %v", err)
	}
	if updated.Balance != 4_000_00 {
		t.Errorf("goal balance = %d, want %d", updated.Balance, 4_000_00)
	}
	if got := f.repo.balanceOf(account.ID); got != 6_000_00 {
		t.Errorf("account balance = %d, want %d", got, 6_000_00)
	}

	entries := f.repo.transactionsFor("user_1")
	if len(entries) != 2 {
		t.Fatalf("ledger entries = %d, want paired account and goal entries", len(entries))
	}
	var sawDebit, sawGoalCredit bool
	for _, e := range entries {
		if e.Mode == domain.ModeDebit && e.Amount == 4_000_00 {
			sawDebit = true
		}
		if e.Mode == domain.ModeCredit && e.Reference != nil && len(*e.Reference) > 5 && (*e.Reference)[len(*e.Reference)-5:] == "_GOAL" {
			sawGoalCredit = true
		}
	}
	if !sawDebit || !sawGoalCredit {
		t.Errorf("missing paired entries: debit=%v goalCredit=%v", sawDebit, sawGoalCredit)
	}
}

func TestDepositToGoalRejections(t *testing.T) {
	f := newTestFixture(t)
	f.repo.addAccount("user_1", "1000000001", 1_000_00, hashedPIN(t))
	f.repo.addAccount("user_2", "1000000002", 1_000_00, hashedPIN(t))

	goal, err := f.service.CreateGoal(context.Background(), "user_1", domain.CreateGoalRequest{Name: "Rainy Day", TargetAmount: 10_000_00})
	if err != nil {
		t.Fatalf("CreateGoal returned error: %v", err)
	}

	if _, err := f.service.DepositToGoal(context.Background(), "user_1", goal.ID, 0); !errors.Is(err, ErrInvalidGoalAmount) {
		t.Errorf("zero amount: got %v, want ErrInvalidGoalAmount", err)
	}
	if _, err := f.service.DepositToGoal(context.Background(), "user_2", goal.ID, 500_00); !errors.Is(err, ErrGoalNotOwned) {
		t.Errorf("foreign goal: got %v, want ErrGoalNotOwned", err)
	}
	if _, err := f.service.DepositToGoal(context.Background(), "user_1", goal.ID, 5_000_00); !errors.Is(err, store.ErrInsufficientFunds) {
		t.Errorf("underfunded account: got %v, want ErrInsufficientFunds", err)
	}
}

func TestGoalCompletionDisablesAutoCharge(t *testing.T) {
	f := newTestFixture(t)
	f.repo.addAccount("user_1", "1000000001", 20_000_00, hashedPIN(t))

	goal, err := f.service.CreateGoal(context.Background(), "user_1", domain.CreateGoalRequest{Name: "Phone", TargetAmount: 5_000_00})
	if err != nil {
		t.Fatalf("CreateGoal returned error: %v", err)
	}
	if _, err := f.service.SetupAutoCharge(context.Background(), "user_1", goal.ID, domain.AutoChargeRequest{Amount: 1_000_00, IntervalMinutes: 60}); err != nil {
		t.Fatalf("SetupAutoCharge returned error: %v", err)
	}

	updated, err := f.service.DepositToGoal(context.Background(), "user_1", goal.ID, 5_000_00)
	if err != nil {
		t.Fatalf("DepositToGoal returned error: %v", err)
	}
	if updated.Status != domain.GoalStatusCompleted {
		t.Errorf("goal status = %s, want completed", updated.Status)
	}
	if updated.AutoChargeEnabled || updated.NextAutoCharge != nil {
		t.Error("completion must disable the auto-charge schedule")
	}
	if events := f.producer.eventsFor(domain.RoutingKeyGoalCompleted); len(events) != 1 {
		t.Errorf("published %d completion events, want 1", len(events))
	}

	if _, err := f.service.DepositToGoal(context.Background(), "user_1", goal.ID, 500_00); !errors.Is(err, ErrGoalNotActive) {
		t.Errorf("deposit into completed goal: got %v, want ErrGoalNotActive", err)
	}
}

func TestWithdrawFromGoal(t *testing.T) {
	f := newTestFixture(t)
	account := f.repo.addAccount("user_1", "1000000001", 10_000_00, hashedPIN(t))

	goal, err := f.service.CreateGoal(context.Background(), "user_1", domain.CreateGoalRequest{Name: "Trip", TargetAmount: 50_000_00})
	if err != nil {
		t.Fatalf("CreateGoal returned error: %v", err)
	}
	if _, err := f.service.DepositToGoal(context.Background(), "user_1", goal.ID, 6_000_00); err != nil {
		t.Fatalf("DepositToGoal returned error: %v", err)
	}

	updated, err := f.service.WithdrawFromGoal(context.Background(), "user_1", goal.ID, 2_000_00)
	if err != nil {
		t.Fatalf("WithdrawFromGoal returned error: %v", err)
	}
	if updated.Balance != 4_000_00 {
		t.Errorf("goal balance = %d, want %d", updated.Balance, 4_000_00)
	}
	if got := f.repo.balanceOf(account.ID); got != 6_000_00 {
		t.Errorf("account balance = %d, want %d", got, 6_000_00)
	}

	if _, err := f.service.WithdrawFromGoal(context.Background(), "user_1", goal.ID, 9_000_00); !errors.Is(err, store.ErrInsufficientFunds) {
		t.Errorf("over-withdrawal: got %v, want ErrInsufficientFunds", err)
	}
}

func TestCloseGoalSweepsBalanceBack(t *testing.T) {
	f := newTestFixture(t)
	account := f.repo.addAccount("user_1", "1000000001", 10_000_00, hashedPIN(t))

	goal, err := f.service.CreateGoal(context.Background(), "user_1", domain.CreateGoalRequest{Name: "Car", TargetAmount: 100_000_00})
	if err != nil {
		t.Fatalf("CreateGoal returned error: %v", err)
	}
	if _, err := f.service.DepositToGoal(context.Background(), "user_1", goal.ID, 7_000_00); err != nil {
		t.Fatalf("DepositToGoal returned error: %v", err)
	}

	closed, err := f.service.CloseGoal(context.Background(), "user_1", goal.ID)
	if err != nil {
		t.Fatalf("CloseGoal returned error: %v", err)
	}
	if closed.Status != domain.GoalStatusClosed || closed.Balance != 0 {
		t.Errorf("closed goal = status %s balance %d", closed.Status, closed.Balance)
	}
	if got := f.repo.balanceOf(account.ID); got != 10_000_00 {
		t.Errorf("account balance = %d, want the full sweep back", got)
	}

	// The row is kept for history.
	kept, err := f.service.GetGoal(context.Background(), "user_1", goal.ID)
	if err != nil {
		t.Fatalf("closed goal should remain readable: %v", err)
	}
	if kept.Status != domain.GoalStatusClosed {
		t.Errorf("kept goal status = %s", kept.Status)
	}
}

func TestDeleteGoalSweepsThenRemoves(t *testing.T) {
	f := newTestFixture(t)
	account := f.repo.addAccount("user_1", "1000000001", 10_000_00, hashedPIN(t))

	goal, err := f.service.CreateGoal(context.Background(), "user_1", domain.CreateGoalRequest{Name: "Gone", TargetAmount: 100_000_00})
	if err != nil {
		t.Fatalf("CreateGoal returned error: %v", err)
	}
	if _, err := f.service.DepositToGoal(context.Background(), "user_1", goal.ID, 3_000_00); err != nil {
		t.Fatalf("DepositToGoal returned error: %v", err)
	}

	if err := f.service.DeleteGoal(context.Background(), "user_1", goal.ID); err != nil {
		t.Fatalf("DeleteGoal returned error: %v", err)
	}
	if got := f.repo.balanceOf(account.ID); got != 10_000_00 {
		t.Errorf("account balance = %d, want the full sweep back", got)
	}
	if _, err := f.service.GetGoal(context.Background(), "user_1", goal.ID); !errors.Is(err, store.ErrGoalNotFound) {
		t.Errorf("deleted goal lookup: got %v, want ErrGoalNotFound", err)
	}
}

func TestSetupAutoChargeValidation(t *testing.T) {
	f := newTestFixture(t)
	f.repo.addAccount("user_1", "1000000001", 10_000_00, hashedPIN(t))

	goal, err := f.service.CreateGoal(context.Background(), "user_1", domain.CreateGoalRequest{Name: "Plan", TargetAmount: 10_000_00})
	if err != nil {
		t.Fatalf("CreateGoal returned error: %v", err)
	}

	if _, err := f.service.SetupAutoCharge(context.Background(), "user_1", goal.ID, domain.AutoChargeRequest{Amount: 0, IntervalMinutes: 60}); !errors.Is(err, ErrInvalidChargeSetup) {
		t.Errorf("zero amount: got %v, want ErrInvalidChargeSetup", err)
	}

	updated, err := f.service.SetupAutoCharge(context.Background(), "user_1", goal.ID, domain.AutoChargeRequest{Amount: 500_00, IntervalMinutes: 1440})
	if err != nil {
		t.Fatalf("SetupAutoCharge returned error: %v", err)
	}
	if !updated.AutoChargeEnabled || updated.NextAutoCharge == nil {
		t.Error("auto charge should be scheduled")
	}

	disabled, err := f.service.DisableAutoCharge(context.Background(), "user_1", goal.ID)
	if err != nil {
		t.Fatalf("DisableAutoCharge returned error: %v", err)
	}
	if disabled.AutoChargeEnabled || disabled.NextAutoCharge != nil || disabled.AutoChargeAmount != 0 {
		t.Errorf("disable left schedule fields set: %+v", disabled)
	}
}
