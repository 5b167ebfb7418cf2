/**
 * @description
 * PostgreSQL queries for savings goals. Goal movements mirror the account
 * movement primitive: a conditional UPDATE on the goal balance keeps the goal
 * from going negative, and the paired account movement plus both ledger
 * entries ride in the same database transaction.
 */

package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/bankabank/ledger-service/internal/domain"
)

const goalColumns = `id, user_id, name, target_amount, balance, status, auto_charge_enabled, auto_charge_amount, auto_charge_interval, last_auto_charge, next_auto_charge, created_at, updated_at`

func scanGoal(row pgx.Row) (*domain.SavingsGoal, error) {
	var g domain.SavingsGoal
	err := row.Scan(
		&g.ID, &g.UserID, &g.Name, &g.TargetAmount, &g.Balance, &g.Status,
		&g.AutoChargeEnabled, &g.AutoChargeAmount, &g.AutoChargeInterval,
		&g.LastAutoCharge, &g.NextAutoCharge, &g.CreatedAt, &g.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrGoalNotFound
		}
		return nil, err
	}
	return &g, nil
}

func (r *PostgresRepository) CreateSavingsGoal(ctx context.Context, goal *domain.SavingsGoal) error {
	query := `
		INSERT INTO savings_goals (` + goalColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)
	`
	_, err := r.db.Exec(ctx, query,
		goal.ID, goal.UserID, goal.Name, goal.TargetAmount, goal.Balance, goal.Status,
		goal.AutoChargeEnabled, goal.AutoChargeAmount, goal.AutoChargeInterval,
		goal.LastAutoCharge, goal.NextAutoCharge, goal.CreatedAt, goal.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to insert savings goal: %w", err)
	}
	return nil
}

func (r *PostgresRepository) FindSavingsGoalByID(ctx context.Context, id uuid.UUID) (*domain.SavingsGoal, error) {
	query := `SELECT ` + goalColumns + ` FROM savings_goals WHERE id = $1`
	return scanGoal(r.db.QueryRow(ctx, query, id))
}

func (r *PostgresRepository) ListSavingsGoalsByUser(ctx context.Context, userID string) ([]domain.SavingsGoal, error) {
	query := `SELECT ` + goalColumns + ` FROM savings_goals WHERE user_id = $1 ORDER BY created_at DESC`
	rows, err := r.db.Query(ctx, query, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to list savings goals: %w", err)
	}
	defer rows.Close()

	var goals []domain.SavingsGoal
	for rows.Next() {
		g, err := scanGoal(rows)
		if err != nil {
			return nil, err
		}
		goals = append(goals, *g)
	}
	return goals, rows.Err()
}

// UpdateSavingsGoal persists goal metadata and schedule fields. Balance
// changes go through the movement methods, never through here.
func (r *PostgresRepository) UpdateSavingsGoal(ctx context.Context, goal *domain.SavingsGoal) error {
	query := `
		UPDATE savings_goals
		SET name = $1, target_amount = $2, status = $3,
		    auto_charge_enabled = $4, auto_charge_amount = $5, auto_charge_interval = $6,
		    last_auto_charge = $7, next_auto_charge = $8, updated_at = now()
		WHERE id = $9
	`
	tag, err := r.db.Exec(ctx, query,
		goal.Name, goal.TargetAmount, goal.Status,
		goal.AutoChargeEnabled, goal.AutoChargeAmount, goal.AutoChargeInterval,
		goal.LastAutoCharge, goal.NextAutoCharge, goal.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update savings goal: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrGoalNotFound
	}
	return nil
}

func (r *PostgresRepository) DeleteSavingsGoal(ctx context.Context, id uuid.UUID) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM savings_goals WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("failed to delete savings goal: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrGoalNotFound
	}
	return nil
}

// ListDueAutoChargeGoals returns active goals whose auto charge is enabled
// and due at or before now. The scheduler sweeps these each tick.
func (r *PostgresRepository) ListDueAutoChargeGoals(ctx context.Context, now time.Time) ([]domain.SavingsGoal, error) {
	query := `
		SELECT ` + goalColumns + `
		FROM savings_goals
		WHERE status = $1 AND auto_charge_enabled = true AND next_auto_charge <= $2
		ORDER BY next_auto_charge ASC
	`
	rows, err := r.db.Query(ctx, query, domain.GoalStatusActive, now)
	if err != nil {
		return nil, fmt.Errorf("failed to list due goals: %w", err)
	}
	defer rows.Close()

	var goals []domain.SavingsGoal
	for rows.Next() {
		g, err := scanGoal(rows)
		if err != nil {
			return nil, err
		}
		goals = append(goals, *g)
	}
	return goals, rows.Err()
}

// moveGoalBalance adjusts a goal balance with the same guarded-UPDATE shape
// used for accounts, returning the new balance.
func moveGoalBalance(ctx context.Context, q querier, goalID uuid.UUID, delta int64) (int64, error) {
	query := `
		UPDATE savings_goals
		SET balance = balance + $1, updated_at = now()
		WHERE id = $2 AND balance + $1 >= 0
		RETURNING balance
	`
	var newBal int64
	err := q.QueryRow(ctx, query, delta, goalID).Scan(&newBal)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			var exists bool
			if checkErr := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM savings_goals WHERE id = $1)`, goalID).Scan(&exists); checkErr != nil {
				return 0, checkErr
			}
			if !exists {
				return 0, ErrGoalNotFound
			}
			return 0, ErrInsufficientFunds
		}
		return 0, fmt.Errorf("failed to move goal balance: %w", err)
	}
	return newBal, nil
}

// ExecuteGoalDeposit moves funds from the main account into a goal: account
// debit, goal credit, both ledger entries, one database transaction.
func (r *PostgresRepository) ExecuteGoalDeposit(ctx context.Context, p GoalMovementParams) (*domain.SavingsGoal, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	prevBal, newBal, err := applyMovementTx(ctx, tx, p.AccountID, -p.Amount)
	if err != nil {
		return nil, err
	}
	if _, err := moveGoalBalance(ctx, tx, p.GoalID, p.Amount); err != nil {
		return nil, err
	}

	p.AccountEntry.PrevBal = prevBal
	p.AccountEntry.NewBal = newBal
	if err := insertTransactionTx(ctx, tx, p.AccountEntry); err != nil {
		return nil, err
	}
	if p.GoalEntry != nil {
		if err := insertTransactionTx(ctx, tx, p.GoalEntry); err != nil {
			return nil, err
		}
	}

	goal, err := scanGoal(tx.QueryRow(ctx, `SELECT `+goalColumns+` FROM savings_goals WHERE id = $1`, p.GoalID))
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit goal deposit: %w", err)
	}
	return goal, nil
}

// ExecuteGoalWithdrawal moves funds from a goal back to the main account.
func (r *PostgresRepository) ExecuteGoalWithdrawal(ctx context.Context, p GoalMovementParams) (*domain.SavingsGoal, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if _, err := moveGoalBalance(ctx, tx, p.GoalID, -p.Amount); err != nil {
		return nil, err
	}
	prevBal, newBal, err := applyMovementTx(ctx, tx, p.AccountID, p.Amount)
	if err != nil {
		return nil, err
	}

	p.AccountEntry.PrevBal = prevBal
	p.AccountEntry.NewBal = newBal
	if err := insertTransactionTx(ctx, tx, p.AccountEntry); err != nil {
		return nil, err
	}
	if p.GoalEntry != nil {
		if err := insertTransactionTx(ctx, tx, p.GoalEntry); err != nil {
			return nil, err
		}
	}

	goal, err := scanGoal(tx.QueryRow(ctx, `SELECT `+goalColumns+` FROM savings_goals WHERE id = $1`, p.GoalID))
	if err != nil {
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("failed to commit goal withdrawal: %w", err)
	}
	return goal, nil
}
