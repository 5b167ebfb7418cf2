/**
 * @description
 * This file defines the savings goal model. A goal holds money set aside from
 * the owner's main account; its balance moves only through deposit, withdraw
 * and auto-charge operations, each of which also writes paired ledger entries
 * against the main account.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// Savings goal statuses.
const (
	GoalStatusActive    = "active"
	GoalStatusCompleted = "completed"
	GoalStatusClosed    = "closed"
)

// SavingsGoal is one savings target for a user. A user may hold many goals.
type SavingsGoal struct {
	ID                 uuid.UUID  `json:"id"`
	UserID             string     `json:"user_id"`
	Name               string     `json:"name"`
	TargetAmount       int64      `json:"target_amount"` // in kobo
	Balance            int64      `json:"balance"`       // in kobo
	Status             string     `json:"status"`
	AutoChargeEnabled  bool       `json:"auto_charge_enabled"`
	AutoChargeAmount   int64      `json:"auto_charge_amount"`   // in kobo
	AutoChargeInterval int        `json:"auto_charge_interval"` // minutes
	LastAutoCharge     *time.Time `json:"last_auto_charge,omitempty"`
	NextAutoCharge     *time.Time `json:"next_auto_charge,omitempty"`
	CreatedAt          time.Time  `json:"created_at"`
	UpdatedAt          time.Time  `json:"updated_at"`
}

// IsCompleted reports whether the goal has reached its target.
func (g *SavingsGoal) IsCompleted() bool {
	return g.Balance >= g.TargetAmount
}

// ShouldAutoCharge reports whether the scheduler should charge this goal now.
func (g *SavingsGoal) ShouldAutoCharge(now time.Time) bool {
	if !g.AutoChargeEnabled || g.Status == GoalStatusClosed || g.IsCompleted() {
		return false
	}
	return g.NextAutoCharge != nil && !now.Before(*g.NextAutoCharge)
}

// SetupAutoCharge enables the recurring contribution.
func (g *SavingsGoal) SetupAutoCharge(amount int64, intervalMinutes int, now time.Time) {
	next := now.Add(time.Duration(intervalMinutes) * time.Minute)
	g.AutoChargeEnabled = true
	g.AutoChargeAmount = amount
	g.AutoChargeInterval = intervalMinutes
	g.LastAutoCharge = &now
	g.NextAutoCharge = &next
	g.UpdatedAt = now
}

// DisableAutoCharge clears the recurring contribution schedule entirely.
func (g *SavingsGoal) DisableAutoCharge(now time.Time) {
	g.AutoChargeEnabled = false
	g.AutoChargeAmount = 0
	g.AutoChargeInterval = 0
	g.LastAutoCharge = nil
	g.NextAutoCharge = nil
	g.UpdatedAt = now
}

// AdvanceAutoCharge moves the schedule one interval forward after a charge.
func (g *SavingsGoal) AdvanceAutoCharge(now time.Time) {
	next := now.Add(time.Duration(g.AutoChargeInterval) * time.Minute)
	g.LastAutoCharge = &now
	g.NextAutoCharge = &next
	g.UpdatedAt = now
}

// CreateGoalRequest is the DTO for creating a savings goal.
type CreateGoalRequest struct {
	Name         string `json:"name"`
	TargetAmount int64  `json:"target_amount"` // in kobo
}

// GoalAmountRequest is the DTO for goal deposits and withdrawals.
type GoalAmountRequest struct {
	Amount int64 `json:"amount"` // in kobo
}

// AutoChargeRequest is the DTO for enabling auto-charge on a goal.
type AutoChargeRequest struct {
	Amount          int64 `json:"amount"` // in kobo
	IntervalMinutes int   `json:"interval_minutes"`
}
