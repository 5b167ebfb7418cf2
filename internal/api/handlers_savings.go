/**
 * @description
 * HTTP handlers for savings goals: lifecycle, deposits and withdrawals, and
 * the auto-charge schedule.
 */

package api

import (
	"encoding/json"
	"fmt"
	"log"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/bankabank/ledger-service/internal/domain"
)

// goalID extracts and parses the goal id URL parameter.
func (h *Handlers) goalID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "goalID"))
	if err != nil {
		h.writeError(w, http.StatusBadRequest, "invalid goal id")
		return uuid.Nil, false
	}
	return id, true
}

// CreateGoalHandler opens a new savings goal.
func (h *Handlers) CreateGoalHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authenticatedUser(w, r)
	if !ok {
		return
	}
	var req domain.CreateGoalRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
		return
	}
	if req.Name == "" {
		h.writeError(w, http.StatusBadRequest, "name is required")
		return
	}

	goal, err := h.service.CreateGoal(r.Context(), userID, req)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, goal)
}

// ListGoalsHandler returns all of the caller's savings goals.
func (h *Handlers) ListGoalsHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authenticatedUser(w, r)
	if !ok {
		return
	}
	goals, err := h.service.ListGoals(r.Context(), userID)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}
	if goals == nil {
		goals = []domain.SavingsGoal{}
	}
	h.writeJSON(w, http.StatusOK, goals)
}

// GetGoalHandler returns one savings goal.
func (h *Handlers) GetGoalHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authenticatedUser(w, r)
	if !ok {
		return
	}
	id, ok := h.goalID(w, r)
	if !ok {
		return
	}
	goal, err := h.service.GetGoal(r.Context(), userID, id)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, goal)
}

// DepositGoalHandler moves funds from the main account into a goal.
func (h *Handlers) DepositGoalHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authenticatedUser(w, r)
	if !ok {
		return
	}
	id, ok := h.goalID(w, r)
	if !ok {
		return
	}
	var req domain.GoalAmountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	goal, err := h.service.DepositToGoal(r.Context(), userID, id, req.Amount)
	if err != nil {
		log.Printf("level=warn component=api endpoint=goal_deposit outcome=failed user_id=%s goal_id=%s err=%v", userID, id, err)
		h.handleServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, goal)
}

// WithdrawGoalHandler moves funds from a goal back to the main account.
func (h *Handlers) WithdrawGoalHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authenticatedUser(w, r)
	if !ok {
		return
	}
	id, ok := h.goalID(w, r)
	if !ok {
		return
	}
	var req domain.GoalAmountRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	goal, err := h.service.WithdrawFromGoal(r.Context(), userID, id, req.Amount)
	if err != nil {
		log.Printf("level=warn component=api endpoint=goal_withdraw outcome=failed user_id=%s goal_id=%s err=%v", userID, id, err)
		h.handleServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, goal)
}

// SetupAutoChargeHandler enables the recurring contribution on a goal.
func (h *Handlers) SetupAutoChargeHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authenticatedUser(w, r)
	if !ok {
		return
	}
	id, ok := h.goalID(w, r)
	if !ok {
		return
	}
	var req domain.AutoChargeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	goal, err := h.service.SetupAutoCharge(r.Context(), userID, id, req)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, goal)
}

// DisableAutoChargeHandler turns the recurring contribution off.
func (h *Handlers) DisableAutoChargeHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authenticatedUser(w, r)
	if !ok {
		return
	}
	id, ok := h.goalID(w, r)
	if !ok {
		return
	}
	goal, err := h.service.DisableAutoCharge(r.Context(), userID, id)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, goal)
}

// CloseGoalHandler sweeps the goal's balance back and marks it closed.
func (h *Handlers) CloseGoalHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authenticatedUser(w, r)
	if !ok {
		return
	}
	id, ok := h.goalID(w, r)
	if !ok {
		return
	}
	goal, err := h.service.CloseGoal(r.Context(), userID, id)
	if err != nil {
		log.Printf("level=warn component=api endpoint=goal_close outcome=failed user_id=%s goal_id=%s err=%v", userID, id, err)
		h.handleServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, goal)
}

// DeleteGoalHandler sweeps the goal's balance back and removes the goal.
func (h *Handlers) DeleteGoalHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authenticatedUser(w, r)
	if !ok {
		return
	}
	id, ok := h.goalID(w, r)
	if !ok {
		return
	}
	if err := h.service.DeleteGoal(r.Context(), userID, id); err != nil {
		log.Printf("level=warn component=api endpoint=goal_delete outcome=failed user_id=%s goal_id=%s err=%v", userID, id, err)
		h.handleServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"message": "Savings goal deleted"})
}
