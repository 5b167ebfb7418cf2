/**
 * @description
 * This file contains the HTTP handlers for the ledger-service's API endpoints.
 * Handlers are responsible for parsing incoming requests, calling the appropriate
 * methods on the application service, and writing the HTTP response. They act as the
 * bridge between the web layer and the business logic layer.
 *
 * @dependencies
 * - encoding/json, log, net/http: Standard Go libraries.
 * - github.com/go-chi/chi/v5: URL parameter extraction.
 * - internal/app, internal/domain, internal/store: For service logic, models, and custom errors.
 */

package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/bankabank/ledger-service/internal/app"
	"github.com/bankabank/ledger-service/internal/domain"
	"github.com/bankabank/ledger-service/internal/store"
)

// Handlers holds the application service that handlers will use.
type Handlers struct {
	service           *app.Service
	limiter           *app.RedisRateLimiter
	transferRateLimit int
}

// NewHandlers creates the handler set. The limiter may be nil, in which case
// transfer endpoints are not rate limited.
func NewHandlers(service *app.Service, limiter *app.RedisRateLimiter, transferRateLimit int) *Handlers {
	return &Handlers{
		service:           service,
		limiter:           limiter,
		transferRateLimit: transferRateLimit,
	}
}

// authenticatedUser pulls the user id set by the auth middleware.
func (h *Handlers) authenticatedUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	userID, ok := GetUserID(r.Context())
	if !ok {
		http.Error(w, "Could not get user ID from context", http.StatusInternalServerError)
		return "", false
	}
	return userID, true
}

// enforceTransferRateLimit returns false after writing a 429 when the caller
// has exceeded the per-minute transfer budget.
func (h *Handlers) enforceTransferRateLimit(w http.ResponseWriter, r *http.Request, userID string) bool {
	_, retryAfter, err := h.limiter.ConsumeRateLimit(r.Context(), "transfer", userID, h.transferRateLimit, time.Minute)
	if err != nil {
		// Redis trouble must not block money movement.
		log.Printf("level=warn component=api msg=\"rate limiter unavailable, allowing request\" err=%v", err)
		return true
	}
	if retryAfter > 0 {
		w.Header().Set("Retry-After", strconv.Itoa(retryAfter))
		h.writeError(w, http.StatusTooManyRequests, "Too many transfer attempts, slow down")
		return false
	}
	return true
}

// CreateAccountHandler opens the caller's wallet account.
func (h *Handlers) CreateAccountHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authenticatedUser(w, r)
	if !ok {
		return
	}

	var req struct {
		AccountName string `json:"account_name"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
		return
	}
	if req.AccountName == "" {
		h.writeError(w, http.StatusBadRequest, "account_name is required")
		return
	}

	account, err := h.service.OpenAccount(r.Context(), userID, req.AccountName)
	if err != nil {
		log.Printf("level=warn component=api endpoint=create_account outcome=failed user_id=%s err=%v", userID, err)
		h.handleServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, account)
}

// GetAccountHandler returns the caller's account with its current balance.
func (h *Handlers) GetAccountHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authenticatedUser(w, r)
	if !ok {
		return
	}
	account, err := h.service.GetAccount(r.Context(), userID)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, account)
}

// ResolveAccountHandler resolves an account number to its holder's name.
func (h *Handlers) ResolveAccountHandler(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.authenticatedUser(w, r); !ok {
		return
	}
	accountNumber := chi.URLParam(r, "accountNumber")
	lookup, err := h.service.ResolveAccountName(r.Context(), accountNumber)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, lookup)
}

// SetupPINHandler sets the transaction PIN for the first time.
func (h *Handlers) SetupPINHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authenticatedUser(w, r)
	if !ok {
		return
	}
	var req struct {
		PIN string `json:"pin"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
		return
	}
	if err := h.service.SetupPIN(r.Context(), userID, req.PIN); err != nil {
		log.Printf("level=warn component=api endpoint=setup_pin outcome=failed user_id=%s err=%v", userID, err)
		h.handleServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"message": "PIN set, account activated"})
}

// ChangePINHandler replaces the PIN after checking the current one.
func (h *Handlers) ChangePINHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authenticatedUser(w, r)
	if !ok {
		return
	}
	var req struct {
		CurrentPIN string `json:"current_pin"`
		NewPIN     string `json:"new_pin"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
		return
	}
	if err := h.service.ChangePIN(r.Context(), userID, req.CurrentPIN, req.NewPIN); err != nil {
		log.Printf("level=warn component=api endpoint=change_pin outcome=failed user_id=%s err=%v", userID, err)
		h.handleServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]string{"message": "PIN changed"})
}

// InternalTransferHandler moves funds to another account of this bank.
func (h *Handlers) InternalTransferHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authenticatedUser(w, r)
	if !ok {
		return
	}
	if !h.enforceTransferRateLimit(w, r, userID) {
		return
	}

	var req domain.InternalTransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
		return
	}
	if !domain.ValidAccountNumber(req.ReceiverAccountNumber) {
		h.writeError(w, http.StatusBadRequest, "receiver account number must be 10 digits")
		return
	}

	result, err := h.service.InternalTransfer(r.Context(), userID, req)
	if err != nil {
		log.Printf("level=warn component=api endpoint=internal_transfer outcome=failed user_id=%s err=%v", userID, err)
		h.handleServiceError(w, err)
		return
	}
	log.Printf("level=info component=api endpoint=internal_transfer outcome=success user_id=%s amount=%d", userID, req.Amount)
	h.writeJSON(w, http.StatusCreated, result)
}

// ExternalTransferHandler submits a transfer to another bank.
func (h *Handlers) ExternalTransferHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authenticatedUser(w, r)
	if !ok {
		return
	}
	if !h.enforceTransferRateLimit(w, r, userID) {
		return
	}

	var req domain.ExternalTransferRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
		return
	}
	if req.BankCode == "" || req.AccountNumber == "" {
		h.writeError(w, http.StatusBadRequest, "bank_code and account_number are required")
		return
	}

	result, err := h.service.ExternalTransfer(r.Context(), userID, req)
	if err != nil {
		log.Printf("level=warn component=api endpoint=external_transfer outcome=failed user_id=%s err=%v", userID, err)
		h.handleServiceError(w, err)
		return
	}
	log.Printf("level=info component=api endpoint=external_transfer outcome=initiated user_id=%s reference=%s", userID, result.Reference)
	h.writeJSON(w, http.StatusAccepted, result)
}

// FreeTransfersHandler reports the caller's remaining fee-free debits today.
func (h *Handlers) FreeTransfersHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authenticatedUser(w, r)
	if !ok {
		return
	}
	left, err := h.service.FreeTransfersLeft(r.Context(), userID)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, map[string]int{"free_transfers_left": left})
}

// ListBanksHandler proxies the inter-bank switch's bank directory.
func (h *Handlers) ListBanksHandler(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.authenticatedUser(w, r); !ok {
		return
	}
	banks, err := h.service.ListBanks(r.Context())
	if err != nil {
		h.handleServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, banks)
}

// ValidateExternalAccountHandler resolves an account at another bank.
func (h *Handlers) ValidateExternalAccountHandler(w http.ResponseWriter, r *http.Request) {
	if _, ok := h.authenticatedUser(w, r); !ok {
		return
	}
	bankCode := chi.URLParam(r, "bankCode")
	accountNumber := chi.URLParam(r, "accountNumber")
	details, err := h.service.ValidateExternalAccount(r.Context(), bankCode, accountNumber)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, details)
}

// CreateDepositHandler opens a pending deposit and returns the payment link.
func (h *Handlers) CreateDepositHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authenticatedUser(w, r)
	if !ok {
		return
	}
	var req domain.DepositLinkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, fmt.Sprintf("Invalid request body: %v", err), http.StatusBadRequest)
		return
	}

	link, err := h.service.CreateDepositLink(r.Context(), userID, req)
	if err != nil {
		log.Printf("level=warn component=api endpoint=create_deposit outcome=failed user_id=%s err=%v", userID, err)
		h.handleServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusCreated, link)
}

// ListTransactionsHandler returns one page of the caller's ledger history.
func (h *Handlers) ListTransactionsHandler(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.authenticatedUser(w, r)
	if !ok {
		return
	}

	opts := domain.TransactionListOptions{
		Mode: r.URL.Query().Get("mode"),
	}
	if page, err := strconv.Atoi(r.URL.Query().Get("page")); err == nil {
		opts.Page = page
	}
	if limit, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil {
		opts.Limit = limit
	}
	if from := r.URL.Query().Get("from"); from != "" {
		t, err := time.Parse(time.RFC3339, from)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "from must be RFC3339")
			return
		}
		opts.From = &t
	}
	if to := r.URL.Query().Get("to"); to != "" {
		t, err := time.Parse(time.RFC3339, to)
		if err != nil {
			h.writeError(w, http.StatusBadRequest, "to must be RFC3339")
			return
		}
		opts.To = &t
	}

	page, err := h.service.ListTransactions(r.Context(), userID, opts)
	if err != nil {
		h.handleServiceError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, page)
}

// handleServiceError translates domain and store errors into HTTP statuses.
func (h *Handlers) handleServiceError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, store.ErrInsufficientFunds):
		h.writeError(w, http.StatusPaymentRequired, "Insufficient funds")
	case errors.Is(err, app.ErrInvalidPIN):
		h.writeError(w, http.StatusForbidden, "Incorrect transaction PIN")
	case errors.Is(err, app.ErrAccountInactive):
		h.writeError(w, http.StatusForbidden, "Account is not activated, set a PIN first")
	case errors.Is(err, app.ErrPINNotSet),
		errors.Is(err, app.ErrPINAlreadySet),
		errors.Is(err, app.ErrMalformedPIN),
		errors.Is(err, app.ErrSelfTransfer),
		errors.Is(err, app.ErrAmountTooSmall),
		errors.Is(err, app.ErrNoAccountNumber),
		errors.Is(err, app.ErrInvalidGoalAmount),
		errors.Is(err, app.ErrInvalidChargeSetup),
		errors.Is(err, app.ErrGoalNotActive):
		h.writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrAccountNotFound),
		errors.Is(err, store.ErrTransactionNotFound),
		errors.Is(err, store.ErrGoalNotFound),
		errors.Is(err, app.ErrGoalNotOwned):
		h.writeError(w, http.StatusNotFound, "Not found")
	case errors.Is(err, store.ErrAccountExists),
		errors.Is(err, store.ErrAccountNumberAssigned):
		h.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, app.ErrExternalRail):
		h.writeError(w, http.StatusBadGateway, "Payment network unavailable, try again")
	default:
		h.writeError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// writeJSON is a helper for writing JSON responses.
func (h *Handlers) writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if data != nil {
		json.NewEncoder(w).Encode(data)
	}
}

// writeError is a helper for writing JSON error responses.
func (h *Handlers) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}
