/**
 * @description
 * This file sets up the HTTP router for the ledger-service. It defines the API
 * endpoints, associates them with their corresponding handlers, and applies any
 * necessary middleware, such as for authentication.
 *
 * @dependencies
 * - net/http: Standard Go library for HTTP functionality.
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for Go.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// Routes creates and returns the router for the ledger service.
func Routes(h *Handlers, wh *WebhookHandlers, jwtSecret string) http.Handler {
	r := chi.NewRouter()

	// Add standard middleware for logging, panic recovery, and timeouts.
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	// Health check endpoint
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	// Webhooks authenticate with their own secrets, not with user tokens.
	r.Post("/webhooks/interbank", wh.InterbankWebhookHandler)
	r.Post("/webhooks/gateway", wh.GatewayWebhookHandler)

	// Group routes that require authentication.
	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(jwtSecret))

		r.Post("/accounts", h.CreateAccountHandler)
		r.Get("/accounts/me", h.GetAccountHandler)
		r.Get("/accounts/resolve/{accountNumber}", h.ResolveAccountHandler)
		r.Post("/accounts/pin", h.SetupPINHandler)
		r.Put("/accounts/pin", h.ChangePINHandler)

		r.Post("/transfers/internal", h.InternalTransferHandler)
		r.Post("/transfers/external", h.ExternalTransferHandler)
		r.Get("/transfers/allowance", h.FreeTransfersHandler)

		r.Get("/banks", h.ListBanksHandler)
		r.Get("/banks/{bankCode}/accounts/{accountNumber}", h.ValidateExternalAccountHandler)

		r.Post("/deposits", h.CreateDepositHandler)
		r.Get("/transactions", h.ListTransactionsHandler)

		r.Post("/savings", h.CreateGoalHandler)
		r.Get("/savings", h.ListGoalsHandler)
		r.Get("/savings/{goalID}", h.GetGoalHandler)
		r.Post("/savings/{goalID}/deposit", h.DepositGoalHandler)
		r.Post("/savings/{goalID}/withdraw", h.WithdrawGoalHandler)
		r.Post("/savings/{goalID}/auto-charge", h.SetupAutoChargeHandler)
		r.Delete("/savings/{goalID}/auto-charge", h.DisableAutoChargeHandler)
		r.Post("/savings/{goalID}/close", h.CloseGoalHandler)
		r.Delete("/savings/{goalID}", h.DeleteGoalHandler)
	})

	return r
}
