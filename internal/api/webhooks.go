/**
 * @description
 * Inbound webhook endpoints for the two external rails. Both endpoints
 * authenticate the caller, acknowledge immediately with 200, and hand the
 * event to the settlement processor in the background. The rails deliver at
 * least once and retry on non-2xx, so acknowledging before processing keeps
 * slow database work from triggering redundant redeliveries; idempotency is
 * the processor's job.
 *
 * Authentication:
 * - The inter-bank switch sends a shared secret in the Authorization header.
 * - The card gateway signs the raw request body with HMAC-SHA512 and sends
 *   the hex digest in the x-gateway-signature header.
 */

package api

import (
	"context"
	"crypto/hmac"
	"crypto/sha512"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"io"
	"log"
	"net/http"

	"github.com/bankabank/ledger-service/internal/app"
	"github.com/bankabank/ledger-service/internal/domain"
)

// WebhookHandlers verifies and dispatches settlement webhooks.
type WebhookHandlers struct {
	processor       *app.SettlementProcessor
	interbankSecret string
	gatewaySecret   string
}

// NewWebhookHandlers creates the webhook handler set.
func NewWebhookHandlers(processor *app.SettlementProcessor, interbankSecret, gatewaySecret string) *WebhookHandlers {
	return &WebhookHandlers{
		processor:       processor,
		interbankSecret: interbankSecret,
		gatewaySecret:   gatewaySecret,
	}
}

// InterbankWebhookHandler receives transfer confirmations from the switch.
func (h *WebhookHandlers) InterbankWebhookHandler(w http.ResponseWriter, r *http.Request) {
	if h.interbankSecret == "" {
		log.Printf("level=error component=webhooks msg=\"interbank webhook secret not configured, rejecting\"")
		http.Error(w, "Webhook not configured", http.StatusServiceUnavailable)
		return
	}
	auth := r.Header.Get("Authorization")
	if subtle.ConstantTimeCompare([]byte(auth), []byte(h.interbankSecret)) != 1 {
		log.Printf("level=warn component=webhooks source=interbank outcome=reject reason=bad_authorization")
		http.Error(w, "Unauthorized", http.StatusUnauthorized)
		return
	}

	var event domain.InterbankWebhookEvent
	if err := json.NewDecoder(r.Body).Decode(&event); err != nil {
		log.Printf("level=warn component=webhooks source=interbank outcome=reject reason=invalid_json err=%v", err)
		http.Error(w, "Invalid payload", http.StatusBadRequest)
		return
	}
	if event.Event == "" {
		http.Error(w, "Missing event name", http.StatusBadRequest)
		return
	}

	// Acknowledge first; the processor owns retries-safety via idempotent
	// application.
	w.WriteHeader(http.StatusOK)

	go func() {
		if err := h.processor.ProcessInterbankEvent(context.Background(), event); err != nil {
			log.Printf("level=error component=webhooks source=interbank event=%s msg=\"processing failed\" err=%v", event.Event, err)
		}
	}()
}

// GatewayWebhookHandler receives charge outcomes from the card gateway.
func (h *WebhookHandlers) GatewayWebhookHandler(w http.ResponseWriter, r *http.Request) {
	if h.gatewaySecret == "" {
		log.Printf("level=error component=webhooks msg=\"gateway webhook secret not configured, rejecting\"")
		http.Error(w, "Webhook not configured", http.StatusServiceUnavailable)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, "Failed to read body", http.StatusBadRequest)
		return
	}

	if !h.validGatewaySignature(body, r.Header.Get("x-gateway-signature")) {
		log.Printf("level=warn component=webhooks source=gateway outcome=reject reason=bad_signature")
		http.Error(w, "Invalid signature", http.StatusUnauthorized)
		return
	}

	var event domain.GatewayWebhookEvent
	if err := json.Unmarshal(body, &event); err != nil {
		log.Printf("level=warn component=webhooks source=gateway outcome=reject reason=invalid_json err=%v", err)
		http.Error(w, "Invalid payload", http.StatusBadRequest)
		return
	}
	if event.Event == "" {
		http.Error(w, "Missing event name", http.StatusBadRequest)
		return
	}

	w.WriteHeader(http.StatusOK)

	go func() {
		if err := h.processor.ProcessGatewayEvent(context.Background(), event); err != nil {
			log.Printf("level=error component=webhooks source=gateway event=%s msg=\"processing failed\" err=%v", event.Event, err)
		}
	}()
}

// validGatewaySignature checks the HMAC-SHA512 hex digest of the raw body.
func (h *WebhookHandlers) validGatewaySignature(body []byte, signature string) bool {
	if signature == "" {
		return false
	}
	mac := hmac.New(sha512.New, []byte(h.gatewaySecret))
	mac.Write(body)
	expected := hex.EncodeToString(mac.Sum(nil))
	return hmac.Equal([]byte(expected), []byte(signature))
}
