/**
 * @description
 * This package provides a client for the card payment gateway used to fund
 * wallets. Charges are initialized here with the ledger's deposit reference;
 * the gateway reports the outcome through its signed webhook.
 *
 * @dependencies
 * - bytes, context, encoding/json, fmt, net/http, time: Standard Go libraries.
 * - internal/domain: The charge metadata shape shared with the webhook.
 */
package gatewayclient

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"time"

	"github.com/bankabank/ledger-service/internal/domain"
)

// Client is a client for the payment gateway API.
type Client struct {
	BaseURL    string
	SecretKey  string
	HTTPClient *http.Client
}

// NewClient creates a new gateway client.
func NewClient(baseURL, secretKey string) *Client {
	return &Client{
		BaseURL:   baseURL,
		SecretKey: secretKey,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// ChargeRequest initializes a hosted payment page for a deposit.
type ChargeRequest struct {
	Reference string                       `json:"reference"`
	Amount    int64                        `json:"amount"` // in kobo
	Email     string                       `json:"email"`
	Metadata  domain.GatewayChargeMetadata `json:"metadata"`
}

// ChargeResponse carries the hosted page the caller is redirected to.
type ChargeResponse struct {
	AuthorizationURL string `json:"authorization_url"`
	AccessCode       string `json:"access_code"`
	Reference        string `json:"reference"`
}

// VerifyResponse is the gateway's view of a charge when polled directly.
type VerifyResponse struct {
	Reference string `json:"reference"`
	Status    string `json:"status"`
	Amount    int64  `json:"amount"`
	PaidAt    string `json:"paid_at,omitempty"`
}

// ErrorResponse is the gateway's error body.
type ErrorResponse struct {
	Message string `json:"message"`
}

func (e *ErrorResponse) Error() string {
	return "payment gateway error: " + e.Message
}

// InitializeCharge opens a charge for the given deposit reference.
func (c *Client) InitializeCharge(ctx context.Context, req ChargeRequest) (*ChargeResponse, error) {
	var out struct {
		Data ChargeResponse `json:"data"`
	}
	if err := c.do(ctx, http.MethodPost, "/transaction/initialize", req, &out); err != nil {
		return nil, err
	}
	return &out.Data, nil
}

// VerifyCharge polls the gateway for a charge's outcome. The webhook is the
// normal settlement path; this exists for reconciliation.
func (c *Client) VerifyCharge(ctx context.Context, reference string) (*VerifyResponse, error) {
	var out struct {
		Data VerifyResponse `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, "/transaction/verify/"+url.PathEscape(reference), nil, &out); err != nil {
		return nil, err
	}
	return &out.Data, nil
}

func (c *Client) do(ctx context.Context, method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			return fmt.Errorf("failed to marshal request: %w", err)
		}
		body = bytes.NewBuffer(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.BaseURL+path, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.SecretKey)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to execute request: %w", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errResp ErrorResponse
		if err := json.Unmarshal(bodyBytes, &errResp); err != nil {
			log.Printf("level=warn component=gateway_client op=%s status=%d msg=\"non-2xx response (unparsable error body)\"", path, resp.StatusCode)
			return fmt.Errorf("payment gateway returned status %d", resp.StatusCode)
		}
		log.Printf("level=warn component=gateway_client op=%s status=%d message=%q", path, resp.StatusCode, errResp.Message)
		return &errResp
	}

	if out != nil {
		if err := json.Unmarshal(bodyBytes, out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}
