/**
 * @description
 * This package provides a client for the inter-bank transfer switch. It
 * encapsulates the logic for making authenticated HTTP requests to the
 * switch's endpoints, handling request body construction, and parsing
 * responses.
 *
 * Transfer submissions carry the caller's reference and fee breakdown in the
 * request metadata; the switch echoes the metadata back verbatim in its
 * settlement webhooks.
 *
 * @dependencies
 * - bytes, context, encoding/json, fmt, net/http, time: Standard Go libraries.
 * - internal/domain: The metadata shape shared with the settlement webhooks.
 */
package interbankclient

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

// Client is a client for the inter-bank switch API.
type Client struct {
	BaseURL    string
	APIKey     string
	HTTPClient *http.Client
}

// NewClient creates a new inter-bank switch client.
func NewClient(baseURL, apiKey string) *Client {
	return &Client{
		BaseURL: baseURL,
		APIKey:  apiKey,
		HTTPClient: &http.Client{
			Timeout: 30 * time.Second,
		},
	}
}

// Bank is one entry in the switch's bank directory.
type Bank struct {
	Code string `json:"code"`
	Name string `json:"name"`
}

// AccountDetails is the switch's resolution of an account at another bank.
type AccountDetails struct {
	AccountNumber string `json:"account_number"`
	AccountName   string `json:"account_name"`
	BankCode      string `json:"bank_code"`
}

// TransferRequest is the payload for submitting an outbound transfer.
type TransferRequest struct {
	Reference     string                  `json:"reference"`
	Amount        int64                   `json:"amount"` // in kobo
	BankCode      string                  `json:"bank_code"`
	BankName      string                  `json:"bank_name"`
	AccountNumber string                  `json:"account_number"`
	AccountName   string                  `json:"account_name"`
	Narration     string                  `json:"narration,omitempty"`
	Metadata      domain.TransferMetadata `json:"metadata"`
}

// TransferResponse is the switch's acknowledgement of a submission. The
// transfer itself settles later via webhook.
type TransferResponse struct {
	Reference string `json:"reference"`
	Status    string `json:"status"`
}

// ErrorResponse is the switch's error body.
type ErrorResponse struct {
	Message string `json:"message"`
	Code    string `json:"code,omitempty"`
}

func (e *ErrorResponse) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("interbank switch error %s: %s", e.Code, e.Message)
	}
	return "interbank switch error: " + e.Message
}

// ListBanks fetches the switch's bank directory.
func (c *Client) ListBanks(ctx context.Context) ([]Bank, error) {
	var out struct {
		Data []Bank `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/banks", nil, &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

// ValidateAccount resolves the holder of an account at another bank.
func (c *Client) ValidateAccount(ctx context.Context, bankCode, accountNumber string) (*AccountDetails, error) {
	path := fmt.Sprintf("/v1/banks/%s/accounts/%s", url.PathEscape(bankCode), url.PathEscape(accountNumber))
	var out struct {
		Data AccountDetails `json:"data"`
	}
	if err := c.do(ctx, http.MethodGet, path, nil, &out); err != nil {
		return nil, err
	}
	return &out.Data, nil
}

// SubmitTransfer sends an outbound transfer to the switch.
func (c *Client) SubmitTransfer(ctx context.Context, req TransferRequest) (*TransferResponse, error) {
	var out struct {
		Data TransferResponse `json:"data"`
	}
	if err := c.do(ctx, http.MethodPost, "/v1/transfers", req, &out); err != nil {
		return nil, err
	}
	return &out.Data, nil
}

// do executes one authenticated request against the switch.
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
	req.Header.Set("Authorization", "Bearer "+c.APIKey)
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
			log.Printf("level=warn component=interbank_client op=%s status=%d msg=\"non-2xx response (unparsable error body)\"", path, resp.StatusCode)
			return fmt.Errorf("interbank switch returned status %d", resp.StatusCode)
		}
		log.Printf("level=warn component=interbank_client op=%s status=%d message=%q", path, resp.StatusCode, errResp.Message)
		return &errResp
	}

	if out != nil {
		if err := json.Unmarshal(bodyBytes, out); err != nil {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}
