/**
 * @description
 * This file models the inbound settlement webhook payloads as tagged variants.
 * Each event kind decodes into its own struct with required fields checked up
 * front, so the processor never works with half-populated payloads.
 *
 * @notes
 * - The inter-bank switch authenticates with a shared-secret header; the card
 *   gateway signs the raw body with HMAC-SHA512. Both checks happen in the API
 *   layer before any of these types are even decoded.
 */

package domain

import (
	"encoding/json"
	"errors"
	"fmt"
)

// Inter-bank switch event names.
const (
	EventTransferDebitSuccess  = "transfer.debit.success"
	EventTransferCreditSuccess = "transfer.credit.success"
)

// Card gateway event names.
const (
	EventChargeSuccess = "charge.success"
	EventChargeFailed  = "charge.failed"
)

// ErrMalformedEvent marks a payload that is authentic but structurally unusable.
var ErrMalformedEvent = errors.New("malformed webhook event")

// InterbankWebhookEvent is the envelope of every switch notification. Data is
// kept raw until the event name selects the concrete variant.
type InterbankWebhookEvent struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// TransferMetadata is the free-form metadata the switch echoes back from the
// original transfer submission.
type TransferMetadata struct {
	SenderAccount      string `json:"senderAccount"`
	SenderName         string `json:"senderName,omitempty"`
	SenderUserID       string `json:"senderUserId,omitempty"`
	Purpose            string `json:"purpose,omitempty"`
	Description        string `json:"description,omitempty"`
	TransferType       string `json:"transferType,omitempty"`
	ShouldApplyTax     bool   `json:"shouldApplyTax,omitempty"`
	IsSameBankTransfer bool   `json:"isSameBankTransfer,omitempty"`
	VATAmount          int64  `json:"vatAmount,omitempty"`   // in kobo
	InterbankAmount    int64  `json:"nibssAmount,omitempty"` // in kobo
	IsTaxed            bool   `json:"isTaxed,omitempty"`
}

// DebitConfirmation reports that an outbound external transfer settled and the
// originating account must now be debited. SenderAccount and Amount are
// required; Reference may be absent for switches that do not carry one.
type DebitConfirmation struct {
	Amount      int64            `json:"amount"` // in kobo
	AccountName string           `json:"accountName"`
	BankCode    string           `json:"bankCode"`
	BankName    string           `json:"bankName"`
	Reference   string           `json:"reference,omitempty"`
	Metadata    TransferMetadata `json:"metadata"`
}

// Validate enforces the required-field contract of a debit confirmation.
func (d *DebitConfirmation) Validate() error {
	if d.Amount <= 0 {
		return fmt.Errorf("%w: debit confirmation requires a positive amount", ErrMalformedEvent)
	}
	if d.Metadata.SenderAccount == "" {
		return fmt.Errorf("%w: debit confirmation requires metadata.senderAccount", ErrMalformedEvent)
	}
	return nil
}

// CreditConfirmation reports inbound funds from another institution that must
// be credited to a local account.
type CreditConfirmation struct {
	Amount        int64            `json:"amount"` // in kobo
	AccountNumber string           `json:"accountNumber"`
	AccountName   string           `json:"accountName"`
	SenderName    string           `json:"senderName,omitempty"`
	BankCode      string           `json:"bankCode,omitempty"`
	BankName      string           `json:"bankName,omitempty"`
	Narration     string           `json:"narration,omitempty"`
	Reference     string           `json:"reference,omitempty"`
	Metadata      TransferMetadata `json:"metadata"`
}

// Validate enforces the required-field contract of a credit confirmation.
func (c *CreditConfirmation) Validate() error {
	if c.Amount <= 0 {
		return fmt.Errorf("%w: credit confirmation requires a positive amount", ErrMalformedEvent)
	}
	if c.AccountNumber == "" {
		return fmt.Errorf("%w: credit confirmation requires accountNumber", ErrMalformedEvent)
	}
	return nil
}

// GatewayWebhookEvent is the envelope of card gateway charge notifications.
type GatewayWebhookEvent struct {
	Event string          `json:"event"`
	Data  json.RawMessage `json:"data"`
}

// GatewayChargeMetadata is the metadata attached when the deposit link was
// created. Only `type == "deposit"` charges belong to this service.
type GatewayChargeMetadata struct {
	Type      string `json:"type"`
	UserID    string `json:"userId"`
	AccountID string `json:"accountId"`
}

// GatewayCharge is the data of charge.success / charge.failed events.
type GatewayCharge struct {
	Reference string                `json:"reference"`
	Amount    int64                 `json:"amount"` // in kobo (gateway minor units)
	Metadata  GatewayChargeMetadata `json:"metadata"`
	PaidAt    string                `json:"paid_at,omitempty"` // RFC3339 from the gateway
}

// Validate enforces the required-field contract of a gateway charge event.
func (g *GatewayCharge) Validate() error {
	if g.Reference == "" {
		return fmt.Errorf("%w: gateway charge requires a reference", ErrMalformedEvent)
	}
	if g.Amount <= 0 {
		return fmt.Errorf("%w: gateway charge requires a positive amount", ErrMalformedEvent)
	}
	return nil
}

// IsDeposit reports whether this charge was initiated as a wallet deposit.
func (g *GatewayCharge) IsDeposit() bool {
	return g.Metadata.Type == "deposit"
}
