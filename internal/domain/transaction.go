/**
 * @description
 * This file defines the ledger entry model and its request/response DTOs.
 * A Transaction is the immutable record of one balance-affecting movement,
 * carrying the balance before and after the movement was applied.
 *
 * @notes
 * - Amounts are stored as `int64` in the smallest currency unit (kobo), which
 *   avoids floating-point inaccuracies with financial data.
 * - The `Reference` field is the idempotency key for settlement events: the
 *   store enforces its uniqueness and the webhook processor relies on that.
 */

package domain

import (
	"time"

	"github.com/google/uuid"
)

// Transaction modes.
const (
	ModeDebit  = "DEBIT"
	ModeCredit = "CREDIT"
)

// Transaction statuses. A transaction is created either `pending` (an external
// settlement is awaited) or `success` (the movement completed synchronously),
// and transitions pending -> success/failed exactly once.
const (
	StatusPending = "pending"
	StatusSuccess = "success"
	StatusFailed  = "failed"
)

// Transaction represents the central ledger record for any money movement in
// the system. This struct maps directly to the `transactions` table.
type Transaction struct {
	ID           uuid.UUID  `json:"id"`
	UserID       string     `json:"user_id"`
	SenderID     *string    `json:"sender_id,omitempty"`
	SenderName   string     `json:"sender_name,omitempty"`
	ReceiverID   *string    `json:"receiver_id,omitempty"`
	ReceiverName string     `json:"receiver_name,omitempty"`
	Amount       int64      `json:"amount"` // in kobo
	Mode         string     `json:"mode"`   // DEBIT or CREDIT
	Description  string     `json:"description"`
	Status       string     `json:"status"`
	PrevBal      int64      `json:"prev_bal"` // in kobo
	NewBal       int64      `json:"new_bal"`  // in kobo
	PaidAt       *time.Time `json:"paid_at,omitempty"`
	CreatedAt    time.Time  `json:"created_at"`
	Reference    *string    `json:"reference,omitempty"`

	// Tax fields, populated only for taxed debits.
	VATAmount       int64 `json:"vat_amount,omitempty"`       // in kobo
	InterbankAmount int64 `json:"interbank_amount,omitempty"` // in kobo
	IsTaxed         bool  `json:"is_taxed,omitempty"`

	// External-rail fields, populated only for cross-institution movements.
	BankCode         string `json:"bank_code,omitempty"`
	BankName         string `json:"bank_name,omitempty"`
	ExternalTransfer bool   `json:"external_transfer,omitempty"`
}

// InternalTransferRequest is the DTO for a peer transfer inside the bank.
type InternalTransferRequest struct {
	ReceiverAccountNumber string `json:"receiver_account_number"`
	Amount                int64  `json:"amount"` // in kobo
	Description           string `json:"description"`
	PIN                   string `json:"pin"`
}

// InternalTransferResult is returned to the client after a completed internal
// transfer. FreeTransfersLeft lets the client show the remaining fee-free
// allowance for the day.
type InternalTransferResult struct {
	Transaction       *Transaction `json:"transaction"`
	FreeTransfersLeft int          `json:"free_transfers_left"`
}

// ExternalTransferRequest is the DTO for a transfer to an account at another
// institution, routed through the inter-bank switch.
type ExternalTransferRequest struct {
	BankCode      string `json:"bank_code"`
	BankName      string `json:"bank_name"`
	AccountNumber string `json:"account_number"`
	AccountName   string `json:"account_name"`
	Amount        int64  `json:"amount"` // in kobo
	Description   string `json:"description"`
	PIN           string `json:"pin"`
}

// ExternalTransferResult acknowledges submission to the switch. No balance has
// moved yet; finalization arrives later on the settlement webhook.
type ExternalTransferResult struct {
	Reference string `json:"reference"`
	Status    string `json:"status"` // always "initiated"
	Amount    int64  `json:"amount"`
	TotalTax  int64  `json:"total_tax"`
}

// DepositLinkRequest asks the card gateway for a hosted payment page.
type DepositLinkRequest struct {
	Amount      int64  `json:"amount"` // in kobo
	Email       string `json:"email"`
	Description string `json:"description"`
}

// DepositLink is the client-facing result of initializing a gateway charge.
type DepositLink struct {
	PaymentURL    string `json:"payment_url"`
	AccessCode    string `json:"access_code"`
	Reference     string `json:"reference"`
	Amount        int64  `json:"amount"`
	TransactionID string `json:"transaction_id"`
}

// TransactionListOptions carries history query filters.
type TransactionListOptions struct {
	Mode  string // optional: DEBIT or CREDIT
	From  *time.Time
	To    *time.Time
	Page  int
	Limit int
}

// TransactionPage is one page of ledger history.
type TransactionPage struct {
	Transactions []Transaction `json:"transactions"`
	CurrentPage  int           `json:"current_page"`
	TotalPages   int           `json:"total_pages"`
	Total        int           `json:"total"`
}
