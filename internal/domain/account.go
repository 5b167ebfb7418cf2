package domain

import (
	"regexp"
	"time"

	"github.com/google/uuid"
)

var accountNumberPattern = regexp.MustCompile(`^\d{10}$`)

// Account is a user's main wallet. One account per user; the account number is
// assigned once and never changes afterwards.
type Account struct {
	ID            uuid.UUID `json:"id"`
	UserID        string    `json:"user_id"`
	AccountName   string    `json:"account_name"`
	AccountNumber *string   `json:"account_number,omitempty"` // nil until generated, exactly 10 digits
	Balance       int64     `json:"balance"`                  // in kobo, never negative
	PINHash       *string   `json:"-"`                        // nil until the PIN is set
	BankName      string    `json:"bank_name"`
	IsActive      bool      `json:"is_active"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}

// HasPIN reports whether a transaction PIN has ever been set.
func (a *Account) HasPIN() bool {
	return a.PINHash != nil && *a.PINHash != ""
}

// ValidAccountNumber reports whether s is a well-formed 10-digit account number.
func ValidAccountNumber(s string) bool {
	return accountNumberPattern.MatchString(s)
}

// AccountLookup is the public projection of an account used when a sender
// confirms a recipient before transferring.
type AccountLookup struct {
	AccountName   string `json:"account_name"`
	AccountNumber string `json:"account_number"`
}
