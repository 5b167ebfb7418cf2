/**
 * @description
 * This file defines the `Repository` interface, the contract for all data
 * access the ledger engine needs. Defining an interface decouples the business
 * logic from PostgreSQL and lets tests substitute in-memory stubs.
 *
 * @notes
 * - Balance mutation methods are the serialization point the engine relies on:
 *   implementations must make each movement an atomic conditional update so
 *   concurrent callers on one account can never lose an update or drive the
 *   balance negative.
 * - Multi-row units of work (a transfer's two movements and two entries, a
 *   settlement's movement plus entry) are single methods so implementations
 *   can run them in one database transaction.
 */

package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"github.com/bankabank/ledger-service/internal/domain"
)

// Sentinel errors returned by repository implementations.
var (
	ErrAccountNotFound       = errors.New("account not found")
	ErrAccountExists         = errors.New("account already exists for user")
	ErrAccountNumberTaken    = errors.New("account number already in use")
	ErrAccountNumberAssigned = errors.New("account number already assigned")
	ErrTransactionNotFound   = errors.New("transaction not found")
	ErrGoalNotFound          = errors.New("savings goal not found")
	ErrInsufficientFunds     = errors.New("insufficient funds")
	ErrDuplicateReference    = errors.New("duplicate transaction reference")
	ErrAlreadySettled        = errors.New("transaction already settled")
)

// InternalTransferParams is one atomic internal transfer: the sender is
// debited DebitAmount (amount plus tax), the receiver credited CreditAmount,
// and both ledger entries written, all in a single database transaction.
// The implementation fills PrevBal/NewBal on both entries.
type InternalTransferParams struct {
	SenderAccountID   uuid.UUID
	ReceiverAccountID uuid.UUID
	DebitAmount       int64
	CreditAmount      int64
	SenderEntry       *domain.Transaction
	ReceiverEntry     *domain.Transaction
}

// GoalMovementParams is one atomic movement between a main account and a
// savings goal, with both ledger entries. For a deposit the account is debited
// and the goal credited; for a withdrawal the reverse. The implementation
// fills PrevBal/NewBal on both entries and returns the goal with its updated
// balance.
type GoalMovementParams struct {
	AccountID    uuid.UUID
	GoalID       uuid.UUID
	Amount       int64
	AccountEntry *domain.Transaction
	GoalEntry    *domain.Transaction
}

// Repository defines the set of methods for interacting with the database.
type Repository interface {
	// Accounts
	CreateAccount(ctx context.Context, account *domain.Account) error
	FindAccountByID(ctx context.Context, id uuid.UUID) (*domain.Account, error)
	FindAccountByUserID(ctx context.Context, userID string) (*domain.Account, error)
	FindAccountByNumber(ctx context.Context, accountNumber string) (*domain.Account, error)
	AssignAccountNumber(ctx context.Context, accountID uuid.UUID, accountNumber string) error
	SetAccountPIN(ctx context.Context, accountID uuid.UUID, pinHash string, activate bool) error

	// ApplyMovement atomically adjusts an account balance by delta (negative
	// for debits). It fails with ErrInsufficientFunds when a debit would take
	// the balance below zero, and returns the balance before and after.
	ApplyMovement(ctx context.Context, accountID uuid.UUID, delta int64) (prevBal, newBal int64, err error)

	// Transactions
	// CreateTransaction persists a ledger entry. A non-nil Reference must be
	// unique; violation returns ErrDuplicateReference.
	CreateTransaction(ctx context.Context, tx *domain.Transaction) error
	// ApplyMovementRecorded applies a movement and writes its ledger entry in
	// one database transaction. Used by settlement paths so a movement can
	// never be applied without its entry.
	ApplyMovementRecorded(ctx context.Context, accountID uuid.UUID, delta int64, entry *domain.Transaction) (prevBal, newBal int64, err error)
	ExecuteInternalTransfer(ctx context.Context, p InternalTransferParams) error
	FindTransactionByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error)
	FindTransactionByReference(ctx context.Context, reference string) (*domain.Transaction, error)
	// FindRecentSuccessfulDebit is the second dedup net for settlement events
	// without a stable reference: the most recent success DEBIT of the same
	// amount for the same user since the given time.
	FindRecentSuccessfulDebit(ctx context.Context, userID string, amount int64, since time.Time) (*domain.Transaction, error)
	CountDebitTransactionsSince(ctx context.Context, userID string, since time.Time) (int, error)
	ListTransactionsByUser(ctx context.Context, userID string, opts domain.TransactionListOptions) (*domain.TransactionPage, error)

	// SettleDepositSuccess transitions a pending entry to success and credits
	// the account, atomically. ErrAlreadySettled if the entry is not pending.
	SettleDepositSuccess(ctx context.Context, txID uuid.UUID, accountID uuid.UUID, amount int64, paidAt time.Time) (prevBal, newBal int64, err error)
	// SettleDepositFailure transitions a pending entry to failed with no
	// balance change. ErrAlreadySettled if the entry is not pending.
	SettleDepositFailure(ctx context.Context, txID uuid.UUID, failedAt time.Time) error

	// Savings goals
	CreateSavingsGoal(ctx context.Context, goal *domain.SavingsGoal) error
	FindSavingsGoalByID(ctx context.Context, id uuid.UUID) (*domain.SavingsGoal, error)
	ListSavingsGoalsByUser(ctx context.Context, userID string) ([]domain.SavingsGoal, error)
	// UpdateSavingsGoal persists status and auto-charge fields. Balances move
	// only through the goal movement methods below.
	UpdateSavingsGoal(ctx context.Context, goal *domain.SavingsGoal) error
	DeleteSavingsGoal(ctx context.Context, id uuid.UUID) error
	ListDueAutoChargeGoals(ctx context.Context, now time.Time) ([]domain.SavingsGoal, error)
	ExecuteGoalDeposit(ctx context.Context, p GoalMovementParams) (*domain.SavingsGoal, error)
	ExecuteGoalWithdrawal(ctx context.Context, p GoalMovementParams) (*domain.SavingsGoal, error)
}
