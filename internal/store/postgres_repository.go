/**
 * @description
 * PostgreSQL implementation of the Repository interface for accounts and the
 * transaction ledger. Every balance mutation is a single conditional UPDATE
 * guarded by `balance + delta >= 0`, which makes the read-modify-write atomic
 * at the database and is what keeps concurrent movements on one account from
 * losing updates or overdrawing.
 *
 * @dependencies
 * - github.com/jackc/pgx/v5: PostgreSQL driver and connection pooling.
 * - internal/domain: The ledger's domain models.
 */

package store

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/bankabank/ledger-service/internal/domain"
)

const pgUniqueViolation = "23505"

// PostgresRepository is the production implementation of Repository.
type PostgresRepository struct {
	db *pgxpool.Pool
}

// NewPostgresRepository creates a repository backed by the given pool.
func NewPostgresRepository(db *pgxpool.Pool) *PostgresRepository {
	return &PostgresRepository{db: db}
}

// querier abstracts pgxpool.Pool and pgx.Tx so movement and insert helpers can
// run either standalone or inside a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

const accountColumns = `id, user_id, account_name, account_number, balance, pin_hash, bank_name, is_active, created_at, updated_at`

func scanAccount(row pgx.Row) (*domain.Account, error) {
	var a domain.Account
	err := row.Scan(
		&a.ID, &a.UserID, &a.AccountName, &a.AccountNumber, &a.Balance,
		&a.PINHash, &a.BankName, &a.IsActive, &a.CreatedAt, &a.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrAccountNotFound
		}
		return nil, err
	}
	return &a, nil
}

// CreateAccount inserts a new account. One account per user is enforced by a
// unique index on user_id.
func (r *PostgresRepository) CreateAccount(ctx context.Context, account *domain.Account) error {
	query := `
		INSERT INTO accounts (id, user_id, account_name, account_number, balance, pin_hash, bank_name, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
	`
	_, err := r.db.Exec(ctx, query,
		account.ID, account.UserID, account.AccountName, account.AccountNumber,
		account.Balance, account.PINHash, account.BankName, account.IsActive,
		account.CreatedAt, account.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			if strings.Contains(pgErr.ConstraintName, "account_number") {
				return ErrAccountNumberTaken
			}
			return ErrAccountExists
		}
		return fmt.Errorf("failed to insert account: %w", err)
	}
	return nil
}

func (r *PostgresRepository) FindAccountByID(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE id = $1`
	return scanAccount(r.db.QueryRow(ctx, query, id))
}

func (r *PostgresRepository) FindAccountByUserID(ctx context.Context, userID string) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE user_id = $1`
	return scanAccount(r.db.QueryRow(ctx, query, userID))
}

func (r *PostgresRepository) FindAccountByNumber(ctx context.Context, accountNumber string) (*domain.Account, error) {
	query := `SELECT ` + accountColumns + ` FROM accounts WHERE account_number = $1`
	return scanAccount(r.db.QueryRow(ctx, query, accountNumber))
}

// AssignAccountNumber sets the account number exactly once. The WHERE clause
// refuses accounts that already carry a number; the unique index rejects
// collisions with other accounts.
func (r *PostgresRepository) AssignAccountNumber(ctx context.Context, accountID uuid.UUID, accountNumber string) error {
	query := `
		UPDATE accounts
		SET account_number = $1, updated_at = now()
		WHERE id = $2 AND account_number IS NULL
	`
	tag, err := r.db.Exec(ctx, query, accountNumber, accountID)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return ErrAccountNumberTaken
		}
		return fmt.Errorf("failed to assign account number: %w", err)
	}
	if tag.RowsAffected() == 0 {
		existing, findErr := r.FindAccountByID(ctx, accountID)
		if findErr != nil {
			return findErr
		}
		if existing.AccountNumber != nil {
			return ErrAccountNumberAssigned
		}
		return ErrAccountNotFound
	}
	return nil
}

// SetAccountPIN stores the bcrypt hash of a transaction PIN. The first set
// also activates the account.
func (r *PostgresRepository) SetAccountPIN(ctx context.Context, accountID uuid.UUID, pinHash string, activate bool) error {
	query := `
		UPDATE accounts
		SET pin_hash = $1, is_active = (is_active OR $2), updated_at = now()
		WHERE id = $3
	`
	tag, err := r.db.Exec(ctx, query, pinHash, activate, accountID)
	if err != nil {
		return fmt.Errorf("failed to set account pin: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return ErrAccountNotFound
	}
	return nil
}

// applyMovementTx is the one balance-mutation primitive. The conditional
// UPDATE both serializes concurrent writers on the row and enforces the
// non-negative balance invariant.
func applyMovementTx(ctx context.Context, q querier, accountID uuid.UUID, delta int64) (int64, int64, error) {
	query := `
		UPDATE accounts
		SET balance = balance + $1, updated_at = now()
		WHERE id = $2 AND balance + $1 >= 0
		RETURNING balance
	`
	var newBal int64
	err := q.QueryRow(ctx, query, delta, accountID).Scan(&newBal)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			// Distinguish a missing account from an overdraw attempt.
			var exists bool
			if checkErr := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM accounts WHERE id = $1)`, accountID).Scan(&exists); checkErr != nil {
				return 0, 0, checkErr
			}
			if !exists {
				return 0, 0, ErrAccountNotFound
			}
			return 0, 0, ErrInsufficientFunds
		}
		return 0, 0, fmt.Errorf("failed to apply movement: %w", err)
	}
	return newBal - delta, newBal, nil
}

// ApplyMovement atomically adjusts the balance of one account.
func (r *PostgresRepository) ApplyMovement(ctx context.Context, accountID uuid.UUID, delta int64) (int64, int64, error) {
	return applyMovementTx(ctx, r.db, accountID, delta)
}

const transactionColumns = `id, user_id, sender_id, sender_name, receiver_id, receiver_name, amount, mode, description, status, prev_bal, new_bal, paid_at, created_at, reference, vat_amount, interbank_amount, is_taxed, bank_code, bank_name, external_transfer`

func scanTransaction(row pgx.Row) (*domain.Transaction, error) {
	var t domain.Transaction
	err := row.Scan(
		&t.ID, &t.UserID, &t.SenderID, &t.SenderName, &t.ReceiverID, &t.ReceiverName,
		&t.Amount, &t.Mode, &t.Description, &t.Status, &t.PrevBal, &t.NewBal,
		&t.PaidAt, &t.CreatedAt, &t.Reference, &t.VATAmount, &t.InterbankAmount,
		&t.IsTaxed, &t.BankCode, &t.BankName, &t.ExternalTransfer,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrTransactionNotFound
		}
		return nil, err
	}
	return &t, nil
}

func insertTransactionTx(ctx context.Context, q querier, tx *domain.Transaction) error {
	query := `
		INSERT INTO transactions (` + transactionColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, $20, $21)
	`
	_, err := q.Exec(ctx, query,
		tx.ID, tx.UserID, tx.SenderID, tx.SenderName, tx.ReceiverID, tx.ReceiverName,
		tx.Amount, tx.Mode, tx.Description, tx.Status, tx.PrevBal, tx.NewBal,
		tx.PaidAt, tx.CreatedAt, tx.Reference, tx.VATAmount, tx.InterbankAmount,
		tx.IsTaxed, tx.BankCode, tx.BankName, tx.ExternalTransfer,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == pgUniqueViolation {
			return ErrDuplicateReference
		}
		return fmt.Errorf("failed to insert transaction: %w", err)
	}
	return nil
}

// CreateTransaction persists a ledger entry. The unique index on reference is
// the idempotency contract the settlement processor relies on.
func (r *PostgresRepository) CreateTransaction(ctx context.Context, tx *domain.Transaction) error {
	return insertTransactionTx(ctx, r.db, tx)
}

// ApplyMovementRecorded applies one movement and writes its ledger entry in a
// single database transaction, filling the entry's balance snapshot.
func (r *PostgresRepository) ApplyMovementRecorded(ctx context.Context, accountID uuid.UUID, delta int64, entry *domain.Transaction) (int64, int64, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	prevBal, newBal, err := applyMovementTx(ctx, tx, accountID, delta)
	if err != nil {
		return 0, 0, err
	}
	entry.PrevBal = prevBal
	entry.NewBal = newBal
	if err := insertTransactionTx(ctx, tx, entry); err != nil {
		return 0, 0, err
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, 0, fmt.Errorf("failed to commit movement: %w", err)
	}
	return prevBal, newBal, nil
}

// ExecuteInternalTransfer performs a full internal transfer as one unit of
// work: sender debit, receiver credit, and both ledger entries. If anything
// fails the whole transfer rolls back, so balances and entries can never
// diverge.
func (r *PostgresRepository) ExecuteInternalTransfer(ctx context.Context, p InternalTransferParams) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	senderPrev, senderNew, err := applyMovementTx(ctx, tx, p.SenderAccountID, -p.DebitAmount)
	if err != nil {
		return err
	}
	receiverPrev, receiverNew, err := applyMovementTx(ctx, tx, p.ReceiverAccountID, p.CreditAmount)
	if err != nil {
		return err
	}

	p.SenderEntry.PrevBal = senderPrev
	p.SenderEntry.NewBal = senderNew
	p.ReceiverEntry.PrevBal = receiverPrev
	p.ReceiverEntry.NewBal = receiverNew

	if err := insertTransactionTx(ctx, tx, p.SenderEntry); err != nil {
		return err
	}
	if err := insertTransactionTx(ctx, tx, p.ReceiverEntry); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("failed to commit transfer: %w", err)
	}
	return nil
}

func (r *PostgresRepository) FindTransactionByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE id = $1`
	return scanTransaction(r.db.QueryRow(ctx, query, id))
}

func (r *PostgresRepository) FindTransactionByReference(ctx context.Context, reference string) (*domain.Transaction, error) {
	query := `SELECT ` + transactionColumns + ` FROM transactions WHERE reference = $1`
	return scanTransaction(r.db.QueryRow(ctx, query, reference))
}

// FindRecentSuccessfulDebit returns the latest success DEBIT of the given
// amount for the user since the given time, or ErrTransactionNotFound.
func (r *PostgresRepository) FindRecentSuccessfulDebit(ctx context.Context, userID string, amount int64, since time.Time) (*domain.Transaction, error) {
	query := `
		SELECT ` + transactionColumns + `
		FROM transactions
		WHERE user_id = $1 AND amount = $2 AND mode = $3 AND status = $4
		  AND COALESCE(paid_at, created_at) >= $5
		ORDER BY COALESCE(paid_at, created_at) DESC
		LIMIT 1
	`
	return scanTransaction(r.db.QueryRow(ctx, query, userID, amount, domain.ModeDebit, domain.StatusSuccess, since))
}

// CountDebitTransactionsSince counts the user's DEBIT entries recorded since
// the given time. The tax engine calls this on cache miss.
func (r *PostgresRepository) CountDebitTransactionsSince(ctx context.Context, userID string, since time.Time) (int, error) {
	query := `
		SELECT COUNT(*)
		FROM transactions
		WHERE user_id = $1 AND mode = $2 AND COALESCE(paid_at, created_at) >= $3
	`
	var count int
	if err := r.db.QueryRow(ctx, query, userID, domain.ModeDebit, since).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count debit transactions: %w", err)
	}
	return count, nil
}

// ListTransactionsByUser returns one page of the user's ledger history, most
// recent first, with optional mode and date filters.
func (r *PostgresRepository) ListTransactionsByUser(ctx context.Context, userID string, opts domain.TransactionListOptions) (*domain.TransactionPage, error) {
	page := opts.Page
	if page < 1 {
		page = 1
	}
	limit := opts.Limit
	if limit < 1 || limit > 100 {
		limit = 20
	}

	conditions := []string{"user_id = $1"}
	args := []any{userID}
	if opts.Mode == domain.ModeDebit || opts.Mode == domain.ModeCredit {
		args = append(args, opts.Mode)
		conditions = append(conditions, fmt.Sprintf("mode = $%d", len(args)))
	}
	if opts.From != nil {
		args = append(args, *opts.From)
		conditions = append(conditions, fmt.Sprintf("COALESCE(paid_at, created_at) >= $%d", len(args)))
	}
	if opts.To != nil {
		args = append(args, *opts.To)
		conditions = append(conditions, fmt.Sprintf("COALESCE(paid_at, created_at) <= $%d", len(args)))
	}
	where := strings.Join(conditions, " AND ")

	var total int
	countQuery := `SELECT COUNT(*) FROM transactions WHERE ` + where
	if err := r.db.QueryRow(ctx, countQuery, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("failed to count transactions: %w", err)
	}

	args = append(args, limit, (page-1)*limit)
	listQuery := fmt.Sprintf(`
		SELECT `+transactionColumns+`
		FROM transactions
		WHERE `+where+`
		ORDER BY COALESCE(paid_at, created_at) DESC
		LIMIT $%d OFFSET $%d
	`, len(args)-1, len(args))

	rows, err := r.db.Query(ctx, listQuery, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	defer rows.Close()

	transactions := make([]domain.Transaction, 0, limit)
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, err
		}
		transactions = append(transactions, *t)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	totalPages := (total + limit - 1) / limit
	return &domain.TransactionPage{
		Transactions: transactions,
		CurrentPage:  page,
		TotalPages:   totalPages,
		Total:        total,
	}, nil
}

// SettleDepositSuccess finalizes a pending deposit: the status flips to
// success and the account is credited, in one database transaction. The
// status guard in the UPDATE makes the pending->success transition a
// check-and-set, so a replayed webhook can never credit twice.
func (r *PostgresRepository) SettleDepositSuccess(ctx context.Context, txID uuid.UUID, accountID uuid.UUID, amount int64, paidAt time.Time) (int64, int64, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	prevBal, newBal, err := applyMovementTx(ctx, tx, accountID, amount)
	if err != nil {
		return 0, 0, err
	}

	query := `
		UPDATE transactions
		SET status = $1, paid_at = $2, prev_bal = $3, new_bal = $4
		WHERE id = $5 AND status = $6
	`
	tag, err := tx.Exec(ctx, query, domain.StatusSuccess, paidAt, prevBal, newBal, txID, domain.StatusPending)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to settle deposit: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Not pending anymore; roll the credit back by aborting the tx.
		return 0, 0, ErrAlreadySettled
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, 0, fmt.Errorf("failed to commit settlement: %w", err)
	}
	return prevBal, newBal, nil
}

// SettleDepositFailure marks a pending deposit failed. No balance change.
func (r *PostgresRepository) SettleDepositFailure(ctx context.Context, txID uuid.UUID, failedAt time.Time) error {
	query := `
		UPDATE transactions
		SET status = $1, paid_at = $2
		WHERE id = $3 AND status = $4
	`
	tag, err := r.db.Exec(ctx, query, domain.StatusFailed, failedAt, txID, domain.StatusPending)
	if err != nil {
		return fmt.Errorf("failed to mark deposit failed: %w", err)
	}
	if tag.RowsAffected() == 0 {
		log.Printf("level=warn component=store msg=\"deposit failure for non-pending transaction ignored\" transaction_id=%s", txID)
		return ErrAlreadySettled
	}
	return nil
}
