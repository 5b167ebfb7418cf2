package app

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/bankabank/ledger-service/internal/domain"
	"github.com/bankabank/ledger-service/internal/store"
)

// stubRepository is a mutex-guarded in-memory store.Repository. Balance
// movements are conditional under the lock, mirroring the guarantees of the
// real implementation, so concurrency tests exercise genuine interleavings.
type stubRepository struct {
	mu           sync.Mutex
	accounts     map[uuid.UUID]*domain.Account
	goals        map[uuid.UUID]*domain.SavingsGoal
	transactions []*domain.Transaction
}

func newStubRepository() *stubRepository {
	return &stubRepository{
		accounts: make(map[uuid.UUID]*domain.Account),
		goals:    make(map[uuid.UUID]*domain.SavingsGoal),
	}
}

func copyAccount(a *domain.Account) *domain.Account {
	c := *a
	return &c
}

func copyGoal(g *domain.SavingsGoal) *domain.SavingsGoal {
	c := *g
	return &c
}

// addAccount seeds an account and returns it.
func (r *stubRepository) addAccount(userID, number string, balance int64, pinHash *string) *domain.Account {
	r.mu.Lock()
	defer r.mu.Unlock()
	now := time.Now().UTC()
	a := &domain.Account{
		ID:          uuid.New(),
		UserID:      userID,
		AccountName: "Account " + userID,
		Balance:     balance,
		PINHash:     pinHash,
		BankName:    "Banka Bank",
		IsActive:    pinHash != nil,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if number != "" {
		a.AccountNumber = &number
	}
	r.accounts[a.ID] = a
	return copyAccount(a)
}

func (r *stubRepository) addGoal(g *domain.SavingsGoal) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.goals[g.ID] = copyGoal(g)
}

func (r *stubRepository) balanceOf(id uuid.UUID) int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.accounts[id].Balance
}

func (r *stubRepository) transactionCount() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.transactions)
}

func (r *stubRepository) transactionsFor(userID string) []*domain.Transaction {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Transaction
	for _, tx := range r.transactions {
		if tx.UserID == userID {
			c := *tx
			out = append(out, &c)
		}
	}
	return out
}

func (r *stubRepository) CreateAccount(ctx context.Context, account *domain.Account) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.accounts {
		if a.UserID == account.UserID {
			return store.ErrAccountExists
		}
		if account.AccountNumber != nil && a.AccountNumber != nil && *a.AccountNumber == *account.AccountNumber {
			return store.ErrAccountNumberTaken
		}
	}
	r.accounts[account.ID] = copyAccount(account)
	return nil
}

func (r *stubRepository) FindAccountByID(ctx context.Context, id uuid.UUID) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[id]
	if !ok {
		return nil, store.ErrAccountNotFound
	}
	return copyAccount(a), nil
}

func (r *stubRepository) FindAccountByUserID(ctx context.Context, userID string) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.accounts {
		if a.UserID == userID {
			return copyAccount(a), nil
		}
	}
	return nil, store.ErrAccountNotFound
}

func (r *stubRepository) FindAccountByNumber(ctx context.Context, accountNumber string) (*domain.Account, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, a := range r.accounts {
		if a.AccountNumber != nil && *a.AccountNumber == accountNumber {
			return copyAccount(a), nil
		}
	}
	return nil, store.ErrAccountNotFound
}

func (r *stubRepository) AssignAccountNumber(ctx context.Context, accountID uuid.UUID, accountNumber string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	target, ok := r.accounts[accountID]
	if !ok {
		return store.ErrAccountNotFound
	}
	if target.AccountNumber != nil {
		return store.ErrAccountNumberAssigned
	}
	for _, a := range r.accounts {
		if a.AccountNumber != nil && *a.AccountNumber == accountNumber {
			return store.ErrAccountNumberTaken
		}
	}
	target.AccountNumber = &accountNumber
	return nil
}

func (r *stubRepository) SetAccountPIN(ctx context.Context, accountID uuid.UUID, pinHash string, activate bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	a, ok := r.accounts[accountID]
	if !ok {
		return store.ErrAccountNotFound
	}
	a.PINHash = &pinHash
	if activate {
		a.IsActive = true
	}
	return nil
}

// move applies a guarded balance change. Caller must hold the lock.
func (r *stubRepository) move(accountID uuid.UUID, delta int64) (int64, int64, error) {
	a, ok := r.accounts[accountID]
	if !ok {
		return 0, 0, store.ErrAccountNotFound
	}
	if a.Balance+delta < 0 {
		return 0, 0, store.ErrInsufficientFunds
	}
	prev := a.Balance
	a.Balance += delta
	return prev, a.Balance, nil
}

// record appends a ledger entry, enforcing reference uniqueness. Caller must
// hold the lock.
func (r *stubRepository) record(tx *domain.Transaction) error {
	if tx.Reference != nil {
		for _, existing := range r.transactions {
			if existing.Reference != nil && *existing.Reference == *tx.Reference {
				return store.ErrDuplicateReference
			}
		}
	}
	c := *tx
	r.transactions = append(r.transactions, &c)
	return nil
}

func (r *stubRepository) ApplyMovement(ctx context.Context, accountID uuid.UUID, delta int64) (int64, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.move(accountID, delta)
}

func (r *stubRepository) CreateTransaction(ctx context.Context, tx *domain.Transaction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.record(tx)
}

func (r *stubRepository) ApplyMovementRecorded(ctx context.Context, accountID uuid.UUID, delta int64, entry *domain.Transaction) (int64, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if entry.Reference != nil {
		for _, existing := range r.transactions {
			if existing.Reference != nil && *existing.Reference == *entry.Reference {
				return 0, 0, store.ErrDuplicateReference
			}
		}
	}
	prev, newBal, err := r.move(accountID, delta)
	if err != nil {
		return 0, 0, err
	}
	entry.PrevBal = prev
	entry.NewBal = newBal
	if err := r.record(entry); err != nil {
		// Roll the movement back; reference check above makes this unreachable.
		r.accounts[accountID].Balance = prev
		return 0, 0, err
	}
	return prev, newBal, nil
}

func (r *stubRepository) ExecuteInternalTransfer(ctx context.Context, p store.InternalTransferParams) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	senderPrev, senderNew, err := r.move(p.SenderAccountID, -p.DebitAmount)
	if err != nil {
		return err
	}
	receiverPrev, receiverNew, err := r.move(p.ReceiverAccountID, p.CreditAmount)
	if err != nil {
		r.accounts[p.SenderAccountID].Balance = senderPrev
		return err
	}
	p.SenderEntry.PrevBal = senderPrev
	p.SenderEntry.NewBal = senderNew
	p.ReceiverEntry.PrevBal = receiverPrev
	p.ReceiverEntry.NewBal = receiverNew
	if err := r.record(p.SenderEntry); err != nil {
		r.accounts[p.SenderAccountID].Balance = senderPrev
		r.accounts[p.ReceiverAccountID].Balance = receiverPrev
		return err
	}
	if err := r.record(p.ReceiverEntry); err != nil {
		r.accounts[p.SenderAccountID].Balance = senderPrev
		r.accounts[p.ReceiverAccountID].Balance = receiverPrev
		return err
	}
	return nil
}

func (r *stubRepository) FindTransactionByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, tx := range r.transactions {
		if tx.ID == id {
			c := *tx
			return &c, nil
		}
	}
	return nil, store.ErrTransactionNotFound
}

func (r *stubRepository) FindTransactionByReference(ctx context.Context, reference string) (*domain.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, tx := range r.transactions {
		if tx.Reference != nil && *tx.Reference == reference {
			c := *tx
			return &c, nil
		}
	}
	return nil, store.ErrTransactionNotFound
}

func (r *stubRepository) FindRecentSuccessfulDebit(ctx context.Context, userID string, amount int64, since time.Time) (*domain.Transaction, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for i := len(r.transactions) - 1; i >= 0; i-- {
		tx := r.transactions[i]
		if tx.UserID == userID && tx.Amount == amount && tx.Mode == domain.ModeDebit &&
			tx.Status == domain.StatusSuccess && !tx.CreatedAt.Before(since) {
			c := *tx
			return &c, nil
		}
	}
	return nil, store.ErrTransactionNotFound
}

func (r *stubRepository) CountDebitTransactionsSince(ctx context.Context, userID string, since time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	count := 0
	for _, tx := range r.transactions {
		if tx.UserID == userID && tx.Mode == domain.ModeDebit && !tx.CreatedAt.Before(since) {
			count++
		}
	}
	return count, nil
}

func (r *stubRepository) ListTransactionsByUser(ctx context.Context, userID string, opts domain.TransactionListOptions) (*domain.TransactionPage, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var matched []domain.Transaction
	for _, tx := range r.transactions {
		if tx.UserID != userID {
			continue
		}
		if opts.Mode != "" && tx.Mode != opts.Mode {
			continue
		}
		matched = append(matched, *tx)
	}
	sort.Slice(matched, func(i, j int) bool {
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})
	return &domain.TransactionPage{
		Transactions: matched,
		CurrentPage:  1,
		TotalPages:   1,
		Total:        len(matched),
	}, nil
}

func (r *stubRepository) SettleDepositSuccess(ctx context.Context, txID uuid.UUID, accountID uuid.UUID, amount int64, paidAt time.Time) (int64, int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, tx := range r.transactions {
		if tx.ID == txID {
			if tx.Status != domain.StatusPending {
				return 0, 0, store.ErrAlreadySettled
			}
			prev, newBal, err := r.move(accountID, amount)
			if err != nil {
				return 0, 0, err
			}
			tx.Status = domain.StatusSuccess
			tx.PaidAt = &paidAt
			tx.PrevBal = prev
			tx.NewBal = newBal
			return prev, newBal, nil
		}
	}
	return 0, 0, store.ErrTransactionNotFound
}

func (r *stubRepository) SettleDepositFailure(ctx context.Context, txID uuid.UUID, failedAt time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, tx := range r.transactions {
		if tx.ID == txID {
			if tx.Status != domain.StatusPending {
				return store.ErrAlreadySettled
			}
			tx.Status = domain.StatusFailed
			tx.PaidAt = &failedAt
			return nil
		}
	}
	return store.ErrTransactionNotFound
}

func (r *stubRepository) CreateSavingsGoal(ctx context.Context, goal *domain.SavingsGoal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.goals[goal.ID] = copyGoal(goal)
	return nil
}

func (r *stubRepository) FindSavingsGoalByID(ctx context.Context, id uuid.UUID) (*domain.SavingsGoal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.goals[id]
	if !ok {
		return nil, store.ErrGoalNotFound
	}
	return copyGoal(g), nil
}

func (r *stubRepository) ListSavingsGoalsByUser(ctx context.Context, userID string) ([]domain.SavingsGoal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.SavingsGoal
	for _, g := range r.goals {
		if g.UserID == userID {
			out = append(out, *g)
		}
	}
	return out, nil
}

func (r *stubRepository) UpdateSavingsGoal(ctx context.Context, goal *domain.SavingsGoal) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.goals[goal.ID]
	if !ok {
		return store.ErrGoalNotFound
	}
	balance := existing.Balance
	r.goals[goal.ID] = copyGoal(goal)
	r.goals[goal.ID].Balance = balance
	return nil
}

func (r *stubRepository) DeleteSavingsGoal(ctx context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.goals[id]; !ok {
		return store.ErrGoalNotFound
	}
	delete(r.goals, id)
	return nil
}

func (r *stubRepository) ListDueAutoChargeGoals(ctx context.Context, now time.Time) ([]domain.SavingsGoal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.SavingsGoal
	for _, g := range r.goals {
		if g.Status == domain.GoalStatusActive && g.AutoChargeEnabled &&
			g.NextAutoCharge != nil && !now.Before(*g.NextAutoCharge) {
			out = append(out, *g)
		}
	}
	return out, nil
}

func (r *stubRepository) ExecuteGoalDeposit(ctx context.Context, p store.GoalMovementParams) (*domain.SavingsGoal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.goals[p.GoalID]
	if !ok {
		return nil, store.ErrGoalNotFound
	}
	prev, newBal, err := r.move(p.AccountID, -p.Amount)
	if err != nil {
		return nil, err
	}
	g.Balance += p.Amount
	p.AccountEntry.PrevBal = prev
	p.AccountEntry.NewBal = newBal
	if err := r.record(p.AccountEntry); err != nil {
		return nil, err
	}
	if p.GoalEntry != nil {
		if err := r.record(p.GoalEntry); err != nil {
			return nil, err
		}
	}
	return copyGoal(g), nil
}

func (r *stubRepository) ExecuteGoalWithdrawal(ctx context.Context, p store.GoalMovementParams) (*domain.SavingsGoal, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	g, ok := r.goals[p.GoalID]
	if !ok {
		return nil, store.ErrGoalNotFound
	}
	if g.Balance < p.Amount {
		return nil, store.ErrInsufficientFunds
	}
	prev, newBal, err := r.move(p.AccountID, p.Amount)
	if err != nil {
		return nil, err
	}
	g.Balance -= p.Amount
	p.AccountEntry.PrevBal = prev
	p.AccountEntry.NewBal = newBal
	if err := r.record(p.AccountEntry); err != nil {
		return nil, err
	}
	if p.GoalEntry != nil {
		if err := r.record(p.GoalEntry); err != nil {
			return nil, err
		}
	}
	return copyGoal(g), nil
}
