/**
 * @description
 * This file contains the core business logic for the ledger-service. The
 * `Service` struct orchestrates account lifecycle, PIN management, internal
 * and external transfers, and deposit initiation, coordinating between the
 * database repository, the tax engine, the external rail clients, and the
 * message broker.
 *
 * Key features:
 * - PIN-gated transfers with fee computation via the tax engine.
 * - Internal transfers settle synchronously as one unit of work.
 * - External transfers are submitted to the inter-bank rail and finalized
 *   later by the settlement processor.
 * - Publishes events to RabbitMQ for asynchronous processing by other services.
 *
 * @dependencies
 * - github.com/google/uuid: For entity and reference generation.
 * - golang.org/x/crypto/bcrypt: For PIN hashing and verification.
 * - internal/domain, internal/store, internal/tax: Domain models, data access, fees.
 * - pkg/interbankclient, pkg/gatewayclient, pkg/rabbitmq: External rails and events.
 */

package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"regexp"
	"time"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"

	"github.com/bankabank/ledger-service/internal/domain"
	"github.com/bankabank/ledger-service/internal/store"
	"github.com/bankabank/ledger-service/internal/tax"
	"github.com/bankabank/ledger-service/pkg/gatewayclient"
	"github.com/bankabank/ledger-service/pkg/interbankclient"
	"github.com/bankabank/ledger-service/pkg/rabbitmq"
)

var (
	ErrInvalidPIN      = errors.New("transaction pin is incorrect")
	ErrPINNotSet       = errors.New("transaction pin has not been set")
	ErrPINAlreadySet   = errors.New("transaction pin is already set")
	ErrMalformedPIN    = errors.New("transaction pin must be exactly 4 digits")
	ErrSelfTransfer    = errors.New("sender and receiver accounts are the same")
	ErrAmountTooSmall  = errors.New("amount is below the transfer minimum")
	ErrAccountInactive = errors.New("account is not activated for transfers")
	ErrNoAccountNumber = errors.New("account has no account number yet")
	ErrExternalRail    = errors.New("the payment network rejected the transfer")
)

var pinPattern = regexp.MustCompile(`^\d{4}$`)

// InterbankClient is the slice of the inter-bank rail the service uses.
type InterbankClient interface {
	ListBanks(ctx context.Context) ([]interbankclient.Bank, error)
	ValidateAccount(ctx context.Context, bankCode, accountNumber string) (*interbankclient.AccountDetails, error)
	SubmitTransfer(ctx context.Context, req interbankclient.TransferRequest) (*interbankclient.TransferResponse, error)
}

// GatewayClient is the slice of the card/deposit gateway the service uses.
type GatewayClient interface {
	InitializeCharge(ctx context.Context, req gatewayclient.ChargeRequest) (*gatewayclient.ChargeResponse, error)
}

// Service provides the core business logic for the ledger.
type Service struct {
	repo        store.Repository
	taxEngine   *tax.Engine
	interbank   InterbankClient
	gateway     GatewayClient
	producer    rabbitmq.Publisher
	bankName    string
	bankCode    string
	minTransfer int64
}

// NewService creates a new ledger service instance.
func NewService(repo store.Repository, taxEngine *tax.Engine, interbank InterbankClient, gateway GatewayClient, producer rabbitmq.Publisher, bankName, bankCode string, minTransfer int64) *Service {
	return &Service{
		repo:        repo,
		taxEngine:   taxEngine,
		interbank:   interbank,
		gateway:     gateway,
		producer:    producer,
		bankName:    bankName,
		bankCode:    bankCode,
		minTransfer: minTransfer,
	}
}

// OpenAccount creates the user's single account with a freshly generated
// account number. The account stays inactive until a PIN is set.
func (s *Service) OpenAccount(ctx context.Context, userID, accountName string) (*domain.Account, error) {
	now := time.Now().UTC()
	account := &domain.Account{
		ID:          uuid.New(),
		UserID:      userID,
		AccountName: accountName,
		Balance:     0,
		BankName:    s.bankName,
		IsActive:    false,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.repo.CreateAccount(ctx, account); err != nil {
		return nil, err
	}
	number, err := s.assignFreshAccountNumber(ctx, account.ID)
	if err != nil {
		return nil, err
	}
	account.AccountNumber = &number
	log.Printf("level=info component=service msg=\"account opened\" user_id=%s account_id=%s", userID, account.ID)
	return account, nil
}

// assignFreshAccountNumber generates random 10-digit numbers until one sticks.
// Collisions are rejected by the unique index and retried.
func (s *Service) assignFreshAccountNumber(ctx context.Context, accountID uuid.UUID) (string, error) {
	const maxAttempts = 5
	for attempt := 0; attempt < maxAttempts; attempt++ {
		number := fmt.Sprintf("%d", rand.Int63n(9_000_000_000)+1_000_000_000)
		err := s.repo.AssignAccountNumber(ctx, accountID, number)
		if err == nil {
			return number, nil
		}
		if errors.Is(err, store.ErrAccountNumberTaken) {
			continue
		}
		return "", err
	}
	return "", fmt.Errorf("could not generate a unique account number after %d attempts", maxAttempts)
}

// GetAccount returns the caller's account.
func (s *Service) GetAccount(ctx context.Context, userID string) (*domain.Account, error) {
	return s.repo.FindAccountByUserID(ctx, userID)
}

// ResolveAccountName looks up the display name behind an account number, for
// pre-transfer confirmation.
func (s *Service) ResolveAccountName(ctx context.Context, accountNumber string) (*domain.AccountLookup, error) {
	if !domain.ValidAccountNumber(accountNumber) {
		return nil, store.ErrAccountNotFound
	}
	account, err := s.repo.FindAccountByNumber(ctx, accountNumber)
	if err != nil {
		return nil, err
	}
	return &domain.AccountLookup{
		AccountName:   account.AccountName,
		AccountNumber: accountNumber,
	}, nil
}

// SetupPIN sets the transaction PIN for the first time and activates the
// account. Changing an existing PIN goes through ChangePIN.
func (s *Service) SetupPIN(ctx context.Context, userID, pin string) error {
	if !pinPattern.MatchString(pin) {
		return ErrMalformedPIN
	}
	account, err := s.repo.FindAccountByUserID(ctx, userID)
	if err != nil {
		return err
	}
	if account.HasPIN() {
		return ErrPINAlreadySet
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(pin), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash pin: %w", err)
	}
	if err := s.repo.SetAccountPIN(ctx, account.ID, string(hash), true); err != nil {
		return err
	}
	log.Printf("level=info component=service msg=\"pin set, account activated\" user_id=%s", userID)
	return nil
}

// ChangePIN replaces the PIN after verifying the current one.
func (s *Service) ChangePIN(ctx context.Context, userID, currentPIN, newPIN string) error {
	if !pinPattern.MatchString(newPIN) {
		return ErrMalformedPIN
	}
	account, err := s.repo.FindAccountByUserID(ctx, userID)
	if err != nil {
		return err
	}
	if err := verifyPIN(account, currentPIN); err != nil {
		return err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(newPIN), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash pin: %w", err)
	}
	return s.repo.SetAccountPIN(ctx, account.ID, string(hash), false)
}

func verifyPIN(account *domain.Account, pin string) error {
	if !account.HasPIN() {
		return ErrPINNotSet
	}
	if err := bcrypt.CompareHashAndPassword([]byte(*account.PINHash), []byte(pin)); err != nil {
		return ErrInvalidPIN
	}
	return nil
}

// InternalTransfer moves funds between two accounts of this bank. Same-bank
// transfers are fee-exempt, and the debit, credit, and both ledger entries
// commit as one unit of work.
func (s *Service) InternalTransfer(ctx context.Context, userID string, req domain.InternalTransferRequest) (*domain.InternalTransferResult, error) {
	if req.Amount < s.minTransfer {
		return nil, ErrAmountTooSmall
	}
	sender, err := s.repo.FindAccountByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find sender account: %w", err)
	}
	if !sender.IsActive {
		return nil, ErrAccountInactive
	}
	if err := verifyPIN(sender, req.PIN); err != nil {
		return nil, err
	}
	receiver, err := s.repo.FindAccountByNumber(ctx, req.ReceiverAccountNumber)
	if err != nil {
		return nil, fmt.Errorf("failed to find receiver account: %w", err)
	}
	if receiver.ID == sender.ID {
		return nil, ErrSelfTransfer
	}

	dailyCount, err := s.taxEngine.DailyDebitCount(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load daily debit count: %w", err)
	}
	breakdown := tax.CalculateFee(req.Amount, dailyCount, true)
	debitTotal := req.Amount + breakdown.Total

	now := time.Now().UTC()
	reference := "TRF_" + uuid.NewString()
	senderEntry := &domain.Transaction{
		ID:              uuid.New(),
		UserID:          sender.UserID,
		SenderID:        &sender.UserID,
		SenderName:      sender.AccountName,
		ReceiverID:      &receiver.UserID,
		ReceiverName:    receiver.AccountName,
		Amount:          debitTotal,
		Mode:            domain.ModeDebit,
		Description:     req.Description,
		Status:          domain.StatusSuccess,
		PaidAt:          &now,
		CreatedAt:       now,
		Reference:       &reference,
		VATAmount:       breakdown.VATAmount,
		InterbankAmount: breakdown.InterbankFee,
		IsTaxed:         breakdown.Taxed,
		BankName:        s.bankName,
	}
	receiverEntry := &domain.Transaction{
		ID:           uuid.New(),
		UserID:       receiver.UserID,
		SenderID:     &sender.UserID,
		SenderName:   sender.AccountName,
		ReceiverID:   &receiver.UserID,
		ReceiverName: receiver.AccountName,
		Amount:       req.Amount,
		Mode:         domain.ModeCredit,
		Description:  req.Description,
		Status:       domain.StatusSuccess,
		PaidAt:       &now,
		CreatedAt:    now,
		BankName:     s.bankName,
	}

	err = s.repo.ExecuteInternalTransfer(ctx, store.InternalTransferParams{
		SenderAccountID:   sender.ID,
		ReceiverAccountID: receiver.ID,
		DebitAmount:       debitTotal,
		CreditAmount:      req.Amount,
		SenderEntry:       senderEntry,
		ReceiverEntry:     receiverEntry,
	})
	if err != nil {
		return nil, err
	}

	s.taxEngine.IncrementDebitCount(userID)
	s.publish(domain.RoutingKeyTransferCompleted, domain.TransferCompletedEvent{
		SenderUserID:   sender.UserID,
		ReceiverUserID: receiver.UserID,
		Amount:         req.Amount,
		TotalTax:       breakdown.Total,
		Reference:      reference,
		Timestamp:      now,
	})
	log.Printf("level=info component=service msg=\"internal transfer completed\" reference=%s amount=%d", reference, req.Amount)

	return &domain.InternalTransferResult{
		Transaction:       senderEntry,
		FreeTransfersLeft: tax.FreeTransfersLeft(dailyCount + 1),
	}, nil
}

// ExternalTransfer submits a transfer to the inter-bank rail. Balances are
// not touched here; the rail's webhook confirms the debit and the settlement
// processor applies it.
func (s *Service) ExternalTransfer(ctx context.Context, userID string, req domain.ExternalTransferRequest) (*domain.ExternalTransferResult, error) {
	if req.Amount < s.minTransfer {
		return nil, ErrAmountTooSmall
	}
	sender, err := s.repo.FindAccountByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to find sender account: %w", err)
	}
	if !sender.IsActive {
		return nil, ErrAccountInactive
	}
	if err := verifyPIN(sender, req.PIN); err != nil {
		return nil, err
	}
	if sender.AccountNumber == nil {
		return nil, ErrNoAccountNumber
	}

	dailyCount, err := s.taxEngine.DailyDebitCount(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to load daily debit count: %w", err)
	}
	sameBank := req.BankCode == s.bankCode
	breakdown := tax.CalculateFee(req.Amount, dailyCount, sameBank)
	if sender.Balance < req.Amount+breakdown.Total {
		return nil, store.ErrInsufficientFunds
	}

	reference := "TRF_" + uuid.NewString()
	_, err = s.interbank.SubmitTransfer(ctx, interbankclient.TransferRequest{
		Reference:     reference,
		Amount:        req.Amount,
		BankCode:      req.BankCode,
		BankName:      req.BankName,
		AccountNumber: req.AccountNumber,
		AccountName:   req.AccountName,
		Narration:     req.Description,
		Metadata: domain.TransferMetadata{
			SenderAccount:      *sender.AccountNumber,
			SenderName:         sender.AccountName,
			SenderUserID:       sender.UserID,
			Purpose:            "transfer",
			TransferType:       "external",
			ShouldApplyTax:     breakdown.Taxed,
			IsSameBankTransfer: sameBank,
			VATAmount:          breakdown.VATAmount,
			InterbankAmount:    breakdown.InterbankFee,
			IsTaxed:            breakdown.Taxed,
		},
	})
	if err != nil {
		log.Printf("level=error component=service msg=\"external transfer submission failed\" reference=%s error=%q", reference, err)
		return nil, fmt.Errorf("%w: %v", ErrExternalRail, err)
	}

	s.publish(domain.RoutingKeyTransferInitiated, domain.TransferInitiatedEvent{
		SenderUserID: sender.UserID,
		BankCode:     req.BankCode,
		Amount:       req.Amount,
		TotalTax:     breakdown.Total,
		Reference:    reference,
		Timestamp:    time.Now().UTC(),
	})
	log.Printf("level=info component=service msg=\"external transfer initiated\" reference=%s amount=%d", reference, req.Amount)

	return &domain.ExternalTransferResult{
		Reference: reference,
		Status:    "initiated",
		Amount:    req.Amount,
		TotalTax:  breakdown.Total,
	}, nil
}

// ListBanks proxies the rail's bank directory.
func (s *Service) ListBanks(ctx context.Context) ([]interbankclient.Bank, error) {
	return s.interbank.ListBanks(ctx)
}

// ValidateExternalAccount resolves an account at another bank before an
// external transfer is submitted.
func (s *Service) ValidateExternalAccount(ctx context.Context, bankCode, accountNumber string) (*interbankclient.AccountDetails, error) {
	return s.interbank.ValidateAccount(ctx, bankCode, accountNumber)
}

// CreateDepositLink opens a pending deposit on the ledger and initializes a
// gateway charge for it. The deposit settles when the gateway webhook lands.
func (s *Service) CreateDepositLink(ctx context.Context, userID string, req domain.DepositLinkRequest) (*domain.DepositLink, error) {
	if req.Amount < s.minTransfer {
		return nil, ErrAmountTooSmall
	}
	account, err := s.repo.FindAccountByUserID(ctx, userID)
	if err != nil {
		return nil, err
	}

	now := time.Now().UTC()
	reference := "DEP_" + uuid.NewString()
	entry := &domain.Transaction{
		ID:           uuid.New(),
		UserID:       userID,
		ReceiverID:   &userID,
		ReceiverName: account.AccountName,
		Amount:       req.Amount,
		Mode:         domain.ModeCredit,
		Description:  "Wallet deposit",
		Status:       domain.StatusPending,
		CreatedAt:    now,
		Reference:    &reference,
		BankName:     s.bankName,
	}
	if err := s.repo.CreateTransaction(ctx, entry); err != nil {
		return nil, err
	}

	charge, err := s.gateway.InitializeCharge(ctx, gatewayclient.ChargeRequest{
		Reference: reference,
		Amount:    req.Amount,
		Email:     req.Email,
		Metadata: domain.GatewayChargeMetadata{
			Type:      "deposit",
			UserID:    userID,
			AccountID: account.ID.String(),
		},
	})
	if err != nil {
		// Leave the pending entry; a later retry with a new reference is fine
		// and the stale entry never settles.
		log.Printf("level=error component=service msg=\"deposit charge initialization failed\" reference=%s error=%q", reference, err)
		return nil, fmt.Errorf("%w: %v", ErrExternalRail, err)
	}

	return &domain.DepositLink{
		PaymentURL:    charge.AuthorizationURL,
		AccessCode:    charge.AccessCode,
		Reference:     reference,
		Amount:        req.Amount,
		TransactionID: entry.ID.String(),
	}, nil
}

// ListTransactions returns one page of the caller's ledger history.
func (s *Service) ListTransactions(ctx context.Context, userID string, opts domain.TransactionListOptions) (*domain.TransactionPage, error) {
	return s.repo.ListTransactionsByUser(ctx, userID, opts)
}

// FreeTransfersLeft reports the caller's remaining fee-free debits today.
func (s *Service) FreeTransfersLeft(ctx context.Context, userID string) (int, error) {
	count, err := s.taxEngine.DailyDebitCount(ctx, userID)
	if err != nil {
		return 0, err
	}
	return tax.FreeTransfersLeft(count), nil
}

// publish sends an event and logs failures without failing the operation.
// The ledger write is the source of truth; events are best-effort.
func (s *Service) publish(routingKey string, payload any) {
	if s.producer == nil {
		return
	}
	if err := s.producer.Publish(context.Background(), routingKey, payload); err != nil {
		log.Printf("level=error component=service msg=\"failed to publish event\" routing_key=%s error=%q", routingKey, err)
	}
}
