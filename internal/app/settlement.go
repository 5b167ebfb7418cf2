/**
 * @description
 * Settlement of asynchronous confirmations from the external rails. The
 * inter-bank network and the card gateway both deliver webhooks at least
 * once, so every handler here must be safe to replay: settlement is keyed on
 * the transaction reference, and pending transactions flip to a final status
 * exactly once.
 *
 * Key features:
 * - Debit confirmations apply the sender's debit with the tax breakdown the
 *   transfer was submitted with, never recomputing fees at settlement time.
 * - A trailing-window duplicate check catches replays that arrive without a
 *   stable reference.
 * - Credit confirmations at or above the routing threshold also apply the
 *   flat inter-bank surcharge as a separate system entry.
 */

package app

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"

	"github.com/bankabank/ledger-service/internal/domain"
	"github.com/bankabank/ledger-service/internal/store"
	"github.com/bankabank/ledger-service/internal/tax"
	"github.com/bankabank/ledger-service/pkg/rabbitmq"
)

// duplicateDebitWindow is how far back a referenceless debit confirmation is
// checked against already-settled debits of the same amount.
const duplicateDebitWindow = 5 * time.Minute

// SettlementProcessor applies external confirmations to the ledger.
type SettlementProcessor struct {
	repo      store.Repository
	taxEngine *tax.Engine
	producer  rabbitmq.Publisher
}

// NewSettlementProcessor creates a settlement processor.
func NewSettlementProcessor(repo store.Repository, taxEngine *tax.Engine, producer rabbitmq.Publisher) *SettlementProcessor {
	return &SettlementProcessor{
		repo:      repo,
		taxEngine: taxEngine,
		producer:  producer,
	}
}

// ProcessInterbankEvent dispatches one inter-bank webhook event. Unknown
// event names are logged and dropped so new rail events cannot wedge the
// webhook queue.
func (p *SettlementProcessor) ProcessInterbankEvent(ctx context.Context, event domain.InterbankWebhookEvent) error {
	switch event.Event {
	case domain.EventTransferDebitSuccess:
		var confirmation domain.DebitConfirmation
		if err := json.Unmarshal(event.Data, &confirmation); err != nil {
			return fmt.Errorf("%w: %v", domain.ErrMalformedEvent, err)
		}
		return p.processDebitConfirmation(ctx, confirmation)
	case domain.EventTransferCreditSuccess:
		var confirmation domain.CreditConfirmation
		if err := json.Unmarshal(event.Data, &confirmation); err != nil {
			return fmt.Errorf("%w: %v", domain.ErrMalformedEvent, err)
		}
		return p.processCreditConfirmation(ctx, confirmation)
	default:
		log.Printf("level=warn component=settlement msg=\"ignoring unknown interbank event\" event=%s", event.Event)
		return nil
	}
}

// processDebitConfirmation finalizes an external transfer out of an account.
func (p *SettlementProcessor) processDebitConfirmation(ctx context.Context, c domain.DebitConfirmation) error {
	if err := c.Validate(); err != nil {
		return err
	}

	if c.Reference != "" {
		if _, err := p.repo.FindTransactionByReference(ctx, c.Reference); err == nil {
			log.Printf("level=info component=settlement msg=\"debit already settled, skipping\" reference=%s", c.Reference)
			return nil
		} else if !errors.Is(err, store.ErrTransactionNotFound) {
			return fmt.Errorf("failed to check reference: %w", err)
		}
	}

	account, err := p.repo.FindAccountByNumber(ctx, c.Metadata.SenderAccount)
	if err != nil {
		return fmt.Errorf("failed to find sender account %s: %w", c.Metadata.SenderAccount, err)
	}

	totalDebit := c.Amount
	if c.Metadata.IsTaxed {
		totalDebit += c.Metadata.VATAmount + c.Metadata.InterbankAmount
	}

	// Events without a reference get a weaker amount+window duplicate check.
	if _, err := p.repo.FindRecentSuccessfulDebit(ctx, account.UserID, totalDebit, time.Now().Add(-duplicateDebitWindow)); err == nil {
		log.Printf("level=warn component=settlement msg=\"possible duplicate debit confirmation, skipping\" account=%s amount=%d", c.Metadata.SenderAccount, totalDebit)
		return nil
	} else if !errors.Is(err, store.ErrTransactionNotFound) {
		return fmt.Errorf("failed to check recent debits: %w", err)
	}

	now := time.Now().UTC()
	entry := &domain.Transaction{
		ID:               uuid.New(),
		UserID:           account.UserID,
		SenderID:         &account.UserID,
		SenderName:       account.AccountName,
		ReceiverName:     c.AccountName,
		Amount:           totalDebit,
		Mode:             domain.ModeDebit,
		Description:      c.Metadata.Description,
		Status:           domain.StatusSuccess,
		PaidAt:           &now,
		CreatedAt:        now,
		VATAmount:        c.Metadata.VATAmount,
		InterbankAmount:  c.Metadata.InterbankAmount,
		IsTaxed:          c.Metadata.IsTaxed,
		BankCode:         c.BankCode,
		BankName:         c.BankName,
		ExternalTransfer: true,
	}
	if c.Reference != "" {
		entry.Reference = &c.Reference
	}

	_, newBal, err := p.repo.ApplyMovementRecorded(ctx, account.ID, -totalDebit, entry)
	if err != nil {
		if errors.Is(err, store.ErrDuplicateReference) {
			log.Printf("level=info component=settlement msg=\"debit already settled, skipping\" reference=%s", c.Reference)
			return nil
		}
		// Including insufficient funds: surfaced for operator inspection, the
		// rail will redeliver.
		return fmt.Errorf("failed to apply debit settlement: %w", err)
	}

	p.taxEngine.IncrementDebitCount(account.UserID)
	p.publish(domain.RoutingKeySettlementApplied, domain.SettlementAppliedEvent{
		UserID:    account.UserID,
		Mode:      domain.ModeDebit,
		Amount:    totalDebit,
		NewBal:    newBal,
		Reference: c.Reference,
		Timestamp: now,
	})
	log.Printf("level=info component=settlement msg=\"debit settled\" reference=%s amount=%d new_bal=%d", c.Reference, totalDebit, newBal)
	return nil
}

// processCreditConfirmation applies incoming funds from another bank.
func (p *SettlementProcessor) processCreditConfirmation(ctx context.Context, c domain.CreditConfirmation) error {
	if err := c.Validate(); err != nil {
		return err
	}

	if c.Reference != "" {
		if _, err := p.repo.FindTransactionByReference(ctx, c.Reference); err == nil {
			log.Printf("level=info component=settlement msg=\"credit already settled, skipping\" reference=%s", c.Reference)
			return nil
		} else if !errors.Is(err, store.ErrTransactionNotFound) {
			return fmt.Errorf("failed to check reference: %w", err)
		}
	}

	account, err := p.repo.FindAccountByNumber(ctx, c.AccountNumber)
	if err != nil {
		return fmt.Errorf("failed to find receiving account %s: %w", c.AccountNumber, err)
	}

	now := time.Now().UTC()
	entry := &domain.Transaction{
		ID:               uuid.New(),
		UserID:           account.UserID,
		SenderName:       c.SenderName,
		ReceiverID:       &account.UserID,
		ReceiverName:     account.AccountName,
		Amount:           c.Amount,
		Mode:             domain.ModeCredit,
		Description:      c.Narration,
		Status:           domain.StatusSuccess,
		PaidAt:           &now,
		CreatedAt:        now,
		BankCode:         c.BankCode,
		BankName:         c.BankName,
		ExternalTransfer: true,
	}
	if c.Reference != "" {
		entry.Reference = &c.Reference
	}

	_, newBal, err := p.repo.ApplyMovementRecorded(ctx, account.ID, c.Amount, entry)
	if err != nil {
		if errors.Is(err, store.ErrDuplicateReference) {
			log.Printf("level=info component=settlement msg=\"credit already settled, skipping\" reference=%s", c.Reference)
			return nil
		}
		return fmt.Errorf("failed to apply credit settlement: %w", err)
	}

	p.publish(domain.RoutingKeySettlementApplied, domain.SettlementAppliedEvent{
		UserID:    account.UserID,
		Mode:      domain.ModeCredit,
		Amount:    c.Amount,
		NewBal:    newBal,
		Reference: c.Reference,
		Timestamp: now,
	})
	log.Printf("level=info component=settlement msg=\"credit settled\" reference=%s amount=%d new_bal=%d", c.Reference, c.Amount, newBal)

	if c.Amount >= tax.InterbankFeeThreshold {
		if err := p.applyInterbankSurcharge(ctx, account, c.Reference); err != nil {
			return err
		}
	}
	return nil
}

// applyInterbankSurcharge charges the flat cost-recovery fee for receiving a
// large inter-bank credit. It carries its own reference derived from the
// credit's, so replays of the credit cannot charge it twice.
func (p *SettlementProcessor) applyInterbankSurcharge(ctx context.Context, account *domain.Account, creditReference string) error {
	now := time.Now().UTC()
	entry := &domain.Transaction{
		ID:           uuid.New(),
		UserID:       account.UserID,
		SenderID:     &account.UserID,
		SenderName:   account.AccountName,
		ReceiverName: "Inter-bank settlement",
		Amount:       tax.InterbankFee,
		Mode:         domain.ModeDebit,
		Description:  "Inter-bank settlement surcharge",
		Status:       domain.StatusSuccess,
		PaidAt:       &now,
		CreatedAt:    now,
	}
	if creditReference != "" {
		surchargeRef := "NIBSS_" + creditReference
		entry.Reference = &surchargeRef
	}

	_, _, err := p.repo.ApplyMovementRecorded(ctx, account.ID, -tax.InterbankFee, entry)
	if err != nil {
		if errors.Is(err, store.ErrDuplicateReference) {
			return nil
		}
		return fmt.Errorf("failed to apply interbank surcharge: %w", err)
	}
	log.Printf("level=info component=settlement msg=\"interbank surcharge applied\" account_id=%s amount=%d", account.ID, tax.InterbankFee)
	return nil
}

// ProcessGatewayEvent handles card gateway webhooks for wallet deposits.
func (p *SettlementProcessor) ProcessGatewayEvent(ctx context.Context, event domain.GatewayWebhookEvent) error {
	var charge domain.GatewayCharge
	if err := json.Unmarshal(event.Data, &charge); err != nil {
		return fmt.Errorf("%w: %v", domain.ErrMalformedEvent, err)
	}

	switch event.Event {
	case domain.EventChargeSuccess:
		return p.processDepositSuccess(ctx, charge)
	case domain.EventChargeFailed:
		return p.processDepositFailure(ctx, charge)
	default:
		log.Printf("level=warn component=settlement msg=\"ignoring unknown gateway event\" event=%s", event.Event)
		return nil
	}
}

func (p *SettlementProcessor) processDepositSuccess(ctx context.Context, charge domain.GatewayCharge) error {
	if err := charge.Validate(); err != nil {
		return err
	}
	if !charge.IsDeposit() {
		log.Printf("level=info component=settlement msg=\"ignoring non-deposit charge\" reference=%s", charge.Reference)
		return nil
	}

	tx, err := p.repo.FindTransactionByReference(ctx, charge.Reference)
	if err != nil {
		return fmt.Errorf("failed to find deposit %s: %w", charge.Reference, err)
	}
	account, err := p.repo.FindAccountByUserID(ctx, tx.UserID)
	if err != nil {
		return fmt.Errorf("failed to find deposit account: %w", err)
	}

	paidAt := time.Now().UTC()
	if charge.PaidAt != "" {
		if parsed, parseErr := time.Parse(time.RFC3339, charge.PaidAt); parseErr == nil {
			paidAt = parsed
		}
	}

	_, newBal, err := p.repo.SettleDepositSuccess(ctx, tx.ID, account.ID, tx.Amount, paidAt)
	if err != nil {
		if errors.Is(err, store.ErrAlreadySettled) {
			log.Printf("level=info component=settlement msg=\"deposit already settled, skipping\" reference=%s", charge.Reference)
			return nil
		}
		return fmt.Errorf("failed to settle deposit: %w", err)
	}

	p.publish(domain.RoutingKeyDepositSettled, domain.SettlementAppliedEvent{
		UserID:    tx.UserID,
		Mode:      domain.ModeCredit,
		Amount:    tx.Amount,
		NewBal:    newBal,
		Reference: charge.Reference,
		Timestamp: paidAt,
	})
	log.Printf("level=info component=settlement msg=\"deposit settled\" reference=%s amount=%d new_bal=%d", charge.Reference, tx.Amount, newBal)
	return nil
}

func (p *SettlementProcessor) processDepositFailure(ctx context.Context, charge domain.GatewayCharge) error {
	if err := charge.Validate(); err != nil {
		return err
	}
	if !charge.IsDeposit() {
		log.Printf("level=info component=settlement msg=\"ignoring non-deposit charge\" reference=%s", charge.Reference)
		return nil
	}
	tx, err := p.repo.FindTransactionByReference(ctx, charge.Reference)
	if err != nil {
		return fmt.Errorf("failed to find deposit %s: %w", charge.Reference, err)
	}
	if err := p.repo.SettleDepositFailure(ctx, tx.ID, time.Now().UTC()); err != nil {
		if errors.Is(err, store.ErrAlreadySettled) {
			return nil
		}
		return err
	}
	log.Printf("level=info component=settlement msg=\"deposit marked failed\" reference=%s", charge.Reference)
	return nil
}

func (p *SettlementProcessor) publish(routingKey string, payload any) {
	if p.producer == nil {
		return
	}
	if err := p.producer.Publish(context.Background(), routingKey, payload); err != nil {
		log.Printf("level=error component=settlement msg=\"failed to publish event\" routing_key=%s error=%q", routingKey, err)
	}
}
