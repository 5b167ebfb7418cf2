package tax

import (
	"context"
	"testing"
	"time"
)

type stubDebitCounter struct {
	count int
	calls int
	err   error
}

func (s *stubDebitCounter) CountDebitTransactionsSince(ctx context.Context, userID string, since time.Time) (int, error) {
	s.calls++
	return s.count, s.err
}

func TestCalculateFeeVATAtAllowance(t *testing.T) {
	// NGN 1,000.00 at the free allowance boundary: 10.75% VAT applies.
	b := CalculateFee(1000_00, FreeDailyTransfers, false)
	if b.VATAmount != 107_50 {
		t.Fatalf("expected vat of 10750 kobo, got %d", b.VATAmount)
	}
	if b.InterbankFee != 0 {
		t.Fatalf("expected no interbank fee below threshold, got %d", b.InterbankFee)
	}
	if !b.Taxed || b.Total != 107_50 {
		t.Fatalf("unexpected breakdown: %+v", b)
	}
}

func TestCalculateFeeFreeAllowance(t *testing.T) {
	for count := 0; count < FreeDailyTransfers; count++ {
		b := CalculateFee(1000_00, count, false)
		if b.VATAmount != 0 {
			t.Fatalf("count %d: expected no vat within free allowance, got %d", count, b.VATAmount)
		}
	}
}

func TestCalculateFeeInterbankThreshold(t *testing.T) {
	below := CalculateFee(InterbankFeeThreshold-1, 0, false)
	if below.InterbankFee != 0 {
		t.Fatalf("expected no interbank fee below threshold, got %d", below.InterbankFee)
	}
	at := CalculateFee(InterbankFeeThreshold, 0, false)
	if at.InterbankFee != InterbankFee {
		t.Fatalf("expected interbank fee of %d at threshold, got %d", InterbankFee, at.InterbankFee)
	}
	if at.VATAmount != 0 {
		t.Fatalf("expected no vat within free allowance, got %d", at.VATAmount)
	}
}

func TestCalculateFeeAdditive(t *testing.T) {
	b := CalculateFee(InterbankFeeThreshold, FreeDailyTransfers, false)
	wantVAT := int64(107_500)
	if b.VATAmount != wantVAT {
		t.Fatalf("expected vat %d, got %d", wantVAT, b.VATAmount)
	}
	if b.Total != wantVAT+InterbankFee {
		t.Fatalf("expected total %d, got %d", wantVAT+InterbankFee, b.Total)
	}
}

func TestCalculateFeeSameBankExempt(t *testing.T) {
	b := CalculateFee(InterbankFeeThreshold*10, 100, true)
	if b.Taxed || b.Total != 0 || b.VATAmount != 0 || b.InterbankFee != 0 {
		t.Fatalf("same-bank transfer must be fee-exempt, got %+v", b)
	}
}

func TestFreeTransfersLeftClampsAtZero(t *testing.T) {
	if got := FreeTransfersLeft(0); got != FreeDailyTransfers {
		t.Fatalf("expected %d, got %d", FreeDailyTransfers, got)
	}
	if got := FreeTransfersLeft(FreeDailyTransfers + 3); got != 0 {
		t.Fatalf("expected 0, got %d", got)
	}
}

func TestDailyDebitCountCachesWithinDay(t *testing.T) {
	counter := &stubDebitCounter{count: 3}
	e := NewEngine(counter)
	now := time.Date(2024, 6, 10, 14, 0, 0, 0, time.UTC)
	e.now = func() time.Time { return now }

	for i := 0; i < 3; i++ {
		count, err := e.DailyDebitCount(context.Background(), "user_1")
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if count != 3 {
			t.Fatalf("expected count 3, got %d", count)
		}
	}
	if counter.calls != 1 {
		t.Fatalf("expected one store recount, got %d", counter.calls)
	}
}

func TestDailyDebitCountInvalidatesAtDayRollover(t *testing.T) {
	counter := &stubDebitCounter{count: 4}
	e := NewEngine(counter)
	now := time.Date(2024, 6, 10, 23, 50, 0, 0, time.UTC)
	e.now = func() time.Time { return now }

	if _, err := e.DailyDebitCount(context.Background(), "user_1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	counter.count = 0
	now = now.Add(20 * time.Minute) // past midnight

	count, err := e.DailyDebitCount(context.Background(), "user_1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 0 {
		t.Fatalf("expected fresh count 0 after rollover, got %d", count)
	}
	if counter.calls != 2 {
		t.Fatalf("expected recount after rollover, got %d calls", counter.calls)
	}
}

func TestIncrementDebitCountAdvancesCache(t *testing.T) {
	counter := &stubDebitCounter{count: 2}
	e := NewEngine(counter)
	now := time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC)
	e.now = func() time.Time { return now }

	if _, err := e.DailyDebitCount(context.Background(), "user_1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	e.IncrementDebitCount("user_1")

	count, err := e.DailyDebitCount(context.Background(), "user_1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 3 {
		t.Fatalf("expected incremented count 3, got %d", count)
	}
	if counter.calls != 1 {
		t.Fatalf("increment must not trigger a recount, got %d calls", counter.calls)
	}
}

func TestIncrementDebitCountColdCacheIsNoop(t *testing.T) {
	counter := &stubDebitCounter{count: 5}
	e := NewEngine(counter)
	now := time.Date(2024, 6, 10, 9, 0, 0, 0, time.UTC)
	e.now = func() time.Time { return now }

	e.IncrementDebitCount("user_1")

	count, err := e.DailyDebitCount(context.Background(), "user_1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if count != 5 {
		t.Fatalf("expected store count 5, got %d", count)
	}
}
