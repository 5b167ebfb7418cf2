/**
 * @description
 * Fee computation for outbound transfers. Two independent, additive charges:
 * a VAT-style percentage once the sender has used up the day's fee-free
 * debit allowance, and a flat inter-bank fee once the amount reaches the
 * routing threshold. Same-bank transfers pay nothing.
 *
 * Daily debit counts live in an in-process cache keyed by user and calendar
 * day. Entries from a previous day are ignored, so the counter effectively
 * resets at local midnight. On a miss the count is rebuilt from the ledger.
 *
 * All amounts are in kobo.
 */

package tax

import (
	"context"
	"sync"
	"time"
)

const (
	// VATRateBasisPoints is the percentage fee (10.75%) expressed in units
	// of 1/10000, so the kobo arithmetic stays in integers.
	VATRateBasisPoints = 1075

	// FreeDailyTransfers is the number of fee-free debits per user per day.
	FreeDailyTransfers = 5

	// InterbankFee is the flat routing fee in kobo (NGN 50.00).
	InterbankFee = 50_00

	// InterbankFeeThreshold is the amount in kobo (NGN 10,000.00) at which
	// the flat inter-bank fee starts to apply.
	InterbankFeeThreshold = 10_000_00
)

// Breakdown is the result of a fee computation for one transfer.
type Breakdown struct {
	VATAmount    int64 `json:"vatAmount"`
	InterbankFee int64 `json:"nibssAmount"`
	Total        int64 `json:"totalTax"`
	Taxed        bool  `json:"isTaxed"`
}

// DebitCounter is the slice of the ledger store the engine needs to rebuild
// a daily count on cache miss.
type DebitCounter interface {
	CountDebitTransactionsSince(ctx context.Context, userID string, since time.Time) (int, error)
}

type cacheEntry struct {
	count int
	day   time.Time
}

// counterCache holds per-user daily debit counts. It is valid only for the
// calendar day the entry was written; stale entries read as misses.
type counterCache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry
}

func newCounterCache() *counterCache {
	return &counterCache{entries: make(map[string]cacheEntry)}
}

func startOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func (c *counterCache) get(userID string, now time.Time) (int, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[userID]
	if !ok || !e.day.Equal(startOfDay(now)) {
		return 0, false
	}
	return e.count, true
}

func (c *counterCache) put(userID string, count int, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[userID] = cacheEntry{count: count, day: startOfDay(now)}
}

func (c *counterCache) increment(userID string, now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	day := startOfDay(now)
	e, ok := c.entries[userID]
	if !ok || !e.day.Equal(day) {
		// Unknown today; leave it to the next DailyDebitCount to rebuild.
		return
	}
	e.count++
	c.entries[userID] = e
}

// Engine computes fees and tracks per-user daily debit counts.
type Engine struct {
	counter DebitCounter
	cache   *counterCache
	now     func() time.Time
}

// NewEngine creates an engine backed by the given ledger counter.
func NewEngine(counter DebitCounter) *Engine {
	return &Engine{
		counter: counter,
		cache:   newCounterCache(),
		now:     time.Now,
	}
}

// DailyDebitCount returns the number of debits the user has made since local
// midnight, from cache when the cached value is from today.
func (e *Engine) DailyDebitCount(ctx context.Context, userID string) (int, error) {
	now := e.now()
	if count, ok := e.cache.get(userID, now); ok {
		return count, nil
	}
	count, err := e.counter.CountDebitTransactionsSince(ctx, userID, startOfDay(now))
	if err != nil {
		return 0, err
	}
	e.cache.put(userID, count, now)
	return count, nil
}

// IncrementDebitCount advances the cached counter after a debit commits, so
// back-to-back transfers in one day do not recount from the ledger.
func (e *Engine) IncrementDebitCount(userID string) {
	e.cache.increment(userID, e.now())
}

// FreeTransfersLeft reports how many fee-free debits remain today given the
// current count.
func FreeTransfersLeft(dailyCount int) int {
	left := FreeDailyTransfers - dailyCount
	if left < 0 {
		return 0
	}
	return left
}

// CalculateFee is a pure function of the amount, the sender's daily debit
// count, and whether the transfer stays within this bank. VAT is rounded
// half-up to the nearest kobo.
func CalculateFee(amount int64, dailyCount int, sameBank bool) Breakdown {
	if sameBank {
		return Breakdown{}
	}
	var b Breakdown
	if dailyCount >= FreeDailyTransfers {
		b.VATAmount = (amount*VATRateBasisPoints + 5000) / 10000
	}
	if amount >= InterbankFeeThreshold {
		b.InterbankFee = InterbankFee
	}
	b.Total = b.VATAmount + b.InterbankFee
	b.Taxed = b.Total > 0
	return b
}
