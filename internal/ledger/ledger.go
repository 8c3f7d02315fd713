package ledger

import (
	"fmt"
	"log/slog"
	"sync"
)

const (
	// DefaultTotalTokens is used when no persisted state exists yet.
	DefaultTotalTokens = 1000
)

// UsageStore persists ledger state between process runs.
type UsageStore interface {
	// LoadUsage returns the persisted used/total counters. found is false when
	// no state has been persisted yet.
	LoadUsage() (used int, total int, found bool, err error)
	SaveUsage(used int, total int) error
	LoadGeneratedCount() (int, error)
	SaveGeneratedCount(count int) error
}

// Snapshot is a consistent view of the ledger counters.
type Snapshot struct {
	Used      int `json:"used"`
	Available int `json:"available"`
	Total     int `json:"total"`
}

// TokenLedger is the shared quota counter mutated by every request attempt.
// All mutations are persisted through the store before they are visible to
// callers. Safe for concurrent use.
type TokenLedger struct {
	mu        sync.Mutex
	used      int
	total     int
	generated int
	store     UsageStore
}

// NewTokenLedger initializes the ledger from persisted state, falling back to
// totalDefault (or DefaultTotalTokens when non-positive) for a fresh store.
func NewTokenLedger(store UsageStore, totalDefault int) (*TokenLedger, error) {
	if store == nil {
		return nil, fmt.Errorf("usage store is required")
	}
	if totalDefault <= 0 {
		totalDefault = DefaultTotalTokens
	}

	used, total, found, err := store.LoadUsage()
	if err != nil {
		return nil, fmt.Errorf("failed to load persisted token usage: %w", err)
	}
	if !found {
		used = 0
		total = totalDefault
	}
	if total <= 0 {
		total = totalDefault
	}
	if used < 0 || used > total {
		slog.Warn("persisted token usage out of range, resetting", "used", used, "total", total)
		used = 0
	}

	generated, err := store.LoadGeneratedCount()
	if err != nil {
		return nil, fmt.Errorf("failed to load generated image count: %w", err)
	}

	return &TokenLedger{
		used:      used,
		total:     total,
		generated: generated,
		store:     store,
	}, nil
}

// TryDebit atomically checks and debits amount. It mutates state only when
// amount fits into the available balance, otherwise it is a no-op and returns
// false.
func (l *TokenLedger) TryDebit(amount int) bool {
	if amount <= 0 {
		return false
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if amount > l.total-l.used {
		return false
	}

	l.used += amount
	l.persistUsageLocked()
	return true
}

// Refund decreases used by amount. Callers must refund exactly what they
// debited; the counter is floored at zero to keep the conservation invariant
// intact even on misuse.
func (l *TokenLedger) Refund(amount int) {
	if amount <= 0 {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.used -= amount
	if l.used < 0 {
		slog.Warn("refund exceeded committed debits, flooring at zero", "amount", amount)
		l.used = 0
	}
	l.persistUsageLocked()
}

// Snapshot returns a consistent view of the counters.
func (l *TokenLedger) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()

	return Snapshot{
		Used:      l.used,
		Available: l.total - l.used,
		Total:     l.total,
	}
}

// Available returns the number of tokens that may still be debited.
func (l *TokenLedger) Available() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.total - l.used
}

// AddGenerated increases the persisted generated-image counter.
func (l *TokenLedger) AddGenerated(n int) {
	if n <= 0 {
		return
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	l.generated += n
	if err := l.store.SaveGeneratedCount(l.generated); err != nil {
		slog.Error("failed to persist generated image count", "error", err)
	}
}

// GeneratedCount returns the number of images produced so far.
func (l *TokenLedger) GeneratedCount() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.generated
}

func (l *TokenLedger) persistUsageLocked() {
	if err := l.store.SaveUsage(l.used, l.total); err != nil {
		// The in-memory counters stay authoritative for this process; the next
		// successful mutation re-persists the full state.
		slog.Error("failed to persist token usage", "error", err, "used", l.used, "total", l.total)
	}
}
