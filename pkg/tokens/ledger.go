package tokens

import (
	"sync"

	"github.com/devagent-ai/devagent/pkg/models"
)

// DefaultLedgerEntries is how many recent entries NewLedger keeps.
const DefaultLedgerEntries = 500

// Ledger is the running total of token usage for display. It is never
// consulted for enforcement; budgets live in pkg/budget. The total covers
// every tracked entry while only the most recent ones are retained.
type Ledger struct {
	mu      sync.Mutex
	limit   int
	total   int
	entries []models.TokenUsage
}

// NewLedger returns an empty ledger keeping DefaultLedgerEntries entries.
func NewLedger() *Ledger {
	return NewLedgerWithLimit(DefaultLedgerEntries)
}

// NewLedgerWithLimit returns an empty ledger keeping at most limit recent
// entries. A limit below 1 is treated as 1.
func NewLedgerWithLimit(limit int) *Ledger {
	return &Ledger{limit: max(limit, 1)}
}

// Track records one usage entry, evicting the oldest once the window is full.
func (l *Ledger) Track(u models.TokenUsage) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.total += u.TotalTokens
	if len(l.entries) == l.limit {
		copy(l.entries, l.entries[1:])
		l.entries[len(l.entries)-1] = u
		return
	}
	l.entries = append(l.entries, u)
}

// Total returns the sum of TotalTokens over every entry tracked since the
// last reset, including evicted ones.
func (l *Ledger) Total() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.total
}

// Entries returns a copy of the retained entries in arrival order.
func (l *Ledger) Entries() []models.TokenUsage {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]models.TokenUsage, len(l.entries))
	copy(out, l.entries)
	return out
}

// Reset drops every entry and zeroes the total.
func (l *Ledger) Reset() {
	l.mu.Lock()
	l.entries = nil
	l.total = 0
	l.mu.Unlock()
}
