package memory

import (
	"context"
	"sync"
)

// Ledger is an in-memory coin and card ledger. Grants are deduplicated by idempotency key.
type Ledger struct {
	mu       sync.Mutex
	applied  map[string]struct{}
	balances map[string]int
	cards    map[string]map[string]int
	grants   int
}

func NewLedger() *Ledger {
	return &Ledger{
		applied:  make(map[string]struct{}),
		balances: make(map[string]int),
		cards:    make(map[string]map[string]int),
	}
}

// Grant adds amount coins to userID unless key was already applied.
func (l *Ledger) Grant(_ context.Context, userID string, amount int, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.claimLocked("coins:" + key) {
		return nil
	}
	l.balances[userID] += amount
	return nil
}

// GrantCard gives one copy of cardID to userID unless key was already applied.
func (l *Ledger) GrantCard(_ context.Context, userID, cardID, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if !l.claimLocked("card:" + key) {
		return nil
	}
	if l.cards[userID] == nil {
		l.cards[userID] = make(map[string]int)
	}
	l.cards[userID][cardID]++
	return nil
}

// Balance returns the coin balance of a user.
func (l *Ledger) Balance(userID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[userID]
}

// CardCount returns how many copies of cardID a user holds.
func (l *Ledger) CardCount(userID, cardID string) int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.cards[userID][cardID]
}

// Applied returns the number of distinct grants applied.
func (l *Ledger) Applied() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.grants
}

func (l *Ledger) claimLocked(key string) bool {
	if _, ok := l.applied[key]; ok {
		return false
	}
	l.applied[key] = struct{}{}
	l.grants++
	return true
}
