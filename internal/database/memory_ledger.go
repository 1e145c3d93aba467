// internal/database/memory_ledger.go
package database

import (
	"context"
	"sort"
	"sync"

	"github.com/jason-s-yu/cardclash/internal/models"
	"github.com/jason-s-yu/cardclash/internal/rating"
)

// MemoryLedger mirrors Ledger in process memory for development servers and
// tests that have no Postgres.
type MemoryLedger struct {
	mu       sync.Mutex
	fees     Fees
	accounts map[string]*models.Account
	entries  map[string]struct{}             // match key|address|kind
	results  map[string][]models.MatchResult // match key -> rows
}

func NewMemoryLedger(fees Fees) *MemoryLedger {
	return &MemoryLedger{
		fees:     fees,
		accounts: make(map[string]*models.Account),
		entries:  make(map[string]struct{}),
		results:  make(map[string][]models.MatchResult),
	}
}

func (m *MemoryLedger) accountUnsafe(address string) *models.Account {
	a, ok := m.accounts[address]
	if !ok {
		acct := rating.NewAccount(address)
		acct.Coins = m.fees.StartingCoins
		a = &acct
		m.accounts[address] = a
	}
	return a
}

func entryKey(matchKey, address, kind string) string {
	return matchKey + "|" + address + "|" + kind
}

func (m *MemoryLedger) once(matchKey, address, kind string) bool {
	key := entryKey(matchKey, address, kind)
	if _, done := m.entries[key]; done {
		return false
	}
	m.entries[key] = struct{}{}
	return true
}

func (m *MemoryLedger) ChargeEntryFee(_ context.Context, matchKey, player string, mode models.Mode) error {
	fee := m.fees.entry(mode)
	if fee <= 0 {
		return nil
	}
	if matchKey == "" {
		return ErrNoMatchKey
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	a := m.accountUnsafe(player)
	key := entryKey(matchKey, player, KindEntryFee)
	if _, done := m.entries[key]; done {
		return nil
	}
	if a.Coins < fee {
		return ErrInsufficientFunds
	}
	m.entries[key] = struct{}{}
	a.Coins -= fee
	return nil
}

func (m *MemoryLedger) ClaimWinReward(_ context.Context, matchKey, player string, mode models.Mode, tie bool) error {
	kind, amount := KindReward, m.fees.reward(mode)
	if tie {
		kind, amount = KindRefund, m.fees.entry(mode)
	}
	if amount <= 0 {
		return nil
	}
	if matchKey == "" {
		return ErrNoMatchKey
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	a := m.accountUnsafe(player)
	if m.once(matchKey, player, kind) {
		a.Coins += amount
	}
	return nil
}

func (m *MemoryLedger) RecordMatchResult(_ context.Context, r models.MatchResult) error {
	if r.MatchKey == "" {
		return ErrNoMatchKey
	}
	m.mu.Lock()
	defer m.mu.Unlock()

	rows := m.results[r.MatchKey]
	for _, existing := range rows {
		if existing.Player == r.Player {
			return nil
		}
	}
	m.results[r.MatchKey] = append(rows, r)
	if r.Mode != models.ModeRanked || len(m.results[r.MatchKey]) != 2 {
		return nil
	}
	me, them := m.accountUnsafe(r.Player), m.accountUnsafe(r.Opponent)
	*me, *them = rating.Update1v1(*me, *them, rating.ScoreFor(r.Side, r.Winner))
	return nil
}

func (m *MemoryLedger) RecordBatch(ctx context.Context, results []models.MatchResult) error {
	for _, r := range results {
		if err := m.RecordMatchResult(ctx, r); err != nil {
			return err
		}
	}
	return nil
}

func (m *MemoryLedger) GetAccount(_ context.Context, address string) (*models.Account, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.accounts[address]
	if !ok {
		return nil, ErrAccountNotFound
	}
	c := *a
	return &c, nil
}

func (m *MemoryLedger) MatchHistory(_ context.Context, address string, limit int) ([]models.MatchResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []models.MatchResult
	for _, rows := range m.results {
		for _, r := range rows {
			if r.Player == address {
				out = append(out, r)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ResolvedAt.After(out[j].ResolvedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
