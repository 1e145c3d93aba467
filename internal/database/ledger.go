// internal/database/ledger.go
package database

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jason-s-yu/cardclash/internal/models"
	"github.com/jason-s-yu/cardclash/internal/rating"
)

// ErrInsufficientFunds is returned when an entry fee exceeds the balance.
var ErrInsufficientFunds = errors.New("insufficient funds")

// ErrAccountNotFound is returned for an address with no ledger row.
var ErrAccountNotFound = errors.New("account not found")

// ErrNoMatchKey is returned for a movement or result without a match key.
var ErrNoMatchKey = errors.New("missing match key")

// Ledger entry kinds. (match key, address, kind) is unique, which makes every
// movement idempotent per battle. The match key is the room's storage key,
// never its code.
const (
	KindEntryFee = "entry_fee"
	KindReward   = "reward"
	KindRefund   = "refund"
)

// Fees are the amounts moved per battle. A zero amount moves nothing.
type Fees struct {
	StartingCoins int64
	RankedEntry   int64
	RankedReward  int64
	CasualEntry   int64
	CasualReward  int64
}

var DefaultFees = Fees{
	StartingCoins: 100,
	RankedEntry:   10,
	RankedReward:  18,
}

func (f Fees) entry(mode models.Mode) int64 {
	if mode == models.ModeRanked {
		return f.RankedEntry
	}
	return f.CasualEntry
}

func (f Fees) reward(mode models.Mode) int64 {
	if mode == models.ModeRanked {
		return f.RankedReward
	}
	return f.CasualReward
}

// Ledger keeps balances, fee movements, match results and ratings in Postgres.
type Ledger struct {
	pool *pgxpool.Pool
	fees Fees
}

func NewLedger(pool *pgxpool.Pool, fees Fees) *Ledger {
	return &Ledger{pool: pool, fees: fees}
}

func (l *Ledger) ensureAccountTx(ctx context.Context, tx pgx.Tx, address string) error {
	q := `
		INSERT INTO accounts (address, coins, elo_1v1, phi_1v1, sigma_1v1)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (address) DO NOTHING
	`
	_, err := tx.Exec(ctx, q, address, l.fees.StartingCoins, rating.DefaultElo, rating.DefaultPhi, rating.DefaultSigma)
	return err
}

// insertEntryTx records a movement and reports false when it already happened.
func insertEntryTx(ctx context.Context, tx pgx.Tx, address, matchKey, kind string, amount int64) (bool, error) {
	if matchKey == "" {
		return false, ErrNoMatchKey
	}
	id, err := uuid.NewRandom()
	if err != nil {
		return false, err
	}
	tag, err := tx.Exec(ctx, `
		INSERT INTO ledger_entries (id, address, match_key, kind, amount)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (match_key, address, kind) DO NOTHING
	`, id, address, matchKey, kind, amount)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// ChargeEntryFee debits the mode's entry fee once per match key and player.
func (l *Ledger) ChargeEntryFee(ctx context.Context, matchKey, player string, mode models.Mode) error {
	fee := l.fees.entry(mode)
	if fee <= 0 {
		return nil
	}
	err := pgx.BeginTxFunc(ctx, l.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		if err := l.ensureAccountTx(ctx, tx, player); err != nil {
			return err
		}
		fresh, err := insertEntryTx(ctx, tx, player, matchKey, KindEntryFee, -fee)
		if err != nil || !fresh {
			return err
		}
		tag, err := tx.Exec(ctx, `UPDATE accounts SET coins = coins - $1 WHERE address = $2 AND coins >= $1`, fee, player)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return ErrInsufficientFunds
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to charge entry fee: %w", err)
	}
	return nil
}

// ClaimWinReward credits the reward for a win, or refunds the entry fee for a
// tie, once per match key and player.
func (l *Ledger) ClaimWinReward(ctx context.Context, matchKey, player string, mode models.Mode, tie bool) error {
	kind, amount := KindReward, l.fees.reward(mode)
	if tie {
		kind, amount = KindRefund, l.fees.entry(mode)
	}
	if amount <= 0 {
		return nil
	}
	err := pgx.BeginTxFunc(ctx, l.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		if err := l.ensureAccountTx(ctx, tx, player); err != nil {
			return err
		}
		fresh, err := insertEntryTx(ctx, tx, player, matchKey, kind, amount)
		if err != nil || !fresh {
			return err
		}
		_, err = tx.Exec(ctx, `UPDATE accounts SET coins = coins + $1 WHERE address = $2`, amount, player)
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to claim reward: %w", err)
	}
	return nil
}

// RecordMatchResult stores one player's row. When the second row of a ranked
// battle arrives both ratings are updated in the same transaction.
func (l *Ledger) RecordMatchResult(ctx context.Context, result models.MatchResult) error {
	err := pgx.BeginTxFunc(ctx, l.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		return l.recordTx(ctx, tx, result)
	})
	if err != nil {
		return fmt.Errorf("failed to record match result: %w", err)
	}
	return nil
}

// RecordBatch stores several results in one transaction.
func (l *Ledger) RecordBatch(ctx context.Context, results []models.MatchResult) error {
	err := pgx.BeginTxFunc(ctx, l.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		for _, r := range results {
			if err := l.recordTx(ctx, tx, r); err != nil {
				return fmt.Errorf("room %s player %s: %w", r.RoomID, r.Player, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to record match batch: %w", err)
	}
	return nil
}

func (l *Ledger) recordTx(ctx context.Context, tx pgx.Tx, r models.MatchResult) error {
	if r.MatchKey == "" {
		return ErrNoMatchKey
	}
	for _, addr := range []string{r.Player, r.Opponent} {
		if err := l.ensureAccountTx(ctx, tx, addr); err != nil {
			return err
		}
	}
	// lock both rows in a fixed order so the two halves of a room serialize
	accounts, err := lockAccountsTx(ctx, tx, r.Player, r.Opponent)
	if err != nil {
		return err
	}

	tag, err := tx.Exec(ctx, `
		INSERT INTO match_results (
			match_key, room_id, player, opponent, mode, side, winner,
			player_power, opponent_power, fingerprint, resolved_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		ON CONFLICT (match_key, player) DO NOTHING
	`, r.MatchKey, r.RoomID, r.Player, r.Opponent, string(r.Mode), string(r.Side), string(r.Winner),
		r.PlayerPower, r.OppPower, r.Fingerprint, r.ResolvedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 || r.Mode != models.ModeRanked {
		return nil
	}

	var pair int
	if err := tx.QueryRow(ctx, `SELECT COUNT(*) FROM match_results WHERE match_key = $1`, r.MatchKey).Scan(&pair); err != nil {
		return err
	}
	if pair != 2 {
		return nil
	}

	me, them := accounts[r.Player], accounts[r.Opponent]
	newMe, newThem := rating.Update1v1(me, them, rating.ScoreFor(r.Side, r.Winner))
	return commit1v1Tx(ctx, tx, r.MatchKey, []models.Account{me, them}, []models.Account{newMe, newThem})
}

func lockAccountsTx(ctx context.Context, tx pgx.Tx, addrs ...string) (map[string]models.Account, error) {
	rows, err := tx.Query(ctx, `
		SELECT address, coins, elo_1v1, phi_1v1, sigma_1v1
		FROM accounts
		WHERE address = ANY($1)
		ORDER BY address
		FOR UPDATE
	`, addrs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]models.Account, len(addrs))
	for rows.Next() {
		var a models.Account
		if err := rows.Scan(&a.Address, &a.Coins, &a.Elo, &a.Phi, &a.Sigma); err != nil {
			return nil, err
		}
		out[a.Address] = a
	}
	return out, rows.Err()
}

func commit1v1Tx(ctx context.Context, tx pgx.Tx, matchKey string, before, after []models.Account) error {
	for i := range after {
		if _, err := tx.Exec(ctx,
			`UPDATE accounts SET elo_1v1 = $1, phi_1v1 = $2, sigma_1v1 = $3 WHERE address = $4`,
			after[i].Elo, after[i].Phi, after[i].Sigma, after[i].Address,
		); err != nil {
			return err
		}
		id, err := uuid.NewRandom()
		if err != nil {
			return err
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO ratings (id, address, match_key, old_rating, new_rating, rating_mode)
			VALUES ($1, $2, $3, $4, $5, '1v1')
		`, id, after[i].Address, matchKey, before[i].Elo, after[i].Elo); err != nil {
			return err
		}
	}
	return nil
}

// GetAccount returns the ledger row for address.
func (l *Ledger) GetAccount(ctx context.Context, address string) (*models.Account, error) {
	var a models.Account
	err := l.pool.QueryRow(ctx, `
		SELECT address, coins, elo_1v1, phi_1v1, sigma_1v1 FROM accounts WHERE address = $1
	`, address).Scan(&a.Address, &a.Coins, &a.Elo, &a.Phi, &a.Sigma)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrAccountNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get account: %w", err)
	}
	return &a, nil
}

// MatchHistory lists a player's results, newest first.
func (l *Ledger) MatchHistory(ctx context.Context, address string, limit int) ([]models.MatchResult, error) {
	rows, err := l.pool.Query(ctx, `
		SELECT match_key, room_id, player, opponent, mode, side, winner,
		       player_power, opponent_power, fingerprint, resolved_at
		FROM match_results
		WHERE player = $1
		ORDER BY resolved_at DESC
		LIMIT $2
	`, address, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list match history: %w", err)
	}
	defer rows.Close()

	var out []models.MatchResult
	for rows.Next() {
		var r models.MatchResult
		var mode, side, winner string
		if err := rows.Scan(&r.MatchKey, &r.RoomID, &r.Player, &r.Opponent, &mode, &side, &winner,
			&r.PlayerPower, &r.OppPower, &r.Fingerprint, &r.ResolvedAt); err != nil {
			return nil, err
		}
		r.Mode, r.Side, r.Winner = models.Mode(mode), models.Side(side), models.Side(winner)
		out = append(out, r)
	}
	return out, rows.Err()
}
