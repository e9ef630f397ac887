package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
)

// Ledger records coin and card grants in Postgres. ledger_grants is keyed by (kind, idempotency_key),
// so a replayed grant inserts nothing and leaves balances untouched.
type Ledger struct {
	pool *pgxpool.Pool
}

func NewLedger(pool *pgxpool.Pool) *Ledger {
	return &Ledger{pool: pool}
}

func (l *Ledger) Grant(ctx context.Context, userID string, amount int, key string) error {
	err := l.pool.BeginFunc(ctx, func(tx pgx.Tx) error {
		claimed, err := claim(ctx, tx, "coins", key, userID, amount, "")
		if err != nil || !claimed {
			return err
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO coin_balances (user_id, balance) VALUES ($1, $2)
			ON CONFLICT (user_id) DO UPDATE SET balance = coin_balances.balance + EXCLUDED.balance`,
			userID, amount)
		return err
	})
	if err != nil {
		return fmt.Errorf("grant coins: %w", err)
	}
	return nil
}

func (l *Ledger) GrantCard(ctx context.Context, userID, cardID, key string) error {
	err := l.pool.BeginFunc(ctx, func(tx pgx.Tx) error {
		claimed, err := claim(ctx, tx, "card", key, userID, 0, cardID)
		if err != nil || !claimed {
			return err
		}
		_, err = tx.Exec(ctx, `
			INSERT INTO user_cards (user_id, card_id, quantity) VALUES ($1, $2, 1)
			ON CONFLICT (user_id, card_id) DO UPDATE SET quantity = user_cards.quantity + 1`,
			userID, cardID)
		return err
	})
	if err != nil {
		return fmt.Errorf("grant card: %w", err)
	}
	return nil
}

// Balance returns the coin balance of a user.
func (l *Ledger) Balance(ctx context.Context, userID string) (int, error) {
	var balance int
	err := l.pool.QueryRow(ctx, `SELECT balance FROM coin_balances WHERE user_id=$1`, userID).Scan(&balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	return balance, err
}

// CardCount returns how many copies of cardID a user holds.
func (l *Ledger) CardCount(ctx context.Context, userID, cardID string) (int, error) {
	var quantity int
	err := l.pool.QueryRow(ctx, `SELECT quantity FROM user_cards WHERE user_id=$1 AND card_id=$2`, userID, cardID).Scan(&quantity)
	if errors.Is(err, pgx.ErrNoRows) {
		return 0, nil
	}
	return quantity, err
}

func claim(ctx context.Context, tx pgx.Tx, kind, key, userID string, amount int, cardID string) (bool, error) {
	tag, err := tx.Exec(ctx, `
		INSERT INTO ledger_grants (kind, idempotency_key, user_id, amount, card_id)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (kind, idempotency_key) DO NOTHING`,
		kind, key, userID, amount, cardID)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}
