package redis

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// grantScript claims the idempotency key and applies the increment atomically.
// KEYS[1] claim key, KEYS[2] hash, ARGV[1] field, ARGV[2] increment.
var grantScript = redis.NewScript(`
if redis.call("SETNX", KEYS[1], "1") == 0 then
	return 0
end
redis.call("HINCRBY", KEYS[2], ARGV[1], ARGV[2])
return 1
`)

// Ledger keeps coin balances and card inventories in Redis hashes.
// Coins:  HINCRBY ledger:coins {userID} {amount}
// Cards:  HINCRBY ledger:cards:{userID} {cardID} 1
// Every grant first claims ledger:grant:{kind}:{key}, so replays are no-ops.
type Ledger struct {
	client *redis.Client
}

func NewLedger(client *redis.Client) *Ledger {
	return &Ledger{client: client}
}

func (l *Ledger) Grant(ctx context.Context, userID string, amount int, key string) error {
	err := grantScript.Run(ctx, l.client,
		[]string{claimKey("coins", key), "ledger:coins"},
		userID, amount,
	).Err()
	if err != nil {
		return fmt.Errorf("grant coins: %w", err)
	}
	return nil
}

func (l *Ledger) GrantCard(ctx context.Context, userID, cardID, key string) error {
	err := grantScript.Run(ctx, l.client,
		[]string{claimKey("card", key), cardsKey(userID)},
		cardID, 1,
	).Err()
	if err != nil {
		return fmt.Errorf("grant card: %w", err)
	}
	return nil
}

// Balance returns the coin balance of a user.
func (l *Ledger) Balance(ctx context.Context, userID string) (int, error) {
	n, err := l.client.HGet(ctx, "ledger:coins", userID).Int()
	if err == redis.Nil {
		return 0, nil
	}
	return n, err
}

// CardCount returns how many copies of cardID a user holds.
func (l *Ledger) CardCount(ctx context.Context, userID, cardID string) (int, error) {
	n, err := l.client.HGet(ctx, cardsKey(userID), cardID).Int()
	if err == redis.Nil {
		return 0, nil
	}
	return n, err
}

func claimKey(kind, key string) string {
	return "ledger:grant:" + kind + ":" + key
}

func cardsKey(userID string) string {
	return "ledger:cards:" + userID
}
