package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"classquiz-service/internal/domain"
)

// CoinLedger grants coins. Implementations must treat key as an idempotency key.
type CoinLedger interface {
	Grant(ctx context.Context, userID string, amount int, key string) error
}

// CardLedger grants cards. Implementations must treat key as an idempotency key.
type CardLedger interface {
	GrantCard(ctx context.Context, userID, cardID, key string) error
}

// Distributor pays end-of-room rewards at most once per room.
type Distributor struct {
	coins  CoinLedger
	cards  CardLedger
	logger *slog.Logger
}

func NewDistributor(coins CoinLedger, cards CardLedger, logger *slog.Logger) *Distributor {
	if logger == nil {
		logger = slog.Default()
	}
	return &Distributor{coins: coins, cards: cards, logger: logger}
}

// Distribute computes the final leaderboard and applies the room's reward.
// On any ledger failure the room stays undistributed; a retry re-sends every grant with the same
// idempotency keys, so ranks that already succeeded are not paid twice.
func (d *Distributor) Distribute(ctx context.Context, room *Room) (domain.Distribution, error) {
	room.payoutMu.Lock()
	defer room.payoutMu.Unlock()

	state := room.State()
	if state.Status != domain.RoomFinished {
		return domain.Distribution{}, fmt.Errorf("%w: rewards require a finished room", domain.ErrInvalidStateTransition)
	}
	if state.RewardsDistributed {
		return domain.Distribution{}, domain.ErrAlreadyDistributed
	}

	// Players are frozen once the room is finished, so this is the final ranking.
	board := room.Leaderboard()
	dist := domain.Distribution{
		RoomID:      state.ID,
		RewardType:  state.Reward.Type,
		Grants:      planGrants(state, board),
		Leaderboard: board,
	}
	if state.Reward.Type == domain.RewardExternal {
		dist.ExternalDescription = state.Reward.ExternalDescription
	}

	var failures []error
	for _, grant := range dist.Grants {
		if err := d.apply(ctx, grant); err != nil {
			d.logger.Warn("ledger grant failed", "room_id", state.ID, "rank", grant.Rank, "user_id", grant.UserID, "error", err)
			failures = append(failures, fmt.Errorf("rank %d: %w", grant.Rank, err))
			continue
		}
		room.markRewarded(grant.PlayerID)
	}
	if len(failures) > 0 {
		return dist, fmt.Errorf("%w: %w", domain.ErrLedgerGrantFailed, errors.Join(failures...))
	}

	room.markDistributed()
	d.logger.Info("rewards distributed", "room_id", state.ID, "reward", state.Reward.Type, "grants", len(dist.Grants))
	return dist, nil
}

func (d *Distributor) apply(ctx context.Context, grant domain.Grant) error {
	if grant.CardID != "" {
		if d.cards == nil {
			return errors.New("no card ledger configured")
		}
		return d.cards.GrantCard(ctx, grant.UserID, grant.CardID, grant.IdempotencyKey)
	}
	if d.coins == nil {
		return errors.New("no coin ledger configured")
	}
	return d.coins.Grant(ctx, grant.UserID, grant.Coins, grant.IdempotencyKey)
}

// planGrants maps the reward config onto the ranking. Zero-coin ranks are skipped.
func planGrants(state domain.Room, board domain.Leaderboard) []domain.Grant {
	var grants []domain.Grant
	switch state.Reward.Type {
	case domain.RewardCoins:
		for _, entry := range board.Entries {
			if entry.Rank > 3 {
				break
			}
			amount := state.Reward.CoinsForRank(entry.Rank)
			if amount <= 0 {
				continue
			}
			grants = append(grants, domain.Grant{
				Rank:           entry.Rank,
				PlayerID:       entry.PlayerID,
				UserID:         entry.UserID,
				Coins:          amount,
				IdempotencyKey: domain.GrantKey(state.ID, entry.Rank),
			})
		}
	case domain.RewardCard:
		if len(board.Entries) > 0 {
			winner := board.Entries[0]
			grants = append(grants, domain.Grant{
				Rank:           winner.Rank,
				PlayerID:       winner.PlayerID,
				UserID:         winner.UserID,
				CardID:         state.Reward.CardID,
				IdempotencyKey: domain.GrantKey(state.ID, winner.Rank),
			})
		}
	}
	return grants
}
