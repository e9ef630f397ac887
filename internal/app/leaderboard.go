package app

import (
	"sort"

	"classquiz-service/internal/domain"
)

// ProjectLeaderboard ranks players by score desc, then correct answers desc, then player id asc.
// It never mutates its input and holds no state, so it is safe to call on every read.
func ProjectLeaderboard(roomID string, players []domain.Player) domain.Leaderboard {
	ranked := make([]domain.Player, len(players))
	copy(ranked, players)

	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].Score != ranked[j].Score {
			return ranked[i].Score > ranked[j].Score
		}
		if ranked[i].CorrectAnswers != ranked[j].CorrectAnswers {
			return ranked[i].CorrectAnswers > ranked[j].CorrectAnswers
		}
		return ranked[i].ID < ranked[j].ID
	})

	entries := make([]domain.LeaderboardEntry, 0, len(ranked))
	for i, p := range ranked {
		entries = append(entries, domain.LeaderboardEntry{
			Rank:           i + 1,
			PlayerID:       p.ID,
			UserID:         p.UserID,
			DisplayName:    p.DisplayName,
			Score:          p.Score,
			CorrectAnswers: p.CorrectAnswers,
		})
	}
	return domain.Leaderboard{RoomID: roomID, Entries: entries}
}
