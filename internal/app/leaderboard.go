package app

import (
	"sort"

	"live-quiz-service/internal/domain"
)

// Leaderboard ranks players by score, highest first. Equal scores keep roster
// (join) order.
func Leaderboard(players []domain.Player) []domain.LeaderboardEntry {
	ranked := rankPlayers(players)
	entries := make([]domain.LeaderboardEntry, 0, len(ranked))
	for _, p := range ranked {
		entries = append(entries, domain.LeaderboardEntry{Username: p.Username, Score: p.Score})
	}
	return entries
}

// FinalStandings is Leaderboard with explicit 1-based ranks.
func FinalStandings(players []domain.Player) []domain.RankedEntry {
	ranked := rankPlayers(players)
	entries := make([]domain.RankedEntry, 0, len(ranked))
	for i, p := range ranked {
		entries = append(entries, domain.RankedEntry{
			UserID:   p.UserID,
			Username: p.Username,
			Score:    p.Score,
			Rank:     i + 1,
		})
	}
	return entries
}

func rankPlayers(players []domain.Player) []domain.Player {
	ranked := append([]domain.Player(nil), players...)
	sort.SliceStable(ranked, func(i, j int) bool {
		return ranked[i].Score > ranked[j].Score
	})
	return ranked
}
