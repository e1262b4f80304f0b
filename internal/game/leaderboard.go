package game

import (
	"sort"

	"funquiz-service/internal/domain"
)

// DefaultLeaderboardSize is how many entries are shown by default.
const DefaultLeaderboardSize = 10

// BuildLeaderboard zips the contract's parallel address/score arrays and orders them by score,
// highest first. Ties keep the order returned by the contract. Extra elements in the longer array
// are ignored. A limit <= 0 keeps every entry.
func BuildLeaderboard(quizID int64, players []string, scores []int64, limit int) domain.Leaderboard {
	n := len(players)
	if len(scores) < n {
		n = len(scores)
	}
	entries := make([]domain.LeaderboardEntry, n)
	for i := 0; i < n; i++ {
		entries[i] = domain.LeaderboardEntry{Player: players[i], Score: scores[i]}
	}
	SortEntries(entries)
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return domain.Leaderboard{QuizID: quizID, Entries: entries}
}

// SortEntries sorts descending by score, stable on equal scores.
func SortEntries(entries []domain.LeaderboardEntry) {
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Score > entries[j].Score
	})
}
