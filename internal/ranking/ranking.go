// Package ranking assigns ordinal ranks from scores.
//
// Ranks are 1-based positions after a stable descending sort. Ties are not
// broken: equal scores keep input order and receive adjacent, distinct ranks.
// A rank of zero means "never ranked" and never produces a Change.
package ranking

import (
	"sort"

	"participation-tracker/internal/domain"
)

// Scope restricts a recompute. An empty SectionID ranks every student; an
// empty ClassID skips the per-class ranking.
type Scope struct {
	SectionID string
	ClassID   string
}

func (s Scope) includes(student *domain.Student) bool {
	return s.SectionID == "" || student.InSection(s.SectionID)
}

// Change reports a rank move. ClassID is empty for the global ranking.
type Change struct {
	StudentID string
	ClassID   string
	OldRank   int
	NewRank   int
}

// Recompute rewrites Rank and the scoped ClassRecord rank in place and returns
// the changes for students that previously held a nonzero, different rank.
// Students outside the scope keep their previous ranks.
func Recompute(students []*domain.Student, scope Scope) []Change {
	inScope := make([]*domain.Student, 0, len(students))
	for _, s := range students {
		if scope.includes(s) {
			inScope = append(inScope, s)
		}
	}

	sort.SliceStable(inScope, func(i, j int) bool {
		return inScope[i].TotalScore > inScope[j].TotalScore
	})
	global := positions(inScope)

	var class map[string]int
	if scope.ClassID != "" {
		holders := make([]*domain.Student, 0, len(inScope))
		for _, s := range inScope {
			if _, ok := s.ClassRecords[scope.ClassID]; ok {
				holders = append(holders, s)
			}
		}
		sort.SliceStable(holders, func(i, j int) bool {
			return holders[i].ClassRecords[scope.ClassID].TotalScore > holders[j].ClassRecords[scope.ClassID].TotalScore
		})
		class = positions(holders)
	}

	var changes []Change
	for _, s := range students {
		if !scope.includes(s) {
			continue
		}

		if rank, ok := class[s.ID]; ok {
			rec := s.ClassRecords[scope.ClassID]
			if rec.Rank != 0 && rec.Rank != rank {
				changes = append(changes, Change{StudentID: s.ID, ClassID: scope.ClassID, OldRank: rec.Rank, NewRank: rank})
			}
			rec.Rank = rank
			s.ClassRecords[scope.ClassID] = rec
		}

		rank := global[s.ID]
		if s.Rank != 0 && s.Rank != rank {
			changes = append(changes, Change{StudentID: s.ID, OldRank: s.Rank, NewRank: rank})
		}
		s.Rank = rank
	}
	return changes
}

func positions(sorted []*domain.Student) map[string]int {
	out := make(map[string]int, len(sorted))
	for i, s := range sorted {
		out[s.ID] = i + 1
	}
	return out
}

// Board builds a leaderboard from already-ranked students. Global entries
// cover the section scope; class entries cover holders of a record for
// scope.ClassID.
func Board(students []domain.Student, scope Scope) (global, class []domain.LeaderboardEntry) {
	for i := range students {
		s := &students[i]
		if !scope.includes(s) {
			continue
		}
		global = append(global, domain.LeaderboardEntry{
			StudentID:          s.ID,
			DisplayName:        s.FullName(),
			Rank:               s.Rank,
			TotalScore:         s.TotalScore,
			ParticipationCount: s.ParticipationCount,
		})
		if scope.ClassID == "" {
			continue
		}
		if rec, ok := s.ClassRecords[scope.ClassID]; ok {
			class = append(class, domain.LeaderboardEntry{
				StudentID:          s.ID,
				DisplayName:        s.FullName(),
				Rank:               rec.Rank,
				TotalScore:         rec.TotalScore,
				ParticipationCount: rec.ParticipationCount,
			})
		}
	}
	byRank := func(entries []domain.LeaderboardEntry) {
		sort.SliceStable(entries, func(i, j int) bool {
			return unrankedLast(entries[i].Rank) < unrankedLast(entries[j].Rank)
		})
	}
	byRank(global)
	byRank(class)
	return global, class
}

func unrankedLast(rank int) int {
	if rank == 0 {
		return int(^uint(0) >> 1)
	}
	return rank
}
