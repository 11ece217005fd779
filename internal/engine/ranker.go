package engine

import (
	"sort"
	"time"

	"trader/types"
)

const defaultLimit = 10

// ScoreRanker keeps the best scored candidates. Ties break on the security
// id so runs are reproducible.
type ScoreRanker struct{}

func (ScoreRanker) Rank(_ types.Level, _ time.Time, candidates map[types.SecurityID]float64, limit int) []types.SecurityID {
	if len(candidates) == 0 {
		return []types.SecurityID{}
	}
	ranked := make([]types.SecurityID, 0, len(candidates))
	for id := range candidates {
		ranked = append(ranked, id)
	}
	sort.Slice(ranked, func(i, j int) bool {
		si, sj := candidates[ranked[i]], candidates[ranked[j]]
		if si != sj {
			return si > sj
		}
		return ranked[i] < ranked[j]
	})
	if limit > 0 && len(ranked) > limit {
		ranked = ranked[:limit]
	}
	return ranked
}
