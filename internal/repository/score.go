package repository

import (
	"context"
	"fmt"
	"time"

	"trader/types"
)

// FactorScores returns the stored rows of factor at level with
// after < timestamp <= upTo. A gap in the data is an empty result.
func (db *Database) FactorScores(ctx context.Context, factor string, level types.Level, after, upTo time.Time) ([]types.FactorScore, error) {
	rows, err := db.scores.ListFactorScores(ctx, ListFactorScoresParams{
		Factor: factor,
		Level:  level.String(),
		After:  after,
		UpTo:   upTo,
	})
	if err != nil {
		return nil, fmt.Errorf("factor scores %s: %w", factor, err)
	}
	scores := make([]types.FactorScore, 0, len(rows))
	for _, row := range rows {
		scores = append(scores, types.FactorScore{
			Factor:     factor,
			SecurityID: types.SecurityID(row.SecurityID),
			Level:      level,
			Timestamp:  row.Timestamp,
			Values:     row.Values,
		})
	}
	return scores, nil
}
