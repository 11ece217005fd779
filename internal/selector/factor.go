package selector

import (
	"context"
	"fmt"
	"sort"
	"time"

	"trader/types"
)

// Factor produces per security values over time. MoveOn makes everything up
// to and including to visible; Result never contains rows after the last
// MoveOn.
type Factor interface {
	Name() string
	MoveOn(ctx context.Context, to time.Time) error
	Result() []types.FactorScore
}

// ScoreSource loads stored factor rows with after < timestamp <= upTo.
type ScoreSource interface {
	FactorScores(ctx context.Context, factor string, level types.Level, after, upTo time.Time) ([]types.FactorScore, error)
}

// TableFactor replays precomputed rows. Rows come either from memory or are
// pulled from a ScoreSource as the factor moves on.
type TableFactor struct {
	name   string
	level  types.Level
	source ScoreSource

	pending  []types.FactorScore
	visible  []types.FactorScore
	loadedTo time.Time
}

func NewTableFactor(name string, level types.Level, rows []types.FactorScore) *TableFactor {
	pending := append([]types.FactorScore(nil), rows...)
	sort.SliceStable(pending, func(i, j int) bool { return pending[i].Timestamp.Before(pending[j].Timestamp) })
	return &TableFactor{name: name, level: level, pending: pending}
}

// NewStoredFactor reads the rows of factor from src on every MoveOn. Stored
// 1d rows meant for an intraday run are stamped at the session close, see
// TargetSelector.Candidates.
func NewStoredFactor(name string, level types.Level, src ScoreSource) *TableFactor {
	return &TableFactor{name: name, level: level, source: src}
}

func (f *TableFactor) Name() string { return f.name }

func (f *TableFactor) MoveOn(ctx context.Context, to time.Time) error {
	if f.source != nil && to.After(f.loadedTo) {
		rows, err := f.source.FactorScores(ctx, f.name, f.level, f.loadedTo, to)
		if err != nil {
			return fmt.Errorf("factor %s: %w", f.name, err)
		}
		f.loadedTo = to
		f.pending = append(f.pending, rows...)
		sort.SliceStable(f.pending, func(i, j int) bool { return f.pending[i].Timestamp.Before(f.pending[j].Timestamp) })
	}

	n := 0
	for n < len(f.pending) && !f.pending[n].Timestamp.After(to) {
		n++
	}
	f.visible = append(f.visible, f.pending[:n]...)
	f.pending = f.pending[n:]
	return nil
}

func (f *TableFactor) Result() []types.FactorScore {
	return f.visible
}
