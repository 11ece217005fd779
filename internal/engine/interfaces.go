package engine

import (
	"context"
	"time"

	"trader/types"
)

// Selector computes the candidates of one level. Advance ingests data up to
// a timestamp; Candidates must return the same scores for a timestamp until
// the next Advance.
type Selector interface {
	Advance(ctx context.Context, to time.Time) error
	Candidates(ts time.Time) map[types.SecurityID]float64
}

// SignalListener receives every trading signal once.
type SignalListener interface {
	OnTradingSignal(signal types.TradingSignal) error
}

// Account is the accounting collaborator. The trader only reads Snapshot;
// the hooks are side effects owned by the account.
type Account interface {
	SignalListener
	OnSessionOpen(ts time.Time) error
	OnSessionClose(ts time.Time) error
	Snapshot() types.AccountSnapshot
}

// Finisher is implemented by accounts that summarise the run once the clock
// is exhausted.
type Finisher interface {
	OnFinish(ts time.Time) error
}

// RunRecorder persists run metadata before the loop starts.
type RunRecorder interface {
	RecordRun(ctx context.Context, meta types.RunMeta) error
}

// DecisionRanker turns a level's raw candidates into its target list.
type DecisionRanker interface {
	Rank(level types.Level, ts time.Time, candidates map[types.SecurityID]float64, limit int) []types.SecurityID
}
