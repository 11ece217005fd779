// Package selector computes per level candidate sets from factors. A
// TargetSelector is the engine's Selector: the trader advances it on every
// finished bar of its level and reads the candidates of that bar.
package selector

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"trader/types"
)

const DefaultThreshold = 0.8

var ErrNoFactors = errors.New("selector has no factors")

// TargetSelector keeps the securities that pass every must factor and whose
// summed score reaches the threshold. A must factor passes a security when
// all of its values are non zero; a score factor contributes the mean of its
// values. A security missing from any factor at a timestamp is dropped.
type TargetSelector struct {
	level     types.Level
	threshold float64
	must      []Factor
	score     []Factor
	log       zerolog.Logger

	results map[int64]map[types.SecurityID]float64
}

type Option func(*TargetSelector)

func WithThreshold(threshold float64) Option {
	return func(s *TargetSelector) { s.threshold = threshold }
}

func WithMustFactors(factors ...Factor) Option {
	return func(s *TargetSelector) { s.must = append(s.must, factors...) }
}

func WithScoreFactors(factors ...Factor) Option {
	return func(s *TargetSelector) { s.score = append(s.score, factors...) }
}

func WithLogger(log zerolog.Logger) Option {
	return func(s *TargetSelector) { s.log = log }
}

func New(level types.Level, opts ...Option) (*TargetSelector, error) {
	s := &TargetSelector{
		level:     level,
		threshold: DefaultThreshold,
		log:       zerolog.Nop(),
		results:   make(map[int64]map[types.SecurityID]float64),
	}
	for _, opt := range opts {
		opt(s)
	}
	if !level.Valid() {
		return nil, fmt.Errorf("selector: %w", types.ErrUnknownLevel)
	}
	if len(s.must) == 0 && len(s.score) == 0 {
		return nil, ErrNoFactors
	}
	return s, nil
}

func (s *TargetSelector) Level() types.Level { return s.level }

// Advance moves every factor on to to and recomputes the results.
func (s *TargetSelector) Advance(ctx context.Context, to time.Time) error {
	for _, f := range append(append([]Factor(nil), s.score...), s.must...) {
		if err := f.MoveOn(ctx, to); err != nil {
			return err
		}
	}
	s.run()
	s.log.Debug().
		Str("level", s.level.String()).
		Time("to", to).
		Int("candidates", len(s.results[to.UnixNano()])).
		Msg("selector advanced")
	return nil
}

// Candidates returns a copy of the scores at ts; nothing computed there
// yields an empty map. The lookup is exact, so factor rows must carry the
// timestamp the trader advances this level at. On an intraday clock a 1d
// level is advanced at the last session close in exchange time (15:00 for
// sh and sz), on a daily clock at the exchange midnight.
func (s *TargetSelector) Candidates(ts time.Time) map[types.SecurityID]float64 {
	out := make(map[types.SecurityID]float64)
	for id, score := range s.results[ts.UnixNano()] {
		out[id] = score
	}
	return out
}

func (s *TargetSelector) run() {
	var must, score map[int64]map[types.SecurityID]float64
	if len(s.must) > 0 {
		must = combine(s.must, func(values []float64) float64 {
			for _, v := range values {
				if v == 0 {
					return 0
				}
			}
			return 1
		}, func(acc, v float64) float64 {
			if acc != 0 && v != 0 {
				return 1
			}
			return 0
		})
	}
	if len(s.score) > 0 {
		score = combine(s.score, mean, func(acc, v float64) float64 { return acc + v })
	}

	results := make(map[int64]map[types.SecurityID]float64)
	keep := func(ts int64, id types.SecurityID, v float64) {
		if results[ts] == nil {
			results[ts] = make(map[types.SecurityID]float64)
		}
		results[ts][id] = v
	}
	switch {
	case must != nil && score != nil:
		for ts, scores := range score {
			for id, v := range scores {
				if must[ts][id] != 0 && v >= s.threshold {
					keep(ts, id, v)
				}
			}
		}
	case score != nil:
		for ts, scores := range score {
			for id, v := range scores {
				if v >= s.threshold {
					keep(ts, id, v)
				}
			}
		}
	default:
		for ts, passes := range must {
			for id, v := range passes {
				if v != 0 {
					keep(ts, id, 1)
				}
			}
		}
	}
	s.results = results
}

// combine folds the rows of every factor into one value per timestamp and
// security, keeping only keys present in all factors.
func combine(factors []Factor, reduce func([]float64) float64, fold func(acc, v float64) float64) map[int64]map[types.SecurityID]float64 {
	var acc map[int64]map[types.SecurityID]float64
	for i, f := range factors {
		cur := make(map[int64]map[types.SecurityID]float64)
		for _, row := range f.Result() {
			ts := row.Timestamp.UnixNano()
			if cur[ts] == nil {
				cur[ts] = make(map[types.SecurityID]float64)
			}
			cur[ts][row.SecurityID] = reduce(row.Values)
		}
		if i == 0 {
			acc = cur
			continue
		}
		for ts, ids := range acc {
			for id, v := range ids {
				other, ok := cur[ts][id]
				if !ok {
					delete(ids, id)
					continue
				}
				ids[id] = fold(v, other)
			}
			if len(ids) == 0 {
				delete(acc, ts)
			}
		}
	}
	return acc
}

func mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	return sum / float64(len(values))
}
