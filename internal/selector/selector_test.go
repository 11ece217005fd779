package selector

import (
	"context"
	"errors"
	"reflect"
	"testing"
	"time"

	"trader/types"
)

func at(day int) time.Time {
	return time.Date(2019, 5, day, 0, 0, 0, 0, time.UTC)
}

func row(ts time.Time, id types.SecurityID, values ...float64) types.FactorScore {
	return types.FactorScore{SecurityID: id, Timestamp: ts, Values: values}
}

func TestTargetSelector_Candidates(t *testing.T) {
	tests := []struct {
		name string
		opts func() []Option
		ts   time.Time
		want map[types.SecurityID]float64
	}{
		{
			name: "score only keeps the threshold inclusively",
			opts: func() []Option {
				return []Option{WithThreshold(0.5), WithScoreFactors(NewTableFactor("s", types.Level1Day, []types.FactorScore{
					row(at(1), "a", 0.4, 0.6),
					row(at(1), "b", 0.2, 0.4),
					row(at(1), "c", 0.9),
				}))}
			},
			ts:   at(1),
			want: map[types.SecurityID]float64{"a": 0.5, "c": 0.9},
		},
		{
			name: "score factors are summed",
			opts: func() []Option {
				return []Option{WithThreshold(1), WithScoreFactors(
					NewTableFactor("s1", types.Level1Day, []types.FactorScore{row(at(1), "a", 0.5), row(at(1), "b", 0.5)}),
					NewTableFactor("s2", types.Level1Day, []types.FactorScore{row(at(1), "a", 0.5), row(at(1), "b", 0.25)}),
				)}
			},
			ts:   at(1),
			want: map[types.SecurityID]float64{"a": 1},
		},
		{
			name: "missing from one score factor",
			opts: func() []Option {
				return []Option{WithThreshold(0), WithScoreFactors(
					NewTableFactor("s1", types.Level1Day, []types.FactorScore{row(at(1), "a", 1), row(at(1), "b", 1)}),
					NewTableFactor("s2", types.Level1Day, []types.FactorScore{row(at(1), "a", 1)}),
				)}
			},
			ts:   at(1),
			want: map[types.SecurityID]float64{"a": 2},
		},
		{
			name: "must only",
			opts: func() []Option {
				return []Option{WithMustFactors(
					NewTableFactor("m1", types.Level1Day, []types.FactorScore{row(at(1), "a", 1, 1), row(at(1), "b", 1, 0)}),
					NewTableFactor("m2", types.Level1Day, []types.FactorScore{row(at(1), "a", 1), row(at(1), "b", 1)}),
				)}
			},
			ts:   at(1),
			want: map[types.SecurityID]float64{"a": 1},
		},
		{
			name: "must and score",
			opts: func() []Option {
				return []Option{
					WithThreshold(0.8),
					WithMustFactors(NewTableFactor("m", types.Level1Day, []types.FactorScore{
						row(at(1), "a", 1), row(at(1), "b", 0), row(at(1), "c", 1),
					})),
					WithScoreFactors(NewTableFactor("s", types.Level1Day, []types.FactorScore{
						row(at(1), "a", 0.9), row(at(1), "b", 0.9), row(at(1), "c", 0.7), row(at(1), "d", 1),
					})),
				}
			},
			ts:   at(1),
			want: map[types.SecurityID]float64{"a": 0.9},
		},
		{
			name: "no result at timestamp",
			opts: func() []Option {
				return []Option{WithScoreFactors(NewTableFactor("s", types.Level1Day, []types.FactorScore{row(at(1), "a", 1)}))}
			},
			ts:   at(2),
			want: map[types.SecurityID]float64{},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := New(types.Level1Day, tt.opts()...)
			if err != nil {
				t.Fatalf("New() error: %v", err)
			}
			if err := s.Advance(context.Background(), tt.ts); err != nil {
				t.Fatalf("Advance() error: %v", err)
			}
			if got := s.Candidates(tt.ts); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("Candidates() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTargetSelector_NoLookahead(t *testing.T) {
	s, err := New(types.Level1Day, WithThreshold(0), WithScoreFactors(NewTableFactor("s", types.Level1Day, []types.FactorScore{
		row(at(1), "a", 1),
		row(at(2), "b", 1),
	})))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	ctx := context.Background()
	if err := s.Advance(ctx, at(1)); err != nil {
		t.Fatalf("Advance() error: %v", err)
	}
	if got := s.Candidates(at(2)); len(got) != 0 {
		t.Fatalf("rows after the advanced time are visible: %v", got)
	}
	if err := s.Advance(ctx, at(2)); err != nil {
		t.Fatalf("Advance() error: %v", err)
	}
	if got := s.Candidates(at(2)); len(got) != 1 || got["b"] != 1 {
		t.Fatalf("Candidates() = %v", got)
	}

	// the returned map is a copy
	s.Candidates(at(2))["x"] = 1
	if _, ok := s.Candidates(at(2))["x"]; ok {
		t.Errorf("Candidates() leaked internal state")
	}
}

type failingFactor struct{}

func (failingFactor) Name() string                            { return "failing" }
func (failingFactor) MoveOn(context.Context, time.Time) error { return errors.New("feed down") }
func (failingFactor) Result() []types.FactorScore             { return nil }

func TestTargetSelector_Errors(t *testing.T) {
	if _, err := New(types.Level1Day); !errors.Is(err, ErrNoFactors) {
		t.Errorf("New() without factors error = %v, want ErrNoFactors", err)
	}
	if _, err := New(types.Level(42), WithScoreFactors(failingFactor{})); !errors.Is(err, types.ErrUnknownLevel) {
		t.Errorf("New() with bad level error = %v, want ErrUnknownLevel", err)
	}
	s, err := New(types.Level1Day, WithMustFactors(failingFactor{}))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	if err := s.Advance(context.Background(), at(1)); err == nil {
		t.Errorf("Advance() should surface factor errors")
	}
}

func TestTargetSelector_DailyRowsOnIntradayClock(t *testing.T) {
	shanghai := time.FixedZone("CST", 8*60*60)
	midnight := time.Date(2019, 5, 6, 0, 0, 0, 0, shanghai)
	sessionClose := time.Date(2019, 5, 6, 15, 0, 0, 0, shanghai)

	tests := []struct {
		name    string
		stamp   time.Time
		lookup  time.Time
		wantHit bool
	}{
		{"stamped at the session close", sessionClose, sessionClose, true},
		{"same instant in utc", sessionClose, sessionClose.UTC(), true},
		{"stamped at midnight", midnight, sessionClose, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := New(types.Level1Day, WithThreshold(0), WithScoreFactors(NewTableFactor("s", types.Level1Day, []types.FactorScore{
				row(tt.stamp, "stock_sh_600000", 1),
			})))
			if err != nil {
				t.Fatalf("New() error: %v", err)
			}
			if err := s.Advance(context.Background(), sessionClose); err != nil {
				t.Fatalf("Advance() error: %v", err)
			}
			if got := len(s.Candidates(tt.lookup)) == 1; got != tt.wantHit {
				t.Errorf("Candidates(%v) hit = %v, want %v", tt.lookup, got, tt.wantHit)
			}
		})
	}
}
