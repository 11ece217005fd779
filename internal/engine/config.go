package engine

import (
	"time"

	"github.com/rs/zerolog"

	"trader/types"
)

// TraderConfig describes one run. Level is the clock level; when left zero
// the finest selector level is used. Levels, when set, must match the
// selector levels exactly.
type TraderConfig struct {
	Name           string
	SecurityClass  types.SecurityClass
	Exchange       string
	SecurityList   []types.SecurityID
	Codes          []string
	Provider       string
	Start          time.Time
	End            time.Time
	Level          types.Level
	Levels         []types.Level
	Limit          int
	RealTime       bool
	UseWindowStart bool
	ShowProgress   bool
}

type Option func(*Trader)

func WithLogger(log zerolog.Logger) Option {
	return func(t *Trader) { t.log = log }
}

// WithClock replaces the wall clock used to gate live bars.
func WithClock(now func() time.Time) Option {
	return func(t *Trader) { t.now = now }
}

func WithRunRecorder(r RunRecorder) Option {
	return func(t *Trader) { t.recorder = r }
}

func WithRanker(r DecisionRanker) Option {
	return func(t *Trader) { t.ranker = r }
}

// WithListener registers an extra signal listener after the account.
func WithListener(handle string, l SignalListener) Option {
	return func(t *Trader) { t.extraListeners = append(t.extraListeners, namedListener{handle, l}) }
}

type namedListener struct {
	handle   string
	listener SignalListener
}
