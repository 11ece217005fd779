// Package calendar turns the static session rules of a market into tick
// sequences and answers which of those ticks open, close or complete a bar.
//
// Every market carries its exchange location. Timestamps passed in are
// converted to it before any time-of-day arithmetic, and generated ticks are
// returned in it, so callers may hand in instants in any location.
package calendar

import (
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"trader/types"
)

var (
	ErrUnsupportedMarket = errors.New("unsupported market")
	ErrInvalidRule       = errors.New("invalid calendar rule")
	ErrTemporalLogic     = errors.New("inconsistent session data")
)

// Calendar owns the market rules and the finished-time tables derived from
// them. Tables are built on first use per (market, level) and never change
// afterwards.
type Calendar struct {
	rules map[Market]Rule

	mu     sync.Mutex
	tables map[tableKey]*finishedTable
}

// Default returns a calendar with the built-in markets.
func Default() *Calendar {
	c, _ := New()
	return c
}

// New returns a calendar with the built-in markets plus the extra rules,
// which replace built-ins for the same market. An extra rule without a
// location keeps the location of the built-in it replaces.
func New(extra ...Rule) (*Calendar, error) {
	c := &Calendar{
		rules:  make(map[Market]Rule),
		tables: make(map[tableKey]*finishedTable),
	}
	for _, r := range append(builtinRules(), extra...) {
		if err := r.validate(); err != nil {
			return nil, err
		}
		if prev, ok := c.rules[r.Market]; ok && r.Location == nil {
			r.Location = prev.Location
		}
		c.rules[r.Market] = r
	}
	return c, nil
}

func (c *Calendar) rule(class types.SecurityClass, exchange string) (Rule, error) {
	r, ok := c.rules[Market{Class: class, Exchange: exchange}]
	if !ok {
		return Rule{}, fmt.Errorf("%s/%s: %w", class, exchange, ErrUnsupportedMarket)
	}
	return r, nil
}

// Markets lists the supported markets in a stable order.
func (c *Calendar) Markets() []Market {
	out := make([]Market, 0, len(c.rules))
	for m := range c.rules {
		out = append(out, m)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out
}

// Location returns the exchange location of a market.
func (c *Calendar) Location(class types.SecurityClass, exchange string) (*time.Location, error) {
	r, err := c.rule(class, exchange)
	if err != nil {
		return nil, err
	}
	return r.location(), nil
}

func (c *Calendar) Sessions(class types.SecurityClass, exchange string) ([]Session, error) {
	r, err := c.rule(class, exchange)
	if err != nil {
		return nil, err
	}
	return append([]Session(nil), r.Sessions...), nil
}

// Timestamps lists the ticks of a level between the market dates of start
// and end, both included. With inclusive unset each session window loses one edge:
// its first sample when bars are stamped with their end, its last sample
// when useWindowStart says bars are stamped with their start. At 1d the
// sequence is one midnight per date.
func (c *Calendar) Timestamps(class types.SecurityClass, exchange string, level types.Level, start, end time.Time, inclusive, useWindowStart bool) ([]time.Time, error) {
	r, err := c.rule(class, exchange)
	if err != nil {
		return nil, err
	}
	if !level.Valid() {
		return nil, fmt.Errorf("timestamps: %w", types.ErrUnknownLevel)
	}
	return timestamps(r, level, start, end, inclusive, useWindowStart), nil
}

func timestamps(r Rule, level types.Level, start, end time.Time, inclusive, useWindowStart bool) []time.Time {
	loc := r.location()
	dates := dateRange(start.In(loc), end.In(loc))
	if level == types.Level1Day {
		return dates
	}

	step := level.Duration()
	seen := make(map[int64]struct{})
	var out []time.Time
	for _, date := range dates {
		for _, s := range r.Sessions {
			open, close := s.bounds(date)
			var grid []time.Time
			for t := open; !t.After(close); t = t.Add(step) {
				grid = append(grid, t)
			}
			if !inclusive && len(grid) > 0 {
				if useWindowStart {
					grid = grid[:len(grid)-1]
				} else {
					grid = grid[1:]
				}
			}
			for _, t := range grid {
				key := t.UnixNano()
				if _, ok := seen[key]; ok {
					continue
				}
				seen[key] = struct{}{}
				out = append(out, t)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Before(out[j]) })
	return out
}

func (c *Calendar) IsSessionOpen(class types.SecurityClass, exchange string, ts time.Time) (bool, error) {
	r, err := c.rule(class, exchange)
	if err != nil {
		return false, err
	}
	ts = ts.In(r.location())
	return ts.Equal(dateOf(ts).Add(r.Sessions[0].Open)), nil
}

// IsSessionClose compares against the close time of day on the date of ts,
// so a 24h market closes at the midnight that starts the date.
func (c *Calendar) IsSessionClose(class types.SecurityClass, exchange string, ts time.Time) (bool, error) {
	r, err := c.rule(class, exchange)
	if err != nil {
		return false, err
	}
	ts = ts.In(r.location())
	return ts.Equal(dateOf(ts).Add(r.Sessions[len(r.Sessions)-1].Close)), nil
}

// IsFinished reports whether the bar of level ending at ts is data-complete.
func (c *Calendar) IsFinished(class types.SecurityClass, exchange string, ts time.Time, level types.Level) (bool, error) {
	r, err := c.rule(class, exchange)
	if err != nil {
		return false, err
	}
	if !level.Valid() {
		return false, fmt.Errorf("is finished: %w", types.ErrUnknownLevel)
	}
	ts = ts.In(r.location())
	if ts.Second() != 0 || ts.Nanosecond() != 0 {
		return false, nil
	}

	switch r.Policy {
	case PolicyArithmetic:
		minuteOfDay := ts.Hour()*60 + ts.Minute()
		return minuteOfDay%level.Minutes() == 0, nil
	case PolicySessionTable:
		table, err := c.finishedTable(r, level)
		if err != nil {
			return false, err
		}
		_, ok := table[clockOf(ts)]
		return ok, nil
	}
	return false, fmt.Errorf("%s: %w", r.Market, ErrInvalidRule)
}

// IsInLiveWindow reports whether ts is on the same date as now while now is
// strictly inside one of that day's sessions, i.e. the bar may still change.
func (c *Calendar) IsInLiveWindow(class types.SecurityClass, exchange string, now, ts time.Time) (bool, error) {
	r, err := c.rule(class, exchange)
	if err != nil {
		return false, err
	}
	loc := r.location()
	now, ts = now.In(loc), ts.In(loc)
	if !sameDate(now, ts) {
		return false, nil
	}
	date := dateOf(now)
	for _, s := range r.Sessions {
		open, close := s.bounds(date)
		if now.After(open) && now.Before(close) {
			return true, nil
		}
	}
	return false, nil
}

func dateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

func sameDate(a, b time.Time) bool {
	ay, am, ad := a.Date()
	by, bm, bd := b.Date()
	return ay == by && am == bm && ad == bd
}

// dateRange returns every midnight from the date of start to the date of
// end, in the location of start. Callers convert both to the market first.
func dateRange(start, end time.Time) []time.Time {
	first := dateOf(start)
	y, m, d := end.In(start.Location()).Date()
	last := time.Date(y, m, d, 0, 0, 0, 0, start.Location())

	var dates []time.Time
	for day := first; !day.After(last); day = day.AddDate(0, 0, 1) {
		dates = append(dates, day)
	}
	return dates
}
