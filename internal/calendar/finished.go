package calendar

import (
	"fmt"
	"sync"
	"time"

	"trader/types"
)

type tableKey struct {
	market Market
	level  types.Level
}

type finishedTable struct {
	once  sync.Once
	times map[time.Duration]struct{}
	err   error
}

// referenceDate only anchors the grid; tables store times of day.
func referenceDate(loc *time.Location) time.Time {
	return time.Date(1999, 1, 1, 0, 0, 0, 0, loc)
}

// clockOf is the wall-clock time of day of t in its own location.
func clockOf(t time.Time) time.Duration {
	return clock(t.Hour(), t.Minute()) + time.Duration(t.Second())*time.Second
}

func (c *Calendar) finishedTable(r Rule, level types.Level) (map[time.Duration]struct{}, error) {
	key := tableKey{market: r.Market, level: level}

	c.mu.Lock()
	table, ok := c.tables[key]
	if !ok {
		table = &finishedTable{}
		c.tables[key] = table
	}
	c.mu.Unlock()

	table.once.Do(func() {
		table.times, table.err = buildFinishedTable(r, level)
	})
	return table.times, table.err
}

// buildFinishedTable collects the bar-close offsets of a single day. A 1d bar
// is complete at midnight and at the last close.
func buildFinishedTable(r Rule, level types.Level) (map[time.Duration]struct{}, error) {
	times := make(map[time.Duration]struct{})
	if level == types.Level1Day {
		times[0] = struct{}{}
		times[r.Sessions[len(r.Sessions)-1].Close] = struct{}{}
		return times, nil
	}

	for _, s := range r.Sessions {
		if s.length()%level.Duration() != 0 {
			return nil, fmt.Errorf("%s session %s is not a multiple of %s: %w", r.Market, s, level, ErrTemporalLogic)
		}
	}
	ref := referenceDate(r.location())
	for _, ts := range timestamps(r, level, ref, ref, false, false) {
		times[clockOf(ts)] = struct{}{}
	}
	if len(times) == 0 {
		return nil, fmt.Errorf("%s has no finished times at %s: %w", r.Market, level, ErrTemporalLogic)
	}
	return times, nil
}
