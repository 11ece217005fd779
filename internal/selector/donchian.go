package selector

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"trader/types"
)

// KdataSource loads bars of one security with after < timestamp <= upTo,
// oldest first.
type KdataSource interface {
	Kdata(ctx context.Context, id types.SecurityID, level types.Level, after, upTo time.Time) ([]types.Kdata, error)
}

type channelMode int

const (
	channelBreakout channelMode = iota
	channelPosition
)

const defaultChannelWindow = 20

// DonchianFactor rates each new bar against the channel of the preceding
// window bars. In breakout mode the value is 1 when the bar's high breaks
// the channel high and 0 otherwise; in position mode it is where the close
// sits inside the channel, 0 at the low and 1 at the high.
//
// Each row takes the timestamp of its bar. Daily bars have to be stamped at
// the finish time the trader refreshes 1d on, the session close for an
// intraday clock, or the selector never finds their rows.
type DonchianFactor struct {
	name       string
	level      types.Level
	securities []types.SecurityID
	window     int
	mode       channelMode
	source     KdataSource

	history  map[types.SecurityID][]types.Kdata
	rows     []types.FactorScore
	loadedTo time.Time
}

func NewDonchianBreakout(level types.Level, securities []types.SecurityID, window int, src KdataSource) *DonchianFactor {
	return newDonchian("donchian_breakout", channelBreakout, level, securities, window, src)
}

func NewDonchianPosition(level types.Level, securities []types.SecurityID, window int, src KdataSource) *DonchianFactor {
	return newDonchian("donchian_position", channelPosition, level, securities, window, src)
}

func newDonchian(name string, mode channelMode, level types.Level, securities []types.SecurityID, window int, src KdataSource) *DonchianFactor {
	if window <= 0 {
		window = defaultChannelWindow
	}
	return &DonchianFactor{
		name:       name,
		level:      level,
		securities: securities,
		window:     window,
		mode:       mode,
		source:     src,
		history:    make(map[types.SecurityID][]types.Kdata),
	}
}

func (f *DonchianFactor) Name() string { return f.name }

func (f *DonchianFactor) MoveOn(ctx context.Context, to time.Time) error {
	if !to.After(f.loadedTo) {
		return nil
	}
	for _, id := range f.securities {
		bars, err := f.source.Kdata(ctx, id, f.level, f.loadedTo, to)
		if err != nil {
			return fmt.Errorf("factor %s: %s: %w", f.name, id, err)
		}
		for _, bar := range bars {
			f.observe(id, bar)
		}
	}
	f.loadedTo = to
	return nil
}

func (f *DonchianFactor) Result() []types.FactorScore {
	return f.rows
}

func (f *DonchianFactor) observe(id types.SecurityID, bar types.Kdata) {
	hist := append(f.history[id], bar)
	// only the channel window plus the current bar is ever read
	if len(hist) > f.window+1 {
		hist = hist[len(hist)-f.window-1:]
	}
	f.history[id] = hist
	if len(hist) < f.window+1 {
		return
	}

	highestHigh, lowestLow := donchianHighLow(hist[:len(hist)-1])
	var value float64
	switch f.mode {
	case channelBreakout:
		if bar.High.GreaterThan(highestHigh) {
			value = 1
		}
	case channelPosition:
		width := highestHigh.Sub(lowestLow)
		if width.IsZero() {
			return
		}
		value = bar.Close.Sub(lowestLow).Div(width).InexactFloat64()
	}
	f.rows = append(f.rows, types.FactorScore{
		Factor:     f.name,
		SecurityID: id,
		Level:      f.level,
		Timestamp:  bar.Timestamp,
		Values:     []float64{value},
	})
}

func donchianHighLow(bars []types.Kdata) (decimal.Decimal, decimal.Decimal) {
	if len(bars) == 0 {
		return decimal.Zero, decimal.Zero
	}

	highest := bars[0].High
	lowest := bars[0].Low
	for _, b := range bars {
		if b.High.GreaterThan(highest) {
			highest = b.High
		}
		if b.Low.LessThan(lowest) {
			lowest = b.Low
		}
	}
	return highest, lowest
}
