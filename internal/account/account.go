// Package account simulates the accounting side of a run: it fills trading
// signals at the bar close, settles purchases after the market's settlement
// delay and keeps a daily equity curve for the final report.
package account

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"trader/internal/calendar"
	"trader/types"
)

var (
	ErrInsufficientCash = errors.New("insufficient cash")
	ErrNoPosition       = errors.New("no available position")
	ErrUnknownSignal    = errors.New("unknown signal kind")
)

var stockLot = decimal.NewFromInt(100)

// PriceSource returns the close of the latest bar of id at or before ts.
type PriceSource interface {
	ClosePrice(ctx context.Context, id types.SecurityID, level types.Level, ts time.Time) (decimal.Decimal, error)
}

// Fill is one executed order.
type Fill struct {
	SecurityID types.SecurityID `json:"securityId"`
	Kind       types.SignalKind `json:"kind"`
	Quantity   decimal.Decimal  `json:"quantity"`
	Price      decimal.Decimal  `json:"price"`
	Fee        decimal.Decimal  `json:"fee"`
	Time       time.Time        `json:"time"`
}

// FillRecorder receives every fill after it was applied.
type FillRecorder interface {
	Record(fill Fill)
}

// ClosedTrade is the realised result of selling (part of) a position.
type ClosedTrade struct {
	SecurityID types.SecurityID
	Quantity   decimal.Decimal
	NetPnL     decimal.Decimal
	Fees       decimal.Decimal
	ClosedAt   time.Time
}

// EquitySnapshot is the marked-to-market account value at a session close.
type EquitySnapshot struct {
	Time   time.Time
	Cash   decimal.Decimal
	Equity decimal.Decimal
}

type lot struct {
	amount       decimal.Decimal
	sessionsLeft int
}

type position struct {
	longAmount    decimal.Decimal
	availableLong decimal.Decimal
	avgCost       decimal.Decimal
	lastPrice     decimal.Decimal
	fees          decimal.Decimal
	pending       []lot
}

type Config struct {
	SecurityClass types.SecurityClass
	Level         types.Level
	InitialCash   decimal.Decimal
	FeeRate       decimal.Decimal
	RiskFreeRate  decimal.Decimal
}

// SimAccount is a long-only simulated account. It is safe for concurrent
// use, although the trader only calls it from its loop.
type SimAccount struct {
	mu sync.Mutex

	cfg      Config
	meta     calendar.TradingMeta
	prices   PriceSource
	recorder FillRecorder
	log      zerolog.Logger

	cash      decimal.Decimal
	positions map[types.SecurityID]*position
	fills     []Fill
	trades    []ClosedTrade
	snapshots []EquitySnapshot
	report    *Report
}

type Option func(*SimAccount)

func WithLogger(log zerolog.Logger) Option {
	return func(a *SimAccount) { a.log = log }
}

func WithFillRecorder(r FillRecorder) Option {
	return func(a *SimAccount) { a.recorder = r }
}

func NewSimAccount(cfg Config, prices PriceSource, opts ...Option) (*SimAccount, error) {
	meta, err := calendar.GetTradingMeta(cfg.SecurityClass)
	if err != nil {
		return nil, fmt.Errorf("account: %w", err)
	}
	if !cfg.Level.Valid() {
		return nil, fmt.Errorf("account: %w", types.ErrUnknownLevel)
	}
	if cfg.InitialCash.IsNegative() || cfg.FeeRate.IsNegative() {
		return nil, fmt.Errorf("account: negative cash or fee rate")
	}
	a := &SimAccount{
		cfg:       cfg,
		meta:      meta,
		prices:    prices,
		log:       zerolog.Nop(),
		cash:      cfg.InitialCash,
		positions: make(map[types.SecurityID]*position),
	}
	for _, opt := range opts {
		opt(a)
	}
	return a, nil
}

// OnSessionOpen releases the purchases whose settlement delay is over.
func (a *SimAccount) OnSessionOpen(ts time.Time) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	for _, pos := range a.positions {
		kept := pos.pending[:0]
		for _, l := range pos.pending {
			l.sessionsLeft--
			if l.sessionsLeft <= 0 {
				pos.availableLong = pos.availableLong.Add(l.amount)
				continue
			}
			kept = append(kept, l)
		}
		pos.pending = kept
	}
	return nil
}

// OnSessionClose marks every position to the close and records the day's
// equity. A security without a price keeps its last known price.
func (a *SimAccount) OnSessionClose(ts time.Time) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	for id, pos := range a.positions {
		price, err := a.prices.ClosePrice(context.Background(), id, a.cfg.Level, ts)
		if err != nil {
			a.log.Warn().Err(err).Str("security_id", string(id)).Time("timestamp", ts).Msg("no close price, keeping last")
			continue
		}
		pos.lastPrice = price
	}
	snap := EquitySnapshot{Time: ts, Cash: a.cash, Equity: a.equity()}
	a.snapshots = append(a.snapshots, snap)
	a.log.Debug().
		Time("timestamp", ts).
		Str("cash", snap.Cash.String()).
		Str("equity", snap.Equity.String()).
		Msg("session closed")
	return nil
}

func (a *SimAccount) OnTradingSignal(sig types.TradingSignal) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	price, err := a.prices.ClosePrice(context.Background(), sig.SecurityID(), a.cfg.Level, sig.Timestamp())
	if err != nil {
		return fmt.Errorf("price %s: %w", sig.SecurityID(), err)
	}
	if !price.IsPositive() {
		return fmt.Errorf("price %s: non positive close %s", sig.SecurityID(), price)
	}

	switch sig.Kind() {
	case types.SignalOpenLong:
		return a.buy(sig, price)
	case types.SignalCloseLong:
		return a.sell(sig, price)
	}
	return fmt.Errorf("%w: %s", ErrUnknownSignal, sig.Kind())
}

func (a *SimAccount) buy(sig types.TradingSignal, price decimal.Decimal) error {
	money := decimal.Min(sig.OrderMoney(), a.cash)
	// the fee comes out of the order money
	qty := a.truncate(money.Div(price.Mul(decimal.NewFromInt(1).Add(a.cfg.FeeRate))))
	if !qty.IsPositive() {
		return fmt.Errorf("%w: %s at %s with %s", ErrInsufficientCash, sig.SecurityID(), price, money)
	}
	value := qty.Mul(price)
	fee := value.Mul(a.cfg.FeeRate)
	if value.Add(fee).GreaterThan(a.cash) {
		return fmt.Errorf("%w: need %s, have %s", ErrInsufficientCash, value.Add(fee), a.cash)
	}
	a.cash = a.cash.Sub(value).Sub(fee)

	pos := a.positions[sig.SecurityID()]
	if pos == nil {
		pos = &position{}
		a.positions[sig.SecurityID()] = pos
	}
	pos.avgCost = weightedAvg(pos.avgCost, pos.longAmount, price, qty)
	pos.longAmount = pos.longAmount.Add(qty)
	pos.fees = pos.fees.Add(fee)
	pos.lastPrice = price
	if a.meta.SettlementDays == 0 {
		pos.availableLong = pos.availableLong.Add(qty)
	} else {
		pos.pending = append(pos.pending, lot{amount: qty, sessionsLeft: a.meta.SettlementDays})
	}

	a.record(Fill{SecurityID: sig.SecurityID(), Kind: sig.Kind(), Quantity: qty, Price: price, Fee: fee, Time: sig.Timestamp()})
	return nil
}

func (a *SimAccount) sell(sig types.TradingSignal, price decimal.Decimal) error {
	pos := a.positions[sig.SecurityID()]
	if pos == nil || !pos.availableLong.IsPositive() {
		return fmt.Errorf("%w: %s", ErrNoPosition, sig.SecurityID())
	}
	qty := pos.availableLong.Mul(sig.PositionFraction())
	if !qty.Equal(pos.availableLong) {
		qty = a.truncate(qty)
	}
	if !qty.IsPositive() {
		return fmt.Errorf("%w: %s fraction %s", ErrNoPosition, sig.SecurityID(), sig.PositionFraction())
	}

	value := qty.Mul(price)
	fee := value.Mul(a.cfg.FeeRate)
	openFees := pos.fees.Mul(qty).Div(pos.longAmount)
	a.cash = a.cash.Add(value).Sub(fee)
	a.trades = append(a.trades, ClosedTrade{
		SecurityID: sig.SecurityID(),
		Quantity:   qty,
		NetPnL:     price.Sub(pos.avgCost).Mul(qty).Sub(fee).Sub(openFees),
		Fees:       fee.Add(openFees),
		ClosedAt:   sig.Timestamp(),
	})

	pos.fees = pos.fees.Sub(openFees)
	pos.longAmount = pos.longAmount.Sub(qty)
	pos.availableLong = pos.availableLong.Sub(qty)
	pos.lastPrice = price
	if pos.longAmount.IsZero() {
		delete(a.positions, sig.SecurityID())
	}

	a.record(Fill{SecurityID: sig.SecurityID(), Kind: sig.Kind(), Quantity: qty, Price: price, Fee: fee, Time: sig.Timestamp()})
	return nil
}

func (a *SimAccount) record(fill Fill) {
	a.fills = append(a.fills, fill)
	a.log.Info().
		Str("security_id", string(fill.SecurityID)).
		Str("kind", string(fill.Kind)).
		Str("qty", fill.Quantity.String()).
		Str("price", fill.Price.String()).
		Time("timestamp", fill.Time).
		Msg("fill")
	if a.recorder != nil {
		a.recorder.Record(fill)
	}
}

// truncate rounds a quantity down to what the market can trade.
func (a *SimAccount) truncate(qty decimal.Decimal) decimal.Decimal {
	switch a.cfg.SecurityClass {
	case types.SecurityClassStock:
		return qty.Div(stockLot).Floor().Mul(stockLot)
	case types.SecurityClassCoin:
		return qty.Truncate(8)
	default:
		return qty.Floor()
	}
}

func (a *SimAccount) Snapshot() types.AccountSnapshot {
	a.mu.Lock()
	defer a.mu.Unlock()

	snap := types.AccountSnapshot{Cash: a.cash}
	for id, pos := range a.positions {
		snap.Positions = append(snap.Positions, types.PositionSnapshot{
			SecurityID:    id,
			LongAmount:    pos.longAmount,
			AvailableLong: pos.availableLong,
			AvgCost:       pos.avgCost,
			LastPrice:     pos.lastPrice,
		})
	}
	sort.Slice(snap.Positions, func(i, j int) bool { return snap.Positions[i].SecurityID < snap.Positions[j].SecurityID })
	return snap
}

// OnFinish builds the run report from the equity curve and the closed trades.
func (a *SimAccount) OnFinish(ts time.Time) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	a.report = generateReport(a.cfg.InitialCash, a.snapshots, a.trades, a.fills, a.cfg.RiskFreeRate)
	a.log.Info().
		Time("timestamp", ts).
		Str("net_profit", a.report.NetProfit.String()).
		Str("max_drawdown_pct", a.report.MaxDrawdownPercent.String()).
		Int("trades", a.report.TotalTrades).
		Msg("account finished")
	return nil
}

// Report returns the report built by OnFinish, or nil before it ran.
func (a *SimAccount) Report() *Report {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.report
}

func (a *SimAccount) Fills() []Fill {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]Fill(nil), a.fills...)
}

func (a *SimAccount) Snapshots() []EquitySnapshot {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]EquitySnapshot(nil), a.snapshots...)
}

func (a *SimAccount) equity() decimal.Decimal {
	value := a.cash
	for _, pos := range a.positions {
		value = value.Add(pos.longAmount.Mul(pos.lastPrice))
	}
	return value
}

func weightedAvg(existingAvgPrice, existingQty, newPrice, newQty decimal.Decimal) decimal.Decimal {
	if existingQty.IsZero() {
		return newPrice
	}
	return existingAvgPrice.Mul(existingQty).
		Add(newPrice.Mul(newQty)).
		Div(existingQty.Add(newQty))
}
