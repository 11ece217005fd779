package engine

import (
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"trader/internal/metrics"
	"trader/types"
)

// SignalDispatcher diffs the fused targets against holdings and fans the
// resulting signals out to its listeners in registration order.
type SignalDispatcher struct {
	trader    string
	handles   []string
	listeners map[string]SignalListener
	log       zerolog.Logger
}

func NewSignalDispatcher(trader string, log zerolog.Logger) *SignalDispatcher {
	return &SignalDispatcher{
		trader:    trader,
		listeners: make(map[string]SignalListener),
		log:       log,
	}
}

// AddListener registers l under handle. Adding a handle twice keeps the
// first registration.
func (d *SignalDispatcher) AddListener(handle string, l SignalListener) {
	if _, ok := d.listeners[handle]; ok {
		return
	}
	d.listeners[handle] = l
	d.handles = append(d.handles, handle)
}

func (d *SignalDispatcher) RemoveListener(handle string) {
	if _, ok := d.listeners[handle]; !ok {
		return
	}
	delete(d.listeners, handle)
	for i, h := range d.handles {
		if h == handle {
			d.handles = append(d.handles[:i], d.handles[i+1:]...)
			break
		}
	}
}

func (d *SignalDispatcher) Listeners() []string {
	return append([]string(nil), d.handles...)
}

// Dispatch opens every fused target not yet held, splitting cash equally,
// and fully closes every holding that left the fused set.
func (d *SignalDispatcher) Dispatch(ts time.Time, level types.Level, fused TargetSet, held []types.SecurityID, cash decimal.Decimal) ([]types.TradingSignal, []*DeliveryError) {
	heldSet := NewTargetSet(held...)

	var opens []types.SecurityID
	for _, id := range fused.Sorted() {
		if !heldSet.Contains(id) {
			opens = append(opens, id)
		}
	}
	var closes []types.SecurityID
	for _, id := range heldSet.Sorted() {
		if !fused.Contains(id) {
			closes = append(closes, id)
		}
	}

	signals := make([]types.TradingSignal, 0, len(opens)+len(closes))
	if len(opens) > 0 {
		orderMoney := cash.Div(decimal.NewFromInt(int64(len(opens))))
		for _, id := range opens {
			signals = append(signals, types.NewOpenLongSignal(id, ts, level, orderMoney))
		}
	}
	for _, id := range closes {
		signals = append(signals, types.NewCloseLongSignal(id, ts, level, decimal.NewFromInt(1)))
	}

	var failures []*DeliveryError
	for _, sig := range signals {
		metrics.SignalsTotal.WithLabelValues(d.trader, string(sig.Kind())).Inc()
		d.log.Debug().
			Str("security_id", string(sig.SecurityID())).
			Str("kind", string(sig.Kind())).
			Time("timestamp", ts).
			Msg("trading signal")
		failures = append(failures, d.deliver(sig)...)
	}
	return signals, failures
}

func (d *SignalDispatcher) deliver(sig types.TradingSignal) []*DeliveryError {
	var failures []*DeliveryError
	for _, handle := range d.handles {
		if err := safeDeliver(d.listeners[handle], sig); err != nil {
			failure := &DeliveryError{Listener: handle, Signal: sig, Err: err}
			metrics.DeliveryFailuresTotal.WithLabelValues(d.trader, handle).Inc()
			d.log.Warn().Err(failure).Msg("listener rejected signal")
			failures = append(failures, failure)
		}
	}
	return failures
}

func safeDeliver(l SignalListener, sig types.TradingSignal) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("listener panic: %v", r)
		}
	}()
	return l.OnTradingSignal(sig)
}
