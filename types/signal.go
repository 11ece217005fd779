package types

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type SignalKind string

const (
	SignalOpenLong  SignalKind = "OPEN_LONG"
	SignalCloseLong SignalKind = "CLOSE_LONG"
)

// TradingSignal is an instruction for the account collaborators. It is
// immutable: all fields are set by the constructors and only read through
// accessors.
type TradingSignal struct {
	id               string
	securityID       SecurityID
	timestamp        time.Time
	kind             SignalKind
	level            Level
	orderMoney       decimal.Decimal
	positionFraction decimal.Decimal
}

func NewOpenLongSignal(securityID SecurityID, timestamp time.Time, level Level, orderMoney decimal.Decimal) TradingSignal {
	return TradingSignal{
		id:         uuid.NewString(),
		securityID: securityID,
		timestamp:  timestamp,
		kind:       SignalOpenLong,
		level:      level,
		orderMoney: orderMoney,
	}
}

func NewCloseLongSignal(securityID SecurityID, timestamp time.Time, level Level, positionFraction decimal.Decimal) TradingSignal {
	return TradingSignal{
		id:               uuid.NewString(),
		securityID:       securityID,
		timestamp:        timestamp,
		kind:             SignalCloseLong,
		level:            level,
		positionFraction: positionFraction,
	}
}

func (s TradingSignal) ID() string                        { return s.id }
func (s TradingSignal) SecurityID() SecurityID            { return s.securityID }
func (s TradingSignal) Timestamp() time.Time              { return s.timestamp }
func (s TradingSignal) Kind() SignalKind                  { return s.kind }
func (s TradingSignal) Level() Level                      { return s.level }
func (s TradingSignal) OrderMoney() decimal.Decimal       { return s.orderMoney }
func (s TradingSignal) PositionFraction() decimal.Decimal { return s.positionFraction }

type tradingSignalJSON struct {
	ID               string          `json:"id"`
	SecurityID       SecurityID      `json:"securityId"`
	Timestamp        time.Time       `json:"timestamp"`
	Kind             SignalKind      `json:"kind"`
	Level            Level           `json:"level"`
	OrderMoney       decimal.Decimal `json:"orderMoney"`
	PositionFraction decimal.Decimal `json:"positionFraction"`
}

func (s TradingSignal) MarshalJSON() ([]byte, error) {
	return json.Marshal(tradingSignalJSON{
		ID:               s.id,
		SecurityID:       s.securityID,
		Timestamp:        s.timestamp,
		Kind:             s.kind,
		Level:            s.level,
		OrderMoney:       s.orderMoney,
		PositionFraction: s.positionFraction,
	})
}
