package types

import (
	"time"

	"github.com/shopspring/decimal"
)

// Kdata is one bar of price data for a security at a level. Timestamp marks
// the end of the bar unless the provider records bar starts.
type Kdata struct {
	SecurityID SecurityID      `json:"securityId"`
	Open       decimal.Decimal `json:"open"`
	Close      decimal.Decimal `json:"close"`
	High       decimal.Decimal `json:"high"`
	Low        decimal.Decimal `json:"low"`
	Volume     decimal.Decimal `json:"volume"`
	Level      Level           `json:"level"`
	Timestamp  time.Time       `json:"timestamp"`
}
