package types

import (
	"time"
)

// RunMeta describes a trader run. It is recorded before the loop starts and
// never read back by the trader itself.
type RunMeta struct {
	TraderName     string        `json:"traderName"`
	SecurityClass  SecurityClass `json:"securityClass"`
	Exchanges      []string      `json:"exchanges"`
	SecurityList   []SecurityID  `json:"securityList"`
	Codes          []string      `json:"codes"`
	Start          time.Time     `json:"start"`
	End            time.Time     `json:"end"`
	Level          Level         `json:"level"`
	Provider       string        `json:"provider"`
	RealTime       bool          `json:"realTime"`
	UseWindowStart bool          `json:"useWindowStart"`
}
