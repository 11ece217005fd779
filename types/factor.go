package types

import "time"

// FactorScore is one row of a factor's output: the values a factor computed
// for a security on the bar ending at Timestamp.
type FactorScore struct {
	Factor     string     `json:"factor"`
	SecurityID SecurityID `json:"securityId"`
	Level      Level      `json:"level"`
	Timestamp  time.Time  `json:"timestamp"`
	Values     []float64  `json:"values"`
}
