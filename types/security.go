package types

import (
	"fmt"
	"strings"
)

// SecurityClass is the category of a tradable instrument. Together with an
// exchange it selects the trading calendar of a market.
type SecurityClass string

const (
	SecurityClassStock  SecurityClass = "stock"
	SecurityClassCoin   SecurityClass = "coin"
	SecurityClassFuture SecurityClass = "future"
)

var convertSecurityClass = map[string]SecurityClass{
	"stock":  SecurityClassStock,
	"coin":   SecurityClassCoin,
	"future": SecurityClassFuture,
}

func ParseSecurityClass(s string) (SecurityClass, error) {
	c, ok := convertSecurityClass[strings.ToLower(s)]
	if !ok {
		return "", fmt.Errorf("security class %q: %w", s, ErrUnknownSecurityClass)
	}
	return c, nil
}

// SecurityID identifies a security as "{class}_{exchange}_{code}", e.g.
// "stock_sh_600000" or "coin_binance_BTC-USDT".
type SecurityID string

func EncodeSecurityID(class SecurityClass, exchange, code string) SecurityID {
	return SecurityID(fmt.Sprintf("%s_%s_%s", class, exchange, code))
}

// DecodeSecurityID splits an id into its class, exchange and code. The code
// may itself contain underscores.
func DecodeSecurityID(id SecurityID) (SecurityClass, string, string, error) {
	parts := strings.SplitN(string(id), "_", 3)
	if len(parts) != 3 || parts[1] == "" || parts[2] == "" {
		return "", "", "", fmt.Errorf("security id %q: %w", id, ErrMalformedSecurityID)
	}
	class, err := ParseSecurityClass(parts[0])
	if err != nil {
		return "", "", "", fmt.Errorf("security id %q: %w", id, err)
	}
	return class, parts[1], parts[2], nil
}
