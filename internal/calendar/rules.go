package calendar

import (
	"fmt"
	"time"
	_ "time/tzdata"

	"trader/types"
)

// FinishedPolicy decides how a market classifies data-complete timestamps.
type FinishedPolicy int

const (
	// PolicyArithmetic suits continuous markets: a timestamp is finished
	// when its minute of day is a multiple of the level.
	PolicyArithmetic FinishedPolicy = iota + 1
	// PolicySessionTable suits gapped markets where breaks make the bar
	// grid non-uniform; finished times are looked up in a per-level table.
	PolicySessionTable
)

var convertPolicy = map[string]FinishedPolicy{
	"arithmetic":    PolicyArithmetic,
	"session_table": PolicySessionTable,
}

func ParsePolicy(s string) (FinishedPolicy, error) {
	p, ok := convertPolicy[s]
	if !ok {
		return 0, fmt.Errorf("finished policy %q: %w", s, ErrInvalidRule)
	}
	return p, nil
}

// Market keys every calendar rule. Microstructure depends on the pair, not
// on the security class alone.
type Market struct {
	Class    types.SecurityClass
	Exchange string
}

func (m Market) String() string {
	return fmt.Sprintf("%s/%s", m.Class, m.Exchange)
}

// Session is a trading window given as offsets from midnight. A Close that
// is not after Open wraps to the next day, so {0, 0} is a 24h session.
type Session struct {
	Open  time.Duration
	Close time.Duration
}

func (s Session) wraps() bool {
	return s.Close <= s.Open
}

func (s Session) length() time.Duration {
	if s.wraps() {
		return s.Close + 24*time.Hour - s.Open
	}
	return s.Close - s.Open
}

// bounds returns the absolute open and close of the session on date.
func (s Session) bounds(date time.Time) (time.Time, time.Time) {
	open := date.Add(s.Open)
	close := date.Add(s.Close)
	if s.wraps() {
		close = date.AddDate(0, 0, 1).Add(s.Close)
	}
	return open, close
}

func (s Session) String() string {
	return fmt.Sprintf("%s-%s", formatClock(s.Open), formatClock(s.Close))
}

// ParseSession builds a session from "HH:MM" strings.
func ParseSession(open, close string) (Session, error) {
	o, err := parseClock(open)
	if err != nil {
		return Session{}, err
	}
	c, err := parseClock(close)
	if err != nil {
		return Session{}, err
	}
	return Session{Open: o, Close: c}, nil
}

func clock(hour, minute int) time.Duration {
	return time.Duration(hour)*time.Hour + time.Duration(minute)*time.Minute
}

func parseClock(s string) (time.Duration, error) {
	t, err := time.Parse("15:04", s)
	if err != nil {
		return 0, fmt.Errorf("time of day %q: %w", s, ErrInvalidRule)
	}
	return clock(t.Hour(), t.Minute()), nil
}

func formatClock(d time.Duration) string {
	d %= 24 * time.Hour
	return fmt.Sprintf("%02d:%02d", int(d/time.Hour), int(d%time.Hour/time.Minute))
}

// Rule is the static calendar definition of a market. Sessions are times of
// day in Location; a nil Location is UTC.
type Rule struct {
	Market   Market
	Sessions []Session
	Policy   FinishedPolicy
	Location *time.Location
}

func (r Rule) location() *time.Location {
	if r.Location == nil {
		return time.UTC
	}
	return r.Location
}

func (r Rule) validate() error {
	if len(r.Sessions) == 0 {
		return fmt.Errorf("%s has no sessions: %w", r.Market, ErrInvalidRule)
	}
	if r.Policy != PolicyArithmetic && r.Policy != PolicySessionTable {
		return fmt.Errorf("%s has no finished policy: %w", r.Market, ErrInvalidRule)
	}
	for i, s := range r.Sessions {
		if s.Open < 0 || s.Open >= 24*time.Hour || s.Close < 0 || s.Close >= 24*time.Hour {
			return fmt.Errorf("%s session %s out of day: %w", r.Market, s, ErrInvalidRule)
		}
		if i > 0 && s.Open < r.Sessions[i-1].Close {
			return fmt.Errorf("%s session %s overlaps previous: %w", r.Market, s, ErrInvalidRule)
		}
	}
	return nil
}

var chinaStockSessions = []Session{
	{Open: clock(9, 30), Close: clock(11, 30)},
	{Open: clock(13, 0), Close: clock(15, 0)},
}

// Shanghai is the exchange time of the sh and sz markets.
var Shanghai = mustLoadLocation("Asia/Shanghai")

func mustLoadLocation(name string) *time.Location {
	loc, err := time.LoadLocation(name)
	if err != nil {
		panic(fmt.Sprintf("load location %s: %v", name, err))
	}
	return loc
}

var allDaySessions = []Session{
	{Open: 0, Close: 0},
}

func builtinRules() []Rule {
	rules := []Rule{
		{Market: Market{types.SecurityClassStock, "sh"}, Sessions: chinaStockSessions, Policy: PolicySessionTable, Location: Shanghai},
		{Market: Market{types.SecurityClassStock, "sz"}, Sessions: chinaStockSessions, Policy: PolicySessionTable, Location: Shanghai},
	}
	for _, exchange := range []string{"binance", "huobipro", "okex"} {
		rules = append(rules, Rule{
			Market:   Market{types.SecurityClassCoin, exchange},
			Sessions: allDaySessions,
			Policy:   PolicyArithmetic,
			Location: time.UTC,
		})
	}
	return rules
}

// TradingMeta holds the settlement properties of a security class.
type TradingMeta struct {
	// SettlementDays is n in T+n: a long bought today becomes available to
	// sell after n session closes.
	SettlementDays int
	CouldShort     bool
}

var tradingMetas = map[types.SecurityClass]TradingMeta{
	types.SecurityClassStock:  {SettlementDays: 1, CouldShort: false},
	types.SecurityClassCoin:   {SettlementDays: 0, CouldShort: true},
	types.SecurityClassFuture: {SettlementDays: 0, CouldShort: true},
}

func GetTradingMeta(class types.SecurityClass) (TradingMeta, error) {
	meta, ok := tradingMetas[class]
	if !ok {
		return TradingMeta{}, fmt.Errorf("trading meta for %q: %w", class, types.ErrUnknownSecurityClass)
	}
	return meta, nil
}
