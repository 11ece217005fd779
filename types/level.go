package types

import (
	"fmt"
	"time"
)

// Level is a sampling granularity for trading time. Levels are ordered from
// finest to coarsest so they can be compared directly.
type Level int

const (
	Level1Min Level = iota + 1
	Level5Min
	Level15Min
	Level30Min
	Level1Hour
	Level1Day
)

// Levels lists every supported level, finest first.
var Levels = []Level{Level1Min, Level5Min, Level15Min, Level30Min, Level1Hour, Level1Day}

var levelToDuration = map[Level]time.Duration{
	Level1Min:  time.Minute,
	Level5Min:  time.Minute * 5,
	Level15Min: time.Minute * 15,
	Level30Min: time.Minute * 30,
	Level1Hour: time.Hour,
	Level1Day:  time.Hour * 24,
}

var levelToString = map[Level]string{
	Level1Min:  "1m",
	Level5Min:  "5m",
	Level15Min: "15m",
	Level30Min: "30m",
	Level1Hour: "1h",
	Level1Day:  "1d",
}

var convertLevel = map[string]Level{
	"1m":  Level1Min,
	"5m":  Level5Min,
	"15m": Level15Min,
	"30m": Level30Min,
	"1h":  Level1Hour,
	"1d":  Level1Day,
}

func ParseLevel(s string) (Level, error) {
	l, ok := convertLevel[s]
	if !ok {
		return 0, fmt.Errorf("level %q: %w", s, ErrUnknownLevel)
	}
	return l, nil
}

func (l Level) Valid() bool {
	_, ok := levelToDuration[l]
	return ok
}

func (l Level) Duration() time.Duration {
	return levelToDuration[l]
}

func (l Level) Minutes() int {
	return int(levelToDuration[l] / time.Minute)
}

func (l Level) String() string {
	if s, ok := levelToString[l]; ok {
		return s
	}
	return fmt.Sprintf("Level(%d)", int(l))
}

// MarshalText lets levels appear as "1h" in JSON, YAML and CSV output.
func (l Level) MarshalText() ([]byte, error) {
	if !l.Valid() {
		return nil, fmt.Errorf("level %d: %w", int(l), ErrUnknownLevel)
	}
	return []byte(l.String()), nil
}

func (l *Level) UnmarshalText(b []byte) error {
	parsed, err := ParseLevel(string(b))
	if err != nil {
		return err
	}
	*l = parsed
	return nil
}
