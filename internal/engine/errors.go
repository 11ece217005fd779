package engine

import (
	"errors"
	"fmt"
	"time"

	"trader/types"
)

var (
	ErrConfiguration = errors.New("invalid trader configuration")
	ErrDelivery      = errors.New("signal delivery failed")
)

// TickError aborts a run. It carries where the loop was when it failed.
type TickError struct {
	Timestamp time.Time
	Level     types.Level
	Err       error
}

func (e *TickError) Error() string {
	return fmt.Sprintf("tick %s level %s: %v", e.Timestamp.Format(time.DateTime), e.Level, e.Err)
}

func (e *TickError) Unwrap() error {
	return e.Err
}

// DeliveryError records a listener that rejected a signal. It never stops
// the tick.
type DeliveryError struct {
	Listener string
	Signal   types.TradingSignal
	Err      error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver %s %s to %s: %v", e.Signal.Kind(), e.Signal.SecurityID(), e.Listener, e.Err)
}

func (e *DeliveryError) Unwrap() []error {
	return []error{ErrDelivery, e.Err}
}

func configErr(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrConfiguration, fmt.Sprintf(format, args...))
}
