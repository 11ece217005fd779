// Package driver runs a trader against the wall clock, polling each tick
// until its bar is final.
package driver

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/rs/zerolog"

	"trader/internal/calendar"
	"trader/internal/engine"
	"trader/types"
)

var errDeferred = errors.New("bar not final")

// TickSource is the part of *engine.Trader the driver needs.
type TickSource interface {
	Begin(ctx context.Context) error
	Ticks() []time.Time
	Tick(ctx context.Context, ts time.Time) (engine.TickResult, error)
	Finish(ctx context.Context) error
	Level() types.Level
	RunMeta() types.RunMeta
}

type Live struct {
	trader     TickSource
	cal        *calendar.Calendar
	now        func() time.Time
	newBackOff func(level types.Level) backoff.BackOff
	log        zerolog.Logger
}

type Option func(*Live)

func WithLogger(log zerolog.Logger) Option {
	return func(l *Live) { l.log = log }
}

func WithClock(now func() time.Time) Option {
	return func(l *Live) { l.now = now }
}

// WithBackOff replaces the polling policy used while a bar is open.
func WithBackOff(newBackOff func(level types.Level) backoff.BackOff) Option {
	return func(l *Live) { l.newBackOff = newBackOff }
}

func NewLive(trader TickSource, cal *calendar.Calendar, opts ...Option) *Live {
	l := &Live{
		trader:     trader,
		cal:        cal,
		now:        time.Now,
		newBackOff: levelBackOff,
		log:        zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// levelBackOff starts polling at a sixtieth of the bar and never waits
// longer than one bar.
func levelBackOff(level types.Level) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = max(level.Duration()/60, time.Second)
	b.MaxInterval = level.Duration()
	b.MaxElapsedTime = 0
	return b
}

// Run walks the clock once. Ticks whose bar is already final run
// immediately; the others are retried until they are.
func (l *Live) Run(ctx context.Context) error {
	if err := l.trader.Begin(ctx); err != nil {
		return err
	}
	for _, ts := range l.trader.Ticks() {
		if err := l.runTick(ctx, ts); err != nil {
			l.log.Error().Err(err).Time("timestamp", ts).Msg("live trader stopped")
			return err
		}
	}
	return l.trader.Finish(ctx)
}

func (l *Live) runTick(ctx context.Context, ts time.Time) error {
	op := func() error {
		res, err := l.trader.Tick(ctx, ts)
		if err != nil {
			return backoff.Permanent(err)
		}
		if res.Deferred {
			return errDeferred
		}
		return nil
	}
	notify := func(_ error, wait time.Duration) {
		l.log.Debug().Time("timestamp", ts).Dur("wait", wait).Msg("waiting for bar")
	}

	b := &sessionBackOff{
		BackOff: l.newBackOff(l.trader.Level()),
		live:    func() bool { return l.inLiveWindow(ts) },
		closed:  l.trader.Level().Duration(),
	}
	return backoff.RetryNotify(op, backoff.WithContext(b, ctx), notify)
}

func (l *Live) inLiveWindow(ts time.Time) bool {
	meta := l.trader.RunMeta()
	if len(meta.Exchanges) == 0 {
		return true
	}
	live, err := l.cal.IsInLiveWindow(meta.SecurityClass, meta.Exchanges[0], l.now(), ts)
	if err != nil {
		return true
	}
	return live
}

// sessionBackOff waits a full bar between polls while the market is
// outside its sessions.
type sessionBackOff struct {
	backoff.BackOff
	live   func() bool
	closed time.Duration
}

func (b *sessionBackOff) NextBackOff() time.Duration {
	next := b.BackOff.NextBackOff()
	if next == backoff.Stop || b.live() {
		return next
	}
	return b.closed
}
