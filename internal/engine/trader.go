package engine

import (
	"context"
	"fmt"
	"io"
	"os"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"github.com/schollz/progressbar/v3"

	"trader/internal/calendar"
	"trader/internal/metrics"
	"trader/types"
)

const accountListener = "account"

// Trader drives one run: a single clock over the finest level's ticks,
// per-level selectors refreshed on their own finished ticks, and signals
// fused from the cached per-level targets.
type Trader struct {
	cfg       TraderConfig
	cal       *calendar.Calendar
	account   Account
	selectors map[types.Level][]Selector
	levels    []types.Level
	level     types.Level
	ticks     []time.Time

	cache          *TargetCache
	dispatcher     *SignalDispatcher
	ranker         DecisionRanker
	recorder       RunRecorder
	extraListeners []namedListener
	now            func() time.Time
	log            zerolog.Logger
}

// TickResult reports what a tick did.
type TickResult struct {
	Timestamp      time.Time
	Deferred       bool
	Signals        []types.TradingSignal
	DeliveryErrors []*DeliveryError
	Refreshed      []types.Level
}

// NewTrader validates the whole configuration before anything runs; every
// failure wraps ErrConfiguration.
func NewTrader(cfg TraderConfig, cal *calendar.Calendar, account Account, selectors map[types.Level][]Selector, opts ...Option) (*Trader, error) {
	t := &Trader{
		cfg:       cfg,
		cal:       cal,
		account:   account,
		selectors: selectors,
		cache:     NewTargetCache(),
		ranker:    ScoreRanker{},
		now:       time.Now,
		log:       zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.cfg.Name == "" {
		t.cfg.Name = "trader"
	}
	if t.cfg.Limit == 0 {
		t.cfg.Limit = defaultLimit
	}
	t.log = t.log.With().Str("trader", t.cfg.Name).Logger()

	if err := t.validate(); err != nil {
		return nil, err
	}

	t.dispatcher = NewSignalDispatcher(t.cfg.Name, t.log)
	t.dispatcher.AddListener(accountListener, account)
	for _, l := range t.extraListeners {
		t.dispatcher.AddListener(l.handle, l.listener)
	}

	ticks, err := cal.Timestamps(cfg.SecurityClass, cfg.Exchange, t.level, cfg.Start, cfg.End, true, cfg.UseWindowStart)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	if t.cfg.RealTime && (len(ticks) == 0 || ticks[len(ticks)-1].Before(t.now())) {
		return nil, configErr("real time run has no tick left after %s", t.now().Format(time.RFC3339))
	}
	t.ticks = ticks
	return t, nil
}

func (t *Trader) validate() error {
	if t.cal == nil {
		return configErr("no calendar")
	}
	if t.account == nil {
		return configErr("no account")
	}
	if _, err := t.cal.Sessions(t.cfg.SecurityClass, t.cfg.Exchange); err != nil {
		return fmt.Errorf("%w: %w", ErrConfiguration, err)
	}
	if t.cfg.Start.IsZero() || t.cfg.End.IsZero() || t.cfg.Start.After(t.cfg.End) {
		return configErr("invalid range %s - %s", t.cfg.Start, t.cfg.End)
	}
	if t.cfg.Limit < 0 {
		return configErr("negative limit %d", t.cfg.Limit)
	}
	if len(t.selectors) == 0 {
		return configErr("no selectors")
	}

	for level, sels := range t.selectors {
		if !level.Valid() {
			return configErr("selector at unknown level %d", int(level))
		}
		if len(sels) == 0 {
			return configErr("no selector initialised for level %s", level)
		}
		for _, s := range sels {
			if s == nil {
				return configErr("nil selector at level %s", level)
			}
		}
		t.levels = append(t.levels, level)
	}
	sort.Slice(t.levels, func(i, j int) bool { return t.levels[i] < t.levels[j] })

	if len(t.cfg.Levels) > 0 {
		want := make(map[types.Level]bool, len(t.cfg.Levels))
		for _, level := range t.cfg.Levels {
			want[level] = true
			if _, ok := t.selectors[level]; !ok {
				return configErr("no selector initialised for level %s", level)
			}
		}
		for _, level := range t.levels {
			if !want[level] {
				return configErr("selector at unconfigured level %s", level)
			}
		}
	}

	t.level = t.levels[0]
	if t.cfg.Level != 0 {
		if !t.cfg.Level.Valid() {
			return configErr("unknown trading level %d", int(t.cfg.Level))
		}
		if t.cfg.Level > t.levels[0] {
			return configErr("trading level %s is coarser than selector level %s", t.cfg.Level, t.levels[0])
		}
		t.level = t.cfg.Level
	}

	// Build the finished tables now so inconsistent session data fails here.
	for _, level := range t.levels {
		if _, err := t.cal.IsFinished(t.cfg.SecurityClass, t.cfg.Exchange, t.cfg.Start, level); err != nil {
			return fmt.Errorf("%w: level %s: %w", ErrConfiguration, level, err)
		}
	}
	return nil
}

func (t *Trader) Level() types.Level            { return t.level }
func (t *Trader) Levels() []types.Level         { return append([]types.Level(nil), t.levels...) }
func (t *Trader) Ticks() []time.Time            { return append([]time.Time(nil), t.ticks...) }
func (t *Trader) Cache() *TargetCache           { return t.cache }
func (t *Trader) Dispatcher() *SignalDispatcher { return t.dispatcher }

func (t *Trader) RunMeta() types.RunMeta {
	return types.RunMeta{
		TraderName:     t.cfg.Name,
		SecurityClass:  t.cfg.SecurityClass,
		Exchanges:      []string{t.cfg.Exchange},
		SecurityList:   t.cfg.SecurityList,
		Codes:          t.cfg.Codes,
		Start:          t.cfg.Start,
		End:            t.cfg.End,
		Level:          t.level,
		Provider:       t.cfg.Provider,
		RealTime:       t.cfg.RealTime,
		UseWindowStart: t.cfg.UseWindowStart,
	}
}

// Begin records the run. Drivers call it once before the first tick.
func (t *Trader) Begin(ctx context.Context) error {
	if t.recorder != nil {
		if err := t.recorder.RecordRun(ctx, t.RunMeta()); err != nil {
			return fmt.Errorf("record run: %w", err)
		}
	}
	t.log.Info().
		Str("level", t.level.String()).
		Int("ticks", len(t.ticks)).
		Time("start", t.cfg.Start).
		Time("end", t.cfg.End).
		Msg("trader started")
	return nil
}

// Run records the run and replays every tick. It stops at the first fatal
// error; signals delivered before it stand.
func (t *Trader) Run(ctx context.Context) error {
	if err := t.Begin(ctx); err != nil {
		return err
	}

	bar := initProgressBar(len(t.ticks), t.cfg.ShowProgress)
	for _, ts := range t.ticks {
		if err := ctx.Err(); err != nil {
			return err
		}
		if _, err := t.Tick(ctx, ts); err != nil {
			t.log.Error().Err(err).Msg("trader stopped")
			return err
		}
		_ = bar.Add(1)
	}
	return t.Finish(ctx)
}

// Finish hands the end of the clock to the account if it wants it.
func (t *Trader) Finish(_ context.Context) error {
	var last time.Time
	if len(t.ticks) > 0 {
		last = t.ticks[len(t.ticks)-1]
	}
	if f, ok := t.account.(Finisher); ok {
		if err := f.OnFinish(last); err != nil {
			return &TickError{Timestamp: last, Level: t.level, Err: err}
		}
	}
	t.log.Info().Msg("trader finished")
	return nil
}

// Tick runs one step of the clock. Fusion and dispatch always read the
// targets cached by earlier ticks, so a target refreshed at ts is only
// traded from the next tick on.
func (t *Trader) Tick(ctx context.Context, ts time.Time) (TickResult, error) {
	res := TickResult{Timestamp: ts}
	if t.cfg.RealTime && !t.barFinalized(ts) {
		// Nothing runs, not even the close hook: the driver polls this
		// tick again once the bar is final.
		res.Deferred = true
		metrics.DeferredTicksTotal.WithLabelValues(t.cfg.Name).Inc()
		t.log.Debug().Time("timestamp", ts).Msg("bar not final yet, deferring")
		return res, nil
	}
	metrics.TicksTotal.WithLabelValues(t.cfg.Name).Inc()

	if err := t.sessionOpen(ts); err != nil {
		return res, err
	}

	fused := t.cache.Fuse(t.levels)
	snapshot := t.account.Snapshot()
	res.Signals, res.DeliveryErrors = t.dispatcher.Dispatch(ts, t.level, fused, snapshot.Held(), snapshot.Cash)

	for _, level := range t.levels {
		finished, err := t.cal.IsFinished(t.cfg.SecurityClass, t.cfg.Exchange, ts, level)
		if err != nil {
			return res, &TickError{Timestamp: ts, Level: level, Err: err}
		}
		if !finished {
			continue
		}
		if err := t.refresh(ctx, ts, level); err != nil {
			return res, err
		}
		res.Refreshed = append(res.Refreshed, level)
	}

	if err := t.sessionClose(ts); err != nil {
		return res, err
	}
	return res, nil
}

// barFinalized reports whether the bar stamped ts is complete by wall time.
func (t *Trader) barFinalized(ts time.Time) bool {
	end := ts
	if t.cfg.UseWindowStart {
		end = ts.Add(t.level.Duration())
	}
	return !t.now().Before(end)
}

func (t *Trader) sessionOpen(ts time.Time) error {
	open := t.level == types.Level1Day
	if !open {
		var err error
		open, err = t.cal.IsSessionOpen(t.cfg.SecurityClass, t.cfg.Exchange, ts)
		if err != nil {
			return &TickError{Timestamp: ts, Level: t.level, Err: err}
		}
	}
	if !open {
		return nil
	}
	if err := t.account.OnSessionOpen(ts); err != nil {
		return &TickError{Timestamp: ts, Level: t.level, Err: fmt.Errorf("session open: %w", err)}
	}
	return nil
}

func (t *Trader) sessionClose(ts time.Time) error {
	closed := t.level == types.Level1Day
	if !closed {
		var err error
		closed, err = t.cal.IsSessionClose(t.cfg.SecurityClass, t.cfg.Exchange, ts)
		if err != nil {
			return &TickError{Timestamp: ts, Level: t.level, Err: err}
		}
	}
	if !closed {
		return nil
	}
	if err := t.account.OnSessionClose(ts); err != nil {
		return &TickError{Timestamp: ts, Level: t.level, Err: fmt.Errorf("session close: %w", err)}
	}
	return nil
}

// refresh advances every selector of level to ts and replaces the level's
// cached targets with the union of their ranked candidates.
func (t *Trader) refresh(ctx context.Context, ts time.Time, level types.Level) error {
	var ranked []types.SecurityID
	for _, sel := range t.selectors[level] {
		if err := sel.Advance(ctx, ts); err != nil {
			return &TickError{Timestamp: ts, Level: level, Err: fmt.Errorf("advance selector: %w", err)}
		}
		ranked = append(ranked, t.ranker.Rank(level, ts, sel.Candidates(ts), t.cfg.Limit)...)
	}
	targets := NewTargetSet(ranked...)
	t.log.Debug().
		Time("timestamp", ts).
		Str("level", level.String()).
		Int("old", len(t.cache.Get(level))).
		Int("new", len(targets)).
		Msg("targets refreshed")
	t.cache.Set(level, targets)
	metrics.RefreshesTotal.WithLabelValues(t.cfg.Name, level.String()).Inc()
	return nil
}

func initProgressBar(maxTicks int, visible bool) *progressbar.ProgressBar {
	var w io.Writer = os.Stderr
	if !visible {
		w = io.Discard
	}
	return progressbar.NewOptions(maxTicks,
		progressbar.OptionSetWriter(w),
		progressbar.OptionEnableColorCodes(true),
		progressbar.OptionSetElapsedTime(true),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionSetDescription("Trading in progress..."),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "[green]=[reset]",
			SaucerHead:    "[green]>[reset]",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}))
}
