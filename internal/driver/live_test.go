package driver

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/cenkalti/backoff/v4"

	"trader/internal/calendar"
	"trader/internal/engine"
	"trader/types"
)

var base = time.Date(2019, 5, 1, 0, 0, 0, 0, time.UTC)

type fakeTrader struct {
	ticks     []time.Time
	deferrals map[time.Time]int
	fail      map[time.Time]error
	calls     map[time.Time]int
	done      []time.Time
	begun     bool
	finished  bool
}

func newFakeTrader(ticks ...time.Time) *fakeTrader {
	return &fakeTrader{
		ticks:     ticks,
		deferrals: make(map[time.Time]int),
		fail:      make(map[time.Time]error),
		calls:     make(map[time.Time]int),
	}
}

func (f *fakeTrader) Begin(context.Context) error {
	f.begun = true
	return nil
}

func (f *fakeTrader) Finish(context.Context) error {
	f.finished = true
	return nil
}

func (f *fakeTrader) Ticks() []time.Time { return f.ticks }
func (f *fakeTrader) Level() types.Level { return types.Level1Min }

func (f *fakeTrader) RunMeta() types.RunMeta {
	return types.RunMeta{SecurityClass: types.SecurityClassCoin, Exchanges: []string{"binance"}}
}

func (f *fakeTrader) Tick(_ context.Context, ts time.Time) (engine.TickResult, error) {
	f.calls[ts]++
	if err := f.fail[ts]; err != nil {
		return engine.TickResult{Timestamp: ts}, err
	}
	if f.calls[ts] <= f.deferrals[ts] {
		return engine.TickResult{Timestamp: ts, Deferred: true}, nil
	}
	f.done = append(f.done, ts)
	return engine.TickResult{Timestamp: ts}, nil
}

func zeroBackOff(types.Level) backoff.BackOff { return &backoff.ZeroBackOff{} }

func newTestLive(tr *fakeTrader) *Live {
	return NewLive(tr, calendar.Default(),
		WithClock(func() time.Time { return base.Add(10 * time.Minute) }),
		WithBackOff(zeroBackOff))
}

func TestLive_RetriesDeferredTicks(t *testing.T) {
	t1, t2, t3 := base.Add(time.Minute), base.Add(2*time.Minute), base.Add(3*time.Minute)
	tr := newFakeTrader(t1, t2, t3)
	tr.deferrals[t2] = 3

	if err := newTestLive(tr).Run(context.Background()); err != nil {
		t.Fatalf("Run() error: %v", err)
	}
	if !tr.begun || !tr.finished {
		t.Errorf("begun %v, finished %v", tr.begun, tr.finished)
	}
	if tr.calls[t1] != 1 || tr.calls[t2] != 4 || tr.calls[t3] != 1 {
		t.Errorf("calls = %v", tr.calls)
	}
	if len(tr.done) != 3 || !tr.done[1].Equal(t2) {
		t.Errorf("processed %v", tr.done)
	}
}

func TestLive_StopsOnFatalTick(t *testing.T) {
	t1, t2 := base.Add(time.Minute), base.Add(2*time.Minute)
	tr := newFakeTrader(t1, t2)
	boom := &engine.TickError{Timestamp: t1, Level: types.Level1Min, Err: errors.New("no data")}
	tr.fail[t1] = boom

	err := newTestLive(tr).Run(context.Background())
	var tickErr *engine.TickError
	if !errors.As(err, &tickErr) {
		t.Fatalf("Run() error = %v, want TickError", err)
	}
	if tr.calls[t1] != 1 || tr.calls[t2] != 0 || tr.finished {
		t.Errorf("a fatal tick must not be retried: calls %v, finished %v", tr.calls, tr.finished)
	}
}

func TestLive_StopsOnCancel(t *testing.T) {
	t1 := base.Add(time.Minute)
	tr := newFakeTrader(t1)
	tr.deferrals[t1] = 1 << 30

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	if err := newTestLive(tr).Run(ctx); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Run() error = %v, want deadline exceeded", err)
	}
}

func TestSessionBackOff(t *testing.T) {
	live := true
	b := &sessionBackOff{
		BackOff: backoff.NewConstantBackOff(time.Second),
		live:    func() bool { return live },
		closed:  time.Hour,
	}
	if got := b.NextBackOff(); got != time.Second {
		t.Errorf("inside a session = %s, want 1s", got)
	}
	live = false
	if got := b.NextBackOff(); got != time.Hour {
		t.Errorf("outside the sessions = %s, want 1h", got)
	}

	b.BackOff = &backoff.StopBackOff{}
	if got := b.NextBackOff(); got != backoff.Stop {
		t.Errorf("stopped policy = %s, want Stop", got)
	}
}

func TestLevelBackOff(t *testing.T) {
	b := levelBackOff(types.Level1Hour).(*backoff.ExponentialBackOff)
	if b.InitialInterval != time.Minute || b.MaxInterval != time.Hour || b.MaxElapsedTime != 0 {
		t.Errorf("1h policy = %+v", b)
	}
	b = levelBackOff(types.Level1Min).(*backoff.ExponentialBackOff)
	if b.InitialInterval != time.Second {
		t.Errorf("1m initial interval = %s", b.InitialInterval)
	}
}
