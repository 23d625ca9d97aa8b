package scope

import (
	"context"
	"sync"
	"time"

	"github.com/evan-idocoding/lifekit/rt/safego"
	"go.uber.org/zap"
	"k8s.io/utils/clock"
)

// periodic is a started ticker plus its tick callback.
//
// Dispatch and Cancel are serialized by mu: a tick is dispatched only while the task
// is not cancelled, and the counter is advanced in the same critical section.
type periodic struct {
	m      *Manager
	name   string
	tags   []safego.Tag
	period time.Duration
	fn     TickFunc

	ticker clock.Ticker
	ctx    context.Context
	stop   context.CancelFunc

	mu        sync.Mutex
	cancelled bool
	next      uint64
	panics    uint64
	lastTick  time.Time
}

func newPeriodic(m *Manager, period time.Duration, fn TickFunc, c taskConfig) *periodic {
	ctx, stop := context.WithCancel(context.Background())
	return &periodic{
		m:      m,
		name:   c.name,
		tags:   c.tags,
		period: period,
		fn:     fn,
		ticker: m.clk.NewTicker(period),
		ctx:    ctx,
		stop:   stop,
	}
}

// Cancel stops dispatching ticks. It is idempotent.
func (p *periodic) Cancel() {
	p.mu.Lock()
	if p.cancelled {
		p.mu.Unlock()
		return
	}
	p.cancelled = true
	p.mu.Unlock()

	p.ticker.Stop()
	p.stop()
}

func (p *periodic) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	st := Status{
		Name:     p.name,
		Kind:     KindPeriodic,
		Period:   p.period,
		Ticks:    p.next,
		Panics:   p.panics,
		LastTick: p.lastTick,
		State:    StateActive,
	}
	if p.cancelled {
		st.State = StateCancelled
	}
	return st
}

// start runs the tick loop on its own goroutine. m.loops must already count it.
func (p *periodic) start() {
	safego.Go(p.ctx, p.run,
		safego.WithName(p.name),
		safego.WithTags(p.tags...),
		safego.WithTag("op", "loop"),
		safego.WithLogger(p.m.log),
		safego.WithFinally(p.m.loopDone),
	)
}

func (p *periodic) run(context.Context) {
	for {
		select {
		case <-p.ctx.Done():
			return
		case <-p.ticker.C():
			tick, at, ok := p.dispatch()
			if !ok {
				return
			}
			p.invoke(tick, at)
		}
	}
}

// dispatch claims the next tick number, or reports false once cancelled.
func (p *periodic) dispatch() (uint64, time.Time, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.cancelled {
		return 0, time.Time{}, false
	}
	tick := p.next
	p.next++
	p.lastTick = p.m.clk.Now()
	return tick, p.lastTick, true
}

// invoke runs one claimed tick. A tick claimed just before Cancel is skipped when the
// cancellation is already visible here; otherwise it is the one in-flight tick that may
// still run after Cancel returns.
func (p *periodic) invoke(tick uint64, at time.Time) {
	if p.ctx.Err() != nil {
		return
	}
	opts := []safego.Option{
		safego.WithName(p.name),
		safego.WithTags(p.tags...),
		safego.WithLogger(p.m.log),
	}
	if p.m.cfg.onPanic != nil {
		opts = append(opts, safego.WithPanicHandler(p.m.cfg.onPanic))
	}

	start := time.Now()
	ok := safego.Run(p.ctx, func(ctx context.Context) { p.fn(ctx, tick) }, opts...)
	dur := time.Since(start)

	if !ok {
		p.mu.Lock()
		p.panics++
		p.mu.Unlock()
		p.m.log.Warn("tick callback panicked", zap.String("task", p.name), zap.Uint64("tick", tick))
	}
	p.m.afterTick(TickInfo{
		ScopeID:  p.m.id,
		Name:     p.name,
		Tick:     tick,
		At:       at,
		Duration: dur,
		Panicked: !ok,
	})
}
