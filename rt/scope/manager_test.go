package scope

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/evan-idocoding/lifekit/rt/safego"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	testingclock "k8s.io/utils/clock/testing"
)

type fakeTask struct {
	id       int
	calls    atomic.Int64
	onCancel func(id int)
}

func (f *fakeTask) Cancel() {
	f.calls.Add(1)
	if f.onCancel != nil {
		f.onCancel(f.id)
	}
}

// tickLog records tick callbacks across goroutines.
type tickLog struct {
	mu    sync.Mutex
	ticks map[string][]uint64
}

func newTickLog() *tickLog { return &tickLog{ticks: make(map[string][]uint64)} }

func (l *tickLog) fn(name string) TickFunc {
	return func(_ context.Context, tick uint64) {
		l.mu.Lock()
		l.ticks[name] = append(l.ticks[name], tick)
		l.mu.Unlock()
	}
}

func (l *tickLog) get(name string) []uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]uint64(nil), l.ticks[name]...)
}

func (l *tickLog) total() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	n := 0
	for _, v := range l.ticks {
		n += len(v)
	}
	return n
}

func newFakeManager(t *testing.T, opts ...ManagerOption) (*Manager, *testingclock.FakeClock) {
	t.Helper()
	fc := testingclock.NewFakeClock(time.Unix(1_700_000_000, 0))
	m := NewManager(append([]ManagerOption{WithClock(fc)}, opts...)...)
	return m, fc
}

// stepAndWait advances the fake clock by one period and waits for the expected tick count.
func stepAndWait(t *testing.T, fc *testingclock.FakeClock, d time.Duration, cond func() bool) {
	t.Helper()
	fc.Step(d)
	require.Eventually(t, cond, time.Second, time.Millisecond)
}

// settle gives any wrongly scheduled goroutine time to run.
func settle() { time.Sleep(20 * time.Millisecond) }

func TestPeriodic_ThreeAndAHalfPeriods_ThenTeardown(t *testing.T) {
	t.Parallel()

	m, fc := newFakeManager(t)
	log := newTickLog()
	_, err := m.CreatePeriodic(time.Second, log.fn("p"), WithName("p"))
	require.NoError(t, err)

	for i := 1; i <= 3; i++ {
		want := i
		stepAndWait(t, fc, time.Second, func() bool { return len(log.get("p")) == want })
	}
	fc.Step(500 * time.Millisecond)
	settle()
	require.Equal(t, []uint64{0, 1, 2}, log.get("p"))

	m.Teardown()
	for i := 0; i < 10; i++ {
		fc.Step(time.Second)
	}
	settle()
	require.Equal(t, []uint64{0, 1, 2}, log.get("p"))

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, m.Wait(ctx))
}

func TestPeriodic_TeardownBeforeFirstTick_NoCallbacks(t *testing.T) {
	t.Parallel()

	m, fc := newFakeManager(t)
	log := newTickLog()
	for i, p := range []time.Duration{time.Second, 2 * time.Second, 3 * time.Second} {
		_, err := m.CreatePeriodic(p, log.fn(string(rune('a'+i))))
		require.NoError(t, err)
	}
	require.Equal(t, 3, m.Len())

	m.Teardown()
	for i := 0; i < 12; i++ {
		fc.Step(500 * time.Millisecond)
	}
	settle()

	require.Zero(t, log.total())
	require.Zero(t, m.Len())
	require.NoError(t, m.Wait(context.Background()))
}

func TestPeriodic_NTasksThenTeardown_NoFurtherTicks(t *testing.T) {
	t.Parallel()

	for _, n := range []int{1, 2, 5, 16} {
		m, fc := newFakeManager(t)
		log := newTickLog()
		handles := make([]Handle, 0, n)
		for i := 0; i < n; i++ {
			h, err := m.CreatePeriodic(time.Duration(i+1)*time.Second, log.fn("t"))
			require.NoError(t, err)
			handles = append(handles, h)
		}

		// Let the first task tick once so teardown happens mid-flight.
		stepAndWait(t, fc, time.Second, func() bool { return log.total() >= 1 })
		settle()
		before := log.total()

		m.Teardown()
		for _, h := range handles {
			require.True(t, h.Cancelled())
		}
		for i := 0; i < 3*n; i++ {
			fc.Step(time.Second)
		}
		settle()
		require.Equal(t, before, log.total(), "n=%d", n)
	}
}

func TestTeardown_ZeroTasks(t *testing.T) {
	t.Parallel()

	m := NewManager()
	require.NotPanics(t, m.Teardown)
	require.True(t, m.Closed())
	require.NoError(t, m.Wait(context.Background()))
}

func TestTeardown_Idempotent(t *testing.T) {
	t.Parallel()

	var teardowns atomic.Int64
	m := NewManager(WithOnTeardown(func(TeardownInfo) { teardowns.Add(1) }))
	task := &fakeTask{}
	_, err := m.Register(task)
	require.NoError(t, err)

	m.Teardown()
	snap1 := m.Snapshot()
	m.Teardown()
	snap2 := m.Snapshot()

	require.EqualValues(t, 1, task.calls.Load())
	require.EqualValues(t, 1, teardowns.Load())
	require.Equal(t, snap1, snap2)
	require.True(t, snap2.Closed)
	require.EqualValues(t, 1, snap2.Registered)
	require.EqualValues(t, 1, snap2.Cancelled)
}

func TestTeardown_CancelsInRegistrationOrder(t *testing.T) {
	t.Parallel()

	var mu sync.Mutex
	var order []int
	record := func(id int) {
		mu.Lock()
		order = append(order, id)
		mu.Unlock()
	}

	m := NewManager()
	for i := 0; i < 5; i++ {
		m.MustRegister(&fakeTask{id: i, onCancel: record})
	}
	m.Teardown()

	require.Equal(t, []int{0, 1, 2, 3, 4}, order)
}

func TestRegister_AfterTeardown_CancelsAndRejects(t *testing.T) {
	t.Parallel()

	var reasons []CancelReason
	m := NewManager(WithOnCancel(func(info CancelInfo) { reasons = append(reasons, info.Reason) }))
	m.Teardown()

	task := &fakeTask{}
	h, err := m.Register(task)
	require.ErrorIs(t, err, ErrClosed)
	require.Nil(t, h)
	require.EqualValues(t, 1, task.calls.Load())
	require.Equal(t, []CancelReason{ReasonRejected}, reasons)
	require.Zero(t, m.Snapshot().Cancelled)
}

func TestCreatePeriodic_AfterTeardown_Rejects(t *testing.T) {
	t.Parallel()

	m, fc := newFakeManager(t)
	m.Teardown()

	log := newTickLog()
	h, err := m.CreatePeriodic(time.Second, log.fn("late"))
	require.ErrorIs(t, err, ErrClosed)
	require.Nil(t, h)
	require.False(t, fc.HasWaiters())
	require.Panics(t, func() { m.MustCreatePeriodic(time.Second, log.fn("late")) })
}

func TestCancel_ExplicitThenTeardown_CancelsOnce(t *testing.T) {
	t.Parallel()

	var reasons []CancelReason
	m := NewManager(WithOnCancel(func(info CancelInfo) { reasons = append(reasons, info.Reason) }))
	task := &fakeTask{}
	h := m.MustRegister(task, WithName("listener"))

	h.Cancel()
	h.Cancel()
	require.True(t, h.Cancelled())
	require.Equal(t, StateCancelled, h.Status().State)
	require.Zero(t, m.Len())
	_, ok := m.Lookup("listener")
	require.False(t, ok)

	m.Teardown()
	require.EqualValues(t, 1, task.calls.Load())
	require.Equal(t, []CancelReason{ReasonExplicit}, reasons)
}

func TestCancel_StopsPeriodicEarly(t *testing.T) {
	t.Parallel()

	m, fc := newFakeManager(t)
	log := newTickLog()
	a := m.MustCreatePeriodic(time.Second, log.fn("a"))
	m.MustCreatePeriodic(time.Second, log.fn("b"))

	stepAndWait(t, fc, time.Second, func() bool { return log.total() == 2 })
	a.Cancel()
	stepAndWait(t, fc, time.Second, func() bool { return len(log.get("b")) == 2 })
	settle()

	require.Equal(t, []uint64{0}, log.get("a"))
	require.Equal(t, []uint64{0, 1}, log.get("b"))
	require.Equal(t, 1, m.Len())
	m.Teardown()
}

func TestCancel_FromInsideTickCallback(t *testing.T) {
	t.Parallel()

	m, fc := newFakeManager(t)
	var count atomic.Int64
	var h Handle
	var hmu sync.Mutex
	hmu.Lock()
	h = m.MustCreatePeriodic(time.Second, func(context.Context, uint64) {
		count.Add(1)
		hmu.Lock()
		h.Cancel()
		hmu.Unlock()
	})
	hmu.Unlock()

	stepAndWait(t, fc, time.Second, func() bool { return h.Cancelled() })
	fc.Step(time.Second)
	settle()
	require.EqualValues(t, 1, count.Load())
	require.NoError(t, m.Wait(context.Background()))
	m.Teardown()
}

func TestTeardown_FromInsideTickCallback(t *testing.T) {
	t.Parallel()

	m, fc := newFakeManager(t)
	var count atomic.Int64
	m.MustCreatePeriodic(time.Second, func(context.Context, uint64) {
		count.Add(1)
		m.Teardown()
	})

	stepAndWait(t, fc, time.Second, m.Closed)
	fc.Step(time.Second)
	settle()
	require.EqualValues(t, 1, count.Load())
}

func TestTickContext_CancelledOnCancel(t *testing.T) {
	t.Parallel()

	m, fc := newFakeManager(t)
	started := make(chan struct{})
	observed := make(chan error, 1)
	m.MustCreatePeriodic(time.Second, func(ctx context.Context, _ uint64) {
		close(started)
		<-ctx.Done()
		observed <- ctx.Err()
	})

	fc.Step(time.Second)
	<-started
	m.Teardown()

	select {
	case err := <-observed:
		require.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("tick context was not cancelled")
	}
	require.NoError(t, m.Wait(context.Background()))
}

func TestWait_BlocksOnInFlightCallback(t *testing.T) {
	t.Parallel()

	m, fc := newFakeManager(t)
	started := make(chan struct{})
	release := make(chan struct{})
	m.MustCreatePeriodic(time.Second, func(context.Context, uint64) {
		close(started)
		<-release
	})

	fc.Step(time.Second)
	<-started
	m.Teardown()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()
	require.ErrorIs(t, m.Wait(ctx), context.DeadlineExceeded)

	close(release)
	require.NoError(t, m.Wait(context.Background()))
}

func TestWait_TracksLoopsStartedAfterIdle(t *testing.T) {
	t.Parallel()

	m, _ := newFakeManager(t)
	done, cancel := context.WithCancel(context.Background())
	cancel()
	require.NoError(t, m.Wait(done))

	h := m.MustCreatePeriodic(time.Second, func(context.Context, uint64) {})
	require.ErrorIs(t, m.Wait(done), context.Canceled)
	h.Cancel()
	require.NoError(t, m.Wait(context.Background()))

	m.MustCreatePeriodic(time.Second, func(context.Context, uint64) {})
	require.ErrorIs(t, m.Wait(done), context.Canceled)
	m.Teardown()
	require.NoError(t, m.Wait(context.Background()))
}

func TestPeriodic_ClaimedTickSkippedAfterCancel(t *testing.T) {
	t.Parallel()

	m, fc := newFakeManager(t)
	var calls atomic.Int64
	h := m.MustCreatePeriodic(time.Second, func(context.Context, uint64) { calls.Add(1) })
	p := h.(*entry).periodic

	h.Cancel()
	p.invoke(0, fc.Now())
	require.Zero(t, calls.Load())
	require.NoError(t, m.Wait(context.Background()))
}

func TestTickPanic_IsContainedAndTaskKeepsTicking(t *testing.T) {
	t.Parallel()

	var panics atomic.Int64
	var ticks []TickInfo
	var mu sync.Mutex
	m, fc := newFakeManager(t,
		WithPanicHandler(func(_ context.Context, info safego.PanicInfo) {
			assert.Equal(t, "flaky", info.Name)
			panics.Add(1)
		}),
		WithOnTick(func(info TickInfo) {
			mu.Lock()
			ticks = append(ticks, info)
			mu.Unlock()
		}),
	)
	h := m.MustCreatePeriodic(time.Second, func(_ context.Context, tick uint64) {
		if tick == 0 {
			panic("first tick fails")
		}
	}, WithName("flaky"))

	stepAndWait(t, fc, time.Second, func() bool { return panics.Load() == 1 })
	stepAndWait(t, fc, time.Second, func() bool { return h.Status().Ticks == 2 })
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(ticks) == 2
	}, time.Second, time.Millisecond)

	st := h.Status()
	require.EqualValues(t, 1, st.Panics)
	require.Equal(t, time.Second, st.Period)
	require.Equal(t, KindPeriodic, st.Kind)
	mu.Lock()
	require.True(t, ticks[0].Panicked)
	require.False(t, ticks[1].Panicked)
	require.EqualValues(t, 1, ticks[1].Tick)
	mu.Unlock()
	m.Teardown()
}

func TestRegister_DuplicateTaskPanics(t *testing.T) {
	t.Parallel()

	m := NewManager()
	task := &fakeTask{}
	m.MustRegister(task)
	require.Panics(t, func() { _, _ = m.Register(task) })
	require.Panics(t, func() { _, _ = m.Register(nil) })
	m.Teardown()
	require.EqualValues(t, 1, task.calls.Load())
}

// boxTask has a comparable type but may hold an unhashable value.
type boxTask struct {
	v     any
	calls *atomic.Int64
}

func (b boxTask) Cancel() { b.calls.Add(1) }

func TestRegister_UnhashableValueTask(t *testing.T) {
	t.Parallel()

	var calls atomic.Int64
	m := NewManager()
	task := boxTask{v: []int{1}, calls: &calls}
	h := m.MustRegister(task)
	m.MustRegister(boxTask{v: func() {}, calls: &calls})
	require.Equal(t, 2, m.Len())

	done := make(chan struct{})
	go func() {
		m.Teardown()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Teardown blocked")
	}
	require.True(t, h.Cancelled())
	require.EqualValues(t, 2, calls.Load())
	require.Zero(t, m.Len())
}

func TestRegister_CancelFuncTask(t *testing.T) {
	t.Parallel()

	ctx, cancel := context.WithCancel(context.Background())
	m := NewManager()
	h := m.MustRegister(CancelFunc(cancel), WithName("request"))
	require.Equal(t, KindExternal, h.Status().Kind)
	require.NoError(t, ctx.Err())

	m.Teardown()
	require.ErrorIs(t, ctx.Err(), context.Canceled)
}

func TestRegister_PanickingCancelDoesNotStopTeardown(t *testing.T) {
	t.Parallel()

	m := NewManager()
	m.MustRegister(CancelFunc(func() { panic("bad cancel") }))
	after := &fakeTask{}
	m.MustRegister(after)

	require.NotPanics(t, m.Teardown)
	require.EqualValues(t, 1, after.calls.Load())
}

func TestNames_ValidateDuplicateAndLookup(t *testing.T) {
	t.Parallel()

	m, _ := newFakeManager(t)
	defer m.Teardown()

	h, err := m.CreatePeriodic(time.Second, func(context.Context, uint64) {}, WithName("  price.ticker_1-a  "))
	require.NoError(t, err)
	require.Equal(t, "price.ticker_1-a", h.Name())

	got, ok := m.Lookup(" price.ticker_1-a ")
	require.True(t, ok)
	require.Equal(t, h, got)

	_, err = m.CreatePeriodic(time.Second, func(context.Context, uint64) {}, WithName("price.ticker_1-a"))
	require.ErrorIs(t, err, ErrDuplicateName)
	_, err = m.Register(&fakeTask{}, WithName("price.ticker_1-a"))
	require.ErrorIs(t, err, ErrDuplicateName)

	for _, bad := range []string{"a/b", "a b", "a*b"} {
		_, err = m.Register(&fakeTask{}, WithName(bad))
		require.ErrorIs(t, err, ErrInvalidName, bad)
	}

	_, ok = m.Lookup("")
	require.False(t, ok)
	_, ok = m.Lookup("missing")
	require.False(t, ok)
}

func TestCreatePeriodic_InvalidConfigPanics(t *testing.T) {
	t.Parallel()

	m := NewManager()
	require.Panics(t, func() { _, _ = m.CreatePeriodic(0, func(context.Context, uint64) {}) })
	require.Panics(t, func() { _, _ = m.CreatePeriodic(time.Second, nil) })
	m.Teardown()
}

func TestSnapshot_ListsLiveTasksInOrder(t *testing.T) {
	t.Parallel()

	m, fc := newFakeManager(t, WithManagerName("price"))
	m.MustRegister(&fakeTask{}, WithName("ext"))
	p := m.MustCreatePeriodic(2*time.Second, func(context.Context, uint64) {}, WithName("tick"))
	stepAndWait(t, fc, 2*time.Second, func() bool { return p.Status().Ticks == 1 })

	snap := m.Snapshot()
	require.Equal(t, m.ID(), snap.ScopeID)
	require.Equal(t, "price", snap.ScopeName)
	require.False(t, snap.Closed)
	require.Len(t, snap.Tasks, 2)
	require.Equal(t, "ext", snap.Tasks[0].Name)
	require.Equal(t, KindExternal, snap.Tasks[0].Kind)
	st, ok := snap.Get("tick")
	require.True(t, ok)
	require.Equal(t, StateActive, st.State)
	require.EqualValues(t, 1, st.Ticks)
	require.Equal(t, fc.Now(), st.LastTick)
	_, ok = snap.Get("nope")
	require.False(t, ok)

	m.Teardown()
	snap = m.Snapshot()
	require.True(t, snap.Closed)
	require.Empty(t, snap.Tasks)
	require.EqualValues(t, 2, snap.Registered)
	require.EqualValues(t, 2, snap.Cancelled)
}

func TestHooks_RegisterAndCancel(t *testing.T) {
	t.Parallel()

	var regs []RegisterInfo
	var cancels []CancelInfo
	var teardown TeardownInfo
	m := NewManager(
		WithOnRegister(func(info RegisterInfo) { regs = append(regs, info) }),
		WithOnCancel(func(info CancelInfo) { cancels = append(cancels, info) }),
		WithOnTeardown(func(info TeardownInfo) { teardown = info }),
		WithOnRegister(func(RegisterInfo) { panic("hook panics are contained") }),
	)
	m.MustRegister(&fakeTask{}, WithName("a"))
	m.MustCreatePeriodic(time.Hour, func(context.Context, uint64) {}, WithName("b"))
	m.Teardown()

	require.Len(t, regs, 2)
	require.Equal(t, KindExternal, regs[0].Kind)
	require.Equal(t, KindPeriodic, regs[1].Kind)
	require.Equal(t, time.Hour, regs[1].Period)
	require.Len(t, cancels, 2)
	for _, c := range cancels {
		require.Equal(t, ReasonTeardown, c.Reason)
		require.Equal(t, m.ID(), c.ScopeID)
	}
	require.Equal(t, 2, teardown.Cancelled)
}

func TestNewManager_UniqueIDs(t *testing.T) {
	t.Parallel()

	a, b := NewManager(), NewManager()
	require.NotEmpty(t, a.ID())
	require.NotEqual(t, a.ID(), b.ID())
}

func TestConcurrentRegisterAndTeardown_EveryTaskCancelledOnce(t *testing.T) {
	t.Parallel()

	m := NewManager()
	tasks := make([]*fakeTask, 200)
	for i := range tasks {
		tasks[i] = &fakeTask{id: i}
	}

	var wg sync.WaitGroup
	for i := range tasks {
		wg.Add(1)
		go func(task *fakeTask) {
			defer wg.Done()
			_, _ = m.Register(task)
		}(tasks[i])
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		m.Teardown()
	}()
	wg.Wait()
	m.Teardown()

	for _, task := range tasks {
		require.EqualValues(t, 1, task.calls.Load(), "task %d", task.id)
	}
}
