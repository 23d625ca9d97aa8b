package scope

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/evan-idocoding/lifekit/rt/safego"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"k8s.io/utils/clock"
)

// Manager tracks the tasks of one component activation.
//
// It is safe for concurrent use. Use NewManager to create one; a Manager is single-use.
type Manager struct {
	id  string
	cfg managerConfig
	clk clock.WithTicker
	log *zap.Logger

	mu      sync.Mutex
	closed  bool
	entries []*entry
	names   map[string]*entry // live named entries
	seen    map[Task]struct{} // live comparable tasks

	registered uint64
	cancelled  uint64

	loops int           // running periodic goroutines
	idle  chan struct{} // closed when loops drops to zero; nil while zero
}

// NewManager creates a new, active Manager.
func NewManager(opts ...ManagerOption) *Manager {
	var cfg managerConfig
	for _, opt := range opts {
		if opt != nil {
			opt(&cfg)
		}
	}
	m := &Manager{
		id:    uuid.NewString(),
		cfg:   cfg,
		clk:   cfg.clock,
		log:   cfg.logger,
		names: make(map[string]*entry),
		seen:  make(map[Task]struct{}),
	}
	if m.clk == nil {
		m.clk = clock.RealClock{}
	}
	if m.log == nil {
		m.log = zap.NewNop()
	}
	m.log = m.log.With(zap.String("scope_id", m.id))
	if cfg.name != "" {
		m.log = m.log.With(zap.String("scope", cfg.name))
	}
	return m
}

// ID returns the unique id of this manager (one per activation).
func (m *Manager) ID() string { return m.id }

// Name returns the configured manager name (may be empty).
func (m *Manager) Name() string { return m.cfg.name }

// Register stores the cancellation of an already-started task and returns its handle.
//
// After Teardown, Register cancels t immediately and returns ErrClosed. An invalid or
// duplicate name returns an error and leaves t untouched (the caller still owns it).
//
// Registering the same task twice, or a nil task, panics. Duplicates are detected only for
// tasks usable as map keys.
func (m *Manager) Register(t Task, opts ...Option) (Handle, error) {
	if t == nil {
		panic("scope: Register called with nil Task")
	}
	c, err := taskConfigFrom(opts)
	if err != nil {
		return nil, err
	}
	e := &entry{m: m, task: t, name: c.name, kind: KindExternal, keyed: hashable(t)}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		e.cancel(ReasonRejected)
		return nil, ErrClosed
	}
	if err := m.insertLocked(e); err != nil {
		m.mu.Unlock()
		if err == errDuplicateTask {
			panic(fmt.Sprintf("scope: task %T registered twice", t))
		}
		return nil, err
	}
	m.mu.Unlock()

	m.afterRegister(e)
	return e, nil
}

// MustRegister is like Register but panics on error.
func (m *Manager) MustRegister(t Task, opts ...Option) Handle {
	h, err := m.Register(t, opts...)
	if err != nil {
		panic(err)
	}
	return h
}

// CreatePeriodic starts a periodic task that calls onTick every period, registers it, and
// returns its handle. The first tick happens one period after creation.
//
// After Teardown, it starts nothing and returns ErrClosed.
//
// A period <= 0 or a nil onTick panics (configuration error).
func (m *Manager) CreatePeriodic(period time.Duration, onTick TickFunc, opts ...Option) (Handle, error) {
	if onTick == nil {
		panic("scope: CreatePeriodic called with nil TickFunc")
	}
	if period <= 0 {
		panic(fmt.Sprintf("scope: CreatePeriodic period=%s is invalid (must be > 0)", period))
	}
	c, err := taskConfigFrom(opts)
	if err != nil {
		return nil, err
	}

	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil, ErrClosed
	}
	if c.name != "" {
		if _, exists := m.names[c.name]; exists {
			m.mu.Unlock()
			return nil, fmt.Errorf("%w: %q", ErrDuplicateName, c.name)
		}
	}
	p := newPeriodic(m, period, onTick, c)
	e := &entry{m: m, task: p, name: c.name, kind: KindPeriodic, periodic: p, keyed: true}
	_ = m.insertLocked(e)
	// Counted before unlock so Wait never misses a starting loop.
	m.loopStartedLocked()
	m.mu.Unlock()

	p.start()

	m.afterRegister(e)
	return e, nil
}

// MustCreatePeriodic is like CreatePeriodic but panics on error.
func (m *Manager) MustCreatePeriodic(period time.Duration, onTick TickFunc, opts ...Option) Handle {
	h, err := m.CreatePeriodic(period, onTick, opts...)
	if err != nil {
		panic(err)
	}
	return h
}

// Teardown cancels every live task in registration order, then clears the store.
//
// Teardown is idempotent and safe to call with zero registered tasks. It does not wait for
// in-flight tick callbacks; see Wait.
func (m *Manager) Teardown() {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.closed = true
	entries := m.entries
	m.entries = nil
	m.names = nil
	m.seen = nil
	m.mu.Unlock()

	n := 0
	for _, e := range entries {
		if e.cancel(ReasonTeardown) {
			n++
		}
	}

	m.log.Debug("scope torn down", zap.Int("cancelled", n))
	info := TeardownInfo{ScopeID: m.id, ScopeName: m.cfg.name, Cancelled: n}
	for _, fn := range m.cfg.onTeardown {
		m.callHook(func() { fn(info) })
	}
}

// Closed reports whether Teardown has been called.
func (m *Manager) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Len returns the number of live tasks.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.entries)
}

// Wait blocks until every periodic goroutine of this manager has exited, or ctx is done.
//
// Wait returns promptly only after the tasks were cancelled (explicitly or by Teardown).
// It must not be called from inside a tick callback. Wait starts no goroutine, so giving up
// on ctx leaves nothing behind. If ctx is nil, it is treated as context.Background().
func (m *Manager) Wait(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	m.mu.Lock()
	idle := m.idle
	m.mu.Unlock()
	if idle == nil {
		return nil
	}
	select {
	case <-idle:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Lookup finds a live task handle by name.
func (m *Manager) Lookup(name string) (Handle, bool) {
	name, err := checkName(name)
	if err != nil || name == "" {
		return nil, false
	}
	m.mu.Lock()
	e, ok := m.names[name]
	m.mu.Unlock()
	if !ok {
		return nil, false
	}
	return e, true
}

// Snapshot returns a point-in-time view of the manager.
func (m *Manager) Snapshot() Snapshot {
	m.mu.Lock()
	entries := append([]*entry(nil), m.entries...)
	snap := Snapshot{
		ScopeID:    m.id,
		ScopeName:  m.cfg.name,
		Closed:     m.closed,
		Registered: m.registered,
		Cancelled:  m.cancelled,
	}
	m.mu.Unlock()

	snap.Tasks = make([]Status, 0, len(entries))
	for _, e := range entries {
		snap.Tasks = append(snap.Tasks, e.Status())
	}
	return snap
}

func (m *Manager) loopStartedLocked() {
	if m.loops == 0 {
		m.idle = make(chan struct{})
	}
	m.loops++
}

func (m *Manager) loopDone() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.loops--
	if m.loops == 0 {
		close(m.idle)
		m.idle = nil
	}
}

var errDuplicateTask = errors.New("scope: duplicate task")

// hashable reports whether t can be used as a map key. Func-typed tasks cannot, and
// neither can a comparable type whose interface fields hold slices, maps or funcs.
func hashable(t Task) (ok bool) {
	if !reflect.TypeOf(t).Comparable() {
		return false
	}
	defer func() {
		if recover() != nil {
			ok = false
		}
	}()
	_ = map[Task]struct{}{t: {}}
	return true
}

// insertLocked appends e to the store. m.mu must be held.
func (m *Manager) insertLocked(e *entry) error {
	if e.name != "" {
		if _, exists := m.names[e.name]; exists {
			return fmt.Errorf("%w: %q", ErrDuplicateName, e.name)
		}
	}
	if e.keyed {
		if _, exists := m.seen[e.task]; exists {
			return errDuplicateTask
		}
		m.seen[e.task] = struct{}{}
	}
	if e.name != "" {
		m.names[e.name] = e
	}
	e.registeredAt = m.clk.Now()
	m.entries = append(m.entries, e)
	m.registered++
	return nil
}

// forget drops an explicitly cancelled entry from the live store.
func (m *Manager) forget(e *entry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for i, x := range m.entries {
		if x != e {
			continue
		}
		m.entries = append(m.entries[:i], m.entries[i+1:]...)
		break
	}
	if e.name != "" && m.names[e.name] == e {
		delete(m.names, e.name)
	}
	if m.seen != nil && e.keyed {
		delete(m.seen, e.task)
	}
}

func (m *Manager) afterRegister(e *entry) {
	var period time.Duration
	if e.periodic != nil {
		period = e.periodic.period
	}
	m.log.Debug("task registered",
		zap.String("task", e.name),
		zap.Stringer("kind", e.kind),
		zap.Duration("period", period))
	info := RegisterInfo{ScopeID: m.id, Name: e.name, Kind: e.kind, Period: period}
	for _, fn := range m.cfg.onRegister {
		m.callHook(func() { fn(info) })
	}
}

func (m *Manager) afterCancel(e *entry, reason CancelReason) {
	var ticks uint64
	if e.periodic != nil {
		ticks = e.periodic.Status().Ticks
	}
	if reason != ReasonRejected {
		m.mu.Lock()
		m.cancelled++
		m.mu.Unlock()
	}
	m.log.Debug("task cancelled",
		zap.String("task", e.name),
		zap.Stringer("kind", e.kind),
		zap.Stringer("reason", reason),
		zap.Uint64("ticks", ticks))
	info := CancelInfo{ScopeID: m.id, Name: e.name, Kind: e.kind, Reason: reason, Ticks: ticks}
	for _, fn := range m.cfg.onCancel {
		m.callHook(func() { fn(info) })
	}
}

func (m *Manager) afterTick(info TickInfo) {
	for _, fn := range m.cfg.onTick {
		m.callHook(func() { fn(info) })
	}
}

func (m *Manager) callHook(fn func()) {
	safego.Run(context.Background(), func(context.Context) { fn() },
		safego.WithName("scope-hook"),
		safego.WithLogger(m.log),
	)
}

// entry is the Handle implementation: one registered task.
type entry struct {
	m        *Manager
	task     Task
	name     string
	kind     Kind
	periodic *periodic // nil for external tasks
	keyed    bool      // task is tracked in m.seen

	once sync.Once

	mu           sync.Mutex
	cancelled    bool
	registeredAt time.Time
	cancelledAt  time.Time
}

func (e *entry) Name() string { return e.name }

func (e *entry) Cancel() {
	if e.cancel(ReasonExplicit) {
		e.m.forget(e)
	}
}

func (e *entry) Cancelled() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.cancelled
}

func (e *entry) Status() Status {
	var st Status
	if e.periodic != nil {
		st = e.periodic.Status()
	}
	e.mu.Lock()
	st.Name = e.name
	st.Kind = e.kind
	st.RegisteredAt = e.registeredAt
	st.CancelledAt = e.cancelledAt
	if e.cancelled {
		st.State = StateCancelled
	} else {
		st.State = StateActive
	}
	e.mu.Unlock()
	return st
}

// cancel cancels the underlying task exactly once and reports whether this call did it.
func (e *entry) cancel(reason CancelReason) bool {
	did := false
	e.once.Do(func() {
		did = true
		safego.Run(context.Background(), func(context.Context) { e.task.Cancel() },
			safego.WithName(e.name),
			safego.WithTag("op", "cancel"),
			safego.WithLogger(e.m.log),
		)
		e.mu.Lock()
		e.cancelled = true
		e.cancelledAt = e.m.clk.Now()
		e.mu.Unlock()
		e.m.afterCancel(e, reason)
	})
	return did
}
