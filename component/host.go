package component

import (
	"context"
	"fmt"
	"sync"

	"github.com/evan-idocoding/lifekit/rt/safego"
	"github.com/evan-idocoding/lifekit/rt/scope"
	"go.uber.org/zap"
)

// Factory creates a fresh component instance. It is called once per Mount.
type Factory func() any

type hostConfig struct {
	logger    *zap.Logger
	scopeOpts []scope.ManagerOption
}

// HostOption configures a Host.
type HostOption func(*hostConfig)

// WithLogger sets the logger handed to components. Default is zap.NewNop.
func WithLogger(l *zap.Logger) HostOption {
	return func(c *hostConfig) { c.logger = l }
}

// WithScopeOptions appends options applied to every scope.Manager the host creates.
// The manager name is always set to the host name.
func WithScopeOptions(opts ...scope.ManagerOption) HostOption {
	return func(c *hostConfig) { c.scopeOpts = append(c.scopeOpts, opts...) }
}

// Host mounts and unmounts instances of one component.
//
// Host methods are serialized; they are safe for concurrent use but must not be called
// from the hooks of the component the host is running.
type Host struct {
	name    string
	factory Factory
	log     *zap.Logger
	opts    []scope.ManagerOption

	mu     sync.Mutex
	mounts uint64
	inst   any
	ctx    *Context
	inputs Inputs
	scopes []*scope.Manager // not yet waited for
}

// NewHost creates an unmounted host.
//
// An empty name or a nil factory panics.
func NewHost(name string, factory Factory, opts ...HostOption) *Host {
	if name == "" {
		panic("component: NewHost called with empty name")
	}
	if factory == nil {
		panic("component: NewHost called with nil Factory")
	}
	var c hostConfig
	for _, opt := range opts {
		if opt != nil {
			opt(&c)
		}
	}
	if c.logger == nil {
		c.logger = zap.NewNop()
	}
	return &Host{
		name:    name,
		factory: factory,
		log:     c.logger.With(zap.String("component", name)),
		opts:    c.scopeOpts,
	}
}

// Name returns the host name.
func (h *Host) Name() string { return h.name }

// Mount creates a new instance and a new scope, then runs the mount phases.
//
// If OnActivate fails or any hook panics, the scope is torn down and the host stays
// unmounted; a panic is re-raised after the teardown.
func (h *Host) Mount(inputs Inputs) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.inst != nil {
		return ErrAlreadyMounted
	}

	inst := h.factory()
	if inst == nil {
		panic(fmt.Sprintf("component: factory of %q returned nil", h.name))
	}
	h.mounts++
	opts := append(append([]scope.ManagerOption(nil), h.opts...), scope.WithManagerName(h.name))
	m := scope.NewManager(opts...)
	h.scopes = append(h.scopes, m)
	c := &Context{
		Name:   h.name,
		Mount:  h.mounts,
		Scope:  m,
		Logger: h.log.With(zap.String("scope_id", m.ID())),
	}

	mounted := false
	defer func() {
		if !mounted {
			m.Teardown()
		}
	}()

	cur := make(Inputs, len(inputs))
	if len(inputs) > 0 {
		changes := make(Changes, len(inputs))
		for k, v := range inputs {
			cur[k] = v
			changes[k] = Change{Current: v, First: true}
		}
		if l, ok := inst.(ChangeListener); ok {
			h.trace(c, PhaseChanges)
			l.OnChanges(c, changes)
		}
	}
	if a, ok := inst.(Activator); ok {
		h.trace(c, PhaseActivate)
		if err := h.activate(a, c); err != nil {
			c.Logger.Warn("activation failed", zap.Error(err))
			return fmt.Errorf("component: activate %q: %w", h.name, err)
		}
	}
	h.check(inst, c)
	if i, ok := inst.(ContentInitializer); ok {
		h.trace(c, PhaseContentInit)
		i.AfterContentInit(c)
	}
	h.afterContentChecked(inst, c)
	if i, ok := inst.(ViewInitializer); ok {
		h.trace(c, PhaseViewInit)
		i.AfterViewInit(c)
	}
	h.afterViewChecked(inst, c)

	mounted = true
	h.inst, h.ctx, h.inputs = inst, c, cur
	c.Logger.Debug("mounted", zap.Uint64("mount", c.Mount))
	return nil
}

// SetInput updates one input. See SetInputs.
func (h *Host) SetInput(name string, v any) error {
	return h.SetInputs(Inputs{name: v})
}

// SetInputs updates inputs, delivers the changed ones to OnChanges and runs a check pass.
// Values equal to the current ones (by ==) are not reported; the check pass runs anyway.
func (h *Host) SetInputs(in Inputs) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.inst == nil {
		return ErrNotMounted
	}
	changes := make(Changes, len(in))
	for k, v := range in {
		prev, had := h.inputs[k]
		if had && sameValue(prev, v) {
			continue
		}
		changes[k] = Change{Previous: prev, Current: v, First: !had}
		h.inputs[k] = v
	}
	if l, ok := h.inst.(ChangeListener); ok && len(changes) > 0 {
		h.trace(h.ctx, PhaseChanges)
		l.OnChanges(h.ctx, changes)
	}
	h.check(h.inst, h.ctx)
	h.afterContentChecked(h.inst, h.ctx)
	h.afterViewChecked(h.inst, h.ctx)
	return nil
}

// Check runs a check pass: OnCheck, AfterContentChecked, AfterViewChecked.
func (h *Host) Check() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.inst == nil {
		return ErrNotMounted
	}
	h.check(h.inst, h.ctx)
	h.afterContentChecked(h.inst, h.ctx)
	h.afterViewChecked(h.inst, h.ctx)
	return nil
}

// Unmount runs OnDeactivate and then tears down the scope of the current mount.
// The teardown happens even if OnDeactivate panics.
func (h *Host) Unmount() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.inst == nil {
		return ErrNotMounted
	}
	inst, c := h.inst, h.ctx
	h.inst, h.ctx, h.inputs = nil, nil, nil

	defer func() {
		c.Scope.Teardown()
		c.Logger.Debug("unmounted", zap.Uint64("mount", c.Mount))
	}()
	if d, ok := inst.(Deactivator); ok {
		h.trace(c, PhaseDeactivate)
		d.OnDeactivate(c)
	}
	return nil
}

// Wait blocks until the tick goroutines of every scope this host has created exited, or
// ctx is done. Periodic tasks of a mounted scope keep Wait blocked until they are cancelled.
func (h *Host) Wait(ctx context.Context) error {
	h.mu.Lock()
	scopes := append([]*scope.Manager(nil), h.scopes...)
	h.mu.Unlock()

	done := make(map[*scope.Manager]bool, len(scopes))
	for _, m := range scopes {
		// Closed before waiting means no loop can start later.
		closed := m.Closed()
		if err := m.Wait(ctx); err != nil {
			return fmt.Errorf("component: wait %q: %w", h.name, err)
		}
		done[m] = closed
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	live := h.scopes[:0]
	for _, m := range h.scopes {
		if !done[m] {
			live = append(live, m)
		}
	}
	clear(h.scopes[len(live):])
	h.scopes = live
	return nil
}

// Mounted reports whether an instance is mounted.
func (h *Host) Mounted() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.inst != nil
}

// Mounts returns how many times Mount has created an instance.
func (h *Host) Mounts() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.mounts
}

// Instance returns the mounted instance, or nil.
func (h *Host) Instance() any {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.inst
}

// Scope returns the scope of the current mount, or nil when unmounted.
func (h *Host) Scope() *scope.Manager {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.ctx == nil {
		return nil
	}
	return h.ctx.Scope
}

// activate runs OnActivate. A panic is logged and re-raised. Every returned error fails
// the mount, context errors included.
func (h *Host) activate(a Activator, c *Context) error {
	var err error
	safego.RunErr(context.Background(), func(context.Context) error { return a.OnActivate(c) },
		safego.WithName(h.name),
		safego.WithTag("phase", PhaseActivate.String()),
		safego.WithLogger(c.Logger),
		safego.WithReportContextCancel(true),
		safego.WithErrorHandler(func(_ context.Context, info safego.ErrorInfo) { err = info.Err }),
		safego.WithPanicPolicy(safego.RepanicAfterReport),
	)
	return err
}

func (h *Host) check(inst any, c *Context) {
	if i, ok := inst.(Checker); ok {
		h.trace(c, PhaseCheck)
		i.OnCheck(c)
	}
}

func (h *Host) afterContentChecked(inst any, c *Context) {
	if i, ok := inst.(ContentChecker); ok {
		h.trace(c, PhaseContentChecked)
		i.AfterContentChecked(c)
	}
}

func (h *Host) afterViewChecked(inst any, c *Context) {
	if i, ok := inst.(ViewChecker); ok {
		h.trace(c, PhaseViewChecked)
		i.AfterViewChecked(c)
	}
}

func (h *Host) trace(c *Context, p Phase) {
	c.Logger.Debug("hook", zap.Stringer("phase", p))
}

// sameValue compares with == when both values are comparable.
func sameValue(a, b any) (same bool) {
	defer func() {
		if recover() != nil {
			same = false
		}
	}()
	return a == b
}
