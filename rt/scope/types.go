package scope

import (
	"context"
	"fmt"
	"time"
)

// TickFunc is called on every tick of a periodic task.
//
// tick starts at 0 and increases by one per call. ctx is cancelled when the task is
// cancelled.
type TickFunc func(ctx context.Context, tick uint64)

// Task is an already-started unit of work that can be cancelled.
//
// Cancel must be safe to call from any goroutine. The manager calls it at most once.
type Task interface {
	Cancel()
}

// CancelFunc adapts a plain function (for example a context.CancelFunc or a listener
// removal func) to Task.
type CancelFunc func()

// Cancel calls f.
func (f CancelFunc) Cancel() { f() }

// Handle is the cancellation handle of a registered task.
type Handle interface {
	// Name returns the configured name (may be empty).
	Name() string

	// Cancel cancels the task. It is idempotent, and Teardown after Cancel is a no-op
	// for this task.
	Cancel()

	// Cancelled reports whether the task has been cancelled.
	Cancelled() bool

	// Status returns a snapshot of the task's current status.
	Status() Status
}

// Kind identifies how a task was created.
type Kind int

const (
	// KindExternal is a task started by the caller and passed to Register.
	KindExternal Kind = iota
	// KindPeriodic is a task started by CreatePeriodic.
	KindPeriodic
)

func (k Kind) String() string {
	switch k {
	case KindExternal:
		return "external"
	case KindPeriodic:
		return "periodic"
	default:
		return fmt.Sprintf("Kind(%d)", int(k))
	}
}

// State is the lifecycle state of a task. Cancelled is terminal.
type State int

const (
	StateActive State = iota
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StateActive:
		return "active"
	case StateCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("State(%d)", int(s))
	}
}

// CancelReason tells why a task was cancelled.
type CancelReason int

const (
	// ReasonExplicit means Handle.Cancel was called.
	ReasonExplicit CancelReason = iota
	// ReasonTeardown means Manager.Teardown cancelled the task.
	ReasonTeardown
	// ReasonRejected means the task was passed to Register after Teardown.
	ReasonRejected
)

func (r CancelReason) String() string {
	switch r {
	case ReasonExplicit:
		return "explicit"
	case ReasonTeardown:
		return "teardown"
	case ReasonRejected:
		return "rejected"
	default:
		return fmt.Sprintf("CancelReason(%d)", int(r))
	}
}

// Status is a task state snapshot.
type Status struct {
	Name  string
	Kind  Kind
	State State

	// Period is zero for external tasks.
	Period time.Duration
	// Ticks counts dispatched tick callbacks (periodic tasks only).
	Ticks uint64
	// Panics counts tick callbacks that panicked.
	Panics uint64

	RegisteredAt time.Time
	LastTick     time.Time
	CancelledAt  time.Time
}

// Snapshot is a point-in-time view of a Manager.
type Snapshot struct {
	ScopeID   string
	ScopeName string
	Closed    bool

	// Tasks lists live tasks in registration order. It is empty after Teardown.
	Tasks []Status

	Registered uint64
	Cancelled  uint64
}

// Get finds a task status by name.
func (s Snapshot) Get(name string) (Status, bool) {
	for _, st := range s.Tasks {
		if st.Name == name {
			return st, true
		}
	}
	return Status{}, false
}

// RegisterInfo is passed to OnRegister hooks.
type RegisterInfo struct {
	ScopeID string
	Name    string
	Kind    Kind
	Period  time.Duration
}

// TickInfo is passed to OnTick hooks after each tick callback returns.
type TickInfo struct {
	ScopeID string
	Name    string

	Tick     uint64
	At       time.Time
	Duration time.Duration
	Panicked bool
}

// CancelInfo is passed to OnCancel hooks.
type CancelInfo struct {
	ScopeID string
	Name    string
	Kind    Kind
	Reason  CancelReason
	Ticks   uint64
}

// TeardownInfo is passed to OnTeardown hooks.
type TeardownInfo struct {
	ScopeID   string
	ScopeName string
	// Cancelled is the number of tasks cancelled by this Teardown call.
	Cancelled int
}
