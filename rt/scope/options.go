package scope

import (
	"github.com/evan-idocoding/lifekit/rt/safego"
	"go.uber.org/zap"
	"k8s.io/utils/clock"
)

type taskConfig struct {
	name string
	tags []safego.Tag
}

// Option configures a single Register/CreatePeriodic call.
type Option func(*taskConfig)

// WithName sets a human-friendly task name.
//
// Notes:
//   - Name is optional (empty means unnamed).
//   - Name is normalized by strings.TrimSpace.
//   - Non-empty names must match [A-Za-z0-9._-].
//   - Non-empty names are unique among the live tasks of a Manager.
func WithName(name string) Option {
	return func(c *taskConfig) { c.name = name }
}

// WithTags appends tags carried by panic reports of the task's tick callbacks.
func WithTags(tags ...safego.Tag) Option {
	return func(c *taskConfig) {
		if len(tags) == 0 {
			return
		}
		c.tags = append(c.tags, tags...)
	}
}

func taskConfigFrom(opts []Option) (taskConfig, error) {
	var c taskConfig
	for _, opt := range opts {
		if opt != nil {
			opt(&c)
		}
	}
	name, err := checkName(c.name)
	if err != nil {
		return c, err
	}
	c.name = name
	return c, nil
}

type managerConfig struct {
	name   string
	clock  clock.WithTicker
	logger *zap.Logger

	onPanic safego.PanicHandler

	onRegister []func(RegisterInfo)
	onTick     []func(TickInfo)
	onCancel   []func(CancelInfo)
	onTeardown []func(TeardownInfo)
}

// ManagerOption configures a Manager.
type ManagerOption func(*managerConfig)

// WithManagerName sets a human-friendly name for the manager, usually the owning
// component's name. It shows up in logs and snapshots.
func WithManagerName(name string) ManagerOption {
	return func(c *managerConfig) { c.name = name }
}

// WithClock sets the time source for periodic tasks. Default is clock.RealClock.
func WithClock(clk clock.WithTicker) ManagerOption {
	return func(c *managerConfig) { c.clock = clk }
}

// WithLogger sets the logger. Default is zap.NewNop.
func WithLogger(l *zap.Logger) ManagerOption {
	return func(c *managerConfig) { c.logger = l }
}

// WithPanicHandler sets the handler for panicking tick callbacks.
// If not set, panics are logged at error level.
func WithPanicHandler(h safego.PanicHandler) ManagerOption {
	return func(c *managerConfig) { c.onPanic = h }
}

// WithOnRegister adds a hook called after a task is registered.
func WithOnRegister(fn func(RegisterInfo)) ManagerOption {
	return func(c *managerConfig) {
		if fn != nil {
			c.onRegister = append(c.onRegister, fn)
		}
	}
}

// WithOnTick adds a hook called after every tick callback returns.
func WithOnTick(fn func(TickInfo)) ManagerOption {
	return func(c *managerConfig) {
		if fn != nil {
			c.onTick = append(c.onTick, fn)
		}
	}
}

// WithOnCancel adds a hook called once per cancelled task.
func WithOnCancel(fn func(CancelInfo)) ManagerOption {
	return func(c *managerConfig) {
		if fn != nil {
			c.onCancel = append(c.onCancel, fn)
		}
	}
}

// WithOnTeardown adds a hook called once, at the end of the first Teardown.
func WithOnTeardown(fn func(TeardownInfo)) ManagerOption {
	return func(c *managerConfig) {
		if fn != nil {
			c.onTeardown = append(c.onTeardown, fn)
		}
	}
}
