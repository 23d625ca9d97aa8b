package safego

import "go.uber.org/zap"

type config struct {
	name string
	tags []Tag

	finally []func()

	logger *zap.Logger

	onError             ErrorHandler
	reportContextCancel bool

	onPanic     PanicHandler
	panicPolicy PanicPolicy
}

// Option configures a single Go/GoErr/Run/RunErr call.
type Option func(*config)

func defaultConfig() config {
	return config{
		panicPolicy: RecoverAndReport,
	}
}

// WithName sets a human-friendly name used in reports.
func WithName(name string) Option {
	return func(c *config) { c.name = name }
}

// WithTag appends a single tag to reports.
func WithTag(key, value string) Option {
	return func(c *config) {
		c.tags = append(c.tags, Tag{Key: key, Value: value})
	}
}

// WithTags appends tags to reports (preserving order).
func WithTags(tags ...Tag) Option {
	return func(c *config) {
		if len(tags) == 0 {
			return
		}
		c.tags = append(c.tags, tags...)
	}
}

// WithFinally registers a function to be called when execution finishes.
//
// Finalizers run in LIFO order (like defer), also when the function panics.
// A panicking finalizer is recovered and reported; it is not rethrown.
func WithFinally(fn func()) Option {
	return func(c *config) {
		if fn == nil {
			return
		}
		c.finally = append(c.finally, fn)
	}
}

// WithLogger sets the logger used when no handler is configured.
func WithLogger(l *zap.Logger) Option {
	return func(c *config) { c.logger = l }
}

// WithErrorHandler sets the error handler. Panics in the handler are contained.
func WithErrorHandler(h ErrorHandler) Option {
	return func(c *config) { c.onError = h }
}

// WithReportContextCancel controls whether context cancellation errors are reported.
func WithReportContextCancel(report bool) Option {
	return func(c *config) { c.reportContextCancel = report }
}

// WithPanicHandler sets the panic handler. Panics in the handler are contained.
func WithPanicHandler(h PanicHandler) Option {
	return func(c *config) { c.onPanic = h }
}

// WithPanicPolicy sets the panic handling policy.
func WithPanicPolicy(p PanicPolicy) Option {
	return func(c *config) { c.panicPolicy = p }
}
