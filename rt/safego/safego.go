package safego

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"

	"go.uber.org/zap"
)

// Go starts fn in a new goroutine, applying the configured panic handling.
func Go(ctx context.Context, fn func(context.Context), opts ...Option) {
	GoErr(ctx, func(ctx context.Context) error {
		fn(ctx)
		return nil
	}, opts...)
}

// GoErr starts fn in a new goroutine, applying the configured panic/error handling.
//
// The error returned by fn is reported, not returned.
func GoErr(ctx context.Context, fn func(context.Context) error, opts ...Option) {
	go RunErr(ctx, fn, opts...)
}

// Run executes fn synchronously, applying the configured panic handling.
//
// It reports whether fn completed without panicking.
func Run(ctx context.Context, fn func(context.Context), opts ...Option) (ok bool) {
	return RunErr(ctx, func(ctx context.Context) error {
		fn(ctx)
		return nil
	}, opts...)
}

// RunErr executes fn synchronously, applying the configured panic/error handling.
//
// The error returned by fn is reported via WithErrorHandler or the logger, subject to
// context-cancel filtering. RunErr reports whether fn completed without panicking.
//
// If ctx is nil, it is treated as context.Background().
func RunErr(ctx context.Context, fn func(context.Context) error, opts ...Option) (ok bool) {
	if ctx == nil {
		ctx = context.Background()
	}

	c := defaultConfig()
	for _, opt := range opts {
		if opt != nil {
			opt(&c)
		}
	}

	// LIFO, and also on repanic.
	defer runFinalizers(ctx, c)

	defer func() {
		p := recover()
		if p == nil {
			return
		}
		ok = false
		info := PanicInfo{
			Name:  c.name,
			Tags:  cloneTags(c.tags),
			Value: p,
			Stack: debug.Stack(),
		}
		if c.onPanic != nil {
			callPanicHandlerNoPanic(ctx, c.log(), c.onPanic, info)
		} else {
			reportPanic(c.log(), info)
		}
		if c.panicPolicy == RepanicAfterReport {
			panic(p)
		}
	}()

	err := fn(ctx)
	ok = true
	if err == nil {
		return ok
	}
	if !c.reportContextCancel && isContextCancel(err) {
		return ok
	}

	info := ErrorInfo{
		Name: c.name,
		Tags: cloneTags(c.tags),
		Err:  err,
	}
	if c.onError != nil {
		callErrorHandlerNoPanic(ctx, c.log(), c.onError, info)
		return ok
	}
	reportError(c.log(), info)
	return ok
}

func runFinalizers(ctx context.Context, c config) {
	for i := len(c.finally) - 1; i >= 0; i-- {
		fn := c.finally[i]
		func() {
			defer func() {
				p := recover()
				if p == nil {
					return
				}
				info := PanicInfo{
					Name:  c.name,
					Tags:  cloneTags(c.tags),
					Value: fmt.Sprintf("safego: finalizer panicked: %v", p),
					Stack: debug.Stack(),
				}
				if c.onPanic != nil {
					callPanicHandlerNoPanic(ctx, c.log(), c.onPanic, info)
				} else {
					reportPanic(c.log(), info)
				}
			}()
			fn()
		}()
	}
}

func cloneTags(tags []Tag) []Tag {
	if len(tags) == 0 {
		return nil
	}
	out := make([]Tag, len(tags))
	copy(out, tags)
	return out
}

func isContextCancel(err error) bool {
	return errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded)
}

func callErrorHandlerNoPanic(ctx context.Context, l *zap.Logger, h ErrorHandler, info ErrorInfo) {
	defer func() {
		if p := recover(); p != nil {
			reportPanic(l, PanicInfo{
				Name:  info.Name,
				Tags:  info.Tags,
				Value: fmt.Sprintf("safego: error handler panicked: %v", p),
				Stack: debug.Stack(),
			})
		}
	}()
	h(ctx, info)
}

func callPanicHandlerNoPanic(ctx context.Context, l *zap.Logger, h PanicHandler, info PanicInfo) {
	defer func() {
		if p := recover(); p != nil {
			reportPanic(l, PanicInfo{
				Name:  info.Name,
				Tags:  info.Tags,
				Value: fmt.Sprintf("safego: panic handler panicked: %v", p),
				Stack: debug.Stack(),
			})
		}
	}()
	h(ctx, info)
}
