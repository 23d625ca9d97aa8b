// Package safego runs callbacks with panic containment and structured reporting.
//
// It exists for the code paths in lifekit that execute user-supplied functions on internal
// goroutines: periodic tick callbacks and manager hooks. A panic in such a callback must not
// take down the process or silently stop the owning task, and it must be observable.
//
// safego does not return errors to its caller. Errors and panics are reported via handlers
// (if configured) or to the configured zap logger. When no logger is configured, reports go
// to a console logger on stderr at warn level, so failures are visible by default.
//
// # Synchronous vs asynchronous
//
// Go/GoErr start a new goroutine. Run/RunErr execute synchronously.
//
// Nil context: if ctx is nil, safego treats it as context.Background().
//
// # WaitGroup integration
//
//	wg.Add(1)
//	safego.GoErr(ctx, work,
//		safego.WithName("price-ticker"),
//		safego.WithFinally(wg.Done),
//	)
//
// # Context cancellation
//
// By default, context.Canceled and context.DeadlineExceeded are NOT reported. Use
// WithReportContextCancel(true) to report them.
package safego
