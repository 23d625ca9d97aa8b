// Package scope provides a component-scoped resource lifecycle manager.
//
// A Manager owns every cancellable task created during one activation of a component
// (a request handler, a UI widget, a session) and guarantees each task is cancelled exactly
// once when that activation ends.
//
// # Design highlights
//
//   - Register: store the cancellation of an already-started task.
//   - CreatePeriodic: start a periodic ticker and register it before returning.
//   - Teardown: cancel every stored task in registration order, then clear the store.
//   - Single use: a Manager is never reused across activations. After Teardown,
//     Register cancels the supplied task and returns ErrClosed; CreatePeriodic starts
//     nothing and returns ErrClosed.
//
// # Lifecycle
//
//	m := scope.NewManager(scope.WithManagerName("price"), scope.WithLogger(log))
//	_, _ = m.CreatePeriodic(time.Second, func(ctx context.Context, tick uint64) {
//		log.Info("tick", zap.Uint64("n", tick))
//	}, scope.WithName("price-ticker"))
//	defer m.Teardown()
//
// Teardown is idempotent and safe with zero registered tasks.
//
// # Cancellation guarantees
//
// Cancelling a task twice (explicitly via its Handle, then implicitly via Teardown) is a
// no-op the second time. Tick dispatch and cancellation are serialized per task: once
// Handle.Cancel (or Teardown) has returned, no further tick is dispatched. A tick callback
// already running at that moment is allowed to finish; use Manager.Wait to block until all
// in-flight callbacks have returned. Teardown itself never blocks on callbacks, so it may be
// called from inside a tick callback.
//
// # Ticks
//
// Tick callbacks receive the tick count (0, 1, 2, ...) and a context that is cancelled when
// the task is cancelled. Callbacks of one task never overlap. A panicking callback is
// recovered and reported (see WithPanicHandler); the task keeps ticking.
//
// Periodic tasks use k8s.io/utils/clock; inject a fake clock with WithClock to drive
// ticks deterministically in tests.
//
// # Observability
//
// Manager.Snapshot and Handle.Status return point-in-time views. Manager options may install
// OnRegister/OnTick/OnCancel/OnTeardown hooks. Hooks are called synchronously and must not
// block.
package scope
