// Package lifekit ties asynchronous work to the lifetime of the component that started it.
//
// Every component activation owns a scope (rt/scope.Manager). Tasks started during the
// activation are registered with the scope, or created through it as periodic tickers, and the
// scope cancels all of them when the component is deactivated. A late tick never runs after
// teardown, and a fresh activation gets a fresh scope.
//
// # Packages
//
//   - rt/scope: the per-activation task manager (Register, CreatePeriodic, Teardown)
//   - rt/safego: panic-contained execution used for tick callbacks, cancels and hooks
//   - rt/scopemetrics: Prometheus metrics installed as scope hooks
//   - component: a Host that mounts components, drives their lifecycle hooks and tears
//     down their scope on unmount
//   - ops: net/http handlers for health, scope snapshots, task cancellation and log level
//
// The lifekit-demo command (cmd/lifekit-demo) runs a product page whose price component is
// mounted and unmounted on a schedule and ticks only while mounted.
package lifekit
