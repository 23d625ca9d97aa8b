// Package ops provides net/http handlers for the operational endpoints of a lifekit process.
//
// ops does not choose routing paths, does not authenticate, and does not start servers;
// mount the handlers into your own router.
//
// # Formats
//
// Handlers render text by default. The default can be changed by options and overridden
// per request by URL query:
//   - ?format=text
//   - ?format=json
//
// Text output is line-based, tab-separated and greppable. JSON output is meant for tooling.
//
// # Handlers
//
//   - health: HealthzHandler (liveness), ReadyzHandler (required scopes are open)
//   - scopes: ScopesSnapshotHandler, TaskCancelHandler (rt/scope integration)
//   - logging: LogLevelGetHandler, LogLevelSetHandler (zap.AtomicLevel)
//
// Mount write handlers (cancel, set) behind your own authorization and consider restricting
// them with WithTaskAllowNames / WithTaskAllowPrefixes.
package ops
