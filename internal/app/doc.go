// Package app runs the lifekit demo: a product page component whose price child is mounted
// and unmounted on a schedule, plus an optional ops HTTP listener.
//
// Run is Start, then wait for an exit condition (context, signal, configured duration or
// a failing listener), then Shutdown.
package app
