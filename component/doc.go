// Package component hosts components through explicit activation and deactivation phases.
//
// A component is any value created by a Factory. It opts into lifecycle phases by
// implementing the hook interfaces of this package (Activator, ChangeListener, Checker, ...).
// A Host drives one component slot:
//
//	h := component.NewHost("price", func() any { return &Price{} })
//	_ = h.Mount(component.Inputs{"price": 10.0}) // fresh instance, fresh scope.Manager
//	_ = h.SetInput("price", 11.0)                // OnChanges + check hooks
//	_ = h.Unmount()                              // OnDeactivate, then scope Teardown
//
// Each Mount creates a new instance and a new scope.Manager; managers are never reused.
// Unmount always tears down the scope, so tasks created through Context.Scope are cancelled
// even when the component forgets to release them, and even when activation failed.
//
// Hooks run synchronously on the goroutine calling the Host method. A hook must not call
// back into its own Host.
package component
