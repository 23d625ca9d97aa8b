package component

import (
	"github.com/evan-idocoding/lifekit/rt/scope"
	"go.uber.org/zap"
)

// Context is what a mounted component sees of its host.
//
// A Context is valid for one mount only; its Scope is torn down on Unmount.
type Context struct {
	// Name is the host name.
	Name string
	// Mount is the 1-based mount counter of the host.
	Mount uint64
	// Scope owns the tasks of this mount.
	Scope *scope.Manager
	// Logger is annotated with the component name and the scope id.
	Logger *zap.Logger
}
