package component

import "fmt"

// Activator is called once per mount, after the first OnChanges.
// Returning an error aborts the mount; the scope is torn down.
type Activator interface {
	OnActivate(c *Context) error
}

// Deactivator is called once per mount, right before the scope is torn down.
type Deactivator interface {
	OnDeactivate(c *Context)
}

// ChangeListener receives input changes: once before OnActivate if the mount has inputs,
// then on every SetInput/SetInputs.
type ChangeListener interface {
	OnChanges(c *Context, changes Changes)
}

// Checker is called on every check pass.
type Checker interface {
	OnCheck(c *Context)
}

// ContentInitializer is called once per mount, after the first check.
type ContentInitializer interface {
	AfterContentInit(c *Context)
}

// ContentChecker is called after every check pass.
type ContentChecker interface {
	AfterContentChecked(c *Context)
}

// ViewInitializer is called once per mount, after content init.
type ViewInitializer interface {
	AfterViewInit(c *Context)
}

// ViewChecker is called after every check pass, last.
type ViewChecker interface {
	AfterViewChecked(c *Context)
}

// Phase names a lifecycle hook.
type Phase int

const (
	PhaseChanges Phase = iota
	PhaseActivate
	PhaseCheck
	PhaseContentInit
	PhaseContentChecked
	PhaseViewInit
	PhaseViewChecked
	PhaseDeactivate
)

func (p Phase) String() string {
	switch p {
	case PhaseChanges:
		return "changes"
	case PhaseActivate:
		return "activate"
	case PhaseCheck:
		return "check"
	case PhaseContentInit:
		return "content-init"
	case PhaseContentChecked:
		return "content-checked"
	case PhaseViewInit:
		return "view-init"
	case PhaseViewChecked:
		return "view-checked"
	case PhaseDeactivate:
		return "deactivate"
	default:
		return fmt.Sprintf("Phase(%d)", int(p))
	}
}

// Change is one input change.
type Change struct {
	Previous any
	Current  any
	// First is true for the value delivered on mount.
	First bool
}

// Changes maps input names to their change.
type Changes map[string]Change

// Inputs are named input values.
type Inputs map[string]any
