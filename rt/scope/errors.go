package scope

import "errors"

var (
	// ErrClosed is returned when the manager has been torn down.
	ErrClosed = errors.New("scope: manager closed")

	// ErrInvalidName is returned when a task name is invalid.
	//
	// Name rules:
	//   - name is optional (empty means unnamed)
	//   - non-empty name must match [A-Za-z0-9._-]
	//   - name is normalized by strings.TrimSpace before validation
	ErrInvalidName = errors.New("scope: invalid name")

	// ErrDuplicateName is returned when a non-empty task name is already held by a
	// live task of the same manager.
	ErrDuplicateName = errors.New("scope: duplicate name")
)
