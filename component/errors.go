package component

import "errors"

var (
	// ErrAlreadyMounted is returned by Mount when the host already holds a mounted instance.
	ErrAlreadyMounted = errors.New("component: already mounted")
	// ErrNotMounted is returned by operations that need a mounted instance.
	ErrNotMounted = errors.New("component: not mounted")
)
