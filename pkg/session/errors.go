package session

import "errors"

var (
	// ErrBusy is returned when a move is requested while a plan is executing.
	ErrBusy = errors.New("a plan is already executing")

	// ErrNotExecuting is returned when committing a plan that is not the executing one.
	ErrNotExecuting = errors.New("plan is not executing")
)
