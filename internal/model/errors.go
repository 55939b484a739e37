package model

import "errors"

var (
	// ErrTabNotFound is returned when an operation targets a tab identifier
	// that is not in the registry.
	ErrTabNotFound = errors.New("tab not found")

	// ErrLastTab is returned when closing the sole remaining tab is refused.
	ErrLastTab = errors.New("cannot close the last tab")

	// ErrSessionNotFound is returned when a saved session is not found.
	ErrSessionNotFound = errors.New("saved session not found")

	// ErrRuntimeDisposed is returned when a command reaches a runtime that
	// has already been disposed.
	ErrRuntimeDisposed = errors.New("runtime disposed")
)
