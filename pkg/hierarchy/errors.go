package hierarchy

import "errors"

var (
	// ErrNoActiveAccount is returned when an operation is called without an account id
	ErrNoActiveAccount = errors.New("no active account")
	// ErrCycle is returned when a move would make an entity its own ancestor
	ErrCycle = errors.New("move would create a cycle")
	// ErrNotFound is returned when an entity id is unknown
	ErrNotFound = errors.New("entity not found")
	// ErrValidation is returned for malformed entities
	ErrValidation = errors.New("invalid entity")
	// ErrRemoteWrite wraps gateway failures on mutating operations
	ErrRemoteWrite = errors.New("remote write failed")
)
