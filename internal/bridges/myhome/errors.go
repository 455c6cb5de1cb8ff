package myhome

import "errors"

// Domain errors for the MyHOME bridge package.
var (
	// ErrDuplicateHandler is returned by Registry.Add when another handler
	// already owns the key.
	ErrDuplicateHandler = errors.New("myhome: handler already registered for key")

	// ErrAlreadyListening is returned by StartListening while a previous
	// listener is still running.
	ErrAlreadyListening = errors.New("myhome: listener already running")

	// ErrInvalidIdentity is returned by New when the gateway identity is incomplete.
	ErrInvalidIdentity = errors.New("myhome: invalid gateway identity")

	// ErrUnknownService is returned by CallService for an unsupported service name.
	ErrUnknownService = errors.New("myhome: unknown service")

	// ErrInvalidServiceData is returned by CallService when the payload is malformed.
	ErrInvalidServiceData = errors.New("myhome: invalid service data")
)
