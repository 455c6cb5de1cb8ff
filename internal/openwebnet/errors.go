package openwebnet

import "errors"

// Domain-specific errors for OpenWebNet sessions.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrConnectionFailed is returned when the TCP connection or session handshake fails.
	ErrConnectionFailed = errors.New("openwebnet: connection failed")

	// ErrConnectionLost is returned when an established session breaks.
	ErrConnectionLost = errors.New("openwebnet: connection lost")

	// ErrAuthRequired is returned when the gateway asks for a password and none is configured.
	ErrAuthRequired = errors.New("openwebnet: password required")

	// ErrPasswordError is returned when the gateway rejects the password.
	ErrPasswordError = errors.New("openwebnet: password rejected")

	// ErrAuthUnsupported is returned when the gateway requests HMAC authentication.
	ErrAuthUnsupported = errors.New("openwebnet: HMAC authentication not supported")

	// ErrDecode is returned for frames that are not valid OpenWebNet.
	ErrDecode = errors.New("openwebnet: malformed frame")

	// ErrNACK is returned when the gateway refuses a command.
	ErrNACK = errors.New("openwebnet: command refused (NACK)")

	// ErrTimeout is returned when the gateway does not acknowledge in time.
	ErrTimeout = errors.New("openwebnet: operation timed out")

	// ErrSessionClosed is returned when using a session after Close.
	ErrSessionClosed = errors.New("openwebnet: session closed")
)

// IsAuthError reports whether err is one of the authentication failures.
// Authentication failures are never retried automatically.
func IsAuthError(err error) bool {
	return errors.Is(err, ErrAuthRequired) ||
		errors.Is(err, ErrPasswordError) ||
		errors.Is(err, ErrAuthUnsupported)
}
