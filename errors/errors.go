package errors

import (
	"errors"
	"fmt"
)

var (
	// ErrAuthenticationFailed rejects the handshake; the socket is closed.
	ErrAuthenticationFailed = fmt.Errorf("authentication failed")
	// ErrInvalidMessage flags a malformed or cross-user payload; the
	// connection stays open.
	ErrInvalidMessage = fmt.Errorf("invalid message")
	// ErrDeviceUnavailable aborts a handoff whose precondition is not met;
	// nothing is mutated.
	ErrDeviceUnavailable = fmt.Errorf("device unavailable")
	// ErrRegistryFailure wraps a downstream device-registry error; the
	// session continues and the client is notified.
	ErrRegistryFailure = fmt.Errorf("device registry failure")
	// ErrHandoffTimeout aborts an acknowledged handoff whose target never
	// confirmed readiness in time; nothing is mutated.
	ErrHandoffTimeout = fmt.Errorf("handoff acknowledgment timeout")
	// ErrWorkerPanic marks a supervised worker crash.
	ErrWorkerPanic = fmt.Errorf("worker panic")
)

// WireCode maps an error to the stable code carried by error events.
// Unknown errors map to "internal".
func WireCode(err error) string {
	switch {
	case errors.Is(err, ErrAuthenticationFailed):
		return "authentication_failure"
	case errors.Is(err, ErrInvalidMessage):
		return "invalid_message"
	case errors.Is(err, ErrDeviceUnavailable):
		return "device_unavailable"
	case errors.Is(err, ErrHandoffTimeout):
		return "handoff_timeout"
	case errors.Is(err, ErrRegistryFailure):
		return "registry_failure"
	default:
		return "internal"
	}
}
