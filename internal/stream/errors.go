package stream

import "errors"

var (
	// ErrNilTransport is returned by NewManager when no transport is given.
	ErrNilTransport = errors.New("stream: nil transport")

	// ErrNilHandler is returned by NewManager when no handler is given.
	ErrNilHandler = errors.New("stream: nil handler")

	// ErrNilRequest is returned by Connect when the request is nil.
	ErrNilRequest = errors.New("stream: nil subscription request")

	// ErrAlreadyRunning is returned by Connect while a subscription is active.
	ErrAlreadyRunning = errors.New("stream: subscription already running")

	// ErrStopped is returned by Connect after Stop.
	ErrStopped = errors.New("stream: manager stopped")

	// ErrSessionClosed is returned by Session.Recv once the session was closed
	// locally or the peer closed the transport.
	ErrSessionClosed = errors.New("stream: session closed")
)
