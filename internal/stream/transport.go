package stream

import "context"

// Transport opens duplex subscription sessions against one endpoint.
type Transport interface {
	// Open establishes a new session. Sessions are never reused.
	Open(ctx context.Context) (Session, error)
}

// Session is one live instance of the duplex stream.
type Session interface {
	// ID identifies the session in logs.
	ID() string

	// Send writes req and returns once the write completed.
	// Implementations must be safe for use by one sender and one receiver
	// at the same time.
	Send(ctx context.Context, req *SubscriptionRequest) error

	// Recv blocks for the next inbound update. It returns io.EOF at end of
	// stream and ErrSessionClosed once the session was closed.
	Recv() (map[string]any, error)

	// Close releases the session and unblocks Recv.
	Close() error
}
