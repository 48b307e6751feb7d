package comm

import "context"

// Transport is the link to the robot.
// Implementations may also implement io.Closer, which is called when
// the session is released.
type Transport interface {
	// Send writes one outbound packet.
	Send([]byte) error
	// TryRecv returns one inbound packet if available without blocking.
	TryRecv() ([]byte, bool)
	// MatchesHandshake checks if the packet identifies the expected robot.
	MatchesHandshake([]byte) bool
}

// Connector establishes a Transport.
type Connector interface {
	Connect(ctx context.Context, hint string) (Transport, error)
}

// ConnectFunc is func type of Connector.
type ConnectFunc func(ctx context.Context, hint string) (Transport, error)

// Connect implements Connector.
func (f ConnectFunc) Connect(ctx context.Context, hint string) (Transport, error) {
	return f(ctx, hint)
}
