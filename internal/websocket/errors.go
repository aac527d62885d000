package websocket

import "fmt"

// UpstreamConnectError reports that the upstream WebSocket handshake failed.
// The client receives 502 and the connection is not retried.
type UpstreamConnectError struct {
	Target string
	// Status is the upstream response status, or 0 when no response arrived.
	Status int
	Err    error
}

func (e *UpstreamConnectError) Error() string {
	if e.Status != 0 {
		return fmt.Sprintf("upstream %s refused websocket handshake with status %d: %v", e.Target, e.Status, e.Err)
	}
	return fmt.Sprintf("connect to upstream %s: %v", e.Target, e.Err)
}

func (e *UpstreamConnectError) Unwrap() error { return e.Err }
