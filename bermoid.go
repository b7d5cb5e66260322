// Copyright (c) 2026 Bermoid Authors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package bermoid

import (
	"context"
	"fmt"
	"net/http"
)

// ConnType identifies the kind of connection a [Scope] describes.
type ConnType string

const (
	// ConnHTTP is a regular request/response connection.
	ConnHTTP ConnType = "http"

	// ConnWebSocket is a socket-upgrade connection.
	ConnWebSocket ConnType = "websocket"

	// ConnLifecycle is the server lifecycle pseudo-connection over which
	// startup and shutdown events are exchanged.
	ConnLifecycle ConnType = "lifecycle"
)

// EventType tags the events exchanged between a transport and an [App].
type EventType string

const (
	EventRequestBody   EventType = "http.request.body"
	EventResponseStart EventType = "http.response.start"
	EventResponseBody  EventType = "http.response.body"

	EventStartup          EventType = "lifecycle.startup"
	EventStartupComplete  EventType = "lifecycle.startup.complete"
	EventStartupFailed    EventType = "lifecycle.startup.failed"
	EventShutdown         EventType = "lifecycle.shutdown"
	EventShutdownComplete EventType = "lifecycle.shutdown.complete"
	EventShutdownFailed   EventType = "lifecycle.shutdown.failed"

	EventSocketAccept     EventType = "websocket.accept"
	EventSocketFrame      EventType = "websocket.frame"
	EventSocketClose      EventType = "websocket.close"
	EventSocketDisconnect EventType = "websocket.disconnect"
)

// Event is the unit of communication between a transport adapter and the
// dispatcher. Only the fields relevant to its [EventType] are set.
type Event struct {
	Type EventType

	// Body carries request/response body bytes or a websocket frame payload.
	Body []byte

	// More reports whether further body events follow.
	More bool

	// Text reports whether a websocket frame payload is text rather than binary.
	Text bool

	// Status and Header describe a response-start event.
	Status int
	Header http.Header

	// Code and Reason describe a websocket close or disconnect event.
	Code   int
	Reason string

	// Message carries the failure text of a lifecycle failed acknowledgment.
	Message string
}

// ReceiveFunc returns the next inbound event for a connection. It blocks
// until an event is available, the connection drops or ctx is cancelled.
type ReceiveFunc func(context.Context) (Event, error)

// SendFunc delivers an outbound event to the transport.
type SendFunc func(context.Context, Event) error

// Scope describes a single connection. It is built by the transport adapter
// and must not be mutated after being handed to a [Handler].
type Scope struct {
	Type       ConnType
	Path       string
	Method     string
	Header     http.Header
	RawQuery   string
	RemoteAddr string
}

// Handler is the single entry point a transport adapter invokes per
// connection. The returned error signals a fatal protocol violation only;
// request handling failures are always converted into response or close
// events before Serve returns.
type Handler interface {
	Serve(ctx context.Context, scope *Scope, receive ReceiveFunc, send SendFunc) error
}

// HandlerFunc is a func variant of the [Handler] interface.
type HandlerFunc func(ctx context.Context, scope *Scope, receive ReceiveFunc, send SendFunc) error

// Serve implements the [Handler] interface.
func (f HandlerFunc) Serve(ctx context.Context, scope *Scope, receive ReceiveFunc, send SendFunc) error {
	return f(ctx, scope, receive, send)
}

// ProtocolError occurs when a transport violates the connection contract,
// e.g. an unknown connection type or an event that is illegal in the
// current sub-flow.
type ProtocolError struct {
	ConnType ConnType
	Event    EventType
	Reason   string
}

// Error implements the [builtin.error] interface.
func (e ProtocolError) Error() string {
	if e.Event != "" {
		return fmt.Sprintf("protocol error on %s connection: unexpected %s event: %s", e.ConnType, e.Event, e.Reason)
	}
	return fmt.Sprintf("protocol error on %s connection: %s", e.ConnType, e.Reason)
}

// DisconnectError occurs when the peer drops the connection mid-flight. The
// dispatcher recovers it locally and converts it into a graceful close.
type DisconnectError struct {
	Code int
}

// Error implements the [builtin.error] interface.
func (e DisconnectError) Error() string {
	return fmt.Sprintf("peer disconnected (code %d)", e.Code)
}
