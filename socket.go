// Copyright (c) 2026 Bermoid Authors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package bermoid

import (
	"context"
	"errors"
)

// Websocket close codes used by the dispatcher.
const (
	CloseNormal          = 1000
	CloseInternalError   = 1011
	CloseUnsupportedData = 1003
)

// Socket is the per-connection object handed to socket-upgrade handlers.
// Like [Request], it is owned by a single connection goroutine.
type Socket struct {
	scope   *Scope
	receive ReceiveFunc
	send    SendFunc

	params map[string]any

	accepted bool
	closed   bool
}

// NewSocket builds a socket wrapper around a socket-upgrade connection.
func NewSocket(scope *Scope, receive ReceiveFunc, send SendFunc) *Socket {
	return &Socket{
		scope:   scope,
		receive: receive,
		send:    send,
	}
}

// SocketHandler is the contract for socket-upgrade endpoints. The handler
// must hand back the socket it was given; a nil socket with a nil error is
// treated as a programming error by the dispatcher.
type SocketHandler func(ctx context.Context, s *Socket) (*Socket, error)

// Scope returns the connection scope.
func (s *Socket) Scope() *Scope { return s.scope }

// Path returns the upgrade request path.
func (s *Socket) Path() string { return s.scope.Path }

// SetPathParams installs the typed path parameters captured by the matched
// socket route.
func (s *Socket) SetPathParams(params map[string]any) {
	s.params = params
}

// PathParam returns the raw typed value of a path parameter.
func (s *Socket) PathParam(name string) (any, bool) {
	v, ok := s.params[name]
	return v, ok
}

// Param returns a path parameter as a string.
func (s *Socket) Param(name string) (string, bool) {
	v, ok := s.params[name]
	if !ok {
		return "", false
	}
	str, ok := v.(string)
	return str, ok
}

// Open reports whether the socket has not been closed yet.
func (s *Socket) Open() bool { return !s.closed }

// Accepted reports whether the upgrade has been accepted.
func (s *Socket) Accepted() bool { return s.accepted }

// Accept completes the socket upgrade. It must be called before any frame
// is sent or received.
func (s *Socket) Accept(ctx context.Context) error {
	if s.accepted {
		return nil
	}
	err := s.send(ctx, Event{Type: EventSocketAccept})
	if err != nil {
		return err
	}
	s.accepted = true
	return nil
}

// Receive returns the next inbound frame payload and whether it is text.
// A peer disconnect surfaces as a [DisconnectError].
func (s *Socket) Receive(ctx context.Context) ([]byte, bool, error) {
	ev, err := s.receive(ctx)
	if err != nil {
		if errors.As(err, new(DisconnectError)) {
			s.closed = true
		}
		return nil, false, err
	}
	switch ev.Type {
	case EventSocketFrame:
		return ev.Body, ev.Text, nil
	case EventSocketDisconnect:
		code := ev.Code
		if code == 0 {
			code = CloseNormal
		}
		s.closed = true
		return nil, false, DisconnectError{Code: code}
	default:
		return nil, false, ProtocolError{
			ConnType: s.scope.Type,
			Event:    ev.Type,
			Reason:   "expected a websocket frame event",
		}
	}
}

// SendText sends a text frame.
func (s *Socket) SendText(ctx context.Context, payload string) error {
	return s.sendFrame(ctx, []byte(payload), true)
}

// SendBinary sends a binary frame.
func (s *Socket) SendBinary(ctx context.Context, payload []byte) error {
	return s.sendFrame(ctx, payload, false)
}

var errSocketClosed = errors.New("socket already closed")

// ErrSocketClosed reports whether err is caused by writing to an already
// closed socket.
func ErrSocketClosed(err error) bool {
	return errors.Is(err, errSocketClosed)
}

func (s *Socket) sendFrame(ctx context.Context, payload []byte, text bool) error {
	if s.closed {
		return errSocketClosed
	}
	return s.send(ctx, Event{
		Type: EventSocketFrame,
		Body: payload,
		Text: text,
	})
}

// Close closes the socket with the given code and reason. Closing an
// already closed socket is a no-op, so the dispatcher's guarantee of
// exactly one close per connection holds even when both the handler and
// the dispatcher attempt one.
func (s *Socket) Close(ctx context.Context, code int, reason string) error {
	if s.closed {
		return nil
	}
	s.closed = true
	return s.send(ctx, Event{
		Type:   EventSocketClose,
		Code:   code,
		Reason: reason,
	})
}
