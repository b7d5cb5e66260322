// Copyright (c) 2026 Bermoid Authors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package bermoid

import (
	"context"
	"net/http"
)

// Request is the per-connection context handed through middleware, the
// dependency resolver and the endpoint. It is owned by exactly one
// connection goroutine and must never be shared across connections.
type Request struct {
	scope   *Scope
	receive ReceiveFunc

	params map[string]any

	// values is the free-form side channel collaborators (sessions,
	// templating, user-agent modules) use to stash per-request state.
	values map[any]any

	// ranGroups records the group tags of middleware that already
	// executed on this connection.
	ranGroups map[string]struct{}

	body     []byte
	bodyRead bool
}

// NewRequest builds the per-connection request context for the given scope.
func NewRequest(scope *Scope, receive ReceiveFunc) *Request {
	return &Request{
		scope:   scope,
		receive: receive,
	}
}

// Scope returns the connection scope this request was built from.
func (r *Request) Scope() *Scope { return r.scope }

// Method returns the HTTP method of the connection.
func (r *Request) Method() string { return r.scope.Method }

// Path returns the request path.
func (r *Request) Path() string { return r.scope.Path }

// Header returns the request headers.
func (r *Request) Header() http.Header { return r.scope.Header }

// SetPathParams installs the typed path parameters captured by the matched
// route pattern. It is called once by the dispatcher before any user code runs.
func (r *Request) SetPathParams(params map[string]any) {
	r.params = params
}

// PathParams returns all typed path parameters.
func (r *Request) PathParams() map[string]any {
	return r.params
}

// PathParam returns the raw typed value of a path parameter.
func (r *Request) PathParam(name string) (any, bool) {
	v, ok := r.params[name]
	return v, ok
}

// Param returns a path parameter as a string. Typed parameters captured as
// non-strings report ok == false; use [Request.IntParam] or
// [Request.FloatParam] for those.
func (r *Request) Param(name string) (string, bool) {
	v, ok := r.params[name]
	if !ok {
		return "", false
	}
	s, ok := v.(string)
	return s, ok
}

// IntParam returns a path parameter captured by an int-typed placeholder.
func (r *Request) IntParam(name string) (int64, bool) {
	v, ok := r.params[name]
	if !ok {
		return 0, false
	}
	n, ok := v.(int64)
	return n, ok
}

// FloatParam returns a path parameter captured by a float-typed placeholder.
func (r *Request) FloatParam(name string) (float64, bool) {
	v, ok := r.params[name]
	if !ok {
		return 0, false
	}
	f, ok := v.(float64)
	return f, ok
}

// MarkGroups records that middleware tagged with the given groups has
// executed on this connection.
func (r *Request) MarkGroups(groups ...string) {
	if len(groups) == 0 {
		return
	}
	if r.ranGroups == nil {
		r.ranGroups = make(map[string]struct{}, len(groups))
	}
	for _, g := range groups {
		r.ranGroups[g] = struct{}{}
	}
}

// GroupRan reports whether middleware tagged with the named group has
// already executed on this connection.
func (r *Request) GroupRan(name string) bool {
	_, ok := r.ranGroups[name]
	return ok
}

// Set stores a value in the request side channel.
func (r *Request) Set(key, value any) {
	if r.values == nil {
		r.values = make(map[any]any)
	}
	r.values[key] = value
}

// Value returns a value previously stored with [Request.Set], or nil.
func (r *Request) Value(key any) any {
	return r.values[key]
}

// Body drains the inbound body events and returns the full request body.
// The body is buffered on first read so repeated calls are cheap.
func (r *Request) Body(ctx context.Context) ([]byte, error) {
	if r.bodyRead {
		return r.body, nil
	}
	if r.receive == nil {
		r.bodyRead = true
		return nil, nil
	}

	var body []byte
	for {
		ev, err := r.receive(ctx)
		if err != nil {
			return nil, err
		}
		if ev.Type != EventRequestBody {
			return nil, ProtocolError{
				ConnType: r.scope.Type,
				Event:    ev.Type,
				Reason:   "expected a request body event",
			}
		}
		body = append(body, ev.Body...)
		if !ev.More {
			break
		}
	}

	r.body = body
	r.bodyRead = true
	return body, nil
}
