// Copyright (c) 2026 Bermoid Authors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package middleware composes ordered request middleware around endpoint
// handlers.
package middleware

import (
	"context"
	"errors"
	"sort"

	"github.com/bermoid/bermoid"
	"github.com/bermoid/bermoid/response"
)

// Next invokes the remainder of the chain, ending at the endpoint
// handler.
type Next func(ctx context.Context, req *bermoid.Request) (*response.Response, error)

// Func is one middleware layer. A layer that returns without calling
// next short-circuits the chain.
type Func func(ctx context.Context, req *bermoid.Request, next Next) (*response.Response, error)

// ErrNextCalledTwice is returned when a layer invokes its continuation
// more than once.
var ErrNextCalledTwice = errors.New("middleware: next called twice")

// Entry is a registered middleware layer with its placement metadata.
type Entry struct {
	fn         Func
	name       string
	order      int
	groups     []string
	excludes   []string
	skipRoutes map[string]struct{}
	predicate  func(*bermoid.Scope) bool
	disabled   bool
}

// Name returns the entry name used in diagnostics.
func (e *Entry) Name() string {
	return e.name
}

// Option configures a middleware [Entry].
type Option func(*Entry)

// Name sets the entry name.
func Name(name string) Option {
	return func(e *Entry) {
		e.name = name
	}
}

// Order sets the entry placement. Lower orders run closer to the edge.
// Entries sharing an order keep their registration order.
func Order(n int) Option {
	return func(e *Entry) {
		e.order = n
	}
}

// Group tags the entry so it can be toggled with the rest of its group.
func Group(name string) Option {
	return func(e *Entry) {
		e.groups = append(e.groups, name)
	}
}

// Excludes skips the entry on connections where middleware tagged with
// any of the named groups has already executed earlier in the chain.
func Excludes(groups ...string) Option {
	return func(e *Entry) {
		e.excludes = append(e.excludes, groups...)
	}
}

// SkipRoutes skips the entry on the named routes.
func SkipRoutes(routes ...string) Option {
	return func(e *Entry) {
		if e.skipRoutes == nil {
			e.skipRoutes = make(map[string]struct{}, len(routes))
		}
		for _, r := range routes {
			e.skipRoutes[r] = struct{}{}
		}
	}
}

// If runs the entry only when the predicate holds for the connection
// scope.
func If(pred func(*bermoid.Scope) bool) Option {
	return func(e *Entry) {
		e.predicate = pred
	}
}

// Disabled registers the entry without activating it.
func Disabled() Option {
	return func(e *Entry) {
		e.disabled = true
	}
}

// Chain is an ordered middleware stack. Register layers during setup,
// then build per-route pipelines with [Chain.Build]. Chain is not safe
// for concurrent mutation.
type Chain struct {
	entries        []*Entry
	sorted         bool
	disabledGroups map[string]struct{}
}

// NewChain initializes a [Chain].
func NewChain() *Chain {
	return &Chain{
		disabledGroups: make(map[string]struct{}),
	}
}

// Use registers a middleware layer.
func (c *Chain) Use(fn Func, opts ...Option) *Entry {
	e := &Entry{fn: fn}
	for _, opt := range opts {
		opt(e)
	}
	c.entries = append(c.entries, e)
	c.sorted = false
	return e
}

// DisableGroup deactivates every entry tagged with the named group.
func (c *Chain) DisableGroup(name string) {
	c.disabledGroups[name] = struct{}{}
}

// EnableGroup reactivates a previously disabled group.
func (c *Chain) EnableGroup(name string) {
	delete(c.disabledGroups, name)
}

// Len returns the number of registered entries, active or not.
func (c *Chain) Len() int {
	return len(c.entries)
}

func (c *Chain) sort() {
	if c.sorted {
		return
	}
	sort.SliceStable(c.entries, func(i, j int) bool {
		return c.entries[i].order < c.entries[j].order
	})
	c.sorted = true
}

func (c *Chain) active(e *Entry, route string) bool {
	if e.disabled {
		return false
	}
	for _, g := range e.groups {
		if _, off := c.disabledGroups[g]; off {
			return false
		}
	}
	if _, skip := e.skipRoutes[route]; skip {
		return false
	}
	return true
}

// Build composes the active entries for the named route around the
// terminal handler, outermost layer first. Predicated and excluding
// entries are kept in the pipeline and consulted per request.
func (c *Chain) Build(route string, terminal Next) Next {
	c.sort()

	next := terminal
	for i := len(c.entries) - 1; i >= 0; i-- {
		e := c.entries[i]
		if !c.active(e, route) {
			continue
		}
		next = layer(e, next)
	}
	return next
}

func layer(e *Entry, next Next) Next {
	return func(ctx context.Context, req *bermoid.Request) (*response.Response, error) {
		if e.predicate != nil && !e.predicate(req.Scope()) {
			return next(ctx, req)
		}
		for _, g := range e.excludes {
			if req.GroupRan(g) {
				return next(ctx, req)
			}
		}
		req.MarkGroups(e.groups...)

		called := false
		guarded := func(ctx context.Context, req *bermoid.Request) (*response.Response, error) {
			if called {
				return nil, ErrNextCalledTwice
			}
			called = true
			return next(ctx, req)
		}
		return e.fn(ctx, req, guarded)
	}
}
