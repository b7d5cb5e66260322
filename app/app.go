// Copyright (c) 2026 Bermoid Authors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package app implements the connection dispatcher that ties routing,
// dependency binding, middleware and error mapping together behind a
// single [bermoid.Handler].
package app

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/bermoid/bermoid"
	"github.com/bermoid/bermoid/httperr"
	"github.com/bermoid/bermoid/lifecycle"
	"github.com/bermoid/bermoid/middleware"
	"github.com/bermoid/bermoid/pattern"
	"github.com/bermoid/bermoid/response"
	"github.com/bermoid/bermoid/router"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
)

// Option represents configurable attributes of [App].
type Option func(*options)

type options struct {
	logHandler   slog.Handler
	compiler     *pattern.Compiler
	routes       []router.Spec
	sockets      []router.SocketSpec
	middleware   func(*middleware.Chain)
	errorMappers []func(*httperr.Mapper)
	before       []BeforeFunc
	after        []AfterFunc
	lc           *lifecycle.Context
}

// BeforeFunc is a stage hook that runs ahead of route matching for
// every HTTP request.
type BeforeFunc func(ctx context.Context, req *bermoid.Request) error

// AfterFunc is a stage hook that runs once a response is produced,
// before it is written.
type AfterFunc func(ctx context.Context, req *bermoid.Request, resp *response.Response) error

// LogHandler overrides the default [slog.Handler].
func LogHandler(h slog.Handler) Option {
	return func(o *options) {
		o.logHandler = h
	}
}

// PatternCompiler overrides the default route pattern compiler, e.g. to
// register custom placeholder types.
func PatternCompiler(c *pattern.Compiler) Option {
	return func(o *options) {
		o.compiler = c
	}
}

// Route registers an HTTP route.
func Route(spec router.Spec) Option {
	return func(o *options) {
		o.routes = append(o.routes, spec)
	}
}

// Socket registers a websocket route.
func Socket(spec router.SocketSpec) Option {
	return func(o *options) {
		o.sockets = append(o.sockets, spec)
	}
}

// Middleware exposes the middleware chain during construction.
func Middleware(f func(*middleware.Chain)) Option {
	return func(o *options) {
		o.middleware = f
	}
}

// ErrorHandlers exposes the error mapper during construction so custom
// handlers can be registered on it.
func ErrorHandlers(f func(*httperr.Mapper)) Option {
	return func(o *options) {
		o.errorMappers = append(o.errorMappers, f)
	}
}

// BeforeRequest registers a stage hook that runs before route matching
// on every HTTP request. Hooks run in registration order and the first
// failure aborts the request through the error mapper.
func BeforeRequest(f BeforeFunc) Option {
	return func(o *options) {
		o.before = append(o.before, f)
	}
}

// AfterRequest registers a stage hook that runs with the produced
// response before it is written, including error responses. A failing
// hook replaces the response through the error mapper.
func AfterRequest(f AfterFunc) Option {
	return func(o *options) {
		o.after = append(o.after, f)
	}
}

// OnStartup registers a startup hook. Hooks run sequentially and the
// first failure aborts startup.
func OnStartup(hook lifecycle.Hook) Option {
	return func(o *options) {
		o.lc.OnStartup(hook)
	}
}

// OnShutdown registers a shutdown hook. Every hook runs even when an
// earlier one fails.
func OnShutdown(hook lifecycle.Hook) Option {
	return func(o *options) {
		o.lc.OnShutdown(hook)
	}
}

// App dispatches connections to registered routes. It implements the
// [bermoid.Handler] interface and is safe for concurrent use once
// constructed.
type App struct {
	log    *slog.Logger
	tracer trace.Tracer

	registry *router.Registry
	chain    *middleware.Chain
	mapper   *httperr.Mapper
	before   []BeforeFunc
	after    []AfterFunc
	lc       *lifecycle.Context

	state atomic.Int32

	pipelineMu sync.Mutex
	pipelines  map[*router.Route]middleware.Next
}

// New initializes an [App]. Route registration failures, like an
// invalid method or two routes compiling to the same matcher, surface
// here instead of at dispatch time.
func New(opts ...Option) (*App, error) {
	o := &options{
		lc: &lifecycle.Context{},
	}
	for _, opt := range opts {
		opt(o)
	}

	log := slog.Default()
	if o.logHandler != nil {
		log = slog.New(o.logHandler)
	}

	registry := router.New(o.compiler)
	for _, spec := range o.routes {
		_, err := registry.Add(spec)
		if err != nil {
			return nil, err
		}
	}
	for _, spec := range o.sockets {
		_, err := registry.AddSocket(spec)
		if err != nil {
			return nil, err
		}
	}

	chain := middleware.NewChain()
	if o.middleware != nil {
		o.middleware(chain)
	}

	mapper := httperr.NewMapper(httperr.MapperLogHandler(log.Handler()))
	for _, f := range o.errorMappers {
		f(mapper)
	}

	app := &App{
		log:       log,
		tracer:    otel.Tracer("app"),
		registry:  registry,
		chain:     chain,
		mapper:    mapper,
		before:    o.before,
		after:     o.after,
		lc:        o.lc,
		pipelines: make(map[*router.Route]middleware.Next),
	}
	return app, nil
}

// State returns the current lifecycle state.
func (a *App) State() State {
	return State(a.state.Load())
}

func (a *App) setState(s State) {
	a.state.Store(int32(s))
}

// Serve implements the [bermoid.Handler] interface. Each call handles
// one connection for its full duration.
func (a *App) Serve(ctx context.Context, scope *bermoid.Scope, receive bermoid.ReceiveFunc, send bermoid.SendFunc) error {
	switch scope.Type {
	case bermoid.ConnLifecycle:
		return a.serveLifecycle(ctx, receive, send)
	case bermoid.ConnHTTP:
		return a.serveHTTP(ctx, scope, receive, send)
	case bermoid.ConnWebSocket:
		return a.serveSocket(ctx, scope, receive, send)
	}
	return bermoid.ProtocolError{
		ConnType: scope.Type,
		Reason:   "unsupported connection type",
	}
}
