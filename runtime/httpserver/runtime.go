// Copyright (c) 2026 Bermoid Authors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package httpserver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/bermoid/bermoid"

	"golang.org/x/sync/errgroup"
)

// StartupError occurs when the application reports a failed startup.
// The server never starts listening in that case.
type StartupError struct {
	Message string
}

// Error implements the error interface.
func (e StartupError) Error() string {
	return fmt.Sprintf("httpserver: application startup failed: %s", e.Message)
}

// Runtime runs an [http.Server] around a [bermoid.Handler], driving the
// application's startup and shutdown phases before and after serving.
type Runtime struct {
	handler bermoid.Handler
	log     *slog.Logger

	addr string
	ls   net.Listener
	srv  *http.Server
}

// Option represents configurable attributes of [Runtime].
type Option func(*Runtime)

// Addr sets the address to listen on when no listener is supplied.
func Addr(addr string) Option {
	return func(r *Runtime) {
		r.addr = addr
	}
}

// Listener allows you to configure the [net.Listener] for the
// underlying [http.Server] to use for serving requests.
//
// If this option is not supplied, then [net.Listen] will be used to
// create a [net.Listener] for "tcp" and address ":8000".
func Listener(ls net.Listener) Option {
	return func(r *Runtime) {
		r.ls = ls
	}
}

// LogHandler overrides the default [slog.Handler].
func LogHandler(h slog.Handler) Option {
	return func(r *Runtime) {
		r.log = slog.New(h)
	}
}

// ReadTimeout sets the maximum duration for reading the entire request,
// including the body. The default is 5 seconds.
func ReadTimeout(d time.Duration) Option {
	return func(r *Runtime) {
		r.srv.ReadTimeout = d
	}
}

// WriteTimeout sets the maximum duration before timing out writes of
// the response. The default is 10 seconds.
func WriteTimeout(d time.Duration) Option {
	return func(r *Runtime) {
		r.srv.WriteTimeout = d
	}
}

// IdleTimeout sets the maximum duration to wait for the next request
// when keep-alives are enabled. The default is 120 seconds.
func IdleTimeout(d time.Duration) Option {
	return func(r *Runtime) {
		r.srv.IdleTimeout = d
	}
}

// NewRuntime initializes a [Runtime] serving the given handler.
func NewRuntime(h bermoid.Handler, opts ...Option) *Runtime {
	r := &Runtime{
		handler: h,
		log:     slog.Default(),
		addr:    ":8000",
		srv: &http.Server{
			ReadTimeout:  5 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
	}
	r.srv.Handler = NewHandler(h)
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run starts the HTTP server and blocks until the context is cancelled
// or an error occurs. Startup is driven to completion before the
// listener accepts and shutdown is driven after it stops, regardless of
// how serving ended.
func (r *Runtime) Run(ctx context.Context) error {
	ack, err := r.signal(ctx, bermoid.EventStartup)
	if err != nil {
		return err
	}
	if ack.Type == bermoid.EventStartupFailed {
		return StartupError{Message: ack.Message}
	}

	serveErr := r.serve(ctx)

	ack, err = r.signal(context.WithoutCancel(ctx), bermoid.EventShutdown)
	if err != nil {
		r.log.ErrorContext(ctx, "failed to deliver shutdown", slog.String("error", err.Error()))
	} else if ack.Type == bermoid.EventShutdownFailed {
		r.log.ErrorContext(ctx, "application shutdown failed", slog.String("error", ack.Message))
	}

	return serveErr
}

func (r *Runtime) serve(ctx context.Context) error {
	ls := r.ls
	if ls == nil {
		var err error
		ls, err = net.Listen("tcp", r.addr)
		if err != nil {
			return err
		}
	}

	eg, egCtx := errgroup.WithContext(ctx)
	eg.Go(func() error {
		return r.srv.Serve(ls)
	})
	eg.Go(func() error {
		<-egCtx.Done()
		return r.srv.Shutdown(context.WithoutCancel(egCtx))
	})

	err := eg.Wait()
	if err == nil || errors.Is(err, context.Canceled) || errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// signal opens a one-shot lifecycle connection delivering a single
// event and returns the application's acknowledgement.
func (r *Runtime) signal(ctx context.Context, event bermoid.EventType) (bermoid.Event, error) {
	delivered := false
	receive := func(context.Context) (bermoid.Event, error) {
		if delivered {
			return bermoid.Event{}, bermoid.DisconnectError{}
		}
		delivered = true
		return bermoid.Event{Type: event}, nil
	}

	var ack bermoid.Event
	send := func(_ context.Context, e bermoid.Event) error {
		ack = e
		return nil
	}

	scope := &bermoid.Scope{Type: bermoid.ConnLifecycle}
	err := r.handler.Serve(ctx, scope, receive, send)
	return ack, err
}
