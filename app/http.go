// Copyright (c) 2026 Bermoid Authors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package app

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/bermoid/bermoid"
	"github.com/bermoid/bermoid/httperr"
	"github.com/bermoid/bermoid/inject"
	"github.com/bermoid/bermoid/internal/try"
	"github.com/bermoid/bermoid/middleware"
	"github.com/bermoid/bermoid/response"
	"github.com/bermoid/bermoid/router"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// serveHTTP handles one request connection: route lookup, parameter
// binding, the middleware pipeline, normalization and error mapping.
// Every path through it writes exactly one response.
func (a *App) serveHTTP(ctx context.Context, scope *bermoid.Scope, receive bermoid.ReceiveFunc, send bermoid.SendFunc) error {
	spanCtx, span := a.tracer.Start(ctx, scope.Method+" "+scope.Path,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(
			attribute.String("http.request.method", scope.Method),
			attribute.String("url.path", scope.Path),
		),
	)
	defer span.End()

	resp := a.respond(spanCtx, scope, receive)
	span.SetAttributes(attribute.Int("http.response.status_code", resp.StatusCode))

	err := resp.Write(spanCtx, send)
	if err != nil {
		span.RecordError(err)
		a.log.ErrorContext(spanCtx, "failed to write response",
			slog.String("path", scope.Path),
			slog.String("error", err.Error()),
		)
	}
	return err
}

func (a *App) respond(ctx context.Context, scope *bermoid.Scope, receive bermoid.ReceiveFunc) *response.Response {
	if s := a.State(); s != StateRunning {
		return a.mapper.Map(ctx, httperr.ServiceUnavailable(nil))
	}

	req := bermoid.NewRequest(scope, receive)

	for _, before := range a.before {
		err := before(ctx, req)
		if err != nil {
			return a.mapper.Map(ctx, err)
		}
	}

	resp := a.dispatch(ctx, scope, req)

	// After hooks also see the not-found and error responses.
	for _, after := range a.after {
		err := after(ctx, req, resp)
		if err != nil {
			resp = a.mapper.Map(ctx, err)
		}
	}
	return resp
}

func (a *App) dispatch(ctx context.Context, scope *bermoid.Scope, req *bermoid.Request) *response.Response {
	match, allowed := a.registry.Match(scope.Method, scope.Path)
	if match == nil {
		if len(allowed) > 0 {
			return a.mapper.Map(ctx, httperr.MethodNotAllowed(allowed))
		}
		return a.mapper.Map(ctx, httperr.NotFound(nil))
	}

	req.SetPathParams(match.Params)

	resp, err := a.pipeline(match.Route)(ctx, req)
	if err != nil {
		return a.mapper.Map(ctx, err)
	}
	return resp
}

// pipeline returns the route's middleware pipeline, building it on
// first use.
func (a *App) pipeline(route *router.Route) middleware.Next {
	a.pipelineMu.Lock()
	defer a.pipelineMu.Unlock()

	next, ok := a.pipelines[route]
	if !ok {
		next = a.chain.Build(route.Name(), terminal(route))
		a.pipelines[route] = next
	}
	return next
}

// terminal is the innermost pipeline layer: bind the route's parameter
// plan, invoke the handler, normalize whatever it returns and run the
// route's response check when one is declared. Panics surface as
// errors so the mapper renders them like any other failure.
func terminal(route *router.Route) middleware.Next {
	plan := route.Plan()
	if plan == nil {
		plan = inject.NewPlan()
	}

	return func(ctx context.Context, req *bermoid.Request) (_ *response.Response, err error) {
		defer try.Recover(&err)

		args, err := plan.Bind(ctx, req)
		if err != nil {
			return nil, err
		}

		v, err := route.Handler()(ctx, args)
		if err != nil {
			return nil, err
		}

		resp, err := response.Normalize(route.Name(), v)
		if err != nil {
			return nil, err
		}
		if check := route.Response(); check != nil {
			err = check(resp)
			if err != nil {
				return nil, fmt.Errorf("%s: response validation: %w", route.Name(), err)
			}
		}
		return resp, nil
	}
}
