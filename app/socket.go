// Copyright (c) 2026 Bermoid Authors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package app

import (
	"context"
	"errors"
	"log/slog"

	"github.com/bermoid/bermoid"
	"github.com/bermoid/bermoid/internal/try"
	"github.com/bermoid/bermoid/router"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// serveSocket handles one websocket connection. Connections arriving
// before the application is running, or matching no route, are closed
// without being accepted.
func (a *App) serveSocket(ctx context.Context, scope *bermoid.Scope, receive bermoid.ReceiveFunc, send bermoid.SendFunc) error {
	spanCtx, span := a.tracer.Start(ctx, "WS "+scope.Path,
		trace.WithSpanKind(trace.SpanKindServer),
		trace.WithAttributes(attribute.String("url.path", scope.Path)),
	)
	defer span.End()

	if s := a.State(); s != StateRunning {
		return send(spanCtx, bermoid.Event{
			Type:   bermoid.EventSocketClose,
			Code:   bermoid.CloseInternalError,
			Reason: "service unavailable",
		})
	}

	match, ok := a.registry.MatchSocket(scope.Path)
	if !ok {
		return send(spanCtx, bermoid.Event{
			Type:   bermoid.EventSocketClose,
			Code:   bermoid.CloseNormal,
			Reason: "no matching route",
		})
	}

	sock := bermoid.NewSocket(scope, receive, send)
	sock.SetPathParams(match.Params)

	ret, err := a.runSocketHandler(spanCtx, match, sock)
	if err != nil {
		var disconnect bermoid.DisconnectError
		if errors.As(err, &disconnect) {
			return nil
		}

		span.RecordError(err)
		a.log.ErrorContext(spanCtx, "socket handler failed",
			slog.String("route", match.Route.Name()),
			slog.String("error", err.Error()),
		)
		closeErr := sock.Close(spanCtx, bermoid.CloseInternalError, "internal error")
		if closeErr != nil {
			return closeErr
		}
		return err
	}

	if ret == nil {
		a.log.ErrorContext(spanCtx, "socket handler returned no socket",
			slog.String("route", match.Route.Name()),
		)
		return sock.Close(spanCtx, bermoid.CloseInternalError, "internal error")
	}
	return ret.Close(spanCtx, bermoid.CloseNormal, "")
}

func (a *App) runSocketHandler(ctx context.Context, match *router.SocketMatch, sock *bermoid.Socket) (ret *bermoid.Socket, err error) {
	defer try.Recover(&err)

	return match.Route.Handler()(ctx, sock)
}
