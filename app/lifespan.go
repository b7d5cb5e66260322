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

	"go.opentelemetry.io/otel/trace"
)

// serveLifecycle drives the startup and shutdown phases. The transport
// sends startup and shutdown events; each is acknowledged with exactly
// one completion or failure event. A startup failure is terminal, the
// application never reaches the running state afterwards.
func (a *App) serveLifecycle(ctx context.Context, receive bermoid.ReceiveFunc, send bermoid.SendFunc) error {
	for {
		event, err := receive(ctx)
		if err != nil {
			var disconnect bermoid.DisconnectError
			if errors.As(err, &disconnect) {
				return nil
			}
			return err
		}

		switch event.Type {
		case bermoid.EventStartup:
			err = a.startup(ctx, send)
		case bermoid.EventShutdown:
			return a.shutdown(ctx, send)
		default:
			err = bermoid.ProtocolError{
				ConnType: bermoid.ConnLifecycle,
				Event:    event.Type,
				Reason:   "only startup and shutdown events are accepted",
			}
		}
		if err != nil {
			return err
		}
	}
}

func (a *App) startup(ctx context.Context, send bermoid.SendFunc) error {
	if s := a.State(); s != StateIdle {
		return InvalidTransitionError{From: s, Event: bermoid.EventStartup}
	}
	a.setState(StateStartupPending)

	spanCtx, span := a.tracer.Start(ctx, "app.startup")
	hookErr := a.lc.Startup().Run(spanCtx)
	if hookErr != nil {
		span.RecordError(hookErr)
	}
	span.End()

	if hookErr != nil {
		a.setState(StateStopped)
		a.log.ErrorContext(ctx, "startup failed", slog.String("error", hookErr.Error()))
		return send(ctx, bermoid.Event{
			Type:    bermoid.EventStartupFailed,
			Message: hookErr.Error(),
		})
	}

	a.setState(StateRunning)
	a.log.InfoContext(ctx, "application started")
	return send(ctx, bermoid.Event{Type: bermoid.EventStartupComplete})
}

func (a *App) shutdown(ctx context.Context, send bermoid.SendFunc) error {
	if s := a.State(); s != StateRunning {
		return InvalidTransitionError{From: s, Event: bermoid.EventShutdown}
	}
	a.setState(StateShutdownPending)

	spanCtx, span := a.tracer.Start(ctx, "app.shutdown", trace.WithSpanKind(trace.SpanKindInternal))
	hookErr := a.lc.Shutdown().Run(spanCtx)
	if hookErr != nil {
		span.RecordError(hookErr)
	}
	span.End()

	a.setState(StateStopped)

	if hookErr != nil {
		a.log.ErrorContext(ctx, "shutdown failed", slog.String("error", hookErr.Error()))
		return send(ctx, bermoid.Event{
			Type:    bermoid.EventShutdownFailed,
			Message: hookErr.Error(),
		})
	}

	a.log.InfoContext(ctx, "application stopped")
	return send(ctx, bermoid.Event{Type: bermoid.EventShutdownComplete})
}
