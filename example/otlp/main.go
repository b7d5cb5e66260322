// Copyright (c) 2026 Bermoid Authors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"time"

	"github.com/bermoid/bermoid/app"
	"github.com/bermoid/bermoid/inject"
	"github.com/bermoid/bermoid/router"
	"github.com/bermoid/bermoid/runtime/httpserver"
	"github.com/bermoid/bermoid/runtime/otel"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

func main() {
	err := run(context.Background())
	if err != nil {
		slog.Error("application failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	// Fail fast if the collector target does not resolve, instead of
	// letting the exporter retry in the background forever.
	conn, err := grpc.NewClient(
		"localhost:4317",
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return err
	}
	defer func() {
		_ = conn.Close()
	}()

	shutdown, err := otel.Configure(ctx,
		otel.ServiceName("hello"),
		otel.GRPCConn(conn),
	)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		_ = shutdown(flushCtx)
	}()

	a, err := app.New(
		app.Route(router.Spec{
			Name:     "hello",
			Template: "/hello/{name}",
			Plan:     inject.NewPlan(inject.PathValue("name")),
			Handler: func(ctx context.Context, args inject.Args) (any, error) {
				return "hello, " + args.String(0), nil
			},
		}),
	)
	if err != nil {
		return err
	}

	sigCtx, cancel := signal.NotifyContext(ctx, os.Interrupt)
	defer cancel()

	rt := httpserver.NewRuntime(a, httpserver.Addr(":8000"))
	return rt.Run(sigCtx)
}
