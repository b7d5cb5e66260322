// Copyright (c) 2026 Bermoid Authors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"

	"github.com/bermoid/bermoid"
	"github.com/bermoid/bermoid/app"
	"github.com/bermoid/bermoid/router"
	"github.com/bermoid/bermoid/runtime/httpserver"
)

func main() {
	err := run(context.Background())
	if err != nil {
		slog.Error("application failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	a, err := app.New(
		app.Socket(router.SocketSpec{
			Name:     "room",
			Template: "/rooms/{room}",
			Handler:  serveRoom,
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

// serveRoom echoes every frame back, prefixed with the room name.
func serveRoom(ctx context.Context, s *bermoid.Socket) (*bermoid.Socket, error) {
	room, _ := s.Param("room")

	err := s.Accept(ctx)
	if err != nil {
		return nil, err
	}

	for {
		payload, text, err := s.Receive(ctx)
		if err != nil {
			return s, nil
		}

		if !text {
			err = s.SendBinary(ctx, payload)
		} else {
			err = s.SendText(ctx, fmt.Sprintf("[%s] %s", room, payload))
		}
		if err != nil {
			return s, err
		}
	}
}
