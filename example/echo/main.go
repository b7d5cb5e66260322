// Copyright (c) 2026 Bermoid Authors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package main

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/bermoid/bermoid"
	"github.com/bermoid/bermoid/app"
	"github.com/bermoid/bermoid/config"
	"github.com/bermoid/bermoid/httperr"
	"github.com/bermoid/bermoid/inject"
	"github.com/bermoid/bermoid/lifecycle"
	"github.com/bermoid/bermoid/middleware"
	"github.com/bermoid/bermoid/response"
	"github.com/bermoid/bermoid/router"
	"github.com/bermoid/bermoid/runtime/httpserver"
)

//go:embed config.yaml
var configBytes []byte

type greeting struct {
	Name string `json:"name"`
}

func (g greeting) Validate() error {
	if strings.TrimSpace(g.Name) == "" {
		return errors.New("name must not be empty")
	}
	return nil
}

type greeted struct {
	Message string `json:"message"`
}

func main() {
	err := run(context.Background())
	if err != nil {
		slog.Error("application failed", slog.String("error", err.Error()))
		os.Exit(1)
	}
}

func run(ctx context.Context) error {
	m, err := config.Read(
		config.FromYaml(strings.NewReader(string(configBytes))),
		config.FromEnv("ECHO_"),
	)
	if err != nil {
		return err
	}

	var cfg config.Settings
	err = m.Unmarshal(&cfg)
	if err != nil {
		return err
	}

	a, err := app.New(
		app.Route(router.Spec{
			Name:     "echo",
			Method:   "GET",
			Template: "/echo/{msg}",
			Relaxed:  true,
			Plan:     inject.NewPlan(inject.PathValue("msg")),
			Handler: func(ctx context.Context, args inject.Args) (any, error) {
				return args.String(0), nil
			},
		}),
		app.Route(router.Spec{
			Name:     "greet",
			Method:   "POST",
			Template: "/greet",
			Plan:     inject.NewPlan(inject.Body[greeting]()),
			Handler: func(ctx context.Context, args inject.Args) (any, error) {
				g := inject.Arg[greeting](args, 0)
				return response.WithStatus{
					StatusCode: 201,
					Body:       greeted{Message: fmt.Sprintf("hello, %s", g.Name)},
				}, nil
			},
		}),
		app.Route(router.Spec{
			Name:     "item",
			Method:   "GET",
			Template: "/items/{id:int}",
			Plan:     inject.NewPlan(inject.PathValue("id")),
			Handler: func(ctx context.Context, args inject.Args) (any, error) {
				id := args.Int(0)
				if id == 0 {
					return nil, httperr.NotFound("no such item")
				}
				return map[string]any{"id": id}, nil
			},
		}),
		app.Middleware(func(chain *middleware.Chain) {
			err := cfg.BuildMiddleware(chain, map[string]config.MiddlewareFactory{
				"request-log": requestLog,
			})
			if err != nil {
				panic(err)
			}
		}),
		app.OnStartup(lifecycle.HookFunc(func(ctx context.Context) error {
			slog.InfoContext(ctx, "starting service", slog.String("entrypoint", cfg.Entrypoint))
			return nil
		})),
		app.OnShutdown(lifecycle.HookFunc(func(ctx context.Context) error {
			slog.InfoContext(ctx, "stopping echo service")
			return nil
		})),
	)
	if err != nil {
		return err
	}

	sigCtx, cancel := signal.NotifyContext(ctx, os.Interrupt)
	defer cancel()

	rt := httpserver.NewRuntime(a,
		httpserver.Addr(cfg.ListenAddr()),
		httpserver.ReadTimeout(10*time.Second),
	)
	return rt.Run(sigCtx)
}

func requestLog(options config.Map) (middleware.Func, error) {
	return func(ctx context.Context, req *bermoid.Request, next middleware.Next) (*response.Response, error) {
		start := time.Now()
		resp, err := next(ctx, req)
		attrs := []any{
			slog.String("method", req.Method()),
			slog.String("path", req.Path()),
			slog.Duration("elapsed", time.Since(start)),
		}
		if err != nil {
			attrs = append(attrs, slog.String("error", err.Error()))
		}
		slog.InfoContext(ctx, "handled request", attrs...)
		return resp, err
	}, nil
}
