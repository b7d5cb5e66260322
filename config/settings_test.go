// Copyright (c) 2026 Bermoid Authors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package config

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/bermoid/bermoid"
	"github.com/bermoid/bermoid/middleware"
	"github.com/bermoid/bermoid/response"

	"github.com/stretchr/testify/require"
)

func recordFactory(trace *[]string, label string) MiddlewareFactory {
	return func(Map) (middleware.Func, error) {
		return func(ctx context.Context, req *bermoid.Request, next middleware.Next) (*response.Response, error) {
			*trace = append(*trace, label)
			return next(ctx, req)
		}, nil
	}
}

func runChain(t *testing.T, chain *middleware.Chain) {
	t.Helper()

	req := bermoid.NewRequest(&bermoid.Scope{Type: bermoid.ConnHTTP, Method: "GET", Path: "/"}, nil)
	_, err := chain.Build("r", func(context.Context, *bermoid.Request) (*response.Response, error) {
		return response.Text(200, "ok"), nil
	})(context.Background(), req)
	require.NoError(t, err)
}

func TestSettings_BuildMiddleware(t *testing.T) {
	t.Run("will order layers by stage before order", func(t *testing.T) {
		settings := Settings{
			Middleware: []MiddlewareSpec{
				{Name: "post-layer", Stage: "post", Order: -5},
				{Name: "plain", Order: 0},
				{Name: "pre-layer", Stage: "pre", Order: 99},
			},
		}

		var trace []string
		chain := middleware.NewChain()
		err := settings.BuildMiddleware(chain, map[string]MiddlewareFactory{
			"pre-layer":  recordFactory(&trace, "pre"),
			"plain":      recordFactory(&trace, "plain"),
			"post-layer": recordFactory(&trace, "post"),
		})
		require.NoError(t, err)

		runChain(t, chain)
		require.Equal(t, []string{"pre", "plain", "post"}, trace)
	})

	t.Run("will skip disabled specs", func(t *testing.T) {
		off := false
		settings := Settings{
			Middleware: []MiddlewareSpec{
				{Name: "off", Enabled: &off},
			},
		}

		chain := middleware.NewChain()
		err := settings.BuildMiddleware(chain, nil)
		require.NoError(t, err)
		require.Zero(t, chain.Len())
	})

	t.Run("will pass options through to the factory", func(t *testing.T) {
		settings := Settings{
			Middleware: []MiddlewareSpec{
				{Name: "limit", Options: Map{"max": 10}},
			},
		}

		var got Map
		chain := middleware.NewChain()
		err := settings.BuildMiddleware(chain, map[string]MiddlewareFactory{
			"limit": func(options Map) (middleware.Func, error) {
				got = options
				return func(ctx context.Context, req *bermoid.Request, next middleware.Next) (*response.Response, error) {
					return next(ctx, req)
				}, nil
			},
		})
		require.NoError(t, err)
		require.Equal(t, Map{"max": 10}, got)
	})

	t.Run("will return an error", func(t *testing.T) {
		t.Run("if a spec names an unknown middleware", func(t *testing.T) {
			settings := Settings{
				Middleware: []MiddlewareSpec{{Name: "ghost"}},
			}

			err := settings.BuildMiddleware(middleware.NewChain(), nil)

			var uerr UnknownMiddlewareError
			require.ErrorAs(t, err, &uerr)
			require.Equal(t, "ghost", uerr.Name)
		})

		t.Run("if a spec declares an invalid stage", func(t *testing.T) {
			settings := Settings{
				Middleware: []MiddlewareSpec{{Name: "m", Stage: "sideways"}},
			}

			var trace []string
			err := settings.BuildMiddleware(middleware.NewChain(), map[string]MiddlewareFactory{
				"m": recordFactory(&trace, "m"),
			})

			var serr InvalidStageError
			require.ErrorAs(t, err, &serr)
			require.Equal(t, "sideways", serr.Stage)
		})

		t.Run("if a factory rejects its options", func(t *testing.T) {
			settings := Settings{
				Middleware: []MiddlewareSpec{{Name: "picky"}},
			}

			err := settings.BuildMiddleware(middleware.NewChain(), map[string]MiddlewareFactory{
				"picky": func(Map) (middleware.Func, error) {
					return nil, errors.New("bad options")
				},
			})

			var berr MiddlewareBuildError
			require.ErrorAs(t, err, &berr)
			require.Equal(t, "picky", berr.Name)
		})
	})
}

func TestSettings_ListenAddr(t *testing.T) {
	t.Run("will return the configured address", func(t *testing.T) {
		settings := Settings{HTTP: HTTPSettings{Addr: ":9090"}}
		require.Equal(t, ":9090", settings.ListenAddr())
	})

	t.Run("will default when unset", func(t *testing.T) {
		require.Equal(t, ":8000", Settings{}.ListenAddr())
	})
}

func TestSettings_Unmarshal(t *testing.T) {
	t.Run("will decode middleware specs from yaml", func(t *testing.T) {
		m, err := Read(FromYaml(strings.NewReader(`
entrypoint: echo

http:
  addr: ":9090"

middleware:
  - name: request-log
    stage: pre
    order: 2
    exclude: [health]
    options:
      level: debug
`)))
		require.NoError(t, err)

		var settings Settings
		require.NoError(t, m.Unmarshal(&settings))
		require.Equal(t, "echo", settings.Entrypoint)
		require.Equal(t, ":9090", settings.HTTP.Addr)
		require.Len(t, settings.Middleware, 1)

		spec := settings.Middleware[0]
		require.Equal(t, "request-log", spec.Name)
		require.Equal(t, "pre", spec.Stage)
		require.Equal(t, 2, spec.Order)
		require.Equal(t, []string{"health"}, spec.Exclude)
		require.Equal(t, "debug", spec.Options["level"])
	})
}
