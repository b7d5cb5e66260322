// Copyright (c) 2026 Bermoid Authors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package middleware

import (
	"context"
	"testing"

	"github.com/bermoid/bermoid"
	"github.com/bermoid/bermoid/response"

	"github.com/stretchr/testify/require"
)

func record(trace *[]string, label string) Func {
	return func(ctx context.Context, req *bermoid.Request, next Next) (*response.Response, error) {
		*trace = append(*trace, label+" in")
		resp, err := next(ctx, req)
		*trace = append(*trace, label+" out")
		return resp, err
	}
}

func terminal(trace *[]string) Next {
	return func(context.Context, *bermoid.Request) (*response.Response, error) {
		*trace = append(*trace, "handler")
		return response.Text(200, "ok"), nil
	}
}

func newRequest(path string) *bermoid.Request {
	return bermoid.NewRequest(&bermoid.Scope{
		Type:   bermoid.ConnHTTP,
		Method: "GET",
		Path:   path,
	}, nil)
}

func TestChain_Build(t *testing.T) {
	ctx := context.Background()

	t.Run("will compose layers as an onion", func(t *testing.T) {
		var trace []string
		c := NewChain()
		c.Use(record(&trace, "a"))
		c.Use(record(&trace, "b"))

		_, err := c.Build("r", terminal(&trace))(ctx, newRequest("/"))
		require.NoError(t, err)
		require.Equal(t, []string{"a in", "b in", "handler", "b out", "a out"}, trace)
	})

	t.Run("will order layers by their declared order", func(t *testing.T) {
		t.Run("keeping registration order for ties", func(t *testing.T) {
			var trace []string
			c := NewChain()
			c.Use(record(&trace, "second"), Order(2))
			c.Use(record(&trace, "first"), Order(1))
			c.Use(record(&trace, "third"), Order(3))
			c.Use(record(&trace, "second-bis"), Order(2))

			_, err := c.Build("r", terminal(&trace))(ctx, newRequest("/"))
			require.NoError(t, err)
			require.Equal(t, []string{
				"first in", "second in", "second-bis in", "third in",
				"handler",
				"third out", "second-bis out", "second out", "first out",
			}, trace)
		})
	})

	t.Run("will let a layer short-circuit", func(t *testing.T) {
		var trace []string
		c := NewChain()
		c.Use(record(&trace, "outer"))
		c.Use(func(context.Context, *bermoid.Request, Next) (*response.Response, error) {
			return response.Text(403, "denied"), nil
		})
		c.Use(record(&trace, "inner"))

		resp, err := c.Build("r", terminal(&trace))(ctx, newRequest("/"))
		require.NoError(t, err)
		require.Equal(t, 403, resp.StatusCode)
		require.Equal(t, []string{"outer in", "outer out"}, trace)
	})

	t.Run("will skip layers", func(t *testing.T) {
		t.Run("skipped on the route", func(t *testing.T) {
			var trace []string
			c := NewChain()
			c.Use(record(&trace, "auth"), Name("auth"), SkipRoutes("health"))

			_, err := c.Build("health", terminal(&trace))(ctx, newRequest("/health"))
			require.NoError(t, err)
			require.Equal(t, []string{"handler"}, trace)
		})

		t.Run("excluded by a group that already ran", func(t *testing.T) {
			var trace []string
			c := NewChain()
			c.Use(record(&trace, "session"), Name("session"), Group("auth"), Order(1))
			c.Use(record(&trace, "token"), Name("token"), Excludes("auth"), Order(2))

			_, err := c.Build("r", terminal(&trace))(ctx, newRequest("/"))
			require.NoError(t, err)
			require.Equal(t, []string{"session in", "handler", "session out"}, trace)
		})

		t.Run("unless the excluded group runs later", func(t *testing.T) {
			var trace []string
			c := NewChain()
			c.Use(record(&trace, "token"), Name("token"), Excludes("auth"), Order(1))
			c.Use(record(&trace, "session"), Name("session"), Group("auth"), Order(2))

			_, err := c.Build("r", terminal(&trace))(ctx, newRequest("/"))
			require.NoError(t, err)
			require.Equal(t, []string{
				"token in", "session in", "handler", "session out", "token out",
			}, trace)
		})

		t.Run("even when the excluded group ran behind a predicate", func(t *testing.T) {
			var trace []string
			c := NewChain()
			c.Use(record(&trace, "session"), Group("auth"), If(func(s *bermoid.Scope) bool {
				return s.Path == "/admin"
			}), Order(1))
			c.Use(record(&trace, "token"), Excludes("auth"), Order(2))

			pipeline := c.Build("r", terminal(&trace))

			_, err := pipeline(ctx, newRequest("/public"))
			require.NoError(t, err)
			require.Equal(t, []string{"token in", "handler", "token out"}, trace)

			trace = nil
			_, err = pipeline(ctx, newRequest("/admin"))
			require.NoError(t, err)
			require.Equal(t, []string{"session in", "handler", "session out"}, trace)
		})

		t.Run("registered as disabled", func(t *testing.T) {
			var trace []string
			c := NewChain()
			c.Use(record(&trace, "off"), Disabled())

			_, err := c.Build("r", terminal(&trace))(ctx, newRequest("/"))
			require.NoError(t, err)
			require.Equal(t, []string{"handler"}, trace)
		})

		t.Run("in a disabled group", func(t *testing.T) {
			var trace []string
			c := NewChain()
			c.Use(record(&trace, "debug"), Group("debug"))
			c.DisableGroup("debug")

			_, err := c.Build("r", terminal(&trace))(ctx, newRequest("/"))
			require.NoError(t, err)
			require.Equal(t, []string{"handler"}, trace)
		})

		t.Run("whose predicate rejects the scope", func(t *testing.T) {
			var trace []string
			c := NewChain()
			c.Use(record(&trace, "admin"), If(func(s *bermoid.Scope) bool {
				return s.Path == "/admin"
			}))

			pipeline := c.Build("r", terminal(&trace))

			_, err := pipeline(ctx, newRequest("/public"))
			require.NoError(t, err)
			require.Equal(t, []string{"handler"}, trace)

			trace = nil
			_, err = pipeline(ctx, newRequest("/admin"))
			require.NoError(t, err)
			require.Equal(t, []string{"admin in", "handler", "admin out"}, trace)
		})
	})

	t.Run("will reject a layer calling next twice", func(t *testing.T) {
		var trace []string
		c := NewChain()
		c.Use(func(ctx context.Context, req *bermoid.Request, next Next) (*response.Response, error) {
			_, err := next(ctx, req)
			if err != nil {
				return nil, err
			}
			return next(ctx, req)
		})

		_, err := c.Build("r", terminal(&trace))(ctx, newRequest("/"))
		require.ErrorIs(t, err, ErrNextCalledTwice)
	})
}
