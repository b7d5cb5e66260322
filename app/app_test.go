// Copyright (c) 2026 Bermoid Authors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package app

import (
	"context"
	"errors"
	"testing"

	"github.com/bermoid/bermoid"
	"github.com/bermoid/bermoid/httperr"
	"github.com/bermoid/bermoid/inject"
	"github.com/bermoid/bermoid/lifecycle"
	"github.com/bermoid/bermoid/middleware"
	"github.com/bermoid/bermoid/response"
	"github.com/bermoid/bermoid/router"

	"github.com/stretchr/testify/require"
)

func eventsOf(types ...bermoid.EventType) []bermoid.Event {
	events := make([]bermoid.Event, len(types))
	for i, typ := range types {
		events[i] = bermoid.Event{Type: typ}
	}
	return events
}

func replay(events []bermoid.Event) bermoid.ReceiveFunc {
	i := 0
	return func(context.Context) (bermoid.Event, error) {
		if i >= len(events) {
			return bermoid.Event{}, bermoid.DisconnectError{}
		}
		ev := events[i]
		i++
		return ev, nil
	}
}

func collect(events *[]bermoid.Event) bermoid.SendFunc {
	return func(_ context.Context, e bermoid.Event) error {
		*events = append(*events, e)
		return nil
	}
}

func start(t *testing.T, a *App) {
	t.Helper()

	var acks []bermoid.Event
	err := a.Serve(
		context.Background(),
		&bermoid.Scope{Type: bermoid.ConnLifecycle},
		replay(eventsOf(bermoid.EventStartup)),
		collect(&acks),
	)
	require.NoError(t, err)
	require.Len(t, acks, 1)
	require.Equal(t, bermoid.EventStartupComplete, acks[0].Type)
	require.Equal(t, StateRunning, a.State())
}

type httpResult struct {
	status int
	header map[string][]string
	body   []byte
}

func do(t *testing.T, a *App, method, path, body string) httpResult {
	t.Helper()

	var sent []bermoid.Event
	err := a.Serve(
		context.Background(),
		&bermoid.Scope{Type: bermoid.ConnHTTP, Method: method, Path: path},
		replay([]bermoid.Event{{Type: bermoid.EventRequestBody, Body: []byte(body)}}),
		collect(&sent),
	)
	require.NoError(t, err)
	require.NotEmpty(t, sent)
	require.Equal(t, bermoid.EventResponseStart, sent[0].Type)

	res := httpResult{
		status: sent[0].Status,
		header: sent[0].Header,
	}
	for _, ev := range sent[1:] {
		require.Equal(t, bermoid.EventResponseBody, ev.Type)
		res.body = append(res.body, ev.Body...)
	}
	return res
}

func TestApp_Lifecycle(t *testing.T) {
	t.Run("will acknowledge startup and shutdown", func(t *testing.T) {
		a, err := New()
		require.NoError(t, err)
		require.Equal(t, StateIdle, a.State())

		start(t, a)

		var acks []bermoid.Event
		err = a.Serve(
			context.Background(),
			&bermoid.Scope{Type: bermoid.ConnLifecycle},
			replay(eventsOf(bermoid.EventShutdown)),
			collect(&acks),
		)
		require.NoError(t, err)
		require.Len(t, acks, 1)
		require.Equal(t, bermoid.EventShutdownComplete, acks[0].Type)
		require.Equal(t, StateStopped, a.State())
	})

	t.Run("will acknowledge a failed startup and stay out of running", func(t *testing.T) {
		a, err := New(
			OnStartup(lifecycle.HookFunc(func(context.Context) error {
				return errors.New("db unreachable")
			})),
		)
		require.NoError(t, err)

		var acks []bermoid.Event
		err = a.Serve(
			context.Background(),
			&bermoid.Scope{Type: bermoid.ConnLifecycle},
			replay(eventsOf(bermoid.EventStartup)),
			collect(&acks),
		)
		require.NoError(t, err)
		require.Len(t, acks, 1)
		require.Equal(t, bermoid.EventStartupFailed, acks[0].Type)
		require.Equal(t, "db unreachable", acks[0].Message)
		require.Equal(t, StateStopped, a.State())
	})

	t.Run("will run startup hooks sequentially and stop at the first failure", func(t *testing.T) {
		ran := false
		a, err := New(
			OnStartup(lifecycle.HookFunc(func(context.Context) error {
				return errors.New("first failed")
			})),
			OnStartup(lifecycle.HookFunc(func(context.Context) error {
				ran = true
				return nil
			})),
		)
		require.NoError(t, err)

		var acks []bermoid.Event
		_ = a.Serve(
			context.Background(),
			&bermoid.Scope{Type: bermoid.ConnLifecycle},
			replay(eventsOf(bermoid.EventStartup)),
			collect(&acks),
		)
		require.False(t, ran)
	})

	t.Run("will acknowledge a failed shutdown after running every hook", func(t *testing.T) {
		ran := false
		a, err := New(
			OnShutdown(lifecycle.HookFunc(func(context.Context) error {
				return errors.New("flush failed")
			})),
			OnShutdown(lifecycle.HookFunc(func(context.Context) error {
				ran = true
				return nil
			})),
		)
		require.NoError(t, err)
		start(t, a)

		var acks []bermoid.Event
		err = a.Serve(
			context.Background(),
			&bermoid.Scope{Type: bermoid.ConnLifecycle},
			replay(eventsOf(bermoid.EventShutdown)),
			collect(&acks),
		)
		require.NoError(t, err)
		require.True(t, ran)
		require.Len(t, acks, 1)
		require.Equal(t, bermoid.EventShutdownFailed, acks[0].Type)
		require.Equal(t, StateStopped, a.State())
	})

	t.Run("will reject events out of order", func(t *testing.T) {
		t.Run("shutdown while idle", func(t *testing.T) {
			a, err := New()
			require.NoError(t, err)

			var acks []bermoid.Event
			err = a.Serve(
				context.Background(),
				&bermoid.Scope{Type: bermoid.ConnLifecycle},
				replay(eventsOf(bermoid.EventShutdown)),
				collect(&acks),
			)

			var terr InvalidTransitionError
			require.ErrorAs(t, err, &terr)
			require.Equal(t, StateIdle, terr.From)
		})

		t.Run("startup twice", func(t *testing.T) {
			a, err := New()
			require.NoError(t, err)
			start(t, a)

			err = a.Serve(
				context.Background(),
				&bermoid.Scope{Type: bermoid.ConnLifecycle},
				replay(eventsOf(bermoid.EventStartup)),
				collect(new([]bermoid.Event)),
			)

			var terr InvalidTransitionError
			require.ErrorAs(t, err, &terr)
			require.Equal(t, StateRunning, terr.From)
		})
	})

	t.Run("will reject an unknown connection type", func(t *testing.T) {
		a, err := New()
		require.NoError(t, err)

		err = a.Serve(
			context.Background(),
			&bermoid.Scope{Type: bermoid.ConnType("ftp")},
			replay(nil),
			collect(new([]bermoid.Event)),
		)

		var perr bermoid.ProtocolError
		require.ErrorAs(t, err, &perr)
	})
}

func TestApp_ServeHTTP(t *testing.T) {
	t.Run("will answer 503 before the application is running", func(t *testing.T) {
		a, err := New(
			Route(router.Spec{Template: "/items", Handler: func(context.Context, inject.Args) (any, error) {
				return "ok", nil
			}}),
		)
		require.NoError(t, err)

		res := do(t, a, "GET", "/items", "")
		require.Equal(t, 503, res.status)
	})

	t.Run("will dispatch to the matched route", func(t *testing.T) {
		a, err := New(
			Route(router.Spec{
				Template: "/items/{id:int}",
				Plan:     inject.NewPlan(inject.PathValue("id")),
				Handler: func(ctx context.Context, args inject.Args) (any, error) {
					return map[string]int64{"id": args.Int(0)}, nil
				},
			}),
		)
		require.NoError(t, err)
		start(t, a)

		res := do(t, a, "GET", "/items/42", "")
		require.Equal(t, 200, res.status)
		require.JSONEq(t, `{"id":42}`, string(res.body))

		t.Run("and reject paths its placeholders cannot capture", func(t *testing.T) {
			res := do(t, a, "GET", "/items/abc", "")
			require.Equal(t, 404, res.status)
		})
	})

	t.Run("will answer 404 for an unknown path", func(t *testing.T) {
		t.Run("identically across repeated requests", func(t *testing.T) {
			a, err := New()
			require.NoError(t, err)
			start(t, a)

			first := do(t, a, "GET", "/ghost", "")
			second := do(t, a, "GET", "/ghost", "")
			require.Equal(t, 404, first.status)
			require.Equal(t, first.status, second.status)
			require.Equal(t, first.body, second.body)
		})
	})

	t.Run("will answer 405 with the union of allowed methods", func(t *testing.T) {
		h := func(context.Context, inject.Args) (any, error) { return "ok", nil }
		a, err := New(
			Route(router.Spec{Method: "POST", Template: "/items", Handler: h}),
			Route(router.Spec{Method: "DELETE", Template: "/items/{id}", Handler: h}),
			Route(router.Spec{Method: "PUT", Template: "/items/{id:path}", Handler: h}),
		)
		require.NoError(t, err)
		start(t, a)

		res := do(t, a, "GET", "/items/42", "")
		require.Equal(t, 405, res.status)
		require.Equal(t, []string{"DELETE, PUT"}, res.header["Allow"])
	})

	t.Run("will answer 422 with field entries for a bad body", func(t *testing.T) {
		type payload struct {
			Name string `json:"name"`
		}
		a, err := New(
			Route(router.Spec{
				Method:   "POST",
				Template: "/items",
				Plan:     inject.NewPlan(inject.Body[payload]()),
				Handler: func(context.Context, inject.Args) (any, error) {
					return "created", nil
				},
			}),
		)
		require.NoError(t, err)
		start(t, a)

		res := do(t, a, "POST", "/items", `{"name": 42}`)
		require.Equal(t, 422, res.status)
		require.Contains(t, string(res.body), `"field":"name"`)
	})

	t.Run("will render declared errors as declared", func(t *testing.T) {
		a, err := New(
			Route(router.Spec{
				Template: "/teapot",
				Handler: func(context.Context, inject.Args) (any, error) {
					return nil, httperr.New(418, "short and stout")
				},
			}),
		)
		require.NoError(t, err)
		start(t, a)

		res := do(t, a, "GET", "/teapot", "")
		require.Equal(t, 418, res.status)
		require.Equal(t, "short and stout", string(res.body))
	})

	t.Run("will hide undeclared failures behind an opaque 500", func(t *testing.T) {
		testCases := []struct {
			name    string
			handler inject.HandlerFunc
		}{
			{
				name: "handler error",
				handler: func(context.Context, inject.Args) (any, error) {
					return nil, errors.New("pq: password authentication failed")
				},
			},
			{
				name: "handler panic",
				handler: func(context.Context, inject.Args) (any, error) {
					panic("index out of range")
				},
			},
			{
				name: "unsupported return value",
				handler: func(context.Context, inject.Args) (any, error) {
					return 42, nil
				},
			},
		}

		for _, tc := range testCases {
			t.Run(tc.name, func(t *testing.T) {
				a, err := New(
					Route(router.Spec{Template: "/boom", Handler: tc.handler}),
				)
				require.NoError(t, err)
				start(t, a)

				res := do(t, a, "GET", "/boom", "")
				require.Equal(t, 500, res.status)
				require.Equal(t, "Internal Server Error", string(res.body))
			})
		}
	})

	t.Run("will consult custom error handlers first", func(t *testing.T) {
		a, err := New(
			Route(router.Spec{
				Template: "/items",
				Handler: func(context.Context, inject.Args) (any, error) {
					return nil, errors.New("storage offline")
				},
			}),
			ErrorHandlers(func(m *httperr.Mapper) {
				m.Handle(
					func(err error) bool { return err.Error() == "storage offline" },
					func(context.Context, error) (*response.Response, error) {
						return response.Text(503, "try later"), nil
					},
				)
			}),
		)
		require.NoError(t, err)
		start(t, a)

		res := do(t, a, "GET", "/items", "")
		require.Equal(t, 503, res.status)
		require.Equal(t, "try later", string(res.body))
	})

	t.Run("will run middleware around the handler", func(t *testing.T) {
		var trace []string
		a, err := New(
			Route(router.Spec{
				Name:     "items",
				Template: "/items",
				Handler: func(context.Context, inject.Args) (any, error) {
					trace = append(trace, "handler")
					return "ok", nil
				},
			}),
			Route(router.Spec{
				Name:     "health",
				Template: "/health",
				Handler: func(context.Context, inject.Args) (any, error) {
					trace = append(trace, "health")
					return "up", nil
				},
			}),
			Middleware(func(chain *middleware.Chain) {
				chain.Use(func(ctx context.Context, req *bermoid.Request, next middleware.Next) (*response.Response, error) {
					trace = append(trace, "mw in")
					resp, err := next(ctx, req)
					trace = append(trace, "mw out")
					return resp, err
				}, middleware.Name("trace"), middleware.SkipRoutes("health"))
			}),
		)
		require.NoError(t, err)
		start(t, a)

		do(t, a, "GET", "/items", "")
		require.Equal(t, []string{"mw in", "handler", "mw out"}, trace)

		trace = nil
		do(t, a, "GET", "/health", "")
		require.Equal(t, []string{"health"}, trace)
	})

	t.Run("will let middleware short-circuit the handler", func(t *testing.T) {
		reached := false
		a, err := New(
			Route(router.Spec{
				Template: "/private",
				Handler: func(context.Context, inject.Args) (any, error) {
					reached = true
					return "secret", nil
				},
			}),
			Middleware(func(chain *middleware.Chain) {
				chain.Use(func(context.Context, *bermoid.Request, middleware.Next) (*response.Response, error) {
					return response.Text(401, "who are you"), nil
				})
			}),
		)
		require.NoError(t, err)
		start(t, a)

		res := do(t, a, "GET", "/private", "")
		require.Equal(t, 401, res.status)
		require.False(t, reached)
	})

	t.Run("will serve every method in a route's method set with one handler", func(t *testing.T) {
		a, err := New(
			Route(router.Spec{
				Methods:  []string{"GET", "POST"},
				Template: "/items",
				Handler: func(context.Context, inject.Args) (any, error) {
					return "ok", nil
				},
			}),
		)
		require.NoError(t, err)
		start(t, a)

		for _, method := range []string{"GET", "POST"} {
			res := do(t, a, method, "/items", "")
			require.Equal(t, 200, res.status)
		}
	})

	t.Run("will run stage hooks around dispatch", func(t *testing.T) {
		var trace []string
		a, err := New(
			Route(router.Spec{
				Template: "/items",
				Handler: func(context.Context, inject.Args) (any, error) {
					trace = append(trace, "handler")
					return "ok", nil
				},
			}),
			BeforeRequest(func(_ context.Context, req *bermoid.Request) error {
				trace = append(trace, "before "+req.Path())
				return nil
			}),
			AfterRequest(func(_ context.Context, req *bermoid.Request, resp *response.Response) error {
				trace = append(trace, "after "+req.Path())
				return nil
			}),
		)
		require.NoError(t, err)
		start(t, a)

		do(t, a, "GET", "/items", "")
		require.Equal(t, []string{"before /items", "handler", "after /items"}, trace)

		t.Run("even when no route matches", func(t *testing.T) {
			trace = nil
			res := do(t, a, "GET", "/ghost", "")
			require.Equal(t, 404, res.status)
			require.Equal(t, []string{"before /ghost", "after /ghost"}, trace)
		})
	})

	t.Run("will abort the request when a before hook fails", func(t *testing.T) {
		reached := false
		a, err := New(
			Route(router.Spec{
				Template: "/items",
				Handler: func(context.Context, inject.Args) (any, error) {
					reached = true
					return "ok", nil
				},
			}),
			BeforeRequest(func(context.Context, *bermoid.Request) error {
				return httperr.TooManyRequests("slow down")
			}),
		)
		require.NoError(t, err)
		start(t, a)

		res := do(t, a, "GET", "/items", "")
		require.Equal(t, 429, res.status)
		require.False(t, reached)
	})

	t.Run("will replace the response when an after hook fails", func(t *testing.T) {
		a, err := New(
			Route(router.Spec{
				Template: "/items",
				Handler: func(context.Context, inject.Args) (any, error) {
					return "ok", nil
				},
			}),
			AfterRequest(func(context.Context, *bermoid.Request, *response.Response) error {
				return errors.New("audit log unavailable")
			}),
		)
		require.NoError(t, err)
		start(t, a)

		res := do(t, a, "GET", "/items", "")
		require.Equal(t, 500, res.status)
	})

	t.Run("will check the response when the route declares one", func(t *testing.T) {
		check := func(resp *response.Response) error {
			if resp.StatusCode >= 300 {
				return errors.New("unexpected status")
			}
			return nil
		}

		t.Run("and pass a conforming response through", func(t *testing.T) {
			a, err := New(
				Route(router.Spec{
					Template: "/items",
					Handler: func(context.Context, inject.Args) (any, error) {
						return "ok", nil
					},
					Response: check,
				}),
			)
			require.NoError(t, err)
			start(t, a)

			res := do(t, a, "GET", "/items", "")
			require.Equal(t, 200, res.status)
		})

		t.Run("and answer 500 when the check rejects", func(t *testing.T) {
			a, err := New(
				Route(router.Spec{
					Template: "/items",
					Handler: func(context.Context, inject.Args) (any, error) {
						return response.Text(301, "moved"), nil
					},
					Response: check,
				}),
			)
			require.NoError(t, err)
			start(t, a)

			res := do(t, a, "GET", "/items", "")
			require.Equal(t, 500, res.status)
		})
	})

	t.Run("will surface route registration failures at construction", func(t *testing.T) {
		_, err := New(
			Route(router.Spec{Method: "GET", Template: "/items/{id}"}),
			Route(router.Spec{Method: "GET", Template: "/items/{id:str}"}),
		)

		var derr router.DuplicateRouteError
		require.ErrorAs(t, err, &derr)
	})
}

func TestApp_ServeSocket(t *testing.T) {
	socketConn := func(a *App, path string, inbound []bermoid.Event) ([]bermoid.Event, error) {
		var sent []bermoid.Event
		err := a.Serve(
			context.Background(),
			&bermoid.Scope{Type: bermoid.ConnWebSocket, Path: path},
			replay(inbound),
			collect(&sent),
		)
		return sent, err
	}

	t.Run("will close without accepting before the application is running", func(t *testing.T) {
		a, err := New()
		require.NoError(t, err)

		sent, err := socketConn(a, "/ws", nil)
		require.NoError(t, err)
		require.Len(t, sent, 1)
		require.Equal(t, bermoid.EventSocketClose, sent[0].Type)
		require.Equal(t, bermoid.CloseInternalError, sent[0].Code)
	})

	t.Run("will close without accepting when no route matches", func(t *testing.T) {
		a, err := New()
		require.NoError(t, err)
		start(t, a)

		sent, err := socketConn(a, "/ghost", nil)
		require.NoError(t, err)
		require.Len(t, sent, 1)
		require.Equal(t, bermoid.EventSocketClose, sent[0].Type)
	})

	t.Run("will run the matched socket handler", func(t *testing.T) {
		a, err := New(
			Socket(router.SocketSpec{
				Template: "/rooms/{room}",
				Handler: func(ctx context.Context, s *bermoid.Socket) (*bermoid.Socket, error) {
					room, _ := s.Param("room")

					err := s.Accept(ctx)
					if err != nil {
						return nil, err
					}

					payload, _, err := s.Receive(ctx)
					if err != nil {
						return s, nil
					}
					err = s.SendText(ctx, room+": "+string(payload))
					return s, err
				},
			}),
		)
		require.NoError(t, err)
		start(t, a)

		sent, err := socketConn(a, "/rooms/lobby", []bermoid.Event{
			{Type: bermoid.EventSocketFrame, Body: []byte("hi"), Text: true},
		})
		require.NoError(t, err)
		require.Len(t, sent, 3)
		require.Equal(t, bermoid.EventSocketAccept, sent[0].Type)
		require.Equal(t, bermoid.EventSocketFrame, sent[1].Type)
		require.Equal(t, "lobby: hi", string(sent[1].Body))
		require.Equal(t, bermoid.EventSocketClose, sent[2].Type)
		require.Equal(t, bermoid.CloseNormal, sent[2].Code)
	})

	t.Run("will close with an internal error", func(t *testing.T) {
		testCases := []struct {
			name    string
			handler bermoid.SocketHandler
		}{
			{
				name: "if the handler returns no socket",
				handler: func(ctx context.Context, s *bermoid.Socket) (*bermoid.Socket, error) {
					return nil, nil
				},
			},
			{
				name: "if the handler panics",
				handler: func(ctx context.Context, s *bermoid.Socket) (*bermoid.Socket, error) {
					panic("nil map write")
				},
			},
		}

		for _, tc := range testCases {
			t.Run(tc.name, func(t *testing.T) {
				a, err := New(
					Socket(router.SocketSpec{Template: "/ws", Handler: tc.handler}),
				)
				require.NoError(t, err)
				start(t, a)

				sent, _ := socketConn(a, "/ws", nil)
				require.NotEmpty(t, sent)

				last := sent[len(sent)-1]
				require.Equal(t, bermoid.EventSocketClose, last.Type)
				require.Equal(t, bermoid.CloseInternalError, last.Code)
			})
		}
	})

	t.Run("will treat a peer disconnect as a graceful end", func(t *testing.T) {
		a, err := New(
			Socket(router.SocketSpec{
				Template: "/ws",
				Handler: func(ctx context.Context, s *bermoid.Socket) (*bermoid.Socket, error) {
					err := s.Accept(ctx)
					if err != nil {
						return nil, err
					}
					_, _, err = s.Receive(ctx)
					return s, err
				},
			}),
		)
		require.NoError(t, err)
		start(t, a)

		sent, err := socketConn(a, "/ws", nil)
		require.NoError(t, err)
		require.Len(t, sent, 1)
		require.Equal(t, bermoid.EventSocketAccept, sent[0].Type)
	})
}
