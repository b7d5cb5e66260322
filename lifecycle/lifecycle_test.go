// Copyright (c) 2026 Bermoid Authors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package lifecycle

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSequential(t *testing.T) {
	t.Run("will run hooks in order", func(t *testing.T) {
		var ran []string
		hook := Sequential(
			HookFunc(func(context.Context) error {
				ran = append(ran, "a")
				return nil
			}),
			HookFunc(func(context.Context) error {
				ran = append(ran, "b")
				return nil
			}),
		)

		require.NoError(t, hook.Run(context.Background()))
		require.Equal(t, []string{"a", "b"}, ran)
	})

	t.Run("will stop at the first failure", func(t *testing.T) {
		boom := errors.New("boom")
		ran := false
		hook := Sequential(
			HookFunc(func(context.Context) error { return boom }),
			HookFunc(func(context.Context) error {
				ran = true
				return nil
			}),
		)

		require.ErrorIs(t, hook.Run(context.Background()), boom)
		require.False(t, ran)
	})
}

func TestMultiHook(t *testing.T) {
	t.Run("will run every hook despite failures", func(t *testing.T) {
		first := errors.New("first")
		second := errors.New("second")
		ran := false
		hook := MultiHook(
			HookFunc(func(context.Context) error { return first }),
			HookFunc(func(context.Context) error {
				ran = true
				return nil
			}),
			HookFunc(func(context.Context) error { return second }),
		)

		err := hook.Run(context.Background())
		require.True(t, ran)
		require.ErrorIs(t, err, first)
		require.ErrorIs(t, err, second)
	})
}

func TestContext(t *testing.T) {
	t.Run("will compose startup hooks sequentially", func(t *testing.T) {
		var c Context
		boom := errors.New("boom")
		ran := false

		c.OnStartup(HookFunc(func(context.Context) error { return boom }))
		c.OnStartup(HookFunc(func(context.Context) error {
			ran = true
			return nil
		}))

		require.ErrorIs(t, c.Startup().Run(context.Background()), boom)
		require.False(t, ran)
	})

	t.Run("will compose shutdown hooks exhaustively", func(t *testing.T) {
		var c Context
		boom := errors.New("boom")
		ran := false

		c.OnShutdown(HookFunc(func(context.Context) error { return boom }))
		c.OnShutdown(HookFunc(func(context.Context) error {
			ran = true
			return nil
		}))

		require.ErrorIs(t, c.Shutdown().Run(context.Background()), boom)
		require.True(t, ran)
	})

	t.Run("will round trip through a context.Context", func(t *testing.T) {
		var c Context
		ctx := NewContext(context.Background(), &c)

		got, ok := FromContext(ctx)
		require.True(t, ok)
		require.Same(t, &c, got)
	})
}
