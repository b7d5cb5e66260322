// Copyright (c) 2026 Bermoid Authors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package lifecycle provides helpers for defining actions to execute
// around an application's startup and shutdown phases.
package lifecycle

import (
	"context"
	"errors"
)

// Hook represents functionality that needs to be performed at a specific
// "time" relative to the execution of an application.
type Hook interface {
	Run(context.Context) error
}

// HookFunc is a func variant of the [Hook] interface.
type HookFunc func(context.Context) error

// Run implements the [Hook] interface.
func (f HookFunc) Run(ctx context.Context) error {
	return f(ctx)
}

type sequentialHook []Hook

func (sh sequentialHook) Run(ctx context.Context) error {
	for _, h := range sh {
		err := h.Run(ctx)
		if err != nil {
			return err
		}
	}
	return nil
}

// Sequential returns a [Hook] that applies the provided [Hook]s in
// order, stopping at the first failure. Startup hooks compose this way
// so a failed hook prevents the ones after it from running.
func Sequential(hooks ...Hook) Hook {
	return sequentialHook(hooks)
}

type multiHook []Hook

func (mh multiHook) Run(ctx context.Context) error {
	errs := make([]error, 0, len(mh))
	for _, h := range mh {
		err := h.Run(ctx)
		if err != nil {
			errs = append(errs, err)
		}
	}
	if len(errs) == 0 {
		return nil
	}
	if len(errs) == 1 {
		return errs[0]
	}
	return errors.Join(errs...)
}

// MultiHook returns a [Hook] that's the logical concatenation of the
// provided [Hook]s. Every hook runs even when an earlier one fails, and
// their errors are joined. Shutdown hooks compose this way.
func MultiHook(hooks ...Hook) Hook {
	return multiHook(hooks)
}

// Context allows users to register actions which should be performed
// around an application's startup and shutdown phases.
type Context struct {
	startups  []Hook
	shutdowns []Hook
}

// Startup returns the [Hook] which is meant to be executed before the
// application starts accepting connections.
func (c *Context) Startup() Hook {
	return sequentialHook(c.startups)
}

// Shutdown returns the [Hook] which is meant to be executed after the
// application stops accepting connections.
func (c *Context) Shutdown() Hook {
	return multiHook(c.shutdowns)
}

// OnStartup registers the given [Hook] to be executed during startup.
// Hooks run sequentially in registration order and the first failure
// aborts the remainder.
func (c *Context) OnStartup(hook Hook) {
	c.startups = append(c.startups, hook)
}

// OnShutdown registers the given [Hook] to be executed during shutdown.
// Every registered hook runs regardless of earlier failures.
func (c *Context) OnShutdown(hook Hook) {
	c.shutdowns = append(c.shutdowns, hook)
}

type key struct{}

var contextKey = &key{}

// NewContext returns a new [context.Context] containing the lifecycle [Context].
func NewContext(parent context.Context, c *Context) context.Context {
	return context.WithValue(parent, contextKey, c)
}

// FromContext tries to extract a lifecycle [Context] from the given [context.Context].
func FromContext(ctx context.Context) (*Context, bool) {
	lc, ok := ctx.Value(contextKey).(*Context)
	return lc, ok
}
