// Copyright (c) 2026 Bermoid Authors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package config

import (
	"fmt"

	"github.com/bermoid/bermoid/middleware"
)

// MiddlewareSpec declares one middleware activation in configuration.
type MiddlewareSpec struct {
	// Name selects a registered [MiddlewareFactory].
	Name string `config:"name"`

	// Stage places the layer relative to unstaged middleware. Valid
	// values are "pre", "post" and "both". Defaults to "both".
	Stage string `config:"stage"`

	// Order breaks ties within a stage. Lower runs closer to the edge.
	Order int `config:"order"`

	// Enabled defaults to true when unset.
	Enabled *bool `config:"enabled"`

	// Exclude lists route names the layer skips.
	Exclude []string `config:"exclude"`

	// Options is passed verbatim to the factory.
	Options Map `config:"options"`
}

// HTTPSettings configures the HTTP listener.
type HTTPSettings struct {
	// Addr is the listen address in host:port form.
	Addr string `config:"addr"`
}

// Settings is the application-level configuration surface.
type Settings struct {
	// Entrypoint names the served application in logs and diagnostics.
	Entrypoint string `config:"entrypoint"`

	HTTP HTTPSettings `config:"http"`

	Middleware []MiddlewareSpec `config:"middleware"`
}

// ListenAddr returns the configured listen address, defaulting to
// ":8000" when unset.
func (s Settings) ListenAddr() string {
	if s.HTTP.Addr == "" {
		return ":8000"
	}
	return s.HTTP.Addr
}

// MiddlewareFactory builds a middleware layer from its configured
// options.
type MiddlewareFactory func(options Map) (middleware.Func, error)

// UnknownMiddlewareError occurs when a spec names a middleware with no
// registered factory.
type UnknownMiddlewareError struct {
	Name string
}

// Error implements the error interface.
func (e UnknownMiddlewareError) Error() string {
	return fmt.Sprintf("config: unknown middleware %q", e.Name)
}

// InvalidStageError occurs when a spec declares a stage other than
// "pre", "post" or "both".
type InvalidStageError struct {
	Name  string
	Stage string
}

// Error implements the error interface.
func (e InvalidStageError) Error() string {
	return fmt.Sprintf("config: middleware %q has invalid stage %q", e.Name, e.Stage)
}

// MiddlewareBuildError occurs when a factory rejects its options.
type MiddlewareBuildError struct {
	Name  string
	Cause error
}

// Error implements the error interface.
func (e MiddlewareBuildError) Error() string {
	return fmt.Sprintf("config: failed to build middleware %q: %s", e.Name, e.Cause)
}

// Unwrap implements the implicit interface used by errors.Is and errors.As.
func (e MiddlewareBuildError) Unwrap() error {
	return e.Cause
}

// Stage bases keep every "pre" layer ahead of unstaged layers and every
// "post" layer behind them, regardless of per-spec orders.
const (
	stagePreBase  = -1 << 20
	stagePostBase = 1 << 20
)

// BuildMiddleware registers every enabled spec on the chain, in spec
// order. Layers sharing a stage and order keep their spec order.
func (s Settings) BuildMiddleware(chain *middleware.Chain, factories map[string]MiddlewareFactory) error {
	for _, spec := range s.Middleware {
		if spec.Enabled != nil && !*spec.Enabled {
			continue
		}

		factory, ok := factories[spec.Name]
		if !ok {
			return UnknownMiddlewareError{Name: spec.Name}
		}

		var base int
		switch spec.Stage {
		case "pre":
			base = stagePreBase
		case "post":
			base = stagePostBase
		case "both", "":
			base = 0
		default:
			return InvalidStageError{Name: spec.Name, Stage: spec.Stage}
		}

		fn, err := factory(spec.Options)
		if err != nil {
			return MiddlewareBuildError{Name: spec.Name, Cause: err}
		}

		chain.Use(
			fn,
			middleware.Name(spec.Name),
			middleware.Order(base+spec.Order),
			middleware.SkipRoutes(spec.Exclude...),
		)
	}
	return nil
}
