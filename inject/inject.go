// Copyright (c) 2026 Bermoid Authors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package inject binds handler parameters from the incoming request and
// resolves named dependencies with per-request memoization.
package inject

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/bermoid/bermoid"
	"github.com/bermoid/bermoid/httperr"
)

// Param produces one handler argument from the incoming request.
type Param interface {
	bind(ctx context.Context, req *bermoid.Request, r *Resolver) (any, error)
}

// MissingParamError is returned when a bound path parameter is absent
// from the matched route. It indicates a wiring mistake, not bad input.
type MissingParamError struct {
	Name string
}

// Error implements the [builtin.error] interface.
func (e MissingParamError) Error() string {
	return fmt.Sprintf("inject: no path parameter named %q", e.Name)
}

type pathValue struct {
	name string
}

// PathValue binds the named path parameter, already cast by the route
// pattern.
func PathValue(name string) Param {
	return pathValue{name: name}
}

func (p pathValue) bind(_ context.Context, req *bermoid.Request, _ *Resolver) (any, error) {
	v, ok := req.PathParams()[p.name]
	if !ok {
		return nil, MissingParamError{Name: p.name}
	}
	return v, nil
}

type requestValue struct{}

// RequestValue binds the request itself.
func RequestValue() Param {
	return requestValue{}
}

func (requestValue) bind(_ context.Context, req *bermoid.Request, _ *Resolver) (any, error) {
	return req, nil
}

type withDefault struct {
	param    Param
	fallback any
}

// Default wraps a parameter so a missing value yields the fallback
// instead of an error.
func Default(p Param, fallback any) Param {
	return withDefault{param: p, fallback: fallback}
}

func (p withDefault) bind(ctx context.Context, req *bermoid.Request, r *Resolver) (any, error) {
	v, err := p.param.bind(ctx, req, r)
	var missing MissingParamError
	if err != nil {
		if asMissing(err, &missing) {
			return p.fallback, nil
		}
		return nil, err
	}
	return v, nil
}

func asMissing(err error, target *MissingParamError) bool {
	m, ok := err.(MissingParamError)
	if ok {
		*target = m
	}
	return ok
}

// Validator is implemented by body types that check themselves after
// decoding. A validation error renders as a 422.
type Validator interface {
	Validate() error
}

type bodyParam[T any] struct{}

// Body binds the request body, decoded from JSON into T. Malformed
// payloads and failed validation surface as 422 errors carrying
// per-field entries.
func Body[T any]() Param {
	return bodyParam[T]{}
}

func (bodyParam[T]) bind(ctx context.Context, req *bermoid.Request, _ *Resolver) (any, error) {
	raw, err := req.Body(ctx)
	if err != nil {
		return nil, err
	}

	var v T
	if err := json.Unmarshal(raw, &v); err != nil {
		return nil, httperr.UnprocessableEntity(decodeFieldErrors(err))
	}
	if validator, ok := any(&v).(Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, httperr.UnprocessableEntity([]httperr.FieldError{
				{Field: "body", Message: err.Error()},
			})
		}
	}
	return v, nil
}

func decodeFieldErrors(err error) []httperr.FieldError {
	switch e := err.(type) {
	case *json.UnmarshalTypeError:
		field := e.Field
		if field == "" {
			field = "body"
		}
		return []httperr.FieldError{
			{Field: field, Message: fmt.Sprintf("expected %s, got %s", e.Type, e.Value)},
		}
	case *json.SyntaxError:
		return []httperr.FieldError{
			{Field: "body", Message: fmt.Sprintf("invalid JSON at offset %d", e.Offset)},
		}
	}
	return []httperr.FieldError{
		{Field: "body", Message: err.Error()},
	}
}

// ProviderFunc produces a dependency value. Providers resolve their own
// sub-dependencies through the given [Resolver].
type ProviderFunc func(ctx context.Context, req *bermoid.Request, r *Resolver) (any, error)

// Dependency is a named provider. Identity, not name, keys memoization,
// so two dependencies may share a name without sharing a value.
type Dependency struct {
	name    string
	provide ProviderFunc
}

// NewDependency initializes a [Dependency].
func NewDependency(name string, provide ProviderFunc) *Dependency {
	return &Dependency{name: name, provide: provide}
}

// Name returns the dependency name used in diagnostics.
func (d *Dependency) Name() string {
	return d.name
}

type depends struct {
	dep *Dependency
}

// Depends binds the resolved value of the given dependency.
func Depends(dep *Dependency) Param {
	return depends{dep: dep}
}

func (p depends) bind(ctx context.Context, req *bermoid.Request, r *Resolver) (any, error) {
	return r.Resolve(ctx, p.dep)
}

// CircularDependencyError is returned when a dependency transitively
// requires itself. Chain lists the names along the cycle, ending with
// the repeated dependency.
type CircularDependencyError struct {
	Chain []string
}

// Error implements the [builtin.error] interface.
func (e CircularDependencyError) Error() string {
	return "inject: circular dependency: " + strings.Join(e.Chain, " -> ")
}

// Resolver memoizes dependency values for the lifetime of one request.
// It is not safe for concurrent use.
type Resolver struct {
	req   *bermoid.Request
	memo  map[*Dependency]any
	stack []*Dependency
}

// NewResolver initializes a [Resolver] scoped to the given request.
func NewResolver(req *bermoid.Request) *Resolver {
	return &Resolver{
		req:  req,
		memo: make(map[*Dependency]any),
	}
}

// Resolve returns the dependency value, invoking its provider at most
// once per request.
func (r *Resolver) Resolve(ctx context.Context, dep *Dependency) (any, error) {
	if v, ok := r.memo[dep]; ok {
		return v, nil
	}

	for _, active := range r.stack {
		if active == dep {
			return nil, CircularDependencyError{Chain: r.chain(dep)}
		}
	}

	r.stack = append(r.stack, dep)
	v, err := dep.provide(ctx, r.req, r)
	r.stack = r.stack[:len(r.stack)-1]
	if err != nil {
		return nil, err
	}

	r.memo[dep] = v
	return v, nil
}

func (r *Resolver) chain(repeat *Dependency) []string {
	chain := make([]string, 0, len(r.stack)+1)
	for _, dep := range r.stack {
		chain = append(chain, dep.name)
	}
	return append(chain, repeat.name)
}
