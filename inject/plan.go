// Copyright (c) 2026 Bermoid Authors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package inject

import (
	"context"

	"github.com/bermoid/bermoid"
)

// Args holds the bound handler arguments in declaration order.
type Args struct {
	vals []any
}

// Len returns the number of bound arguments.
func (a Args) Len() int {
	return len(a.vals)
}

// Value returns the i'th argument.
func (a Args) Value(i int) any {
	return a.vals[i]
}

// String returns the i'th argument as a string. It panics if the
// argument has another type, which indicates a plan mismatch.
func (a Args) String(i int) string {
	return a.vals[i].(string)
}

// Int returns the i'th argument as an int64.
func (a Args) Int(i int) int64 {
	return a.vals[i].(int64)
}

// Float returns the i'th argument as a float64.
func (a Args) Float(i int) float64 {
	return a.vals[i].(float64)
}

// Request returns the i'th argument as the request bound by
// [RequestValue].
func (a Args) Request(i int) *bermoid.Request {
	return a.vals[i].(*bermoid.Request)
}

// Arg retrieves the i'th argument as T.
func Arg[T any](a Args, i int) T {
	return a.vals[i].(T)
}

// HandlerFunc is an endpoint handler. The returned value is normalized
// into a response by the dispatcher.
type HandlerFunc func(ctx context.Context, args Args) (any, error)

// Plan is the ordered set of parameters an endpoint binds before its
// handler runs.
type Plan struct {
	params []Param
}

// NewPlan initializes a [Plan].
func NewPlan(params ...Param) *Plan {
	return &Plan{params: params}
}

// Bind resolves every parameter against the request, sharing one
// [Resolver] so dependencies are memoized across parameters.
func (p *Plan) Bind(ctx context.Context, req *bermoid.Request) (Args, error) {
	r := NewResolver(req)

	vals := make([]any, len(p.params))
	for i, param := range p.params {
		v, err := param.bind(ctx, req, r)
		if err != nil {
			return Args{}, err
		}
		vals[i] = v
	}
	return Args{vals: vals}, nil
}
