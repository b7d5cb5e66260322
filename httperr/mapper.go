// Copyright (c) 2026 Bermoid Authors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package httperr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"

	"github.com/bermoid/bermoid/response"
)

// HandlerFunc maps a matched error to a response. Returning an error from
// the handler itself falls back to the generic failure response.
type HandlerFunc func(ctx context.Context, err error) (*response.Response, error)

type matcher struct {
	match  func(error) bool
	handle HandlerFunc
}

// Mapper resolves errors to responses. Custom handlers registered with
// [Mapper.Handle] or [On] are consulted in registration order before the
// built-in rendering of [Error] values.
type Mapper struct {
	log      *slog.Logger
	matchers []matcher
}

// MapperOption configures a [Mapper].
type MapperOption func(*Mapper)

// MapperLogHandler overrides the default [slog.Handler].
func MapperLogHandler(h slog.Handler) MapperOption {
	return func(m *Mapper) {
		m.log = slog.New(h)
	}
}

// NewMapper initializes a [Mapper].
func NewMapper(opts ...MapperOption) *Mapper {
	m := &Mapper{
		log: slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Handle registers a custom handler for errors matched by the given
// predicate. Registration order is resolution order.
func (m *Mapper) Handle(match func(error) bool, h HandlerFunc) {
	m.matchers = append(m.matchers, matcher{match: match, handle: h})
}

// On registers a custom handler for errors matching the type E, per
// [errors.As] semantics.
func On[E error](m *Mapper, h func(ctx context.Context, err E) (*response.Response, error)) {
	m.Handle(
		func(err error) bool {
			var target E
			return errors.As(err, &target)
		},
		func(ctx context.Context, err error) (*response.Response, error) {
			var target E
			errors.As(err, &target)
			return h(ctx, target)
		},
	)
}

// Map renders err as a response. It never returns nil: custom handlers
// are tried first, then declared [Error] values are rendered exactly as
// declared, and anything else becomes an opaque 500.
func (m *Mapper) Map(ctx context.Context, err error) *response.Response {
	for _, mt := range m.matchers {
		if !mt.match(err) {
			continue
		}
		resp, herr := mt.handle(ctx, err)
		if herr != nil {
			m.log.ErrorContext(ctx, "error handler failed", slog.String("error", herr.Error()))
			return generic()
		}
		if resp == nil {
			m.log.ErrorContext(ctx, "error handler returned no response")
			return generic()
		}
		return resp
	}

	var declared *Error
	if errors.As(err, &declared) {
		return renderDeclared(ctx, m.log, declared)
	}

	m.log.ErrorContext(ctx, "unhandled error", slog.String("error", err.Error()))
	return generic()
}

func renderDeclared(ctx context.Context, log *slog.Logger, e *Error) *response.Response {
	var resp *response.Response
	if structured(e.Detail) {
		var err error
		resp, err = response.JSON(e.StatusCode, e.Detail)
		if err != nil {
			log.ErrorContext(ctx, "failed to encode error detail", slog.String("error", err.Error()))
			return generic()
		}
	} else {
		resp = response.Text(e.StatusCode, detailText(e.Detail))
	}
	for k, vs := range e.Header {
		resp.Header[k] = vs
	}
	return resp
}

func structured(detail any) bool {
	if detail == nil {
		return false
	}
	switch detail.(type) {
	case string, []byte, bool,
		int, int8, int16, int32, int64,
		uint, uint8, uint16, uint32, uint64,
		float32, float64, error:
		return false
	}
	switch reflect.Indirect(reflect.ValueOf(detail)).Kind() {
	case reflect.Map, reflect.Slice, reflect.Array, reflect.Struct:
		return true
	}
	return false
}

func detailText(detail any) string {
	switch d := detail.(type) {
	case string:
		return d
	case []byte:
		return string(d)
	case error:
		return d.Error()
	default:
		return fmt.Sprint(d)
	}
}

func generic() *response.Response {
	return response.Text(http.StatusInternalServerError, "Internal Server Error")
}
