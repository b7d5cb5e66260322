// Copyright (c) 2026 Bermoid Authors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package httperr defines the declared application error type, the
// built-in status taxonomy and the mapper that turns any failure into a
// wire-ready response.
package httperr

import (
	"fmt"
	"net/http"
	"sort"
	"strings"
)

// Error is a declared application failure carrying an explicit status and
// optional detail. The mapper renders it exactly as declared, never
// altering status or detail.
type Error struct {
	StatusCode int

	// Detail is either a scalar (rendered as plain text) or a structured
	// value (rendered as a JSON body).
	Detail any

	Header http.Header
}

// New returns an [Error] for the given status code. Codes outside the
// 100 to 599 range are coerced to 500. A nil detail defaults to the standard
// status text.
func New(status int, detail any) *Error {
	if status < 100 || status > 599 {
		status = http.StatusInternalServerError
	}
	if detail == nil {
		detail = http.StatusText(status)
	}
	return &Error{
		StatusCode: status,
		Detail:     detail,
		Header:     make(http.Header),
	}
}

// Error implements the [builtin.error] interface.
func (e *Error) Error() string {
	return fmt.Sprintf("[%d] %v", e.StatusCode, e.Detail)
}

// WithHeader returns a copy of e with the given header set.
func (e *Error) WithHeader(key, value string) *Error {
	ne := New(e.StatusCode, e.Detail)
	for k, vs := range e.Header {
		ne.Header[k] = vs
	}
	ne.Header.Set(key, value)
	return ne
}

// FieldError is one entry of the per-field detail carried by a
// validation failure.
type FieldError struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// BadRequest returns a 400 error.
func BadRequest(detail any) *Error { return New(http.StatusBadRequest, detail) }

// Unauthorized returns a 401 error.
func Unauthorized(detail any) *Error { return New(http.StatusUnauthorized, detail) }

// Forbidden returns a 403 error.
func Forbidden(detail any) *Error { return New(http.StatusForbidden, detail) }

// NotFound returns a 404 error.
func NotFound(detail any) *Error { return New(http.StatusNotFound, detail) }

// NotAcceptable returns a 406 error.
func NotAcceptable(detail any) *Error { return New(http.StatusNotAcceptable, detail) }

// RequestTimeout returns a 408 error.
func RequestTimeout(detail any) *Error { return New(http.StatusRequestTimeout, detail) }

// Conflict returns a 409 error.
func Conflict(detail any) *Error { return New(http.StatusConflict, detail) }

// Gone returns a 410 error.
func Gone(detail any) *Error { return New(http.StatusGone, detail) }

// UnsupportedMediaType returns a 415 error.
func UnsupportedMediaType(detail any) *Error { return New(http.StatusUnsupportedMediaType, detail) }

// UnprocessableEntity returns a 422 error. Validation failures pass a
// []FieldError detail so callers receive per-field entries.
func UnprocessableEntity(detail any) *Error { return New(http.StatusUnprocessableEntity, detail) }

// TooManyRequests returns a 429 error.
func TooManyRequests(detail any) *Error { return New(http.StatusTooManyRequests, detail) }

// InternalServerError returns a 500 error.
func InternalServerError(detail any) *Error { return New(http.StatusInternalServerError, detail) }

// NotImplemented returns a 501 error.
func NotImplemented(detail any) *Error { return New(http.StatusNotImplemented, detail) }

// BadGateway returns a 502 error.
func BadGateway(detail any) *Error { return New(http.StatusBadGateway, detail) }

// ServiceUnavailable returns a 503 error.
func ServiceUnavailable(detail any) *Error { return New(http.StatusServiceUnavailable, detail) }

// GatewayTimeout returns a 504 error.
func GatewayTimeout(detail any) *Error { return New(http.StatusGatewayTimeout, detail) }

// MethodNotAllowed returns a 405 error whose Allow header carries the
// sorted, deduplicated union of allowed methods.
func MethodNotAllowed(allowed []string) *Error {
	e := New(http.StatusMethodNotAllowed, nil)
	if len(allowed) > 0 {
		set := make(map[string]struct{}, len(allowed))
		uniq := make([]string, 0, len(allowed))
		for _, m := range allowed {
			m = strings.ToUpper(m)
			if _, ok := set[m]; ok {
				continue
			}
			set[m] = struct{}{}
			uniq = append(uniq, m)
		}
		sort.Strings(uniq)
		e.Header.Set("Allow", strings.Join(uniq, ", "))
	}
	return e
}
