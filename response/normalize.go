// Copyright (c) 2026 Bermoid Authors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

package response

import (
	"encoding/json"
	"fmt"
	"net/http"
	"reflect"
	"strings"
)

// WithStatus pairs a handler body value with an explicit status code. The
// body goes through the same classification as a bare return value.
type WithStatus struct {
	Body       any
	StatusCode int
}

// TypeMismatchError occurs when a handler returns a value the normalizer
// has no rendering for. It names the offending handler.
type TypeMismatchError struct {
	Handler string
	Value   any
}

// Error implements the [builtin.error] interface.
func (e TypeMismatchError) Error() string {
	return fmt.Sprintf("handler %q returned an unsupported response value of type %T", e.Handler, e.Value)
}

// Normalize converts whatever a handler returned into a canonical
// [Response]:
//
//   - *Response passes through untouched
//   - [WithStatus] applies its explicit status to the classified body
//   - strings render as HTML when they look like markup, else plain text
//   - maps, slices, structs and [json.Marshaler] values render as JSON
//   - []byte renders as-is with a plain text content type
//
// Any other value is a programming error reported as a
// [TypeMismatchError] carrying the handler name.
func Normalize(handler string, v any) (*Response, error) {
	switch x := v.(type) {
	case *Response:
		return x, nil
	case WithStatus:
		return classify(handler, x.Body, x.StatusCode)
	default:
		return classify(handler, v, http.StatusOK)
	}
}

func classify(handler string, body any, status int) (*Response, error) {
	switch x := body.(type) {
	case *Response:
		return x, nil
	case string:
		if strings.HasPrefix(x, "<") {
			return HTML(status, x), nil
		}
		return Text(status, x), nil
	case []byte:
		r := New(status)
		r.ContentType = "text/plain"
		r.Body = x
		return r, nil
	case json.Marshaler:
		return JSON(status, x)
	}

	rv := reflect.ValueOf(body)
	if !rv.IsValid() {
		return nil, TypeMismatchError{Handler: handler, Value: body}
	}
	if rv.Kind() == reflect.Pointer {
		rv = rv.Elem()
	}
	switch rv.Kind() {
	case reflect.Map, reflect.Slice, reflect.Array, reflect.Struct:
		return JSON(status, body)
	default:
		return nil, TypeMismatchError{Handler: handler, Value: body}
	}
}

func marshalJSON(v any) ([]byte, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return nil, MarshalError{Cause: err}
	}
	return b, nil
}
