// Copyright (c) 2026 Bermoid Authors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package response defines the canonical wire-ready response and the
// normalizer that converts handler return values into it.
package response

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"

	"github.com/bermoid/bermoid"
)

// Response is the canonical, wire-ready representation of a handler
// result. Once handed to the transport it must not be mutated.
type Response struct {
	StatusCode  int
	Header      http.Header
	ContentType string

	// Body is the full response body. It is ignored when Stream is set.
	Body []byte

	// Stream, when set, lazily produces the body. The reader is drained
	// into body chunk events and closed by [Response.Write].
	Stream func(context.Context) (io.ReadCloser, error)
}

// New returns an empty response with the given status code.
func New(status int) *Response {
	return &Response{
		StatusCode: status,
		Header:     make(http.Header),
	}
}

// Text returns a plain text response.
func Text(status int, body string) *Response {
	r := New(status)
	r.ContentType = "text/plain"
	r.Body = []byte(body)
	return r
}

// HTML returns an HTML response.
func HTML(status int, body string) *Response {
	r := New(status)
	r.ContentType = "text/html"
	r.Body = []byte(body)
	return r
}

// JSON returns a JSON response with v as its serialized body.
func JSON(status int, v any) (*Response, error) {
	b, err := marshalJSON(v)
	if err != nil {
		return nil, err
	}
	r := New(status)
	r.ContentType = "application/json"
	r.Body = b
	return r, nil
}

// Streaming returns a response whose body is produced lazily by stream.
func Streaming(status int, contentType string, stream func(context.Context) (io.ReadCloser, error)) *Response {
	r := New(status)
	r.ContentType = contentType
	r.Stream = stream
	return r
}

const streamChunkSize = 32 * 1024

// Write emits the response to the transport: exactly one response-start
// event followed by the body events.
func (r *Response) Write(ctx context.Context, send bermoid.SendFunc) error {
	header := make(http.Header, len(r.Header)+2)
	for k, vs := range r.Header {
		header[k] = vs
	}
	if r.ContentType != "" && header.Get("Content-Type") == "" {
		header.Set("Content-Type", r.ContentType+"; charset=utf-8")
	}
	if r.Stream == nil {
		header.Set("Content-Length", strconv.Itoa(len(r.Body)))
	}

	err := send(ctx, bermoid.Event{
		Type:   bermoid.EventResponseStart,
		Status: r.StatusCode,
		Header: header,
	})
	if err != nil {
		return err
	}

	if r.Stream == nil {
		return send(ctx, bermoid.Event{
			Type: bermoid.EventResponseBody,
			Body: r.Body,
		})
	}
	return r.writeStream(ctx, send)
}

func (r *Response) writeStream(ctx context.Context, send bermoid.SendFunc) error {
	rc, err := r.Stream(ctx)
	if err != nil {
		return err
	}
	defer rc.Close()

	buf := make([]byte, streamChunkSize)
	for {
		n, rerr := rc.Read(buf)
		if n > 0 {
			chunk := make([]byte, n)
			copy(chunk, buf[:n])
			serr := send(ctx, bermoid.Event{
				Type: bermoid.EventResponseBody,
				Body: chunk,
				More: true,
			})
			if serr != nil {
				return serr
			}
		}
		if rerr == io.EOF {
			break
		}
		if rerr != nil {
			return rerr
		}
	}
	return send(ctx, bermoid.Event{Type: bermoid.EventResponseBody})
}

// MarshalError occurs when a value destined for a JSON body cannot be
// serialized.
type MarshalError struct {
	Cause error
}

// Error implements the [builtin.error] interface.
func (e MarshalError) Error() string {
	return fmt.Sprintf("failed to serialize response body: %s", e.Cause)
}

// Unwrap implements the implicit interface used by [errors.Is] and [errors.As].
func (e MarshalError) Unwrap() error {
	return e.Cause
}
