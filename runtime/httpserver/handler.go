// Copyright (c) 2026 Bermoid Authors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package httpserver bridges net/http onto the event-based connection
// contract and manages the server lifecycle.
package httpserver

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/bermoid/bermoid"

	"github.com/gorilla/websocket"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

const readChunkSize = 32 * 1024

// Handler adapts a [bermoid.Handler] to [http.Handler]. Plain requests
// become request connections and upgrade requests become websocket
// connections.
type Handler struct {
	h        bermoid.Handler
	log      *slog.Logger
	upgrader websocket.Upgrader
}

// HandlerOption configures a [Handler].
type HandlerOption func(*Handler)

// HandlerLogHandler overrides the default [slog.Handler].
func HandlerLogHandler(h slog.Handler) HandlerOption {
	return func(hd *Handler) {
		hd.log = slog.New(h)
	}
}

// Upgrader overrides the default [websocket.Upgrader].
func Upgrader(u websocket.Upgrader) HandlerOption {
	return func(hd *Handler) {
		hd.upgrader = u
	}
}

// NewHandler wraps h for serving with [http.Server]. The returned
// handler carries otel instrumentation.
func NewHandler(h bermoid.Handler, opts ...HandlerOption) http.Handler {
	hd := &Handler{
		h:   h,
		log: slog.Default(),
	}
	for _, opt := range opts {
		opt(hd)
	}
	return otelhttp.NewHandler(hd, "server")
}

// ServeHTTP implements the [http.Handler] interface.
func (hd *Handler) ServeHTTP(w http.ResponseWriter, req *http.Request) {
	if websocket.IsWebSocketUpgrade(req) {
		hd.serveSocket(w, req)
		return
	}
	hd.serveRequest(w, req)
}

func scopeOf(connType bermoid.ConnType, req *http.Request) *bermoid.Scope {
	return &bermoid.Scope{
		Type:       connType,
		Method:     req.Method,
		Path:       req.URL.Path,
		Header:     req.Header,
		RawQuery:   req.URL.RawQuery,
		RemoteAddr: req.RemoteAddr,
	}
}

func (hd *Handler) serveRequest(w http.ResponseWriter, req *http.Request) {
	body := req.Body
	done := false
	receive := func(ctx context.Context) (bermoid.Event, error) {
		if done {
			<-ctx.Done()
			return bermoid.Event{}, bermoid.DisconnectError{}
		}

		buf := make([]byte, readChunkSize)
		n, err := body.Read(buf)
		if err == io.EOF {
			done = true
			return bermoid.Event{Type: bermoid.EventRequestBody, Body: buf[:n]}, nil
		}
		if err != nil {
			done = true
			return bermoid.Event{}, err
		}
		return bermoid.Event{Type: bermoid.EventRequestBody, Body: buf[:n], More: true}, nil
	}

	started := false
	send := func(ctx context.Context, e bermoid.Event) error {
		switch e.Type {
		case bermoid.EventResponseStart:
			if started {
				return bermoid.ProtocolError{
					ConnType: bermoid.ConnHTTP,
					Event:    e.Type,
					Reason:   "response already started",
				}
			}
			started = true
			for k, vs := range e.Header {
				w.Header()[k] = vs
			}
			w.WriteHeader(e.Status)
			return nil
		case bermoid.EventResponseBody:
			if !started {
				return bermoid.ProtocolError{
					ConnType: bermoid.ConnHTTP,
					Event:    e.Type,
					Reason:   "response body before response start",
				}
			}
			_, err := w.Write(e.Body)
			if err != nil {
				return err
			}
			if e.More {
				if f, ok := w.(http.Flusher); ok {
					f.Flush()
				}
			}
			return nil
		}
		return bermoid.ProtocolError{
			ConnType: bermoid.ConnHTTP,
			Event:    e.Type,
			Reason:   "unsupported event on request connection",
		}
	}

	err := hd.h.Serve(req.Context(), scopeOf(bermoid.ConnHTTP, req), receive, send)
	if err != nil {
		hd.log.ErrorContext(req.Context(), "request connection failed",
			slog.String("path", req.URL.Path),
			slog.String("error", err.Error()),
		)
		if !started {
			w.WriteHeader(http.StatusInternalServerError)
		}
	}
}

const closeWriteTimeout = time.Second

func (hd *Handler) serveSocket(w http.ResponseWriter, req *http.Request) {
	var conn *websocket.Conn
	defer func() {
		if conn != nil {
			_ = conn.Close()
		}
	}()

	receive := func(ctx context.Context) (bermoid.Event, error) {
		if conn == nil {
			return bermoid.Event{}, bermoid.ProtocolError{
				ConnType: bermoid.ConnWebSocket,
				Reason:   "receive before accept",
			}
		}

		mt, data, err := conn.ReadMessage()
		if err != nil {
			var closeErr *websocket.CloseError
			if errors.As(err, &closeErr) {
				return bermoid.Event{}, bermoid.DisconnectError{Code: closeErr.Code}
			}
			return bermoid.Event{}, bermoid.DisconnectError{Code: websocket.CloseAbnormalClosure}
		}
		return bermoid.Event{
			Type: bermoid.EventSocketFrame,
			Body: data,
			Text: mt == websocket.TextMessage,
		}, nil
	}

	send := func(ctx context.Context, e bermoid.Event) error {
		switch e.Type {
		case bermoid.EventSocketAccept:
			if conn != nil {
				return bermoid.ProtocolError{
					ConnType: bermoid.ConnWebSocket,
					Event:    e.Type,
					Reason:   "connection already accepted",
				}
			}
			c, err := hd.upgrader.Upgrade(w, req, e.Header)
			if err != nil {
				return err
			}
			conn = c
			return nil
		case bermoid.EventSocketFrame:
			if conn == nil {
				return bermoid.ProtocolError{
					ConnType: bermoid.ConnWebSocket,
					Event:    e.Type,
					Reason:   "frame before accept",
				}
			}
			mt := websocket.BinaryMessage
			if e.Text {
				mt = websocket.TextMessage
			}
			return conn.WriteMessage(mt, e.Body)
		case bermoid.EventSocketClose:
			if conn == nil {
				// Rejected before the upgrade, answer with plain HTTP.
				w.WriteHeader(http.StatusForbidden)
				return nil
			}
			msg := websocket.FormatCloseMessage(e.Code, e.Reason)
			_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(closeWriteTimeout))
			return conn.Close()
		}
		return bermoid.ProtocolError{
			ConnType: bermoid.ConnWebSocket,
			Event:    e.Type,
			Reason:   "unsupported event on websocket connection",
		}
	}

	err := hd.h.Serve(req.Context(), scopeOf(bermoid.ConnWebSocket, req), receive, send)
	if err != nil {
		hd.log.ErrorContext(req.Context(), "websocket connection failed",
			slog.String("path", req.URL.Path),
			slog.String("error", err.Error()),
		)
	}
}
