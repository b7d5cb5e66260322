// Copyright (c) 2026 Bermoid Authors
//
// This software is released under the MIT License.
// https://opensource.org/licenses/MIT

// Package otel wires the global OpenTelemetry trace provider for
// applications built on this module.
package otel

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"google.golang.org/grpc"
)

type config struct {
	serviceName string
	otlpTarget  string
	grpcConn    *grpc.ClientConn
	stdout      bool
	sampler     sdktrace.Sampler
}

// Option represents configurable attributes of [Configure].
type Option func(*config)

// ServiceName sets the service.name resource attribute.
func ServiceName(name string) Option {
	return func(c *config) {
		c.serviceName = name
	}
}

// OTLP exports spans over OTLP gRPC to the given target.
func OTLP(target string) Option {
	return func(c *config) {
		c.otlpTarget = target
	}
}

// GRPCConn exports spans over OTLP on an existing gRPC connection. The
// caller keeps ownership of the connection.
func GRPCConn(conn *grpc.ClientConn) Option {
	return func(c *config) {
		c.grpcConn = conn
	}
}

// Stdout exports spans to stdout. Meant for local development.
func Stdout() Option {
	return func(c *config) {
		c.stdout = true
	}
}

// Sampler overrides the default AlwaysSample sampler.
func Sampler(s sdktrace.Sampler) Option {
	return func(c *config) {
		c.sampler = s
	}
}

// Configure installs a global trace provider per the given options and
// returns a shutdown function which flushes any buffered spans.
func Configure(ctx context.Context, opts ...Option) (func(context.Context) error, error) {
	c := &config{
		serviceName: "bermoid",
		sampler:     sdktrace.AlwaysSample(),
	}
	for _, opt := range opts {
		opt(c)
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(c.serviceName),
		),
	)
	if err != nil {
		return nil, err
	}

	tpOpts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(c.sampler),
	}

	if c.otlpTarget != "" || c.grpcConn != nil {
		clientOpts := []otlptracegrpc.Option{
			otlptracegrpc.WithInsecure(),
		}
		if c.grpcConn != nil {
			clientOpts = append(clientOpts, otlptracegrpc.WithGRPCConn(c.grpcConn))
		} else {
			clientOpts = append(clientOpts, otlptracegrpc.WithEndpoint(c.otlpTarget))
		}

		exp, err := otlptrace.New(ctx, otlptracegrpc.NewClient(clientOpts...))
		if err != nil {
			return nil, err
		}
		tpOpts = append(tpOpts, sdktrace.WithBatcher(exp))
	}
	if c.stdout {
		exp, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, err
		}
		tpOpts = append(tpOpts, sdktrace.WithBatcher(exp))
	}

	tp := sdktrace.NewTracerProvider(tpOpts...)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return tp.Shutdown, nil
}
