// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Warden Contributors

// Package telemetry configures OpenTelemetry tracing.
package telemetry

import (
	"context"
	"net/url"
	"strings"

	"github.com/samber/oops"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Options configures tracing.
type Options struct {
	ServiceName    string
	ServiceVersion string
	// Endpoint is host:port or a URL of an OTLP/gRPC collector. Empty keeps
	// a provider that records spans but exports nothing.
	Endpoint string
	// Insecure forces plaintext even for https endpoints.
	Insecure    bool
	SampleRatio float64
	// Exporter replaces the OTLP exporter. Used in tests.
	Exporter sdktrace.SpanExporter
}

// Tracing owns a TracerProvider.
type Tracing struct {
	Provider *sdktrace.TracerProvider
}

// Setup builds a TracerProvider and installs it, with W3C trace context
// propagation, as the global provider.
func Setup(ctx context.Context, opts Options) (*Tracing, error) {
	res, err := resource.Merge(
		resource.Default(),
		resource.NewSchemaless(
			attribute.String("service.name", opts.ServiceName),
			attribute.String("service.version", opts.ServiceVersion),
		),
	)
	if err != nil {
		return nil, oops.Code("TELEMETRY_RESOURCE_FAILED").Wrap(err)
	}

	providerOpts := []sdktrace.TracerProviderOption{
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(opts.SampleRatio))),
	}

	exporter := opts.Exporter
	if exporter == nil && strings.TrimSpace(opts.Endpoint) != "" {
		exporter, err = newOTLPExporter(ctx, opts.Endpoint, opts.Insecure)
		if err != nil {
			return nil, err
		}
	}
	if exporter != nil {
		providerOpts = append(providerOpts, sdktrace.WithBatcher(exporter))
	}

	provider := sdktrace.NewTracerProvider(providerOpts...)
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))
	return &Tracing{Provider: provider}, nil
}

// Shutdown flushes pending spans.
func (t *Tracing) Shutdown(ctx context.Context) error {
	if err := t.Provider.Shutdown(ctx); err != nil {
		return oops.Code("TELEMETRY_SHUTDOWN_FAILED").Wrap(err)
	}
	return nil
}

// newOTLPExporter dials host:port of endpoint. Paths are ignored. Non-https
// endpoints are plaintext.
func newOTLPExporter(ctx context.Context, endpoint string, insecure bool) (*otlptrace.Exporter, error) {
	target, plaintext, err := parseEndpoint(endpoint)
	if err != nil {
		return nil, err
	}

	opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(target)}
	if plaintext || insecure {
		opts = append(opts, otlptracegrpc.WithInsecure())
	}
	exporter, err := otlptracegrpc.New(ctx, opts...)
	if err != nil {
		return nil, oops.Code("TELEMETRY_EXPORTER_FAILED").With("endpoint", target).Wrap(err)
	}
	return exporter, nil
}

func parseEndpoint(endpoint string) (target string, plaintext bool, err error) {
	endpoint = strings.TrimSpace(endpoint)
	if !strings.Contains(endpoint, "://") {
		endpoint = "http://" + endpoint
	}
	u, err := url.Parse(endpoint)
	if err != nil {
		return "", false, oops.Code("TELEMETRY_ENDPOINT_INVALID").With("endpoint", endpoint).Wrap(err)
	}
	if u.Host == "" {
		return "", false, oops.Code("TELEMETRY_ENDPOINT_INVALID").
			With("endpoint", endpoint).
			Errorf("endpoint has no host")
	}
	return u.Host, u.Scheme != "https", nil
}
