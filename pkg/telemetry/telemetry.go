// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package telemetry installs the OpenTelemetry trace and meter providers
// for command-line tools.
//
// Library packages create their spans and instruments through the global
// otel providers. Until Init runs those are no-ops, so instrumented code
// costs nothing when telemetry is off.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	promexporter "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

var (
	// ErrNilContext indicates Init was called without a context.
	ErrNilContext = errors.New("telemetry: nil context")

	// ErrUnknownExporter indicates an exporter name Init does not know.
	ErrUnknownExporter = errors.New("telemetry: unknown exporter")
)

var configValidate = validator.New()

// Config selects the exporters.
type Config struct {
	ServiceName    string `yaml:"service_name" validate:"required"`
	ServiceVersion string `yaml:"service_version"`

	// TraceExporter is "none", "stdout" or "otlp". Empty means none.
	TraceExporter string `yaml:"trace_exporter"`

	// MetricExporter is "none", "stdout" or "prometheus". Empty means none.
	MetricExporter string `yaml:"metric_exporter"`

	// OTLPEndpoint is the OTLP gRPC receiver.
	OTLPEndpoint string `yaml:"otlp_endpoint" validate:"required_if=TraceExporter otlp"`
	OTLPInsecure bool   `yaml:"otlp_insecure"`

	// Writer receives stdout exporter output. Defaults to os.Stderr.
	Writer io.Writer `yaml:"-"`
}

// DefaultConfig returns a configuration with both exporters off, unless the
// standard OTEL_*_EXPORTER variables choose otherwise.
func DefaultConfig(service string) Config {
	return Config{
		ServiceName:    service,
		ServiceVersion: "dev",
		TraceExporter:  envOr("OTEL_TRACES_EXPORTER", "none"),
		MetricExporter: envOr("OTEL_METRICS_EXPORTER", "none"),
		OTLPEndpoint:   envOr("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		OTLPInsecure:   true,
	}
}

type spanExporterFunc func(ctx context.Context, cfg Config) (sdktrace.SpanExporter, error)

type metricReaderFunc func(cfg Config) (sdkmetric.Reader, http.Handler, error)

var spanExporters = map[string]spanExporterFunc{
	"stdout": func(_ context.Context, cfg Config) (sdktrace.SpanExporter, error) {
		return stdouttrace.New(stdouttrace.WithWriter(cfg.Writer), stdouttrace.WithPrettyPrint())
	},
	"otlp": func(ctx context.Context, cfg Config) (sdktrace.SpanExporter, error) {
		opts := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint)}
		if cfg.OTLPInsecure {
			opts = append(opts, otlptracegrpc.WithInsecure())
		}
		return otlptracegrpc.New(ctx, opts...)
	},
}

var metricReaders = map[string]metricReaderFunc{
	"stdout": func(cfg Config) (sdkmetric.Reader, http.Handler, error) {
		exp, err := stdoutmetric.New(stdoutmetric.WithWriter(cfg.Writer), stdoutmetric.WithPrettyPrint())
		if err != nil {
			return nil, nil, err
		}
		return sdkmetric.NewPeriodicReader(exp), nil, nil
	},
	// The exporter registers with the default prometheus registry, so the
	// handler also serves every promauto metric of the process.
	"prometheus": func(Config) (sdkmetric.Reader, http.Handler, error) {
		exp, err := promexporter.New()
		if err != nil {
			return nil, nil, err
		}
		return exp, promhttp.Handler(), nil
	},
}

// Providers holds what Init installed.
type Providers struct {
	tracer  *sdktrace.TracerProvider
	meter   *sdkmetric.MeterProvider
	handler http.Handler
}

// Init installs the global trace and meter providers.
//
// Inputs:
//   - ctx: Used to dial the OTLP exporter. Must not be nil.
//   - cfg: Exporter selection. "none" leaves the no-op provider in place.
//
// Outputs:
//   - *Providers: Call Shutdown to flush. Never nil on success.
//   - error: ErrNilContext, ErrUnknownExporter, an invalid config, or an
//     exporter failure.
func Init(ctx context.Context, cfg Config) (*Providers, error) {
	if ctx == nil {
		return nil, ErrNilContext
	}
	if err := configValidate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("telemetry config: %w", err)
	}
	if cfg.Writer == nil {
		cfg.Writer = os.Stderr
	}

	res := resource.NewSchemaless(
		attribute.String("service.name", cfg.ServiceName),
		attribute.String("service.version", cfg.ServiceVersion),
	)
	p := &Providers{}

	if enabled(cfg.TraceExporter) {
		newExporter, ok := spanExporters[cfg.TraceExporter]
		if !ok {
			return nil, fmt.Errorf("%w: trace exporter %q", ErrUnknownExporter, cfg.TraceExporter)
		}
		exp, err := newExporter(ctx, cfg)
		if err != nil {
			return nil, fmt.Errorf("trace exporter %s: %w", cfg.TraceExporter, err)
		}
		p.tracer = sdktrace.NewTracerProvider(
			sdktrace.WithBatcher(exp),
			sdktrace.WithResource(res),
		)
		otel.SetTracerProvider(p.tracer)
	}

	if enabled(cfg.MetricExporter) {
		newReader, ok := metricReaders[cfg.MetricExporter]
		if !ok {
			_ = p.Shutdown(ctx)
			return nil, fmt.Errorf("%w: metric exporter %q", ErrUnknownExporter, cfg.MetricExporter)
		}
		reader, handler, err := newReader(cfg)
		if err != nil {
			_ = p.Shutdown(ctx)
			return nil, fmt.Errorf("metric exporter %s: %w", cfg.MetricExporter, err)
		}
		p.meter = sdkmetric.NewMeterProvider(
			sdkmetric.WithReader(reader),
			sdkmetric.WithResource(res),
		)
		p.handler = handler
		otel.SetMeterProvider(p.meter)
	}
	return p, nil
}

// MetricsHandler returns the /metrics handler when the prometheus exporter
// is installed, and nil otherwise.
func (p *Providers) MetricsHandler() http.Handler {
	return p.handler
}

// Shutdown flushes and stops the installed providers.
func (p *Providers) Shutdown(ctx context.Context) error {
	var errs []error
	if p.tracer != nil {
		errs = append(errs, p.tracer.Shutdown(ctx))
	}
	if p.meter != nil {
		errs = append(errs, p.meter.Shutdown(ctx))
	}
	return errors.Join(errs...)
}

func enabled(exporter string) bool {
	return exporter != "" && exporter != "none"
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
