/*
   Copyright The Soci Snapshotter Authors.

   Licensed under the Apache License, Version 2.0 (the "License");
   you may not use this file except in compliance with the License.
   You may obtain a copy of the License at

       http://www.apache.org/licenses/LICENSE-2.0

   Unless required by applicable law or agreed to in writing, software
   distributed under the License is distributed on an "AS IS" BASIS,
   WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
   See the License for the specific language governing permissions and
   limitations under the License.
*/

// Package tracing configures OpenTelemetry trace export from the standard
// OTEL_* environment variables. Tracing stays off unless an OTLP endpoint
// is configured.
package tracing

import (
	"context"
	"fmt"
	"os"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const (
	sdkDisabledEnv        = "OTEL_SDK_DISABLED"
	otlpEndpointEnv       = "OTEL_EXPORTER_OTLP_ENDPOINT"
	otlpTracesEndpointEnv = "OTEL_EXPORTER_OTLP_TRACES_ENDPOINT"
	otlpProtocolEnv       = "OTEL_EXPORTER_OTLP_PROTOCOL"
	otlpTracesProtocolEnv = "OTEL_EXPORTER_OTLP_TRACES_PROTOCOL"
	otelTracesExporterEnv = "OTEL_TRACES_EXPORTER"
	otelServiceNameEnv    = "OTEL_SERVICE_NAME"
	defaultServiceName    = "stream-inflate"

	// InstrumentationName names the tracer used for decoder spans.
	InstrumentationName = "github.com/awslabs/stream-inflate"

	shutdownTimeout = 5 * time.Second
)

// Tracer returns the tracer for decoder spans from the global provider.
func Tracer() trace.Tracer {
	return otel.Tracer(InstrumentationName)
}

// Setup installs an exporting tracer provider when tracing is enabled and
// returns the function that flushes and stops it. When tracing is disabled
// the global no-op provider is left in place.
func Setup(ctx context.Context) (func(context.Context) error, error) {
	disabled, err := IsDisabled()
	if err != nil {
		return nil, err
	}
	if disabled {
		return func(context.Context) error { return nil }, nil
	}
	exp, err := newExporter(ctx)
	if err != nil {
		return nil, err
	}
	return setupTracer(exp), nil
}

// IsDisabled reports whether tracing is turned off, either explicitly or by
// not configuring an endpoint.
func IsDisabled() (bool, error) {
	if v := os.Getenv(sdkDisabledEnv); v != "" {
		disabled, err := strconv.ParseBool(v)
		if err != nil {
			return true, fmt.Errorf("invalid value for env %s: %w", sdkDisabledEnv, err)
		}
		if disabled {
			return true, nil
		}
	}
	return os.Getenv(otlpEndpointEnv) == "" && os.Getenv(otlpTracesEndpointEnv) == "", nil
}

func newExporter(ctx context.Context) (*otlptrace.Exporter, error) {
	// "otlp" is the only supported traces exporter
	if v := os.Getenv(otelTracesExporterEnv); v != "" && v != "otlp" {
		return nil, fmt.Errorf("unsupported traces exporter %q", v)
	}

	protocol := os.Getenv(otlpTracesProtocolEnv)
	if protocol == "" {
		protocol = os.Getenv(otlpProtocolEnv)
	}

	ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
	defer cancel()

	switch protocol {
	case "", "http/protobuf":
		return otlptracehttp.New(ctx)
	case "grpc":
		return otlptracegrpc.New(ctx)
	default:
		return nil, fmt.Errorf("unsupported OpenTelemetry protocol %q", protocol)
	}
}

func setupTracer(exp sdktrace.SpanExporter) func(context.Context) error {
	if os.Getenv(otelServiceNameEnv) == "" {
		os.Setenv(otelServiceNameEnv, defaultServiceName)
	}

	provider := sdktrace.NewTracerProvider(sdktrace.WithBatcher(exp))
	otel.SetTracerProvider(provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	return func(ctx context.Context) error {
		ctx, cancel := context.WithTimeout(ctx, shutdownTimeout)
		defer cancel()

		if err := provider.Shutdown(ctx); err != nil {
			return fmt.Errorf("failed to shutdown trace provider: %w", err)
		}
		return nil
	}
}
