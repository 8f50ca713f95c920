// Copyright (c) Canonical Ltd.
// Licensed under the GPL-3.0 License.

package telemetry

import (
	"context"
	"fmt"
	"os"
	"runtime"

	"github.com/canonical/chimg/internal/logger"
	"github.com/canonical/chimg/internal/osinfo"
	autoexport "go.opentelemetry.io/contrib/exporters/autoexport"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.4.0"
)

var shutdownFn func(ctx context.Context) error

// InitTelemetry sets up the global tracer provider. Telemetry is only
// collected when an OTLP endpoint is configured in the environment.
func InitTelemetry(disableTelemetry bool, toolVersion string) error {
	if disableTelemetry {
		logger.Log.Info("Disabled telemetry collection")
		return nil
	} else if os.Getenv("OTEL_EXPORTER_OTLP_ENDPOINT") == "" {
		logger.Log.Debug("No OTLP endpoint set, telemetry will not be collected")
		return nil
	}

	exporter, err := autoexport.NewSpanExporter(context.Background())
	if err != nil {
		return fmt.Errorf("failed to create OTLP exporter: %w", err)
	}

	distro, version := osinfo.GetDistroAndVersion()

	res, _ := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceNameKey.String("chimg"),
			semconv.ServiceVersionKey.String(toolVersion),
			attribute.String("host.architecture", runtime.GOARCH),
			attribute.String("host.os", distro),
			attribute.String("host.os.version", version),
		),
	)

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	shutdownFn = tp.Shutdown
	return nil
}

// ForceFlush attempts to flush any pending spans to the exporter
func ForceFlush(ctx context.Context) error {
	tp, ok := otel.GetTracerProvider().(*sdktrace.TracerProvider)
	if !ok {
		return nil
	}
	return tp.ForceFlush(ctx)
}

func ShutdownTelemetry(ctx context.Context) error {
	if shutdownFn == nil {
		return nil
	}

	if err := ForceFlush(ctx); err != nil {
		logger.Log.Warnf("Failed to flush telemetry spans: %v", err)
	}

	return shutdownFn(ctx)
}
