package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
)

// ProviderConfig configures the OpenTelemetry SDK meter provider a host
// can install before building a [Recorder].
type ProviderConfig struct {
	// ServiceName is the service name reported in telemetry. Default: "graphkeep".
	ServiceName string

	// ServiceVersion is the service version reported in telemetry.
	ServiceVersion string

	// Reader is the metric.Reader an exporter registers (Prometheus,
	// OTLP, stdout, ...). When nil, instruments are created and
	// recorded against but nothing reads them out — useful for
	// embedding graphkeep in a host that hasn't wired an exporter yet.
	Reader sdkmetric.Reader
}

// InitProvider builds an [sdkmetric.MeterProvider] from cfg, registers it as
// the global OTel meter provider, and returns a shutdown function to flush
// and release it. A host that already runs its own OTel SDK should skip
// this and call [NewRecorder] directly against its own provider instead.
func InitProvider(ctx context.Context, cfg ProviderConfig) (shutdown func(context.Context) error, err error) {
	if cfg.ServiceName == "" {
		cfg.ServiceName = "graphkeep"
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(cfg.ServiceName),
			semconv.ServiceVersion(cfg.ServiceVersion),
		),
	)
	if err != nil {
		return nil, err
	}

	opts := []sdkmetric.Option{sdkmetric.WithResource(res)}
	if cfg.Reader != nil {
		opts = append(opts, sdkmetric.WithReader(cfg.Reader))
	}

	mp := sdkmetric.NewMeterProvider(opts...)
	otel.SetMeterProvider(mp)

	return mp.Shutdown, nil
}
