package observability

import (
	"context"

	"github.com/strataops/ledgerline/internal/config"
	"github.com/strataops/ledgerline/internal/observability/metrics"
	"github.com/strataops/ledgerline/internal/observability/tracing"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("observability",
	fx.Provide(
		provideTracingConfig,
		tracing.NewProvider,
		provideMetricsConfig,
	),
	fx.Invoke(registerTracingHooks),
	fx.Invoke(ensureMetrics),
)

func provideTracingConfig(cfg config.Config) tracing.Config {
	return tracing.Config{
		Enabled:          cfg.OTelEnabled,
		ServiceName:      cfg.AppName,
		ServiceVersion:   cfg.AppVersion,
		Environment:      cfg.Environment,
		ExporterEndpoint: cfg.OTLPEndpoint,
		SamplingRatio:    cfg.OTelSamplingRatio,
	}
}

func provideMetricsConfig(cfg config.Config) metrics.Config {
	return metrics.Config{
		ServiceName: cfg.AppName,
		Environment: cfg.Environment,
	}
}

func ensureMetrics(cfg metrics.Config) {
	metrics.SchedulerWithConfig(cfg)
	metrics.BillingWithConfig(cfg)
}

func registerTracingHooks(lc fx.Lifecycle, provider *sdktrace.TracerProvider, log *zap.Logger) {
	if provider == nil {
		return
	}
	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			log.Info("shutting down tracer provider")
			return tracing.Shutdown(ctx, provider)
		},
	})
}
