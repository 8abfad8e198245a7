package observability

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"

	"github.com/sandeepkv93/special-access-gate/internal/config"
)

const meterName = "special-access-gate"

type appMetrics struct {
	repositoryOps     metric.Int64Counter
	gateDecisions     metric.Int64Counter
	tokenValidations  metric.Int64Counter
	passkeyVerifies   metric.Int64Counter
	tokenLifecycle    metric.Int64Counter
	sessionLifecycle  metric.Int64Counter
	adminTokenChecks  metric.Int64Counter
	eventPublications metric.Int64Counter
	csrfRejections    metric.Int64Counter
}

var (
	metricsMu sync.RWMutex
	instance  *appMetrics
)

func InitMetrics(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*sdkmetric.MeterProvider, error) {
	if !cfg.OTELMetricsEnabled {
		mp := sdkmetric.NewMeterProvider()
		otel.SetMeterProvider(mp)
		resetInstruments()
		logger.Info("otel metrics disabled")
		return mp, nil
	}

	opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithEndpoint(cfg.OTELExporterOTLPEndpoint)}
	if cfg.OTELExporterOTLPInsecure {
		opts = append(opts, otlpmetricgrpc.WithInsecure())
	}
	exporter, err := otlpmetricgrpc.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("create otlp metric exporter: %w", err)
	}
	res, err := newResource(ctx, cfg)
	if err != nil {
		return nil, fmt.Errorf("create metric resource: %w", err)
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(cfg.OTELMetricsExportInterval))
	mp := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(reader),
	)
	otel.SetMeterProvider(mp)
	resetInstruments()

	logger.Info("otel metrics initialized", "endpoint", cfg.OTELExporterOTLPEndpoint)
	return mp, nil
}

func newResource(ctx context.Context, cfg *config.Config) (*resource.Resource, error) {
	return resource.New(ctx,
		resource.WithAttributes(
			attribute.String("service.name", cfg.OTELServiceName),
			attribute.String("deployment.environment", cfg.OTELEnvironment),
		),
	)
}

// resetInstruments drops cached instruments so they are recreated from the current provider.
func resetInstruments() {
	metricsMu.Lock()
	instance = nil
	metricsMu.Unlock()
}

func instruments() *appMetrics {
	metricsMu.RLock()
	m := instance
	metricsMu.RUnlock()
	if m != nil {
		return m
	}

	metricsMu.Lock()
	defer metricsMu.Unlock()
	if instance != nil {
		return instance
	}
	meter := otel.Meter(meterName)
	m = &appMetrics{}
	m.repositoryOps, _ = meter.Int64Counter("repository.operations")
	m.gateDecisions, _ = meter.Int64Counter("gate.decisions")
	m.tokenValidations, _ = meter.Int64Counter("special_access.token.validations")
	m.passkeyVerifies, _ = meter.Int64Counter("special_access.passkey.verifications")
	m.tokenLifecycle, _ = meter.Int64Counter("special_access.token.lifecycle")
	m.sessionLifecycle, _ = meter.Int64Counter("special_access.session.lifecycle")
	m.adminTokenChecks, _ = meter.Int64Counter("admin.access_token.validations")
	m.eventPublications, _ = meter.Int64Counter("events.publications")
	m.csrfRejections, _ = meter.Int64Counter("security.csrf.rejections")
	instance = m
	return m
}

func add(ctx context.Context, c metric.Int64Counter, attrs ...attribute.KeyValue) {
	if c == nil {
		return
	}
	c.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func RecordRepositoryOperation(ctx context.Context, repo, op, outcome string) {
	add(ctx, instruments().repositoryOps,
		attribute.String("repository", repo),
		attribute.String("operation", op),
		attribute.String("outcome", outcome),
	)
}

func RecordGateDecision(ctx context.Context, decision, reason string) {
	add(ctx, instruments().gateDecisions,
		attribute.String("decision", decision),
		attribute.String("reason", reason),
	)
}

func RecordTokenValidation(ctx context.Context, outcome string) {
	add(ctx, instruments().tokenValidations, attribute.String("outcome", outcome))
}

func RecordPasskeyVerification(ctx context.Context, outcome string) {
	add(ctx, instruments().passkeyVerifies, attribute.String("outcome", outcome))
}

func RecordTokenLifecycle(ctx context.Context, action string) {
	add(ctx, instruments().tokenLifecycle, attribute.String("action", action))
}

func RecordSessionLifecycle(ctx context.Context, action string) {
	add(ctx, instruments().sessionLifecycle, attribute.String("action", action))
}

func RecordAccessTokenValidation(ctx context.Context, outcome, source string) {
	add(ctx, instruments().adminTokenChecks,
		attribute.String("outcome", outcome),
		attribute.String("source", source),
	)
}

func RecordEventPublication(ctx context.Context, sink, outcome string) {
	add(ctx, instruments().eventPublications,
		attribute.String("sink", sink),
		attribute.String("outcome", outcome),
	)
}

func RecordCSRFRejection(ctx context.Context, pathGroup, reason string) {
	add(ctx, instruments().csrfRejections,
		attribute.String("path_group", pathGroup),
		attribute.String("reason", reason),
	)
}
