// Package metrics wires OpenTelemetry metrics and Prometheus HTTP metrics.
package metrics

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the meter provider.
type Config struct {
	Enabled          bool
	ServiceName      string
	Environment      string
	ExporterEndpoint string
	ExporterProtocol string
}

// NewProvider constructs a meter provider and installs it globally.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (*sdkmetric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := sdkmetric.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg)
	if err != nil {
		return nil, fmt.Errorf("create metric exporter: %w", err)
	}

	res, err := resource.Merge(resource.Default(), resource.NewWithAttributes(
		semconv.SchemaURL,
		semconv.ServiceName(cfg.ServiceName),
		semconv.DeploymentEnvironment(cfg.Environment),
	))
	if err != nil {
		return nil, fmt.Errorf("build metric resource: %w", err)
	}

	provider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(30*time.Second))),
	)
	otel.SetMeterProvider(provider)

	if log != nil {
		log.Info("metrics enabled",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				shutdownCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
				defer cancel()
				return provider.Shutdown(shutdownCtx)
			},
		})
	}

	return provider, nil
}

func newExporter(cfg Config) (sdkmetric.Exporter, error) {
	endpoint := strings.TrimSpace(cfg.ExporterEndpoint)
	if endpoint == "" {
		return nil, errors.New("metrics enabled but exporter endpoint is empty")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	switch strings.ToLower(strings.TrimSpace(cfg.ExporterProtocol)) {
	case "", "grpc":
		return otlpmetricgrpc.New(ctx,
			otlpmetricgrpc.WithEndpoint(endpoint),
			otlpmetricgrpc.WithInsecure(),
		)
	case "http", "http/protobuf":
		return otlpmetrichttp.New(ctx,
			otlpmetrichttp.WithEndpoint(endpoint),
			otlpmetrichttp.WithInsecure(),
		)
	default:
		return nil, fmt.Errorf("unsupported metric exporter protocol %q", cfg.ExporterProtocol)
	}
}

// Metrics exposes the domain instruments recorded by membership flows.
type Metrics struct {
	joinRequests      metric.Int64Counter
	membershipChanges metric.Int64Counter
	rateLimitChecks   metric.Int64Counter
}

// New builds the domain instruments from the installed meter provider.
func New(provider *sdkmetric.MeterProvider) (*Metrics, error) {
	meter := provider.Meter("joblane/membership")

	joinRequests, err := meter.Int64Counter("membership_join_requests_total",
		metric.WithDescription("Join requests received, labelled by origin and outcome"),
	)
	if err != nil {
		return nil, err
	}

	membershipChanges, err := meter.Int64Counter("membership_changes_total",
		metric.WithDescription("Membership mutations, labelled by action"),
	)
	if err != nil {
		return nil, err
	}

	rateLimitChecks, err := meter.Int64Counter("membership_rate_limit_checks_total",
		metric.WithDescription("Rate limit decisions for join requests"),
	)
	if err != nil {
		return nil, err
	}

	return &Metrics{
		joinRequests:      joinRequests,
		membershipChanges: membershipChanges,
		rateLimitChecks:   rateLimitChecks,
	}, nil
}

// RecordJoinRequest counts a received join request.
func (m *Metrics) RecordJoinRequest(ctx context.Context, origin, outcome string) {
	if m == nil || m.joinRequests == nil {
		return
	}
	m.joinRequests.Add(ctx, 1, metric.WithAttributes(FilterAttributes(
		attribute.String("origin", origin),
		attribute.String("outcome", outcome),
	)...))
}

// RecordMembershipChange counts a membership mutation such as a role update or removal.
func (m *Metrics) RecordMembershipChange(ctx context.Context, action string) {
	if m == nil || m.membershipChanges == nil {
		return
	}
	m.membershipChanges.Add(ctx, 1, metric.WithAttributes(FilterAttributes(
		attribute.String("action", action),
	)...))
}

// RecordRateLimitCheck counts an allow or deny decision.
func (m *Metrics) RecordRateLimitCheck(ctx context.Context, allowed bool) {
	if m == nil || m.rateLimitChecks == nil {
		return
	}
	decision := "allowed"
	if !allowed {
		decision = "denied"
	}
	m.rateLimitChecks.Add(ctx, 1, metric.WithAttributes(
		attribute.String("decision", decision),
	))
}

var allowedAttributeKeys = map[string]struct{}{
	"origin":   {},
	"outcome":  {},
	"action":   {},
	"decision": {},
	"role":     {},
	"status":   {},
}

// FilterAttributes drops attributes outside the low-cardinality allowlist.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedAttributeKeys[string(attr.Key)]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
