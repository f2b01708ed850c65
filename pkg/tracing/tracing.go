// Package tracing wires lightweight OpenTelemetry spans around the two
// recurring procedures worth watching end-to-end: one AgentLoop turn and one
// HeartbeatService tick. A stdout exporter keeps the zero-config path usable
// without an external collector; swapping exporters is a one-line change at
// Init.
package tracing

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
)

// Config tunes whether and how tracing runs.
type Config struct {
	Enabled      bool    `yaml:"enabled"`
	ServiceName  string  `yaml:"service_name"`
	SamplingRate float64 `yaml:"sampling_rate"`
}

// Init installs a global TracerProvider. Disabled configs get a no-op
// provider so instrumented code pays no cost and needs no nil checks.
func Init(ctx context.Context, cfg Config) (trace.TracerProvider, error) {
	if !cfg.Enabled {
		tp := noop.NewTracerProvider()
		otel.SetTracerProvider(tp)
		return tp, nil
	}

	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, fmt.Errorf("create stdout trace exporter: %w", err)
	}

	name := cfg.ServiceName
	if name == "" {
		name = "crew"
	}
	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceName(name)))
	if err != nil {
		return nil, fmt.Errorf("build trace resource: %w", err)
	}

	rate := cfg.SamplingRate
	if rate <= 0 {
		rate = 1.0
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithSampler(sdktrace.TraceIDRatioBased(rate)),
		sdktrace.WithResource(res),
	)
	otel.SetTracerProvider(tp)
	return tp, nil
}

// Tracer returns the named tracer off the global provider.
func Tracer(name string) trace.Tracer {
	return otel.Tracer(name)
}

// StartTurn opens a span around one AgentLoop turn.
func StartTurn(ctx context.Context, bot, sessionKey string) (context.Context, trace.Span) {
	ctx, span := Tracer("crew/agent").Start(ctx, "agent.turn")
	span.SetAttributes(
		attribute.String("bot", bot),
		attribute.String("session_key", sessionKey),
	)
	return ctx, span
}

// StartHeartbeatTick opens a span around one HeartbeatService tick.
func StartHeartbeatTick(ctx context.Context, bot, triggerType string) (context.Context, trace.Span) {
	ctx, span := Tracer("crew/heartbeat").Start(ctx, "heartbeat.tick")
	span.SetAttributes(
		attribute.String("bot", bot),
		attribute.String("trigger_type", triggerType),
	)
	return ctx, span
}
