// Package telemetry defines the logging, clock, metrics and tracing hooks the
// catalog engines accept, with no-op defaults.
package telemetry

import (
	"context"
	"time"
)

// Logger is the structured logging surface used by the engines. *slog.Logger
// satisfies it.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Clock supplies the current time.
type Clock interface {
	Now() time.Time
}

// ClockFunc adapts a function to Clock.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time { return f() }

// SystemClock reads the wall clock in UTC.
var SystemClock Clock = ClockFunc(func() time.Time { return time.Now().UTC() })

// MetricsRecorder observes the outcome of one catalog operation.
type MetricsRecorder interface {
	Observe(ctx context.Context, operation string, success bool, duration time.Duration)
}

// Tracer opens spans around catalog operations.
type Tracer interface {
	Start(ctx context.Context, operation string) (context.Context, Span)
}

// Span is finished exactly once with the operation's error, if any.
type Span interface {
	End(err error)
}

// NoopLogger discards everything.
type NoopLogger struct{}

func (NoopLogger) Debug(string, ...any) {}
func (NoopLogger) Info(string, ...any)  {}
func (NoopLogger) Warn(string, ...any)  {}
func (NoopLogger) Error(string, ...any) {}

// NoopMetrics discards observations.
type NoopMetrics struct{}

// Observe implements MetricsRecorder.
func (NoopMetrics) Observe(context.Context, string, bool, time.Duration) {}

// NoopTracer returns spans that do nothing.
type NoopTracer struct{}

// Start implements Tracer.
func (NoopTracer) Start(ctx context.Context, _ string) (context.Context, Span) {
	return ctx, noopSpan{}
}

type noopSpan struct{}

func (noopSpan) End(error) {}

// Hooks bundles the observability collaborators of one engine.
type Hooks struct {
	Logger  Logger
	Clock   Clock
	Metrics MetricsRecorder
	Tracer  Tracer
}

// Defaults fills unset hooks with no-op implementations and the system clock.
func (h Hooks) Defaults() Hooks {
	if h.Logger == nil {
		h.Logger = NoopLogger{}
	}
	if h.Clock == nil {
		h.Clock = SystemClock
	}
	if h.Metrics == nil {
		h.Metrics = NoopMetrics{}
	}
	if h.Tracer == nil {
		h.Tracer = NoopTracer{}
	}
	return h
}

// Run executes fn inside a span, records its duration and logs failures at
// debug level. The error is returned unchanged.
func (h Hooks) Run(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	start := h.Clock.Now()
	ctx, span := h.Tracer.Start(ctx, operation)
	err := fn(ctx)
	span.End(err)
	h.Metrics.Observe(ctx, operation, err == nil, h.Clock.Now().Sub(start))
	if err != nil {
		h.Logger.Debug("catalog operation failed", "operation", operation, "error", err)
	}
	return err
}
