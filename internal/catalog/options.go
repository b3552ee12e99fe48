package catalog

import (
	"time"

	"github.com/bart-jansen/opencga/internal/ids"
	"github.com/bart-jansen/opencga/internal/telemetry"
	"github.com/bart-jansen/opencga/pkg/domain"
)

// DefaultTimeout bounds every store call an operation makes.
const DefaultTimeout = 30 * time.Second

type adaptorOptions struct {
	hooks     telemetry.Hooks
	timeout   time.Duration
	allocator ids.Allocator
	schemas   domain.VariableSetProvider
	existence domain.ExistenceChecker
}

// Option configures an Adaptor.
type Option func(*adaptorOptions)

// WithLogger sets the structured logger.
func WithLogger(l telemetry.Logger) Option {
	return func(o *adaptorOptions) {
		if l != nil {
			o.hooks.Logger = l
		}
	}
}

// WithClock sets the clock used for creation and status timestamps.
func WithClock(c telemetry.Clock) Option {
	return func(o *adaptorOptions) {
		if c != nil {
			o.hooks.Clock = c
		}
	}
}

// WithMetrics records the outcome of every operation.
func WithMetrics(m telemetry.MetricsRecorder) Option {
	return func(o *adaptorOptions) {
		if m != nil {
			o.hooks.Metrics = m
		}
	}
}

// WithTracer opens a span around every operation.
func WithTracer(t telemetry.Tracer) Option {
	return func(o *adaptorOptions) {
		if t != nil {
			o.hooks.Tracer = t
		}
	}
}

// WithTimeout overrides DefaultTimeout. Zero or negative disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(o *adaptorOptions) { o.timeout = d }
}

// WithAllocator replaces the store counter used for new ids.
func WithAllocator(a ids.Allocator) Option {
	return func(o *adaptorOptions) {
		if a != nil {
			o.allocator = a
		}
	}
}

// WithVariableSets supplies annotation schemas to the query compiler.
func WithVariableSets(p domain.VariableSetProvider) Option {
	return func(o *adaptorOptions) { o.schemas = p }
}

// WithExistence replaces the store-backed check for referenced ids.
func WithExistence(c domain.ExistenceChecker) Option {
	return func(o *adaptorOptions) {
		if c != nil {
			o.existence = c
		}
	}
}
