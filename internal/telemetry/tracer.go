package telemetry

import (
	"context"
	"encoding/json"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
)

// SpanEntry is one finished span as written by JSONTracer.
type SpanEntry struct {
	TraceID    string    `json:"trace_id"`
	SpanID     string    `json:"span_id"`
	ParentID   string    `json:"parent_id,omitempty"`
	Operation  string    `json:"operation"`
	Status     string    `json:"status"`
	DurationMS float64   `json:"duration_ms"`
	Error      string    `json:"error,omitempty"`
	StartedAt  time.Time `json:"started_at"`
	EndedAt    time.Time `json:"ended_at"`
}

// JSONTracer writes finished spans as JSON lines and keeps them for
// inspection. Nested spans share the trace id of their root.
type JSONTracer struct {
	mu      sync.Mutex
	entries []SpanEntry
	enc     *json.Encoder
	clock   Clock
}

// NewJSONTracer returns a tracer writing to w; a nil w only retains spans.
func NewJSONTracer(w io.Writer) *JSONTracer {
	t := &JSONTracer{clock: SystemClock}
	if w != nil {
		t.enc = json.NewEncoder(w)
	}
	return t
}

// Entries returns a copy of the finished spans.
func (t *JSONTracer) Entries() []SpanEntry {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]SpanEntry, len(t.entries))
	copy(out, t.entries)
	return out
}

type spanKey struct{}

type spanRef struct {
	traceID string
	spanID  string
}

// Start implements Tracer.
func (t *JSONTracer) Start(ctx context.Context, operation string) (context.Context, Span) {
	s := &jsonSpan{
		tracer:    t,
		operation: operation,
		started:   t.clock.Now(),
		ref:       spanRef{spanID: uuid.NewString()},
	}
	if parent, ok := ctx.Value(spanKey{}).(spanRef); ok {
		s.ref.traceID = parent.traceID
		s.parent = parent.spanID
	} else {
		s.ref.traceID = uuid.NewString()
	}
	return context.WithValue(ctx, spanKey{}, s.ref), s
}

type jsonSpan struct {
	tracer    *JSONTracer
	operation string
	started   time.Time
	ref       spanRef
	parent    string
	once      sync.Once
}

func (s *jsonSpan) End(err error) {
	s.once.Do(func() {
		ended := s.tracer.clock.Now()
		entry := SpanEntry{
			TraceID:    s.ref.traceID,
			SpanID:     s.ref.spanID,
			ParentID:   s.parent,
			Operation:  s.operation,
			Status:     "success",
			DurationMS: float64(ended.Sub(s.started)) / float64(time.Millisecond),
			StartedAt:  s.started,
			EndedAt:    ended,
		}
		if err != nil {
			entry.Status = "error"
			entry.Error = err.Error()
		}
		s.tracer.mu.Lock()
		defer s.tracer.mu.Unlock()
		s.tracer.entries = append(s.tracer.entries, entry)
		if s.tracer.enc != nil {
			_ = s.tracer.enc.Encode(entry)
		}
	})
}
