package api

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const (
	snapshotSpanName    = "api.board_snapshot"
	snapshotEventName   = "board_snapshot.request"
	snapshotEventDomain = "teamboard"
	snapshotRoute       = "/api/boards/:id/tasks"
)

// snapshotRequestMetrics correlates the timing of one board snapshot request
// across its auth, membership, fetch and encode stages, and emits a single
// observability event to both the active span and the structured log.
type snapshotRequestMetrics struct {
	logger *log.Logger
	span   trace.Span
	start  time.Time

	authDuration   time.Duration
	gateDuration   time.Duration
	fetchDuration  time.Duration
	encodeDuration time.Duration
	columnsCount   int
	tasksCount     int
	errorStage     string
}

func newSnapshotRequestMetrics(ctx context.Context, logger *log.Logger) (*snapshotRequestMetrics, context.Context) {
	tracer := otel.Tracer("teamboard-api")
	spanCtx, span := tracer.Start(ctx, snapshotSpanName)
	return &snapshotRequestMetrics{
		logger: logger,
		span:   span,
		start:  time.Now(),
	}, spanCtx
}

func (m *snapshotRequestMetrics) ObserveAuth(d time.Duration) {
	if d > 0 {
		m.authDuration = d
	}
}

func (m *snapshotRequestMetrics) ObserveGate(d time.Duration) {
	if d > 0 {
		m.gateDuration = d
	}
}

func (m *snapshotRequestMetrics) ObserveFetch(d time.Duration) {
	if d > 0 {
		m.fetchDuration = d
	}
}

func (m *snapshotRequestMetrics) ObserveEncode(d time.Duration) {
	if d > 0 {
		m.encodeDuration = d
	}
}

func (m *snapshotRequestMetrics) SetCounts(columns, tasks int) {
	if columns >= 0 {
		m.columnsCount = columns
	}
	if tasks >= 0 {
		m.tasksCount = tasks
	}
}

func (m *snapshotRequestMetrics) SetErrorStage(stage string) {
	if stage != "" {
		m.errorStage = stage
	}
}

// Log closes the span and emits the observability event. It must be called
// exactly once per request.
func (m *snapshotRequestMetrics) Log(status int, err error) {
	if m == nil {
		return
	}

	totalMs := durationToMillis(time.Since(m.start))
	severityText, severityNumber := severityForStatus(status, err)

	attrs := []attribute.KeyValue{
		attribute.String("http.route", snapshotRoute),
		attribute.Int("http.status_code", status),
		attribute.Float64("teamboard.snapshot.total_ms", totalMs),
		attribute.Int("teamboard.snapshot.columns", m.columnsCount),
		attribute.Int("teamboard.snapshot.tasks", m.tasksCount),
	}
	if m.authDuration > 0 {
		attrs = append(attrs, attribute.Float64("teamboard.snapshot.auth_ms", durationToMillis(m.authDuration)))
	}
	if m.gateDuration > 0 {
		attrs = append(attrs, attribute.Float64("teamboard.snapshot.gate_ms", durationToMillis(m.gateDuration)))
	}
	if m.fetchDuration > 0 {
		attrs = append(attrs, attribute.Float64("teamboard.snapshot.fetch_ms", durationToMillis(m.fetchDuration)))
	}
	if m.encodeDuration > 0 {
		attrs = append(attrs, attribute.Float64("teamboard.snapshot.encode_ms", durationToMillis(m.encodeDuration)))
	}
	if m.errorStage != "" {
		attrs = append(attrs, attribute.String("teamboard.snapshot.error_stage", m.errorStage))
	}
	if err != nil {
		attrs = append(attrs, attribute.String("error.message", err.Error()))
	}

	if m.span != nil {
		m.span.SetAttributes(attrs...)
		eventAttrs := append([]attribute.KeyValue{
			attribute.String("event.name", snapshotEventName),
			attribute.String("event.domain", snapshotEventDomain),
			attribute.String("severity_text", severityText),
			attribute.Int("severity_number", severityNumber),
		}, attrs...)
		m.span.AddEvent("observability.event", trace.WithAttributes(eventAttrs...))
		if err != nil || status >= 500 {
			desc := "request failed"
			if err != nil {
				desc = err.Error()
			}
			m.span.SetStatus(codes.Error, desc)
		} else {
			m.span.SetStatus(codes.Ok, "")
		}
		m.span.End()
	}

	if m.logger == nil {
		return
	}
	attributes := make(map[string]any, len(attrs))
	for _, kv := range attrs {
		attributes[string(kv.Key)] = kv.Value.AsInterface()
	}
	fields := log.Fields{
		"event.name":      snapshotEventName,
		"event.domain":    snapshotEventDomain,
		"attributes":      attributes,
		"severity_text":   severityText,
		"severity_number": severityNumber,
	}
	if m.span != nil {
		if sc := m.span.SpanContext(); sc.HasTraceID() {
			fields["trace_id"] = sc.TraceID().String()
		}
	}
	m.logger.WithFields(fields).Info("observability.event")
}

func severityForStatus(status int, err error) (string, int) {
	switch {
	case err != nil || status >= 500:
		return "ERROR", 17
	case status >= 400:
		return "WARN", 13
	default:
		return "INFO", 9
	}
}

func durationToMillis(d time.Duration) float64 {
	if d <= 0 {
		return 0
	}
	return float64(d) / float64(time.Millisecond)
}
