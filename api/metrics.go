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
	tracerName       = "lockd-api"
	tasksSpanName    = "api.tasks.fetch"
	tasksEventName   = "tasks.fetch"
	tasksEventDomain = "lockd"
	tasksRoute       = "/api/tasks"
)

// taskRequestMetrics collects per-request timings for the tasks read path and
// emits them both as a structured log entry and as a span event, so the same
// observation is visible in logs and traces.
type taskRequestMetrics struct {
	logger         *log.Logger
	span           trace.Span
	start          time.Time
	authDuration   time.Duration
	fetchDuration  time.Duration
	encodeDuration time.Duration
	tasksReturned  int
	cacheServed    bool
	errorStage     string
}

func newTaskRequestMetrics(ctx context.Context, logger *log.Logger) (*taskRequestMetrics, context.Context) {
	spanCtx, span := otel.Tracer(tracerName).Start(ctx, tasksSpanName)
	return &taskRequestMetrics{logger: logger, span: span, start: time.Now()}, spanCtx
}

func (m *taskRequestMetrics) ObserveAuth(duration time.Duration) {
	if duration > 0 {
		m.authDuration = duration
	}
}

func (m *taskRequestMetrics) ObserveFetch(duration time.Duration) {
	if duration > 0 {
		m.fetchDuration = duration
	}
}

func (m *taskRequestMetrics) ObserveEncode(duration time.Duration) {
	if duration > 0 {
		m.encodeDuration = duration
	}
}

func (m *taskRequestMetrics) SetTasksReturned(count int) {
	if count < 0 {
		count = 0
	}
	m.tasksReturned = count
}

func (m *taskRequestMetrics) SetCacheServed(served bool) {
	m.cacheServed = served
}

func (m *taskRequestMetrics) SetErrorStage(stage string) {
	if stage != "" {
		m.errorStage = stage
	}
}

// Log finishes the span and writes the observability event. It must be called
// exactly once per request.
func (m *taskRequestMetrics) Log(status int, err error) {
	if m == nil {
		return
	}

	total := time.Since(m.start)
	severityText, severityNumber := severityForStatus(status, err)

	attrs := []attribute.KeyValue{
		attribute.String("http.route", tasksRoute),
		attribute.Int("http.status_code", status),
		attribute.Float64("lockd.tasks.total_ms", durationToMillis(total)),
		attribute.Int("lockd.tasks.tasks_returned", m.tasksReturned),
		attribute.Bool("lockd.tasks.cache_served", m.cacheServed),
	}
	if m.authDuration > 0 {
		attrs = append(attrs, attribute.Float64("lockd.tasks.auth_ms", durationToMillis(m.authDuration)))
	}
	if m.fetchDuration > 0 {
		attrs = append(attrs, attribute.Float64("lockd.tasks.fetch_ms", durationToMillis(m.fetchDuration)))
	}
	if m.encodeDuration > 0 {
		attrs = append(attrs, attribute.Float64("lockd.tasks.encode_ms", durationToMillis(m.encodeDuration)))
	}
	if m.errorStage != "" {
		attrs = append(attrs, attribute.String("lockd.tasks.error_stage", m.errorStage))
	}

	eventAttrs := make([]attribute.KeyValue, 0, len(attrs)+4)
	eventAttrs = append(eventAttrs,
		attribute.String("event.name", tasksEventName),
		attribute.String("event.domain", tasksEventDomain),
		attribute.String("severity_text", severityText),
	)
	if err != nil {
		eventAttrs = append(eventAttrs, attribute.String("error.message", err.Error()))
	}
	eventAttrs = append(eventAttrs, attrs...)

	var traceID string
	if m.span != nil {
		m.span.SetAttributes(attrs...)
		m.span.AddEvent("observability.event", trace.WithAttributes(eventAttrs...))
		if err != nil || status >= 500 {
			description := "request failed"
			if err != nil {
				description = err.Error()
			}
			m.span.SetStatus(codes.Error, description)
		} else {
			m.span.SetStatus(codes.Ok, "")
		}
		if sc := m.span.SpanContext(); sc.HasTraceID() {
			traceID = sc.TraceID().String()
		}
		m.span.End()
	}

	if m.logger == nil {
		return
	}

	logAttrs := map[string]any{
		"http.route":                 tasksRoute,
		"http.status_code":           status,
		"lockd.tasks.total_ms":       durationToMillis(total),
		"lockd.tasks.tasks_returned": m.tasksReturned,
		"lockd.tasks.cache_served":   m.cacheServed,
	}
	if m.authDuration > 0 {
		logAttrs["lockd.tasks.auth_ms"] = durationToMillis(m.authDuration)
	}
	if m.fetchDuration > 0 {
		logAttrs["lockd.tasks.fetch_ms"] = durationToMillis(m.fetchDuration)
	}
	if m.encodeDuration > 0 {
		logAttrs["lockd.tasks.encode_ms"] = durationToMillis(m.encodeDuration)
	}
	if m.errorStage != "" {
		logAttrs["lockd.tasks.error_stage"] = m.errorStage
	}

	fields := log.Fields{
		"event.name":      tasksEventName,
		"event.domain":    tasksEventDomain,
		"attributes":      logAttrs,
		"severity_text":   severityText,
		"severity_number": severityNumber,
	}
	if err != nil {
		fields["error"] = err.Error()
	}
	if traceID != "" {
		fields["trace_id"] = traceID
	}

	entry := m.logger.WithFields(fields)
	switch {
	case severityText == "ERROR":
		entry.Error("observability.event")
	case severityText == "WARN":
		entry.Warn("observability.event")
	default:
		entry.Info("observability.event")
	}
}

// severityForStatus maps an HTTP outcome onto log severity text and the
// matching OpenTelemetry severity number.
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
