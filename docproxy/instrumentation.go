package docproxy

import (
	"context"
	"errors"
	"math"
	"strconv"
	"time"

	"github.com/oklog/ulid/v2"
)

const (
	metricFetchDuration     = "docproxy_fetch_duration_seconds"
	metricMutationDuration  = "docproxy_mutation_duration_seconds"
	metricCycleDuration     = "docproxy_cycle_duration_seconds"
	metricMutationsTotal    = "docproxy_mutations_total"
	metricFetchErrors       = "docproxy_fetch_errors_total"
	metricMutationErrors    = "docproxy_mutation_errors_total"
	metricCycleMutations    = "docproxy_cycle_mutations"
	spanNameCycle           = "docproxy.cycle"
	spanNameGet             = "docproxy.get"
	statusSuccess           = "success"
	statusError             = "error"
	labelDocument           = "document"
	labelStatus             = "status"
	labelPhase              = "phase"
	phaseCycle              = "cycle"
	phaseGet                = "get"
	spanAttrCycleID         = "cycle_id"
	spanAttrMutationCount   = "mutation_count"
	spanAttrFailedMutations = "failed_mutations"
	spanAttrRejectedCount   = "rejected_count"
	spanAttrErrorType       = "error_type"
	logMsgFetchCompleted    = "document fetched"
	logMsgFetchFailed       = "fetching document failed"
	logMsgMutationApplied   = "mutation applied"
	logMsgMutationFailed    = "mutation failed"
	logMsgMutationPanicked  = "mutation panicked"
	logMsgCycleCompleted    = "drain cycle completed"
	logMsgCycleAborted      = "drain cycle aborted, all queued mutations rejected"
	logAttrDocument         = "document"
	logAttrCycleID          = "cycle_id"
	logAttrPhase            = "phase"
	logAttrDurationMS       = "duration_ms"
	logAttrMutationCount    = "mutation_count"
	logAttrFailedMutations  = "failed_mutations"
	logAttrRejectedCount    = "rejected_count"
	logAttrError            = "error"
)

// cycleObserver encapsulates logging, metrics, and tracing for one drain cycle.
type cycleObserver struct {
	s       *settings
	ctx     context.Context
	span    SpanContext
	cycleID string
	start   time.Time
	applied int
	failed  int
}

func (s *settings) startCycle(ctx context.Context) *cycleObserver {
	o := &cycleObserver{
		s:       s,
		ctx:     ctx,
		cycleID: ulid.Make().String(),
		start:   time.Now(),
	}

	if s.tracingCollector != nil {
		o.ctx, o.span = s.tracingCollector.StartSpan(ctx, spanNameCycle, map[string]string{
			labelDocument:   s.name,
			spanAttrCycleID: o.cycleID,
		})
	}

	return o
}

func (o *cycleObserver) recordFetch(duration time.Duration, err error) {
	o.s.recordDuration(o.ctx, metricFetchDuration, duration, phaseCycle, statusFor(err))

	if err != nil {
		o.s.incrementCounter(o.ctx, metricFetchErrors, phaseCycle, statusError)
		o.s.logError(o.ctx, logMsgFetchFailed, err, logAttrCycleID, o.cycleID, logAttrPhase, phaseCycle)

		return
	}

	o.s.logDebug(o.ctx, logMsgFetchCompleted,
		logAttrCycleID, o.cycleID,
		logAttrPhase, phaseCycle,
		logAttrDurationMS, toMilliseconds(duration))
}

func (o *cycleObserver) recordMutation(ctx context.Context, duration time.Duration, err error) {
	o.s.recordDuration(ctx, metricMutationDuration, duration, phaseCycle, statusFor(err))
	o.s.incrementCounter(ctx, metricMutationsTotal, phaseCycle, statusFor(err))

	if err == nil {
		o.applied++
		o.s.logDebug(ctx, logMsgMutationApplied, logAttrCycleID, o.cycleID, logAttrDurationMS, toMilliseconds(duration))

		return
	}

	o.failed++
	o.s.incrementCounter(ctx, metricMutationErrors, phaseCycle, statusError)

	msg := logMsgMutationFailed
	if errors.Is(err, ErrMutationPanicked) {
		msg = logMsgMutationPanicked
	}
	o.s.logWarn(ctx, msg, logAttrCycleID, o.cycleID, logAttrError, err.Error())
}

func (o *cycleObserver) finishSuccess() {
	duration := time.Since(o.start)
	count := o.applied + o.failed

	o.s.recordDuration(o.ctx, metricCycleDuration, duration, phaseCycle, statusSuccess)
	o.s.recordValue(o.ctx, metricCycleMutations, float64(count), phaseCycle, statusSuccess)
	o.s.logInfo(o.ctx, logMsgCycleCompleted,
		logAttrCycleID, o.cycleID,
		logAttrMutationCount, count,
		logAttrFailedMutations, o.failed,
		logAttrDurationMS, toMilliseconds(duration))

	if o.span != nil {
		o.span.SetStatus(statusSuccess)
		o.s.tracingCollector.FinishSpan(o.span, statusSuccess, map[string]string{
			spanAttrMutationCount:   strconv.Itoa(count),
			spanAttrFailedMutations: strconv.Itoa(o.failed),
		})
	}
}

func (o *cycleObserver) finishFetchFailed(err error, rejected int) {
	o.s.recordDuration(o.ctx, metricCycleDuration, time.Since(o.start), phaseCycle, statusError)
	o.s.logError(o.ctx, logMsgCycleAborted, err, logAttrCycleID, o.cycleID, logAttrRejectedCount, rejected)

	if o.span != nil {
		o.span.SetStatus(statusError)
		o.s.tracingCollector.FinishSpan(o.span, statusError, map[string]string{
			spanAttrErrorType:     errorType(err),
			spanAttrRejectedCount: strconv.Itoa(rejected),
		})
	}
}

// getObserver encapsulates logging, metrics, and tracing for a Get served while Idle.
type getObserver struct {
	s    *settings
	ctx  context.Context
	span SpanContext
}

func (s *settings) startGet(ctx context.Context) (*getObserver, context.Context) {
	o := &getObserver{s: s, ctx: ctx}

	if s.tracingCollector != nil {
		o.ctx, o.span = s.tracingCollector.StartSpan(ctx, spanNameGet, map[string]string{
			labelDocument: s.name,
		})
	}

	return o, o.ctx
}

func (o *getObserver) finish(duration time.Duration, err error) {
	status := statusFor(err)
	o.s.recordDuration(o.ctx, metricFetchDuration, duration, phaseGet, status)

	if err != nil {
		o.s.incrementCounter(o.ctx, metricFetchErrors, phaseGet, statusError)
		o.s.logError(o.ctx, logMsgFetchFailed, err, logAttrPhase, phaseGet)
	} else {
		o.s.logDebug(o.ctx, logMsgFetchCompleted, logAttrPhase, phaseGet, logAttrDurationMS, toMilliseconds(duration))
	}

	if o.span != nil {
		o.span.SetStatus(status)
		attrs := map[string]string{}
		if err != nil {
			attrs[spanAttrErrorType] = errorType(err)
		}
		o.s.tracingCollector.FinishSpan(o.span, status, attrs)
	}
}

func (s *settings) labels(phase, status string) map[string]string {
	return map[string]string{
		labelDocument: s.name,
		labelPhase:    phase,
		labelStatus:   status,
	}
}

func (s *settings) recordDuration(ctx context.Context, metric string, d time.Duration, phase, status string) {
	if s.metricsCollector == nil {
		return
	}

	if contextual, ok := s.metricsCollector.(ContextualMetricsCollector); ok {
		contextual.RecordDurationContext(ctx, metric, d, s.labels(phase, status))
		return
	}

	s.metricsCollector.RecordDuration(metric, d, s.labels(phase, status))
}

func (s *settings) incrementCounter(ctx context.Context, metric string, phase, status string) {
	if s.metricsCollector == nil {
		return
	}

	if contextual, ok := s.metricsCollector.(ContextualMetricsCollector); ok {
		contextual.IncrementCounterContext(ctx, metric, s.labels(phase, status))
		return
	}

	s.metricsCollector.IncrementCounter(metric, s.labels(phase, status))
}

func (s *settings) recordValue(ctx context.Context, metric string, value float64, phase, status string) {
	if s.metricsCollector == nil {
		return
	}

	if contextual, ok := s.metricsCollector.(ContextualMetricsCollector); ok {
		contextual.RecordValueContext(ctx, metric, value, s.labels(phase, status))
		return
	}

	s.metricsCollector.RecordValue(metric, value, s.labels(phase, status))
}

func (s *settings) logDebug(ctx context.Context, msg string, args ...any) {
	args = append([]any{logAttrDocument, s.name}, args...)

	switch {
	case s.contextualLogger != nil:
		s.contextualLogger.DebugContext(ctx, msg, args...)
	case s.logger != nil:
		s.logger.Debug(msg, args...)
	}
}

func (s *settings) logInfo(ctx context.Context, msg string, args ...any) {
	args = append([]any{logAttrDocument, s.name}, args...)

	switch {
	case s.contextualLogger != nil:
		s.contextualLogger.InfoContext(ctx, msg, args...)
	case s.logger != nil:
		s.logger.Info(msg, args...)
	}
}

func (s *settings) logWarn(ctx context.Context, msg string, args ...any) {
	args = append([]any{logAttrDocument, s.name}, args...)

	switch {
	case s.contextualLogger != nil:
		s.contextualLogger.WarnContext(ctx, msg, args...)
	case s.logger != nil:
		s.logger.Warn(msg, args...)
	}
}

func (s *settings) logError(ctx context.Context, msg string, err error, args ...any) {
	args = append([]any{logAttrDocument, s.name, logAttrError, err.Error()}, args...)

	switch {
	case s.contextualLogger != nil:
		s.contextualLogger.ErrorContext(ctx, msg, args...)
	case s.logger != nil:
		s.logger.Error(msg, args...)
	}
}

func statusFor(err error) string {
	if err != nil {
		return statusError
	}

	return statusSuccess
}

// errorType extracts a label-friendly classification of a fetch error.
func errorType(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, ErrFetcherPanicked):
		return "panic"
	default:
		return "fetch_failed"
	}
}

// toMilliseconds converts a time.Duration to float64 milliseconds with 3 decimal places.
func toMilliseconds(d time.Duration) float64 {
	return math.Round(float64(d.Nanoseconds())/1e6*1000) / 1000
}
