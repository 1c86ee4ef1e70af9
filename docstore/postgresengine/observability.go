package postgresengine

import (
	"context"
	"errors"
	"math"
	"strconv"
	"time"

	"github.com/ceramicstudio/js-glaze-sub000/docstore"
)

const (
	metricOperationDuration    = "docstore_operation_duration_seconds"
	metricDatabaseErrors       = "docstore_database_errors_total"
	metricConcurrencyConflicts = "docstore_concurrency_conflicts_total"
	spanNamePrefix             = "docstore."
	operationLoad              = "load"
	operationSave              = "save"
	operationDelete            = "delete"
	operationCreateSchema      = "create_schema"
	statusSuccess              = "success"
	statusError                = "error"
	statusNotFound             = "not_found"
	statusConflict             = "conflict"
	errorTypeBuildQuery        = "build_query"
	errorTypeDatabaseQuery     = "database_query"
	errorTypeDatabaseExec      = "database_exec"
	errorTypeRowScan           = "row_scan"
	spanAttrOperation          = "operation"
	spanAttrDocument           = "document"
	spanAttrVersion            = "version"
	spanAttrExpectedVersion    = "expected_version"
	spanAttrErrorType          = "error_type"
	spanAttrConsistency        = "consistency"
	labelOperation             = "operation"
	labelStatus                = "status"
	labelErrorType             = "error_type"
	logMsgDBExecFailed         = "database execution failed"
	logMsgRowsAffectedFailed   = "failed to get rows affected count"
	logMsgCloseRowsFailed      = "failed to close database rows"
	logMsgSQLExecuted          = "executed sql for: "
	logMsgOperation            = "docstore operation: "
	logMsgOperationFailed      = "docstore operation failed"
	logMsgConcurrencyConflict  = "concurrency conflict detected"
	logAttrError               = "error"
	logAttrQuery               = "query"
	logAttrOperation           = "operation"
	logAttrDocument            = "document"
	logAttrVersion             = "version"
	logAttrExpectedVersion     = "expected_version"
	logAttrDurationMS          = "duration_ms"
)

// operationObserver encapsulates tracing, metrics, and logging for one store operation.
type operationObserver struct {
	s         *DocumentStore
	ctx       context.Context
	operation string
	document  string
	span      SpanContext
	start     time.Time
}

func (s *DocumentStore) startOperation(ctx context.Context, operation, document string) (*operationObserver, context.Context) {
	o := &operationObserver{
		s:         s,
		ctx:       ctx,
		operation: operation,
		document:  document,
		start:     time.Now(),
	}

	if s.tracingCollector != nil {
		o.ctx, o.span = s.tracingCollector.StartSpan(ctx, spanNamePrefix+operation, map[string]string{
			spanAttrOperation:   operation,
			spanAttrDocument:    document,
			spanAttrConsistency: docstore.GetConsistencyLevel(ctx).String(),
		})
	}

	return o, o.ctx
}

func (o *operationObserver) finishSuccess(version uint64) {
	duration := time.Since(o.start)
	o.s.recordDuration(o.ctx, duration, o.operation, statusSuccess)
	o.s.logInfo(o.ctx, logMsgOperation+o.operation,
		logAttrDocument, o.document,
		logAttrVersion, version,
		logAttrDurationMS, toMilliseconds(duration))

	o.finishSpan(statusSuccess, map[string]string{spanAttrVersion: strconv.FormatUint(version, 10)})
}

func (o *operationObserver) finishNotFound() {
	o.s.recordDuration(o.ctx, time.Since(o.start), o.operation, statusNotFound)
	o.finishSpan(statusNotFound, map[string]string{})
}

func (o *operationObserver) finishConflict(expectedVersion uint64) {
	o.s.recordDuration(o.ctx, time.Since(o.start), o.operation, statusConflict)
	o.s.incrementCounter(o.ctx, metricConcurrencyConflicts, map[string]string{labelOperation: o.operation})
	o.s.logInfo(o.ctx, logMsgConcurrencyConflict,
		logAttrDocument, o.document,
		logAttrExpectedVersion, expectedVersion)

	o.finishSpan(statusConflict, map[string]string{spanAttrExpectedVersion: strconv.FormatUint(expectedVersion, 10)})
}

func (o *operationObserver) finishError(err error, errorType string) {
	o.s.recordDuration(o.ctx, time.Since(o.start), o.operation, statusError)
	o.s.incrementCounter(o.ctx, metricDatabaseErrors, map[string]string{
		labelOperation: o.operation,
		labelStatus:    statusError,
		labelErrorType: classifyError(err, errorType),
	})
	o.s.logError(o.ctx, logMsgOperationFailed, err, logAttrOperation, o.operation, logAttrDocument, o.document)

	o.finishSpan(statusError, map[string]string{spanAttrErrorType: classifyError(err, errorType)})
}

func (o *operationObserver) finishSpan(status string, attrs map[string]string) {
	if o.span == nil {
		return
	}

	o.span.SetStatus(status)
	o.s.tracingCollector.FinishSpan(o.span, status, attrs)
}

// classifyError prefers context errors over the operation-specific error type.
func classifyError(err error, errorType string) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	default:
		return errorType
	}
}

func (s *DocumentStore) recordDuration(ctx context.Context, d time.Duration, operation, status string) {
	if s.metricsCollector == nil {
		return
	}

	labels := map[string]string{labelOperation: operation, labelStatus: status}

	if contextual, ok := s.metricsCollector.(ContextualMetricsCollector); ok {
		contextual.RecordDurationContext(ctx, metricOperationDuration, d, labels)
		return
	}

	s.metricsCollector.RecordDuration(metricOperationDuration, d, labels)
}

func (s *DocumentStore) incrementCounter(ctx context.Context, metric string, labels map[string]string) {
	if s.metricsCollector == nil {
		return
	}

	if contextual, ok := s.metricsCollector.(ContextualMetricsCollector); ok {
		contextual.IncrementCounterContext(ctx, metric, labels)
		return
	}

	s.metricsCollector.IncrementCounter(metric, labels)
}

// logQueryWithDuration logs SQL queries with execution time at debug level.
func (s *DocumentStore) logQueryWithDuration(ctx context.Context, sqlQuery, action string, duration time.Duration) {
	args := []any{logAttrDurationMS, toMilliseconds(duration), logAttrQuery, sqlQuery}

	switch {
	case s.contextualLogger != nil:
		s.contextualLogger.DebugContext(ctx, logMsgSQLExecuted+action, args...)
	case s.logger != nil:
		s.logger.Debug(logMsgSQLExecuted+action, args...)
	}
}

func (s *DocumentStore) logInfo(ctx context.Context, msg string, args ...any) {
	switch {
	case s.contextualLogger != nil:
		s.contextualLogger.InfoContext(ctx, msg, args...)
	case s.logger != nil:
		s.logger.Info(msg, args...)
	}
}

func (s *DocumentStore) logWarn(ctx context.Context, msg string, args ...any) {
	switch {
	case s.contextualLogger != nil:
		s.contextualLogger.WarnContext(ctx, msg, args...)
	case s.logger != nil:
		s.logger.Warn(msg, args...)
	}
}

func (s *DocumentStore) logError(ctx context.Context, msg string, err error, args ...any) {
	args = append([]any{logAttrError, err.Error()}, args...)

	switch {
	case s.contextualLogger != nil:
		s.contextualLogger.ErrorContext(ctx, msg, args...)
	case s.logger != nil:
		s.logger.Error(msg, args...)
	}
}

// toMilliseconds converts a time.Duration to float64 milliseconds with 3 decimal places.
func toMilliseconds(d time.Duration) float64 {
	return math.Round(float64(d.Nanoseconds())/1e6*1000) / 1000
}
