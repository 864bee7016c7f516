package log

import "context"

// StructuredLogger writes the few records whose shape is fixed: committed
// tally changes and request failures.
type StructuredLogger struct {
	logger *Logger
}

func NewStructuredLogger(logger *Logger) *StructuredLogger {
	return &StructuredLogger{logger: logger}
}

// LogTallyChange records a committed mutation. A non-nil writeErr means the
// change is held in memory only and is logged at Error.
func (sl *StructuredLogger) LogTallyChange(ctx context.Context, op, date string, count, todayCount, average float64, days int, writeErr error) {
	fields := NewFields().
		WithOperation(op).
		WithDay(date, count).
		WithStats(todayCount, average, days).
		With(FieldPersisted, writeErr == nil)

	l := sl.logger.WithComponent(ComponentTally)
	if writeErr != nil {
		fields = fields.With(FieldErrorType, ErrorTypeStorage).WithError(writeErr)
		l.ErrorContext(ctx, "Tally change applied but not persisted", fields...)
		return
	}
	l.InfoContext(ctx, "Tally change committed", fields...)
}

// LogError records err under component. Extra fields follow the standard ones.
func (sl *StructuredLogger) LogError(ctx context.Context, msg string, err error, component, operation string, extra Fields) {
	fields := NewFields().WithOperation(operation).WithError(err)
	fields = append(fields, extra...)
	sl.logger.WithComponent(component).ErrorContext(ctx, msg, fields...)
}
