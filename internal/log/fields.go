package log

// Common field names for structured logging
const (
	FieldComponent     = "component"
	FieldRequestID     = "request_id"
	FieldClientIP      = "client_ip"
	FieldMethod        = "method"
	FieldPath          = "path"
	FieldQuery         = "query"
	FieldStatusCode    = "status_code"
	FieldDuration      = "duration_ms"
	FieldUserAgent     = "user_agent"
	FieldSuccess       = "success"
	FieldError         = "error"
	FieldErrorType     = "error_type"
	FieldOperation     = "operation"
	FieldDate          = "date"
	FieldCount         = "count"
	FieldTodayCount    = "today_count"
	FieldAverage       = "average"
	FieldDays          = "days"
	FieldPersisted     = "persisted"
	FieldStorageKey    = "storage_key"
	FieldEventID       = "event_id"
)

// Components defines standard component names
const (
	ComponentApp     = "app"
	ComponentHTTP    = "http"
	ComponentTally   = "tally"
	ComponentStorage = "storage"
	ComponentAMQP    = "amqp"
	ComponentWorker  = "worker"
	ComponentBackend = "backend"
)

// Operations defines standard operation names
const (
	OpLoad      = "load"
	OpIncrement = "increment"
	OpUpsert    = "upsert"
	OpDelete    = "delete"
	OpRender    = "render"
)

// ErrorTypes defines standard error type categories
const (
	ErrorTypeValidation    = "validation_error"
	ErrorTypeStorage       = "storage_error"
	ErrorTypeCorruptState  = "corrupt_state"
	ErrorTypeNetwork       = "network_error"
	ErrorTypeInternal      = "internal_error"
)

// Fields is an ordered list of key/value pairs for one log record.
type Fields []any

func NewFields() Fields {
	return Fields{}
}

// With appends one key/value pair.
func (f Fields) With(key string, value any) Fields {
	return append(f, key, value)
}

func (f Fields) WithRequestID(requestID string) Fields {
	if requestID == "" {
		return f
	}
	return f.With(FieldRequestID, requestID)
}

// WithError adds the error text; a nil error adds nothing.
func (f Fields) WithError(err error) Fields {
	if err == nil {
		return f
	}
	return f.With(FieldError, err.Error())
}

func (f Fields) WithOperation(op string) Fields {
	return f.With(FieldOperation, op)
}

// WithDay adds the date and count of the entry an operation touched.
func (f Fields) WithDay(date string, count float64) Fields {
	return f.With(FieldDate, date).With(FieldCount, count)
}

// WithStats adds the derived statistics after a change.
func (f Fields) WithStats(todayCount, average float64, days int) Fields {
	return f.With(FieldTodayCount, todayCount).With(FieldAverage, average).With(FieldDays, days)
}
