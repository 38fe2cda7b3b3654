package logger

// Fields is an alias for map[string]interface{} for convenience.
type Fields map[string]interface{}

// Tracing fields, carried in the context down the call chain.
const (
	FieldService     = "service"
	FieldRequestID   = "request_id"
	FieldRunID       = "run_id"
	FieldComponent   = "component"
	FieldSource      = "source"
	FieldEventID     = "event_id"
	FieldFingerprint = "fingerprint"
	FieldQueueID     = "queue_id"
	FieldUserID      = "user_id"
)

// Metric fields, set per line.
const (
	FieldDurationMs = "duration_ms"
	FieldCount      = "count"
	FieldSize       = "size"
	FieldStatus     = "status"
)
