package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldRequestID = "request_id"
	FieldUCR       = "ucr"
	FieldAlarmID   = "alarm_id"
	FieldNewsID    = "news_id"
	FieldStatusID  = "status_id"

	// Process fields
	FieldEvent     = "event"
	FieldComponent = "component"

	// Path / URL fields
	FieldPath    = "path"
	FieldBaseURL = "base_url"
)
