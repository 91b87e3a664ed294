package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldSessionID  = "session_id"
	FieldEmployeeID = "employee_id"
	FieldCameraID   = "camera_id"
	FieldCompanyID  = "company_id"
	FieldRequestID  = "request_id"

	// Process / pipeline fields
	FieldEvent     = "event"
	FieldComponent = "component"

	// Enrollment fields
	FieldAngle  = "angle"
	FieldStatus = "status"
	FieldStage  = "stage"

	// Stream fields
	FieldAttempt    = "attempt"
	FieldRetryCount = "retry_count"

	// State fields
	FieldOldState = "old_state"
	FieldNewState = "new_state"

	// Network fields
	FieldBaseURL = "base_url"
	FieldSeq     = "seq"
)
