package models

// ErrorResponse is sent to a single connection as the data of an error frame.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (e *ErrorResponse) Error() string {
	return e.Code + ": " + e.Message
}

// Common error codes
const (
	ErrCodeInvalidFrame   = "invalid_frame"
	ErrCodeInvalidPayload = "invalid_payload"
	ErrCodeUnknownType    = "unknown_type"
	ErrCodeNotInRoom      = "not_in_room"
	ErrCodeMissingRoom    = "missing_room_id"
	ErrCodeMissingUser    = "missing_username"
	ErrCodeShuttingDown   = "shutting_down"
)
