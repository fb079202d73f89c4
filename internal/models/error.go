package models

// ErrorResponse represents an API error response
type ErrorResponse struct {
	Error   string            `json:"error"`
	Code    string            `json:"code"`
	Details map[string]string `json:"details,omitempty"`
}

// Error codes
const (
	ErrCodeInvalidRequest     = "INVALID_REQUEST"
	ErrCodeNotFound           = "NOT_FOUND"
	ErrCodeValidationFailed   = "VALIDATION_FAILED"
	ErrCodeUnauthorized       = "UNAUTHORIZED"
	ErrCodeForbidden          = "FORBIDDEN"
	ErrCodeInternalError      = "INTERNAL_ERROR"
	ErrCodeAgentPaused        = "AGENT_PAUSED"
	ErrCodeUnsafeContent      = "UNSAFE_CONTENT"
	ErrCodeExperimentNotFound = "EXPERIMENT_NOT_FOUND"
	ErrCodeRateLimited        = "RATE_LIMITED"
)
