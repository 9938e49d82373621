package model

// ErrorResponse is the error envelope of the request/response API.
type ErrorResponse struct {
	Error ErrorDetail `json:"error"`
}

// ErrorDetail contains error details.
type ErrorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Error codes returned by the relay.
const (
	CodeValidation     = "VALIDATION_ERROR"
	CodeUnauthorized   = "UNAUTHORIZED"
	CodeRateLimited    = "RATE_LIMITED"
	CodeInternal       = "INTERNAL_ERROR"
	CodeBadFrame       = "BAD_FRAME"
	CodeUnknownEvent   = "UNKNOWN_EVENT"
	CodeNotInWorkspace = "NOT_IN_WORKSPACE"
)
