package types

// API error codes, <area>_<http status>
const (
	CodeStateNotFound   = "STATE_404"
	CodeStateRead       = "STATE_500"
	CodePollUnavailable = "POLL_503"
	CodePollFailed      = "POLL_502"
)

type ErrorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

type ErrorResponse struct {
	Error ErrorBody `json:"error"`
}

// NewErrorResponse builds a consistent API error payload.
// details can be string, map, struct, etc.
func NewErrorResponse(code, message string, details any) ErrorResponse {
	return ErrorResponse{
		Error: ErrorBody{
			Code:    code,
			Message: message,
			Details: details,
		},
	}
}

// NewErrorBody is the error part alone, for responses carrying more fields
func NewErrorBody(code, message string, details any) ErrorBody {
	return NewErrorResponse(code, message, details).Error
}
