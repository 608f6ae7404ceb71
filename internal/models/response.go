package models

// uniform error payload
type ErrorResponse struct {
	Code    string                  `json:"code"`
	Message string                  `json:"message"`
	Details []ValidationErrorDetail `json:"details,omitempty"`
}

// implements the error interface so Validate() can return it directly
func (e *ErrorResponse) Error() string {
	return e.Message
}

// a single field error
type ValidationErrorDetail struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

func fieldError(code, field, reason string) *ErrorResponse {
	return &ErrorResponse{
		Code:    code,
		Message: reason,
		Details: []ValidationErrorDetail{{Field: field, Reason: reason}},
	}
}

type ViolationHistoryResponse struct {
	Count      int         `json:"count"`
	Violations []Violation `json:"violations"`
}
