package rag

import (
	"fmt"
)

// CodeQuotaExceeded is the error code the backend returns when the caller's
// plan has no chat quota left. It is handled as a distinct outcome, never as
// a generic failure.
const CodeQuotaExceeded = "plan.chat_quota_exceeded"

// APIError is a structured error declared by the backend.
type APIError struct {
	Code    string       `json:"code"`
	Message string       `json:"message,omitempty"`
	Detail  *ErrorDetail `json:"detail,omitempty"`
}

// ErrorDetail carries code-specific structured detail.
type ErrorDetail struct {
	Quota *QuotaDetail `json:"quota,omitempty"`
}

func (e *APIError) Error() string {
	if e.Message == "" {
		return e.Code
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

// errorEnvelope is the wire shape of a non-2xx backend response.
type errorEnvelope struct {
	Error *APIError `json:"error"`
}
