// Package errors provides standardized error handling for notification jobs.
package errors

import (
	"fmt"
	"strings"
	"time"
)

// ErrorCode represents standardized internal error codes.
type ErrorCode string

const (
	ErrCodeInputParsingFailed    ErrorCode = "INPUT_PARSING_FAILED"
	ErrCodeEventValidationFailed ErrorCode = "EVENT_VALIDATION_FAILED"
	ErrCodeUnknownEventType      ErrorCode = "UNKNOWN_EVENT_TYPE"
	ErrCodeRecipientLookupFailed ErrorCode = "RECIPIENT_LOOKUP_FAILED"
	ErrCodeTransportOutage       ErrorCode = "TRANSPORT_OUTAGE"
	ErrCodeInternal              ErrorCode = "INTERNAL_ERROR"
)

// StandardError represents a structured application error.
type StandardError struct {
	Code      ErrorCode              `json:"code"`
	Message   string                 `json:"message"`
	Details   string                 `json:"details,omitempty"`
	Retryable bool                   `json:"retryable"`
	Metadata  map[string]interface{} `json:"metadata,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	cause     error
}

func (e *StandardError) Error() string {
	return fmt.Sprintf("StandardError[%s]: %s", e.Code, e.Message)
}

// Unwrap exposes the underlying cause so errors.Is keeps working on sentinels.
func (e *StandardError) Unwrap() error {
	return e.cause
}

// BPMNError represents an error that can be thrown to the workflow engine.
type BPMNError struct {
	Code           string                 `json:"code"`
	Message        string                 `json:"message"`
	Details        string                 `json:"details,omitempty"`
	Retryable      bool                   `json:"retryable"`
	Retries        int                    `json:"retries"`
	ErrorVariables map[string]interface{} `json:"errorVariables,omitempty"`
}

func (e *BPMNError) Error() string {
	return fmt.Sprintf("BPMNError[%s]: %s", e.Code, e.Message)
}

// ToErrorVariables returns a map suitable for setting job fail variables.
func (e *BPMNError) ToErrorVariables() map[string]interface{} {
	vars := map[string]interface{}{
		"errorCode":    e.Code,
		"errorMessage": e.Message,
		"errorDetails": e.Details,
		"retryable":    e.Retryable,
	}
	for k, v := range e.ErrorVariables {
		vars[k] = v
	}
	return vars
}

func newError(code ErrorCode, message string, cause error, retryable bool) *StandardError {
	details := ""
	if cause != nil {
		details = cause.Error()
	}
	return &StandardError{
		Code:      code,
		Message:   message,
		Details:   details,
		Retryable: retryable,
		Timestamp: time.Now().UTC(),
		cause:     cause,
	}
}

func NewInputParsingFailedError(err error) *StandardError {
	return newError(ErrCodeInputParsingFailed, "Failed to parse job variables", err, false)
}

// NewEventValidationFailedError creates a non-retryable error for events that fail their schema.
func NewEventValidationFailedError(err error) *StandardError {
	return newError(ErrCodeEventValidationFailed, "Event failed validation", err, false)
}

func NewUnknownEventTypeError(err error) *StandardError {
	return newError(ErrCodeUnknownEventType, "Unsupported event type", err, false)
}

// NewRecipientLookupFailedError creates a retryable error for record store failures.
func NewRecipientLookupFailedError(err error) *StandardError {
	return newError(ErrCodeRecipientLookupFailed, "Recipient lookup failed", err, true)
}

// NewTransportOutageError creates a retryable error for a wholesale push transport failure.
func NewTransportOutageError(err error) *StandardError {
	return newError(ErrCodeTransportOutage, "Push transport unavailable", err, true)
}

// NewInternalError wraps an error that carries no notification code.
func NewInternalError(err error) *StandardError {
	return newError(ErrCodeInternal, "Unexpected error", err, false)
}

// BPMNErrorMapping maps internal error codes to BPMN error codes.
var BPMNErrorMapping = map[ErrorCode]string{
	ErrCodeInputParsingFailed:    "INPUT_PARSING_FAILED",
	ErrCodeEventValidationFailed: "EVENT_VALIDATION_FAILED",
	ErrCodeUnknownEventType:      "UNKNOWN_EVENT_TYPE",
	ErrCodeRecipientLookupFailed: "RECIPIENT_LOOKUP_FAILED",
	ErrCodeTransportOutage:       "TRANSPORT_OUTAGE",
}

// GetRetryCount returns the recommended job retry count for a code.
func GetRetryCount(code ErrorCode) int {
	switch code {
	case ErrCodeRecipientLookupFailed, ErrCodeTransportOutage:
		return 3
	default:
		return 0
	}
}

// ConvertToBPMNError converts a StandardError to a BPMNError.
func ConvertToBPMNError(stdErr *StandardError) *BPMNError {
	bpmnCode, exists := BPMNErrorMapping[stdErr.Code]
	if !exists {
		bpmnCode = string(stdErr.Code)
	}

	retries := GetRetryCount(stdErr.Code)
	if !stdErr.Retryable {
		retries = 0
	}

	return &BPMNError{
		Code:      bpmnCode,
		Message:   stdErr.Message,
		Details:   stdErr.Details,
		Retryable: stdErr.Retryable,
		Retries:   retries,
		ErrorVariables: map[string]interface{}{
			"originalErrorCode": string(stdErr.Code),
			"timestamp":         stdErr.Timestamp.Format(time.RFC3339),
		},
	}
}

func IsRetryableErrorCode(code ErrorCode) bool {
	return GetRetryCount(code) > 0
}

// GetErrorCategory returns the category of the error code.
func GetErrorCategory(code ErrorCode) string {
	codeStr := string(code)
	switch {
	case strings.Contains(codeStr, "TRANSPORT"):
		return "TRANSPORT"
	case strings.Contains(codeStr, "LOOKUP"):
		return "STORE"
	case strings.Contains(codeStr, "VALIDATION") || strings.Contains(codeStr, "PARSING") || strings.Contains(codeStr, "EVENT_TYPE"):
		return "VALIDATION"
	default:
		return "OTHER"
	}
}

// ExtractErrorCode returns the code of a StandardError, or UNKNOWN_ERROR.
func ExtractErrorCode(err error) string {
	if stdErr, ok := err.(*StandardError); ok {
		return string(stdErr.Code)
	}
	return "UNKNOWN_ERROR"
}
