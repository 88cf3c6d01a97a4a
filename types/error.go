package types

import "fmt"

// ErrorCode represents a unified error code across the Librarian.
type ErrorCode string

// Ingestion error codes
const (
	ErrMalformedInput    ErrorCode = "MALFORMED_INPUT"    // bad source document: skip, log, continue batch
	ErrEmbeddingProvider ErrorCode = "EMBEDDING_PROVIDER" // embedding provider failure after retries
	ErrIndexCommit       ErrorCode = "INDEX_COMMIT"       // dual-store commit failure, prior version stays active
)

// Retrieval / answer error codes
const (
	ErrRetrievalTimeout     ErrorCode = "RETRIEVAL_TIMEOUT"     // per-source timeout, degraded to empty results
	ErrInsufficientEvidence ErrorCode = "INSUFFICIENT_EVIDENCE" // designed refusal outcome, not a failure
	ErrToolBudgetExceeded   ErrorCode = "TOOL_BUDGET_EXCEEDED"  // forces refusal
	ErrCancelled            ErrorCode = "CANCELLED"             // query aborted, no partial answer
)

// Upstream provider error codes (mapped from HTTP status)
const (
	ErrInvalidRequest    ErrorCode = "INVALID_REQUEST"
	ErrUnauthorized      ErrorCode = "UNAUTHORIZED"
	ErrForbidden         ErrorCode = "FORBIDDEN"
	ErrRateLimited       ErrorCode = "RATE_LIMITED"
	ErrUpstreamTimeout   ErrorCode = "UPSTREAM_TIMEOUT"
	ErrUpstreamError     ErrorCode = "UPSTREAM_ERROR"
	ErrInternalError     ErrorCode = "INTERNAL_ERROR"
	ErrStoreUnavailable  ErrorCode = "STORE_UNAVAILABLE"
	ErrInvalidTransition ErrorCode = "INVALID_TRANSITION"
	ErrProviderMismatch  ErrorCode = "PROVIDER_MISMATCH" // embedding response length != request length
	ErrConfigInvalid     ErrorCode = "CONFIG_INVALID"
)

// Error represents a structured error with code, message, and metadata.
type Error struct {
	Code       ErrorCode `json:"code"`
	Message    string    `json:"message"`
	HTTPStatus int       `json:"http_status,omitempty"`
	Retryable  bool      `json:"retryable"`
	Provider   string    `json:"provider,omitempty"`
	DocumentID string    `json:"document_id,omitempty"`
	Cause      error     `json:"-"`
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// NewError creates a new Error with the given code and message.
func NewError(code ErrorCode, message string) *Error {
	return &Error{Code: code, Message: message}
}

// WithCause adds a cause to the error.
func (e *Error) WithCause(cause error) *Error {
	e.Cause = cause
	return e
}

// WithHTTPStatus sets the HTTP status code.
func (e *Error) WithHTTPStatus(status int) *Error {
	e.HTTPStatus = status
	return e
}

// WithRetryable marks the error as retryable.
func (e *Error) WithRetryable(retryable bool) *Error {
	e.Retryable = retryable
	return e
}

// WithProvider sets the provider name.
func (e *Error) WithProvider(provider string) *Error {
	e.Provider = provider
	return e
}

// WithDocumentID tags the error with the document being processed.
func (e *Error) WithDocumentID(id string) *Error {
	e.DocumentID = id
	return e
}

// IsRetryable checks if an error is retryable.
func IsRetryable(err error) bool {
	if e, ok := err.(*Error); ok {
		return e.Retryable
	}
	return false
}

// GetErrorCode extracts the error code from an error.
func GetErrorCode(err error) ErrorCode {
	if e, ok := err.(*Error); ok {
		return e.Code
	}
	return ""
}

// IsCode reports whether err carries the given code.
func IsCode(err error, code ErrorCode) bool {
	return GetErrorCode(err) == code
}
