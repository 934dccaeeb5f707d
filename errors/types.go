// Package errors classifies AWS dependency failures encountered while
// loading policy registries (SSM) and persisting the audit chain
// (DynamoDB), pairing each with an actionable operator suggestion. It
// is deliberately narrow: these are the two AWS-backed seams in the
// bridge, and every code here traces to a real call site in policy or
// audit. It does not attempt to model the bridge's own request-level
// failure taxonomy — see spec.md's ERROR HANDLING DESIGN and
// bridge/handlers.go's errorCode for that.
package errors

// SentinelError provides additional context for error handling.
// It wraps underlying errors with error codes and actionable suggestions.
type SentinelError interface {
	error
	Unwrap() error              // Original error
	Code() string               // Error code (e.g., "SSM_ACCESS_DENIED")
	Suggestion() string         // Actionable fix suggestion
	Context() map[string]string // Additional context (parameter, table, etc.)
}

// SSM error codes, surfaced by policy.SSMLoader when fetching a tool
// profile registry.
const (
	ErrCodeSSMAccessDenied      = "SSM_ACCESS_DENIED"
	ErrCodeSSMParameterNotFound = "SSM_PARAMETER_NOT_FOUND"
	ErrCodeSSMKMSAccessDenied   = "SSM_KMS_ACCESS_DENIED"
	ErrCodeSSMThrottled         = "SSM_THROTTLED"
	ErrCodeSSMInvalidParameter  = "SSM_INVALID_PARAMETER"
)

// DynamoDB error codes, surfaced by audit.DynamoDBStore when appending
// to or querying the audit chain table.
const (
	ErrCodeDynamoDBAccessDenied    = "DYNAMODB_ACCESS_DENIED"
	ErrCodeDynamoDBTableNotFound   = "DYNAMODB_TABLE_NOT_FOUND"
	ErrCodeDynamoDBThrottled       = "DYNAMODB_THROTTLED"
	ErrCodeDynamoDBConditionFailed = "DYNAMODB_CONDITION_FAILED"
)

// sentinelError implements the SentinelError interface.
type sentinelError struct {
	code       string
	message    string
	suggestion string
	context    map[string]string
	cause      error
}

// Error implements the error interface.
func (e *sentinelError) Error() string {
	return e.message
}

// Unwrap returns the underlying cause error.
func (e *sentinelError) Unwrap() error {
	return e.cause
}

// Code returns the error code.
func (e *sentinelError) Code() string {
	return e.code
}

// Suggestion returns the actionable fix suggestion.
func (e *sentinelError) Suggestion() string {
	return e.suggestion
}

// Context returns additional context about the error.
func (e *sentinelError) Context() map[string]string {
	return e.context
}

// New creates a new SentinelError with the given code, message, suggestion, and cause.
func New(code, message, suggestion string, cause error) SentinelError {
	return &sentinelError{
		code:       code,
		message:    message,
		suggestion: suggestion,
		context:    make(map[string]string),
		cause:      cause,
	}
}

// WithContext adds context to an error and returns a new SentinelError.
// The original error is not modified.
func WithContext(err SentinelError, key, value string) SentinelError {
	existingCtx := err.Context()
	newCtx := make(map[string]string, len(existingCtx)+1)
	for k, v := range existingCtx {
		newCtx[k] = v
	}
	newCtx[key] = value

	return &sentinelError{
		code:       err.Code(),
		message:    err.Error(),
		suggestion: err.Suggestion(),
		context:    newCtx,
		cause:      err.Unwrap(),
	}
}

// IsSentinelError checks if err is a SentinelError and returns it.
// If err is nil or not a SentinelError, returns (nil, false).
func IsSentinelError(err error) (SentinelError, bool) {
	if err == nil {
		return nil, false
	}
	if se, ok := err.(SentinelError); ok {
		return se, true
	}
	return nil, false
}

// GetCode extracts the error code from an error.
// Returns empty string if err is not a SentinelError.
func GetCode(err error) string {
	if se, ok := IsSentinelError(err); ok {
		return se.Code()
	}
	return ""
}
