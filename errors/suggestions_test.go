package errors

import (
	"errors"
	"strings"
	"testing"
)

func TestGetSuggestion(t *testing.T) {
	tests := []struct {
		code    string
		wantHas string
	}{
		{ErrCodeSSMAccessDenied, "ssm:GetParameter"},
		{ErrCodeSSMParameterNotFound, "does not exist"},
		{ErrCodeSSMKMSAccessDenied, "kms:Decrypt"},
		{ErrCodeSSMThrottled, "rate limit"},
		{ErrCodeDynamoDBAccessDenied, "dynamodb:PutItem"},
		{ErrCodeDynamoDBTableNotFound, "does not exist"},
		{ErrCodeDynamoDBConditionFailed, "conditional check"},
	}

	for _, tt := range tests {
		t.Run(tt.code, func(t *testing.T) {
			got := GetSuggestion(tt.code)
			if got == "" {
				t.Errorf("GetSuggestion(%q) = empty string", tt.code)
			}
			if !strings.Contains(strings.ToLower(got), strings.ToLower(tt.wantHas)) {
				t.Errorf("GetSuggestion(%q) = %q, want to contain %q", tt.code, got, tt.wantHas)
			}
		})
	}
}

func TestGetSuggestion_UnknownCode(t *testing.T) {
	got := GetSuggestion("UNKNOWN_CODE")
	if got != "" {
		t.Errorf("GetSuggestion(UNKNOWN_CODE) = %q, want empty string", got)
	}
}

func TestWrapSSMError_ParameterNotFound(t *testing.T) {
	err := errors.New("ParameterNotFound: parameter /sentinel/test not found")
	se := WrapSSMError(err, "/sentinel/test")

	if se.Code() != ErrCodeSSMParameterNotFound {
		t.Errorf("Code() = %q, want %q", se.Code(), ErrCodeSSMParameterNotFound)
	}
	if !strings.Contains(se.Error(), "/sentinel/test") {
		t.Errorf("Error() = %q, want to contain parameter name", se.Error())
	}
	if se.Context()["parameter"] != "/sentinel/test" {
		t.Errorf("Context()[\"parameter\"] = %q, want %q", se.Context()["parameter"], "/sentinel/test")
	}
	if se.Unwrap() != err {
		t.Errorf("Unwrap() = %v, want %v", se.Unwrap(), err)
	}
}

func TestWrapSSMError_AccessDenied(t *testing.T) {
	err := errors.New("AccessDeniedException: User is not authorized to perform ssm:GetParameter")
	se := WrapSSMError(err, "/sentinel/policies/default")

	if se.Code() != ErrCodeSSMAccessDenied {
		t.Errorf("Code() = %q, want %q", se.Code(), ErrCodeSSMAccessDenied)
	}
	if !strings.Contains(se.Suggestion(), "ssm:GetParameter") {
		t.Errorf("Suggestion() = %q, want to contain ssm:GetParameter", se.Suggestion())
	}
}

func TestWrapSSMError_KMSAccessDenied(t *testing.T) {
	err := errors.New("AccessDeniedException: User is not authorized to perform kms:Decrypt on the key")
	se := WrapSSMError(err, "/sentinel/encrypted")

	if se.Code() != ErrCodeSSMKMSAccessDenied {
		t.Errorf("Code() = %q, want %q", se.Code(), ErrCodeSSMKMSAccessDenied)
	}
	if !strings.Contains(se.Suggestion(), "kms:Decrypt") {
		t.Errorf("Suggestion() = %q, want to contain kms:Decrypt", se.Suggestion())
	}
}

func TestWrapSSMError_Throttled(t *testing.T) {
	err := errors.New("ThrottlingException: Rate exceeded")
	se := WrapSSMError(err, "/sentinel/test")

	if se.Code() != ErrCodeSSMThrottled {
		t.Errorf("Code() = %q, want %q", se.Code(), ErrCodeSSMThrottled)
	}
}

func TestWrapSSMError_ValidationError(t *testing.T) {
	err := errors.New("ValidationException: Invalid parameter name")
	se := WrapSSMError(err, "invalid//path")

	if se.Code() != ErrCodeSSMInvalidParameter {
		t.Errorf("Code() = %q, want %q", se.Code(), ErrCodeSSMInvalidParameter)
	}
}

func TestWrapSSMError_UnknownError(t *testing.T) {
	err := errors.New("some unknown SSM error")
	se := WrapSSMError(err, "/sentinel/test")

	// Should default to access denied
	if se.Code() != ErrCodeSSMAccessDenied {
		t.Errorf("Code() = %q, want %q", se.Code(), ErrCodeSSMAccessDenied)
	}
}

func TestWrapSSMError_NilError(t *testing.T) {
	se := WrapSSMError(nil, "/sentinel/test")
	if se != nil {
		t.Errorf("WrapSSMError(nil, ...) = %v, want nil", se)
	}
}

func TestWrapDynamoDBError_ResourceNotFound(t *testing.T) {
	err := errors.New("ResourceNotFoundException: Cannot do operations on a non-existent table")
	se := WrapDynamoDBError(err, "sentinel-audit-chain", "PutItem")

	if se.Code() != ErrCodeDynamoDBTableNotFound {
		t.Errorf("Code() = %q, want %q", se.Code(), ErrCodeDynamoDBTableNotFound)
	}
	if se.Context()["table"] != "sentinel-audit-chain" {
		t.Errorf("Context()[\"table\"] = %q, want %q", se.Context()["table"], "sentinel-audit-chain")
	}
	if se.Context()["operation"] != "PutItem" {
		t.Errorf("Context()[\"operation\"] = %q, want %q", se.Context()["operation"], "PutItem")
	}
}

func TestWrapDynamoDBError_AccessDenied(t *testing.T) {
	err := errors.New("AccessDeniedException: User is not authorized to perform dynamodb:PutItem")
	se := WrapDynamoDBError(err, "sentinel-audit-chain", "PutItem")

	if se.Code() != ErrCodeDynamoDBAccessDenied {
		t.Errorf("Code() = %q, want %q", se.Code(), ErrCodeDynamoDBAccessDenied)
	}
}

func TestWrapDynamoDBError_Throttled(t *testing.T) {
	err := errors.New("ProvisionedThroughputExceededException: Throughput exceeded")
	se := WrapDynamoDBError(err, "sentinel-audit-chain", "PutItem")

	if se.Code() != ErrCodeDynamoDBThrottled {
		t.Errorf("Code() = %q, want %q", se.Code(), ErrCodeDynamoDBThrottled)
	}
}

func TestWrapDynamoDBError_ConditionalCheckFailed(t *testing.T) {
	err := errors.New("ConditionalCheckFailedException: The conditional request failed")
	se := WrapDynamoDBError(err, "sentinel-audit-chain", "PutItem")

	if se.Code() != ErrCodeDynamoDBConditionFailed {
		t.Errorf("Code() = %q, want %q", se.Code(), ErrCodeDynamoDBConditionFailed)
	}
}

func TestWrapDynamoDBError_NilError(t *testing.T) {
	se := WrapDynamoDBError(nil, "table", "op")
	if se != nil {
		t.Errorf("WrapDynamoDBError(nil, ...) = %v, want nil", se)
	}
}

// Test helper functions

func TestIsAccessDenied(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"AccessDeniedException: not authorized", true},
		{"access denied to resource", true},
		{"UnauthorizedOperation: operation not allowed", true},
		{"User is not authorized to perform", true},
		{"403 Forbidden", true},
		{"some other error", false},
		{"", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := isAccessDenied(strings.ToLower(tt.input))
			if got != tt.want {
				t.Errorf("isAccessDenied(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestIsParameterNotFound(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"ParameterNotFound: param not found", true},
		{"parameter not found in store", true},
		{"ParameterVersionNotFound: version missing", true},
		{"some other error", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := isParameterNotFound(strings.ToLower(tt.input))
			if got != tt.want {
				t.Errorf("isParameterNotFound(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestIsResourceNotFound(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"ResourceNotFoundException: table not found", true},
		{"resource not found", true},
		{"Cannot do operations on a non-existent table", true},
		{"some other error", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := isResourceNotFound(strings.ToLower(tt.input))
			if got != tt.want {
				t.Errorf("isResourceNotFound(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestIsThrottled(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"ThrottlingException: rate exceeded", true},
		{"Rate exceeded for operation", true},
		{"Too many requests", true},
		{"SlowDown: request throttled", true},
		{"some other error", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := isThrottled(strings.ToLower(tt.input))
			if got != tt.want {
				t.Errorf("isThrottled(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestIsKMSAccessDenied(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"AccessDenied: kms:Decrypt not allowed", true},
		{"User not authorized to access key", true},
		{"regular access denied", false},
		{"kms key found", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := isKMSAccessDenied(strings.ToLower(tt.input))
			if got != tt.want {
				t.Errorf("isKMSAccessDenied(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestIsProvisionedThroughputExceeded(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"ProvisionedThroughputExceededException", true},
		{"Throughput exceeded for table", true},
		{"Write capacity exceeded", true},
		{"some other error", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := isProvisionedThroughputExceeded(strings.ToLower(tt.input))
			if got != tt.want {
				t.Errorf("isProvisionedThroughputExceeded(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

func TestIsConditionalCheckFailed(t *testing.T) {
	tests := []struct {
		input string
		want  bool
	}{
		{"ConditionalCheckFailedException", true},
		{"Conditional check failed", true},
		{"Condition expression not satisfied", true},
		{"some other error", false},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got := isConditionalCheckFailed(strings.ToLower(tt.input))
			if got != tt.want {
				t.Errorf("isConditionalCheckFailed(%q) = %v, want %v", tt.input, got, tt.want)
			}
		})
	}
}

// Test all error codes have suggestions defined
func TestAllErrorCodesHaveSuggestions(t *testing.T) {
	codes := []string{
		ErrCodeSSMAccessDenied,
		ErrCodeSSMParameterNotFound,
		ErrCodeSSMKMSAccessDenied,
		ErrCodeSSMThrottled,
		ErrCodeSSMInvalidParameter,
		ErrCodeDynamoDBAccessDenied,
		ErrCodeDynamoDBTableNotFound,
		ErrCodeDynamoDBThrottled,
		ErrCodeDynamoDBConditionFailed,
	}

	for _, code := range codes {
		t.Run(code, func(t *testing.T) {
			suggestion := GetSuggestion(code)
			if suggestion == "" {
				t.Errorf("No suggestion defined for error code %q", code)
			}
		})
	}
}
