package errors

import (
	"net/http"
	"strings"
)

// ErrorCode is a string representation of a specific error condition.
type ErrorCode string

func (c ErrorCode) String() string {
	return string(c)
}

// Common Error Codes
const (
	ErrCodeInternal           ErrorCode = "COMMON_001"
	ErrCodeBadRequest         ErrorCode = "COMMON_002"
	ErrCodeUnauthorized       ErrorCode = "COMMON_003"
	ErrCodeNotFound           ErrorCode = "COMMON_005"
	ErrCodeConflict           ErrorCode = "COMMON_006"
	ErrCodeRateLimited        ErrorCode = "COMMON_007"
	ErrCodeServiceUnavailable ErrorCode = "COMMON_008"
	ErrCodeTimeout            ErrorCode = "COMMON_009"
	ErrCodeValidation         ErrorCode = "COMMON_010"
	ErrCodeSerialization      ErrorCode = "COMMON_011"
	ErrCodeDatabaseError      ErrorCode = "COMMON_012"
	ErrCodeCacheError         ErrorCode = "COMMON_013"
	ErrCodeMessageQueueError  ErrorCode = "COMMON_014"
	ErrCodeStorageError       ErrorCode = "COMMON_015"
	ErrCodeCanceled           ErrorCode = "COMMON_017"
)

// Aliases used across layers.
const (
	CodeInternal     = ErrCodeInternal
	CodeInvalidParam = ErrCodeBadRequest
	CodeNotFound     = ErrCodeNotFound
	CodeConflict     = ErrCodeConflict
	CodeDatabase     = ErrCodeDatabaseError
	CodeCache        = ErrCodeCacheError
	CodeOK           = ErrorCode("OK")
	CodeUnknown      = ErrorCode("UNKNOWN")
)

// Patent Module Error Codes
const (
	ErrCodePatentNotFound    ErrorCode = "PAT_001"
	ErrCodePatentIDInvalid   ErrorCode = "PAT_002"
	ErrCodeSectorMapNotFound ErrorCode = "PAT_003"
)

// Exploration Module Error Codes
const (
	// ErrCodeIncompleteSeedData is raised per seed that cannot be resolved.
	// It never aborts aggregate construction and is surfaced as a warning.
	ErrCodeIncompleteSeedData ErrorCode = "EXP_001"
	// ErrCodeNoValidSeeds aborts CreateExploration.
	ErrCodeNoValidSeeds ErrorCode = "EXP_002"
	// ErrCodeCandidateCapExceeded is informational only; the overflow is
	// reported as the pruned count of an expansion step.
	ErrCodeCandidateCapExceeded     ErrorCode = "EXP_003"
	ErrCodeStaleGenerationConflict  ErrorCode = "EXP_004"
	ErrCodeInvalidWeightConfig      ErrorCode = "EXP_005"
	ErrCodeExplorationNotFound      ErrorCode = "EXP_006"
	ErrCodeExplorationArchived      ErrorCode = "EXP_007"
	ErrCodeUnknownCandidate         ErrorCode = "EXP_008"
	ErrCodeInvalidDirection         ErrorCode = "EXP_009"
	ErrCodeExplorationAlreadyExists ErrorCode = "EXP_010"
)

// Gateway Error Codes
const (
	ErrCodeGatewayFetchFailure ErrorCode = "GW_001"
	ErrCodeGatewayUnavailable  ErrorCode = "GW_002"
)

// ErrorCodeHTTPStatus maps ErrorCodes to HTTP status codes.
var ErrorCodeHTTPStatus = map[ErrorCode]int{
	ErrCodeInternal:           http.StatusInternalServerError,
	ErrCodeBadRequest:         http.StatusBadRequest,
	ErrCodeUnauthorized:       http.StatusUnauthorized,
	ErrCodeNotFound:           http.StatusNotFound,
	ErrCodeConflict:           http.StatusConflict,
	ErrCodeRateLimited:        http.StatusTooManyRequests,
	ErrCodeServiceUnavailable: http.StatusServiceUnavailable,
	ErrCodeTimeout:            http.StatusGatewayTimeout,
	ErrCodeValidation:         http.StatusUnprocessableEntity,
	ErrCodeSerialization:      http.StatusInternalServerError,
	ErrCodeDatabaseError:      http.StatusInternalServerError,
	ErrCodeCacheError:         http.StatusInternalServerError,
	ErrCodeMessageQueueError:  http.StatusInternalServerError,
	ErrCodeStorageError:       http.StatusInternalServerError,
	ErrCodeCanceled:           499,

	ErrCodePatentNotFound:    http.StatusNotFound,
	ErrCodePatentIDInvalid:   http.StatusBadRequest,
	ErrCodeSectorMapNotFound: http.StatusNotFound,

	ErrCodeIncompleteSeedData:       http.StatusOK,
	ErrCodeNoValidSeeds:             http.StatusUnprocessableEntity,
	ErrCodeCandidateCapExceeded:     http.StatusOK,
	ErrCodeStaleGenerationConflict:  http.StatusConflict,
	ErrCodeInvalidWeightConfig:      http.StatusBadRequest,
	ErrCodeExplorationNotFound:      http.StatusNotFound,
	ErrCodeExplorationArchived:      http.StatusConflict,
	ErrCodeUnknownCandidate:         http.StatusBadRequest,
	ErrCodeInvalidDirection:         http.StatusBadRequest,
	ErrCodeExplorationAlreadyExists: http.StatusConflict,

	ErrCodeGatewayFetchFailure: http.StatusBadGateway,
	ErrCodeGatewayUnavailable:  http.StatusServiceUnavailable,
}

// ErrorCodeMessage maps ErrorCodes to default messages.
var ErrorCodeMessage = map[ErrorCode]string{
	ErrCodeInternal:           "internal server error",
	ErrCodeBadRequest:         "bad request",
	ErrCodeUnauthorized:       "unauthorized",
	ErrCodeNotFound:           "resource not found",
	ErrCodeConflict:           "resource conflict",
	ErrCodeRateLimited:        "rate limit exceeded",
	ErrCodeServiceUnavailable: "service unavailable",
	ErrCodeTimeout:            "request timeout",
	ErrCodeValidation:         "validation failed",
	ErrCodeSerialization:      "serialization failed",
	ErrCodeDatabaseError:      "database error",
	ErrCodeCacheError:         "cache error",
	ErrCodeMessageQueueError:  "message queue error",
	ErrCodeStorageError:       "object storage error",
	ErrCodeCanceled:           "request canceled",

	ErrCodePatentNotFound:    "patent not found",
	ErrCodePatentIDInvalid:   "invalid patent id",
	ErrCodeSectorMapNotFound: "no sector mapping for CPC codes",

	ErrCodeIncompleteSeedData:       "seed data incomplete",
	ErrCodeNoValidSeeds:             "no seed could be resolved",
	ErrCodeCandidateCapExceeded:     "candidate cap exceeded",
	ErrCodeStaleGenerationConflict:  "exploration was modified concurrently",
	ErrCodeInvalidWeightConfig:      "invalid weight or threshold configuration",
	ErrCodeExplorationNotFound:      "exploration not found",
	ErrCodeExplorationArchived:      "exploration is archived",
	ErrCodeUnknownCandidate:         "patent is not part of the exploration",
	ErrCodeInvalidDirection:         "invalid expansion direction",
	ErrCodeExplorationAlreadyExists: "exploration already exists",

	ErrCodeGatewayFetchFailure: "citation gateway fetch failed",
	ErrCodeGatewayUnavailable:  "citation gateway unavailable",
}

// HTTPStatusForCode returns the HTTP status code for an ErrorCode.
func HTTPStatusForCode(code ErrorCode) int {
	if status, ok := ErrorCodeHTTPStatus[code]; ok {
		return status
	}
	return http.StatusInternalServerError
}

// DefaultMessageForCode returns the default message for an ErrorCode.
func DefaultMessageForCode(code ErrorCode) string {
	if msg, ok := ErrorCodeMessage[code]; ok {
		return msg
	}
	return "unknown error"
}

// IsClientError returns true if the ErrorCode corresponds to a 4xx HTTP status.
func IsClientError(code ErrorCode) bool {
	status := HTTPStatusForCode(code)
	return status >= 400 && status < 500
}

// IsServerError returns true if the ErrorCode corresponds to a 5xx HTTP status.
func IsServerError(code ErrorCode) bool {
	status := HTTPStatusForCode(code)
	return status >= 500 && status < 600
}

// IsWarning reports codes that are surfaced as warnings rather than failures.
func IsWarning(code ErrorCode) bool {
	switch code {
	case ErrCodeIncompleteSeedData, ErrCodeGatewayFetchFailure, ErrCodeCandidateCapExceeded:
		return true
	}
	return false
}

// ModuleForCode returns the module prefix of an ErrorCode.
func ModuleForCode(code ErrorCode) string {
	parts := strings.Split(string(code), "_")
	if len(parts) > 0 && parts[0] != "" {
		return parts[0]
	}
	return "UNKNOWN"
}

//Personal.AI order the ending
