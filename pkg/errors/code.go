package errors

// ErrorCode represents a unique error identifier
type ErrorCode int

// Error code ranges allocation:
// 10000-10999: System & Common errors
// 13000-13999: Submission & Finalization errors
// 14000-14999: Contest problem errors

const (
	// ========== System & Common Errors (10000-10999) ==========

	// Success
	Success ErrorCode = 10000

	// Generic errors (10000-10099)
	InternalServerError ErrorCode = 10001
	InvalidParams       ErrorCode = 10002
	NotFound            ErrorCode = 10003
	TooManyRequests     ErrorCode = 10006
	ServiceUnavailable  ErrorCode = 10007
	Timeout             ErrorCode = 10008

	// Database errors (10100-10199)
	DatabaseError     ErrorCode = 10100
	RecordNotFound    ErrorCode = 10101
	TransactionFailed ErrorCode = 10103

	// Cache errors (10200-10299)
	CacheError     ErrorCode = 10200
	CacheSetFailed ErrorCode = 10202

	// Validation errors (10300-10399)
	ValidationFailed ErrorCode = 10300
	InvalidValue     ErrorCode = 10302

	// ========== Submission & Finalization Errors (13000-13999) ==========

	// Submission (13000-13099)
	SubmissionNotFound ErrorCode = 13000

	// Finalization (13300-13399)
	FinalizationConflict    ErrorCode = 13300
	FinalInvariantViolation ErrorCode = 13301
	FinalizationFailed      ErrorCode = 13302
	ReselectionFailed       ErrorCode = 13303

	// ========== Contest Problem Errors (14000-14999) ==========

	ContestProblemNotFound ErrorCode = 14010
	InvalidSelectingMethod ErrorCode = 14011
)

// errorMessages maps error codes to their default English messages
var errorMessages = map[ErrorCode]string{
	// System & Common
	Success:             "Success",
	InternalServerError: "Internal server error",
	InvalidParams:       "Invalid parameters",
	NotFound:            "Resource not found",
	TooManyRequests:     "Too many requests, please try again later",
	ServiceUnavailable:  "Service temporarily unavailable",
	Timeout:             "Request timeout",

	// Database
	DatabaseError:     "Database operation failed",
	RecordNotFound:    "Record not found in database",
	TransactionFailed: "Database transaction failed",

	// Cache
	CacheError:     "Cache operation failed",
	CacheSetFailed: "Failed to set cache",

	// Validation
	ValidationFailed: "Validation failed",
	InvalidValue:     "Invalid value",

	// Submission
	SubmissionNotFound: "Submission not found",

	// Finalization
	FinalizationConflict:    "Final recomputation kept conflicting, please retry later",
	FinalInvariantViolation: "More than one final submission for a key",
	FinalizationFailed:      "Final recomputation failed",
	ReselectionFailed:       "Final reselection finished with failures",

	// Contest problem
	ContestProblemNotFound: "Contest problem not found",
	InvalidSelectingMethod: "Invalid final selecting method",
}

// Message returns the default message for the error code
func (c ErrorCode) Message() string {
	if msg, ok := errorMessages[c]; ok {
		return msg
	}
	return "Unknown error"
}

// HTTPStatus returns the recommended HTTP status code for the error code
func (c ErrorCode) HTTPStatus() int {
	switch {
	case c == Success:
		return 200
	case c == NotFound, c == RecordNotFound, c == SubmissionNotFound, c == ContestProblemNotFound:
		return 404
	case c == TooManyRequests:
		return 429
	case c == ServiceUnavailable, c == FinalizationConflict:
		return 503
	case c == Timeout:
		return 504
	case c >= 10300 && c < 10400: // Validation errors
		return 400
	case c == InvalidParams, c == InvalidSelectingMethod:
		return 400
	default:
		return 500
	}
}
