package errors

// ErrorCode represents a unique error identifier
type ErrorCode int

// Error code ranges allocation:
// 10000-10999: System & Common errors
// 13000-13999: Sandbox & Judge errors
// 17000-17999: Probe fixture errors

const (
	// ========== System & Common Errors (10000-10999) ==========

	// Success
	Success ErrorCode = 10000

	// Generic errors (10000-10099)
	InternalServerError ErrorCode = 10001
	InvalidParams       ErrorCode = 10002
	Unsupported         ErrorCode = 10009

	// Configuration errors (10400-10499)
	ConfigLoadFailed ErrorCode = 10400
	ConfigInvalid    ErrorCode = 10401

	// Validation errors (10300-10399)
	ValidationFailed ErrorCode = 10300
	InvalidValue     ErrorCode = 10302

	// ========== Sandbox & Judge Errors (13000-13999) ==========

	// Judge (13100-13199)
	JudgeSystemError    ErrorCode = 13101
	RuntimeError        ErrorCode = 13103
	TimeLimitExceeded   ErrorCode = 13104
	MemoryLimitExceeded ErrorCode = 13105
	OutputLimitExceeded ErrorCode = 13106

	// Sandbox profiles (13300-13399)
	ProfileNotFound ErrorCode = 13300

	// Scenario checks (13400-13499)
	ScenarioInvalid ErrorCode = 13400
	ScenarioFailed  ErrorCode = 13401

	// ========== Probe Fixture Errors (17000-17999) ==========

	MemoryAllocationDenied ErrorCode = 17000
	MemoryReleaseFailed    ErrorCode = 17001
	InputMalformed         ErrorCode = 17002
)

// errorMessages maps error codes to their default English messages
var errorMessages = map[ErrorCode]string{
	// System & Common
	Success:             "Success",
	InternalServerError: "Internal server error",
	InvalidParams:       "Invalid parameters",
	Unsupported:         "Operation not supported on this platform",

	// Configuration
	ConfigLoadFailed: "Failed to load configuration",
	ConfigInvalid:    "Invalid configuration",

	// Validation
	ValidationFailed: "Validation failed",
	InvalidValue:     "Invalid value",

	// Judge
	JudgeSystemError:    "Judge system error",
	RuntimeError:        "Runtime error",
	TimeLimitExceeded:   "Time limit exceeded",
	MemoryLimitExceeded: "Memory limit exceeded",
	OutputLimitExceeded: "Output limit exceeded",

	ProfileNotFound: "Sandbox profile not found",

	ScenarioInvalid: "Invalid scenario",
	ScenarioFailed:  "Scenario did not produce the expected verdict",

	// Probe
	MemoryAllocationDenied: "Memory allocation denied",
	MemoryReleaseFailed:    "Failed to release probe memory",
	InputMalformed:         "Malformed operand input",
}

// Message returns the default message for the error code
func (c ErrorCode) Message() string {
	if msg, ok := errorMessages[c]; ok {
		return msg
	}
	return "Unknown error"
}

// ExitCode returns the recommended process exit status for the error code
func (c ErrorCode) ExitCode() int {
	switch {
	case c == Success:
		return 0
	case c == MemoryAllocationDenied, c == ScenarioFailed:
		return 1
	case c >= 10300 && c < 10500: // Validation and configuration errors
		return 2
	case c == InvalidParams, c == ScenarioInvalid:
		return 2
	default:
		return 3
	}
}
