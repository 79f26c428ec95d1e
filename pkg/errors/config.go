package errors

import (
	"fmt"
)

// ParameterErrorData contains structured data for configuration parameter errors
type ParameterErrorData struct {
	Parameter string      `json:"parameter"`
	Value     interface{} `json:"value,omitempty"`
	Expected  string      `json:"expected,omitempty"`
	Required  bool        `json:"required,omitempty"`
	Reason    string      `json:"reason,omitempty"`
}

// ConfigError creates a generic configuration error
func ConfigError(message string) Error {
	return NewError(CodeConfigError, message, CategoryConfig, SeverityError)
}

// ConfigErrorf creates a generic configuration error with formatting
func ConfigErrorf(format string, args ...interface{}) Error {
	return NewErrorf(CodeConfigError, CategoryConfig, SeverityError, format, args...)
}

// MissingParameter creates an error for a required parameter that was not supplied
func MissingParameter(parameter string) Error {
	return NewError(
		CodeMissingParameter,
		fmt.Sprintf("Missing required parameter: %s", parameter),
		CategoryConfig,
		SeverityError,
	).WithData(&ParameterErrorData{
		Parameter: parameter,
		Required:  true,
	})
}

// InvalidParameter creates an error for a parameter with an unacceptable value
func InvalidParameter(parameter string, value interface{}, expected string) Error {
	return NewError(
		CodeInvalidParameter,
		fmt.Sprintf("Invalid value for parameter %s: expected %s", parameter, expected),
		CategoryConfig,
		SeverityError,
	).WithData(&ParameterErrorData{
		Parameter: parameter,
		Value:     value,
		Expected:  expected,
	})
}

// ConflictingParameters creates an error for two parameters that cannot be set together
func ConflictingParameters(first, second, reason string) Error {
	return NewError(
		CodeConflictingParameters,
		fmt.Sprintf("Parameters %s and %s conflict: %s", first, second, reason),
		CategoryConfig,
		SeverityError,
	).WithData(&ParameterErrorData{
		Parameter: first + "," + second,
		Reason:    reason,
	})
}

// FileNotFound creates an error for a configured file that does not exist
func FileNotFound(parameter, path string, cause error) Error {
	err := WrapError(
		cause,
		CodeFileNotFound,
		fmt.Sprintf("File for %s does not exist: %s", parameter, path),
		CategoryConfig,
		SeverityCritical,
	)
	return err.WithData(&ParameterErrorData{
		Parameter: parameter,
		Value:     path,
		Reason:    "not found",
	})
}
