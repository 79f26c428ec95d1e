package errors

import (
	"fmt"
	"time"
)

// TransportErrorData contains structured data for transport-related errors
type TransportErrorData struct {
	Transport string        `json:"transport"`
	Operation string        `json:"operation,omitempty"`
	Endpoint  string        `json:"endpoint,omitempty"`
	Retryable bool          `json:"retryable"`
	Timeout   time.Duration `json:"timeout,omitempty"`
	Reason    string        `json:"reason,omitempty"`
}

func reason(cause error) string {
	if cause == nil {
		return ""
	}
	return cause.Error()
}

// TransportError creates a generic transport error
func TransportError(transport, operation string, cause error) Error {
	message := fmt.Sprintf("%s transport error", transport)
	if operation != "" {
		message = fmt.Sprintf("%s transport error during %s", transport, operation)
	}
	if cause != nil {
		message = fmt.Sprintf("%s: %s", message, cause.Error())
	}

	return WrapError(
		cause,
		CodeTransportError,
		message,
		CategoryTransport,
		SeverityError,
	).WithData(&TransportErrorData{
		Transport: transport,
		Operation: operation,
		Reason:    reason(cause),
	})
}

// ConnectionFailed creates an error for connection failures
func ConnectionFailed(transport, endpoint string, cause error) Error {
	message := fmt.Sprintf("Failed to connect via %s", transport)
	if endpoint != "" {
		message = fmt.Sprintf("Failed to connect to %s via %s", endpoint, transport)
	}

	return WrapError(
		cause,
		CodeConnectionFailed,
		message,
		CategoryTransport,
		SeverityCritical,
	).WithData(&TransportErrorData{
		Transport: transport,
		Endpoint:  endpoint,
		Retryable: true,
		Reason:    reason(cause),
	})
}

// ConnectionLost creates an error for a connection that dropped mid-operation
func ConnectionLost(transport, reasonText string) Error {
	return NewError(
		CodeConnectionLost,
		fmt.Sprintf("%s connection lost: %s", transport, reasonText),
		CategoryTransport,
		SeverityError,
	).WithData(&TransportErrorData{
		Transport: transport,
		Retryable: true,
		Reason:    reasonText,
	})
}

// RequestTimeout creates an error for a request that exceeded its deadline
func RequestTimeout(transport, url string, timeout time.Duration) Error {
	return NewError(
		CodeRequestTimeout,
		fmt.Sprintf("Request to %s timed out after %v", url, timeout),
		CategoryTimeout,
		SeverityError,
	).WithData(&TransportErrorData{
		Transport: transport,
		Endpoint:  url,
		Timeout:   timeout,
	})
}

// NotListening creates an error for an engine operation that requires a bound listener
func NotListening(transport, operation string) Error {
	return NewError(
		CodeNotListening,
		fmt.Sprintf("%s engine is not listening", transport),
		CategoryTransport,
		SeverityError,
	).WithData(&TransportErrorData{
		Transport: transport,
		Operation: operation,
	})
}

// InternalError creates an error for an unexpected failure inside the binding
func InternalError(message string, cause error) Error {
	return WrapError(cause, CodeInternalError, message, CategoryInternal, SeverityCritical)
}
