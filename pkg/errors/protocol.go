package errors

import (
	"fmt"
)

// HeaderErrorData describes a malformed header block
type HeaderErrorData struct {
	Header string `json:"header,omitempty"`
	Value  string `json:"value,omitempty"`
	Reason string `json:"reason,omitempty"`
}

// ProtocolError creates a generic protocol error
func ProtocolError(reason string) Error {
	return NewError(
		CodeProtocolError,
		fmt.Sprintf("Protocol error: %s", reason),
		CategoryProtocol,
		SeverityError,
	)
}

// MissingPseudoHeader creates an error for a required pseudo-header that is absent or empty
func MissingPseudoHeader(name string) Error {
	return NewError(
		CodeMissingPseudoHeader,
		fmt.Sprintf("Missing pseudo-header %s", name),
		CategoryProtocol,
		SeverityError,
	).WithData(&HeaderErrorData{
		Header: name,
		Reason: "missing or empty",
	})
}

// InvalidStatus creates an error for a response head without a usable :status
func InvalidStatus(value string) Error {
	return NewError(
		CodeInvalidStatus,
		fmt.Sprintf("Invalid :status value %q", value),
		CategoryProtocol,
		SeverityError,
	).WithData(&HeaderErrorData{
		Header: ":status",
		Value:  value,
		Reason: "must be a three digit number",
	})
}

// InvalidSequence creates an error for a frame that arrived out of order
func InvalidSequence(expected, actual string) Error {
	return NewError(
		CodeInvalidSequence,
		fmt.Sprintf("Invalid frame sequence: expected %s, got %s", expected, actual),
		CategoryProtocol,
		SeverityError,
	)
}
