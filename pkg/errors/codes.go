package errors

// Configuration Errors (1000 to 1999)
const (
	CodeConfigError           int = 1000 // Generic configuration error
	CodeMissingParameter      int = 1001 // Required parameter missing
	CodeInvalidParameter      int = 1002 // Parameter has invalid value
	CodeConflictingParameters int = 1003 // Parameters that may not be combined
	CodeFileNotFound          int = 1004 // Configured file does not exist
)

// Protocol Errors (2000 to 2999)
const (
	CodeProtocolError       int = 2000 // Generic protocol error
	CodeMissingPseudoHeader int = 2001 // Required pseudo-header absent or empty
	CodeInvalidStatus       int = 2002 // :status missing or not numeric
	CodeInvalidSequence     int = 2003 // Frame observed out of sequence
)

// Stream State Errors (3000 to 3999)
const (
	CodeStreamStateError int = 3000 // Generic stream state error
	CodeWriteAfterFin    int = 3001 // Write after the terminal frame was sent
	CodeStreamClosed     int = 3002 // Stream is no longer open
	CodeNotChunkedUpload int = 3003 // Chunk written to a request without a chunked body
)

// Transport Errors (4000 to 4999)
const (
	CodeTransportError   int = 4000 // Generic transport error
	CodeConnectionFailed int = 4001 // Failed to establish connection
	CodeConnectionLost   int = 4002 // Connection lost during operation
	CodeRequestTimeout   int = 4003 // Request did not complete in time
	CodeNotListening     int = 4004 // Engine is not accepting streams
)

// Internal Errors (5000 to 5999)
const (
	CodeInternalError int = 5000 // Unexpected internal failure
)

// ErrorCodeInfo provides human-readable information about error codes
type ErrorCodeInfo struct {
	Code        int
	Name        string
	Description string
	Category    Category
	Severity    Severity
}

// errorCodeRegistry maps error codes to their information
var errorCodeRegistry = map[int]ErrorCodeInfo{
	CodeConfigError:           {CodeConfigError, "ConfigError", "Invalid configuration", CategoryConfig, SeverityError},
	CodeMissingParameter:      {CodeMissingParameter, "MissingParameter", "Required parameter missing", CategoryConfig, SeverityError},
	CodeInvalidParameter:      {CodeInvalidParameter, "InvalidParameter", "Invalid parameter value", CategoryConfig, SeverityError},
	CodeConflictingParameters: {CodeConflictingParameters, "ConflictingParameters", "Parameters are mutually exclusive", CategoryConfig, SeverityError},
	CodeFileNotFound:          {CodeFileNotFound, "FileNotFound", "Configured file not found", CategoryConfig, SeverityCritical},

	CodeProtocolError:       {CodeProtocolError, "ProtocolError", "Protocol error", CategoryProtocol, SeverityError},
	CodeMissingPseudoHeader: {CodeMissingPseudoHeader, "MissingPseudoHeader", "Pseudo-header missing or empty", CategoryProtocol, SeverityError},
	CodeInvalidStatus:       {CodeInvalidStatus, "InvalidStatus", "Invalid response status", CategoryProtocol, SeverityError},
	CodeInvalidSequence:     {CodeInvalidSequence, "InvalidSequence", "Invalid frame sequence", CategoryProtocol, SeverityError},

	CodeStreamStateError: {CodeStreamStateError, "StreamStateError", "Invalid stream state", CategoryStreamState, SeverityError},
	CodeWriteAfterFin:    {CodeWriteAfterFin, "WriteAfterFin", "Write after terminal frame", CategoryStreamState, SeverityError},
	CodeStreamClosed:     {CodeStreamClosed, "StreamClosed", "Stream closed", CategoryStreamState, SeverityWarning},
	CodeNotChunkedUpload: {CodeNotChunkedUpload, "NotChunkedUpload", "Request is not a chunked upload", CategoryStreamState, SeverityError},

	CodeTransportError:   {CodeTransportError, "TransportError", "Transport error", CategoryTransport, SeverityError},
	CodeConnectionFailed: {CodeConnectionFailed, "ConnectionFailed", "Connection failed", CategoryTransport, SeverityCritical},
	CodeConnectionLost:   {CodeConnectionLost, "ConnectionLost", "Connection lost", CategoryTransport, SeverityError},
	CodeRequestTimeout:   {CodeRequestTimeout, "RequestTimeout", "Request timed out", CategoryTimeout, SeverityError},
	CodeNotListening:     {CodeNotListening, "NotListening", "Engine not listening", CategoryTransport, SeverityError},

	CodeInternalError: {CodeInternalError, "InternalError", "Internal error", CategoryInternal, SeverityCritical},
}

// GetErrorCodeInfo returns information about an error code
func GetErrorCodeInfo(code int) (ErrorCodeInfo, bool) {
	info, exists := errorCodeRegistry[code]
	return info, exists
}

// GetErrorCodeName returns the name of an error code
func GetErrorCodeName(code int) string {
	if info, exists := errorCodeRegistry[code]; exists {
		return info.Name
	}
	return "UnknownError"
}

// GetErrorCodeCategory returns the category of an error code
func GetErrorCodeCategory(code int) Category {
	if info, exists := errorCodeRegistry[code]; exists {
		return info.Category
	}
	return CategoryInternal
}

// ListErrorCodes returns all registered error codes
func ListErrorCodes() []ErrorCodeInfo {
	codes := make([]ErrorCodeInfo, 0, len(errorCodeRegistry))
	for _, info := range errorCodeRegistry {
		codes = append(codes, info)
	}
	return codes
}
