package errors

import (
	"fmt"
)

// StreamErrorData identifies the stream an operation was rejected on
type StreamErrorData struct {
	RequestID string `json:"request_id,omitempty"`
	SessionID string `json:"session_id,omitempty"`
	StreamID  uint64 `json:"stream_id,omitempty"`
	Operation string `json:"operation,omitempty"`
}

// WriteAfterFin creates an error for a write attempted after the terminal frame was sent
func WriteAfterFin(requestID string) Error {
	return NewError(
		CodeWriteAfterFin,
		"Write after fin",
		CategoryStreamState,
		SeverityError,
	).WithData(&StreamErrorData{
		RequestID: requestID,
		Operation: "write",
	})
}

// StreamClosed creates an error for an operation on a stream that is no longer open
func StreamClosed(sessionID string, streamID uint64, operation string) Error {
	return NewError(
		CodeStreamClosed,
		fmt.Sprintf("Stream %d on session %s is closed", streamID, sessionID),
		CategoryStreamState,
		SeverityWarning,
	).WithData(&StreamErrorData{
		SessionID: sessionID,
		StreamID:  streamID,
		Operation: operation,
	})
}

// NotChunkedUpload creates an error for a body chunk written to a request that was
// not created as a chunked upload
func NotChunkedUpload(requestID string) Error {
	return NewError(
		CodeNotChunkedUpload,
		"Request was not created as a chunked upload",
		CategoryStreamState,
		SeverityError,
	).WithData(&StreamErrorData{
		RequestID: requestID,
		Operation: "write",
	})
}
