// Package protocol defines the wire-independent types shared by the client and
// server halves of the QUIC HTTP binding.
//
// # Request descriptors
//
// Every client request starts as an Input: either a bare URL or a
// RequestConfig record with optional fields. Normalize resolves the input into
// a RequestDescriptor, applying defaults and validating the invariants that the
// transport relies on:
//
//   - the URL is required and must parse;
//   - the method is one of GET, POST, PUT, PATCH, HEAD or DELETE (default GET);
//   - a non-empty payload and a chunked upload are mutually exclusive;
//   - POST and PUT carry exactly one of a payload or a chunked upload;
//   - retry counts are non-negative and the timeout defaults to 60 seconds.
//
// A RequestDescriptor is immutable. Accessors return copies where the
// underlying value is mutable.
//
// # Header blocks
//
// Headers is a lower-cased header map. Request heads carry the pseudo-headers
// :method, :scheme, :authority and :path; ParseRequestHead requires all four to
// be present and non-empty. Response heads carry :status; ParseResponseHead
// requires it to be numeric.
//
// # Frames
//
// Frame pairs a body chunk with its fin flag. Direction tracks the monotonic
// terminal flag of one direction of a stream.
package protocol
