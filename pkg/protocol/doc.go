// Package protocol implements the fixed-size wire format spoken between the
// sqmean client and server.
//
// There is no framing, handshake or close message. A connection carries an
// unbounded sequence of request/response pairs until either side closes or
// resets the socket.
//
// # Wire Format
//
// Client → Server, one value per request:
//
//	┌───────────────────────────────┐
//	│ Value (4 bytes, native-endian │
//	│ uint32, 0..1023)              │
//	└───────────────────────────────┘
//
// Server → Client, one answer per request:
//
//	┌───────────────────────────────────────────────────────────────┐
//	│ Mean (8 bytes, native-endian uint64)                          │
//	└───────────────────────────────────────────────────────────────┘
//
// The mean is the truncating integer mean of the set of squares of every
// distinct value received so far on the connection.
//
// Frames use the host byte order, so client and server must run on the same
// architecture. Mixed-endian peers are not supported.
package protocol
