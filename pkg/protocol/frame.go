package protocol

import (
	"encoding/binary"
	"errors"
)

// Frame sizes in bytes.
const (
	// RequestSize is the size of a client request (one uint32).
	RequestSize = 4

	// ResponseSize is the size of a server response (one uint64).
	ResponseSize = 8
)

// MaxValue is the largest value a conforming client sends.
// The server accepts any uint32.
const MaxValue = 1023

// ErrShortFrame is returned when a buffer is smaller than the frame it should hold.
var ErrShortFrame = errors.New("protocol: short frame")

// ByteOrder is the byte order used for both directions.
var ByteOrder binary.ByteOrder = binary.NativeEndian

// EncodeRequest returns the 4-byte request frame for v.
func EncodeRequest(v uint32) []byte {
	buf := make([]byte, RequestSize)
	ByteOrder.PutUint32(buf, v)
	return buf
}

// DecodeRequest reads a request value from the first RequestSize bytes of data.
func DecodeRequest(data []byte) (uint32, error) {
	if len(data) < RequestSize {
		return 0, ErrShortFrame
	}
	return ByteOrder.Uint32(data[:RequestSize]), nil
}

// EncodeResponse returns the 8-byte response frame for mean.
func EncodeResponse(mean uint64) []byte {
	buf := make([]byte, ResponseSize)
	PutResponse(buf, mean)
	return buf
}

// PutResponse writes mean into dst, which must hold at least ResponseSize bytes.
func PutResponse(dst []byte, mean uint64) {
	ByteOrder.PutUint64(dst[:ResponseSize], mean)
}

// DecodeResponse reads a response value from the first ResponseSize bytes of data.
func DecodeResponse(data []byte) (uint64, error) {
	if len(data) < ResponseSize {
		return 0, ErrShortFrame
	}
	return ByteOrder.Uint64(data[:ResponseSize]), nil
}
