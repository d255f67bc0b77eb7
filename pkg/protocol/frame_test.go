package protocol

import (
	"encoding/binary"
	"errors"
	"testing"
)

func TestRequestFrame(t *testing.T) {
	for _, v := range []uint32{0, 1, 3, MaxValue, 1 << 31} {
		buf := EncodeRequest(v)
		if len(buf) != RequestSize {
			t.Fatalf("len(EncodeRequest(%d)) = %d, want %d", v, len(buf), RequestSize)
		}
		if got := binary.NativeEndian.Uint32(buf); got != v {
			t.Errorf("native decode of %d = %d", v, got)
		}
		got, err := DecodeRequest(buf)
		if err != nil {
			t.Fatalf("DecodeRequest: %v", err)
		}
		if got != v {
			t.Errorf("DecodeRequest = %d, want %d", got, v)
		}
	}
}

func TestResponseFrame(t *testing.T) {
	buf := EncodeResponse(14)
	if len(buf) != ResponseSize {
		t.Fatalf("len = %d, want %d", len(buf), ResponseSize)
	}
	got, err := DecodeResponse(buf)
	if err != nil {
		t.Fatalf("DecodeResponse: %v", err)
	}
	if got != 14 {
		t.Errorf("DecodeResponse = %d, want 14", got)
	}

	dst := make([]byte, 16)
	PutResponse(dst, 1<<40)
	if v := binary.NativeEndian.Uint64(dst); v != 1<<40 {
		t.Errorf("PutResponse wrote %d", v)
	}
}

func TestShortFrames(t *testing.T) {
	if _, err := DecodeRequest(make([]byte, RequestSize-1)); !errors.Is(err, ErrShortFrame) {
		t.Errorf("DecodeRequest short: err = %v, want ErrShortFrame", err)
	}
	if _, err := DecodeResponse(make([]byte, ResponseSize-1)); !errors.Is(err, ErrShortFrame) {
		t.Errorf("DecodeResponse short: err = %v, want ErrShortFrame", err)
	}
}
