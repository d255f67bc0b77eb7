package dump

import (
	"bytes"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/sha3"
)

// Block is an immutable snapshot of one connection's squares.
type Block struct {
	ConnID  uint64
	Values  []uint64
	TakenAt time.Time
}

// Format selects how a Block is rendered for durable storage.
type Format int

const (
	// FormatConcat writes decimal digits with no delimiter.
	FormatConcat Format = iota

	// FormatLines writes one decimal value per line.
	FormatLines
)

// String returns the config spelling of the format.
func (f Format) String() string {
	switch f {
	case FormatConcat:
		return "concat"
	case FormatLines:
		return "lines"
	default:
		return fmt.Sprintf("format(%d)", int(f))
	}
}

// ParseFormat parses "concat" or "lines". The empty string means FormatConcat.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "concat":
		return FormatConcat, nil
	case "lines":
		return FormatLines, nil
	default:
		return FormatConcat, fmt.Errorf("dump: unknown format %q", s)
	}
}

// Encode renders values in format f.
func Encode(values []uint64, f Format) []byte {
	buf := make([]byte, 0, len(values)*8)
	for _, v := range values {
		buf = strconv.AppendUint(buf, v, 10)
		if f == FormatLines {
			buf = append(buf, '\n')
		}
	}
	return buf
}

// DecodeLines parses data written with FormatLines.
func DecodeLines(data []byte) ([]uint64, error) {
	var values []uint64
	for _, line := range bytes.Split(data, []byte{'\n'}) {
		line = bytes.TrimSpace(line)
		if len(line) == 0 {
			continue
		}
		v, err := strconv.ParseUint(string(line), 10, 64)
		if err != nil {
			return nil, fmt.Errorf("dump: bad line %q: %w", line, err)
		}
		values = append(values, v)
	}
	return values, nil
}

// Checksum returns the hex SHA3-256 digest of payload.
func Checksum(payload []byte) string {
	sum := sha3.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// FileName returns the canonical object name for a connection id.
func FileName(connID uint64) string {
	return strconv.FormatUint(connID, 10) + ".dmp"
}
