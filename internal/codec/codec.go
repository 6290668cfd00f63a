// Package codec owns the byte-level encodings shared by sender and receiver.
//
// Ownership boundary:
// - payload digest (MD5, base64 form)
// - gzip compress/expand
// - base64 validation and decode
// - fixed-size chunk split
package codec

import (
	"bytes"
	"compress/gzip"
	"crypto/md5"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
)

// ChunkSize is the fragment payload budget in bytes. A 75-byte chunk encodes
// to exactly 100 base64 characters, which keeps every packet inside the
// 140-character frame MTU.
const ChunkSize = 75

// DigestLenB64 is the length of a base64 MD5 digest including padding.
const DigestLenB64 = 24

var (
	ErrInvalidBase64 = errors.New("codec: invalid base64 payload")
	ErrEmptyChunk    = errors.New("codec: empty chunk split requested")
)

// DigestB64 returns the base64 MD5 digest of data.
func DigestB64(data []byte) string {
	sum := md5.Sum(data)
	return base64.StdEncoding.EncodeToString(sum[:])
}

// Compress gzips data at the default level.
func Compress(data []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(data); err != nil {
		return nil, fmt.Errorf("codec: gzip write: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("codec: gzip close: %w", err)
	}
	return buf.Bytes(), nil
}

// Expand gunzips data.
func Expand(data []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("codec: gzip open: %w", err)
	}
	defer zr.Close()
	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("codec: gzip read: %w", err)
	}
	return out, nil
}

// EncodeB64 encodes data with the traditional base64 alphabet.
func EncodeB64(data []byte) string {
	return base64.StdEncoding.EncodeToString(data)
}

// DecodeB64 validates and decodes a base64 field. The character set and the
// length%4 rule are checked before decoding so a corrupt field is rejected
// without touching session state.
func DecodeB64(s string) ([]byte, error) {
	if !ValidBase64(s) {
		return nil, ErrInvalidBase64
	}
	out, err := base64.StdEncoding.DecodeString(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidBase64, err)
	}
	return out, nil
}

// ValidBase64 reports whether s is non-empty, uses only the traditional
// alphabet with '=' padding, and has length divisible by four.
func ValidBase64(s string) bool {
	if len(s) == 0 || len(s)%4 != 0 {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case c >= 'A' && c <= 'Z':
		case c >= 'a' && c <= 'z':
		case c >= '0' && c <= '9':
		case c == '+' || c == '/' || c == '=':
		default:
			return false
		}
	}
	return true
}

// Split slices data into chunks of at most size bytes. The final chunk may be
// shorter; each chunk aliases its own copy so callers can retain them.
func Split(data []byte, size int) ([][]byte, error) {
	if size <= 0 {
		return nil, ErrEmptyChunk
	}
	if len(data) == 0 {
		return nil, nil
	}
	chunks := make([][]byte, 0, (len(data)+size-1)/size)
	for off := 0; off < len(data); off += size {
		end := off + size
		if end > len(data) {
			end = len(data)
		}
		chunk := make([]byte, end-off)
		copy(chunk, data[off:end])
		chunks = append(chunks, chunk)
	}
	return chunks, nil
}
