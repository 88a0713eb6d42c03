// Package decompress converts gzip-compressed dictionary payloads back to raw bytes.
//
// The transform is pure and stateless. Malformed input (bad header, corrupt
// deflate data, checksum mismatch, truncation or trailing garbage) always
// fails with ErrMalformed in the error chain.
package decompress

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
)

// ErrMalformed is returned when the input is not a well-formed gzip stream.
var ErrMalformed = errors.New("malformed gzip stream")

// Gunzip decompresses a complete gzip stream held in memory.
// Concatenated gzip members are decoded as one stream, matching gzip(1).
func Gunzip(compressed []byte) ([]byte, error) {
	zr, err := gzip.NewReader(bytes.NewReader(compressed))
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}
	defer zr.Close()

	var out bytes.Buffer
	// Compressed dictionaries typically expand 3-5x.
	out.Grow(len(compressed) * 4)
	if _, err := io.Copy(&out, zr); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformed, err)
	}

	return out.Bytes(), nil
}

// Gzip compresses raw bytes with the default compression level.
func Gzip(raw []byte) ([]byte, error) {
	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(raw); err != nil {
		return nil, fmt.Errorf("failed to compress: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("failed to finish gzip stream: %w", err)
	}
	return buf.Bytes(), nil
}
