// Package codec packs submission payloads for storage: gzip, then base64, with
// a SHA-256 digest kept alongside for integrity checks.
package codec

import (
	"bytes"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"fmt"
	"io"

	"github.com/klauspost/compress/gzip"
)

var ErrCorruptArtifact = errors.New("corrupt artifact")

// CompressEncode gzips data and returns it base64 encoded. The gzip header
// carries no name or modification time, so output depends only on data.
func CompressEncode(data []byte) (string, error) {
	var buf bytes.Buffer
	zw, err := gzip.NewWriterLevel(&buf, gzip.BestCompression)
	if err != nil {
		return "", fmt.Errorf("failed to create gzip writer: %w", err)
	}
	if _, err := zw.Write(data); err != nil {
		return "", fmt.Errorf("failed to compress artifact: %w", err)
	}
	if err := zw.Close(); err != nil {
		return "", fmt.Errorf("failed to finish gzip stream: %w", err)
	}
	return base64.StdEncoding.EncodeToString(buf.Bytes()), nil
}

// CompressEncodeString is CompressEncode for text payloads.
func CompressEncodeString(text string) (string, error) {
	return CompressEncode([]byte(text))
}

// DecodeDecompress is the exact inverse of CompressEncode.
func DecodeDecompress(encoded string) ([]byte, error) {
	raw, err := base64.StdEncoding.DecodeString(encoded)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid base64: %v", ErrCorruptArtifact, err)
	}
	zr, err := gzip.NewReader(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: invalid gzip header: %v", ErrCorruptArtifact, err)
	}
	defer zr.Close()

	out, err := io.ReadAll(zr)
	if err != nil {
		return nil, fmt.Errorf("%w: invalid gzip stream: %v", ErrCorruptArtifact, err)
	}
	return out, nil
}

// Digest returns the lowercase hex SHA-256 of data (64 characters).
func Digest(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}

// DigestString is Digest for text payloads.
func DigestString(text string) string {
	return Digest([]byte(text))
}

// Verify decodes encoded and checks it against wantSHA.
func Verify(encoded, wantSHA string) ([]byte, error) {
	data, err := DecodeDecompress(encoded)
	if err != nil {
		return nil, err
	}
	if got := Digest(data); got != wantSHA {
		return nil, fmt.Errorf("%w: digest mismatch (stored %s, computed %s)", ErrCorruptArtifact, wantSHA, got)
	}
	return data, nil
}
