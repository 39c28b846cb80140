package engine

import (
	"bytes"
	"fmt"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/gzip"
)

// Encoding identifies a negotiated content coding.
type Encoding string

const (
	EncIdentity Encoding = ""
	EncGzip     Encoding = "gzip"
	EncBrotli   Encoding = "br"
)

// minCompressSize is the smallest body worth compressing on the fly.
const minCompressSize = 256

// NegotiateEncoding picks the preferred coding from an Accept-Encoding
// header: brotli, then gzip, then identity.
func NegotiateEncoding(acceptEncoding string) Encoding {
	if strings.Contains(acceptEncoding, "br") {
		return EncBrotli
	}
	if strings.Contains(acceptEncoding, "gzip") {
		return EncGzip
	}
	return EncIdentity
}

func encodeBrotli(body []byte) ([]byte, error) {
	var buf bytes.Buffer
	w := brotli.NewWriterLevel(&buf, brotli.DefaultCompression)
	if _, err := w.Write(body); err != nil {
		return nil, fmt.Errorf("brotli write: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("brotli close: %w", err)
	}
	return buf.Bytes(), nil
}

func encodeGzip(body []byte) ([]byte, error) {
	var buf bytes.Buffer
	w, err := gzip.NewWriterLevel(&buf, gzip.BestCompression)
	if err != nil {
		return nil, fmt.Errorf("gzip writer: %w", err)
	}
	if _, err := w.Write(body); err != nil {
		return nil, fmt.Errorf("gzip write: %w", err)
	}
	if err := w.Close(); err != nil {
		return nil, fmt.Errorf("gzip close: %w", err)
	}
	return buf.Bytes(), nil
}

// encode compresses body with the given coding. Identity returns the
// input unchanged.
func encode(enc Encoding, body []byte) ([]byte, error) {
	switch enc {
	case EncBrotli:
		return encodeBrotli(body)
	case EncGzip:
		return encodeGzip(body)
	}
	return body, nil
}
