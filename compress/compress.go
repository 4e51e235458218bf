// Package compress negotiates and applies response Content-Encoding, per
// the Accept-Encoding preference order a request supplies.
package compress

import (
	"io"
	"strconv"
	"strings"

	"github.com/andybalholm/brotli"
	"github.com/klauspost/compress/flate"
	"github.com/klauspost/compress/gzip"
)

// Encoding is a supported Content-Encoding token.
type Encoding string

const (
	Identity Encoding = ""
	Gzip     Encoding = "gzip"
	Deflate  Encoding = "deflate"
	Br       Encoding = "br"
)

// Negotiate picks the best encoding from an Accept-Encoding header value,
// preferring br > gzip > deflate, and honoring an explicit "identity" or
// "*;q=0" exclusion. An empty or absent header yields Identity.
func Negotiate(acceptEncoding string) Encoding {
	if acceptEncoding == "" {
		return Identity
	}
	offered := make(map[Encoding]bool)
	for _, part := range strings.Split(acceptEncoding, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		name := part
		if idx := strings.IndexByte(part, ';'); idx >= 0 {
			name = strings.TrimSpace(part[:idx])
			excluded := false
			for _, param := range strings.Split(part[idx+1:], ";") {
				k, v, _ := strings.Cut(strings.TrimSpace(param), "=")
				if strings.EqualFold(strings.TrimSpace(k), "q") {
					if q, err := strconv.ParseFloat(strings.TrimSpace(v), 64); err == nil && q == 0 {
						excluded = true
					}
				}
			}
			if excluded {
				continue
			}
		}
		offered[Encoding(strings.ToLower(name))] = true
	}
	switch {
	case offered[Br]:
		return Br
	case offered[Gzip]:
		return Gzip
	case offered[Deflate]:
		return Deflate
	default:
		return Identity
	}
}

// NewWriter wraps dst with an encoder for enc, or returns dst unchanged for
// Identity. The caller must Close the returned writer (a no-op for
// Identity) to flush any trailer.
func NewWriter(dst io.Writer, enc Encoding) (io.WriteCloser, error) {
	switch enc {
	case Gzip:
		return gzip.NewWriter(dst), nil
	case Deflate:
		return flate.NewWriter(dst, flate.DefaultCompression)
	case Br:
		return brotli.NewWriter(dst), nil
	default:
		return nopCloser{dst}, nil
	}
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }
