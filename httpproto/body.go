package httpproto

import (
	"io"
	"net"
)

// LengthReader satisfies Read calls against a body of a known fixed size
// (Content-Length), the counterpart of ChunkReader for non-chunked bodies.
type LengthReader struct {
	buf       *Buffer
	conn      net.Conn
	deadlines *Deadlines
	remaining int64
}

// NewLengthReader begins reading a body of exactly size bytes.
func NewLengthReader(buf *Buffer, conn net.Conn, deadlines *Deadlines, size int64) *LengthReader {
	return &LengthReader{buf: buf, conn: conn, deadlines: deadlines, remaining: size}
}

func (r *LengthReader) Read(p []byte) (int, error) {
	if r.remaining == 0 {
		return 0, io.EOF
	}
	toRead := len(p)
	if int64(toRead) > r.remaining {
		toRead = int(r.remaining)
	}
	if toRead == 0 {
		return 0, nil
	}
	deadline := r.deadlines.Next()
	if err := r.buf.EnsureAvailable(r.conn, toRead, deadline); err != nil {
		return 0, err
	}
	r.deadlines.Extend()
	copy(p, r.buf.Take(toRead))
	r.remaining -= int64(toRead)
	return toRead, nil
}

// Remaining reports how many bytes are still unread.
func (r *LengthReader) Remaining() int64 { return r.remaining }

// BodyReader picks the appropriate framing for a request/response body based
// on its headers: Transfer-Encoding: chunked takes precedence over
// Content-Length; the absence of both means no body (or, for
// a response, "read until EOF", which callers handle by checking for a nil
// return and falling back to the raw connection themselves).
func BodyReader(buf *Buffer, conn net.Conn, deadlines *Deadlines, transferEncoding, contentLength string) (io.Reader, error) {
	if transferEncoding == "chunked" {
		return NewChunkReader(buf, conn, deadlines), nil
	}
	if contentLength == "" {
		return nil, nil
	}
	size, err := parseContentLength(contentLength)
	if err != nil {
		return nil, &NetError{Op: "content-length", Err: err}
	}
	return NewLengthReader(buf, conn, deadlines, size), nil
}

func parseContentLength(s string) (int64, error) {
	var n int64
	if len(s) == 0 {
		return 0, errMalformedHeader
	}
	for _, c := range []byte(s) {
		if c < '0' || c > '9' {
			return 0, errMalformedHeader
		}
		n = n*10 + int64(c-'0')
	}
	return n, nil
}
