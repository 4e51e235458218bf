package httpproto

import (
	"bytes"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/embedweb/ioweb/headers"
)

// maxStatusLine bounds the client's scan for a response status line; no
// legitimate server's status line approaches this.
const maxStatusLine = 1024

// StatusLine holds the parsed version/code/reason from a response's first
// line, used by the URL client reading a response from a Web server.
type StatusLine struct {
	Version string
	Code    int
	Reason  string
}

// ResponseHead is the client-side counterpart of RequestHead: the tokenized
// status line plus header block of a response read off the wire.
type ResponseHead struct {
	Line    StatusLine
	Headers headers.Header
}

// ReadResponseHead scans buf/conn for the header-terminating blank line and
// tokenizes the status line and header block, mirroring ReadRequestHead on
// the client side of the connection.
func ReadResponseHead(buf *Buffer, conn net.Conn, deadline time.Time) (*ResponseHead, error) {
	n, err := buf.ReadUntil(conn, []byte("\r\n\r\n"), maxHeaderBlock, false, deadline)
	if err != nil {
		return nil, err
	}
	block := buf.Take(n)
	lines := splitCRLFLines(block[:len(block)-2])
	if len(lines) == 0 {
		return nil, &NetError{Op: "status-line", Err: errEmptyRequest}
	}

	line, err := parseStatusLine(lines[0])
	if err != nil {
		return nil, err
	}

	var h headers.Header
	for _, raw := range lines[1:] {
		if len(raw) == 0 {
			continue
		}
		name, value, ok := splitHeaderLine(raw)
		if !ok {
			return nil, &NetError{Op: "header-line", Err: errMalformedHeader}
		}
		h.Add(name, value)
	}

	return &ResponseHead{Line: line, Headers: h}, nil
}

func parseStatusLine(raw []byte) (StatusLine, error) {
	s := string(raw)
	parts := strings.SplitN(s, " ", 3)
	if len(parts) < 2 {
		return StatusLine{}, &NetError{Op: "status-line", Err: errMalformedRequestLine}
	}
	code, err := strconv.Atoi(parts[1])
	if err != nil {
		return StatusLine{}, &NetError{Op: "status-line", Err: err}
	}
	reason := ""
	if len(parts) == 3 {
		reason = parts[2]
	}
	return StatusLine{Version: parts[0], Code: code, Reason: reason}, nil
}

// ResponseWriter assembles and writes a response's status line, headers, and
// body to conn. Headers are accumulated in a Header and only serialized
// once WriteHead is called, at which point the framing (Content-Length vs
// chunked) is fixed for the rest of the response.
type ResponseWriter struct {
	conn    net.Conn
	wrote   bool
	chunked *ChunkWriter
}

// NewResponseWriter wraps conn for writing a single response.
func NewResponseWriter(conn net.Conn) *ResponseWriter {
	return &ResponseWriter{conn: conn}
}

// WriteHead serializes the status line and headers in insertion order. If
// h has no Content-Length, WriteHead adds Transfer-Encoding: chunked and
// switches subsequent Write calls to chunked framing, unless code is one of
// the statuses that never carries a body (1xx, 204, 304), which are always
// sent without either Content-Length or chunked framing.
func (w *ResponseWriter) WriteHead(code int, h *headers.Header) error {
	if w.wrote {
		return &NetError{Op: "write-head", Err: errHeadAlreadyWritten}
	}
	w.wrote = true

	noBody := code < 200 || code == 204 || code == 304
	useChunked := !noBody && !h.Has("Content-Length")
	if useChunked {
		h.Set("Transfer-Encoding", "chunked")
	}
	if noBody {
		h.Del("Content-Length")
	}

	var buf bytes.Buffer
	buf.WriteString("HTTP/1.1 ")
	buf.WriteString(strconv.Itoa(code))
	buf.WriteByte(' ')
	buf.WriteString(StatusText(code))
	buf.WriteString("\r\n")
	h.Each(func(k, v string) {
		buf.WriteString(k)
		buf.WriteString(": ")
		buf.WriteString(v)
		buf.WriteString("\r\n")
	})
	buf.WriteString("\r\n")

	if _, err := w.conn.Write(buf.Bytes()); err != nil {
		return &NetError{Op: "write-head", Err: err}
	}

	if useChunked {
		w.chunked = NewChunkWriter(w.conn)
	}
	return nil
}

// Write sends p as body bytes, routed through chunked framing if WriteHead
// determined the response has no fixed Content-Length.
func (w *ResponseWriter) Write(p []byte) (int, error) {
	if !w.wrote {
		return 0, &NetError{Op: "write", Err: errHeadNotWritten}
	}
	if w.chunked != nil {
		return w.chunked.Write(p)
	}
	n, err := w.conn.Write(p)
	if err != nil {
		return n, &NetError{Op: "write", Err: err}
	}
	return n, nil
}

// Finalize completes a chunked response by writing its terminating chunk.
// It is a no-op for length-framed responses.
func (w *ResponseWriter) Finalize() error {
	if w.chunked != nil {
		return w.chunked.Finalize()
	}
	return nil
}

var errHeadAlreadyWritten = &simpleErr{"response head already written"}
var errHeadNotWritten = &simpleErr{"response head not written"}
