package httpproto

import (
	"bytes"
	"net"
	"strings"
	"time"

	"golang.org/x/net/http/httpguts"

	"github.com/embedweb/ioweb/headers"
)

// maxHeaderBlock bounds the request-line-plus-headers scan; exceeding it
// without finding the blank-line sentinel is a NetError, not a
// StatusError, since no well-formed client sends headers this large.
const maxHeaderBlock = 16 * 1024

// RequestLine holds the parsed method/URI/version triple from the first line
// of an HTTP/1.x request.
type RequestLine struct {
	Method  string
	Target  string
	Version string
}

// RequestHead is the fully tokenized request line plus header block, handed
// off to the router before any body byte is read.
type RequestHead struct {
	Line    RequestLine
	Headers headers.Header
}

// ReadRequestHead scans buf/conn for the header-terminating blank line
// ("\r\n\r\n"), then tokenizes the request
// line and each header line in place over the returned byte slice.
//
// A zero-length read (the client closed the connection between requests, the
// ordinary keep-alive idle case) is returned as a bare io.EOF, not wrapped in
// a NetError, so the caller can distinguish "no more requests" from
// "malformed request".
func ReadRequestHead(buf *Buffer, conn net.Conn, deadline time.Time) (*RequestHead, error) {
	n, err := buf.ReadUntil(conn, []byte("\r\n\r\n"), maxHeaderBlock, false, deadline)
	if err != nil {
		return nil, err
	}
	block := buf.Take(n)
	lines := splitCRLFLines(block[:len(block)-2]) // drop the final blank line
	if len(lines) == 0 {
		return nil, &NetError{Op: "request-line", Err: errEmptyRequest}
	}

	line, err := parseRequestLine(lines[0])
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

	return &RequestHead{Line: line, Headers: h}, nil
}

func parseRequestLine(raw []byte) (RequestLine, error) {
	s := string(raw)
	parts := strings.SplitN(s, " ", 3)
	if len(parts) != 3 {
		return RequestLine{}, &NetError{Op: "request-line", Err: errMalformedRequestLine}
	}
	return RequestLine{Method: parts[0], Target: parts[1], Version: parts[2]}, nil
}

// splitHeaderLine splits "Name: value" (or "Name:value") into its canonical
// parts. Leading/trailing OWS around the value is trimmed per RFC 7230 §3.2.
// Both halves are validated with httpguts' RFC 7230 token/field-value
// grammar rather than hand-rolled byte checks, rejecting control characters
// and other header-smuggling payloads a loose `:`-split would accept.
func splitHeaderLine(raw []byte) (name, value string, ok bool) {
	idx := bytes.IndexByte(raw, ':')
	if idx <= 0 {
		return "", "", false
	}
	name = string(raw[:idx])
	value = strings.Trim(string(raw[idx+1:]), " \t")
	if !httpguts.ValidHeaderFieldName(name) || !httpguts.ValidHeaderFieldValue(value) {
		return "", "", false
	}
	return name, value, true
}

// splitCRLFLines splits a header block (without its terminating blank line)
// into individual "\r\n"-delimited lines.
func splitCRLFLines(block []byte) [][]byte {
	var lines [][]byte
	for len(block) > 0 {
		idx := bytes.Index(block, []byte("\r\n"))
		if idx < 0 {
			lines = append(lines, block)
			break
		}
		lines = append(lines, block[:idx])
		block = block[idx+2:]
	}
	return lines
}

var errEmptyRequest = &simpleErr{"empty request line"}
var errMalformedRequestLine = &simpleErr{"malformed request line"}
var errMalformedHeader = &simpleErr{"malformed header line"}

type simpleErr struct{ msg string }

func (e *simpleErr) Error() string { return e.msg }
