// Package httpproto implements the wire-level request/response state machine
// shared by the server's per-connection Web and the client's Url: header
// tokenizing, chunked transfer-encoding, length-framed bodies, and the
// bounded read-until primitive used by both header parsing and multipart
// boundary scanning.
//
// Nothing in this package performs routing, auth, or file I/O — it only
// understands the bytes on the wire. The failure taxonomy below mirrors the
// embedded server's: a NetError means the connection is compromised and must
// be closed with no response; a StatusError carries a response status that
// the caller is still expected to write.
package httpproto

import "fmt"

// NetError indicates a connection-compromising failure — malformed request
// line/headers, a bad URL, a header block that exceeds the header cap, or a
// raw socket error. The caller must close the socket and send no response.
type NetError struct {
	Op  string
	Err error
}

func (e *NetError) Error() string {
	if e.Err == nil {
		return "httpproto: network error: " + e.Op
	}
	return fmt.Sprintf("httpproto: network error: %s: %v", e.Op, e.Err)
}

func (e *NetError) Unwrap() error { return e.Err }

// StatusError carries an HTTP status the caller should write in response,
// e.g. 404 for an unmatched route or 413 for an oversize body. Unlike
// NetError, the connection may still be reused for the next request.
type StatusError struct {
	Code int
	Msg  string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("httpproto: status %d: %s", e.Code, e.Msg)
}

// errTooBig is wrapped into a NetError when a bounded read-until scan
// exceeds its cap without finding the pattern and short reads are
// disallowed (e.g. the header boundary exceeding maxHeader).
var errTooBig = fmt.Errorf("pattern not found within cap")

// errWriteAfterFinalize guards against a handler writing to a ChunkWriter
// after its terminating chunk has already been sent.
var errWriteAfterFinalize = fmt.Errorf("httpproto: write after chunk finalize")
