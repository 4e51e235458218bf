package httpproto

import (
	"bytes"
	"errors"
	"io"
	"net"
	"time"
)

// fillChunkSize is how many bytes Buffer asks the socket for on each grow.
const fillChunkSize = 4096

// Buffer accumulates bytes read from a connection, retaining unconsumed data
// across calls so that a pipelined request's leading bytes (read while
// scanning for the previous request's header boundary) survive into the next
// request. It implements the "in-place tokenization" contract from the
// source as slice boundaries over a single growing byte slice rather than by
// mutating separators in place — §9's suggested systems-language
// equivalent.
type Buffer struct {
	data []byte
}

// Len returns the number of unconsumed bytes currently buffered.
func (b *Buffer) Len() int { return len(b.data) }

// Bytes returns the unconsumed data. The caller must not retain the slice
// past the next call to Take, Discard, or ReadUntil.
func (b *Buffer) Bytes() []byte { return b.data }

// Take removes and returns a copy of the first n bytes.
func (b *Buffer) Take(n int) []byte {
	out := make([]byte, n)
	copy(out, b.data[:n])
	b.data = b.data[n:]
	return out
}

// Discard removes the first n bytes without copying them.
func (b *Buffer) Discard(n int) {
	b.data = b.data[n:]
}

// Prepend reinserts bytes at the front of the buffer; used when a body
// reader has pulled more than the caller asked for and must push the excess
// back for the next Read.
func (b *Buffer) Prepend(p []byte) {
	if len(p) == 0 {
		return
	}
	b.data = append(append([]byte{}, p...), b.data...)
}

// fill reads up to fillChunkSize more bytes from conn into the buffer,
// honoring deadline. It returns the number of bytes appended.
func (b *Buffer) fill(conn net.Conn, deadline time.Time) (int, error) {
	if err := conn.SetReadDeadline(deadline); err != nil {
		return 0, err
	}
	tmp := make([]byte, fillChunkSize)
	n, err := conn.Read(tmp)
	if n > 0 {
		b.data = append(b.data, tmp[:n]...)
	}
	return n, err
}

// ReadUntil grows the buffer from conn until pattern appears or the
// accumulated length reaches capLimit. On success it returns the length from
// the start of the buffer through the end of the first occurrence of
// pattern (the caller then calls Take(n) to consume it). If the pattern is
// not found within capLimit:
//   - allowShort true  -> returns (0, nil): the caller should try again once
//     more data may be available (used by the multipart part-body scan).
//   - allowShort false -> returns (0, NetError) if capLimit was reached, or
//     propagates the underlying socket error / io.EOF otherwise.
func (b *Buffer) ReadUntil(conn net.Conn, pattern []byte, capLimit int, allowShort bool, deadline time.Time) (int, error) {
	for {
		if idx := bytes.Index(b.data, pattern); idx >= 0 {
			return idx + len(pattern), nil
		}
		if len(b.data) >= capLimit {
			if allowShort {
				return 0, nil
			}
			return 0, &NetError{Op: "read-until", Err: errTooBig}
		}
		n, err := b.fill(conn, deadline)
		if n == 0 {
			if err == nil {
				return 0, &NetError{Op: "read-until", Err: io.ErrNoProgress}
			}
			if errors.Is(err, io.EOF) {
				return 0, io.EOF
			}
			return 0, &NetError{Op: "read-until", Err: err}
		}
	}
}

// EnsureAvailable blocks, reading from conn, until at least n bytes are
// buffered or a socket error/EOF occurs. Used by the length- and
// chunk-framed body readers to satisfy a caller's read request.
func (b *Buffer) EnsureAvailable(conn net.Conn, n int, deadline time.Time) error {
	for len(b.data) < n {
		if _, err := b.fill(conn, deadline); err != nil {
			if errors.Is(err, io.EOF) {
				return io.EOF
			}
			return &NetError{Op: "read", Err: err}
		}
	}
	return nil
}
