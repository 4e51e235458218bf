package httpproto

import (
	"bytes"
	"io"
	"net"
	"strconv"
)

// chunkPhase is the Transfer-Encoding: chunked decoder state.
type chunkPhase int

const (
	chunkOff chunkPhase = iota
	chunkStart
	chunkData
)

const maxChunkLineLen = 32

// ChunkReader decodes a chunked request/response body, satisfying Read calls
// against the shared rx Buffer and underlying socket. The same state machine
// serves the server (decoding a chunked request body) and the client
// (decoding a chunked response body).
type ChunkReader struct {
	buf       *Buffer
	conn      net.Conn
	deadlines *Deadlines
	phase     chunkPhase
	remaining int64
	done      bool
}

// NewChunkReader begins decoding a chunked body whose bytes (if any have
// already been buffered past the header boundary) live in buf.
func NewChunkReader(buf *Buffer, conn net.Conn, deadlines *Deadlines) *ChunkReader {
	return &ChunkReader{buf: buf, conn: conn, deadlines: deadlines, phase: chunkStart}
}

// Read implements the chunked half of the read pipeline. It returns
// (0, io.EOF) once the terminating zero-length chunk has been consumed.
func (c *ChunkReader) Read(p []byte) (int, error) {
	if c.done {
		return 0, io.EOF
	}
	if c.phase == chunkStart {
		if err := c.readChunkStart(); err != nil {
			return 0, err
		}
		if c.done {
			return 0, io.EOF
		}
	}
	toRead := len(p)
	if int64(toRead) > c.remaining {
		toRead = int(c.remaining)
	}
	if toRead == 0 {
		return 0, nil
	}
	deadline := c.deadlines.Next()
	if err := c.buf.EnsureAvailable(c.conn, toRead, deadline); err != nil {
		return 0, err
	}
	c.deadlines.Extend()
	copy(p, c.buf.Take(toRead))
	c.remaining -= int64(toRead)
	if c.remaining == 0 {
		// Consume the chunk's trailing CRLF.
		n, err := c.buf.ReadUntil(c.conn, []byte("\r\n"), 2, false, c.deadlines.Next())
		if err != nil {
			return toRead, err
		}
		c.buf.Discard(n)
		c.phase = chunkStart
	}
	return toRead, nil
}

func (c *ChunkReader) readChunkStart() error {
	deadline := c.deadlines.Next()
	n, err := c.buf.ReadUntil(c.conn, []byte("\r\n"), maxChunkLineLen, false, deadline)
	if err != nil {
		return err
	}
	c.deadlines.Extend()
	line := c.buf.Take(n)
	// Strip the trailing CRLF and any chunk-extension after ';'.
	sizeField := line[:len(line)-2]
	if i := bytes.IndexByte(sizeField, ';'); i >= 0 {
		sizeField = sizeField[:i]
	}
	size, err := strconv.ParseInt(string(sizeField), 16, 64)
	if err != nil {
		return &NetError{Op: "chunk-size", Err: err}
	}
	if size == 0 {
		n, err := c.buf.ReadUntil(c.conn, []byte("\r\n"), 2, false, c.deadlines.Next())
		if err != nil {
			return err
		}
		c.buf.Discard(n)
		c.done = true
		return nil
	}
	c.remaining = size
	c.phase = chunkData
	return nil
}

// ChunkWriter encodes the response/request body using Transfer-Encoding:
// chunked: before each write after the first, emit \r\n<hex>\r\n; a
// zero-length write emits the terminator \r\n0\r\n\r\n.
//
// The first chunk's prefix has no leading CRLF (it is just <hex>\r\n), and a
// terminator written before any chunk is just 0\r\n\r\n, so the blank line
// ending the header block must already be on the wire when the first chunk
// or terminator is written.
type ChunkWriter struct {
	conn      net.Conn
	wroteAny  bool
	finalized bool
}

// NewChunkWriter wraps conn for chunked output.
func NewChunkWriter(conn net.Conn) *ChunkWriter {
	return &ChunkWriter{conn: conn}
}

// Write emits one chunk containing p. A zero-length Write is equivalent to
// calling Finalize.
func (w *ChunkWriter) Write(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, w.Finalize()
	}
	if w.finalized {
		return 0, &NetError{Op: "chunk-write", Err: errWriteAfterFinalize}
	}
	prefix := "\r\n" + strconv.FormatInt(int64(len(p)), 16) + "\r\n"
	if !w.wroteAny {
		// No chunk precedes this one, so there is no CRLF to close first.
		prefix = strconv.FormatInt(int64(len(p)), 16) + "\r\n"
		w.wroteAny = true
	}
	if _, err := w.conn.Write([]byte(prefix)); err != nil {
		return 0, &NetError{Op: "chunk-write", Err: err}
	}
	n, err := w.conn.Write(p)
	if err != nil {
		return n, &NetError{Op: "chunk-write", Err: err}
	}
	return n, nil
}

// Finalize writes the terminating zero-length chunk. Calling it more than
// once is a no-op.
func (w *ChunkWriter) Finalize() error {
	if w.finalized {
		return nil
	}
	w.finalized = true
	term := "\r\n0\r\n\r\n"
	if !w.wroteAny {
		term = "0\r\n\r\n"
		w.wroteAny = true
	}
	if _, err := w.conn.Write([]byte(term)); err != nil {
		return &NetError{Op: "chunk-finalize", Err: err}
	}
	return nil
}
