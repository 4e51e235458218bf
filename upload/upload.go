// Package upload implements the multipart/form-data streaming parser (spec
// §4.5): boundary scanning, part-header tokenizing, filename sanitization,
// and temp-file streaming with a maxUpload ceiling.
package upload

import (
	"bytes"
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"

	"github.com/embedweb/ioweb/httpproto"
	"github.com/embedweb/ioweb/wire"
)

// ErrBadRequest marks a malformed multipart body (missing boundary, bad
// part headers, bad filename) that should surface as 400.
var ErrBadRequest = errors.New("upload: malformed multipart body")

// ErrTooLarge marks a part whose body exceeds maxUpload; the caller answers
// with 414.
var ErrTooLarge = errors.New("upload: part exceeds maxUpload")

// illegalFilenameChars is the set of bytes rejected in a submitted filename.
const illegalFilenameChars = "\\/:*?<>|~\"'%`\n\r\t\f"

// File is one completed multipart part: either a file (Path set, streamed
// to a temp file) or a form field (Value set, accumulated in memory).
type File struct {
	FieldName   string
	Filename    string
	ContentType string
	Path        string // temp file path, set for file parts
	Value       string // form-field value, set for non-file parts
	Size        int64
}

// Parser streams a multipart/form-data request body directly off the
// connection, never buffering a whole upload in memory.
type Parser struct {
	buf       *httpproto.Buffer
	conn      net.Conn
	deadlines *httpproto.Deadlines
	boundary  []byte // "--" + boundary
	uploadDir string
	maxUpload int64
	maxHeader int
}

// New constructs a Parser for a request whose Content-Type header supplied
// boundary (without the leading "--").
func New(buf *httpproto.Buffer, conn net.Conn, deadlines *httpproto.Deadlines, boundary, uploadDir string, maxUpload int64, maxHeader int) *Parser {
	return &Parser{
		buf:       buf,
		conn:      conn,
		deadlines: deadlines,
		boundary:  []byte("--" + boundary),
		uploadDir: uploadDir,
		maxUpload: maxUpload,
		maxHeader: maxHeader,
	}
}

// ParseAll drives the parser to completion, returning every part in
// encounter order. On error, any temp files already created for prior parts
// remain on disk; the caller is responsible for cleanup via Cleanup.
func (p *Parser) ParseAll() ([]*File, error) {
	var files []*File
	for {
		more, err := p.scanBoundary()
		if err != nil {
			return files, err
		}
		if !more {
			return files, nil
		}
		f, err := p.readPart()
		if err != nil {
			return files, err
		}
		files = append(files, f)
	}
}

// scanBoundary consumes up to and past the next boundary marker, then reads
// the two-byte suffix that distinguishes "another part follows" from the
// terminator.
func (p *Parser) scanBoundary() (more bool, err error) {
	deadline := p.deadlines.Next()
	n, err := p.buf.ReadUntil(p.conn, p.boundary, p.maxHeader, false, deadline)
	if err != nil {
		return false, err
	}
	p.buf.Discard(n)
	p.deadlines.Extend()

	if err := p.buf.EnsureAvailable(p.conn, 2, p.deadlines.Next()); err != nil {
		return false, err
	}
	suffix := p.buf.Take(2)
	switch {
	case bytes.Equal(suffix, []byte("\r\n")):
		return true, nil
	case bytes.Equal(suffix, []byte("--")):
		// Terminator: consume the final CRLF.
		n, err := p.buf.ReadUntil(p.conn, []byte("\r\n"), 2, false, p.deadlines.Next())
		if err != nil {
			return false, err
		}
		p.buf.Discard(n)
		return false, nil
	default:
		return false, fmt.Errorf("%w: bad boundary suffix", ErrBadRequest)
	}
}

// readPart reads one part's headers and body.
func (p *Parser) readPart() (*File, error) {
	deadline := p.deadlines.Next()
	n, err := p.buf.ReadUntil(p.conn, []byte("\r\n\r\n"), p.maxHeader, false, deadline)
	if err != nil {
		return nil, err
	}
	block := p.buf.Take(n)
	p.deadlines.Extend()

	fieldName, filename, contentType, err := parsePartHeaders(block[:len(block)-2])
	if err != nil {
		return nil, err
	}

	if filename == "" {
		value, err := p.readFieldBody()
		if err != nil {
			return nil, err
		}
		return &File{FieldName: fieldName, Value: value, ContentType: contentType}, nil
	}

	if err := sanitizeFilename(filename); err != nil {
		return nil, err
	}

	path, size, err := p.streamToTempFile()
	if err != nil {
		return nil, err
	}
	return &File{FieldName: fieldName, Filename: filename, ContentType: contentType, Path: path, Size: size}, nil
}

// readFieldBody accumulates a non-file part's body in memory until the
// boundary; taken when the part carries no filename.
func (p *Parser) readFieldBody() (string, error) {
	var acc bytes.Buffer
	for {
		deadline := p.deadlines.Next()
		n, err := p.buf.ReadUntil(p.conn, p.boundary, partScanWindow, true, deadline)
		if err != nil {
			return "", err
		}
		if n == 0 {
			avail := p.buf.Len()
			if avail <= 2 {
				continue
			}
			acc.Write(p.buf.Take(avail - 2))
			if p.maxUpload > 0 && int64(acc.Len()) > p.maxUpload {
				return "", ErrTooLarge
			}
			p.deadlines.Extend()
			continue
		}
		// The boundary itself stays buffered for the next scanBoundary.
		data := p.buf.Take(n - len(p.boundary))
		// The two bytes preceding the boundary are the part's own trailing
		// CRLF and are not part of the value.
		if len(data) >= 2 && bytes.HasSuffix(data, []byte("\r\n")) {
			data = data[:len(data)-2]
		}
		acc.Write(data)
		break
	}
	p.deadlines.Extend()
	return wire.PercentDecode(acc.String()), nil
}

// partScanWindow bounds each read-until attempt while streaming a part's
// body to disk; the cap only limits how much unconsumed data can pile up
// before the boundary is found, not the part's total size (maxUpload polices
// that separately as bytes are written to the temp file).
const partScanWindow = 64 * 1024

// streamToTempFile writes a file part's body to a new temp file, enforcing
// maxUpload.
func (p *Parser) streamToTempFile() (path string, size int64, err error) {
	f, err := newTempFile(p.uploadDir)
	if err != nil {
		return "", 0, err
	}
	defer f.Close()

	var total int64
	for {
		deadline := p.deadlines.Next()
		n, err := p.buf.ReadUntil(p.conn, p.boundary, partScanWindow, true, deadline)
		if err != nil {
			os.Remove(f.Name())
			return "", 0, err
		}
		if n == 0 {
			// Boundary not yet visible within the window: flush everything
			// except the last 2 bytes (which may be the CRLF immediately
			// preceding the boundary) and grow the window on the next pass.
			avail := p.buf.Len()
			if avail <= 2 {
				continue
			}
			chunk := p.buf.Take(avail - 2)
			total += int64(len(chunk))
			if p.maxUpload > 0 && total > p.maxUpload {
				os.Remove(f.Name())
				return "", 0, ErrTooLarge
			}
			if _, err := f.Write(chunk); err != nil {
				os.Remove(f.Name())
				return "", 0, err
			}
			p.deadlines.Extend()
			continue
		}

		// Boundary found: everything up to it, minus its own trailing
		// CRLF, is the last of the part's body. The boundary itself stays
		// buffered for the next scanBoundary.
		chunk := p.buf.Take(n - len(p.boundary))
		if len(chunk) >= 2 {
			chunk = chunk[:len(chunk)-2]
		}
		total += int64(len(chunk))
		if p.maxUpload > 0 && total > p.maxUpload {
			os.Remove(f.Name())
			return "", 0, ErrTooLarge
		}
		if _, err := f.Write(chunk); err != nil {
			os.Remove(f.Name())
			return "", 0, err
		}
		p.deadlines.Extend()
		return f.Name(), total, nil
	}
}

func parsePartHeaders(block []byte) (fieldName, filename, contentType string, err error) {
	for _, line := range splitCRLF(block) {
		if len(line) == 0 {
			continue
		}
		idx := bytes.IndexByte(line, ':')
		if idx <= 0 {
			continue
		}
		name := strings.ToLower(string(bytes.TrimSpace(line[:idx])))
		value := strings.TrimSpace(string(line[idx+1:]))
		switch name {
		case "content-disposition":
			fieldName = dispositionParam(value, "name")
			filename = dispositionParam(value, "filename")
		case "content-type":
			contentType = value
		}
	}
	if fieldName == "" && filename == "" {
		return "", "", "", fmt.Errorf("%w: part missing name and filename", ErrBadRequest)
	}
	return fieldName, filename, contentType, nil
}

func dispositionParam(header, key string) string {
	marker := key + "="
	idx := strings.Index(header, marker)
	if idx < 0 {
		return ""
	}
	rest := header[idx+len(marker):]
	if len(rest) > 0 && rest[0] == '"' {
		end := strings.IndexByte(rest[1:], '"')
		if end < 0 {
			return ""
		}
		return rest[1 : end+1]
	}
	end := strings.IndexAny(rest, ";")
	if end < 0 {
		return rest
	}
	return rest[:end]
}

func splitCRLF(block []byte) [][]byte {
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

// sanitizeFilename rejects path traversal and illegal characters in a
// submitted filename.
func sanitizeFilename(filename string) error {
	normalized, ok := wire.NormalizePath("/" + filename)
	if !ok {
		return fmt.Errorf("%w: bad filename", ErrBadRequest)
	}
	base := filepath.Base(normalized)
	if strings.HasPrefix(base, ".") {
		return fmt.Errorf("%w: filename begins with '.'", ErrBadRequest)
	}
	for i := 0; i < len(base); i++ {
		if !wire.IsURILegal(base[i]) {
			return fmt.Errorf("%w: filename fails URI validation", ErrBadRequest)
		}
	}
	if strings.ContainsAny(base, illegalFilenameChars) {
		return fmt.Errorf("%w: filename contains illegal character", ErrBadRequest)
	}
	return nil
}

func newTempFile(dir string) (*os.File, error) {
	var nonce [8]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return nil, err
	}
	name := filepath.Join(dir, "upload-"+hex.EncodeToString(nonce[:])+".tmp")
	return os.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
}

// Cleanup unlinks every file part's temp file, called on Web destroy (spec
// §4.5: "on Web destroy, unlink each upload's temp file").
func Cleanup(files []*File) {
	for _, f := range files {
		if f.Path != "" {
			os.Remove(f.Path)
		}
	}
}
