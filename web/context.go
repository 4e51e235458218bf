package web

import (
	"bytes"
	"io"
	"strconv"

	"github.com/embedweb/ioweb/compress"
	"github.com/embedweb/ioweb/headers"
	"github.com/embedweb/ioweb/httpproto"
	"github.com/embedweb/ioweb/session"
	"github.com/embedweb/ioweb/upload"
)

// Context is the per-request handle an action (compiled-in or scripted)
// operates on: a read view of the request plus the one-shot response
// writer. It is valid only for the duration of one request and must not be
// retained past the handler call that received it.
type Context struct {
	Method   string
	Path     string
	Query    map[string]string
	RawQuery string
	Hash     string
	Headers  headers.Header

	Role     string
	Username string
	Auth     *session.Authenticator
	Session  *session.Session
	Uploads  []*upload.File

	// Form holds the decoded application/x-www-form-urlencoded body:
	// split on &, each key[=value] pair decoded and stored, nil unless
	// the request's Content-Type matched.
	Form map[string]string
	// JSON holds the decoded application/json body, nil unless the
	// request's Content-Type matched. encoding/json is consumed here
	// rather than this package implementing its own JSON grammar.
	JSON interface{}

	body       io.Reader
	bodyBuffer []byte

	resp       *httpproto.ResponseWriter
	respHeader headers.Header
	encoding   compress.Encoding
	written    bool
}

func newContext(resp *httpproto.ResponseWriter, body io.Reader, acceptEncoding string) *Context {
	return &Context{
		body:     body,
		resp:     resp,
		encoding: compress.Negotiate(acceptEncoding),
	}
}

// credentialInput reads "username"/"password" from whichever body the
// request actually sent: form-encoded, JSON object, or (least preferred)
// the query string.
func (c *Context) credentialInput() (username, password string) {
	if c.Form != nil {
		return c.Form["username"], c.Form["password"]
	}
	if obj, ok := c.JSON.(map[string]interface{}); ok {
		u, _ := obj["username"].(string)
		p, _ := obj["password"].(string)
		return u, p
	}
	return c.Query["username"], c.Query["password"]
}

func (c *Context) headerMap() map[string]string {
	m := make(map[string]string)
	c.Headers.Each(func(k, v string) { m[k] = v })
	return m
}

// SetHeader queues a response header, added before the status line is
// written. Calling it after the head has already been written has no
// effect.
func (c *Context) SetHeader(key, value string) {
	c.respHeader.Set(key, value)
}

// Read reads the next chunk of request body: straight off the wire on a
// streaming route, from the already-buffered copy otherwise. Used by
// handlers that parse the body themselves.
func (c *Context) Read(p []byte) (int, error) {
	if c.body == nil {
		return 0, io.EOF
	}
	return c.body.Read(p)
}

// WriteStatus writes a status line with an empty body.
func (c *Context) WriteStatus(code int) error {
	c.respHeader.Set("Content-Length", "0")
	return c.writeHead(code)
}

// WriteString writes a status line and a plain-text body, applying whatever
// encoding Negotiate selected for the request's Accept-Encoding.
func (c *Context) WriteString(code int, body string) error {
	if !c.respHeader.Has("Content-Type") {
		c.respHeader.Set("Content-Type", "text/plain; charset=utf-8")
	}
	return c.writeBody(code, []byte(body))
}

// WriteJSON writes a status line and a pre-encoded JSON body.
func (c *Context) WriteJSON(code int, body []byte) error {
	if !c.respHeader.Has("Content-Type") {
		c.respHeader.Set("Content-Type", "application/json")
	}
	return c.writeBody(code, body)
}

// WriteBytes writes a status line and an arbitrary body with whatever
// Content-Type the caller already set via SetHeader.
func (c *Context) WriteBytes(code int, body []byte) error {
	return c.writeBody(code, body)
}

// WriteFile streams r as the response body with a known size, bypassing
// compression and the whole-body buffering writeBody does: a file handler
// already knows the exact byte count and the document may be far larger
// than is sensible to hold in memory twice.
func (c *Context) WriteFile(code int, size int64, r io.Reader) error {
	c.respHeader.Set("Content-Length", strconv.FormatInt(size, 10))
	c.written = true
	if err := c.resp.WriteHead(code, &c.respHeader); err != nil {
		return err
	}
	if _, err := io.Copy(c.resp, r); err != nil {
		return err
	}
	return c.resp.Finalize()
}

// Written reports whether a response head has already been written on this
// Context, so the connection loop can tell a handler that forgot to respond
// apart from one whose response failed partway through.
func (c *Context) Written() bool { return c.written }

func (c *Context) writeHead(code int) error {
	c.written = true
	return c.resp.WriteHead(code, &c.respHeader)
}

// writeBody compresses body per the negotiated encoding (unless the handler
// already set an explicit Content-Encoding) and writes it length-framed, so
// the client never sees chunked framing for a buffered response.
func (c *Context) writeBody(code int, body []byte) error {
	if c.encoding != compress.Identity && !c.respHeader.Has("Content-Encoding") {
		compressed, err := compressAll(body, c.encoding)
		if err != nil {
			return err
		}
		body = compressed
		c.respHeader.Set("Content-Encoding", string(c.encoding))
	}
	c.respHeader.Set("Content-Length", strconv.Itoa(len(body)))
	c.written = true
	if err := c.resp.WriteHead(code, &c.respHeader); err != nil {
		return err
	}
	if len(body) == 0 {
		return c.resp.Finalize()
	}
	if _, err := c.resp.Write(body); err != nil {
		return err
	}
	return c.resp.Finalize()
}

func compressAll(body []byte, enc compress.Encoding) ([]byte, error) {
	var buf bytes.Buffer
	w, err := compress.NewWriter(&buf, enc)
	if err != nil {
		return nil, err
	}
	if _, err := w.Write(body); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
