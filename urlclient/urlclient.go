// Package urlclient implements the matching client side of httpproto's wire
// protocol: a socket-owning Url that mirrors the server's state machine in
// reverse (request out, response in), reusing the connection across
// requests to the same origin where possible.
package urlclient

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/net/publicsuffix"

	"github.com/embedweb/ioweb/headers"
	"github.com/embedweb/ioweb/httpproto"
)

// Dialer establishes network+TLS connections for a Url. tlsprofile.Dialer
// satisfies this for TLS origins; plain TCP uses net.Dialer.DialContext.
type Dialer func(ctx context.Context, network, addr string) (net.Conn, error)

// Options configures a Url's connection and retry behavior.
type Options struct {
	Retries        int
	RequestTimeout time.Duration
	Inactivity     time.Duration
	MaxHeader      int
	TLSDialer      Dialer // used when a request's scheme is https
	Jar            http.CookieJar
}

// Url owns one socket, its rx buffer, and the parsed state of the most
// recent request/response pair. It may be reused across multiple requests
// to the same origin (spec: "reuse the existing socket iff scheme, host,
// and port are unchanged and the socket is still open").
type Url struct {
	opts Options
	dial Dialer

	conn   net.Conn
	buf    *httpproto.Buffer
	scheme string
	host   string
	port   string

	method      string
	reqHeaders  headers.Header
	txLen       int64
	chunkWriter *httpproto.ChunkWriter

	deadlines *httpproto.Deadlines

	status      int
	respHeaders headers.Header
	bodyReader  io.Reader
	location    string
	connClose   bool
}

// New creates a Url with the given options. A nil TLSDialer causes Start to
// fail for https origins rather than silently downgrading to plaintext.
func New(opts Options) *Url {
	if opts.Retries == 0 {
		opts.Retries = 2
	}
	if opts.RequestTimeout == 0 {
		opts.RequestTimeout = 30 * time.Second
	}
	if opts.Inactivity == 0 {
		opts.Inactivity = 10 * time.Second
	}
	if opts.MaxHeader == 0 {
		opts.MaxHeader = 16 * 1024
	}
	return &Url{opts: opts, dial: opts.TLSDialer}
}

// NewJar builds a public-suffix-aware cookie jar, wired to the public-suffix
// list so cookies never leak across effective top-level domains.
func NewJar() (http.CookieJar, error) {
	jar, err := cookiejar.New(&cookiejar.Options{PublicSuffixList: publicsuffix.List})
	if err != nil {
		return nil, fmt.Errorf("urlclient: create cookie jar: %w", err)
	}
	return jar, nil
}

// Start parses uri, reusing the existing socket iff one is held and
// scheme/host/port are unchanged, otherwise dialing fresh. Whether the peer
// has since closed the held socket is not checked. txLen
// is the request body length the caller intends to send (-1 selects
// chunked transfer). The request line is written immediately; call
// WriteHeaders next.
func (u *Url) Start(ctx context.Context, method, rawURL string, txLen int64) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("urlclient: parse url %q: %w", rawURL, err)
	}
	scheme := strings.ToLower(parsed.Scheme)
	host := parsed.Hostname()
	port := parsed.Port()
	if port == "" {
		if scheme == "https" {
			port = "443"
		} else {
			port = "80"
		}
	}

	if u.conn == nil || u.scheme != scheme || u.host != host || u.port != port {
		if u.conn != nil {
			u.conn.Close()
		}
		conn, err := u.dialFor(ctx, scheme, net.JoinHostPort(host, port))
		if err != nil {
			return err
		}
		u.conn = conn
		u.scheme, u.host, u.port = scheme, host, port
		u.buf = &httpproto.Buffer{}
	}

	u.method = strings.ToUpper(method)
	u.deadlines = &httpproto.Deadlines{Started: time.Now(), Inactivity: u.opts.Inactivity, RequestTimeout: u.opts.RequestTimeout}
	u.chunkWriter = nil
	u.txLen = txLen

	u.reqHeaders.Reset()
	u.reqHeaders.Set("Host", hostHeader(host, port, scheme))
	if u.opts.Jar != nil {
		if cookies := u.opts.Jar.Cookies(u.requestURL()); len(cookies) > 0 {
			u.reqHeaders.Set("Cookie", joinCookies(cookies))
		}
	}
	if txLen >= 0 {
		u.reqHeaders.Set("Content-Length", strconv.FormatInt(txLen, 10))
	} else {
		u.reqHeaders.Set("Transfer-Encoding", "chunked")
	}

	target := parsed.RequestURI()
	if err := writeRequestLine(u.conn, u.method, target); err != nil {
		u.conn.Close()
		u.conn = nil
		return fmt.Errorf("urlclient: write request line: %w", err)
	}
	return nil
}

// WriteHeaders appends extra request headers (beyond Host/Cookie/
// Content-Length/Transfer-Encoding, which Start already queued) and flushes
// the header block. Per spec, the trailing blank line is withheld for
// chunked requests; Write sends it together with the first chunk (or the
// terminator).
func (u *Url) WriteHeaders(extra *headers.Header) error {
	if extra != nil {
		extra.Each(func(k, v string) { u.reqHeaders.Set(k, v) })
	}
	return writeHeaderBlock(u.conn, &u.reqHeaders, u.txLen < 0)
}

// Write sends a body chunk. A zero-length call signals end of body and, for
// chunked requests, emits the terminating chunk; the response is then read.
func (u *Url) Write(p []byte) (int, error) {
	if u.txLen < 0 {
		if u.chunkWriter == nil {
			// End the header block WriteHeaders left open; the ChunkWriter's
			// first prefix carries no leading CRLF of its own.
			if _, err := u.conn.Write([]byte("\r\n")); err != nil {
				return 0, err
			}
			u.chunkWriter = httpproto.NewChunkWriter(u.conn)
		}
		if len(p) == 0 {
			if err := u.chunkWriter.Finalize(); err != nil {
				return 0, err
			}
			return 0, u.readResponse()
		}
		return u.chunkWriter.Write(p)
	}
	if len(p) == 0 {
		return 0, u.readResponse()
	}
	return u.conn.Write(p)
}

func (u *Url) readResponse() error {
	head, err := httpproto.ReadResponseHead(u.buf, u.conn, u.deadlines.Next())
	if err != nil {
		return fmt.Errorf("urlclient: read response: %w", err)
	}
	u.status = head.Line.Code
	u.respHeaders = head.Headers
	u.location = head.Headers.Get("Location")
	u.connClose = strings.EqualFold(head.Headers.Get("Connection"), "close")

	if u.opts.Jar != nil {
		if values := head.Headers.Values("Set-Cookie"); len(values) > 0 {
			storeCookies(u.opts.Jar, u.requestURL(), values)
		}
	}

	if u.status == 204 || u.method == "HEAD" || (u.location != "" && isRedirectStatus(u.status)) {
		u.bodyReader = nil
		return nil
	}

	reader, err := httpproto.BodyReader(u.buf, u.conn, u.deadlines, head.Headers.Get("Transfer-Encoding"), head.Headers.Get("Content-Length"))
	if err != nil {
		return fmt.Errorf("urlclient: body framing: %w", err)
	}
	if reader == nil {
		// Neither Transfer-Encoding nor Content-Length: the body, if any,
		// runs until the server closes the connection.
		reader = &untilCloseReader{buf: u.buf, conn: u.conn}
	}
	u.bodyReader = reader
	return nil
}

// untilCloseReader drains any already-buffered bytes, then reads straight
// from the connection, for the close-delimited body framing a response
// falls back to when it sends neither Content-Length nor
// Transfer-Encoding.
type untilCloseReader struct {
	buf  *httpproto.Buffer
	conn net.Conn
}

func (r *untilCloseReader) Read(p []byte) (int, error) {
	if r.buf.Len() > 0 {
		n := len(p)
		if n > r.buf.Len() {
			n = r.buf.Len()
		}
		copy(p, r.buf.Take(n))
		return n, nil
	}
	return r.conn.Read(p)
}

// Status returns the most recently read response status code.
func (u *Url) Status() int { return u.status }

// Location returns the Location header of the most recent response.
func (u *Url) Location() string { return u.location }

// Headers returns the most recently read response headers.
func (u *Url) Headers() headers.Header { return u.respHeaders }

// Read reads from the response body, if any.
func (u *Url) Read(p []byte) (int, error) {
	if u.bodyReader == nil {
		return 0, io.EOF
	}
	return u.bodyReader.Read(p)
}

// GetResponse buffers the remaining body into a string, owned by the
// caller.
func (u *Url) GetResponse() (string, error) {
	if u.bodyReader == nil {
		return "", nil
	}
	data, err := io.ReadAll(u.bodyReader)
	if err != nil {
		return "", fmt.Errorf("urlclient: read body: %w", err)
	}
	return string(data), nil
}

// GetJSONResponse buffers the remaining body and unmarshals it into v.
func (u *Url) GetJSONResponse(v interface{}) error {
	body, err := u.GetResponse()
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(body), v); err != nil {
		return fmt.Errorf("urlclient: unmarshal json response: %w", err)
	}
	return nil
}

// Close releases the underlying socket. The connection is closed
// unconditionally even if the server asked to keep it alive, since the Url
// itself is going away.
func (u *Url) Close() error {
	if u.conn == nil {
		return nil
	}
	err := u.conn.Close()
	u.conn = nil
	return err
}

// ShouldClose reports whether the most recent response requested the
// connection be closed rather than reused.
func (u *Url) ShouldClose() bool { return u.connClose }

func (u *Url) dialFor(ctx context.Context, scheme, addr string) (net.Conn, error) {
	if scheme == "https" {
		if u.dial == nil {
			return nil, fmt.Errorf("urlclient: https requested but no TLS dialer configured")
		}
		return u.dial(ctx, "tcp", addr)
	}
	var d net.Dialer
	return d.DialContext(ctx, "tcp", addr)
}

func (u *Url) requestURL() *url.URL {
	return &url.URL{Scheme: u.scheme, Host: net.JoinHostPort(u.host, u.port)}
}

func hostHeader(host, port, scheme string) string {
	if (scheme == "https" && port == "443") || (scheme == "http" && port == "80") {
		return host
	}
	return net.JoinHostPort(host, port)
}

func isRedirectStatus(code int) bool {
	switch code {
	case 301, 302, 303, 307, 308:
		return true
	}
	return false
}

func writeRequestLine(conn net.Conn, method, target string) error {
	_, err := fmt.Fprintf(conn, "%s %s HTTP/1.1\r\n", method, target)
	return err
}

func writeHeaderBlock(conn net.Conn, h *headers.Header, chunked bool) error {
	var sb strings.Builder
	h.Each(func(k, v string) {
		sb.WriteString(k)
		sb.WriteString(": ")
		sb.WriteString(v)
		sb.WriteString("\r\n")
	})
	if !chunked {
		sb.WriteString("\r\n")
	}
	_, err := conn.Write([]byte(sb.String()))
	return err
}

func joinCookies(cookies []*http.Cookie) string {
	parts := make([]string, len(cookies))
	for i, c := range cookies {
		parts[i] = c.Name + "=" + c.Value
	}
	return strings.Join(parts, "; ")
}

func storeCookies(jar http.CookieJar, u *url.URL, setCookieValues []string) {
	resp := http.Response{Header: make(http.Header)}
	for _, v := range setCookieValues {
		resp.Header.Add("Set-Cookie", v)
	}
	jar.SetCookies(u, resp.Cookies())
}
