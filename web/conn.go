package web

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/embedweb/ioweb/cookie"
	"github.com/embedweb/ioweb/headers"
	"github.com/embedweb/ioweb/httpproto"
	"github.com/embedweb/ioweb/router"
	"github.com/embedweb/ioweb/session"
	"github.com/embedweb/ioweb/upload"
	"github.com/embedweb/ioweb/wire"
	"github.com/embedweb/ioweb/ws"
)

// WebSocketHandler is invoked once a route tagged Handler == "ws" has
// completed its HTTP upgrade handshake. The handler owns conn for the rest
// of its lifetime; the serve loop never returns to HTTP framing on this
// connection once it is called.
type WebSocketHandler func(conn *ws.Conn, ctx *Context)

// connTask drives the parse -> route -> authorize -> dispatch -> finalize ->
// keep-alive-reset loop for one accepted connection. Per-connection state
// (the read buffer, the request headers being assembled) is owned
// exclusively by the goroutine running Serve; nothing here is shared.
type connTask struct {
	host   *Host
	conn   net.Conn
	buf    *httpproto.Buffer
	scheme string
	reuse  int
}

// Serve drives conn through repeated request/response cycles until the peer
// closes, a protocol error occurs, or the request asks for the connection
// to close. scheme is "http" or "https", used for CORS/redirect matching
// and is otherwise opaque to the wire protocol.
func (h *Host) Serve(conn net.Conn, scheme string) {
	h.Metrics.ConnectionOpened()
	defer func() {
		conn.Close()
		h.Metrics.ConnectionClosed()
	}()

	t := &connTask{host: h, conn: conn, buf: &httpproto.Buffer{}, scheme: scheme}
	for {
		keepAlive, err := t.serveOne()
		if err != nil {
			if !errors.Is(err, io.EOF) {
				h.Log.Debugf("web: %s: %v", conn.RemoteAddr(), err)
			}
			return
		}
		if !keepAlive {
			return
		}
		t.reuse++
	}
}

func (t *connTask) deadlines() *httpproto.Deadlines {
	cfg := t.host.Config.Web.Timeouts
	return &httpproto.Deadlines{
		Started:        time.Now(),
		Inactivity:     time.Duration(cfg.Inactivity),
		RequestTimeout: time.Duration(cfg.Request),
	}
}

// serveOne runs exactly one request/response cycle. keepAlive reports
// whether the caller should loop for another request on the same
// connection.
func (t *connTask) serveOne() (keepAlive bool, err error) {
	h := t.host
	deadlines := t.deadlines()

	head, err := httpproto.ReadRequestHead(t.buf, t.conn, deadlines.Next())
	if err != nil {
		return false, err
	}
	deadlines.Extend()
	h.Metrics.IncrementTotal()

	reqHeaders := head.Headers
	method := head.Line.Method

	rawPath, query, hash := splitTarget(head.Line.Target)
	decodedPath := wire.PercentDecode(rawPath)
	// A bad URL compromises the connection: close it with no response.
	if !wire.ValidatePath(decodedPath) {
		h.Metrics.IncrementFailed()
		return false, nil
	}
	normPath, ok := wire.NormalizePath(decodedPath)
	if !ok {
		h.Metrics.IncrementFailed()
		return false, nil
	}

	hostHeader := reqHeaders.Get("Host")
	connClose := strings.EqualFold(reqHeaders.Get("Connection"), "close") || head.Line.Version == "HTTP/1.0"

	match := router.Match{
		Scheme: t.scheme,
		Host:   hostHeader,
		Path:   normPath,
		Query:  query,
		Hash:   hash,
		Method: method,
	}
	if rd, ok := h.Routes.MatchRedirect(match); ok {
		t.writeRedirectTo(rd.Status, rd.To, connClose)
		h.Metrics.IncrementSuccess()
		return !connClose, nil
	}

	route, outcome := h.Routes.MatchRoute(normPath, method)
	switch outcome {
	case router.OutcomeNotFound:
		t.writeSimpleStatus(404)
		h.Metrics.IncrementFailed()
		return !connClose, nil
	case router.OutcomeMethodNotAllowed:
		t.writeMethodNotAllowed(route)
		h.Metrics.IncrementFailed()
		return !connClose, nil
	}

	if method == "OPTIONS" {
		t.writeCORSPreflight(route, reqHeaders.Get("Origin"), hostHeader)
		h.Metrics.IncrementSuccess()
		return !connClose, nil
	}

	auth := session.NewAuthenticator(h.Roles)
	sess := t.resolveSession(reqHeaders)
	auth.Authenticate(sess)
	if route.Role != "" && !auth.Can(route.Role) {
		t.writeSimpleStatus(401)
		h.Metrics.IncrementFailed()
		return !connClose, nil
	}

	handlerPath := normPath
	if route.Trim != "" {
		handlerPath = strings.TrimPrefix(normPath, route.Trim)
		if !strings.HasPrefix(handlerPath, "/") {
			handlerPath = "/" + handlerPath
		}
	}

	if route.Redirect != "" {
		t.writeRedirectTo(302, route.Redirect, connClose)
		h.Metrics.IncrementSuccess()
		return !connClose, nil
	}

	if route.Handler == "ws" {
		return t.upgradeWebSocket(reqHeaders, route, auth, sess, handlerPath)
	}

	body, bodyErr := t.openBody(reqHeaders, deadlines)
	if bodyErr != nil {
		t.writeSimpleStatus(statusForBodyErr(bodyErr))
		h.Metrics.IncrementFailed()
		return false, nil
	}

	ctx := newContext(httpproto.NewResponseWriter(t.conn), body, reqHeaders.Get("Accept-Encoding"))
	ctx.Method = method
	ctx.Path = handlerPath
	ctx.Query = parseQuery(query)
	ctx.RawQuery = query
	ctx.Hash = hash
	ctx.Headers = reqHeaders
	ctx.Session = sess
	ctx.Auth = auth
	ctx.Role = auth.Role()
	ctx.Username = auth.Username()

	if strings.HasPrefix(reqHeaders.Get("Content-Type"), "multipart/form-data") && !route.Stream {
		if err := t.consumeMultipart(reqHeaders, deadlines, ctx); err != nil {
			t.writeSimpleStatus(statusForMultipartErr(err))
			h.Metrics.IncrementFailed()
			return false, nil
		}
	} else if body != nil && !route.Stream {
		buffered, err := readBounded(body, h.Config.Web.Limits.Body)
		if err != nil {
			t.writeSimpleStatus(statusForBodyErr(err))
			h.Metrics.IncrementFailed()
			return false, nil
		}
		ctx.body = bytes.NewReader(buffered)
		ctx.bodyBuffer = buffered

		ct := reqHeaders.Get("Content-Type")
		switch {
		case strings.HasPrefix(ct, "application/x-www-form-urlencoded"):
			ctx.Form = parseQuery(string(wire.DecodeFormCharset(ct, buffered)))
		case strings.HasPrefix(ct, "application/json") && len(buffered) > 0:
			var v interface{}
			if err := json.Unmarshal(buffered, &v); err != nil {
				t.writeSimpleStatus(400)
				h.Metrics.IncrementFailed()
				return false, nil
			}
			ctx.JSON = v
		}
	}

	for k, v := range h.ExtraHeaders {
		ctx.SetHeader(k, v)
	}
	ctx.SetHeader("Date", wire.HTTPDate(time.Now()))
	if connClose {
		ctx.SetHeader("Connection", "close")
	}

	var dispatchErr error
	switch route.Handler {
	case "file":
		dispatchErr = t.dispatchFile(handlerPath, reqHeaders, ctx)
	case "action":
		dispatchErr = t.dispatchAction(handlerPath, auth, ctx)
	default:
		dispatchErr = ctx.WriteStatus(404)
	}
	if ctx.Uploads != nil {
		upload.Cleanup(ctx.Uploads)
	}

	if !ctx.Written() {
		ctx.WriteStatus(204)
	}
	if dispatchErr != nil {
		h.Log.Errorf("web: dispatch %s %s: %v", method, normPath, dispatchErr)
		h.Metrics.IncrementFailed()
		return false, nil
	}
	h.Metrics.IncrementSuccess()

	if body != nil {
		io.Copy(io.Discard, body) //nolint:errcheck
	}
	return !connClose, nil
}

// splitTarget splits a request-target into its path, query, and fragment
// components. A request-target never legitimately carries a fragment (RFC
// 7230), but the embedded client's own URL parser is tolerant of one, so the
// server accepts one too and returns it as hash.
func splitTarget(target string) (p, query, hash string) {
	p = target
	if idx := strings.IndexByte(p, '#'); idx >= 0 {
		hash = p[idx+1:]
		p = p[:idx]
	}
	if idx := strings.IndexByte(p, '?'); idx >= 0 {
		query = p[idx+1:]
		p = p[:idx]
	}
	return p, query, hash
}

// appendQueryHash reattaches the original request's query and fragment to a
// rewritten path, so a 301 directory redirect preserves the query and hash
// the client sent.
func appendQueryHash(path, query, hash string) string {
	if query != "" {
		path += "?" + query
	}
	if hash != "" {
		path += "#" + hash
	}
	return path
}

func parseQuery(query string) map[string]string {
	out := make(map[string]string)
	for _, part := range strings.Split(query, "&") {
		if part == "" {
			continue
		}
		k, v, _ := strings.Cut(part, "=")
		out[wire.PercentDecode(k)] = wire.PercentDecode(v)
	}
	return out
}

func (t *connTask) resolveSession(h headers.Header) *session.Session {
	name := t.host.Config.Web.Sessions.Name
	if name == "" {
		name = session.DefaultCookieName
	}
	id, ok := cookie.Parse(h.Get("Cookie"), name)
	if !ok {
		return nil
	}
	sess, err := t.host.Sessions.Get(id)
	if err != nil {
		return nil
	}
	return sess
}

func (t *connTask) openBody(h headers.Header, deadlines *httpproto.Deadlines) (io.Reader, error) {
	contentLength := h.Get("Content-Length")
	if contentLength != "" {
		if n, err := strconv.ParseInt(contentLength, 10, 64); err == nil {
			maxBody := int64(t.host.Config.Web.Limits.Body)
			if maxBody > 0 && n > maxBody {
				return nil, errBodyTooLarge
			}
		}
	}
	return httpproto.BodyReader(t.buf, t.conn, deadlines, h.Get("Transfer-Encoding"), contentLength)
}

var errBodyTooLarge = errors.New("web: request body exceeds limit")

func statusForBodyErr(err error) int {
	if errors.Is(err, errBodyTooLarge) {
		return 413
	}
	return 400
}

func statusForMultipartErr(err error) int {
	if errors.Is(err, upload.ErrTooLarge) {
		return 414
	}
	return 400
}

func readBounded(r io.Reader, limit int) ([]byte, error) {
	if limit <= 0 {
		return io.ReadAll(r)
	}
	lr := io.LimitReader(r, int64(limit)+1)
	buf, err := io.ReadAll(lr)
	if err != nil {
		return nil, err
	}
	if len(buf) > limit {
		return nil, errBodyTooLarge
	}
	return buf, nil
}

// consumeMultipart parses a multipart/form-data body into ctx's query map
// (field parts) and stores file parts for the handler to discover via
// ctx.Uploads, deferring temp-file cleanup to the caller.
func (t *connTask) consumeMultipart(h headers.Header, deadlines *httpproto.Deadlines, ctx *Context) error {
	_, boundary, ok := strings.Cut(h.Get("Content-Type"), "boundary=")
	if !ok || boundary == "" {
		return upload.ErrBadRequest
	}
	boundary = strings.Trim(boundary, `"`)
	dir := t.host.Config.Web.Upload.Dir
	maxUpload := int64(t.host.Config.Web.Limits.Upload)
	parser := upload.New(t.buf, t.conn, deadlines, boundary, dir, maxUpload, t.host.Config.Web.Limits.Header)
	files, err := parser.ParseAll()
	if err != nil {
		upload.Cleanup(files)
		return err
	}
	ctx.Uploads = files
	for _, f := range files {
		if f.Path == "" {
			ctx.Query[f.FieldName] = f.Value
		}
	}
	return nil
}

func (t *connTask) dispatchFile(handlerPath string, reqHeaders headers.Header, ctx *Context) error {
	var ifModifiedSince time.Time
	if raw := reqHeaders.Get("If-Modified-Since"); raw != "" {
		if parsed, err := wire.ParseHTTPDate(raw); err == nil {
			ifModifiedSince = parsed
		}
	}
	var body io.Reader
	if ctx.body != nil {
		body = ctx.body
	}
	result, err := t.host.Files.Handle(ctx.Method, handlerPath, ifModifiedSince, body)
	if err != nil {
		return ctx.WriteStatus(500)
	}
	if result.File != nil {
		defer result.File.Close()
	}
	switch result.Status {
	case 301:
		ctx.SetHeader("Location", appendQueryHash(result.RedirectTo, ctx.RawQuery, ctx.Hash))
		return ctx.WriteStatus(301)
	case 304:
		ctx.SetHeader("ETag", result.ETag)
		ctx.SetHeader("Last-Modified", wire.HTTPDate(result.LastModified))
		return ctx.WriteStatus(304)
	case 404, 405:
		return ctx.WriteStatus(result.Status)
	}
	if result.ETag != "" {
		ctx.SetHeader("ETag", result.ETag)
	}
	if !result.LastModified.IsZero() {
		ctx.SetHeader("Last-Modified", wire.HTTPDate(result.LastModified))
	}
	if result.ContentType != "" {
		ctx.SetHeader("Content-Type", result.ContentType)
	}
	if result.File == nil {
		return ctx.WriteStatus(result.Status)
	}
	return ctx.WriteFile(result.Status, result.Size, result.File)
}

func (t *connTask) dispatchAction(handlerPath string, auth *session.Authenticator, ctx *Context) error {
	action, ok := t.host.Actions.Match(handlerPath)
	if !ok {
		return ctx.WriteStatus(404)
	}
	if action.Role != "" && !auth.Can(action.Role) {
		return ctx.WriteStatus(401)
	}
	return action.Callback(ctx)
}

func (t *connTask) upgradeWebSocket(reqHeaders headers.Header, route router.Route, auth *session.Authenticator, sess *session.Session, handlerPath string) (bool, error) {
	if route.Role != "" && !auth.Can(route.Role) {
		t.writeSimpleStatus(401)
		t.host.Metrics.IncrementFailed()
		return false, nil
	}
	if !ws.IsUpgradeRequest(&reqHeaders) || t.host.WebSocket == nil {
		t.writeSimpleStatus(400)
		t.host.Metrics.IncrementFailed()
		return false, nil
	}
	respHeaders := ws.HandshakeResponse(reqHeaders.Get("Sec-WebSocket-Key"), reqHeaders.Get("Sec-WebSocket-Protocol"))
	resp := httpproto.NewResponseWriter(t.conn)
	if err := resp.WriteHead(101, respHeaders); err != nil {
		return false, err
	}
	t.host.Metrics.IncrementSuccess()

	ctx := &Context{Method: "GET", Path: handlerPath, Headers: reqHeaders, Session: sess, Auth: auth, Role: auth.Role(), Username: auth.Username()}
	conn := ws.NewConn(t.conn, true)
	t.host.WebSocket(conn, ctx)
	return false, nil
}

// extraHeaders queues the host-global response headers from config onto h,
// applied to every connection-level response the same as a dispatched one.
func (t *connTask) extraHeaders(h *headers.Header) {
	for k, v := range t.host.ExtraHeaders {
		h.Set(k, v)
	}
}

// writeSimpleStatus writes a status line with a short plain-text body naming
// the status, for the connection-level failures that never reach a Context.
func (t *connTask) writeSimpleStatus(code int) {
	body := []byte(wire.StatusText(code))
	var h headers.Header
	t.extraHeaders(&h)
	h.Set("Content-Type", "text/plain; charset=utf-8")
	h.Set("Content-Length", strconv.Itoa(len(body)))
	h.Set("Date", wire.HTTPDate(time.Now()))
	resp := httpproto.NewResponseWriter(t.conn)
	if err := resp.WriteHead(code, &h); err != nil {
		return
	}
	if len(body) == 0 {
		resp.Finalize() //nolint:errcheck
		return
	}
	resp.Write(body) //nolint:errcheck
	resp.Finalize()  //nolint:errcheck
}

func (t *connTask) writeRedirectTo(status int, to string, connClose bool) {
	var h headers.Header
	t.extraHeaders(&h)
	h.Set("Location", to)
	h.Set("Content-Length", "0")
	h.Set("Date", wire.HTTPDate(time.Now()))
	if connClose {
		h.Set("Connection", "close")
	}
	resp := httpproto.NewResponseWriter(t.conn)
	resp.WriteHead(status, &h) //nolint:errcheck
}

func (t *connTask) writeMethodNotAllowed(route router.Route) {
	body := []byte(wire.StatusText(405))
	var h headers.Header
	t.extraHeaders(&h)
	h.Set("Allow", route.AllowHeader())
	h.Set("Content-Type", "text/plain; charset=utf-8")
	h.Set("Content-Length", strconv.Itoa(len(body)))
	resp := httpproto.NewResponseWriter(t.conn)
	if err := resp.WriteHead(405, &h); err != nil {
		return
	}
	resp.Write(body) //nolint:errcheck
	resp.Finalize()  //nolint:errcheck
}

// writeCORSPreflight answers an OPTIONS preflight with 200 and no body.
func (t *connTask) writeCORSPreflight(route router.Route, origin, host string) {
	var h headers.Header
	t.extraHeaders(&h)
	h.Set("Access-Control-Allow-Origin", router.CORSOrigin(origin, t.scheme, host))
	h.Set("Access-Control-Allow-Methods", route.AllowHeader())
	h.Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
	h.Set("Content-Length", "0")
	resp := httpproto.NewResponseWriter(t.conn)
	resp.WriteHead(200, &h) //nolint:errcheck
}
