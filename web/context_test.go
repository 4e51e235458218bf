package web

import (
	"bufio"
	"bytes"
	"compress/gzip"
	"io"
	"net"
	"strings"
	"testing"

	"github.com/embedweb/ioweb/httpproto"
)

func pipePair(t *testing.T) (net.Conn, net.Conn) {
	t.Helper()
	a, b := net.Pipe()
	t.Cleanup(func() { a.Close(); b.Close() })
	return a, b
}

func readResponse(t *testing.T, client net.Conn) *bufio.Reader {
	t.Helper()
	return bufio.NewReader(client)
}

func TestContextWriteStringNoCompression(t *testing.T) {
	server, client := pipePair(t)
	ctx := newContext(httpproto.NewResponseWriter(server), nil, "")

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := ctx.WriteString(200, "hello"); err != nil {
			t.Errorf("WriteString: %v", err)
		}
	}()

	r := readResponse(t, client)
	line, err := r.ReadString('\n')
	if err != nil || !strings.HasPrefix(line, "HTTP/1.1 200") {
		t.Fatalf("status line = %q, err %v", line, err)
	}
	var contentLength string
	for {
		h, _ := r.ReadString('\n')
		h = strings.TrimRight(h, "\r\n")
		if h == "" {
			break
		}
		if strings.HasPrefix(strings.ToLower(h), "content-length:") {
			contentLength = h
		}
	}
	if contentLength != "Content-Length: 5" {
		t.Fatalf("Content-Length header = %q", contentLength)
	}
	body := make([]byte, 5)
	if _, err := io.ReadFull(r, body); err != nil {
		t.Fatalf("read body: %v", err)
	}
	if string(body) != "hello" {
		t.Fatalf("body = %q", body)
	}
	<-done
}

func TestContextWriteStringNegotiatesBrotli(t *testing.T) {
	server, client := pipePair(t)
	ctx := newContext(httpproto.NewResponseWriter(server), nil, "gzip, br")

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := ctx.WriteString(200, "hello world"); err != nil {
			t.Errorf("WriteString: %v", err)
		}
	}()

	r := readResponse(t, client)
	line, _ := r.ReadString('\n')
	if !strings.HasPrefix(line, "HTTP/1.1 200") {
		t.Fatalf("status line = %q", line)
	}
	headerLines := make(map[string]string)
	for {
		h, _ := r.ReadString('\n')
		h = strings.TrimRight(h, "\r\n")
		if h == "" {
			break
		}
		k, v, _ := strings.Cut(h, ": ")
		headerLines[strings.ToLower(k)] = v
	}
	if headerLines["content-encoding"] != "br" {
		t.Fatalf("Content-Encoding = %q, want br (highest priority offered)", headerLines["content-encoding"])
	}
	<-done
}

func TestContextWriteJSONSetsDefaultContentType(t *testing.T) {
	server, client := pipePair(t)
	ctx := newContext(httpproto.NewResponseWriter(server), nil, "")

	done := make(chan struct{})
	go func() {
		defer close(done)
		ctx.WriteJSON(200, []byte(`{"ok":true}`)) //nolint:errcheck
	}()

	r := readResponse(t, client)
	r.ReadString('\n')
	var contentType string
	for {
		h, _ := r.ReadString('\n')
		h = strings.TrimRight(h, "\r\n")
		if h == "" {
			break
		}
		if k, v, ok := strings.Cut(h, ": "); ok && strings.EqualFold(k, "Content-Type") {
			contentType = v
		}
	}
	if contentType != "application/json" {
		t.Fatalf("Content-Type = %q", contentType)
	}
	<-done
}

func TestContextWriteStatusEmptyBody(t *testing.T) {
	server, client := pipePair(t)
	ctx := newContext(httpproto.NewResponseWriter(server), nil, "")

	done := make(chan struct{})
	go func() {
		defer close(done)
		ctx.WriteStatus(204) //nolint:errcheck
	}()

	r := readResponse(t, client)
	line, _ := r.ReadString('\n')
	if !strings.HasPrefix(line, "HTTP/1.1 204") {
		t.Fatalf("status line = %q", line)
	}
	if !ctx.Written() {
		t.Fatal("Written() = false after WriteStatus")
	}
	<-done
}

func TestContextWriteFileStreamsWithoutCompression(t *testing.T) {
	server, client := pipePair(t)
	ctx := newContext(httpproto.NewResponseWriter(server), nil, "gzip")

	content := bytes.Repeat([]byte("x"), 1024)
	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := ctx.WriteFile(200, int64(len(content)), bytes.NewReader(content)); err != nil {
			t.Errorf("WriteFile: %v", err)
		}
	}()

	r := readResponse(t, client)
	r.ReadString('\n')
	for {
		h, _ := r.ReadString('\n')
		if strings.TrimRight(h, "\r\n") == "" {
			break
		}
		if strings.Contains(strings.ToLower(h), "content-encoding") {
			t.Fatalf("WriteFile must not set Content-Encoding, got %q", h)
		}
	}
	body := make([]byte, len(content))
	if _, err := io.ReadFull(r, body); err != nil {
		t.Fatalf("read body: %v", err)
	}
	if !bytes.Equal(body, content) {
		t.Fatal("streamed body does not match source")
	}
	<-done
}

func TestCompressAllGzipRoundTrips(t *testing.T) {
	out, err := compressAll([]byte("round trip me"), "gzip")
	if err != nil {
		t.Fatalf("compressAll: %v", err)
	}
	zr, err := gzip.NewReader(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("gzip.NewReader: %v", err)
	}
	got, err := io.ReadAll(zr)
	if err != nil {
		t.Fatalf("read gzip: %v", err)
	}
	if string(got) != "round trip me" {
		t.Fatalf("got %q", got)
	}
}
