package httpproto

import (
	"io"
	"net"
	"testing"
	"time"

	"github.com/embedweb/ioweb/headers"
)

func pipePair(t *testing.T) (net.Conn, net.Conn) {
	t.Helper()
	a, b := net.Pipe()
	t.Cleanup(func() { a.Close(); b.Close() })
	return a, b
}

func TestReadRequestHead(t *testing.T) {
	server, client := pipePair(t)
	go func() {
		client.Write([]byte("GET /index.html HTTP/1.1\r\nHost: example.com\r\nConnection: keep-alive\r\n\r\n"))
	}()

	var buf Buffer
	head, err := ReadRequestHead(&buf, server, time.Now().Add(time.Second))
	if err != nil {
		t.Fatalf("ReadRequestHead: %v", err)
	}
	if head.Line.Method != "GET" || head.Line.Target != "/index.html" || head.Line.Version != "HTTP/1.1" {
		t.Fatalf("unexpected request line: %+v", head.Line)
	}
	if got := head.Headers.Get("Host"); got != "example.com" {
		t.Errorf("Host = %q", got)
	}
	if got := head.Headers.Get("connection"); got != "keep-alive" {
		t.Errorf("Connection = %q (case-insensitive lookup failed)", got)
	}
}

func TestChunkRoundTrip(t *testing.T) {
	server, client := pipePair(t)

	go func() {
		w := NewChunkWriter(client)
		w.Write([]byte("hello "))
		w.Write([]byte("world"))
		w.Finalize()
	}()

	var buf Buffer
	deadlines := &Deadlines{Started: time.Now(), Inactivity: time.Second}
	r := NewChunkReader(&buf, server, deadlines)
	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(got) != "hello world" {
		t.Fatalf("got %q", got)
	}
}

func TestResponseWriteHeadDefaultsToChunked(t *testing.T) {
	server, client := pipePair(t)

	go func() {
		w := NewResponseWriter(client)
		var h headers.Header
		h.Set("Content-Type", "text/plain")
		w.WriteHead(200, &h)
		w.Write([]byte("ok"))
		w.Finalize()
	}()

	var buf Buffer
	resp, err := ReadResponseHead(&buf, server, time.Now().Add(time.Second))
	if err != nil {
		t.Fatalf("ReadResponseHead: %v", err)
	}
	if resp.Line.Code != 200 {
		t.Fatalf("code = %d", resp.Line.Code)
	}
	if got := resp.Headers.Get("Transfer-Encoding"); got != "chunked" {
		t.Fatalf("Transfer-Encoding = %q", got)
	}

	deadlines := &Deadlines{Started: time.Now(), Inactivity: time.Second}
	body, err := io.ReadAll(NewChunkReader(&buf, server, deadlines))
	if err != nil {
		t.Fatalf("body read: %v", err)
	}
	if string(body) != "ok" {
		t.Fatalf("body = %q", body)
	}
}

func TestLengthReader(t *testing.T) {
	server, client := pipePair(t)
	go client.Write([]byte("abcde"))

	var buf Buffer
	deadlines := &Deadlines{Started: time.Now(), Inactivity: time.Second}
	r := NewLengthReader(&buf, server, deadlines, 5)
	got, err := io.ReadAll(r)
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if string(got) != "abcde" {
		t.Fatalf("got %q", got)
	}
}
