package urlclient

import (
	"bufio"
	"context"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"
)

// fakeOrigin starts a plain TCP listener that, for every connection, reads
// one request line + header block then writes back a canned response.
func fakeOrigin(t *testing.T, respond func(requestLine string, headers map[string]string) string) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go func(conn net.Conn) {
				defer conn.Close()
				r := bufio.NewReader(conn)
				requestLine, _ := r.ReadString('\n')
				headers := map[string]string{}
				for {
					line, err := r.ReadString('\n')
					if err != nil || line == "\r\n" {
						break
					}
					parts := strings.SplitN(strings.TrimRight(line, "\r\n"), ": ", 2)
					if len(parts) == 2 {
						headers[parts[0]] = parts[1]
					}
				}
				conn.Write([]byte(respond(strings.TrimRight(requestLine, "\r\n"), headers)))
			}(conn)
		}
	}()
	t.Cleanup(func() { ln.Close() })
	return ln.Addr().String()
}

func TestUrlGetReadsBody(t *testing.T) {
	addr := fakeOrigin(t, func(reqLine string, h map[string]string) string {
		body := "hello client"
		return "HTTP/1.1 200 OK\r\nContent-Length: " + strconv.Itoa(len(body)) + "\r\nConnection: close\r\n\r\n" + body
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, body, err := UrlGet(ctx, Options{}, "http://"+addr+"/index", nil)
	if err != nil {
		t.Fatalf("UrlGet: %v", err)
	}
	if body != "hello client" {
		t.Fatalf("got %q", body)
	}
}

func TestUrlPostSendsBodyWithContentLength(t *testing.T) {
	gotLen := make(chan string, 1)
	addr := fakeOrigin(t, func(reqLine string, h map[string]string) string {
		gotLen <- h["Content-Length"]
		return "HTTP/1.1 204 No Content\r\nConnection: close\r\n\r\n"
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, _, err := UrlPost(ctx, Options{}, "http://"+addr+"/submit", nil, []byte("payload"))
	if err != nil {
		t.Fatalf("UrlPost: %v", err)
	}
	if got := <-gotLen; got != "7" {
		t.Fatalf("Content-Length = %q, want %q", got, "7")
	}
}

func TestUrlJsonUnmarshals(t *testing.T) {
	addr := fakeOrigin(t, func(reqLine string, h map[string]string) string {
		body := `{"ok":true,"count":3}`
		return "HTTP/1.1 200 OK\r\nContent-Length: " + strconv.Itoa(len(body)) + "\r\nConnection: close\r\n\r\n" + body
	})

	var out struct {
		OK    bool `json:"ok"`
		Count int  `json:"count"`
	}
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if _, err := UrlJson(ctx, Options{}, "http://"+addr+"/api", nil, &out); err != nil {
		t.Fatalf("UrlJson: %v", err)
	}
	if !out.OK || out.Count != 3 {
		t.Fatalf("got %+v", out)
	}
}
