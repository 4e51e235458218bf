package sse

import (
	"bufio"
	"context"
	"net"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/embedweb/ioweb/urlclient"
)

func fakeEventOrigin(t *testing.T, body string) string {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		r := bufio.NewReader(conn)
		for {
			line, err := r.ReadString('\n')
			if err != nil || line == "\r\n" {
				break
			}
		}
		resp := "HTTP/1.1 200 OK\r\nContent-Type: text/event-stream\r\nContent-Length: " +
			strconv.Itoa(len(body)) + "\r\nConnection: close\r\n\r\n" + body
		conn.Write([]byte(resp))
	}()
	t.Cleanup(func() { ln.Close() })
	return ln.Addr().String()
}

func TestGetDispatchesEvents(t *testing.T) {
	body := ": this is a comment\n" +
		"event: greeting\n" +
		"data: hello\n" +
		"data: world\n" +
		"id: 1\n" +
		"\n" +
		"data: second\n" +
		"\n"
	addr := fakeEventOrigin(t, body)

	var events []Event
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := Get(ctx, urlclient.Options{}, "http://"+addr+"/stream", nil, func(e Event) bool {
		events = append(events, e)
		return true
	})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(events) != 2 {
		t.Fatalf("got %d events", len(events))
	}
	if events[0].Event != "greeting" || events[0].Data != "hello\nworld" || events[0].ID != "1" {
		t.Fatalf("first event = %+v", events[0])
	}
	if events[1].Data != "second" {
		t.Fatalf("second event = %+v", events[1])
	}
}

func TestGetStopsWhenCallbackReturnsFalse(t *testing.T) {
	body := "data: one\n\ndata: two\n\ndata: three\n\n"
	addr := fakeEventOrigin(t, body)

	var got []string
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err := Get(ctx, urlclient.Options{}, "http://"+addr+"/stream", nil, func(e Event) bool {
		got = append(got, e.Data)
		return len(got) < 1
	})
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(got) != 1 || got[0] != "one" {
		t.Fatalf("got %v", got)
	}
}

func TestGetRejectsWrongContentType(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer ln.Close()
	go func() {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		defer conn.Close()
		r := bufio.NewReader(conn)
		for {
			line, err := r.ReadString('\n')
			if err != nil || line == "\r\n" {
				break
			}
		}
		conn.Write([]byte("HTTP/1.1 200 OK\r\nContent-Type: text/plain\r\nContent-Length: 2\r\nConnection: close\r\n\r\nhi"))
	}()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	err = Get(ctx, urlclient.Options{}, "http://"+ln.Addr().String()+"/stream", nil, func(e Event) bool { return true })
	if err == nil || !strings.Contains(err.Error(), "unexpected content-type") {
		t.Fatalf("expected content-type error, got %v", err)
	}
}
