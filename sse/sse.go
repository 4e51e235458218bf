// Package sse parses Server-Sent Events on top of urlclient: pure line
// parsing over a response body, with no protocol of its own beyond the
// text/event-stream line grammar.
package sse

import (
	"bufio"
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/embedweb/ioweb/headers"
	"github.com/embedweb/ioweb/urlclient"
)

// Event is one dispatched event: the accumulated field values since the
// last blank line.
type Event struct {
	Event string
	Data  string
	ID    string
	Retry int
}

// Callback is invoked once per dispatched event. Returning false stops the
// read loop (the equivalent of the callback requesting stop).
type Callback func(Event) (more bool)

// Get issues a GET request expecting text/event-stream and invokes cb for
// each event until the server closes the connection, a read fails, or cb
// returns false. ctx bounds only the connect; once the stream is open, its
// cancellation does not stop the read loop.
func Get(ctx context.Context, opts urlclient.Options, rawURL string, extraHeaders *headers.Header, cb Callback) error {
	u := urlclient.New(opts)
	h := headers.Header{}
	if extraHeaders != nil {
		extraHeaders.Each(func(k, v string) { h.Set(k, v) })
	}
	h.Set("Accept", "text/event-stream")

	if err := u.Start(ctx, "GET", rawURL, 0); err != nil {
		return err
	}
	if err := u.WriteHeaders(&h); err != nil {
		return err
	}
	if _, err := u.Write(nil); err != nil {
		return err
	}
	defer u.Close()

	if ct := u.Headers().Get("Content-Type"); !strings.HasPrefix(ct, "text/event-stream") {
		return fmt.Errorf("sse: unexpected content-type %q", ct)
	}

	return readEvents(u, cb)
}

// readEvents runs the SSE line grammar over r until EOF, a parse stop, or
// cb returns false.
func readEvents(r interface{ Read([]byte) (int, error) }, cb Callback) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 4096), 1<<20)

	var pending Event
	var dataLines []string

	dispatch := func() bool {
		pending.Data = strings.Join(dataLines, "\n")
		dataLines = dataLines[:0]
		if pending.Data == "" && pending.Event == "" && pending.ID == "" && pending.Retry == 0 {
			return true
		}
		more := cb(pending)
		pending = Event{}
		return more
	}

	for scanner.Scan() {
		line := scanner.Text()
		if line == "" {
			if !dispatch() {
				return nil
			}
			continue
		}
		if strings.HasPrefix(line, ":") {
			continue
		}
		field, value, _ := strings.Cut(line, ":")
		value = strings.TrimPrefix(value, " ")
		switch field {
		case "event":
			pending.Event = value
		case "data":
			dataLines = append(dataLines, value)
		case "id":
			pending.ID = value
		case "retry":
			if n, err := strconv.Atoi(value); err == nil {
				pending.Retry = n
			}
		}
	}
	return scanner.Err()
}
