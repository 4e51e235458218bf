package urlclient

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/embedweb/ioweb/headers"
)

// Fetch composes Start/WriteHeaders/Write/readResponse for a single
// request/response, retrying the whole request up to opts.Retries times
// after any failure. Connect errors, header or body write errors and
// response read errors are all retried alike; a failure partway through a
// body write is not told apart from a connection failure.
func (u *Url) Fetch(ctx context.Context, method, rawURL string, extraHeaders *headers.Header, body []byte) error {
	attempts := u.opts.Retries + 1
	var lastErr error
	for attempt := 0; attempt < attempts; attempt++ {
		err := u.fetchOnce(ctx, method, rawURL, extraHeaders, body)
		if err == nil {
			return nil
		}
		lastErr = err
		u.Close()
	}
	return lastErr
}

func (u *Url) fetchOnce(ctx context.Context, method, rawURL string, extraHeaders *headers.Header, body []byte) error {
	txLen := int64(len(body))
	if body == nil {
		txLen = 0
	}
	if err := u.Start(ctx, method, rawURL, txLen); err != nil {
		return err
	}
	if err := u.WriteHeaders(extraHeaders); err != nil {
		return err
	}
	if len(body) > 0 {
		if _, err := u.Write(body); err != nil {
			return err
		}
	}
	_, err := u.Write(nil)
	return err
}

// UrlFetch performs a single request on a fresh Url built from opts and
// returns the buffered response body.
func UrlFetch(ctx context.Context, opts Options, method, rawURL string, extraHeaders *headers.Header, body []byte) (*Url, string, error) {
	u := New(opts)
	if err := u.Fetch(ctx, method, rawURL, extraHeaders, body); err != nil {
		return nil, "", err
	}
	resp, err := u.GetResponse()
	return u, resp, err
}

// UrlGet issues a GET request.
func UrlGet(ctx context.Context, opts Options, rawURL string, extraHeaders *headers.Header) (*Url, string, error) {
	return UrlFetch(ctx, opts, "GET", rawURL, extraHeaders, nil)
}

// UrlPost issues a POST request with a raw body.
func UrlPost(ctx context.Context, opts Options, rawURL string, extraHeaders *headers.Header, body []byte) (*Url, string, error) {
	return UrlFetch(ctx, opts, "POST", rawURL, extraHeaders, body)
}

// UrlJson issues a GET request and unmarshals the JSON response into v.
func UrlJson(ctx context.Context, opts Options, rawURL string, extraHeaders *headers.Header, v interface{}) (*Url, error) {
	u, body, err := UrlGet(ctx, opts, rawURL, extraHeaders)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(body), v); err != nil {
		return nil, fmt.Errorf("urlclient: unmarshal json response: %w", err)
	}
	return u, nil
}

// UrlPostJson marshals v as JSON, POSTs it with Content-Type:
// application/json, and returns the raw response body.
func UrlPostJson(ctx context.Context, opts Options, rawURL string, extraHeaders *headers.Header, v interface{}) (*Url, string, error) {
	payload, err := json.Marshal(v)
	if err != nil {
		return nil, "", fmt.Errorf("urlclient: marshal json request: %w", err)
	}
	h := headers.Header{}
	if extraHeaders != nil {
		extraHeaders.Each(func(k, val string) { h.Set(k, val) })
	}
	h.Set("Content-Type", "application/json")
	return UrlFetch(ctx, opts, "POST", rawURL, &h, payload)
}

// UploadField is one form field: either a plain value, or a file streamed
// from disk when Path is set.
type UploadField struct {
	Name        string
	Value       string
	Path        string
	Filename    string
	ContentType string
}

// Upload streams a multipart/form-data request: each field is framed as
// "--<boundary>\r\n"-delimited parts, with Content-Disposition headers and,
// for file fields, a body streamed directly from disk rather than buffered
// in memory.
func (u *Url) Upload(ctx context.Context, rawURL string, fields []UploadField) error {
	boundary, err := randomBoundary()
	if err != nil {
		return err
	}

	if err := u.Start(ctx, "POST", rawURL, -1); err != nil {
		return err
	}
	h := headers.Header{}
	h.Set("Content-Type", "multipart/form-data; boundary="+boundary)
	if err := u.WriteHeaders(&h); err != nil {
		return err
	}

	for _, f := range fields {
		if err := u.writeUploadPart(boundary, f); err != nil {
			return err
		}
	}
	if _, err := u.Write([]byte("--" + boundary + "--\r\n")); err != nil {
		return err
	}
	_, err = u.Write(nil)
	return err
}

func (u *Url) writeUploadPart(boundary string, f UploadField) error {
	var head bytes.Buffer
	head.WriteString("--" + boundary + "\r\n")
	if f.Path != "" {
		name := f.Filename
		if name == "" {
			name = filepath.Base(f.Path)
		}
		fmt.Fprintf(&head, "Content-Disposition: form-data; name=%q; filename=%q\r\n", f.Name, name)
		ct := f.ContentType
		if ct == "" {
			ct = "application/octet-stream"
		}
		fmt.Fprintf(&head, "Content-Type: %s\r\n\r\n", ct)
	} else {
		fmt.Fprintf(&head, "Content-Disposition: form-data; name=%q\r\n\r\n", f.Name)
	}
	if _, err := u.Write(head.Bytes()); err != nil {
		return err
	}

	if f.Path != "" {
		file, err := os.Open(f.Path)
		if err != nil {
			return fmt.Errorf("urlclient: open upload file %q: %w", f.Path, err)
		}
		defer file.Close()
		buf := make([]byte, 32*1024)
		for {
			n, err := file.Read(buf)
			if n > 0 {
				if _, werr := u.Write(buf[:n]); werr != nil {
					return werr
				}
			}
			if err == io.EOF {
				break
			}
			if err != nil {
				return fmt.Errorf("urlclient: read upload file %q: %w", f.Path, err)
			}
		}
	} else {
		if _, err := u.Write([]byte(f.Value)); err != nil {
			return err
		}
	}
	_, err := u.Write([]byte("\r\n"))
	return err
}

func randomBoundary() (string, error) {
	buf := make([]byte, 16)
	if _, err := rand.Read(buf); err != nil {
		return "", fmt.Errorf("urlclient: generate boundary: %w", err)
	}
	return "----ioweb" + hex.EncodeToString(buf), nil
}
