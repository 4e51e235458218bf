package web

import (
	"bufio"
	"net/http"
	"strings"
	"testing"

	"github.com/embedweb/ioweb/config"
	"github.com/embedweb/ioweb/httpproto"
	"github.com/embedweb/ioweb/logger"
	"github.com/embedweb/ioweb/metrics"
	"github.com/embedweb/ioweb/session"
)

func newTestHost(t *testing.T, hash string) *Host {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.Web.Auth.Users = []config.User{{Username: "alice", PasswordHash: hash, Role: "admin"}}
	h, err := NewHost(cfg, logger.New(logger.LevelError), metrics.NewMetrics())
	if err != nil {
		t.Fatalf("NewHost: %v", err)
	}
	t.Cleanup(func() { h.Sessions.Stop() })
	return h
}

func TestHandleLoginSuccess(t *testing.T) {
	hash, err := session.HashPassword("hunter2")
	if err != nil {
		t.Fatalf("HashPassword: %v", err)
	}
	h := newTestHost(t, hash)

	server, client := pipePair(t)
	ctx := newContext(httpproto.NewResponseWriter(server), nil, "")
	ctx.Method = http.MethodPost
	ctx.Form = map[string]string{"username": "alice", "password": "hunter2"}
	ctx.Query = map[string]string{}

	done := make(chan error, 1)
	go func() { done <- h.handleLogin(ctx) }()

	r := bufio.NewReader(client)
	line, _ := r.ReadString('\n')
	if !strings.HasPrefix(line, "HTTP/1.1 200") {
		t.Fatalf("status line = %q", line)
	}
	var setCookie string
	for {
		hl, _ := r.ReadString('\n')
		hl = strings.TrimRight(hl, "\r\n")
		if hl == "" {
			break
		}
		if k, v, ok := strings.Cut(hl, ": "); ok && strings.EqualFold(k, "Set-Cookie") {
			setCookie = v
		}
	}
	if !strings.Contains(setCookie, session.DefaultCookieName+"=") {
		t.Fatalf("Set-Cookie = %q, want session cookie", setCookie)
	}
	if err := <-done; err != nil {
		t.Fatalf("handleLogin: %v", err)
	}
	if h.Sessions.Count() != 1 {
		t.Fatalf("expected one session created, got %d", h.Sessions.Count())
	}
}

func TestHandleLoginRejectsWrongPassword(t *testing.T) {
	hash, _ := session.HashPassword("hunter2")
	h := newTestHost(t, hash)

	server, client := pipePair(t)
	ctx := newContext(httpproto.NewResponseWriter(server), nil, "")
	ctx.Method = http.MethodPost
	ctx.Form = map[string]string{"username": "alice", "password": "wrong"}

	done := make(chan error, 1)
	go func() { done <- h.handleLogin(ctx) }()

	r := bufio.NewReader(client)
	line, _ := r.ReadString('\n')
	if !strings.HasPrefix(line, "HTTP/1.1 401") {
		t.Fatalf("status line = %q, want 401", line)
	}
	<-done
	if h.Sessions.Count() != 0 {
		t.Fatalf("expected no session created on failed login")
	}
}

func TestHandleLogoutClearsCookie(t *testing.T) {
	h := newTestHost(t, "")
	sess, err := h.Sessions.Create()
	if err != nil {
		t.Fatalf("Create: %v", err)
	}
	h.Sessions.Login(sess, "alice", "admin")

	server, client := pipePair(t)
	ctx := newContext(httpproto.NewResponseWriter(server), nil, "")
	ctx.Session = sess

	done := make(chan error, 1)
	go func() { done <- h.handleLogout(ctx) }()

	r := bufio.NewReader(client)
	line, _ := r.ReadString('\n')
	if !strings.HasPrefix(line, "HTTP/1.1 200") {
		t.Fatalf("status line = %q", line)
	}
	var setCookie string
	for {
		hl, _ := r.ReadString('\n')
		hl = strings.TrimRight(hl, "\r\n")
		if hl == "" {
			break
		}
		if k, v, ok := strings.Cut(hl, ": "); ok && strings.EqualFold(k, "Set-Cookie") {
			setCookie = v
		}
	}
	if !strings.Contains(setCookie, "Max-Age=-1") {
		t.Fatalf("Set-Cookie = %q, want an expiring cookie", setCookie)
	}
	<-done
	if _, err := h.Sessions.Get(sess.ID); err == nil {
		t.Fatalf("expected session destroyed after logout")
	}
}

func TestCredentialInputPrefersForm(t *testing.T) {
	ctx := &Context{
		Form:  map[string]string{"username": "form-user", "password": "form-pass"},
		Query: map[string]string{"username": "query-user", "password": "query-pass"},
	}
	u, p := ctx.credentialInput()
	if u != "form-user" || p != "form-pass" {
		t.Fatalf("credentialInput() = (%q, %q), want form values", u, p)
	}
}

func TestCredentialInputFallsBackToJSON(t *testing.T) {
	ctx := &Context{JSON: map[string]interface{}{"username": "json-user", "password": "json-pass"}}
	u, p := ctx.credentialInput()
	if u != "json-user" || p != "json-pass" {
		t.Fatalf("credentialInput() = (%q, %q), want json values", u, p)
	}
}
