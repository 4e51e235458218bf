// Package web ties the wire protocol, router, sessions, file handler,
// upload parser, and WebSocket engine together into the per-connection
// serve loop: parse -> route -> authorize -> dispatch -> finalize -> reset.
package web

import (
	"fmt"
	"net/http"
	"time"

	"github.com/embedweb/ioweb/config"
	"github.com/embedweb/ioweb/cookie"
	"github.com/embedweb/ioweb/fileserver"
	"github.com/embedweb/ioweb/logger"
	"github.com/embedweb/ioweb/metrics"
	"github.com/embedweb/ioweb/router"
	"github.com/embedweb/ioweb/scripting"
	"github.com/embedweb/ioweb/session"
	"github.com/embedweb/ioweb/wire"
)

// ActionFunc is a compiled-in route action, the alternative to a scripting
// action: given a Context, it writes a response and returns an error only
// for conditions the caller cannot recover from.
type ActionFunc func(ctx *Context) error

// Host is the process-wide container for configuration, routing tables,
// sessions, and the document root, shared by every Listener and every
// connection it accepts.
type Host struct {
	Config *config.Config

	Routes      *router.Table
	Actions     *router.ActionRegistry
	actionFuncs map[string]ActionFunc
	scripts     map[string]*scripting.Action
	actionRoles map[string]string
	actionOrder []string // registration order, so prefix matching stays deterministic
	Sessions    *session.Manager
	Roles       *session.RoleTable
	Credentials *session.CredentialStore
	Files       *fileserver.Server
	Mime        *wire.MimeTable

	Log     *logger.Logger
	Metrics *metrics.Metrics

	// WebSocket handles a route tagged Handler == "ws" once its HTTP upgrade
	// handshake has completed. Nil means the host never accepts upgrades.
	WebSocket WebSocketHandler

	ExtraHeaders map[string]string
}

// NewHost builds a Host from cfg, wiring its route/redirect/action tables,
// session manager, mime table, and file server.
func NewHost(cfg *config.Config, log *logger.Logger, m *metrics.Metrics) (*Host, error) {
	if log == nil {
		log = logger.New(logger.LevelInfo)
	}
	if m == nil {
		m = metrics.NewMetrics()
	}

	// The config schema's route entries carry no explicit exact/prefix
	// flag; every configured route matches by prefix, so a route naming a
	// full path also matches every longer path that begins with it.
	// /auth/ is wired ahead of every configured route so the built-in
	// login/logout actions (below) are always reachable regardless of the
	// device's own web.routes[] entries.
	routes := make([]router.Route, 0, len(cfg.Web.Routes)+1)
	routes = append(routes, router.Route{Match: "/auth/", Handler: "action", Methods: []string{"POST"}})
	for _, r := range cfg.Web.Routes {
		routes = append(routes, router.Route{
			Match:    r.Match,
			Role:     r.Role,
			Redirect: r.Redirect,
			Trim:     r.Trim,
			Handler:  r.Handler,
			Stream:   r.Stream,
			Methods:  r.Methods,
		})
	}

	// config.Redirect.From names only a path; the redirect schema has no
	// separate scheme/host/query/hash fields, so scheme/host/query/hash
	// stay wildcard (empty) for every configured redirect.
	redirects := make([]router.Redirect, len(cfg.Web.Redirect))
	for i, r := range cfg.Web.Redirect {
		redirects[i] = router.Redirect{Path: r.From, To: r.To, Status: r.Status}
	}

	roles := session.NewRoleTable(cfg.Web.Auth.Roles)
	sessionLifespan := time.Duration(cfg.Web.Timeouts.Session)
	sessions := session.NewManager(sessionLifespan, cfg.Web.Limits.Sessions)
	sessions.Start(time.Minute)

	mime := wire.NewMimeTable(cfg.Web.Mime)
	files := fileserver.New(cfg.Web.Documents, cfg.Web.Index, mime)

	creds := make([]session.Credential, len(cfg.Web.Auth.Users))
	for i, u := range cfg.Web.Auth.Users {
		creds[i] = session.Credential{Username: u.Username, PasswordHash: u.PasswordHash, Role: u.Role}
	}

	h := &Host{
		Config:       cfg,
		Routes:       router.NewTable(redirects, routes),
		Actions:      router.NewActionRegistry(nil),
		actionFuncs:  make(map[string]ActionFunc),
		scripts:      make(map[string]*scripting.Action),
		actionRoles:  make(map[string]string),
		Sessions:     sessions,
		Roles:        roles,
		Credentials:  session.NewCredentialStore(creds),
		Files:        files,
		Mime:         mime,
		Log:          log,
		Metrics:      m,
		ExtraHeaders: cfg.Web.Headers,
	}
	h.registerBuiltinAuthActions()
	return h, nil
}

// registerBuiltinAuthActions wires the login/logout endpoints every host
// exposes under /auth/, checking submitted credentials against the
// bcrypt-backed CredentialStore rather than trusting a bare username.
func (h *Host) registerBuiltinAuthActions() {
	h.RegisterAction("/auth/login", "", h.handleLogin)
	h.RegisterAction("/auth/logout", "", h.handleLogout)
}

func (h *Host) cookieName() string {
	if name := h.Config.Web.Sessions.Name; name != "" {
		return name
	}
	return session.DefaultCookieName
}

func (h *Host) cookieAttrs() cookie.Attrs {
	sc := h.Config.Web.Sessions
	return cookie.Attrs{Path: "/", Secure: sc.Secure, HTTPOnly: sc.HTTPOnly, SameSite: sc.SameSite}
}

// handleLogin verifies a submitted username/password against the bcrypt
// CredentialStore, and on success creates a session, records the identity,
// and sets its cookie on the response.
func (h *Host) handleLogin(ctx *Context) error {
	if ctx.Method != http.MethodPost {
		return ctx.WriteStatus(http.StatusMethodNotAllowed)
	}
	username, password := ctx.credentialInput()
	if username == "" || password == "" {
		return ctx.WriteStatus(http.StatusBadRequest)
	}
	role, ok := h.Credentials.Verify(username, password)
	if !ok {
		return ctx.WriteStatus(http.StatusUnauthorized)
	}
	sess, err := h.Sessions.Create()
	if err != nil {
		return ctx.WriteStatus(http.StatusServiceUnavailable)
	}
	h.Sessions.Login(sess, username, role)
	ctx.SetHeader("Set-Cookie", cookie.Build(h.cookieName(), sess.ID, h.cookieAttrs()))
	return ctx.WriteString(http.StatusOK, "success")
}

// handleLogout destroys the caller's session, if any, and clears its
// cookie.
func (h *Host) handleLogout(ctx *Context) error {
	if ctx.Session != nil {
		h.Sessions.Logout(ctx.Session)
	}
	ctx.SetHeader("Set-Cookie", cookie.BuildExpired(h.cookieName(), h.cookieAttrs()))
	return ctx.WriteString(http.StatusOK, "success")
}

// RegisterAction binds a compiled-in handler to a URL prefix, matching the
// first-prefix-wins semantics of router.ActionRegistry.
func (h *Host) RegisterAction(prefix, role string, fn ActionFunc) {
	h.actionFuncs[prefix] = fn
	h.actionRoles[prefix] = role
	h.recordActionPrefix(prefix)
	h.rebuildActionRegistry()
}

// RegisterScript compiles and binds a JavaScript action to a URL prefix, so
// a device can add an action without recompiling. Returns a compile error
// rather than registering a broken action.
func (h *Host) RegisterScript(prefix, role, source string) error {
	action, err := scripting.New(source)
	if err != nil {
		return fmt.Errorf("web: register script action %q: %w", prefix, err)
	}
	h.scripts[prefix] = action
	h.actionRoles[prefix] = role
	h.recordActionPrefix(prefix)
	h.rebuildActionRegistry()
	return nil
}

// recordActionPrefix appends prefix to actionOrder the first time it is
// registered, so re-registering an existing prefix keeps its original slot.
func (h *Host) recordActionPrefix(prefix string) {
	for _, p := range h.actionOrder {
		if p == prefix {
			return
		}
	}
	h.actionOrder = append(h.actionOrder, prefix)
}

func (h *Host) rebuildActionRegistry() {
	actions := make([]router.Action, 0, len(h.actionOrder))
	for _, p := range h.actionOrder {
		prefix := p
		actions = append(actions, router.Action{
			Match: prefix,
			Role:  h.actionRoles[prefix],
			Callback: func(ctxAny interface{}) error {
				ctx := ctxAny.(*Context)
				return h.invokeAction(prefix, ctx)
			},
		})
	}
	h.Actions = router.NewActionRegistry(actions)
}

func (h *Host) invokeAction(prefix string, ctx *Context) error {
	if fn, ok := h.actionFuncs[prefix]; ok {
		return fn(ctx)
	}
	if action, ok := h.scripts[prefix]; ok {
		return h.runScriptAction(action, ctx)
	}
	return ctx.WriteStatus(http.StatusNotFound)
}

func (h *Host) runScriptAction(action *scripting.Action, ctx *Context) error {
	req := scripting.Request{
		Method:  ctx.Method,
		Path:    ctx.Path,
		Query:   ctx.Query,
		Headers: ctx.headerMap(),
		Role:    ctx.Role,
		User:    ctx.Username,
	}
	if ctx.bodyBuffer != nil {
		req.Body = string(ctx.bodyBuffer)
	}
	resp, err := action.Run(req)
	if err != nil {
		h.Log.Errorf("web: script action error: %v", err)
		return ctx.WriteStatus(http.StatusInternalServerError)
	}
	if resp.Status == 0 {
		return ctx.WriteStatus(http.StatusNoContent)
	}
	for k, v := range resp.Headers {
		ctx.SetHeader(k, v)
	}
	return ctx.WriteString(resp.Status, resp.Body)
}
