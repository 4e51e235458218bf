// Package config provides configuration management for the embedded web
// host. It supports JSON-based configuration loading with safe defaults
// sized for a resource-constrained device.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"time"
)

// Duration wraps time.Duration so it unmarshals from a human-readable
// string ("30s", "1m") as used throughout web.timeouts.*, rather than
// from a raw integer nanosecond count.
type Duration time.Duration

// UnmarshalJSON accepts either a duration string or a plain number of
// nanoseconds, the latter kept for compatibility with machine-generated
// config files.
func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err == nil {
		parsed, err := time.ParseDuration(s)
		if err != nil {
			return fmt.Errorf("config: invalid duration %q: %w", s, err)
		}
		*d = Duration(parsed)
		return nil
	}
	var n int64
	if err := json.Unmarshal(b, &n); err != nil {
		return fmt.Errorf("config: invalid duration value: %w", err)
	}
	*d = Duration(n)
	return nil
}

// MarshalJSON renders the duration the way it's read: as a string.
func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// Route mirrors one entry of web.routes[]: a prefix or exact match, the
// role required to pass it, the handler tag, and its dispatch options.
type Route struct {
	Match    string   `json:"match"`
	Role     string   `json:"role"`
	Redirect string   `json:"redirect"`
	Trim     string   `json:"trim"`
	Handler  string   `json:"handler"` // "file" or "action"
	Stream   bool     `json:"stream"`
	Methods  []string `json:"methods"`
}

// Redirect mirrors one entry of web.redirect[].
type Redirect struct {
	From   string `json:"from"`
	To     string `json:"to"`
	Status int    `json:"status"`
}

// Timeouts holds the durations from web.timeouts.*.
type Timeouts struct {
	Parse      Duration `json:"parse"`
	Inactivity Duration `json:"inactivity"`
	Request    Duration `json:"request"`
	Session    Duration `json:"session"`
}

// Limits holds the size ceilings from web.limits.*: maxHeader, maxBody,
// maxUpload, maxConnections, maxSessions.
type Limits struct {
	Header      int `json:"header"`
	Connections int `json:"connections"`
	Body        int `json:"body"`
	Sessions    int `json:"sessions"`
	Upload      int `json:"upload"`
}

// SessionCookie holds web.sessions.* — the Set-Cookie attributes applied to
// every session cookie the host issues.
type SessionCookie struct {
	Name     string `json:"name"`
	SameSite string `json:"sameSite"`
	HTTPOnly bool   `json:"httpOnly"`
	Secure   bool   `json:"secure"`
}

// User mirrors one entry of web.auth.users[]: a login identity with its
// password stored as a bcrypt hash, never in cleartext.
type User struct {
	Username     string `json:"username"`
	PasswordHash string `json:"passwordHash"`
	Role         string `json:"role"`
}

// Auth holds web.auth.* — the ordered role list used to resolve role names
// to privilege ids, plus the bcrypt-hashed credential list consulted by
// the built-in login action.
type Auth struct {
	Roles []string `json:"roles"`
	Users []User   `json:"users"`
}

// Upload holds web.upload.*.
type Upload struct {
	Dir string `json:"dir"`
}

// TLS holds the tls.* section: cipher policy, client/issuer verification,
// and the certificate/key/authority paths for an HTTPS listener.
type TLS struct {
	Ciphers []string `json:"ciphers"`
	Verify  struct {
		Client bool `json:"client"`
		Issuer bool `json:"issuer"`
	} `json:"verify"`
	Authority   string `json:"authority"`
	Certificate string `json:"certificate"`
	Key         string `json:"key"`
}

// Web holds the whole web.* configuration section.
type Web struct {
	Listen    []string          `json:"listen"`
	Documents string            `json:"documents"`
	Index     string            `json:"index"`
	Timeouts  Timeouts          `json:"timeouts"`
	Limits    Limits            `json:"limits"`
	Sessions  SessionCookie     `json:"sessions"`
	Upload    Upload            `json:"upload"`
	Auth      Auth              `json:"auth"`
	Headers   map[string]string `json:"headers"`
	Mime      map[string]string `json:"mime"`
	Routes    []Route           `json:"routes"`
	Redirect  []Redirect        `json:"redirect"`
}

// Config is the top-level configuration document.
type Config struct {
	Web Web `json:"web"`
	TLS TLS `json:"tls"`
}

// LoadConfig reads a JSON file at filename and deserialises it into a
// Config. DisallowUnknownFields catches typos in a device's config file at
// load time rather than silently ignoring a misspelled key.
func LoadConfig(filename string) (*Config, error) {
	f, err := os.Open(filename) // #nosec G304 -- filename is caller-provided config path
	if err != nil {
		return nil, fmt.Errorf("config: open %q: %w", filename, err)
	}
	defer f.Close()

	var cfg Config
	dec := json.NewDecoder(f)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("config: decode %q: %w", filename, err)
	}
	return &cfg, nil
}

// DefaultConfig returns a *Config pre-filled with conservative defaults
// suitable for a single-listener embedded deployment. Callers are free to
// mutate the returned struct; each call returns a fresh independent copy.
func DefaultConfig() *Config {
	return &Config{
		Web: Web{
			Listen:    []string{"http://0.0.0.0:80"},
			Documents: "./web",
			Index:     "index.html",
			Timeouts: Timeouts{
				Parse:      Duration(5 * time.Second),
				Inactivity: Duration(30 * time.Second),
				Request:    Duration(60 * time.Second),
				Session:    Duration(30 * time.Minute),
			},
			Limits: Limits{
				Header:      16 * 1024,
				Connections: 64,
				Body:        1 << 20,
				Sessions:    64,
				Upload:      8 << 20,
			},
			Sessions: SessionCookie{
				Name:     "-web-session-",
				SameSite: "Lax",
				HTTPOnly: true,
			},
			Upload: Upload{Dir: "./upload"},
			Auth:   Auth{Roles: []string{"guest", "user", "admin"}},
		},
	}
}
