// Package cookie assembles Set-Cookie response headers and parses the
// client-sent Cookie request header, following RFC 6265's quoting and
// attribute rules.
package cookie

import (
	"strconv"
	"strings"
)

// Attrs configures the optional attributes of a Set-Cookie header.
type Attrs struct {
	Path     string
	Domain   string
	MaxAge   int // seconds; 0 means omit Max-Age
	Secure   bool
	HTTPOnly bool
	SameSite string // "Strict", "Lax", "None"; "" omits the attribute
}

// Build assembles a Set-Cookie header value for name=value plus attrs.
func Build(name, value string, attrs Attrs) string {
	var b strings.Builder
	b.WriteString(name)
	b.WriteByte('=')
	b.WriteString(quoteIfNeeded(value))

	if attrs.Path != "" {
		b.WriteString("; Path=")
		b.WriteString(attrs.Path)
	}
	if attrs.Domain != "" {
		b.WriteString("; Domain=")
		b.WriteString(attrs.Domain)
	}
	if attrs.MaxAge != 0 {
		b.WriteString("; Max-Age=")
		b.WriteString(strconv.Itoa(attrs.MaxAge))
	}
	if attrs.Secure {
		b.WriteString("; Secure")
	}
	if attrs.HTTPOnly {
		b.WriteString("; HttpOnly")
	}
	if attrs.SameSite != "" {
		b.WriteString("; SameSite=")
		b.WriteString(attrs.SameSite)
	}
	return b.String()
}

// BuildExpired assembles a Set-Cookie header that clears name immediately,
// used by Logout.
func BuildExpired(name string, attrs Attrs) string {
	attrs.MaxAge = -1
	return Build(name, "", attrs)
}

// quoteIfNeeded wraps value in double quotes if it contains a character not
// legal in an unquoted cookie-value (RFC 6265 §4.1.1).
func quoteIfNeeded(value string) string {
	needsQuote := false
	for i := 0; i < len(value); i++ {
		c := value[i]
		if c == ' ' || c == ',' || c == ';' || c == '"' {
			needsQuote = true
			break
		}
	}
	if !needsQuote {
		return value
	}
	return `"` + strings.ReplaceAll(value, `"`, `\"`) + `"`
}

// Parse scans a Cookie request header's value, splitting on ';' and
// trimming surrounding whitespace/quotes from each value, and returns the
// value for name, or ("", false) if absent.
func Parse(cookieHeader, name string) (string, bool) {
	for _, part := range strings.Split(cookieHeader, ";") {
		part = strings.TrimSpace(part)
		eq := strings.IndexByte(part, '=')
		if eq < 0 {
			continue
		}
		k := strings.TrimSpace(part[:eq])
		if k != name {
			continue
		}
		v := strings.TrimSpace(part[eq+1:])
		if len(v) >= 2 && v[0] == '"' && v[len(v)-1] == '"' {
			v = v[1 : len(v)-1]
			v = strings.ReplaceAll(v, `\"`, `"`)
		}
		return v, true
	}
	return "", false
}

// ParseAll returns every name=value pair in a Cookie header, in order.
func ParseAll(cookieHeader string) map[string]string {
	out := make(map[string]string)
	for _, part := range strings.Split(cookieHeader, ";") {
		part = strings.TrimSpace(part)
		eq := strings.IndexByte(part, '=')
		if eq < 0 {
			continue
		}
		k := strings.TrimSpace(part[:eq])
		v := strings.TrimSpace(part[eq+1:])
		if len(v) >= 2 && v[0] == '"' && v[len(v)-1] == '"' {
			v = v[1 : len(v)-1]
		}
		out[k] = v
	}
	return out
}
