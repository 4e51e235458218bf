// Package headers provides an order-preserving, case-preserving header map
// shared by the server's Web and the client's Url. It replaces Go's
// map[string][]string convention (which is unordered and normalizes casing)
// with a slice-backed structure, because the wire protocol must hold
// response/request headers in a map until the first body byte is written
// (spec: "Headers are held in a map until the first body byte is written")
// and then emit them in the order the handler added them.
package headers

import "strings"

// entry stores one header key/value pair with its original casing.
type entry struct {
	key   string
	value string
}

// Header is a drop-in ordered replacement for a string-keyed multimap of
// HTTP headers. It is NOT safe for concurrent use: each Web/Url instance owns
// exactly one Header and only the goroutine serving that connection touches
// it, matching a one-goroutine-per-connection ownership rule.
type Header struct {
	entries []entry
}

func canon(key string) string {
	return strings.ToLower(key)
}

// Add appends key/value, preserving key's exact casing. Repeated Add calls
// with the same key (case-insensitively) produce multiple entries, e.g. for
// repeated Cookie or Set-Cookie headers.
func (h *Header) Add(key, value string) {
	h.entries = append(h.entries, entry{key: key, value: value})
}

// Set replaces the first entry matching key (case-insensitively), dropping
// any further duplicates. If no entry matches, Set behaves like Add.
func (h *Header) Set(key, value string) {
	ck := canon(key)
	out := h.entries[:0]
	replaced := false
	for _, e := range h.entries {
		if canon(e.key) == ck {
			if !replaced {
				out = append(out, entry{key: key, value: value})
				replaced = true
			}
			continue
		}
		out = append(out, e)
	}
	if !replaced {
		out = append(out, entry{key: key, value: value})
	}
	h.entries = out
}

// Del removes every entry matching key (case-insensitively).
func (h *Header) Del(key string) {
	ck := canon(key)
	out := h.entries[:0]
	for _, e := range h.entries {
		if canon(e.key) != ck {
			out = append(out, e)
		}
	}
	h.entries = out
}

// Get returns the value of the first entry matching key (case-insensitively),
// or "" if absent.
func (h *Header) Get(key string) string {
	ck := canon(key)
	for _, e := range h.entries {
		if canon(e.key) == ck {
			return e.value
		}
	}
	return ""
}

// Has reports whether any entry matches key (case-insensitively).
func (h *Header) Has(key string) bool {
	ck := canon(key)
	for _, e := range h.entries {
		if canon(e.key) == ck {
			return true
		}
	}
	return false
}

// Values returns every value matching key (case-insensitively), in insertion
// order. Used for headers that may legitimately repeat, e.g. Cookie.
func (h *Header) Values(key string) []string {
	ck := canon(key)
	var out []string
	for _, e := range h.entries {
		if canon(e.key) == ck {
			out = append(out, e.value)
		}
	}
	return out
}

// Len returns the number of header entries, including duplicates.
func (h *Header) Len() int { return len(h.entries) }

// Reset clears all entries so the Header can be reused across a keep-alive
// connection's next request without allocating a new one.
func (h *Header) Reset() {
	h.entries = h.entries[:0]
}

// Each calls fn once per entry in insertion order. fn must not modify h.
func (h *Header) Each(fn func(key, value string)) {
	for _, e := range h.entries {
		fn(e.key, e.value)
	}
}

// Clone returns a shallow, independent copy of h.
func (h *Header) Clone() *Header {
	c := &Header{entries: make([]entry, len(h.entries))}
	copy(c.entries, h.entries)
	return c
}
