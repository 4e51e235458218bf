package wire

import "strings"

// NormalizePath collapses "//" runs, resolves "." and ".." segments (clamped
// at root), and preserves a trailing slash. It does not decode percent
// sequences and does not change case. The input must begin with "/"; any
// other input returns ("", false). The result is a newly allocated string.
//
// This mirrors the embedded server's webNormalizePath: segments are split on
// "/", "." segments are dropped, ".." segments pop the previous kept
// segment (never popping past the root), and the segments are rejoined with
// a single "/".
func NormalizePath(p string) (string, bool) {
	if p == "" || p[0] != '/' {
		return "", false
	}
	raw := strings.Split(p, "/")
	kept := make([]string, 0, len(raw))
	for _, seg := range raw {
		switch seg {
		case "":
			// The leading slash and any "//" run both split into empty
			// segments; both are simply dropped, collapsing "//…" to "/".
			continue
		case ".":
			continue
		case "..":
			if len(kept) > 0 {
				kept = kept[:len(kept)-1]
			}
			continue
		default:
			kept = append(kept, seg)
		}
	}
	hasTrailingSlash := len(p) > 1 && strings.HasSuffix(p, "/")
	out := "/" + strings.Join(kept, "/")
	if hasTrailingSlash && out != "/" {
		out += "/"
	}
	return out, true
}
