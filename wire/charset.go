package wire

import (
	"strings"

	"golang.org/x/text/encoding/htmlindex"
)

// DecodeFormCharset transcodes body to UTF-8 using the charset named by
// contentType's "charset=" parameter (e.g. "application/x-www-form-urlencoded;
// charset=iso-8859-1"). If contentType names no charset, or names one that is
// already a UTF-8 alias, body is returned unchanged. Unknown charset names are
// passed through unchanged rather than rejected — the embedded device favors
// best-effort decoding of vars over failing the whole request.
func DecodeFormCharset(contentType string, body []byte) []byte {
	charset := charsetParam(contentType)
	if charset == "" || isUTF8Alias(charset) {
		return body
	}
	enc, err := htmlindex.Get(charset)
	if err != nil {
		return body
	}
	out, err := enc.NewDecoder().Bytes(body)
	if err != nil {
		return body
	}
	return out
}

func isUTF8Alias(charset string) bool {
	switch strings.ToLower(charset) {
	case "utf-8", "utf8", "us-ascii", "ascii":
		return true
	}
	return false
}

func charsetParam(contentType string) string {
	for _, part := range strings.Split(contentType, ";") {
		part = strings.TrimSpace(part)
		name, val, ok := strings.Cut(part, "=")
		if !ok || !strings.EqualFold(strings.TrimSpace(name), "charset") {
			continue
		}
		return strings.Trim(strings.TrimSpace(val), `"`)
	}
	return ""
}
