package wire

import (
	"testing"
	"time"
)

func TestPercentDecode(t *testing.T) {
	cases := []struct{ in, out string }{
		{"hello", "hello"},
		{"a+b", "a b"},
		{"a%20b", "a b"},
		{"100%25", "100%"},
		{"%00", "%00"},   // NUL escape is never decoded
		{"%2", "%2"},     // truncated escape copied verbatim
		{"%zz", "%zz"},   // invalid hex copied verbatim
	}
	for _, c := range cases {
		if got := PercentDecode(c.in); got != c.out {
			t.Errorf("PercentDecode(%q) = %q, want %q", c.in, got, c.out)
		}
	}
}

func TestPercentRoundTrip(t *testing.T) {
	// Property 2: decode(encode(s)) == s for every URI-legal byte sequence.
	s := "abc123-._~:/?#[]@!$&'()*+,;=%-XYZ"
	encoded := PercentEncode(s, URIClass)
	if got := PercentDecode(encoded); got != s {
		t.Errorf("round trip mismatch: got %q, want %q (encoded=%q)", got, s, encoded)
	}
}

func TestNormalizePathIdempotent(t *testing.T) {
	cases := []string{
		"/",
		"/a/b/c",
		"/a//b///c",
		"/a/./b",
		"/a/b/../c",
		"/../../etc/passwd",
		"/a/b/",
		"/a/../../b",
	}
	for _, in := range cases {
		once, ok := NormalizePath(in)
		if !ok {
			t.Fatalf("NormalizePath(%q) failed", in)
		}
		twice, ok := NormalizePath(once)
		if !ok {
			t.Fatalf("NormalizePath(%q) (second pass) failed", once)
		}
		if once != twice {
			t.Errorf("not idempotent: %q -> %q -> %q", in, once, twice)
		}
	}
}

func TestNormalizePathTraversal(t *testing.T) {
	got, ok := NormalizePath("/../../etc/passwd")
	if !ok {
		t.Fatal("NormalizePath failed")
	}
	if got != "/etc/passwd" {
		t.Errorf("got %q, want /etc/passwd (traversal must be clamped at root)", got)
	}
}

func TestNormalizePathRequiresLeadingSlash(t *testing.T) {
	if _, ok := NormalizePath("relative/path"); ok {
		t.Error("expected NormalizePath to reject a path without a leading slash")
	}
	if _, ok := NormalizePath(""); ok {
		t.Error("expected NormalizePath to reject an empty path")
	}
}

func TestValidatePath(t *testing.T) {
	if !ValidatePath("/a/b-c_d~e") {
		t.Error("expected legal path to validate")
	}
	if ValidatePath("/a b") {
		t.Error("expected space to fail validation")
	}
}

func TestStatusText(t *testing.T) {
	if StatusText(200) != "OK" {
		t.Error("expected 200 -> OK")
	}
	if StatusText(999) != "Unknown" {
		t.Error("expected unknown status -> Unknown")
	}
}

func TestHTTPDateRoundTrip(t *testing.T) {
	now := time.Date(2026, 7, 31, 12, 0, 0, 0, time.UTC)
	s := HTTPDate(now)
	parsed, err := ParseHTTPDate(s)
	if err != nil {
		t.Fatalf("ParseHTTPDate: %v", err)
	}
	if !parsed.Equal(now) {
		t.Errorf("got %v, want %v", parsed, now)
	}
}

func TestMimeTable(t *testing.T) {
	m := NewMimeTable(map[string]string{"custom": "application/x-custom"})
	if got := m.Lookup(".html"); got != "text/html" {
		t.Errorf("got %q, want text/html", got)
	}
	if got := m.Lookup("CUSTOM"); got != "application/x-custom" {
		t.Errorf("overlay lookup got %q", got)
	}
	if got := m.Lookup("zzz"); got != "" {
		t.Errorf("expected unknown extension to return empty, got %q", got)
	}
}

func TestHTMLEscape(t *testing.T) {
	got := HTMLEscape(`<a href="x">'&'</a>`)
	want := "&lt;a href=&quot;x&quot;&gt;&#39;&amp;&#39;&lt;/a&gt;"
	if got != want {
		t.Errorf("got %q, want %q", got, want)
	}
}
