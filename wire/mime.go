package wire

import "strings"

// defaultMimeTypes is the built-in extension → MIME-type table. It is merged
// with a user overlay loaded from config (web.mime.*) by MimeTable.
var defaultMimeTypes = map[string]string{
	"html": "text/html",
	"htm":  "text/html",
	"css":  "text/css",
	"js":   "text/javascript",
	"mjs":  "text/javascript",
	"json": "application/json",
	"txt":  "text/plain",
	"xml":  "application/xml",
	"csv":  "text/csv",
	"md":   "text/markdown",

	"jpg":  "image/jpeg",
	"jpeg": "image/jpeg",
	"png":  "image/png",
	"gif":  "image/gif",
	"svg":  "image/svg+xml",
	"ico":  "image/x-icon",
	"webp": "image/webp",
	"bmp":  "image/bmp",
	"tiff": "image/tiff",

	"mp3":  "audio/mpeg",
	"wav":  "audio/wav",
	"ogg":  "audio/ogg",
	"mp4":  "video/mp4",
	"webm": "video/webm",
	"avi":  "video/x-msvideo",
	"mov":  "video/quicktime",

	"pdf":  "application/pdf",
	"zip":  "application/zip",
	"gz":   "application/gzip",
	"tar":  "application/x-tar",
	"wasm": "application/wasm",
	"woff": "font/woff",
	"woff2": "font/woff2",
	"ttf":  "font/ttf",
	"eot":  "application/vnd.ms-fontobject",
	"bin":  "application/octet-stream",
}

// MimeTable merges the built-in extension table with a config-supplied
// overlay. Overlay entries win on conflict. Keys and the extensions passed to
// Lookup are matched case-insensitively and without a leading dot.
type MimeTable struct {
	entries map[string]string
}

// NewMimeTable builds a MimeTable from the built-in defaults plus overlay.
// overlay may be nil.
func NewMimeTable(overlay map[string]string) *MimeTable {
	t := &MimeTable{entries: make(map[string]string, len(defaultMimeTypes)+len(overlay))}
	for k, v := range defaultMimeTypes {
		t.entries[k] = v
	}
	for k, v := range overlay {
		t.entries[strings.ToLower(strings.TrimPrefix(k, "."))] = v
	}
	return t
}

// Lookup returns the MIME type registered for ext (with or without a leading
// dot), or "" if unknown.
func (t *MimeTable) Lookup(ext string) string {
	ext = strings.ToLower(strings.TrimPrefix(ext, "."))
	return t.entries[ext]
}
