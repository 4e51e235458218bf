package wire

import "time"

// httpDateLayout is RFC 1123 rendered in GMT, e.g. "Mon, 02 Jan 2006 15:04:05 GMT".
const httpDateLayout = "Mon, 02 Jan 2006 15:04:05 GMT"

// HTTPDate formats t as an RFC 1123 GMT string, the form used for the Date,
// Last-Modified, and If-Modified-Since headers.
func HTTPDate(t time.Time) string {
	return t.UTC().Format(httpDateLayout)
}

// ParseHTTPDate parses an RFC 1123 GMT date string as produced by HTTPDate.
// If-Modified-Since is always interpreted in GMT regardless of the client's
// local clock.
func ParseHTTPDate(s string) (time.Time, error) {
	return time.ParseInLocation(httpDateLayout, s, time.UTC)
}
