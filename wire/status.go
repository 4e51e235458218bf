package wire

// statusText is the built-in status-code → reason-phrase table. It mirrors
// the embedded server's closed webStatus[] table rather than the full IANA
// registry; codes it omits still have a standard meaning, they just report
// "Unknown" here the way the source does.
var statusText = map[int]string{
	200: "OK",
	201: "Created",
	204: "No Content",
	205: "Reset Content",
	206: "Partial Content",
	301: "Redirect",
	302: "Redirect",
	304: "Not Modified",
	400: "Bad Request",
	401: "Unauthorized",
	402: "Payment required",
	403: "Forbidden",
	404: "Not Found",
	405: "Unsupported Method",
	406: "Not Acceptable",
	408: "Request Timeout",
	413: "Request too large",
	414: "Request-URI Too Long",
	500: "Internal Server Error",
	501: "Not Implemented",
	503: "Service Unavailable",
	550: "Comms error",
}

// StatusText returns the short reason phrase for status, or "Unknown" if the
// code is not in the built-in table.
func StatusText(status int) string {
	if msg, ok := statusText[status]; ok {
		return msg
	}
	return "Unknown"
}
