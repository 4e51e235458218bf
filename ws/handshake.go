package ws

import (
	"strings"

	"github.com/embedweb/ioweb/headers"
)

// IsUpgradeRequest reports whether h carries the headers required to
// attempt a WebSocket upgrade: "Upgrade: websocket", "Connection: Upgrade",
// "Sec-WebSocket-Version: 13", and a Sec-WebSocket-Key.
func IsUpgradeRequest(h *headers.Header) bool {
	return containsToken(h.Get("Upgrade"), "websocket") &&
		containsToken(h.Get("Connection"), "upgrade") &&
		h.Get("Sec-WebSocket-Version") == "13" &&
		h.Get("Sec-WebSocket-Key") != ""
}

// HandshakeResponse computes the response headers for a successful upgrade,
// given the client's Sec-WebSocket-Key and optional requested subprotocol.
func HandshakeResponse(clientKey, protocol string) *headers.Header {
	var h headers.Header
	h.Set("Upgrade", "websocket")
	h.Set("Connection", "Upgrade")
	h.Set("Sec-WebSocket-Accept", AcceptKey(clientKey))
	if protocol != "" {
		h.Set("Sec-WebSocket-Protocol", protocol)
	}
	return &h
}

// containsToken reports whether headerValue, a comma-separated list of
// tokens (as Connection and Upgrade both may be), contains token
// case-insensitively.
func containsToken(headerValue, token string) bool {
	for _, part := range strings.Split(headerValue, ",") {
		if strings.EqualFold(strings.TrimSpace(part), token) {
			return true
		}
	}
	return false
}
