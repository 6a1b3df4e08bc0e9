package observability

import (
	"net"
	"net/http"
	"strings"
)

// DeviceIDFromRequest reads the device identity from the request.
// Browser websocket clients cannot set custom headers on the handshake,
// so a deviceId query parameter is accepted as a fallback.
func DeviceIDFromRequest(r *http.Request) string {
	if id := r.Header.Get("X-Device-Id"); id != "" {
		return id
	}
	return r.URL.Query().Get("deviceId")
}

func RequestIDFromRequest(r *http.Request) string {
	if id := r.Header.Get("X-Request-Id"); id != "" {
		return id
	}
	return r.URL.Query().Get("requestId")
}

// IPFromRequest resolves the client address, preferring the first hop
// recorded by the reverse proxy.
func IPFromRequest(r *http.Request) string {
	forwarded := r.Header.Get("X-Forwarded-For")
	if forwarded != "" {
		parts := strings.Split(forwarded, ",")
		if len(parts) > 0 {
			return strings.TrimSpace(parts[0])
		}
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err == nil {
		return host
	}
	return r.RemoteAddr
}
