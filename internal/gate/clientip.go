package gate

import (
	"net"
	"net/http"
	"strings"
)

// UnknownIP is returned when no header or peer address identifies the caller.
const UnknownIP = "Unknown IP"

const (
	headerCFConnectingIP  = "CF-Connecting-IP"
	headerVercelForwarded = "X-Vercel-Forwarded-For"
	headerXForwardedFor   = "X-Forwarded-For"
)

// ClientIP derives a best-effort caller address. The first non-empty source
// wins, in order: the Cloudflare client header, the Vercel forwarded header,
// the first X-Forwarded-For entry, the transport peer address. Values are not
// validated as addresses.
func ClientIP(r *http.Request) string {
	if ip := r.Header.Get(headerCFConnectingIP); ip != "" {
		return ip
	}
	if ip := r.Header.Get(headerVercelForwarded); ip != "" {
		return ip
	}
	if xff := r.Header.Get(headerXForwardedFor); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	if r.RemoteAddr != "" {
		host, _, err := net.SplitHostPort(r.RemoteAddr)
		if err != nil {
			return r.RemoteAddr
		}
		return host
	}
	return UnknownIP
}
