// Package identity derives who is asking from request headers.
//
// Resolution is a pure function of the header set. The connection's
// RemoteAddr is never consulted: Folio runs behind a proxy or CDN and the
// socket peer is that proxy, not the client.
package identity

import (
	"net/http"
	"strings"
)

// Header names read by the resolver. Folio never sets them.
const (
	HeaderForwardedFor   = "X-Forwarded-For"
	HeaderRealIP         = "X-Real-IP"
	HeaderCFConnectingIP = "CF-Connecting-IP"
	HeaderUserID         = "X-User-ID"
)

// Unknown is the IP reported when no identity header is present.
const Unknown = "unknown"

// Client is the resolved identity of one request.
type Client struct {
	IP     string
	UserID string // empty when the caller sent no user token
}

// Known reports whether an IP could be resolved from the headers.
func (c Client) Known() bool {
	return c.IP != "" && c.IP != Unknown
}

// HasUserID reports whether the caller supplied an opaque user token.
func (c Client) HasUserID() bool {
	return c.UserID != ""
}

// FromRequest resolves both parts of the identity from r.
func FromRequest(r *http.Request) Client {
	return FromHeaders(r.Header)
}

// FromHeaders resolves both parts of the identity from h.
func FromHeaders(h http.Header) Client {
	return Client{
		IP:     ClientIP(h),
		UserID: UserID(h),
	}
}

// ClientIP returns the caller's IP using a fixed precedence, first match
// wins: the first X-Forwarded-For hop, X-Real-IP, CF-Connecting-IP, and
// finally Unknown.
func ClientIP(h http.Header) string {
	if xff := h.Get(HeaderForwardedFor); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if ip := strings.TrimSpace(first); ip != "" {
			return ip
		}
	}

	if ip := strings.TrimSpace(h.Get(HeaderRealIP)); ip != "" {
		return ip
	}

	if ip := strings.TrimSpace(h.Get(HeaderCFConnectingIP)); ip != "" {
		return ip
	}

	return Unknown
}

// UserID returns the caller-supplied opaque token, or "" when absent.
func UserID(h http.Header) string {
	return strings.TrimSpace(h.Get(HeaderUserID))
}
