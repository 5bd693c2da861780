package http

import (
	"net"
	"net/http"
	"strings"
)

// SessionTokenHeader carries the session token for API clients that do not keep cookies
const SessionTokenHeader = "X-Session-Token"

// IPConfig holds configuration for IP extraction
type IPConfig struct {
	TrustedProxies []string // CIDR ranges of trusted proxies
}

// ExtractClientIP returns the client address. Forwarding headers are honoured only when
// the direct peer is inside a trusted proxy range, otherwise RemoteAddr wins.
//
// X-Forwarded-For is read right to left: each proxy appends the peer it saw, so the
// first entry outside the trusted ranges is the nearest address no client can forge.
func ExtractClientIP(r *http.Request, config *IPConfig) string {
	remoteIP := getRemoteAddr(r)

	if config == nil || !isTrustedProxy(remoteIP, config.TrustedProxies) {
		return remoteIP
	}

	if ip, ok := forwardedClient(r.Header.Values("X-Forwarded-For"), config.TrustedProxies); ok {
		return ip
	}
	if xri := strings.TrimSpace(r.Header.Get("X-Real-IP")); isValidIP(xri) {
		return xri
	}
	return remoteIP
}

// forwardedClient walks the X-Forwarded-For chain from the right. An unparsable entry
// ends the walk; a chain made only of trusted proxies yields its leftmost entry.
func forwardedClient(headers []string, trustedProxies []string) (string, bool) {
	var chain []string
	for _, h := range headers {
		for _, ip := range strings.Split(h, ",") {
			chain = append(chain, strings.TrimSpace(ip))
		}
	}

	last := ""
	for i := len(chain) - 1; i >= 0; i-- {
		ip := chain[i]
		if !isValidIP(ip) {
			break
		}
		if !isTrustedProxy(ip, trustedProxies) {
			return ip, true
		}
		last = ip
	}
	return last, last != ""
}

// RequestToken returns the session token presented by the client. The cookie takes
// precedence; fromHeader reports that the token came from SessionTokenHeader.
func RequestToken(r *http.Request, cookieName string) (token string, fromHeader bool) {
	if c, err := r.Cookie(cookieName); err == nil && c.Value != "" {
		return c.Value, false
	}
	if h := strings.TrimSpace(r.Header.Get(SessionTokenHeader)); h != "" {
		return h, true
	}
	return "", false
}

// LooksLikeBrowser is a coarse user-agent check separating browsers from scripts and CLIs
func LooksLikeBrowser(userAgent string) bool {
	return strings.HasPrefix(userAgent, "Mozilla/")
}

func getRemoteAddr(r *http.Request) string {
	if r.RemoteAddr != "" {
		if ip, _, err := net.SplitHostPort(r.RemoteAddr); err == nil {
			return ip
		}
		return r.RemoteAddr
	}
	return "unknown"
}

func isTrustedProxy(ip string, trustedProxies []string) bool {
	if len(trustedProxies) == 0 {
		return false
	}

	clientIP := net.ParseIP(ip)
	if clientIP == nil {
		return false
	}

	for _, cidr := range trustedProxies {
		_, ipNet, err := net.ParseCIDR(cidr)
		if err != nil {
			continue
		}
		if ipNet.Contains(clientIP) {
			return true
		}
	}

	return false
}

func isValidIP(ip string) bool {
	return net.ParseIP(ip) != nil
}
