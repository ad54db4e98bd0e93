package utils

import (
	"net"
	"net/http"
	"strings"
)

// ClientIP resolves the caller address. Forwarded headers are honoured only
// when the direct peer is one of the trusted proxies.
func ClientIP(r *http.Request, trusted []string) string {
	ip := remoteIP(r)
	if !IsTrustedProxy(ip, trusted) {
		return ip
	}
	if xff := strings.TrimSpace(r.Header.Get("X-Forwarded-For")); xff != "" {
		if candidate := clientFromXFF(xff, trusted); candidate != "" {
			return candidate
		}
	}
	if realIP := strings.TrimSpace(r.Header.Get("X-Real-IP")); realIP != "" {
		if parsed := net.ParseIP(realIP); parsed != nil {
			return parsed.String()
		}
	}
	return ip
}

// IsSecureRequest reports whether cookies for r should carry the Secure flag.
func IsSecureRequest(r *http.Request, tlsEnabled bool, trusted []string) bool {
	if r == nil {
		return false
	}
	if r.TLS != nil || tlsEnabled {
		return true
	}
	if !IsTrustedProxy(remoteIP(r), trusted) {
		return false
	}
	proto := strings.SplitN(r.Header.Get("X-Forwarded-Proto"), ",", 2)[0]
	return strings.EqualFold(strings.TrimSpace(proto), "https")
}

func IsTrustedProxy(ip string, trusted []string) bool {
	parsed := net.ParseIP(strings.TrimSpace(ip))
	if parsed == nil {
		return false
	}
	for _, raw := range trusted {
		val := strings.TrimSpace(raw)
		if val == "" {
			continue
		}
		if strings.Contains(val, "/") {
			if _, block, err := net.ParseCIDR(val); err == nil && block.Contains(parsed) {
				return true
			}
			continue
		}
		if parsed.Equal(net.ParseIP(val)) {
			return true
		}
	}
	return false
}

func remoteIP(r *http.Request) string {
	ip, _, _ := net.SplitHostPort(r.RemoteAddr)
	if ip == "" {
		ip = r.RemoteAddr
	}
	return strings.TrimSpace(ip)
}

// clientFromXFF walks the chain right to left and returns the first hop that
// is not a trusted proxy.
func clientFromXFF(xff string, trusted []string) string {
	parts := strings.Split(xff, ",")
	for i := len(parts) - 1; i >= 0; i-- {
		parsed := net.ParseIP(strings.TrimSpace(parts[i]))
		if parsed == nil {
			continue
		}
		if val := parsed.String(); !IsTrustedProxy(val, trusted) {
			return val
		}
	}
	return ""
}
