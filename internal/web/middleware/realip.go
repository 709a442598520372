package middleware

import (
	"net"
	"net/http"
	"strings"
)

// TrustedRealIP sets RemoteAddr to the client address reported by a proxy
// in trusted. Forwarding headers from any other peer are ignored, so rate
// limiting and run history see the connection address instead.
//
// X-Real-IP is used when present. Otherwise X-Forwarded-For is read from
// the right, skipping hops that are trusted proxies themselves; a client
// that prepends fake entries only ever adds hops to the left of the one
// the edge proxy appended.
func TrustedRealIP(trusted []*net.IPNet) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(trusted) > 0 && inNets(hostIP(r.RemoteAddr), trusted) {
				if ip := forwardedClient(r.Header, trusted); ip != nil {
					r.RemoteAddr = ip.String()
				}
			}
			next.ServeHTTP(w, r)
		})
	}
}

// forwardedClient returns the client address the proxy chain reports, or
// nil when the headers carry nothing usable.
func forwardedClient(h http.Header, trusted []*net.IPNet) net.IP {
	if v := strings.TrimSpace(h.Get("X-Real-IP")); v != "" {
		return net.ParseIP(v)
	}

	hops := strings.Split(h.Get("X-Forwarded-For"), ",")
	for i := len(hops) - 1; i >= 0; i-- {
		ip := net.ParseIP(strings.TrimSpace(hops[i]))
		if ip == nil {
			return nil
		}
		if !inNets(ip, trusted) {
			return ip
		}
	}
	return nil
}

// hostIP parses the address part of a host:port pair or a bare IP.
func hostIP(addr string) net.IP {
	if host, _, err := net.SplitHostPort(addr); err == nil {
		addr = host
	}
	return net.ParseIP(addr)
}

func inNets(ip net.IP, nets []*net.IPNet) bool {
	if ip == nil {
		return false
	}
	for _, n := range nets {
		if n.Contains(ip) {
			return true
		}
	}
	return false
}
