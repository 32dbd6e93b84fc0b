package http

import (
	"fmt"
	"net"
	"net/http"
	"net/netip"
	"strings"
)

const maxUserAgentLength = 512

// IPResolver extracts the client address, honouring forwarding headers only
// when the direct peer is a trusted proxy.
type IPResolver struct {
	trusted []netip.Prefix
}

// NewIPResolver parses trusted proxy entries. Each entry is a CIDR or a
// bare address.
func NewIPResolver(trustedProxies []string) (*IPResolver, error) {
	r := &IPResolver{}
	for _, entry := range trustedProxies {
		entry = strings.TrimSpace(entry)
		if entry == "" {
			continue
		}
		if !strings.Contains(entry, "/") {
			addr, err := netip.ParseAddr(entry)
			if err != nil {
				return nil, fmt.Errorf("invalid trusted proxy %q: %w", entry, err)
			}
			r.trusted = append(r.trusted, netip.PrefixFrom(addr.Unmap(), addr.Unmap().BitLen()))
			continue
		}
		prefix, err := netip.ParsePrefix(entry)
		if err != nil {
			return nil, fmt.Errorf("invalid trusted proxy %q: %w", entry, err)
		}
		r.trusted = append(r.trusted, prefix.Masked())
	}
	return r, nil
}

func (r *IPResolver) isTrusted(addr netip.Addr) bool {
	addr = addr.Unmap()
	for _, p := range r.trusted {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}

// ClientIP returns the best client address for req. X-Forwarded-For is
// walked right to left, skipping trusted hops, so a client cannot prepend a
// forged address. X-Real-IP is consulted next, then RemoteAddr.
func (r *IPResolver) ClientIP(req *http.Request) string {
	remote := remoteAddr(req)

	peer, err := netip.ParseAddr(remote)
	if r == nil || err != nil || !r.isTrusted(peer) {
		return remote
	}

	if xff := req.Header.Get("X-Forwarded-For"); xff != "" {
		hops := strings.Split(xff, ",")
		for i := len(hops) - 1; i >= 0; i-- {
			hop, err := netip.ParseAddr(strings.TrimSpace(hops[i]))
			if err != nil {
				break
			}
			if !r.isTrusted(hop) {
				return hop.Unmap().String()
			}
		}
	}

	if xri := strings.TrimSpace(req.Header.Get("X-Real-IP")); xri != "" {
		if addr, err := netip.ParseAddr(xri); err == nil {
			return addr.Unmap().String()
		}
	}

	return remote
}

func remoteAddr(req *http.Request) string {
	if req.RemoteAddr == "" {
		return "unknown"
	}
	if host, _, err := net.SplitHostPort(req.RemoteAddr); err == nil {
		return host
	}
	return req.RemoteAddr
}

// UserAgent returns the request's user agent truncated for storage.
func UserAgent(req *http.Request) string {
	ua := req.UserAgent()
	if len(ua) > maxUserAgentLength {
		return ua[:maxUserAgentLength]
	}
	return ua
}
