// ABOUTME: URL validation for proxied shape fetches
// ABOUTME: Blocks localhost, private ranges and hosts outside an optional allow-list

package mapcache

import (
	"fmt"
	"net"
	"net/url"
	"strings"
)

// Pre-compiled reserved ranges not covered by net.IP helpers
var (
	cgnat    *net.IPNet // 100.64.0.0/10
	v6unique *net.IPNet // fc00::/7
)

func init() {
	var err error
	if _, cgnat, err = net.ParseCIDR("100.64.0.0/10"); err != nil {
		panic("invalid CGNAT CIDR: " + err.Error())
	}
	if _, v6unique, err = net.ParseCIDR("fc00::/7"); err != nil {
		panic("invalid IPv6 unique local CIDR: " + err.Error())
	}
}

// ValidateURL checks that rawURL is an http(s) URL on a public host and, if
// allowedHosts is non-empty, that its host is listed (exact match or subdomain).
func ValidateURL(rawURL string, allowedHosts []string) error {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrURLNotAllowed, err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return fmt.Errorf("%w: scheme %q", ErrURLNotAllowed, parsed.Scheme)
	}

	host := strings.ToLower(parsed.Hostname())
	if host == "" {
		return fmt.Errorf("%w: missing host", ErrURLNotAllowed)
	}
	if host == "localhost" || strings.HasSuffix(host, ".localhost") ||
		strings.HasSuffix(host, ".local") || strings.HasSuffix(host, ".internal") {
		return fmt.Errorf("%w: local host %q", ErrURLNotAllowed, host)
	}
	if ip := net.ParseIP(host); ip != nil && isPrivateIP(ip) {
		return fmt.Errorf("%w: private address %q", ErrURLNotAllowed, host)
	}

	if len(allowedHosts) == 0 {
		return nil
	}
	for _, allowed := range allowedHosts {
		allowed = strings.ToLower(strings.TrimSpace(allowed))
		if allowed != "" && (host == allowed || strings.HasSuffix(host, "."+allowed)) {
			return nil
		}
	}
	return fmt.Errorf("%w: host %q is not allowed", ErrURLNotAllowed, host)
}

func isPrivateIP(ip net.IP) bool {
	if v4 := ip.To4(); v4 != nil {
		ip = v4
	}
	return ip.IsLoopback() || ip.IsPrivate() || ip.IsUnspecified() ||
		ip.IsLinkLocalUnicast() || ip.IsLinkLocalMulticast() ||
		cgnat.Contains(ip) || v6unique.Contains(ip)
}
