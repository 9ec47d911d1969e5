package utils

import (
	"net/netip"
	"strings"
)

// ParseDottedQuad parses "a.b.c.d". Malformed input yields 0.0.0.0 and ok=false.
func ParseDottedQuad(value string) (addr netip.Addr, ok bool) {
	addr, err := netip.ParseAddr(strings.TrimSpace(value))
	if err != nil || !addr.Is4() {
		return netip.IPv4Unspecified(), false
	}
	return addr, true
}
