package models

import "net"

// IsInternalIP reports whether an address is private (RFC1918), loopback,
// link-local, or otherwise non-routable. Unparseable addresses are
// treated as internal so they never reach reputation lookups.
func IsInternalIP(address string) bool {
	ip := net.ParseIP(address)
	if ip == nil {
		return true
	}
	return ip.IsPrivate() || ip.IsLoopback() || ip.IsLinkLocalUnicast() ||
		ip.IsLinkLocalMulticast() || ip.IsUnspecified()
}
