package pool

import (
	"fmt"
	"net"
)

// resolveHost turns a bind host into an IP. Empty means all interfaces (dual stack).
func resolveHost(host string) (net.IP, error) {
	if host == "" {
		return net.IPv6unspecified, nil
	}
	if ip := net.ParseIP(host); ip != nil {
		return ip, nil
	}
	addr, err := net.ResolveIPAddr("ip", host)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", host, err)
	}
	return addr.IP, nil
}

// DialHost is the host clients on this machine should dial to reach a pool
// bound to host.
func DialHost(host string) string {
	switch host {
	case "", "::", "0.0.0.0":
		return "localhost"
	}
	return host
}
