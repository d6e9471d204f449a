// Package netutil finds addresses for node bootstrap when a wildcard bind
// address is configured, and parses "port or addr" CLI-style arguments.
// Adapted from the original node's netutil.rs: this keeps the same two
// public operations (local IP selection, port-or-addr parsing) but drops
// the public-IP HTTP lookup, which has no place in a deterministic,
// testable core (DESIGN.md).
package netutil

import (
	"fmt"
	"net"
	"strconv"
)

// LocalIP returns the first non-loopback, non-link-local IPv4 address
// bound to any local interface, mirroring find_eth0ish_ip_addr's
// candidate-skipping rules (loopback, multicast, link-local).
func LocalIP() (net.IP, error) {
	addrs, err := net.InterfaceAddrs()
	if err != nil {
		return nil, err
	}
	for _, a := range addrs {
		ipnet, ok := a.(*net.IPNet)
		if !ok {
			continue
		}
		ip := ipnet.IP.To4()
		if ip == nil {
			continue
		}
		if ip.IsLoopback() || ip.IsMulticast() || ip.IsLinkLocalUnicast() {
			continue
		}
		return ip, nil
	}
	return nil, fmt.Errorf("netutil: no usable local ipv4 address found")
}

// ParsePortOrAddr parses optstr as either a bare port number (combined with
// 0.0.0.0) or a full host:port address, falling back to 0.0.0.0:defaultPort
// when optstr is empty or unparsable as either.
func ParsePortOrAddr(optstr string, defaultPort int) *net.UDPAddr {
	fallback := &net.UDPAddr{IP: net.IPv4zero, Port: defaultPort}
	if optstr == "" {
		return fallback
	}
	if port, err := strconv.Atoi(optstr); err == nil {
		return &net.UDPAddr{IP: net.IPv4zero, Port: port}
	}
	if addr, err := net.ResolveUDPAddr("udp", optstr); err == nil {
		return addr
	}
	return fallback
}
