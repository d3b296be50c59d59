package util

import (
	"bytes"
	"fmt"
	"net"
	"strings"
)

// IsValidIP checks if a string is a valid IPv4 or IPv6 address
func IsValidIP(s string) bool {
	return net.ParseIP(strings.TrimSpace(s)) != nil
}

// IsValidIPv4 checks if a string is a valid IPv4 address
func IsValidIPv4(ipStr string) bool {
	ip := net.ParseIP(ipStr)
	return ip != nil && ip.To4() != nil
}

// IsValidIPOrCIDR accepts a bare address or an address with prefix length,
// the two forms an ip-netmask value may take.
func IsValidIPOrCIDR(s string) bool {
	s = strings.TrimSpace(s)
	if strings.Contains(s, "/") {
		_, _, err := net.ParseCIDR(s)
		return err == nil
	}
	return IsValidIP(s)
}

// ParseIPRange parses "start-end" where both ends are addresses of the same
// family and start <= end.
func ParseIPRange(spec string) (net.IP, net.IP, error) {
	parts := strings.SplitN(spec, "-", 2)
	if len(parts) != 2 {
		return nil, nil, fmt.Errorf("invalid IP range %q (expected start-end)", spec)
	}
	start := net.ParseIP(strings.TrimSpace(parts[0]))
	end := net.ParseIP(strings.TrimSpace(parts[1]))
	if start == nil || end == nil {
		return nil, nil, fmt.Errorf("invalid IP range %q: both ends must be IP addresses", spec)
	}
	if (start.To4() == nil) != (end.To4() == nil) {
		return nil, nil, fmt.Errorf("invalid IP range %q: mixed address families", spec)
	}
	if start.To4() != nil {
		start, end = start.To4(), end.To4()
	}
	if bytes.Compare(start, end) > 0 {
		return nil, nil, fmt.Errorf("invalid IP range %q: start is greater than end", spec)
	}
	return start, end, nil
}

// IsValidIPWildcard checks "address/wildcard-mask" notation, e.g.
// "10.1.0.5/0.0.255.0".
func IsValidIPWildcard(s string) bool {
	parts := strings.SplitN(s, "/", 2)
	if len(parts) != 2 {
		return false
	}
	return IsValidIPv4(strings.TrimSpace(parts[0])) && IsValidIPv4(strings.TrimSpace(parts[1]))
}
