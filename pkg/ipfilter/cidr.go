package ipfilter

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"
)

// ErrInvalidCIDR wraps every CIDR validation failure so callers can
// classify them with errors.Is.
var ErrInvalidCIDR = errors.New("invalid CIDR")

type parsedCIDR struct {
	base   uint32
	prefix int
}

// ValidateCIDR checks that s is a well-formed IPv4 CIDR with an
// explicit prefix, like "10.0.0.0/24" or "0.0.0.0/0".
func ValidateCIDR(s string) error {
	_, err := parseCIDR(s)
	return err
}

func parseCIDR(s string) (parsedCIDR, error) {
	parts := strings.Split(s, "/")
	if len(parts) != 2 {
		return parsedCIDR{}, fmt.Errorf("%w %q: expected address/prefix", ErrInvalidCIDR, s)
	}

	ip := net.ParseIP(parts[0])
	if ip == nil || ip.To4() == nil {
		return parsedCIDR{}, fmt.Errorf("%w %q: not an IPv4 address", ErrInvalidCIDR, s)
	}

	prefix, err := strconv.Atoi(parts[1])
	if err != nil || prefix < 0 || prefix > 32 {
		return parsedCIDR{}, fmt.Errorf("%w %q: prefix must be 0-32", ErrInvalidCIDR, s)
	}

	return parsedCIDR{base: ipToUint32(ip.To4()), prefix: prefix}, nil
}

// normalizeIPv4 returns the 4-byte form of an address, unwrapping
// IPv4-mapped IPv6 (::ffff:a.b.c.d). Plain IPv6 has no IPv4 form and
// returns false.
func normalizeIPv4(s string) (net.IP, bool) {
	ip := net.ParseIP(strings.TrimSpace(s))
	if ip == nil {
		return nil, false
	}
	v4 := ip.To4()
	if v4 == nil {
		return nil, false
	}
	return v4, true
}

func ipToUint32(ip net.IP) uint32 {
	return uint32(ip[0])<<24 | uint32(ip[1])<<16 | uint32(ip[2])<<8 | uint32(ip[3])
}

// contains reports whether addr falls inside the range. A /0 prefix
// matches everything.
func (c parsedCIDR) contains(addr uint32) bool {
	mask := ^uint32(0) << (32 - c.prefix)
	return addr&mask == c.base&mask
}
