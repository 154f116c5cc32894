package agent

import (
	"errors"
	"fmt"
	"net/netip"
	"strings"
)

// ErrSubnetTooLarge is returned when a subnet holds more hosts than allowed.
var ErrSubnetTooLarge = errors.New("subnet exceeds host ceiling")

// DefaultMaxHostsPerSubnet is the host ceiling used when none is configured.
const DefaultMaxHostsPerSubnet = 1024

// ExpandSubnet lists the host addresses of an IPv4 CIDR. The network and
// broadcast addresses are left out for prefixes shorter than /31. A bare
// address is treated as a single host. A maxHosts of zero or less falls back
// to DefaultMaxHostsPerSubnet.
func ExpandSubnet(cidr string, maxHosts int) ([]string, error) {
	if maxHosts <= 0 {
		maxHosts = DefaultMaxHostsPerSubnet
	}
	cidr = strings.TrimSpace(cidr)
	if !strings.Contains(cidr, "/") {
		addr, err := netip.ParseAddr(cidr)
		if err != nil {
			return nil, fmt.Errorf("parse subnet %q: %w", cidr, err)
		}
		return []string{addr.String()}, nil
	}

	prefix, err := netip.ParsePrefix(cidr)
	if err != nil {
		return nil, fmt.Errorf("parse subnet %q: %w", cidr, err)
	}
	if !prefix.Addr().Is4() {
		return nil, fmt.Errorf("subnet %q: only IPv4 is scanned", cidr)
	}
	prefix = prefix.Masked()

	bits := 32 - prefix.Bits()
	total := int64(1) << bits
	hosts := total
	if bits >= 2 {
		hosts -= 2
	}
	if hosts > int64(maxHosts) {
		return nil, fmt.Errorf("%w: %s has %d hosts, limit %d", ErrSubnetTooLarge, cidr, hosts, maxHosts)
	}

	out := make([]string, 0, hosts)
	addr := prefix.Addr()
	for i := int64(0); i < total; i++ {
		if bits >= 2 && (i == 0 || i == total-1) {
			addr = addr.Next()
			continue
		}
		out = append(out, addr.String())
		addr = addr.Next()
	}
	return out, nil
}
