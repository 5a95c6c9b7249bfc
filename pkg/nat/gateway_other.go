//go:build !linux

package nat

import (
	"net"
	"net/netip"
)

// DiscoverGateway is a best-effort fallback for platforms other than
// Linux: it takes the first IPv4 address of the first up, non-loopback
// interface and replaces its last octet with 1. The macOS
// system-configuration-store lookup spec.md §4.6 describes requires
// Cocoa/SystemConfiguration framework bindings no dependency in the
// reference corpus provides (see DESIGN.md); callers on those platforms can
// pass an explicit gateway from configuration as the gatewayOverride
// argument of NewCoordinator or Probe.
func DiscoverGateway() (netip.Addr, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return netip.Addr{}, err
	}
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}
		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}
		for _, a := range addrs {
			ipNet, ok := a.(*net.IPNet)
			if !ok {
				continue
			}
			ip4 := ipNet.IP.To4()
			if ip4 == nil || ip4.IsLoopback() {
				continue
			}
			gw := make(net.IP, len(ip4))
			copy(gw, ip4)
			gw[len(gw)-1] = 1
			addr, ok := netip.AddrFromSlice(gw)
			if !ok {
				continue
			}
			return addr.Unmap(), nil
		}
	}
	return netip.Addr{}, ErrNoGateway
}
