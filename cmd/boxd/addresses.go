package main

import (
	"net"
	"net/netip"

	"github.com/boxnet/boxd/pkg/presence"
)

// localAddresses enumerates the addresses of this host's up interfaces
// (loopback included, as ScopeLoopback), classified the way presence.Address
// requires, for the presence RecordSource.
// UDPPort is stamped onto every address, since Box listens on one UDP port
// for all interfaces (spec.md §4.5 doesn't model per-address ports).
func localAddresses(udpPort uint16) []presence.Address {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil
	}

	var out []presence.Address
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 {
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
			addr, ok := netip.AddrFromSlice(ipNet.IP)
			if !ok {
				continue
			}
			addr = addr.Unmap()

			var scope presence.AddressScope
			switch {
			case addr.IsLoopback():
				scope = presence.ScopeLoopback
			case addr.IsLinkLocalUnicast():
				scope = presence.ScopeLink
			default:
				scope = presence.ScopeGlobal
			}

			out = append(out, presence.Address{
				IP:     addr.String(),
				Port:   udpPort,
				Scope:  scope,
				Source: presence.SourceProbe,
			})
		}
	}
	return out
}

// hasGlobalIPv6 reports whether any local address is a global-scope IPv6
// address, for the admin status payload's hasGlobalIPv6 field.
func hasGlobalIPv6() bool {
	for _, a := range localAddresses(0) {
		if a.Scope != presence.ScopeGlobal {
			continue
		}
		addr, err := netip.ParseAddr(a.IP)
		if err == nil && addr.Is6() && !addr.Is4In6() {
			return true
		}
	}
	return false
}

// globalIPv6Addresses returns the string form of every global-scope IPv6
// address, for LocationRecord.Connectivity.GlobalIPv6.
func globalIPv6Addresses() []string {
	var out []string
	for _, a := range localAddresses(0) {
		if a.Scope != presence.ScopeGlobal {
			continue
		}
		addr, err := netip.ParseAddr(a.IP)
		if err == nil && addr.Is6() && !addr.Is4In6() {
			out = append(out, a.IP)
		}
	}
	return out
}

// firstGlobalIPv4 returns the first global-scope IPv4 address found, for
// NAT gateway discovery's local-IP argument.
func firstGlobalIPv4() (netip.Addr, bool) {
	for _, a := range localAddresses(0) {
		if a.Scope != presence.ScopeGlobal {
			continue
		}
		addr, err := netip.ParseAddr(a.IP)
		if err == nil && addr.Is4() {
			return addr, true
		}
	}
	return netip.Addr{}, false
}
