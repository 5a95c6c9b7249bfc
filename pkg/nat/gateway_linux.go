//go:build linux

package nat

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"net/netip"
	"os"
	"strconv"

	"golang.org/x/sys/unix"
)

// DiscoverGateway reads /proc/net/route for the default (destination
// 00000000) route carrying RTF_GATEWAY, per spec.md §4.6.
func DiscoverGateway() (netip.Addr, error) {
	f, err := os.Open("/proc/net/route")
	if err != nil {
		return netip.Addr{}, fmt.Errorf("nat: open /proc/net/route: %w", err)
	}
	defer f.Close()

	sc := bufio.NewScanner(f)
	sc.Scan() // header line

	for sc.Scan() {
		fields := splitRouteFields(sc.Text())
		if len(fields) < 4 {
			continue
		}
		iface, dest, gateway, flagsHex := fields[0], fields[1], fields[2], fields[3]
		_ = iface
		if dest != "00000000" {
			continue
		}
		flags, err := strconv.ParseUint(flagsHex, 16, 32)
		if err != nil {
			continue
		}
		if flags&unix.RTF_GATEWAY == 0 {
			continue
		}
		addr, err := parseHexLittleEndianIPv4(gateway)
		if err != nil {
			continue
		}
		return addr, nil
	}
	if err := sc.Err(); err != nil {
		return netip.Addr{}, fmt.Errorf("nat: read /proc/net/route: %w", err)
	}
	return netip.Addr{}, ErrNoGateway
}

func splitRouteFields(line string) []string {
	var fields []string
	start := -1
	for i, r := range line {
		if r == '\t' || r == ' ' {
			if start >= 0 {
				fields = append(fields, line[start:i])
				start = -1
			}
			continue
		}
		if start < 0 {
			start = i
		}
	}
	if start >= 0 {
		fields = append(fields, line[start:])
	}
	return fields
}

// parseHexLittleEndianIPv4 parses the 8-hex-digit, little-endian-word
// address format /proc/net/route uses for IPv4 fields.
func parseHexLittleEndianIPv4(hexWord string) (netip.Addr, error) {
	v, err := strconv.ParseUint(hexWord, 16, 32)
	if err != nil {
		return netip.Addr{}, err
	}
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], uint32(v))
	return netip.AddrFrom4(b), nil
}
