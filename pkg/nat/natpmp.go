package nat

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"time"
)

// NAT-PMP opcodes and result codes (RFC 6886).
const (
	natpmpVersion = 0

	natpmpOpcodeExternalAddress = 0
	natpmpOpcodeMapUDP          = 1

	natpmpOpcodeResponseBit = 0x80

	natpmpResultSuccess = 0

	natpmpPort = 5351

	natpmpRequestLifetimeS = 3600
)

var ErrNATPMPResponse = errors.New("nat: unexpected nat-pmp response")

// acquireNATPMP requests a UDP port mapping via NAT-PMP (spec.md §4.6 step 3).
func acquireNATPMP(gateway netip.Addr, internalPort uint16) (MappingHandle, error) {
	conn, err := net.DialUDP("udp4", nil, &net.UDPAddr{IP: gateway.AsSlice(), Port: natpmpPort})
	if err != nil {
		return MappingHandle{}, fmt.Errorf("nat: dial nat-pmp gateway: %w", err)
	}
	defer conn.Close()

	req := make([]byte, 12)
	req[0] = natpmpVersion
	req[1] = natpmpOpcodeMapUDP
	// req[2:4] reserved
	binary.BigEndian.PutUint16(req[4:6], internalPort)
	binary.BigEndian.PutUint16(req[6:8], internalPort)
	binary.BigEndian.PutUint32(req[8:12], natpmpRequestLifetimeS)

	if err := conn.SetDeadline(time.Now().Add(ReceiveTimeout)); err != nil {
		return MappingHandle{}, err
	}
	if _, err := conn.Write(req); err != nil {
		return MappingHandle{}, fmt.Errorf("nat: send nat-pmp request: %w", err)
	}

	buf := make([]byte, 16)
	n, err := conn.Read(buf)
	if err != nil {
		return MappingHandle{}, fmt.Errorf("nat: receive nat-pmp response: %w", err)
	}
	buf = buf[:n]

	if len(buf) < 16 {
		return MappingHandle{}, fmt.Errorf("%w: short packet", ErrNATPMPResponse)
	}
	if buf[1] != natpmpOpcodeMapUDP|natpmpOpcodeResponseBit {
		return MappingHandle{}, fmt.Errorf("%w: bad opcode", ErrNATPMPResponse)
	}
	resultCode := binary.BigEndian.Uint16(buf[2:4])
	if resultCode != natpmpResultSuccess {
		return MappingHandle{}, fmt.Errorf("%w: result code %d", ErrNATPMPResponse, resultCode)
	}

	externalPort := binary.BigEndian.Uint16(buf[10:12])
	lifetime := binary.BigEndian.Uint32(buf[12:16])

	return MappingHandle{
		Backend:      BackendNATPMP,
		ExternalPort: externalPort,
		Gateway:      gateway,
		LifetimeS:    int(lifetime),
	}, nil
}

// deleteNATPMP issues a lifetime=0 mapping request to release it
// (best-effort, per spec.md §4.6 teardown).
func deleteNATPMP(gateway netip.Addr, internalPort uint16) error {
	conn, err := net.DialUDP("udp4", nil, &net.UDPAddr{IP: gateway.AsSlice(), Port: natpmpPort})
	if err != nil {
		return err
	}
	defer conn.Close()

	req := make([]byte, 12)
	req[0] = natpmpVersion
	req[1] = natpmpOpcodeMapUDP
	binary.BigEndian.PutUint16(req[4:6], internalPort)
	binary.BigEndian.PutUint16(req[6:8], 0)
	binary.BigEndian.PutUint32(req[8:12], 0)

	conn.SetDeadline(time.Now().Add(ReceiveTimeout))
	_, err = conn.Write(req)
	return err
}
