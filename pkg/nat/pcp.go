package nat

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"net/netip"
	"time"
)

// PCP opcodes and result codes (RFC 6887).
const (
	pcpVersion = 2

	pcpOpcodeMap  = 1
	pcpOpcodePeer = 2

	pcpOpcodeResponseBit = 0x80

	pcpResultSuccess = 0

	pcpProtocolUDP = 17

	pcpPort = 5351

	pcpRequestLifetimeS = 3600
)

var ErrPCPResponse = errors.New("nat: unexpected pcp response")

// pcpRequest builds a MAP or PEER PCP request packet (RFC 6887 §7.1/§9/§11).
func pcpRequest(opcode byte, nonce [12]byte, internalPort, suggestedExternalPort uint16, peerAddr netip.Addr, peerPort uint16) []byte {
	size := 24 + 36
	if opcode == pcpOpcodePeer {
		size = 24 + 56
	}
	buf := make([]byte, size)
	buf[0] = pcpVersion
	buf[1] = opcode
	// buf[2:4] reserved
	binary.BigEndian.PutUint32(buf[4:8], pcpRequestLifetimeS)
	// buf[8:24]: client IP address (IPv4-mapped IPv6)
	copy(buf[8:24], v4MappedZero())

	opData := buf[24:]
	copy(opData[0:12], nonce[:])
	opData[12] = pcpProtocolUDP
	// opData[13:16] reserved
	binary.BigEndian.PutUint16(opData[16:18], internalPort)
	binary.BigEndian.PutUint16(opData[18:20], suggestedExternalPort)
	copy(opData[20:36], v4MappedZero())

	if opcode == pcpOpcodePeer {
		binary.BigEndian.PutUint16(opData[36:38], peerPort)
		// opData[38:40] reserved
		copy(opData[40:56], v4MappedZero())
		if peerAddr.IsValid() {
			copy(opData[40:56], v4Mapped(peerAddr))
		}
	}

	return buf
}

func v4MappedZero() []byte {
	var b [16]byte
	b[10], b[11] = 0xff, 0xff
	return b[:]
}

func v4Mapped(addr netip.Addr) []byte {
	var b [16]byte
	b[10], b[11] = 0xff, 0xff
	a4 := addr.As4()
	copy(b[12:16], a4[:])
	return b[:]
}

type pcpResponse struct {
	Opcode       byte
	Result       byte
	LifetimeS    uint32
	Nonce        [12]byte
	ExternalPort uint16
	ExternalIP   netip.Addr
	PeerPort     uint16
	PeerIP       netip.Addr
}

func parsePCPResponse(buf []byte, wantOpcode byte, wantNonce [12]byte) (pcpResponse, error) {
	if len(buf) < 24+36 {
		return pcpResponse{}, fmt.Errorf("%w: short packet", ErrPCPResponse)
	}
	if buf[0] != pcpVersion {
		return pcpResponse{}, fmt.Errorf("%w: bad version", ErrPCPResponse)
	}
	opcode := buf[1] &^ pcpOpcodeResponseBit
	if buf[1]&pcpOpcodeResponseBit == 0 || opcode != wantOpcode {
		return pcpResponse{}, fmt.Errorf("%w: bad opcode", ErrPCPResponse)
	}
	result := buf[3]
	lifetime := binary.BigEndian.Uint32(buf[4:8])

	opData := buf[24:]
	var resp pcpResponse
	resp.Opcode = opcode
	resp.Result = result
	resp.LifetimeS = lifetime

	if result != pcpResultSuccess {
		return resp, nil
	}

	copy(resp.Nonce[:], opData[0:12])
	if resp.Nonce != wantNonce {
		return pcpResponse{}, fmt.Errorf("%w: nonce mismatch", ErrPCPResponse)
	}
	resp.ExternalPort = binary.BigEndian.Uint16(opData[18:20])
	resp.ExternalIP = addrFromV4Mapped(opData[20:36])

	if wantOpcode == pcpOpcodePeer && len(opData) >= 56 {
		resp.PeerPort = binary.BigEndian.Uint16(opData[36:38])
		resp.PeerIP = addrFromV4Mapped(opData[40:56])
	}

	return resp, nil
}

func addrFromV4Mapped(b []byte) netip.Addr {
	if len(b) != 16 {
		return netip.Addr{}
	}
	var a [16]byte
	copy(a[:], b)
	addr := netip.AddrFrom16(a)
	if addr.Is4In6() {
		return netip.AddrFrom4(addr.As4())
	}
	return addr
}

// acquirePCP performs the MAP + PEER exchange described in spec.md §4.6.
func acquirePCP(gateway netip.Addr, internalPort uint16) (MappingHandle, string, error) {
	conn, err := net.DialUDP("udp4", nil, &net.UDPAddr{IP: gateway.AsSlice(), Port: pcpPort})
	if err != nil {
		return MappingHandle{}, "", fmt.Errorf("nat: dial pcp gateway: %w", err)
	}
	defer conn.Close()

	var nonce [12]byte
	if _, err := rand.Read(nonce[:]); err != nil {
		return MappingHandle{}, "", fmt.Errorf("nat: generate pcp nonce: %w", err)
	}

	req := pcpRequest(pcpOpcodeMap, nonce, internalPort, internalPort, netip.Addr{}, 0)
	resp, err := pcpRoundTrip(conn, req, pcpOpcodeMap, nonce)
	if err != nil {
		return MappingHandle{}, "", err
	}
	if resp.Result != pcpResultSuccess {
		return MappingHandle{}, "", fmt.Errorf("%w: map result code %d", ErrPCPResponse, resp.Result)
	}

	handle := MappingHandle{
		Backend:      BackendPCP,
		ExternalPort: resp.ExternalPort,
		Gateway:      gateway,
		LifetimeS:    int(resp.LifetimeS),
		ExternalIPv4: resp.ExternalIP,
	}

	var peerNonce [12]byte
	if _, err := rand.Read(peerNonce[:]); err != nil {
		return handle, "", nil
	}
	peerReq := pcpRequest(pcpOpcodePeer, peerNonce, internalPort, resp.ExternalPort, resp.ExternalIP, resp.ExternalPort)
	peerResp, err := pcpRoundTrip(conn, peerReq, pcpOpcodePeer, peerNonce)
	if err != nil || peerResp.Result != pcpResultSuccess {
		return handle, "", nil
	}
	peerState := fmt.Sprintf("peer=%s:%d", peerResp.PeerIP, peerResp.PeerPort)
	return handle, peerState, nil
}

func pcpRoundTrip(conn *net.UDPConn, req []byte, opcode byte, nonce [12]byte) (pcpResponse, error) {
	if err := conn.SetDeadline(time.Now().Add(ReceiveTimeout)); err != nil {
		return pcpResponse{}, err
	}
	if _, err := conn.Write(req); err != nil {
		return pcpResponse{}, fmt.Errorf("nat: send pcp request: %w", err)
	}
	buf := make([]byte, 1100)
	n, err := conn.Read(buf)
	if err != nil {
		return pcpResponse{}, fmt.Errorf("nat: receive pcp response: %w", err)
	}
	return parsePCPResponse(buf[:n], opcode, nonce)
}

// deletePCP issues a lifetime=0 MAP request to release a mapping
// (best-effort, per spec.md §4.6 teardown).
func deletePCP(gateway netip.Addr, internalPort uint16) error {
	conn, err := net.DialUDP("udp4", nil, &net.UDPAddr{IP: gateway.AsSlice(), Port: pcpPort})
	if err != nil {
		return err
	}
	defer conn.Close()

	var nonce [12]byte
	rand.Read(nonce[:])

	req := pcpRequest(pcpOpcodeMap, nonce, internalPort, 0, netip.Addr{}, 0)
	binary.BigEndian.PutUint32(req[4:8], 0) // lifetime = 0 means delete

	conn.SetDeadline(time.Now().Add(ReceiveTimeout))
	_, err = conn.Write(req)
	return err
}
