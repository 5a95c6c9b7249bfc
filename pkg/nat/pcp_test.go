package nat

import (
	"net/netip"
	"testing"
)

func TestPCPRequestMapRoundTrip(t *testing.T) {
	var nonce [12]byte
	copy(nonce[:], []byte("abcdefghijkl"))

	req := pcpRequest(pcpOpcodeMap, nonce, 4242, 4242, netip.Addr{}, 0)
	if len(req) != 24+36 {
		t.Fatalf("got length %d, want 60", len(req))
	}
	if req[0] != pcpVersion || req[1] != pcpOpcodeMap {
		t.Fatalf("bad header: %v", req[:2])
	}

	// Build a success response referencing the same nonce.
	resp := make([]byte, 24+36)
	resp[0] = pcpVersion
	resp[1] = pcpOpcodeMap | pcpOpcodeResponseBit
	resp[3] = pcpResultSuccess
	putUint32(resp[4:8], 3600)
	copy(resp[24:36], nonce[:])
	// external port at opData[18:20]
	resp[24+18] = 0x10
	resp[24+19] = 0x92 // 0x1092 = 4242
	// external IPv4-mapped address at opData[20:36]
	copy(resp[24+20:24+36], v4Mapped(netip.MustParseAddr("203.0.113.5")))

	parsed, err := parsePCPResponse(resp, pcpOpcodeMap, nonce)
	if err != nil {
		t.Fatal(err)
	}
	if parsed.Result != pcpResultSuccess {
		t.Fatalf("result = %d", parsed.Result)
	}
	if parsed.ExternalPort != 4242 {
		t.Errorf("external port = %d, want 4242", parsed.ExternalPort)
	}
	if parsed.ExternalIP.String() != "203.0.113.5" {
		t.Errorf("external ip = %s", parsed.ExternalIP)
	}
	if parsed.LifetimeS != 3600 {
		t.Errorf("lifetime = %d", parsed.LifetimeS)
	}
}

func TestParsePCPResponseRejectsNonceMismatch(t *testing.T) {
	var nonce, otherNonce [12]byte
	copy(nonce[:], []byte("abcdefghijkl"))
	copy(otherNonce[:], []byte("zzzzzzzzzzzz"))

	resp := make([]byte, 24+36)
	resp[0] = pcpVersion
	resp[1] = pcpOpcodeMap | pcpOpcodeResponseBit
	resp[3] = pcpResultSuccess
	copy(resp[24:36], otherNonce[:])

	if _, err := parsePCPResponse(resp, pcpOpcodeMap, nonce); err == nil {
		t.Fatal("expected nonce mismatch error")
	}
}

func TestParsePCPResponseRejectsBadOpcode(t *testing.T) {
	var nonce [12]byte
	resp := make([]byte, 24+36)
	resp[0] = pcpVersion
	resp[1] = pcpOpcodePeer | pcpOpcodeResponseBit
	if _, err := parsePCPResponse(resp, pcpOpcodeMap, nonce); err == nil {
		t.Fatal("expected opcode mismatch error")
	}
}

func TestParsePCPResponseShortPacket(t *testing.T) {
	var nonce [12]byte
	if _, err := parsePCPResponse(make([]byte, 10), pcpOpcodeMap, nonce); err == nil {
		t.Fatal("expected short packet error")
	}
}

func TestAddrFromV4MappedHandlesNonMapped(t *testing.T) {
	var b [16]byte // all-zero: not 4-in-6 (bytes 10,11 would need to be 0xff,0xff)
	addr := addrFromV4Mapped(b[:])
	if addr.Is4() {
		t.Errorf("all-zero input should not decode as a v4 address, got %v", addr)
	}
}

func TestAddrFromV4MappedWrongLength(t *testing.T) {
	addr := addrFromV4Mapped([]byte{1, 2, 3})
	if addr.IsValid() {
		t.Errorf("expected zero Addr for wrong-length input, got %v", addr)
	}
}

func TestV4MappedRoundTrip(t *testing.T) {
	addr := netip.MustParseAddr("198.51.100.7")
	mapped := v4Mapped(addr)
	got := addrFromV4Mapped(mapped)
	if got.String() != addr.String() {
		t.Errorf("got %s, want %s", got, addr)
	}
}

func putUint32(b []byte, v uint32) {
	b[0] = byte(v >> 24)
	b[1] = byte(v >> 16)
	b[2] = byte(v >> 8)
	b[3] = byte(v)
}
