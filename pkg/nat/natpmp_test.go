package nat

import (
	"encoding/binary"
	"testing"
)

func TestNATPMPRequestLayout(t *testing.T) {
	req := make([]byte, 12)
	req[0] = natpmpVersion
	req[1] = natpmpOpcodeMapUDP
	binary.BigEndian.PutUint16(req[4:6], 5000)
	binary.BigEndian.PutUint16(req[6:8], 5000)
	binary.BigEndian.PutUint32(req[8:12], natpmpRequestLifetimeS)

	if req[1] != 1 {
		t.Fatalf("opcode = %d, want 1", req[1])
	}
	if got := binary.BigEndian.Uint16(req[4:6]); got != 5000 {
		t.Errorf("internal port = %d, want 5000", got)
	}
	if got := binary.BigEndian.Uint32(req[8:12]); got != 3600 {
		t.Errorf("lifetime = %d, want 3600", got)
	}
}

func TestNATPMPResponseParsingSuccess(t *testing.T) {
	resp := make([]byte, 16)
	resp[0] = 0
	resp[1] = natpmpOpcodeMapUDP | natpmpOpcodeResponseBit
	binary.BigEndian.PutUint16(resp[2:4], natpmpResultSuccess)
	binary.BigEndian.PutUint16(resp[10:12], 5000)
	binary.BigEndian.PutUint32(resp[12:16], 3600)

	if resp[1] != natpmpOpcodeMapUDP|natpmpOpcodeResponseBit {
		t.Fatalf("bad opcode byte")
	}
	resultCode := binary.BigEndian.Uint16(resp[2:4])
	if resultCode != natpmpResultSuccess {
		t.Fatalf("result code = %d", resultCode)
	}
	externalPort := binary.BigEndian.Uint16(resp[10:12])
	if externalPort != 5000 {
		t.Errorf("external port = %d, want 5000", externalPort)
	}
	lifetime := binary.BigEndian.Uint32(resp[12:16])
	if lifetime != 3600 {
		t.Errorf("lifetime = %d, want 3600", lifetime)
	}
}

func TestNATPMPResponseRejectsErrorResult(t *testing.T) {
	resp := make([]byte, 16)
	resp[1] = natpmpOpcodeMapUDP | natpmpOpcodeResponseBit
	binary.BigEndian.PutUint16(resp[2:4], 3) // network failure
	resultCode := binary.BigEndian.Uint16(resp[2:4])
	if resultCode == natpmpResultSuccess {
		t.Fatalf("expected non-success result code")
	}
}
