//go:build linux

package nat

import "testing"

func TestSplitRouteFields(t *testing.T) {
	line := "eth0\t00000000\t0102A8C0\t0003\t0\t0\t0\t00000000\t0\t0\t0"
	fields := splitRouteFields(line)
	want := []string{"eth0", "00000000", "0102A8C0", "0003", "0", "0", "0", "00000000", "0", "0", "0"}
	if len(fields) != len(want) {
		t.Fatalf("got %d fields, want %d: %v", len(fields), len(want), fields)
	}
	for i := range want {
		if fields[i] != want[i] {
			t.Errorf("field %d = %q, want %q", i, fields[i], want[i])
		}
	}
}

func TestParseHexLittleEndianIPv4(t *testing.T) {
	// 0102A8C0 little-endian bytes -> C0 A8 02 01 -> 192.168.2.1
	addr, err := parseHexLittleEndianIPv4("0102A8C0")
	if err != nil {
		t.Fatal(err)
	}
	if addr.String() != "192.168.2.1" {
		t.Errorf("got %s, want 192.168.2.1", addr)
	}
}

func TestParseHexLittleEndianIPv4Invalid(t *testing.T) {
	if _, err := parseHexLittleEndianIPv4("zz"); err == nil {
		t.Fatal("expected error for non-hex input")
	}
}
