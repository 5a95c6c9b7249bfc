package boxid

import "testing"

func TestNewIsNotNil(t *testing.T) {
	id, err := New()
	if err != nil {
		t.Fatal(err)
	}
	if id.IsNil() {
		t.Fatal("New returned the nil id")
	}
}

func TestStringParseRoundTrip(t *testing.T) {
	id := MustNew()
	s := id.String()
	if len(s) != 36 {
		t.Fatalf("unexpected string length %d (%q)", len(s), s)
	}
	got, err := Parse(s)
	if err != nil {
		t.Fatal(err)
	}
	if got != id {
		t.Fatalf("parse round-trip mismatch: got %v, want %v", got, id)
	}
}

func TestParseWithoutDashes(t *testing.T) {
	id := MustNew()
	s := id.String()
	var compact string
	for _, c := range s {
		if c != '-' {
			compact += string(c)
		}
	}
	got, err := Parse(compact)
	if err != nil {
		t.Fatal(err)
	}
	if got != id {
		t.Fatal("parse without dashes mismatch")
	}
}

func TestParseInvalid(t *testing.T) {
	cases := []string{"", "not-a-uuid", "00000000-0000-0000-0000-00000000000", "zz000000-0000-0000-0000-000000000000"}
	for _, c := range cases {
		if _, err := Parse(c); err == nil {
			t.Errorf("Parse(%q): expected error", c)
		}
	}
}

func TestFromBytesPanicsOnWrongLength(t *testing.T) {
	defer func() {
		if recover() == nil {
			t.Fatal("expected panic")
		}
	}()
	FromBytes([]byte{1, 2, 3})
}

func TestNilIsZero(t *testing.T) {
	var id ID
	if !id.IsNil() {
		t.Fatal("zero value should be nil")
	}
	if Nil.String() != "00000000-0000-0000-0000-000000000000" {
		t.Fatalf("unexpected Nil string: %s", Nil.String())
	}
}
