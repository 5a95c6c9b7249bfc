// Package boxid implements the 128-bit node/user/request identifiers used in
// every Box wire frame.
package boxid

import (
	"crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
)

// ID is a 128-bit identifier with the same byte layout as a UUID, used for
// NodeId, UserId, and request IDs.
type ID [16]byte

// Nil is the zero ID, used for unauthenticated requests and the HELLO frame.
var Nil ID

// New generates a random ID using a CSPRNG, with the UUIDv4 variant/version
// bits set so it prints in the familiar 8-4-4-4-12 form. The bits carry no
// meaning to Box itself; they're set purely so tooling that expects RFC 4122
// UUIDs (log viewers, jq, etc.) renders these sensibly.
func New() (ID, error) {
	var id ID
	if _, err := rand.Read(id[:]); err != nil {
		return id, fmt.Errorf("generate id: %w", err)
	}
	id[6] = (id[6] & 0x0f) | 0x40
	id[8] = (id[8] & 0x3f) | 0x80
	return id, nil
}

// MustNew is like New, but panics on error. It is intended for use during
// initialization where a CSPRNG failure is unrecoverable anyway.
func MustNew() ID {
	id, err := New()
	if err != nil {
		panic(err)
	}
	return id
}

// IsNil reports whether id is the zero value.
func (id ID) IsNil() bool {
	return id == Nil
}

// String formats id in 8-4-4-4-12 hex form.
func (id ID) String() string {
	var b [36]byte
	hex.Encode(b[:8], id[:4])
	b[8] = '-'
	hex.Encode(b[9:13], id[4:6])
	b[13] = '-'
	hex.Encode(b[14:18], id[6:8])
	b[18] = '-'
	hex.Encode(b[19:23], id[8:10])
	b[23] = '-'
	hex.Encode(b[24:], id[10:16])
	return string(b[:])
}

// ErrInvalidID is returned by Parse when the input isn't a valid ID.
var ErrInvalidID = errors.New("boxid: invalid id")

// Parse parses a hex-formatted ID, with or without dashes.
func Parse(s string) (ID, error) {
	var id ID

	var raw [32]byte
	n := 0
	for i := 0; i < len(s); i++ {
		if s[i] == '-' {
			continue
		}
		if n == len(raw) {
			return id, ErrInvalidID
		}
		raw[n] = s[i]
		n++
	}
	if n != len(raw) {
		return id, ErrInvalidID
	}
	if _, err := hex.Decode(id[:], raw[:]); err != nil {
		return id, fmt.Errorf("%w: %v", ErrInvalidID, err)
	}
	return id, nil
}

// FromBytes copies a 16-byte slice into an ID. It panics if b isn't exactly
// 16 bytes, since callers control the slice length (wire decoding already
// validates frame length before calling this).
func FromBytes(b []byte) ID {
	var id ID
	if len(b) != len(id) {
		panic(fmt.Sprintf("boxid: FromBytes: want 16 bytes, got %d", len(b)))
	}
	copy(id[:], b)
	return id
}

// MarshalText implements encoding.TextMarshaler, used for JSON admin
// responses.
func (id ID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (id *ID) UnmarshalText(b []byte) error {
	v, err := Parse(string(b))
	if err != nil {
		return err
	}
	*id = v
	return nil
}
