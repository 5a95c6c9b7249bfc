// Package transport implements Box's framed, authenticated UDP datagram
// transport: a pre-shared-key AEAD mode ("Noise-lite") multiplexed with a
// cleartext framing mode, with nonce/replay defense.
//
// The buffer layout mirrors the teacher's allocation-light packet framing
// (header | nonce | ciphertext | tag, sliced from one backing array) so a
// send or receive round trip does a single allocation.
package transport

import (
	"errors"
	"fmt"

	"golang.org/x/crypto/chacha20poly1305"
)

// Mode selects the framing used by a Socket, Encryptor, or Decryptor.
type Mode int

const (
	// Clear passes plaintext through with no cryptography.
	Clear Mode = iota
	// AeadPsk wraps each datagram in XChaCha20-Poly1305 keyed by a
	// pre-shared key.
	AeadPsk
)

func (m Mode) String() string {
	switch m {
	case Clear:
		return "clear"
	case AeadPsk:
		return "aead-psk"
	default:
		return "unknown"
	}
}

const (
	saltSize    = 16
	counterSize = 8
	nonceSize   = saltSize + counterSize // 24, matches chacha20poly1305.NewX's nonce size
	tagSize     = chacha20poly1305.Overhead
	headerSize  = 4

	// MaxDatagram is the largest datagram Box will send or accept.
	MaxDatagram = 1200

	// MaxPlaintext is the largest plaintext payload that fits in
	// MaxDatagram once framed under AeadPsk.
	MaxPlaintext = MaxDatagram - headerSize - nonceSize - tagSize
)

// frameHeader is fed to the AEAD as associated data, and identifies an
// AeadPsk-framed datagram on the wire.
var frameHeader = [headerSize]byte{'N', 'Z', 0x01, 0x00}

// RejectReason identifies why Decryptor.Open rejected a datagram. It is only
// meant to be inspected by tests; callers should treat any rejection
// identically (spec.md §4.1: "opaque TransportError::Rejected").
type RejectReason uint8

const (
	ReasonBadHeader RejectReason = iota + 1
	ReasonSaltMismatch
	ReasonReplay
	ReasonTooOld
	ReasonAeadFailure
)

func (r RejectReason) String() string {
	switch r {
	case ReasonBadHeader:
		return "bad-header"
	case ReasonSaltMismatch:
		return "salt-mismatch"
	case ReasonReplay:
		return "replay"
	case ReasonTooOld:
		return "too-old"
	case ReasonAeadFailure:
		return "aead-failure"
	default:
		return "unknown"
	}
}

// ErrRejected is the sentinel all rejected datagrams wrap, so callers can use
// errors.Is(err, transport.ErrRejected) without caring why.
var ErrRejected = errors.New("transport: rejected")

// ErrCounterExhausted is returned by Encryptor.Seal when the local nonce
// counter would wrap.
var ErrCounterExhausted = errors.New("transport: nonce counter exhausted")

// ErrTooLarge is returned by Encryptor.Seal when the plaintext doesn't fit in
// MaxDatagram once framed.
var ErrTooLarge = errors.New("transport: plaintext too large")

// RejectError carries the internal reason a datagram was rejected, for
// tests. It unwraps to ErrRejected.
type RejectError struct {
	Reason RejectReason
}

func (e *RejectError) Error() string {
	return fmt.Sprintf("transport: rejected (%s)", e.Reason)
}

func (e *RejectError) Unwrap() error { return ErrRejected }

func reject(r RejectReason) error { return &RejectError{Reason: r} }

// deriveKey copies psk (zero-padded or truncated) into a 32-byte AEAD key.
// This is the "PSK-only bring-up shortcut" described in spec.md §9: no Noise
// handshake binds static keys into the transcript, by design.
func deriveKey(psk []byte) [chacha20poly1305.KeySize]byte {
	var key [chacha20poly1305.KeySize]byte
	copy(key[:], psk)
	return key
}

func newAEAD(psk []byte) (interface {
	Seal(dst, nonce, plaintext, additionalData []byte) []byte
	Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error)
	NonceSize() int
}, error) {
	key := deriveKey(psk)
	a, err := chacha20poly1305.NewX(key[:])
	if err != nil {
		return nil, fmt.Errorf("transport: init aead: %w", err)
	}
	if a.NonceSize() != nonceSize {
		return nil, fmt.Errorf("transport: unexpected nonce size %d", a.NonceSize())
	}
	return a, nil
}
