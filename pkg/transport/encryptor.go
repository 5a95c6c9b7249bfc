package transport

import (
	"crypto/rand"
	"encoding/binary"
)

// Encryptor holds the send-side state of a TransportSession: the local
// nonce salt and monotonic counter. It is owned exclusively by the
// NetworkOutput stage (spec.md §5) so the AEAD counter never needs a mutex.
type Encryptor struct {
	mode Mode
	aead interface {
		Seal(dst, nonce, plaintext, additionalData []byte) []byte
		Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error)
		NonceSize() int
	}
	salt    [saltSize]byte
	counter uint64 // last counter value used; 0 means no frame sent yet

	lastFrame []byte // for the debug resend hook
}

// NewEncryptor creates an Encryptor for AeadPsk mode using psk.
func NewEncryptor(psk []byte) (*Encryptor, error) {
	aead, err := newAEAD(psk)
	if err != nil {
		return nil, err
	}
	e := &Encryptor{mode: AeadPsk, aead: aead}
	if _, err := rand.Read(e.salt[:]); err != nil {
		return nil, err
	}
	return e, nil
}

// NewClearEncryptor creates an Encryptor that performs no cryptography.
func NewClearEncryptor() *Encryptor {
	return &Encryptor{mode: Clear}
}

// Salt returns the local nonce salt, pinned by peers on first receipt.
func (e *Encryptor) Salt() [saltSize]byte { return e.salt }

// Seal frames plaintext for transmission. Under Clear mode, it returns a copy
// of plaintext unchanged. Under AeadPsk, it bumps the local counter (failing
// if it would wrap), builds the nonce as salt||counter_BE, and encrypts.
func (e *Encryptor) Seal(plaintext []byte) ([]byte, error) {
	if e.mode == Clear {
		out := make([]byte, len(plaintext))
		copy(out, plaintext)
		return out, nil
	}

	if len(plaintext) > MaxPlaintext {
		return nil, ErrTooLarge
	}

	next := e.counter + 1
	if next == 0 {
		return nil, ErrCounterExhausted
	}

	var nonce [nonceSize]byte
	copy(nonce[:saltSize], e.salt[:])
	binary.BigEndian.PutUint64(nonce[saltSize:], next)

	out := make([]byte, headerSize, headerSize+nonceSize+len(plaintext)+tagSize)
	copy(out, frameHeader[:])
	out = append(out, nonce[:]...)
	out = e.aead.Seal(out, nonce[:], plaintext, frameHeader[:])

	e.counter = next
	e.lastFrame = out
	return out, nil
}

// Counter returns the last counter value used (0 if no frame has been sent).
func (e *Encryptor) Counter() uint64 { return e.counter }

// DebugLastFrame returns the most recently sealed frame, for
// replay-rejection tests (spec.md §4.1 "test hook"). It returns nil if
// nothing has been sealed yet.
func (e *Encryptor) DebugLastFrame() []byte {
	if e.lastFrame == nil {
		return nil
	}
	out := make([]byte, len(e.lastFrame))
	copy(out, e.lastFrame)
	return out
}
