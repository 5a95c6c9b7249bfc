package transport

import (
	"encoding/binary"
)

// Decryptor holds the receive-side state of a TransportSession: the pinned
// peer salt and the sliding replay window. It is owned exclusively by the
// NetworkInput stage (spec.md §5).
type Decryptor struct {
	mode Mode
	aead interface {
		Seal(dst, nonce, plaintext, additionalData []byte) []byte
		Open(dst, nonce, ciphertext, additionalData []byte) ([]byte, error)
		NonceSize() int
	}

	peerSaltSet bool
	peerSalt    [saltSize]byte

	maxCounter uint64
	window     uint64 // bit i set means counter (maxCounter-i) has been seen
}

// NewDecryptor creates a Decryptor for AeadPsk mode using psk.
func NewDecryptor(psk []byte) (*Decryptor, error) {
	aead, err := newAEAD(psk)
	if err != nil {
		return nil, err
	}
	return &Decryptor{mode: AeadPsk, aead: aead}, nil
}

// NewClearDecryptor creates a Decryptor that performs no cryptography.
func NewClearDecryptor() *Decryptor {
	return &Decryptor{mode: Clear}
}

// PeerSalt returns the pinned peer salt and whether one has been learned yet.
func (d *Decryptor) PeerSalt() (salt [saltSize]byte, ok bool) {
	return d.peerSalt, d.peerSaltSet
}

// MaxCounter returns the highest counter value accepted so far.
func (d *Decryptor) MaxCounter() uint64 { return d.maxCounter }

// Open validates and decrypts a received datagram, in this order: header
// check, AEAD decrypt, salt pinning, then replay-window update — the replay
// state is only touched after a successful decrypt, since the counter isn't
// trustworthy until the tag authenticates it (spec.md §4.1).
func (d *Decryptor) Open(datagram []byte) ([]byte, error) {
	if d.mode == Clear {
		out := make([]byte, len(datagram))
		copy(out, datagram)
		return out, nil
	}

	if len(datagram) < headerSize+nonceSize+tagSize {
		return nil, reject(ReasonBadHeader)
	}
	if [headerSize]byte(datagram[:headerSize]) != frameHeader {
		return nil, reject(ReasonBadHeader)
	}

	nonce := datagram[headerSize : headerSize+nonceSize]
	var salt [saltSize]byte
	copy(salt[:], nonce[:saltSize])
	counter := binary.BigEndian.Uint64(nonce[saltSize:])

	ciphertext := datagram[headerSize+nonceSize:]

	plaintext, err := d.aead.Open(nil, nonce, ciphertext, frameHeader[:])
	if err != nil {
		return nil, reject(ReasonAeadFailure)
	}

	if !d.peerSaltSet {
		d.peerSalt = salt
		d.peerSaltSet = true
	} else if salt != d.peerSalt {
		return nil, reject(ReasonSaltMismatch)
	}

	if err := d.checkAndUpdateWindow(counter); err != nil {
		return nil, err
	}

	return plaintext, nil
}

func (d *Decryptor) checkAndUpdateWindow(counter uint64) error {
	switch {
	case counter > d.maxCounter:
		shift := counter - d.maxCounter
		if shift >= 64 {
			d.window = 0
		} else {
			d.window <<= shift
		}
		d.window |= 1
		d.maxCounter = counter
		return nil
	case d.maxCounter-counter >= 64:
		return reject(ReasonTooOld)
	default:
		delta := d.maxCounter - counter
		if d.window&(1<<delta) != 0 {
			return reject(ReasonReplay)
		}
		d.window |= 1 << delta
		return nil
	}
}
