package transport

import (
	"bytes"
	"errors"
	"testing"
)

func TestAeadRoundTrip(t *testing.T) {
	psk := []byte("psk123")
	enc, err := NewEncryptor(psk)
	if err != nil {
		t.Fatal(err)
	}
	dec, err := NewDecryptor(psk)
	if err != nil {
		t.Fatal(err)
	}

	frame, err := enc.Seal([]byte("ping"))
	if err != nil {
		t.Fatal(err)
	}
	plaintext, err := dec.Open(frame)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(plaintext, []byte("ping")) {
		t.Fatalf("got %q, want %q", plaintext, "ping")
	}
}

func TestReplayRejected(t *testing.T) {
	psk := []byte("psk123")
	enc, _ := NewEncryptor(psk)
	dec, _ := NewDecryptor(psk)

	frame, err := enc.Seal([]byte("ping"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := dec.Open(frame); err != nil {
		t.Fatalf("first receive: %v", err)
	}

	_, err = dec.Open(frame)
	var re *RejectError
	if !errors.As(err, &re) || re.Reason != ReasonReplay {
		t.Fatalf("expected replay rejection, got %v", err)
	}
	if !errors.Is(err, ErrRejected) {
		t.Fatal("expected error to unwrap to ErrRejected")
	}
}

func TestWrongKeyRejected(t *testing.T) {
	enc, _ := NewEncryptor([]byte("psk123"))
	dec, _ := NewDecryptor([]byte("wrong"))

	frame, err := enc.Seal([]byte("hello"))
	if err != nil {
		t.Fatal(err)
	}

	_, err = dec.Open(frame)
	var re *RejectError
	if !errors.As(err, &re) || re.Reason != ReasonAeadFailure {
		t.Fatalf("expected aead-failure rejection, got %v", err)
	}
}

func TestBadHeaderRejected(t *testing.T) {
	dec, _ := NewDecryptor([]byte("psk123"))
	garbage := bytes.Repeat([]byte{0xAB}, headerSize+nonceSize+tagSize)

	_, err := dec.Open(garbage)
	var re *RejectError
	if !errors.As(err, &re) || re.Reason != ReasonBadHeader {
		t.Fatalf("expected bad-header rejection, got %v", err)
	}
}

func TestSaltMismatchRejected(t *testing.T) {
	psk := []byte("psk123")
	enc1, _ := NewEncryptor(psk)
	enc2, _ := NewEncryptor(psk) // different random salt
	dec, _ := NewDecryptor(psk)

	f1, _ := enc1.Seal([]byte("a"))
	if _, err := dec.Open(f1); err != nil {
		t.Fatalf("pin salt: %v", err)
	}

	f2, _ := enc2.Seal([]byte("b"))
	_, err := dec.Open(f2)
	var re *RejectError
	if !errors.As(err, &re) || re.Reason != ReasonSaltMismatch {
		t.Fatalf("expected salt-mismatch rejection, got %v", err)
	}
}

func TestCounterWrapForbidden(t *testing.T) {
	enc, _ := NewEncryptor([]byte("k"))
	enc.counter = ^uint64(0) // 2^64 - 1

	_, err := enc.Seal([]byte("x"))
	if !errors.Is(err, ErrCounterExhausted) {
		t.Fatalf("expected ErrCounterExhausted, got %v", err)
	}
}

func TestReplayWindowAtBoundary(t *testing.T) {
	dec := &Decryptor{mode: AeadPsk}
	dec.maxCounter = 64

	// exactly 63 behind: accepted once, then rejected
	if err := dec.checkAndUpdateWindow(1); err != nil {
		t.Fatalf("first time at boundary: %v", err)
	}
	if err := dec.checkAndUpdateWindow(1); !errors.Is(err, ErrRejected) {
		t.Fatalf("second time at boundary: expected rejection, got %v", err)
	}

	// 64 behind: too old
	if err := dec.checkAndUpdateWindow(0); !errors.Is(err, ErrRejected) {
		t.Fatalf("too old: expected rejection, got %v", err)
	}
}

func TestReplayWindowMonotonicity(t *testing.T) {
	dec := &Decryptor{mode: AeadPsk}
	seq := []uint64{1, 5, 3, 10, 2}
	for _, c := range seq {
		dec.checkAndUpdateWindow(c)
	}
	if dec.maxCounter != 10 {
		t.Fatalf("maxCounter = %d, want 10", dec.maxCounter)
	}
}

func TestClearModePassthrough(t *testing.T) {
	enc := NewClearEncryptor()
	dec := NewClearDecryptor()

	frame, err := enc.Seal([]byte("raw"))
	if err != nil {
		t.Fatal(err)
	}
	plaintext, err := dec.Open(frame)
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(plaintext, []byte("raw")) {
		t.Fatalf("got %q", plaintext)
	}
}

func TestSealTooLargeRejected(t *testing.T) {
	enc, _ := NewEncryptor([]byte("k"))
	_, err := enc.Seal(make([]byte, MaxPlaintext+1))
	if !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
}
