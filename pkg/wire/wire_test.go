package wire

import (
	"bytes"
	"errors"
	"testing"

	"github.com/boxnet/boxd/pkg/boxid"
)

func TestFrameRoundTrip(t *testing.T) {
	payload, err := EncodePut(PutPayload{Queue: "/INBOX", ContentType: "text/plain", Data: []byte("alpha")})
	if err != nil {
		t.Fatal(err)
	}
	f := Frame{
		Command:   CommandPUT,
		RequestID: boxid.MustNew(),
		NodeID:    boxid.MustNew(),
		UserID:    boxid.MustNew(),
		Payload:   payload,
	}

	buf, err := Encode(f)
	if err != nil {
		t.Fatal(err)
	}
	got, err := Decode(buf)
	if err != nil {
		t.Fatal(err)
	}
	if got.Command != f.Command || got.RequestID != f.RequestID || got.NodeID != f.NodeID || got.UserID != f.UserID {
		t.Fatalf("header mismatch: got %+v, want %+v", got, f)
	}
	if !bytes.Equal(got.Payload, f.Payload) {
		t.Fatalf("payload mismatch: got %x, want %x", got.Payload, f.Payload)
	}

	pp, err := DecodePut(got.Payload)
	if err != nil {
		t.Fatal(err)
	}
	if pp.Queue != "/INBOX" || pp.ContentType != "text/plain" || !bytes.Equal(pp.Data, []byte("alpha")) {
		t.Fatalf("unexpected put payload: %+v", pp)
	}
}

func TestDecodeRejectsBadMagic(t *testing.T) {
	buf := make([]byte, HeaderLen)
	buf[0] = 0xFF
	if _, err := Decode(buf); !errors.Is(err, ErrMalformedHeader) {
		t.Fatalf("got %v, want ErrMalformedHeader", err)
	}
}

func TestDecodeRejectsBadVersion(t *testing.T) {
	buf := make([]byte, HeaderLen)
	buf[0] = Magic
	buf[1] = 0x09
	if _, err := Decode(buf); !errors.Is(err, ErrUnsupportedVersion) {
		t.Fatalf("got %v, want ErrUnsupportedVersion", err)
	}
}

func TestDecodeRejectsInvalidLength(t *testing.T) {
	buf := make([]byte, HeaderLen)
	buf[0] = Magic
	buf[1] = Version
	// remainder_length less than the 52-byte fixed header
	buf[2], buf[3], buf[4], buf[5] = 0, 0, 0, 10
	if _, err := Decode(buf); !errors.Is(err, ErrInvalidLength) {
		t.Fatalf("got %v, want ErrInvalidLength", err)
	}
}

func TestDecodeRejectsTruncatedPayload(t *testing.T) {
	f := Frame{Command: CommandBYE, RequestID: boxid.MustNew()}
	buf, err := Encode(f)
	if err != nil {
		t.Fatal(err)
	}
	// Claim a much larger payload than is actually present.
	buf[2], buf[3], buf[4], buf[5] = 0, 0, 0xFF, 0xFF
	if _, err := Decode(buf); !errors.Is(err, ErrTruncatedPayload) {
		t.Fatalf("got %v, want ErrTruncatedPayload", err)
	}
}

func TestDecodeRejectsUnsupportedCommand(t *testing.T) {
	f := Frame{Command: 99, RequestID: boxid.MustNew()}
	buf, err := Encode(f)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := Decode(buf); !errors.Is(err, ErrUnsupportedCommand) {
		t.Fatalf("got %v, want ErrUnsupportedCommand", err)
	}
}

func TestHelloCountZeroDecodesButIsFlaggedByCaller(t *testing.T) {
	payload, err := EncodeHello(HelloPayload{Status: StatusOK, Versions: nil})
	if err != nil {
		t.Fatal(err)
	}
	p, err := DecodeHello(payload)
	if err != nil {
		t.Fatal(err)
	}
	if len(p.Versions) != 0 {
		t.Fatalf("expected zero versions, got %v", p.Versions)
	}
}

func TestStatusPayloadRoundTrip(t *testing.T) {
	payload, err := EncodeStatus(StatusPayload{Status: StatusNotFound, Message: "not-found"})
	if err != nil {
		t.Fatal(err)
	}
	p, err := DecodeStatus(payload)
	if err != nil {
		t.Fatal(err)
	}
	if p.Status != StatusNotFound || p.Message != "not-found" {
		t.Fatalf("unexpected status payload: %+v", p)
	}
}

func TestLocatePayloadRoundTrip(t *testing.T) {
	target := boxid.MustNew()
	payload, err := EncodeLocate(LocatePayload{Target: target})
	if err != nil {
		t.Fatal(err)
	}
	p, err := DecodeLocate(payload)
	if err != nil {
		t.Fatal(err)
	}
	if p.Target != target {
		t.Fatalf("got %v, want %v", p.Target, target)
	}
}

func TestQueuePayloadRejectsTrailingGarbage(t *testing.T) {
	payload, _ := EncodeQueue(QueuePayload{Queue: "/INBOX"})
	payload = append(payload, 0x01)
	if _, err := DecodeQueue(payload); !errors.Is(err, ErrInvalidLength) {
		t.Fatalf("got %v, want ErrInvalidLength", err)
	}
}
