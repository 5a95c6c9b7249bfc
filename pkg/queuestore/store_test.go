package queuestore

import (
	"bytes"
	"crypto/sha256"
	"errors"
	"testing"
)

func newTestStore(t *testing.T, permanent []string, compress bool) *Store {
	t.Helper()
	s, err := NewStore(t.TempDir(), permanent, compress)
	if err != nil {
		t.Fatal(err)
	}
	return s
}

func TestPutGetEphemeralConsumes(t *testing.T) {
	s := newTestStore(t, nil, false)

	if err := s.Put("/INBOX", "text/plain", []byte("hello"), 0); err != nil {
		t.Fatal(err)
	}

	obj, err := s.Get("/INBOX")
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(obj.Payload, []byte("hello")) || obj.ContentType != "text/plain" {
		t.Fatalf("unexpected object: %+v", obj)
	}

	if _, err := s.Get("/INBOX"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestPutGetPermanentPeeks(t *testing.T) {
	s := newTestStore(t, []string{"/whoswho"}, false)

	if err := s.Put("/whoswho", "application/json", []byte(`{"a":1}`), 0); err != nil {
		t.Fatal(err)
	}

	first, err := s.Get("/whoswho")
	if err != nil {
		t.Fatal(err)
	}
	second, err := s.Get("/whoswho")
	if err != nil {
		t.Fatal(err)
	}
	if first.Digest != second.Digest {
		t.Fatalf("permanent queue consumed object: %+v vs %+v", first, second)
	}
}

func TestPermanentPrefixMatchesUnenumeratedQueues(t *testing.T) {
	s := newTestStore(t, []string{"/whoswho/*"}, false)

	if err := s.Put("/whoswho/node-123", "application/json", []byte(`{"a":1}`), 0); err != nil {
		t.Fatal(err)
	}

	first, err := s.Get("/whoswho/node-123")
	if err != nil {
		t.Fatal(err)
	}
	second, err := s.Get("/whoswho/node-123")
	if err != nil {
		t.Fatal(err)
	}
	if first.Digest != second.Digest {
		t.Fatalf("permanent prefix queue consumed object: %+v vs %+v", first, second)
	}

	// A queue that only shares the literal prefix string, not a child
	// under it, must not match.
	s2 := newTestStore(t, []string{"/whoswho/*"}, false)
	if err := s2.Put("/whoswhore", "text/plain", []byte("x"), 0); err != nil {
		t.Fatal(err)
	}
	if _, err := s2.Get("/whoswhore"); err != nil {
		t.Fatal(err)
	}
	if _, err := s2.Get("/whoswhore"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound: /whoswhore must not match the /whoswho/* prefix", err)
	}
}

func TestGetEmptyQueueNotFound(t *testing.T) {
	s := newTestStore(t, nil, false)
	if _, err := s.Get("/nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestGetOrdersByNameLexicographically(t *testing.T) {
	s := newTestStore(t, []string{"/q"}, false)

	if err := s.Put("/q", "text/plain", []byte("bbbb"), 0); err != nil {
		t.Fatal(err)
	}
	if err := s.Put("/q", "text/plain", []byte("a"), 0); err != nil {
		t.Fatal(err)
	}

	obj, err := s.Get("/q")
	if err != nil {
		t.Fatal(err)
	}
	// Objects are named by hex sha256 digest, so the payload whose digest
	// sorts first must come back.
	sumA, sumB := sha256.Sum256([]byte("a")), sha256.Sum256([]byte("bbbb"))
	want := []byte("a")
	if bytes.Compare(sumB[:], sumA[:]) < 0 {
		want = []byte("bbbb")
	}
	if !bytes.Equal(obj.Payload, want) {
		t.Fatalf("got payload %q, want %q", obj.Payload, want)
	}
}

func TestPutRejectsBadQueueName(t *testing.T) {
	s := newTestStore(t, nil, false)
	if err := s.Put("no-leading-slash", "text/plain", []byte("x"), 0); !errors.Is(err, ErrBadQueueName) {
		t.Fatalf("got %v, want ErrBadQueueName", err)
	}
}

func TestPutRejectsTooLarge(t *testing.T) {
	s := newTestStore(t, nil, false)
	if err := s.Put("/INBOX", "text/plain", []byte("hello"), 2); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("got %v, want ErrTooLarge", err)
	}
}

func TestPutIsIdempotentOnSameDigest(t *testing.T) {
	s := newTestStore(t, []string{"/q"}, false)

	if err := s.Put("/q", "text/plain", []byte("same"), 0); err != nil {
		t.Fatal(err)
	}
	if err := s.Put("/q", "text/plain", []byte("same"), 0); err != nil {
		t.Fatal(err)
	}

	n, err := s.ObjectCount()
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 {
		t.Fatalf("expected one stored object after idempotent PUT, got %d", n)
	}
}

func TestPutWithCompressionRoundTrips(t *testing.T) {
	s := newTestStore(t, nil, true)

	payload := bytes.Repeat([]byte("box"), 1000)
	if err := s.Put("/INBOX", "application/octet-stream", payload, 0); err != nil {
		t.Fatal(err)
	}
	obj, err := s.Get("/INBOX")
	if err != nil {
		t.Fatal(err)
	}
	if !bytes.Equal(obj.Payload, payload) {
		t.Fatal("payload mismatch after compressed round trip")
	}
}

func TestQueueAndObjectCounts(t *testing.T) {
	s := newTestStore(t, []string{"/a", "/b"}, false)

	if err := s.Put("/a", "text/plain", []byte("1"), 0); err != nil {
		t.Fatal(err)
	}
	if err := s.Put("/b", "text/plain", []byte("2"), 0); err != nil {
		t.Fatal(err)
	}

	qc, err := s.QueueCount()
	if err != nil {
		t.Fatal(err)
	}
	if qc != 2 {
		t.Fatalf("QueueCount = %d, want 2", qc)
	}

	oc, err := s.ObjectCount()
	if err != nil {
		t.Fatal(err)
	}
	if oc != 2 {
		t.Fatalf("ObjectCount = %d, want 2", oc)
	}
}

func TestDeleteRemovesSmallestObject(t *testing.T) {
	s := newTestStore(t, nil, false)

	if err := s.Put("/q", "text/plain", []byte("b"), 0); err != nil {
		t.Fatal(err)
	}
	if err := s.Put("/q", "text/plain", []byte("a"), 0); err != nil {
		t.Fatal(err)
	}

	if err := s.Delete("/q"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Get("/q"); err != nil {
		t.Fatalf("expected one object to remain after a single Delete, got %v", err)
	}
	if err := s.Delete("/q"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Get("/q"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound after deleting both objects", err)
	}
}

func TestDeleteConsumesPermanentQueue(t *testing.T) {
	s := newTestStore(t, []string{"/whoswho"}, false)

	if err := s.Put("/whoswho", "application/json", []byte(`{"a":1}`), 0); err != nil {
		t.Fatal(err)
	}

	if err := s.Delete("/whoswho"); err != nil {
		t.Fatal(err)
	}
	if _, err := s.Get("/whoswho"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound: Delete must consume permanent queues too", err)
	}
}

func TestDeleteEmptyQueueNotFound(t *testing.T) {
	s := newTestStore(t, nil, false)
	if err := s.Delete("/nope"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}
