package broker

import (
	"testing"

	"github.com/rs/zerolog"

	"github.com/boxnet/boxd/pkg/queuestore"
)

func TestNewServerFiltersSupportedVersionsByMinVersion(t *testing.T) {
	store, err := queuestore.NewStore(t.TempDir(), nil, false)
	if err != nil {
		t.Fatal(err)
	}

	s := NewServer(zerolog.Nop(), Config{MinVersion: 2}, store, nil)
	if len(s.supportedVersions) != 0 {
		t.Fatalf("expected no versions to survive a MinVersion above every known version, got %v", s.supportedVersions)
	}

	s = NewServer(zerolog.Nop(), Config{MinVersion: 1}, store, nil)
	if len(s.supportedVersions) != 1 || s.supportedVersions[0] != 1 {
		t.Fatalf("expected version 1 to survive MinVersion=1, got %v", s.supportedVersions)
	}

	s = NewServer(zerolog.Nop(), Config{}, store, nil)
	if len(s.supportedVersions) != 1 || s.supportedVersions[0] != 1 {
		t.Fatalf("expected default MinVersion=0 to keep every known version, got %v", s.supportedVersions)
	}
}

func TestVersionsIntersect(t *testing.T) {
	if !versionsIntersect([]uint16{1, 2}, []uint16{2, 3}) {
		t.Fatal("expected overlapping version lists to intersect")
	}
	if versionsIntersect([]uint16{1}, []uint16{2}) {
		t.Fatal("expected disjoint version lists to not intersect")
	}
}
