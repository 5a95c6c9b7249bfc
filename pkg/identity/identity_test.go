package identity

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func TestLoadOrCreateGeneratesOnFirstCall(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys", "node.identity.json")

	id, err := LoadOrCreate(path)
	if err != nil {
		t.Fatal(err)
	}
	if id.PublicKey == ([KeySize]byte{}) || id.SecretKey == ([KeySize]byte{}) {
		t.Fatal("generated identity has zero key")
	}

	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if runtime.GOOS != "windows" {
		if info.Mode().Perm() != 0600 {
			t.Fatalf("expected mode 0600, got %v", info.Mode().Perm())
		}
	}
}

func TestLoadOrCreateIsStableAcrossCalls(t *testing.T) {
	path := filepath.Join(t.TempDir(), "keys", "client.identity.json")

	first, err := LoadOrCreate(path)
	if err != nil {
		t.Fatal(err)
	}
	second, err := LoadOrCreate(path)
	if err != nil {
		t.Fatal(err)
	}
	if first.PublicKey != second.PublicKey || first.SecretKey != second.SecretKey {
		t.Fatal("LoadOrCreate regenerated an existing identity")
	}
}

func TestLoadMissingFileReturnsNotExist(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.json"))
	if !os.IsNotExist(err) {
		t.Fatalf("got %v, want IsNotExist", err)
	}
}

func TestLoadRejectsBadKeySize(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "node.identity.json")
	if err := os.WriteFile(path, []byte(`{"publicKey":"abcd","secretKey":"abcd"}`), 0600); err != nil {
		t.Fatal(err)
	}
	if _, err := Load(path); err != ErrInvalidKeySize {
		t.Fatalf("got %v, want ErrInvalidKeySize", err)
	}
}

func TestPathLayout(t *testing.T) {
	p := Path("/home/u/.box", RoleNode)
	want := filepath.Join("/home/u/.box", "keys", "node.identity.json")
	if p != want {
		t.Fatalf("Path = %q, want %q", p, want)
	}
}
