// Package identity manages Box's persistent NodeIdentity keypairs
// (spec.md §3): a 32-byte public key and a 32-byte secret key, generated
// once on first launch and stored hex-encoded at
// <home>/.box/keys/{node,client}.identity.json.
//
// The "generate if missing, otherwise load and validate shape" contract and
// its 0600 enforcement mirror the teacher's Config credential-loading
// habits (fail closed on anything that doesn't look like a real key),
// adapted from environment-variable credentials to an on-disk file since a
// NodeIdentity must survive process restarts.
package identity

import (
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
)

// KeySize is the length in bytes of each half of a NodeIdentity keypair.
const KeySize = 32

// Role selects which identity file a caller wants: the daemon's own
// identity, or the client CLI's.
type Role string

const (
	RoleNode   Role = "node"
	RoleClient Role = "client"
)

// ErrInvalidKeySize is returned when a loaded identity file's keys are not
// exactly KeySize bytes after hex decoding.
var ErrInvalidKeySize = errors.New("identity: invalid key size")

// Identity is a persistent NodeIdentity keypair.
type Identity struct {
	PublicKey [KeySize]byte
	SecretKey [KeySize]byte
}

type identityFile struct {
	PublicKey string `json:"publicKey"`
	SecretKey string `json:"secretKey"`
}

// Path returns the file path for role's identity under home (typically
// <home>/.box).
func Path(home string, role Role) string {
	return filepath.Join(home, "keys", string(role)+".identity.json")
}

// Generate creates a new random Identity.
func Generate() (Identity, error) {
	var id Identity
	if _, err := rand.Read(id.PublicKey[:]); err != nil {
		return Identity{}, fmt.Errorf("identity: generate public key: %w", err)
	}
	if _, err := rand.Read(id.SecretKey[:]); err != nil {
		return Identity{}, fmt.Errorf("identity: generate secret key: %w", err)
	}
	return id, nil
}

// Load reads and decodes the identity file at path.
func Load(path string) (Identity, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Identity{}, err
	}
	var f identityFile
	if err := json.Unmarshal(raw, &f); err != nil {
		return Identity{}, fmt.Errorf("identity: decode %s: %w", path, err)
	}
	return decodeFile(f)
}

func decodeFile(f identityFile) (Identity, error) {
	var id Identity
	pub, err := hex.DecodeString(f.PublicKey)
	if err != nil || len(pub) != KeySize {
		return Identity{}, ErrInvalidKeySize
	}
	sec, err := hex.DecodeString(f.SecretKey)
	if err != nil || len(sec) != KeySize {
		return Identity{}, ErrInvalidKeySize
	}
	copy(id.PublicKey[:], pub)
	copy(id.SecretKey[:], sec)
	return id, nil
}

// LoadOrCreate loads the identity file at path, generating and atomically
// writing a new one (mode 0600, parent directories 0700) if it doesn't
// exist yet.
func LoadOrCreate(path string) (Identity, error) {
	id, err := Load(path)
	if err == nil {
		return id, nil
	}
	if !os.IsNotExist(err) {
		return Identity{}, err
	}

	id, err = Generate()
	if err != nil {
		return Identity{}, err
	}
	if err := save(path, id); err != nil {
		return Identity{}, err
	}
	return id, nil
}

func save(path string, id Identity) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("identity: create key directory: %w", err)
	}

	f := identityFile{
		PublicKey: hex.EncodeToString(id.PublicKey[:]),
		SecretKey: hex.EncodeToString(id.SecretKey[:]),
	}
	encoded, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return fmt.Errorf("identity: encode: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".tmp-identity-*")
	if err != nil {
		return fmt.Errorf("identity: create temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if err := tmp.Chmod(0600); err != nil {
		tmp.Close()
		return fmt.Errorf("identity: chmod temp file: %w", err)
	}
	if _, err := tmp.Write(encoded); err != nil {
		tmp.Close()
		return fmt.Errorf("identity: write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("identity: sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("identity: close temp file: %w", err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("identity: rename temp file: %w", err)
	}
	return nil
}
