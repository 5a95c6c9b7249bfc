package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/boxnet/boxd/pkg/boxid"
)

// idsFile persists the daemon's NodeId/UserId (spec.md §3: separate from the
// NodeIdentity keypair) so they survive a restart, using the same
// temp-file-then-rename atomic write primitive as pkg/identity and
// pkg/queuestore.
type idsFile struct {
	NodeID boxid.ID `json:"nodeId"`
	UserID boxid.ID `json:"userId"`
}

func idsPath(home string) string {
	return filepath.Join(home, "ids.json")
}

// loadOrCreateIDs loads path, generating and persisting fresh random ids if
// it doesn't exist yet.
func loadOrCreateIDs(path string) (nodeID, userID boxid.ID, err error) {
	raw, err := os.ReadFile(path)
	if err == nil {
		var f idsFile
		if err := json.Unmarshal(raw, &f); err != nil {
			return boxid.Nil, boxid.Nil, fmt.Errorf("decode %s: %w", path, err)
		}
		return f.NodeID, f.UserID, nil
	}
	if !os.IsNotExist(err) {
		return boxid.Nil, boxid.Nil, err
	}

	nodeID, err = boxid.New()
	if err != nil {
		return boxid.Nil, boxid.Nil, err
	}
	userID, err = boxid.New()
	if err != nil {
		return boxid.Nil, boxid.Nil, err
	}
	if err := saveIDs(path, nodeID, userID); err != nil {
		return boxid.Nil, boxid.Nil, err
	}
	return nodeID, userID, nil
}

func saveIDs(path string, nodeID, userID boxid.ID) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("create %s: %w", dir, err)
	}
	encoded, err := json.MarshalIndent(idsFile{NodeID: nodeID, UserID: userID}, "", "  ")
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp(dir, ".tmp-ids-*")
	if err != nil {
		return err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(encoded); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmpName, path)
}
