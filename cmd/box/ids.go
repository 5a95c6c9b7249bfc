package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/boxnet/boxd/pkg/boxid"
)

// clientIDsFile persists the CLI's own NodeId/UserId (spec.md §3) across
// invocations, the same atomic temp-file-then-rename write primitive used
// throughout the daemon side. Named distinctly from boxd's ids.json since
// --home may point at the same directory as a local daemon's.
type clientIDsFile struct {
	NodeID boxid.ID `json:"nodeId"`
	UserID boxid.ID `json:"userId"`
}

func clientIDsPath(home string) string {
	return filepath.Join(home, "client-ids.json")
}

func loadOrCreateClientIDs(home string) (nodeID, userID boxid.ID, err error) {
	path := clientIDsPath(home)
	raw, err := os.ReadFile(path)
	if err == nil {
		var f clientIDsFile
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

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return boxid.Nil, boxid.Nil, fmt.Errorf("create %s: %w", dir, err)
	}
	encoded, err := json.MarshalIndent(clientIDsFile{NodeID: nodeID, UserID: userID}, "", "  ")
	if err != nil {
		return boxid.Nil, boxid.Nil, err
	}
	tmp, err := os.CreateTemp(dir, ".tmp-client-ids-*")
	if err != nil {
		return boxid.Nil, boxid.Nil, err
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(encoded); err != nil {
		tmp.Close()
		return boxid.Nil, boxid.Nil, err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return boxid.Nil, boxid.Nil, err
	}
	if err := tmp.Close(); err != nil {
		return boxid.Nil, boxid.Nil, err
	}
	if err := os.Rename(tmpName, path); err != nil {
		return boxid.Nil, boxid.Nil, err
	}
	return nodeID, userID, nil
}
