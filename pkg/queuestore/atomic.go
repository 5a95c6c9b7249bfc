package queuestore

import (
	"fmt"
	"os"
)

// writeAtomic writes data to final by first writing a temporary sibling
// file in dir, fsyncing it, then renaming it over final. The rename is
// atomic on every platform Box targets, so a reader never observes a
// partially written object (spec.md §4.4).
func writeAtomic(dir, final string, data []byte) error {
	tmp, err := os.CreateTemp(dir, ".tmp-*")
	if err != nil {
		return fmt.Errorf("queuestore: create temp file: %w", err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("queuestore: write temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("queuestore: sync temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("queuestore: close temp file: %w", err)
	}
	if err := os.Rename(tmpName, final); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("queuestore: rename temp file: %w", err)
	}
	return nil
}
