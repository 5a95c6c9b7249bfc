//go:build !windows

package queuestore

import "golang.org/x/sys/unix"

// FreeBytes reports free space on the filesystem backing the store root,
// for the admin channel's optional free_bytes metric (spec.md §4.4).
func (s *Store) FreeBytes() (uint64, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(s.root, &stat); err != nil {
		return 0, err
	}
	return stat.Bavail * uint64(stat.Bsize), nil
}
