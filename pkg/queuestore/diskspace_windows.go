//go:build windows

package queuestore

import "golang.org/x/sys/windows"

// FreeBytes reports free space on the filesystem backing the store root,
// for the admin channel's optional free_bytes metric (spec.md §4.4).
func (s *Store) FreeBytes() (uint64, error) {
	path, err := windows.UTF16PtrFromString(s.root)
	if err != nil {
		return 0, err
	}
	var freeAvail, total, free uint64
	if err := windows.GetDiskFreeSpaceEx(path, &freeAvail, &total, &free); err != nil {
		return 0, err
	}
	return freeAvail, nil
}
