//go:build !windows
// +build !windows

package util

import (
	"golang.org/x/sys/unix"
)

// FreeBytes returns the space available to unprivileged users on the
// filesystem holding path.
func FreeBytes(path string) (int64, error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0, err
	}

	// Bsize is platform dependent and unconvert flags this as redundant
	return int64(stat.Bavail) * int64(stat.Bsize), nil //nolint: unconvert
}
