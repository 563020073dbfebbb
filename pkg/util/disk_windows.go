//go:build windows

package util

import (
	"golang.org/x/sys/windows"
)

// FreeBytes returns the space available to the calling user on the volume
// holding path.
func FreeBytes(path string) (int64, error) {
	path16, err := windows.UTF16PtrFromString(path)
	if err != nil {
		return 0, err
	}

	var freeBytesAvailableToCaller, totalNumberOfBytes, totalNumberOfFreeBytes uint64
	err = windows.GetDiskFreeSpaceEx(path16, &freeBytesAvailableToCaller, &totalNumberOfBytes, &totalNumberOfFreeBytes)
	if err != nil {
		return 0, err
	}

	return int64(freeBytesAvailableToCaller), nil
}
