//go:build !darwin && !linux

package storage

import "fmt"

func detectFilesystemType(path string) (string, error) {
	// Without a statfs equivalent we cannot rule out a network mount, and
	// sqlite locking on one corrupts the database.
	return "", fmt.Errorf("cannot determine filesystem type for %q on this platform", path)
}
