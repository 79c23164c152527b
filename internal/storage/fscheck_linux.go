//go:build linux

package storage

import (
	"fmt"
	"syscall"
)

// statfs f_type magics for the network filesystems bothive refuses to run on.
var networkFSMagic = map[int64]string{
	0x6969:     "nfs",
	0xFF534D42: "cifs",
	0x517B:     "smbfs",
	0xFE534D42: "smb2",
}

func detectFilesystemType(path string) (string, error) {
	var st syscall.Statfs_t
	if err := syscall.Statfs(path, &st); err != nil {
		return "", fmt.Errorf("statfs %q: %w", path, err)
	}
	if name, ok := networkFSMagic[int64(st.Type)]; ok {
		return name, nil
	}
	// Unrecognized types pass through as their raw magic; only known network
	// filesystems are refused.
	return fmt.Sprintf("0x%x", uint64(st.Type)), nil
}
