package device

import (
	"fmt"

	"golang.org/x/sys/unix"
)

func resolve(path string) (Device, error) {
	var fs unix.Statfs_t
	if err := unix.Statfs(path, &fs); err != nil {
		return Device{}, err
	}

	fsName := bytesToString(fs.Fstypename[:])
	switch fsName {
	case "nfs", "smbfs", "webdav", "afpfs":
		return Device{}, fmt.Errorf("network filesystem %s has no stable device", fsName)
	}

	mount := bytesToString(fs.Mntfromname[:])

	// Every Mac shipping APFS runs on flash; spinning externals typically
	// mount HFS+ or ExFAT, where rotational is the safer assumption.
	rotational := fsName != "apfs"

	return Device{ID: mount, Rotational: rotational, Filesystem: fsName}, nil
}

func bytesToString(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
