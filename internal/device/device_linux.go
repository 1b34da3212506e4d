package device

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"golang.org/x/sys/unix"
)

// Filesystem type magics from statfs(2). Network filesystems resolve to no
// stable block device and are reported as resolution failures.
const (
	magicExt4     = 0xef53
	magicBtrfs    = 0x9123683e
	magicXFS      = 0x58465342
	magicTmpfs    = 0x01021994
	magicVFAT     = 0x4d44
	magicExfat    = 0x2011bab0
	magicNFS      = 0x6969
	magicSMB      = 0x517b
	magicSMB2     = 0xfe534d42
	magicFuse     = 0x65735546
	magicOverlay  = 0x794c7630
	magicZFS      = 0x2fc12fc1
	magicF2FS     = 0xf2f52010
	magicNTFS     = 0x5346544e
	magicSquashfs = 0x73717368
)

func resolve(path string) (Device, error) {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return Device{}, err
	}

	var fs unix.Statfs_t
	if err := unix.Statfs(path, &fs); err != nil {
		return Device{}, err
	}

	fsName := fsTypeName(int64(fs.Type))
	switch int64(fs.Type) {
	case magicNFS, magicSMB, magicSMB2, magicFuse:
		return Device{}, fmt.Errorf("network or userspace filesystem %s has no stable device", fsName)
	}

	major := unix.Major(uint64(st.Dev))
	minor := unix.Minor(uint64(st.Dev))
	id := fmt.Sprintf("%d:%d", major, minor)

	rotational, err := readRotational(id)
	if err != nil {
		// tmpfs and friends have no sysfs block entry; treat as solid-state
		// rather than failing the classification.
		if int64(fs.Type) == magicTmpfs {
			return Device{ID: id, Rotational: false, Filesystem: fsName}, nil
		}
		return Device{}, fmt.Errorf("read rotational flag for %s: %w", id, err)
	}

	return Device{ID: id, Rotational: rotational, Filesystem: fsName}, nil
}

// readRotational reads /sys/dev/block/<maj:min>/queue/rotational, walking up
// to the parent device when the node is a partition.
func readRotational(id string) (bool, error) {
	base := filepath.Join("/sys/dev/block", id)

	for _, p := range []string{
		filepath.Join(base, "queue", "rotational"),
		filepath.Join(base, "..", "queue", "rotational"),
	} {
		data, err := os.ReadFile(p)
		if err != nil {
			continue
		}
		return strings.TrimSpace(string(data)) == "1", nil
	}
	return false, fmt.Errorf("no sysfs queue entry under %s", base)
}

func fsTypeName(magic int64) string {
	switch magic {
	case magicExt4:
		return "ext4"
	case magicBtrfs:
		return "btrfs"
	case magicXFS:
		return "xfs"
	case magicTmpfs:
		return "tmpfs"
	case magicVFAT:
		return "vfat"
	case magicExfat:
		return "exfat"
	case magicNFS:
		return "nfs"
	case magicSMB, magicSMB2:
		return "smb"
	case magicFuse:
		return "fuse"
	case magicOverlay:
		return "overlay"
	case magicZFS:
		return "zfs"
	case magicF2FS:
		return "f2fs"
	case magicNTFS:
		return "ntfs"
	case magicSquashfs:
		return "squashfs"
	}
	return fmt.Sprintf("0x%x", magic)
}
