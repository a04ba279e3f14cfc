package disk

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// TotalSizeMB returns the combined size of disks in megabytes.
func TotalSizeMB(disks []*Disk) int64 {
	var total int64
	for _, d := range disks {
		total += d.SizeMB
	}
	return total
}

// CheckFreeSpace verifies that the filesystem holding dir has room for the
// raw images of disks.
func CheckFreeSpace(dir string, disks []*Disk) error {
	var stat unix.Statfs_t
	if err := unix.Statfs(dir, &stat); err != nil {
		return fmt.Errorf("failed to get filesystem stats for %s: %w", dir, err)
	}

	availableMB := (stat.Bavail * uint64(stat.Bsize)) / (1024 * 1024)
	needed := TotalSizeMB(disks)

	if uint64(needed) > availableMB {
		return fmt.Errorf("insufficient disk space in %s: need %dMB, have %dMB available", dir, needed, availableMB)
	}

	return nil
}
