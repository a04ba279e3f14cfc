package disk

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/jbweber/vmbuilder/internal/config"
)

// DefaultLayout returns the layout used when no partition file is given:
// one disk holding the root filesystem and, if swapMB > 0, a swap
// partition; and, if optMB > 0, a second disk holding /opt.
func DefaultLayout(rootMB, swapMB, optMB int) ([]*Disk, error) {
	root := NewDisk(0, int64(rootMB+swapMB)+1)
	if _, err := root.AddPartition(TypeExt4, "/", int64(rootMB)); err != nil {
		return nil, err
	}
	if swapMB > 0 {
		if _, err := root.AddPartition(TypeSwap, "", int64(swapMB)); err != nil {
			return nil, err
		}
	}

	disks := []*Disk{root}

	if optMB > 0 {
		opt := NewDisk(1, int64(optMB)+1)
		if _, err := opt.AddPartition(TypeExt4, "/opt", int64(optMB)); err != nil {
			return nil, err
		}
		disks = append(disks, opt)
	}

	return disks, nil
}

type layoutEntry struct {
	typ        PartitionType
	mountPoint string
	sizeMB     int64
}

// ParseLayout reads a partition file. Each line holds a mount point and a
// size in megabytes; "root" is shorthand for "/" and "swap" declares a swap
// partition. A line of "---" starts the next disk. Blank lines and lines
// starting with "#" are skipped. An optional third field overrides the
// filesystem type (default ext4):
//
//	root 4000
//	swap 1000
//	---
//	/var 8000 xfs
func ParseLayout(r io.Reader) ([]*Disk, error) {
	var (
		groups  [][]layoutEntry
		current []layoutEntry
		lineNo  int
	)

	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		lineNo++
		line := strings.TrimSpace(scanner.Text())

		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}

		if line == "---" {
			if len(current) > 0 {
				groups = append(groups, current)
				current = nil
			}
			continue
		}

		entry, err := parseLayoutLine(line)
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNo, err)
		}
		current = append(current, entry)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read partition file: %w", err)
	}
	if len(current) > 0 {
		groups = append(groups, current)
	}

	if len(groups) == 0 {
		return nil, config.NewValidationError("disk layout", "", "partition file declares no partitions")
	}

	disks := make([]*Disk, 0, len(groups))
	for i, entries := range groups {
		var total int64
		for _, e := range entries {
			total += e.sizeMB
		}

		d := NewDisk(i, total+1)
		for _, e := range entries {
			if _, err := d.AddPartition(e.typ, e.mountPoint, e.sizeMB); err != nil {
				return nil, err
			}
		}
		disks = append(disks, d)
	}

	return disks, nil
}

func parseLayoutLine(line string) (layoutEntry, error) {
	fields := strings.Fields(line)
	if len(fields) < 2 || len(fields) > 3 {
		return layoutEntry{}, fmt.Errorf("expected \"<mountpoint> <size> [type]\", got %q", line)
	}

	size, err := strconv.ParseInt(fields[1], 10, 64)
	if err != nil || size <= 0 {
		return layoutEntry{}, config.NewValidationError("partition size", fields[1], "must be a positive number of megabytes")
	}

	entry := layoutEntry{typ: TypeExt4, mountPoint: fields[0], sizeMB: size}
	switch fields[0] {
	case "root":
		entry.mountPoint = "/"
	case "swap":
		entry.typ = TypeSwap
		entry.mountPoint = ""
	}

	if len(fields) == 3 {
		typ, err := ParsePartitionType(fields[2])
		if err != nil {
			return layoutEntry{}, err
		}
		if (typ == TypeSwap) != (entry.typ == TypeSwap) {
			return layoutEntry{}, config.NewValidationError("partition type", fields[2], "does not match mount point %q", fields[0])
		}
		entry.typ = typ
	}

	return entry, nil
}
