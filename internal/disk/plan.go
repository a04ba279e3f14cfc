package disk

import (
	"cmp"
	"slices"
	"strings"

	"github.com/jbweber/vmbuilder/internal/config"
)

// OrderedPartitions returns the mountable partitions of disks in mount
// order: a partition whose mount point is a parent of another's always
// comes first. Partitions of equal depth keep their disk-then-partition
// declaration order. Swap partitions are left out.
//
// Two partitions with the same mount point are a configuration error.
func OrderedPartitions(disks []*Disk) ([]*Partition, error) {
	var parts []*Partition
	seen := make(map[string]*Partition)

	for _, d := range disks {
		for _, p := range d.Partitions {
			if p.Type == TypeSwap {
				continue
			}

			if prev, dup := seen[p.MountPoint]; dup {
				return nil, config.NewValidationError("mount point", p.MountPoint,
					"declared by both %s and %s", prev.GuestDevice(), p.GuestDevice())
			}
			seen[p.MountPoint] = p
			parts = append(parts, p)
		}
	}

	slices.SortStableFunc(parts, func(a, b *Partition) int {
		return cmp.Compare(depth(a.MountPoint), depth(b.MountPoint))
	})

	return parts, nil
}

// UnmountOrder returns the mountable partitions of disks in unmount order,
// the exact reverse of OrderedPartitions.
func UnmountOrder(disks []*Disk) ([]*Partition, error) {
	parts, err := OrderedPartitions(disks)
	if err != nil {
		return nil, err
	}

	slices.Reverse(parts)
	return parts, nil
}

// depth counts the components of a clean absolute path; "/" has depth 0.
func depth(mountPoint string) int {
	trimmed := strings.Trim(mountPoint, "/")
	if trimmed == "" {
		return 0
	}
	return strings.Count(trimmed, "/") + 1
}

// Validate checks that the layout can be mounted: at least one disk, a
// root filesystem, and no duplicate mount points.
func Validate(disks []*Disk) error {
	if len(disks) == 0 {
		return config.NewValidationError("disk layout", "", "no disks defined")
	}

	parts, err := OrderedPartitions(disks)
	if err != nil {
		return err
	}

	if len(parts) == 0 || parts[0].MountPoint != "/" {
		return config.NewValidationError("disk layout", "", "no root filesystem")
	}

	return nil
}
